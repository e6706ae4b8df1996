package parser

import (
	"encoding/json"

	"LocMock/internal/model"
)

// JSONParser implements Parser using JSON serialization.
type JSONParser struct{}

// NewJSONParser creates a new JSON parser.
func NewJSONParser() *JSONParser { return &JSONParser{} }

// EncodeFix encodes a Fix into a JSON string.
func (p *JSONParser) EncodeFix(f model.Fix) (string, error) {
	b, err := json.Marshal(f)
	return string(b), err
}

// DecodeFix decodes a JSON string into a Fix.
func (p *JSONParser) DecodeFix(s string) (model.Fix, error) {
	var f model.Fix
	err := json.Unmarshal([]byte(s), &f)
	return f, err
}
