// Package parser converts location fixes to wire formats and vice-versa.
//
// CSV fix wire format:
//
//	PROVIDER,LAT,LON,ACCURACY,UNIX_MILLIS
//
// JSON fix wire format is model.Fix marshalled with encoding/json.
// NMEA output is handled separately by NMEASentences.
package parser

import (
	"fmt"
	"strings"

	"LocMock/internal/model"
)

// Parser encodes and decodes a model.Fix to a single-line wire format.
type Parser interface {
	EncodeFix(f model.Fix) (string, error)
	DecodeFix(line string) (model.Fix, error)
}

// New returns the Parser registered for format (json or csv).
func New(format string) (Parser, error) {
	switch strings.ToLower(format) {
	case "json", "":
		return NewJSONParser(), nil
	case "csv":
		return NewCSVParser(), nil
	}
	return nil, fmt.Errorf("unknown wire format %q", format)
}
