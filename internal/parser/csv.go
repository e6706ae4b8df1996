package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"LocMock/internal/model"
)

// CSVParser implements Parser using comma-separated values.
// Example: gps,39.908700,116.397500,10.00,1760486400000
type CSVParser struct{}

// NewCSVParser creates a new CSV parser instance.
func NewCSVParser() *CSVParser { return &CSVParser{} }

// EncodeFix converts a Fix into a CSV line.
func (p *CSVParser) EncodeFix(f model.Fix) (string, error) {
	return fmt.Sprintf("%s,%.6f,%.6f,%.2f,%d",
		f.Identity, f.Lat, f.Lon, f.Accuracy, f.Time.UnixMilli()), nil
}

// DecodeFix parses a CSV line into a Fix.
func (p *CSVParser) DecodeFix(line string) (model.Fix, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) != 5 {
		return model.Fix{}, fmt.Errorf("expected 5 fields, got %d", len(fields))
	}
	id, err := model.ParseIdentity(fields[0])
	if err != nil {
		return model.Fix{}, err
	}
	lat, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return model.Fix{}, errors.New("invalid lat")
	}
	lon, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return model.Fix{}, errors.New("invalid lon")
	}
	acc, err := strconv.ParseFloat(fields[3], 64)
	if err != nil {
		return model.Fix{}, errors.New("invalid accuracy")
	}
	ms, err := strconv.ParseInt(fields[4], 10, 64)
	if err != nil {
		return model.Fix{}, errors.New("invalid time")
	}
	return model.Fix{
		Identity: id,
		Lat:      lat,
		Lon:      lon,
		Accuracy: acc,
		Time:     time.UnixMilli(ms).UTC(),
	}, nil
}
