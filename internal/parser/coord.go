package parser

import (
	"fmt"
	"strconv"
	"strings"

	"LocMock/internal/model"
)

// ValidateCoordinates reports whether lat/lon lie within WGS84 bounds.
func ValidateCoordinates(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// FormatCoordinates renders a coordinate pair for display.
func FormatCoordinates(lat, lon float64) string {
	return fmt.Sprintf("%.6f, %.6f", lat, lon)
}

// ParseCoordinates parses user input such as "39.9087, 116.3975" or "39.9087 116.3975".
func ParseCoordinates(s string) (model.Coordinate, error) {
	fields := strings.FieldsFunc(strings.TrimSpace(s), func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == ';'
	})
	if len(fields) != 2 {
		return model.Coordinate{}, fmt.Errorf("expected \"lat, lon\", got %q", s)
	}
	lat, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return model.Coordinate{}, fmt.Errorf("invalid latitude %q", fields[0])
	}
	lon, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return model.Coordinate{}, fmt.Errorf("invalid longitude %q", fields[1])
	}
	if !ValidateCoordinates(lat, lon) {
		return model.Coordinate{}, fmt.Errorf("coordinate out of range: %s", FormatCoordinates(lat, lon))
	}
	return model.Coordinate{Lat: lat, Lon: lon}, nil
}
