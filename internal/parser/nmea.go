package parser

import (
	"fmt"
	"math"

	nmea "github.com/adrianmo/go-nmea"

	"LocMock/internal/model"
)

// metres of horizontal error per unit of HDOP assumed when deriving HDOP from accuracy.
const uereMetres = 5.0

const knotsPerMS = 1.943844

// ToNMEACoord converts decimal degrees to ddmm.mmmm (dddmm.mmmm for longitude).
// Four minute decimals keep the resolution under 0.2 m so jitter survives encoding.
func ToNMEACoord(dec float64, isLat bool) (string, string) {
	dir := "N"
	if !isLat {
		dir = "E"
	}
	if dec < 0 {
		dec = -dec
		if isLat {
			dir = "S"
		} else {
			dir = "W"
		}
	}
	deg := int(dec)
	min := math.Round((dec-float64(deg))*60*1e4) / 1e4
	if min >= 60 {
		deg++
		min = 0
	}
	if isLat {
		return fmt.Sprintf("%02d%07.4f", deg, min), dir
	}
	return fmt.Sprintf("%03d%07.4f", deg, min), dir
}

// NMEASentences renders a fix as a $GPRMC and a $GPGGA sentence, checksummed
// and without line terminators.
func NMEASentences(f model.Fix) []string {
	t := f.Time.UTC()
	latStr, latDir := ToNMEACoord(f.Lat, true)
	lonStr, lonDir := ToNMEACoord(f.Lon, false)
	hms := t.Format("150405.00")

	rmc := fmt.Sprintf("GPRMC,%s,A,%s,%s,%s,%s,%.2f,%.2f,%s,,,A",
		hms, latStr, latDir, lonStr, lonDir, f.Speed*knotsPerMS, f.Bearing, t.Format("020106"))

	hdop := f.Accuracy / uereMetres
	if hdop <= 0 {
		hdop = 1
	}
	gga := fmt.Sprintf("GPGGA,%s,%s,%s,%s,%s,1,08,%.1f,%.1f,M,0.0,M,,",
		hms, latStr, latDir, lonStr, lonDir, hdop, f.Altitude)

	return []string{frame(rmc), frame(gga)}
}

func frame(body string) string {
	return "$" + body + "*" + nmea.Checksum(body)
}
