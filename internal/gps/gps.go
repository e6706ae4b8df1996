// Package gps reads NMEA streams back into fixes. It is the receiving end of
// a virtual GPS receiver and is used to verify what the nmea provider writes.
package gps

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	nmea "github.com/adrianmo/go-nmea"

	"LocMock/internal/device"
	"LocMock/internal/model"
)

// Decoder turns NMEA sentences into fixes. RMC supplies the date, speed and
// course; GGA supplies altitude and HDOP. Every sentence that carries a
// position yields a fix built from the latest values of both.
type Decoder struct {
	date    nmea.Date
	last    model.Fix
	hasDate bool
}

// Decode parses one sentence. ok is false for valid sentences that carry no
// usable position (other sentence types, void RMC, GGA without a fix).
func (d *Decoder) Decode(line string) (fix model.Fix, ok bool, err error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return model.Fix{}, false, nil
	}
	s, err := nmea.Parse(line)
	if err != nil {
		return model.Fix{}, false, err
	}
	switch m := s.(type) {
	case nmea.RMC:
		if m.Validity != nmea.ValidRMC {
			return model.Fix{}, false, nil
		}
		if m.Date.Valid {
			d.date, d.hasDate = m.Date, true
		}
		d.last.Lat, d.last.Lon = m.Latitude, m.Longitude
		d.last.Speed = m.Speed / 1.943844
		d.last.Bearing = m.Course
		d.last.Time = d.stamp(m.Time)
	case nmea.GGA:
		if m.FixQuality == nmea.Invalid {
			return model.Fix{}, false, nil
		}
		d.last.Lat, d.last.Lon = m.Latitude, m.Longitude
		d.last.Altitude = m.Altitude
		d.last.Accuracy = m.HDOP * 5
		d.last.Time = d.stamp(m.Time)
	default:
		return model.Fix{}, false, nil
	}
	d.last.Identity = model.IdentityGPS
	return d.last, true, nil
}

func (d *Decoder) stamp(t nmea.Time) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	y, mo, day := 1970, time.January, 1
	if d.hasDate {
		y, mo, day = 2000+d.date.YY, time.Month(d.date.MM), d.date.DD
	}
	return time.Date(y, mo, day, t.Hour, t.Minute, t.Second, t.Millisecond*int(time.Millisecond), time.UTC)
}

// Read decodes fixes from r until EOF or ctx is done. Malformed sentences are
// reported to onErr (if set) and skipped.
func Read(ctx context.Context, r io.Reader, out chan<- model.Fix, onErr func(line string, err error)) error {
	var d Decoder
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fix, ok, err := d.Decode(sc.Text())
		if err != nil {
			if onErr != nil {
				onErr(sc.Text(), err)
			}
			continue
		}
		if !ok {
			continue
		}
		select {
		case out <- fix:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return sc.Err()
}

// Stream decodes fixes from a device until ctx is done. Read timeouts are
// retried; other read errors end the stream.
func Stream(ctx context.Context, dev device.Device, out chan<- model.Fix, onErr func(line string, err error)) error {
	var d Decoder
	for ctx.Err() == nil {
		line, err := dev.ReadLine(200 * time.Millisecond)
		if err != nil {
			if errors.Is(err, device.ErrTimeout) {
				continue
			}
			return fmt.Errorf("read gps: %w", err)
		}
		fix, ok, err := d.Decode(line)
		if err != nil {
			if onErr != nil {
				onErr(line, err)
			}
			continue
		}
		if !ok {
			continue
		}
		select {
		case out <- fix:
		case <-ctx.Done():
		}
	}
	return ctx.Err()
}

// FirstFix waits up to timeout for the first fix on dev.
func FirstFix(dev device.Device, timeout time.Duration) (model.Fix, error) {
	var d Decoder
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		line, err := dev.ReadLine(time.Until(deadline))
		if err != nil {
			if errors.Is(err, device.ErrTimeout) {
				continue
			}
			return model.Fix{}, err
		}
		if fix, ok, err := d.Decode(line); err == nil && ok {
			return fix, nil
		}
	}
	return model.Fix{}, fmt.Errorf("no gps fix within %s", timeout)
}
