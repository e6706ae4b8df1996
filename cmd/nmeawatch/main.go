// nmeawatch reads NMEA sentences from a serial device and prints the decoded
// fixes. Point it at the peer end of a virtual nmea provider to check what a
// GPS consumer would see.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"LocMock/internal/device"
	"LocMock/internal/gps"
	"LocMock/internal/model"
	"LocMock/internal/parser"
	"LocMock/internal/util"
)

func main() {
	dev := flag.String("dev", "/tmp/locmock-gps1", "serial device to read NMEA from")
	baud := flag.Int("baud", 9600, "baud rate")
	once := flag.Bool("once", false, "print the first fix and exit")
	wait := flag.Duration("wait", 10*time.Second, "how long -once waits for a fix")
	verbose := flag.Bool("v", false, "log malformed sentences")
	flag.Parse()

	level := "info"
	if *verbose {
		level = "debug"
	}
	logger, err := util.SetupLogger(model.LogConfig{Level: level}, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "setup logger: %v\n", err)
		os.Exit(1)
	}
	logger = logger.Named("nmeawatch")

	port, err := device.OpenSerial(*dev, *baud)
	if err != nil {
		if device.IsPermissionDenied(err) {
			logger.Fatal("no access to serial device, add your user to the dialout group", zap.String("dev", *dev))
		}
		logger.Fatal("open serial", zap.Error(err))
	}
	// ensure close on exit
	defer func() {
		if cerr := port.Close(); cerr != nil {
			logger.Warn("close serial", zap.Error(cerr))
		}
	}()

	if *once {
		fix, err := gps.FirstFix(port, *wait)
		if err != nil {
			logger.Error("no fix", zap.Error(err))
			return
		}
		printFix(fix)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("watching", zap.String("dev", *dev), zap.Int("baud", *baud))
	fixes := make(chan model.Fix, 16)
	done := make(chan error, 1)
	go func() {
		done <- gps.Stream(ctx, port, fixes, func(line string, err error) {
			logger.Debug("skipping sentence", zap.String("line", line), zap.Error(err))
		})
	}()

	for {
		select {
		case fix := <-fixes:
			printFix(fix)
		case err := <-done:
			if err != nil && ctx.Err() == nil {
				logger.Error("stream ended", zap.Error(err))
			}
			return
		}
	}
}

func printFix(f model.Fix) {
	fmt.Printf("%s  %s  acc=%.1fm alt=%.1fm speed=%.2fm/s\n",
		f.Time.Format("15:04:05.00"), parser.FormatCoordinates(f.Lat, f.Lon), f.Accuracy, f.Altitude, f.Speed)
}
