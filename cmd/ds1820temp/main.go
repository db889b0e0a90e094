// Copyright 2025 The DS1820 Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// ds1820temp polls a DS1820-family sensor on a UART-wired 1-Wire bus and
// logs the readings.
package main

import (
	"flag"
	"time"

	prefixed "github.com/BertoldVdb/logrus-prefixed-formatter"
	"github.com/sirupsen/logrus"

	"github.com/embedded-go/ds1820"
	"github.com/embedded-go/ds1820/onewire/uart"
)

func newLogger(level logrus.Level) *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(level)
	formatter := new(prefixed.TextFormatter)
	formatter.TimestampFormat = "2006-01-02 15:04:05"
	formatter.FullTimestamp = true
	logger.SetFormatter(formatter)
	return logrus.NewEntry(logger)
}

func main() {
	port := flag.String("port", "/dev/ttyUSB0", "serial port wired as 1-Wire master")
	model := flag.String("model", "", "sensor model, S or B; skips the bus search when set")
	resolution := flag.Int("resolution", 12, "conversion resolution in bits, 9 to 12")
	interval := flag.Duration("interval", 5*time.Second, "delay between readings")
	loglevel := flag.Int("loglevel", int(logrus.InfoLevel), "log verbosity, 0 to 6")
	flag.Parse()

	log := newLogger(logrus.Level(*loglevel))

	bus, err := uart.New(*port)
	if err != nil {
		log.WithError(err).Fatal("opening 1-Wire master")
	}
	defer bus.Close()

	var dev *ds1820.Dev
	if *model != "" {
		dev, err = ds1820.NewModel(bus, (*model)[0], nil)
		if err != nil {
			log.WithError(err).Fatal("bad -model")
		}
	} else {
		dev = ds1820.New(bus, nil)
		if err := dev.Begin(); err != nil {
			log.WithError(err).Fatal("no sensor found")
		}
	}
	log.WithField("sensor", dev.String()).Info("sensor identified")

	dev.SetResolution(*resolution)
	wait := dev.ConversionTime()
	log.WithField("wait", wait).Debug("conversion time")

	for {
		dev.StartConversion()
		time.Sleep(wait)
		t, err := dev.Temperature()
		if err != nil {
			log.WithError(err).Warn("reading failed")
		} else {
			log.Infof("temperature %.4f°C", t.Celsius())
		}
		if err := bus.Err(); err != nil {
			log.WithError(err).Fatal("bus failure")
		}
		time.Sleep(*interval)
	}
}
