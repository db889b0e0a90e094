// Copyright 2025 The DS1820 Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ds1820 drives Dallas/Maxim DS1820-family 1-Wire temperature
// sensors: the DS18S20 (and old DS1820) with its fixed 9-bit conversion
// refined through the count-remain registers, and the DS18B20/DS1822 with
// configurable 9 to 12 bit resolution.
//
// The driver borrows a 1-Wire bus master through the onewire.Bus contract
// and owns one logical sensor on it. Typical use:
//
//	bus, err := uart.New("/dev/ttyUSB0")
//	if err != nil {
//		...
//	}
//	dev := ds1820.New(bus, nil)
//	if err := dev.Begin(); err != nil {
//		...
//	}
//	for {
//		dev.StartConversion()
//		time.Sleep(dev.ConversionTime())
//		t, err := dev.Temperature()
//		...
//	}
//
// Conversion completion is not signaled by the device; the caller waits at
// least ConversionTime between StartConversion and the read. Several
// drivers may share one bus master for distinct devices, but all bus
// operations must be serialized by the caller.
package ds1820
