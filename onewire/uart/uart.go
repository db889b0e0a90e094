// Copyright 2025 The DS1820 Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package uart implements a 1-Wire bus master on top of a UART.
//
// A UART configured for 8 data bits, no parity and one stop bit can
// generate 1-Wire waveforms: the reset pulse is a 0xf0 character at 9600
// baud, and at 115200 baud every transmitted character forms one read or
// write time slot. Writing 0x00 produces a 0 slot, 0xff a 1 slot; during a
// read slot the addressed device pulls the line low to send a 0, which the
// UART receives as a value below 0xff. See Maxim application note 214.
//
// The data line must be wired to both RX and TX through an open-drain
// buffer (or a diode from TX) with the usual 4.7kΩ pull-up.
//
// The onewire.Bus contract is errorless; serial failures latch into the
// bus and are reported by Err, after which Reset returns false and reads
// return idle-bus values.
package uart

import (
	"fmt"
	"time"

	"github.com/tarm/serial"

	"github.com/embedded-go/ds1820/onewire"
)

const (
	resetBaud = 9600
	slotBaud  = 115200
)

// Bus is a 1-Wire bus master backed by a serial port.
type Bus struct {
	device string
	port   *serial.Port
	err    error

	// ROM search state, see searchNext.
	lastDiscrepancy int
	lastDevice      bool
	rom             [8]byte
}

// New opens the named serial port and returns a bus master on it.
func New(device string) (*Bus, error) {
	b := &Bus{device: device}
	if err := b.open(slotBaud); err != nil {
		return nil, err
	}
	return b, nil
}

// Err returns the first serial failure seen since the bus was opened.
func (b *Bus) Err() error {
	return b.err
}

// Close releases the serial port.
func (b *Bus) Close() error {
	if b.port == nil {
		return nil
	}
	err := b.port.Close()
	b.port = nil
	return err
}

func (b *Bus) open(baud int) error {
	if b.port != nil {
		if err := b.port.Close(); err != nil {
			return err
		}
		b.port = nil
	}
	p, err := serial.OpenPort(&serial.Config{
		Name:        b.device,
		Baud:        baud,
		ReadTimeout: 3 * time.Second,
		Size:        serial.DefaultSize,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
	})
	if err != nil {
		return err
	}
	b.port = p
	return nil
}

func (b *Bus) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// exchange transmits tx and reads back the same number of characters. On a
// shared RX/TX line every transmitted character is echoed, modulated by
// whatever the devices did to the bus during the slot.
func (b *Bus) exchange(tx, rx []byte) bool {
	if b.err != nil || b.port == nil {
		return false
	}
	_ = b.port.Flush()
	if _, err := b.port.Write(tx); err != nil {
		b.fail(err)
		return false
	}
	for i := range rx {
		n, err := b.port.Read(rx[i : i+1])
		if err != nil {
			b.fail(err)
			return false
		}
		if n != 1 {
			b.fail(fmt.Errorf("onewire-uart: expected 1 byte, got %d", n))
			return false
		}
	}
	return true
}

// Reset sends a reset pulse and samples the presence answer. The port is
// switched to 9600 baud for the duration of the pulse so a single 0xf0
// character spans the 480µs reset low time.
func (b *Bus) Reset() bool {
	if b.err != nil {
		return false
	}
	if err := b.open(resetBaud); err != nil {
		b.fail(err)
		return false
	}
	var echo [1]byte
	present := false
	if b.exchange([]byte{0xf0}, echo[:]) {
		// 0xf0 back means nobody shortened the high phase: no presence
		// pulse. 0x00 would mean the line is stuck low.
		present = echo[0] != 0xf0 && echo[0] != 0x00
	}
	if err := b.open(slotBaud); err != nil {
		b.fail(err)
		return false
	}
	return present && b.err == nil
}

func (b *Bus) writeBit(bit byte) {
	tx := byte(0x00)
	if bit != 0 {
		tx = 0xff
	}
	var echo [1]byte
	b.exchange([]byte{tx}, echo[:])
}

func (b *Bus) readBit() byte {
	var echo [1]byte
	if !b.exchange([]byte{0xff}, echo[:]) {
		return 1
	}
	if echo[0] == 0xff {
		return 1
	}
	return 0
}

// WriteByte writes one byte, least significant bit first, one time slot
// per bit.
func (b *Bus) WriteByte(data byte) {
	var tx, echo [8]byte
	for i := range tx {
		if data>>uint(i)&1 != 0 {
			tx[i] = 0xff
		}
	}
	b.exchange(tx[:], echo[:])
}

// ReadByte reads one byte, least significant bit first.
func (b *Bus) ReadByte() byte {
	var tx, echo [8]byte
	for i := range tx {
		tx[i] = 0xff
	}
	if !b.exchange(tx[:], echo[:]) {
		return 0xff
	}
	var data byte
	for i, slot := range echo {
		if slot == 0xff {
			data |= 1 << uint(i)
		}
	}
	return data
}

// SelectSkip addresses all devices on the bus at once.
func (b *Bus) SelectSkip() {
	b.WriteByte(onewire.SkipROM)
}

// Select addresses the device with the given 8-byte ROM code.
func (b *Bus) Select(addr []byte) {
	b.WriteByte(onewire.MatchROM)
	for _, a := range addr[:8] {
		b.WriteByte(a)
	}
}

// ResetSearch rewinds the device enumeration so the next Search starts a
// fresh scan of the bus.
func (b *Bus) ResetSearch() {
	b.lastDiscrepancy = 0
	b.lastDevice = false
	b.rom = [8]byte{}
}

// Search advances the ROM search and fills addr with the next discovered
// 8-byte ROM code. It returns false once all devices have been enumerated
// or when no device answers the reset pulse.
//
// This is the binary tree walk from Maxim application note 187: at every
// bit position all participating devices send their address bit and its
// complement, the master picks a branch and only devices matching it stay
// in the search.
func (b *Bus) Search(addr []byte) bool {
	if b.lastDevice || len(addr) < 8 {
		return false
	}
	if !b.Reset() {
		b.ResetSearch()
		return false
	}
	b.WriteByte(onewire.SearchROM)

	lastZero := 0
	for pos := 1; pos <= 64; pos++ {
		idBit := b.readBit()
		cmpBit := b.readBit()
		if idBit == 1 && cmpBit == 1 {
			// No device is participating anymore.
			b.ResetSearch()
			return false
		}
		var dir byte
		if idBit != cmpBit {
			// All remaining devices agree on this bit.
			dir = idBit
		} else {
			// Discrepancy: devices disagree. Replay the previous
			// choice up to the last branch point, then take the
			// 1-branch there and the 0-branch beyond it.
			switch {
			case pos < b.lastDiscrepancy:
				dir = b.rom[(pos-1)/8] >> uint((pos-1)%8) & 1
			case pos == b.lastDiscrepancy:
				dir = 1
			default:
				dir = 0
			}
			if dir == 0 {
				lastZero = pos
			}
		}
		if dir == 1 {
			b.rom[(pos-1)/8] |= 1 << uint((pos-1)%8)
		} else {
			b.rom[(pos-1)/8] &^= 1 << uint((pos-1)%8)
		}
		b.writeBit(dir)
	}
	if b.err != nil {
		b.ResetSearch()
		return false
	}

	b.lastDiscrepancy = lastZero
	if b.lastDiscrepancy == 0 {
		b.lastDevice = true
	}
	copy(addr, b.rom[:])
	return true
}

var _ onewire.Bus = &Bus{}
