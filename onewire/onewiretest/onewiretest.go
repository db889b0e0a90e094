// Copyright 2025 The DS1820 Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package onewiretest is meant to be used to test drivers over a fake
// 1-Wire bus.
package onewiretest

import "github.com/embedded-go/ds1820/onewire"

// Playback implements onewire.Bus with scripted responses and records
// everything the driver under test does with the bus.
//
// Search hands out Devices in order. ReadByte pops from Reads and returns
// 0xff once the script is exhausted, which is what an idle 1-Wire bus
// reads as.
type Playback struct {
	// Script.
	Present bool      // response to every reset pulse
	Devices [][8]byte // ROM codes handed out by Search
	Reads   []byte    // bytes handed out by ReadByte

	// Recording.
	Writes       []byte    // every byte written
	Resets       int       // reset pulses issued
	Skips        int       // skip-ROM selects issued
	Selects      [][8]byte // ROM codes passed to Select
	Searches     int       // Search calls
	SearchResets int       // ResetSearch calls

	searchPos int
	readPos   int
}

func (p *Playback) Reset() bool {
	p.Resets++
	return p.Present
}

func (p *Playback) ResetSearch() {
	p.SearchResets++
	p.searchPos = 0
}

func (p *Playback) Search(addr []byte) bool {
	p.Searches++
	if p.searchPos >= len(p.Devices) {
		return false
	}
	copy(addr, p.Devices[p.searchPos][:])
	p.searchPos++
	return true
}

func (p *Playback) SelectSkip() {
	p.Skips++
}

func (p *Playback) Select(addr []byte) {
	var rom [8]byte
	copy(rom[:], addr)
	p.Selects = append(p.Selects, rom)
}

func (p *Playback) WriteByte(b byte) {
	p.Writes = append(p.Writes, b)
}

func (p *Playback) ReadByte() byte {
	if p.readPos >= len(p.Reads) {
		return 0xff
	}
	b := p.Reads[p.readPos]
	p.readPos++
	return b
}

// Ops reports whether the driver touched the bus at all.
func (p *Playback) Ops() int {
	return p.Resets + p.Skips + p.Searches + p.SearchResets + len(p.Selects) + len(p.Writes) + p.readPos
}

var _ onewire.Bus = &Playback{}
