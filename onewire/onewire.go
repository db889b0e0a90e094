// Copyright 2025 The DS1820 Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package onewire defines the narrow 1-Wire bus capability a sensor driver
// borrows from a bus master.
//
// The contract is byte-level: the caller composes reset / select / command
// sequences itself, which is what the count-remain chips of the DS1820 family
// require. A single Bus may be shared by several drivers addressing distinct
// devices; callers must serialize all bus operations, no two drivers may
// interleave a reset/select/command sequence. None of the methods are safe
// for concurrent use.
package onewire

import "github.com/sigurn/crc8"

// ROM commands understood by every 1-Wire device.
const (
	SearchROM byte = 0xf0
	ReadROM   byte = 0x33
	MatchROM  byte = 0x55
	SkipROM   byte = 0xcc
)

// Bus is a 1-Wire bus master.
//
// Implementations keep the device enumeration state for Search between
// calls; ResetSearch rewinds it so the next Search starts a fresh scan.
type Bus interface {
	// Reset sends a bus reset pulse and reports whether at least one
	// device answered with a presence pulse.
	Reset() bool
	// ResetSearch clears the enumeration state for a fresh device scan.
	ResetSearch()
	// Search advances the device enumeration and fills addr with the next
	// 8-byte ROM code. It returns false when the enumeration is exhausted.
	// addr must be at least 8 bytes long.
	Search(addr []byte) bool
	// SelectSkip addresses the bus in broadcast (skip-ROM) mode. Only
	// valid when exactly one device is active on the bus.
	SelectSkip()
	// Select addresses one specific device by its 8-byte ROM code.
	Select(addr []byte)
	// WriteByte writes a single byte on the bus.
	WriteByte(b byte)
	// ReadByte reads a single byte from the bus.
	ReadByte() byte
}

var crcTable = crc8.MakeTable(crc8.CRC8_MAXIM)

// CRC8 returns the Dallas/Maxim CRC-8 (polynomial 0x31 reflected) of p.
// It is the checksum the DS1820 family uses for both ROM codes and
// scratchpad contents.
func CRC8(p []byte) byte {
	return crc8.Checksum(p, crcTable)
}

// CheckCRC reports whether the last byte of p is the CRC-8 of the bytes
// before it.
func CheckCRC(p []byte) bool {
	if len(p) == 0 {
		return false
	}
	return CRC8(p[:len(p)-1]) == p[len(p)-1]
}
