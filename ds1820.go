// Copyright 2025 The DS1820 Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds1820

import (
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"

	"github.com/embedded-go/ds1820/onewire"
)

// Family is the device family from the first ROM byte.
type Family byte

const (
	// DS18S20 is the 9-bit part (also the old DS1820); readings are
	// refined through the count-remain registers.
	DS18S20 Family = 0x10
	// DS18B20 is the 9..12-bit configurable part.
	DS18B20 Family = 0x28
	// DS1822 behaves like the DS18B20 with reduced accuracy.
	DS1822 Family = 0x22
)

func (f Family) String() string {
	switch f {
	case DS18S20:
		return "DS18S20"
	case DS18B20:
		return "DS18B20"
	case DS1822:
		return "DS1822"
	default:
		return "unknown"
	}
}

// Function commands of the DS1820 family, datasheet p.11.
const (
	cmdConvertT        = 0x44
	cmdWriteScratchpad = 0x4e
	cmdReadScratchpad  = 0xbe
)

var (
	// ErrNoDevice is returned by Begin when the bus search finds no device.
	ErrNoDevice = errors.New("ds1820: no device found on the bus")
	// ErrAddressCRC is returned by Begin when the enumerated ROM code
	// fails its CRC, typically from bus noise during the search.
	ErrAddressCRC = errors.New("ds1820: invalid ROM address CRC")
	// ErrUnsupportedFamily is returned by Begin when the device found is
	// not a DS1820-family sensor.
	ErrUnsupportedFamily = errors.New("ds1820: device is not a DS1820 family sensor")
	// ErrScratchpadCRC means the scratchpad read was corrupted; the
	// returned temperature must not be used.
	ErrScratchpadCRC = errors.New("ds1820: invalid scratchpad CRC")
	// ErrNotPresent means no sensor has been identified yet; call Begin
	// or construct with NewModel.
	ErrNotPresent = errors.New("ds1820: no sensor identified")
)

// Opts contains options to pass to the constructors.
type Opts struct {
	// SettleDelay is the bus recovery time applied around search-state
	// resets in Begin.
	SettleDelay time.Duration
	// MatchROM addresses the device by its ROM code instead of skip-ROM
	// broadcast, so the driver works with more than one device on the
	// bus. Only effective after a successful Begin, since the ROM code
	// is learned by the search.
	MatchROM bool
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{SettleDelay: 250 * time.Millisecond}

// Dev is a handle to one DS1820-family sensor on a 1-Wire bus.
//
// The bus is borrowed, not owned: several Dev instances may share one bus
// master as long as the caller serializes all operations across them.
type Dev struct {
	bus     onewire.Bus
	opts    Opts
	present bool
	family  Family
	addr    [8]byte
}

// New returns a driver bound to the bus whose device is not yet known.
// Begin must be called to search the bus and identify the sensor.
//
// Passing nil opts selects DefaultOpts.
func New(bus onewire.Bus, opts *Opts) *Dev {
	if opts == nil {
		opts = &DefaultOpts
	}
	o := *opts
	if o.SettleDelay == 0 {
		o.SettleDelay = DefaultOpts.SettleDelay
	}
	return &Dev{bus: bus, opts: o}
}

// NewModel returns a driver for a known sensor model, skipping the bus
// search entirely. model is 'S' or 's' for the DS18S20, 'B' or 'b' for the
// DS18B20/DS1822. Meant for buses with exactly one device of a known type
// where the search overhead is undesirable; Begin must not be called.
func NewModel(bus onewire.Bus, model byte, opts *Opts) (*Dev, error) {
	d := New(bus, opts)
	switch model {
	case 'S', 's':
		d.family = DS18S20
	case 'B', 'b':
		d.family = DS18B20
	default:
		return nil, fmt.Errorf("ds1820: unknown model %q", model)
	}
	d.present = true
	return d, nil
}

// Begin searches the bus for a sensor and records its identity.
//
// It resets the search state, lets the bus settle, takes the first device
// the search yields, validates the ROM code CRC and classifies the family
// byte. On any failure the driver stays not-present and the state-mutating
// calls remain no-ops.
func (d *Dev) Begin() error {
	d.bus.ResetSearch()
	sleep(d.opts.SettleDelay)
	var addr [8]byte
	if !d.bus.Search(addr[:]) {
		d.bus.ResetSearch()
		sleep(d.opts.SettleDelay)
		return ErrNoDevice
	}
	if onewire.CRC8(addr[:7]) != addr[7] {
		return ErrAddressCRC
	}
	switch Family(addr[0]) {
	case DS18S20, DS18B20, DS1822:
	default:
		return ErrUnsupportedFamily
	}
	d.addr = addr
	d.family = Family(addr[0])
	d.present = true
	return nil
}

// Present reports whether a sensor has been identified, either by Begin or
// by constructing with NewModel.
func (d *Dev) Present() bool {
	return d.present
}

// Family returns the detected device family. Only meaningful when Present
// reports true.
func (d *Dev) Family() Family {
	return d.family
}

// Address returns the 8-byte ROM code recorded by Begin. It is zero for
// drivers constructed with NewModel.
func (d *Dev) Address() [8]byte {
	return d.addr
}

func (d *Dev) String() string {
	if !d.present {
		return "DS1820{not present}"
	}
	return fmt.Sprintf("%s{%x}", d.family, d.addr)
}

// selectDevice addresses the sensor after a reset pulse.
func (d *Dev) selectDevice() {
	if d.opts.MatchROM {
		d.bus.Select(d.addr[:])
	} else {
		d.bus.SelectSkip()
	}
}

// readScratchpad fetches the 9-byte scratchpad. The CRC byte is returned
// uninspected; callers that care validate it.
func (d *Dev) readScratchpad() (spad [9]byte) {
	d.bus.Reset()
	d.selectDevice()
	d.bus.WriteByte(cmdReadScratchpad)
	for i := range spad {
		spad[i] = d.bus.ReadByte()
	}
	return spad
}

// SetResolution sets the conversion resolution in bits, clamped to [9,12].
//
// It is a no-op unless a sensor is present. The DS18S20 always converts at
// its native 9 bits (there is no configuration register to write), so any
// request on it is silently ignored. No verification read-back is
// performed; confirm with Resolution if strict confirmation is required.
func (d *Dev) SetResolution(bits int) {
	if !d.present || d.family == DS18S20 {
		return
	}
	if bits < 9 {
		bits = 9
	}
	if bits > 12 {
		bits = 12
	}
	spad := d.readScratchpad()
	cfg := spad[4]&^0x60 | byte(bits-9)<<5
	d.bus.Reset()
	d.selectDevice()
	d.bus.WriteByte(cmdWriteScratchpad)
	d.bus.WriteByte(spad[2]) // TH, preserved
	d.bus.WriteByte(spad[3]) // TL, preserved
	d.bus.WriteByte(cfg)
}

// Resolution returns the currently configured conversion resolution in
// bits, read back from the device. The DS18S20 reports its native 9 bits.
func (d *Dev) Resolution() (int, error) {
	if !d.present {
		return 0, ErrNotPresent
	}
	if d.family == DS18S20 {
		return 9, nil
	}
	spad := d.readScratchpad()
	if !onewire.CheckCRC(spad[:]) {
		return 0, ErrScratchpadCRC
	}
	return 9 + int((spad[4]&0x60)>>5), nil
}

// StartConversion triggers a temperature conversion and returns without
// waiting for it. The caller must wait at least ConversionTime before
// reading; reading earlier yields stale scratchpad contents. No-op unless
// a sensor is present.
func (d *Dev) StartConversion() {
	if !d.present {
		return
	}
	d.bus.Reset()
	d.selectDevice()
	d.bus.WriteByte(cmdConvertT)
}

// ConversionTime returns the worst-case duration of one conversion at the
// given resolution, datasheet p.3: 93.75ms at 9 bits, doubling per bit up
// to 750ms at 12 bits. Out-of-range values are clamped.
func ConversionTime(resolutionBits int) time.Duration {
	if resolutionBits < 9 {
		resolutionBits = 9
	}
	if resolutionBits > 12 {
		resolutionBits = 12
	}
	return 93750 * time.Microsecond << uint(resolutionBits-9)
}

// ConversionTime returns the worst-case conversion duration for the
// device as currently configured. The DS18S20 always needs the full 750ms
// bound: the count-remain refinement depends on a completed conversion
// even though the native sampling is 9-bit. If the resolution cannot be
// read back, the 12-bit bound is returned.
func (d *Dev) ConversionTime() time.Duration {
	if !d.present {
		return 0
	}
	if d.family == DS18S20 {
		return ConversionTime(12)
	}
	bits, err := d.Resolution()
	if err != nil {
		return ConversionTime(12)
	}
	return ConversionTime(bits)
}

// Read returns the temperature of the last conversion in degrees Celsius.
//
// This is the optimistic variant: it returns 0 when no sensor is present
// and does not validate the scratchpad CRC. Use Temperature when
// corruption must be detected.
func (d *Dev) Read() float64 {
	if !d.present {
		return 0
	}
	spad := d.readScratchpad()
	return toCelsius(decode(d.family, &spad))
}

// Temperature returns the temperature of the last conversion, validating
// the scratchpad CRC. On error the zero value is returned alongside so a
// caller's last-known-good reading is never overwritten by a corrupted
// one.
func (d *Dev) Temperature() (physic.Temperature, error) {
	if !d.present {
		return 0, ErrNotPresent
	}
	spad := d.readScratchpad()
	if !onewire.CheckCRC(spad[:]) {
		return 0, ErrScratchpadCRC
	}
	w := decode(d.family, &spad)
	return physic.Temperature(int16(w))*physic.Kelvin/256 + physic.ZeroCelsius, nil
}

// resolutionMask zeroes the low raw bits that are undefined below the
// active resolution, indexed by the R1:R0 field of the configuration byte.
var resolutionMask = [4]uint16{
	0xfff8, // 9 bits
	0xfffc, // 10 bits
	0xfffe, // 11 bits
	0xffff, // 12 bits
}

// decode turns a scratchpad into the Q7.8 fixed-point temperature word:
// 1 sign bit, 7 integer bits, 8 fractional bits, two's complement.
func decode(f Family, spad *[9]byte) uint16 {
	raw := uint16(spad[1])<<8 | uint16(spad[0])
	if f == DS18S20 {
		// Native 9-bit value in 0.5°C steps, promoted toward the
		// 12-bit frame.
		raw <<= 3
		if spad[7] == 0x10 {
			// Genuine silicon reports count-per-°C of 0x10; the
			// count-remain register then recovers the fraction at
			// 12-bit equivalent precision.
			raw = raw&0xfff0 + 12 - uint16(spad[6])
		}
	} else {
		raw &= resolutionMask[(spad[4]&0x60)>>5]
	}
	return raw << 4
}

// toCelsius converts the Q7.8 word to degrees Celsius, 1/256° granularity.
func toCelsius(w uint16) float64 {
	if w&0x8000 != 0 {
		return -float64(^w+1) / 256
	}
	return float64(w) / 256
}

// Sense implements physic.SenseEnv: it runs one full conversion cycle,
// blocking for the conversion time.
func (d *Dev) Sense(e *physic.Env) error {
	if !d.present {
		return ErrNotPresent
	}
	wait := d.ConversionTime()
	d.StartConversion()
	sleep(wait)
	t, err := d.Temperature()
	if err != nil {
		return err
	}
	e.Temperature = t
	return nil
}

// SenseContinuous implements physic.SenseEnv.
func (d *Dev) SenseContinuous(time.Duration) (<-chan physic.Env, error) {
	return nil, errors.New("ds1820: not implemented")
}

// Precision implements physic.SenseEnv.
func (d *Dev) Precision(e *physic.Env) {
	e.Temperature = physic.Kelvin / 16
}

// Halt implements conn.Resource.
func (d *Dev) Halt() error {
	return nil
}

var sleep = time.Sleep

var _ conn.Resource = &Dev{}
var _ physic.SenseEnv = &Dev{}
