// Package x10 implements the X10 powerline home-automation line protocol:
// the event model, the half-cycle bit codec, and the interface facade that
// applications use to send and receive X10 events through a transceiver.
package x10

import "fmt"

// Code is a 4-bit X10 house or unit code as carried on the wire. House
// letters A-P and unit numbers 1-16 are encoded into this representation
// via HouseCode and UnitCode; the table is fixed by the X10 protocol and
// is not alphabetical or numerical.
type Code uint8

// x10Codes is the canonical house/unit encoding table, indexed by
// house letter (A=0..P=15) or unit number (1=0..16=15).
var x10Codes = [16]Code{0x6, 0xE, 0x2, 0xA, 0x1, 0x9, 0x5, 0xD, 0x7, 0xF, 0x3, 0xB, 0x0, 0x8, 0x4, 0xC}

var x10CodesRev = func() map[Code]int {
	m := make(map[Code]int, 16)
	for i, c := range x10Codes {
		m[c] = i
	}
	return m
}()

// HouseCode encodes a house letter 'A'..'P' (case-insensitive) into its
// wire Code.
func HouseCode(letter byte) (Code, error) {
	l := letter
	if l >= 'a' && l <= 'p' {
		l -= 'a' - 'A'
	}
	if l < 'A' || l > 'P' {
		return 0, fmt.Errorf("x10: invalid house letter %q", letter)
	}
	return x10Codes[l-'A'], nil
}

// UnitCode encodes a unit number 1..16 into its wire Code.
func UnitCode(n int) (Code, error) {
	if n < 1 || n > 16 {
		return 0, fmt.Errorf("x10: unit number %d out of range 1..16", n)
	}
	return x10Codes[n-1], nil
}

// HouseLetter decodes a wire Code back into its house letter.
func HouseLetter(c Code) (byte, error) {
	i, ok := x10CodesRev[c&0xF]
	if !ok {
		return 0, fmt.Errorf("x10: invalid house code 0x%X", c)
	}
	return 'A' + byte(i), nil
}

// UnitNumber decodes a wire Code back into its unit number.
func UnitNumber(c Code) (int, error) {
	i, ok := x10CodesRev[c&0xF]
	if !ok {
		return 0, fmt.Errorf("x10: invalid unit code 0x%X", c)
	}
	return i + 1, nil
}

// MustHouseCode is HouseCode for callers who already know the letter is valid.
func MustHouseCode(letter byte) Code {
	c, err := HouseCode(letter)
	if err != nil {
		panic(err)
	}
	return c
}

// MustUnitCode is UnitCode for callers who already know the number is valid.
func MustUnitCode(n int) Code {
	c, err := UnitCode(n)
	if err != nil {
		panic(err)
	}
	return c
}
