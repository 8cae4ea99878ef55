package crypto

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf16"
)

// padUnit is the code unit appended to odd-length strings before packing.
const padUnit = 0x20

// Unit ranges rewritten by the safe encoding. Control characters and
// surrogate halves do not survive transports that require well-formed
// printable text, so they are shifted into the private use area before
// packing and shifted back on unpacking. Text already using the reserved
// slice of the private use area is outside the safe codec's domain.
const (
	safeControlBase   = 0xE000 // 0x0000-0x001F land here
	safeDeleteUnit    = 0xE020 // 0x007F lands here
	safeSurrogateBase = 0xE100 // 0xD800-0xDFFF land here
	safeSurrogateEnd  = safeSurrogateBase + 0xDFFF - 0xD800
)

// ErrFraming is returned when segment bytes cannot frame whole words.
var ErrFraming = errors.New("byte length is not a multiple of the word size")

// EncodeWords packs a string into words, two UTF-16 code units per word
// with the first unit in the upper 16 bits. Odd-length strings are padded
// with one trailing space.
func EncodeWords(s string) []uint32 {
	return packUnits(utf16.Encode([]rune(s)))
}

// DecodeWords is the inverse of EncodeWords. A trailing space in the final
// unit slot is taken to be odd-length padding and stripped.
func DecodeWords(words []uint32) string {
	return string(utf16.Decode(unpackUnits(words)))
}

// EncodeWordsSafe is EncodeWords with the safe unit shift applied first.
func EncodeWordsSafe(s string) []uint32 {
	units := utf16.Encode([]rune(s))
	for i, u := range units {
		units[i] = safeShift(u)
	}
	return packUnits(units)
}

// DecodeWordsSafe is the inverse of EncodeWordsSafe.
func DecodeWordsSafe(words []uint32) string {
	units := unpackUnits(words)
	for i, u := range units {
		units[i] = safeUnshift(u)
	}
	return string(utf16.Decode(units))
}

func packUnits(units []uint16) []uint32 {
	if len(units)%2 == 1 {
		units = append(units, padUnit)
	}
	words := make([]uint32, len(units)/2)
	for i := range words {
		words[i] = uint32(units[2*i])<<16 | uint32(units[2*i+1])
	}
	return words
}

func unpackUnits(words []uint32) []uint16 {
	units := make([]uint16, 0, len(words)*2)
	for _, w := range words {
		units = append(units, uint16(w>>16), uint16(w))
	}
	if n := len(units); n > 0 && units[n-1] == padUnit {
		units = units[:n-1]
	}
	return units
}

func safeShift(u uint16) uint16 {
	switch {
	case u < 0x20:
		return safeControlBase + u
	case u == 0x7F:
		return safeDeleteUnit
	case u >= 0xD800 && u <= 0xDFFF:
		return safeSurrogateBase + (u - 0xD800)
	}
	return u
}

func safeUnshift(u uint16) uint16 {
	switch {
	case u >= safeControlBase && u < safeControlBase+0x20:
		return u - safeControlBase
	case u == safeDeleteUnit:
		return 0x7F
	case u >= safeSurrogateBase && u <= safeSurrogateEnd:
		return 0xD800 + (u - safeSurrogateBase)
	}
	return u
}

// MarshalWords serializes words big-endian for segment storage.
func MarshalWords(words []uint32) []byte {
	out := make([]byte, 0, len(words)*4)
	for _, w := range words {
		out = binary.BigEndian.AppendUint32(out, w)
	}
	return out
}

// UnmarshalWords parses big-endian words from segment bytes.
func UnmarshalWords(data []byte) ([]uint32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrFraming, len(data))
	}
	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = binary.BigEndian.Uint32(data[i*4:])
	}
	return words, nil
}
