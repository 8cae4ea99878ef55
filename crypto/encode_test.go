package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeWords(t *testing.T) {
	cases := []string{
		"",
		"a",
		"ab",
		"hello world",
		"odd",
		"four",
		"unicode: ☺ ☹ ⚔",
		"astral: 𝔸𝔹ℂ 🦀",
	}

	for _, s := range cases {
		require.Equal(t, s, DecodeWords(EncodeWords(s)), "plain codec: %q", s)
		require.Equal(t, s, DecodeWordsSafe(EncodeWordsSafe(s)), "safe codec: %q", s)
	}
}

func TestEncodePacksHighUnitFirst(t *testing.T) {
	words := EncodeWords("ab")
	require.Equal(t, []uint32{uint32('a')<<16 | uint32('b')}, words)
}

func TestOddLengthPadding(t *testing.T) {
	words := EncodeWords("abc")
	require.Len(t, words, 2)
	require.Equal(t, uint32('c')<<16|padUnit, words[1])
	require.Equal(t, "abc", DecodeWords(words))
}

func TestSafeEncodingShiftsControlCharacters(t *testing.T) {
	s := "line1\nline2\ttab\x00nul"

	plain := EncodeWords(s)
	safe := EncodeWordsSafe(s)
	require.NotEqual(t, plain, safe)

	for _, w := range safe {
		for _, u := range []uint16{uint16(w >> 16), uint16(w)} {
			require.False(t, u < 0x20 || u == 0x7F || (u >= 0xD800 && u <= 0xDFFF),
				"unit %#x is not transport safe", u)
		}
	}
	require.Equal(t, s, DecodeWordsSafe(safe))
}

func TestSafeEncodingShiftsSurrogates(t *testing.T) {
	s := "crab: 🦀" // encodes to a surrogate pair
	safe := EncodeWordsSafe(s)
	for _, w := range safe {
		for _, u := range []uint16{uint16(w >> 16), uint16(w)} {
			require.False(t, u >= 0xD800 && u <= 0xDFFF, "surrogate half %#x leaked", u)
		}
	}
	require.Equal(t, s, DecodeWordsSafe(safe))
}

func TestMarshalUnmarshalWords(t *testing.T) {
	words := []uint32{0xDEADBEEF, 0x00000001, 0xFFFFFFFF}
	data := MarshalWords(words)
	require.Len(t, data, 12)

	back, err := UnmarshalWords(data)
	require.NoError(t, err)
	require.Equal(t, words, back)

	_, err = UnmarshalWords(data[:5])
	require.ErrorIs(t, err, ErrFraming)
}
