package crypto

import (
	"testing"
	"unicode/utf8"
)

// safeCodecDomain filters fuzz inputs the codecs do not claim to preserve:
// invalid UTF-8, a trailing space (indistinguishable from odd-length
// padding), and text in the private-use slice reserved by the safe shift.
func safeCodecDomain(s string) bool {
	if !utf8.ValidString(s) {
		return false
	}
	if len(s) > 0 && s[len(s)-1] == ' ' {
		return false
	}
	for _, r := range s {
		if r >= safeControlBase && r <= safeSurrogateEnd {
			return false
		}
	}
	return true
}

func FuzzSealOpen(f *testing.F) {
	f.Add("", "seed one")
	f.Add("hello allies", "seed two")
	f.Add("{\"econ\":{\"credits\":1200}}", "k")
	f.Add("control\x01chars\x1f", "rotation seed")
	f.Add("astral \U0001F980 pair", "seed")

	f.Fuzz(func(t *testing.T, plaintext string, keySeed string) {
		if !safeCodecDomain(plaintext) {
			t.Skip()
		}

		key := DeriveSharedKey([]byte(keySeed))
		sealed := Seal(key, plaintext)

		opened, err := Open(key, sealed)
		if err != nil {
			t.Fatalf("open with matching key failed: %v", err)
		}
		if opened != plaintext {
			t.Fatalf("round trip mismatch: got %q, want %q", opened, plaintext)
		}

		// Invariant: a different key must be rejected by the tag check.
		wrong := DeriveSharedKey([]byte(keySeed + "-wrong"))
		if _, err := Open(wrong, sealed); err == nil {
			t.Fatal("open with wrong key succeeded")
		}
	})
}

func FuzzEncodeDecodeWords(f *testing.F) {
	f.Add("")
	f.Add("abc")
	f.Add("\x00\x01\x02")
	f.Add("\U0001F980\U0001D538")

	f.Fuzz(func(t *testing.T, s string) {
		if !safeCodecDomain(s) {
			t.Skip()
		}

		if got := DecodeWords(EncodeWords(s)); got != s {
			t.Fatalf("plain codec: got %q, want %q", got, s)
		}
		if got := DecodeWordsSafe(EncodeWordsSafe(s)); got != s {
			t.Fatalf("safe codec: got %q, want %q", got, s)
		}
	})
}
