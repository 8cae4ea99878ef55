package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/sha3"
)

const (
	// KeyWords is the number of 32-bit words in a shared key.
	KeyWords = 8

	// TagWords is the number of key words forming the signature tag.
	TagWords = 4

	// KeyHexLen is the length of a shared key's hex encoding.
	KeyHexLen = KeyWords * 8
)

// ErrInvalidKey is returned when a key encoding cannot be parsed.
var ErrInvalidKey = errors.New("invalid shared key encoding")

// SharedKey is the rotating 256-bit alliance secret. The lower four words
// feed the word cipher; the upper four form the signature tag embedded in
// every sealed message. A key is immutable once parsed.
type SharedKey [KeyWords]uint32

// ParseSharedKey parses the 64-hex-digit external key representation.
func ParseSharedKey(s string) (*SharedKey, error) {
	if len(s) != KeyHexLen {
		return nil, fmt.Errorf("%w: got %d hex digits, want %d", ErrInvalidKey, len(s), KeyHexLen)
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	var k SharedKey
	for i := range k {
		k[i] = binary.BigEndian.Uint32(raw[i*4:])
	}
	return &k, nil
}

// String returns the 64-hex-digit external representation.
func (k *SharedKey) String() string {
	raw := make([]byte, KeyWords*4)
	for i, w := range k {
		binary.BigEndian.PutUint32(raw[i*4:], w)
	}
	return hex.EncodeToString(raw)
}

// Equal compares two keys in constant time. A nil key equals only nil.
func (k *SharedKey) Equal(other *SharedKey) bool {
	if k == nil || other == nil {
		return k == other
	}
	raw := make([]byte, 0, KeyWords*4)
	rawOther := make([]byte, 0, KeyWords*4)
	for i := range k {
		raw = binary.BigEndian.AppendUint32(raw, k[i])
		rawOther = binary.BigEndian.AppendUint32(rawOther, other[i])
	}
	return subtle.ConstantTimeCompare(raw, rawOther) == 1
}

// Tag returns the signature half of the key (words 4..7).
func (k *SharedKey) Tag() [TagWords]uint32 {
	var tag [TagWords]uint32
	copy(tag[:], k[TagWords:])
	return tag
}

// cipherWord selects a cipher key word; only the lower half participates.
func (k *SharedKey) cipherWord(i uint32) uint32 {
	return k[i&3]
}

// MarshalText implements encoding.TextMarshaler for persisted key records.
func (k *SharedKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *SharedKey) UnmarshalText(text []byte) error {
	parsed, err := ParseSharedKey(string(text))
	if err != nil {
		return err
	}
	*k = *parsed
	return nil
}

// DeriveSharedKey derives a shared key from seed material using SHA3-256.
func DeriveSharedKey(seed []byte) *SharedKey {
	h := sha3.New256()
	h.Write([]byte("allysync-shared-key-v1"))
	h.Write(seed)
	sum := h.Sum(nil)

	var k SharedKey
	for i := range k {
		k[i] = binary.BigEndian.Uint32(sum[i*4:])
	}
	return &k
}

// NewRandomKey mints a fresh shared key from the system entropy source.
func NewRandomKey() (*SharedKey, error) {
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("read entropy: %w", err)
	}
	return DeriveSharedKey(seed), nil
}
