package crypto

import "errors"

var (
	// ErrDecryptFailed reports a signature-tag mismatch after decryption.
	// It does not distinguish a wrong key from corrupted ciphertext.
	ErrDecryptFailed = errors.New("signature tag mismatch after decryption")

	// ErrSealedTooShort reports a sealed message without room for the tag.
	ErrSealedTooShort = errors.New("sealed message shorter than signature tag")
)

// Seal signs plaintext with the key's tag words, encrypts the result, and
// returns the ciphertext words. The payload text goes through the safe
// encoding so it survives text-only transports after decryption.
func Seal(key *SharedKey, plaintext string) []uint32 {
	payload := EncodeWordsSafe(plaintext)
	words := make([]uint32, TagWords+len(payload))
	tag := key.Tag()
	copy(words, tag[:])
	copy(words[TagWords:], payload)
	EncryptWords(words, key)
	return words
}

// Open decrypts a sealed message and verifies the embedded signature tag.
// The input slice is not modified. A tag mismatch returns ErrDecryptFailed;
// a message too short to carry a tag returns ErrSealedTooShort.
func Open(key *SharedKey, sealed []uint32) (string, error) {
	if len(sealed) < TagWords {
		return "", ErrSealedTooShort
	}

	words := make([]uint32, len(sealed))
	copy(words, sealed)
	DecryptWords(words, key)

	tag := key.Tag()
	for i := range tag {
		if words[i] != tag[i] {
			return "", ErrDecryptFailed
		}
	}
	return DecodeWordsSafe(words[TagWords:]), nil
}
