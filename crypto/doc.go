// Package crypto implements the symmetric word cipher protecting alliance
// sync payloads, together with its text and byte encodings.
//
// The scheme is a lightweight obfuscation and integrity-tag construction
// for a low-stakes, frequently-rotated-key setting. It is deliberately not
// an AEAD: wrong-key detection relies on a signature tag embedded in the
// plaintext, not on the cipher itself.
//
// # Shared key
//
// A SharedKey is 256 bits distributed out-of-band as 64 hex digits. The
// lower four words drive the block cipher; the upper four are the signature
// tag prepended to every sealed message.
//
// # Word cipher
//
// EncryptWords and DecryptWords operate in place on arrays of unsigned
// 32-bit words with wraparound arithmetic. The round count is 16 + 52/n for
// an n-word message, so short messages receive many more mixing rounds than
// long ones. Decryption runs the identical rounds in reverse and is an
// exact inverse for any message of length >= 1.
//
// # Text encodings
//
// EncodeWords packs a string two UTF-16 code units per word, padding
// odd-length strings with one trailing space. The Safe variants shift
// control characters and surrogate halves into the Unicode private use
// area first, so decoded payload text survives transports that only accept
// well-formed printable text.
//
// # Sealing
//
// Seal prepends the key's tag words to the encoded payload and encrypts
// the whole array; Open decrypts and verifies the tag, reporting
// ErrDecryptFailed on mismatch. A tag mismatch cannot distinguish a stale
// key from corrupted ciphertext; that ambiguity is resolved by the protocol
// layer, never here.
package crypto
