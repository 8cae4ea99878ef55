package crypto

// delta is the golden-ratio additive constant advanced once per round.
const delta = 0x9E3779B9

// cipherRounds returns the round count for an n-word message. Longer
// messages amortize mixing cost across words; the minimum is 17 rounds and
// a single-word message gets 68.
func cipherRounds(n int) uint32 {
	return uint32(16 + 52/n)
}

// mix combines a word with its two cyclic neighbors, the round sum, and one
// key word. All arithmetic wraps mod 2^32.
func mix(y, z, sum, k uint32) uint32 {
	return ((z>>5 ^ y<<2) + (y>>3 ^ z<<4)) ^ ((sum ^ y) + (k ^ z))
}

// EncryptWords encrypts v in place under key. Messages of any length >= 1
// are valid; the empty message is left untouched.
func EncryptWords(v []uint32, key *SharedKey) {
	n := len(v)
	if n == 0 {
		return
	}

	q := cipherRounds(n)
	if n == 1 {
		// A single word has no neighbor pair to mix; degrade to a keyed
		// running sum so the round count still holds and decryption stays
		// an exact inverse.
		var sum uint32
		for ; q > 0; q-- {
			sum += delta
			v[0] += sum ^ key.cipherWord((sum>>2)&3)
		}
		return
	}

	var sum uint32
	z := v[n-1]
	for ; q > 0; q-- {
		sum += delta
		e := (sum >> 2) & 3
		var p int
		var y uint32
		for p = 0; p < n-1; p++ {
			y = v[p+1]
			v[p] += mix(y, z, sum, key.cipherWord(uint32(p)&3^e))
			z = v[p]
		}
		y = v[0]
		v[n-1] += mix(y, z, sum, key.cipherWord(uint32(p)&3^e))
		z = v[n-1]
	}
}

// DecryptWords inverts EncryptWords in place: the same number of rounds in
// reverse order, subtracting the round constant instead of adding. A key
// mismatch produces unrelated output rather than an error; callers detect
// wrong keys through the signature tag, not here.
func DecryptWords(v []uint32, key *SharedKey) {
	n := len(v)
	if n == 0 {
		return
	}

	q := cipherRounds(n)
	if n == 1 {
		for sum := q * delta; sum != 0; sum -= delta {
			v[0] -= sum ^ key.cipherWord((sum>>2)&3)
		}
		return
	}

	y := v[0]
	for sum := q * delta; sum != 0; sum -= delta {
		e := (sum >> 2) & 3
		var p int
		var z uint32
		for p = n - 1; p > 0; p-- {
			z = v[p-1]
			v[p] -= mix(y, z, sum, key.cipherWord(uint32(p)&3^e))
			y = v[p]
		}
		z = v[n-1]
		v[0] -= mix(y, z, sum, key.cipherWord(e))
		y = v[0]
	}
}
