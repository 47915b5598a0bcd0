package strategy

// NormalizeKey sizes the UTF-8 bytes of key to one of the legal lengths.
//
// A key whose byte length already matches a legal length is used as is.
// Anything else is truncated or zero-padded to the smallest legal length, so
// the same key string always yields the same key bytes.
func NormalizeKey(key string, legal ...int) []byte {
	raw := []byte(key)
	if len(legal) == 0 {
		out := make([]byte, len(raw))
		copy(out, raw)
		return out
	}

	smallest := legal[0]
	for _, n := range legal {
		if len(raw) == n {
			out := make([]byte, n)
			copy(out, raw)
			return out
		}
		if n < smallest {
			smallest = n
		}
	}

	out := make([]byte, smallest)
	copy(out, raw)
	return out
}

// FoldKey derives size key bytes from key the way MySQL's AES_ENCRYPT does:
// the key bytes are XORed into a zeroed buffer, wrapping around every size
// bytes. Keys shorter than size are zero-padded; a key of exactly size bytes
// is used as is.
func FoldKey(key string, size int) []byte {
	out := make([]byte, size)
	if size <= 0 {
		return out
	}
	for i := 0; i < len(key); i++ {
		out[i%size] ^= key[i]
	}
	return out
}
