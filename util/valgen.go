// Some helpers using closures to generate test values
package valgen

// MakeConstGen returns a generator that always yields the same value.
func MakeConstGen(constant int) func() int {
	return func() int {
		return constant
	}
}

// MakeIncreasingGen returns a generator that counts up from start.
func MakeIncreasingGen(start int) func() int {
	current := start
	return func() int {
		current++
		return current
	}
}

// MakeCyclicGen returns a generator that counts 0..period-1 and wraps. Handy
// for filling byte tensors without saturating them.
func MakeCyclicGen(period int) func() int {
	current := -1
	return func() int {
		current = (current + 1) % period
		return current
	}
}

// FillBytes fills dst from a generator, truncating each value to a byte.
func FillBytes(dst []byte, gen func() int) {
	for i := range dst {
		dst[i] = byte(gen())
	}
}

// FillWords fills dst with little-endian 32-bit words from a generator.
func FillWords(dst []byte, gen func() int) {
	for i := 0; i+4 <= len(dst); i += 4 {
		v := uint32(gen())
		dst[i] = byte(v)
		dst[i+1] = byte(v >> 8)
		dst[i+2] = byte(v >> 16)
		dst[i+3] = byte(v >> 24)
	}
}
