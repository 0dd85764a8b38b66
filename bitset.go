package main

// bitSet is a byte-packed, bit-per-code buffer in the layout the
// EVIOCGBIT capability ioctls fill in: bit n lives in byte n/8 at
// position n%8.
type bitSet []byte

func newBitSet(bits int) bitSet {
	return make(bitSet, bits/8+1)
}

func (b bitSet) isSet(n int) bool {
	if n/8 >= len(b) {
		return false
	}
	return b[n/8]&(1<<(n%8)) != 0
}
