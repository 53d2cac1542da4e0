package models

import (
	"errors"
	"fmt"
	"math/bits"
)

var (
	ErrBitsetLength    = errors.New("bitset: byte length does not match bit count")
	ErrBitsetSpareBits = errors.New("bitset: spare bits set")
)

// Bitset is a fixed-length bit vector laid out the way a bitfield payload is:
// bit 0 is the high bit of the first byte.
type Bitset struct {
	data []byte
	n    int
}

func NewBitset(n int) Bitset {
	if n < 0 {
		panic(fmt.Sprintf("bitset: negative length %d", n))
	}
	return Bitset{data: make([]byte, BitsetByteLen(n)), n: n}
}

// BitsetFromBytes copies b into a Bitset of n bits.
func BitsetFromBytes(b []byte, n int) (Bitset, error) {
	if n < 0 || len(b) != BitsetByteLen(n) {
		return Bitset{}, ErrBitsetLength
	}
	if rem := n % 8; rem != 0 && b[len(b)-1]&(0xff>>rem) != 0 {
		return Bitset{}, ErrBitsetSpareBits
	}
	data := make([]byte, len(b))
	copy(data, b)
	return Bitset{data: data, n: n}, nil
}

// BitsetByteLen is the number of bytes needed to hold n bits.
func BitsetByteLen(n int) int {
	return (n + 7) / 8
}

func (s Bitset) Len() int {
	return s.n
}

func (s Bitset) Get(i int) bool {
	s.check(i)
	return s.data[i/8]&(0x80>>(i%8)) != 0
}

func (s Bitset) Set(i int) {
	s.check(i)
	s.data[i/8] |= 0x80 >> (i % 8)
}

func (s Bitset) Clear(i int) {
	s.check(i)
	s.data[i/8] &^= 0x80 >> (i % 8)
}

func (s Bitset) Count() int {
	c := 0
	for _, b := range s.data {
		c += bits.OnesCount8(b)
	}
	return c
}

func (s Bitset) All() bool {
	return s.Count() == s.n
}

// Bytes returns the wire representation. The slice aliases the set.
func (s Bitset) Bytes() []byte {
	return s.data
}

func (s Bitset) check(i int) {
	if i < 0 || i >= s.n {
		panic(fmt.Sprintf("bitset: index %d out of range [0,%d)", i, s.n))
	}
}
