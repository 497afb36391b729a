// Copyright (c) Aptos
// SPDX-License-Identifier: Apache-2.0

// Package nibble implements 4-bit nibbles and nibble paths, the unit of
// addressing in the state Merkle trie. A path of n nibbles identifies a
// node n levels below the trie root.
//
// Nibble paths are dealt with in two encodings: the textual HEX form,
// one lowercase hex digit per nibble, used at API boundaries and by
// inspection tooling; and the PACKED form, two nibbles per byte with the
// low half of the last byte zeroed for odd-length paths, used inside
// on-disk node keys. Parse and String convert to and from the HEX form
// and are exact inverses of each other.
package nibble

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidEncoding is returned when a textual nibble path contains a
// character outside [0-9a-fA-F]. Parsing fails atomically: no partial
// path is ever returned alongside it.
var ErrInvalidEncoding = errors.New("invalid hex encoding")

// Nibble is a 4-bit unit, the fan-out step of the state Merkle trie.
type Nibble byte

const hexDigits = "0123456789abcdef"

// FromHexDigit converts a single hex character to a Nibble.
func FromHexDigit(c byte) (Nibble, error) {
	switch {
	case c >= '0' && c <= '9':
		return Nibble(c - '0'), nil
	case c >= 'a' && c <= 'f':
		return Nibble(c-'a') + 10, nil
	case c >= 'A' && c <= 'F':
		return Nibble(c-'A') + 10, nil
	default:
		return 0, fmt.Errorf("%w: %q is not a hex digit", ErrInvalidEncoding, c)
	}
}

// String returns the lowercase hex digit of n.
func (n Nibble) String() string {
	if n > 15 {
		return fmt.Sprintf("invalid-nibble(%d)", byte(n))
	}
	return string(hexDigits[n])
}

// Path is an ordered sequence of nibbles addressing a trie node by its
// path from the root. The zero value is the empty path (the root).
type Path struct {
	numNibbles int
	// packed holds two nibbles per byte, high half first. For paths of
	// odd length the low half of the last byte is zero.
	packed []byte
}

// Parse converts a hex string, one character per nibble and
// case-insensitive, into a Path. The empty string yields the empty path.
// Any non-hex character fails with ErrInvalidEncoding.
func Parse(src string) (Path, error) {
	var p Path
	for i := 0; i < len(src); i++ {
		n, err := FromHexDigit(src[i])
		if err != nil {
			return Path{}, fmt.Errorf("nibble path %q: %w", src, err)
		}
		p.Push(n)
	}
	return p, nil
}

// FromBytes returns the even-length path covering every nibble of key,
// high halves first. This is the full trie path of a hashed state key.
func FromBytes(key []byte) Path {
	return Path{
		numNibbles: len(key) * 2,
		packed:     append([]byte(nil), key...),
	}
}

// FromPacked reconstructs a path of numNibbles nibbles from its packed
// representation. It rejects packed slices of the wrong length and, for
// odd-length paths, a nonzero low half in the last byte.
func FromPacked(packed []byte, numNibbles int) (Path, error) {
	if numNibbles < 0 || len(packed) != (numNibbles+1)/2 {
		return Path{}, fmt.Errorf("%w: %d packed bytes cannot hold %d nibbles", ErrInvalidEncoding, len(packed), numNibbles)
	}
	if numNibbles%2 == 1 && packed[len(packed)-1]&0x0f != 0 {
		return Path{}, fmt.Errorf("%w: odd path with a nonzero trailing half-byte", ErrInvalidEncoding)
	}
	return Path{
		numNibbles: numNibbles,
		packed:     append([]byte(nil), packed...),
	}, nil
}

// Len returns the number of nibbles in the path.
func (p *Path) Len() int {
	return p.numNibbles
}

// Odd reports whether the path has an odd number of nibbles.
func (p *Path) Odd() bool {
	return p.numNibbles%2 == 1
}

// Push appends a nibble to the path.
func (p *Path) Push(n Nibble) {
	if p.numNibbles%2 == 0 {
		p.packed = append(p.packed, byte(n)<<4)
	} else {
		p.packed[len(p.packed)-1] |= byte(n)
	}
	p.numNibbles++
}

// Get returns the i-th nibble of the path.
func (p *Path) Get(i int) Nibble {
	if i < 0 || i >= p.numNibbles {
		panic(fmt.Sprintf("nibble index %d out of range [0, %d)", i, p.numNibbles))
	}
	b := p.packed[i/2]
	if i%2 == 0 {
		return Nibble(b >> 4)
	}
	return Nibble(b & 0x0f)
}

// Bytes returns the packed representation of the path. For odd-length
// paths the low half of the last byte is zero. The returned slice is
// shared with the path and must not be modified.
func (p *Path) Bytes() []byte {
	return p.packed
}

// String returns the lowercase hex form of the path, the exact inverse
// of Parse.
func (p *Path) String() string {
	var sb strings.Builder
	sb.Grow(p.numNibbles)
	for i := 0; i < p.numNibbles; i++ {
		sb.WriteByte(hexDigits[p.Get(i)])
	}
	return sb.String()
}

// Equal reports whether two paths contain the same nibble sequence.
func (p *Path) Equal(other *Path) bool {
	if p.numNibbles != other.numNibbles {
		return false
	}
	for i := range p.packed {
		if p.packed[i] != other.packed[i] {
			return false
		}
	}
	return true
}
