/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package rng implements the xoshiro256** 1.0 generator (Blackman & Vigna).
// Schedule generation needs identical sequences for identical seeds across
// platforms and releases, which rules out math/rand: its algorithm is not
// part of any compatibility promise. The 256-bit state is taken directly
// from a SHA-256 digest, so a digest fully determines the stream.
package rng

import "encoding/binary"

// RNG is a xoshiro256** generator. Not safe for concurrent use.
type RNG struct {
	s [4]uint64
}

// New seeds a generator from a 32-byte digest.
func New(digest [32]byte) *RNG {
	r := &RNG{}
	for i := 0; i < 4; i++ {
		r.s[i] = binary.BigEndian.Uint64(digest[i*8:])
	}
	// xoshiro must not start from the all-zero state. Unreachable for real
	// SHA-256 output, but cheap to guard.
	if r.s[0]|r.s[1]|r.s[2]|r.s[3] == 0 {
		r.s[0] = 0x9E3779B97F4A7C15
	}
	return r
}

func rotl(x uint64, k uint) uint64 {
	return (x << k) | (x >> (64 - k))
}

// Uint64 returns the next value in the stream.
func (r *RNG) Uint64() uint64 {
	result := rotl(r.s[1]*5, 7) * 9

	t := r.s[1] << 17
	r.s[2] ^= r.s[0]
	r.s[3] ^= r.s[1]
	r.s[1] ^= r.s[2]
	r.s[0] ^= r.s[3]
	r.s[2] ^= t
	r.s[3] = rotl(r.s[3], 45)

	return result
}

// Float64 returns a value in [0, 1) using the high 53 bits.
func (r *RNG) Float64() float64 {
	return float64(r.Uint64()>>11) / (1 << 53)
}

// IntN returns a uniform value in [0, n). Rejection sampling keeps the
// distribution exact instead of modulo-biased.
func (r *RNG) IntN(n int) int {
	if n <= 0 {
		panic("rng: IntN with non-positive n")
	}
	max := uint64(n)
	limit := (^uint64(0) / max) * max
	for {
		v := r.Uint64()
		if v < limit {
			return int(v % max)
		}
	}
}

// Pick returns a uniform index into a slice of length n, or -1 when empty.
func (r *RNG) Pick(n int) int {
	if n == 0 {
		return -1
	}
	return r.IntN(n)
}
