package random

import (
	"crypto/rand"
	"encoding/binary"
	"math/big"
)

const letters = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Code returns a human friendly join code.
func Code(length int) string {
	return pickFromSet(letters, length)
}

// Seed returns a non-negative high entropy seed for a deterministic generator.
func Seed() int64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		n, err := rand.Int(rand.Reader, big.NewInt(1<<62))
		if err != nil {
			return 1
		}
		return n.Int64()
	}
	return int64(binary.LittleEndian.Uint64(b[:]) >> 1)
}

func pickFromSet(set string, length int) string {
	if length <= 0 {
		return ""
	}
	max := big.NewInt(int64(len(set)))
	runes := make([]byte, length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			runes[i] = set[0]
			continue
		}
		runes[i] = set[n.Int64()]
	}
	return string(runes)
}
