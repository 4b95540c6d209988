// Package auth hashes and generates receiver authenticators.
//
// Authenticators are stored one-way hashed. The stored form is printable so
// it can be inspected and compared at a SQL prompt: the SHA-256 digest is
// written as a fixed-width radix-93 number over printable ASCII minus space
// and backslash.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"math/big"
)

// Alphabet is every printable ASCII character except space and backslash,
// in ASCII order. It is used for both plaintext and hashed authenticators.
const Alphabet = "!\"#$%&'()*+,-./0123456789:;<=>?@ABCDEFGHIJKLMNOPQRSTUVWXYZ[]^_`abcdefghijklmnopqrstuvwxyz{|}~"

// Length is the number of Alphabet symbols needed to hold 256 bits:
// ceil(256 / log2(93)) = 40.
const Length = 40

var radix = big.NewInt(int64(len(Alphabet)))

// Hash returns the stored form of a plaintext authenticator.
func Hash(plain []byte) []byte {
	sum := sha256.Sum256(plain)
	n := new(big.Int).SetBytes(sum[:])
	rem := new(big.Int)

	out := make([]byte, Length)
	for i := Length - 1; i >= 0; i-- {
		n.QuoRem(n, radix, rem)
		out[i] = Alphabet[rem.Int64()]
	}
	return out
}

// HashString hashes the raw bytes of s.
func HashString(s string) []byte {
	return Hash([]byte(s))
}

// Generate returns a new random plaintext authenticator of Length symbols.
func Generate() ([]byte, error) {
	out := make([]byte, Length)
	max := big.NewInt(int64(len(Alphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return nil, fmt.Errorf("generate authenticator: %w", err)
		}
		out[i] = Alphabet[n.Int64()]
	}
	return out, nil
}
