// Package random abstracts identifier generation so tests can pin the
// IDs that teams, credentials and trade proposals receive.
package random

import (
	"crypto/rand"
	"math/big"
)

// Random generates random values for identifiers
type Random interface {
	// Intn returns a random int in [0, n)
	Intn(n int) int

	// String generates a random string of length runes drawn from alphabet
	String(length int, alphabet string) string
}

type cryptoRandom struct{}

// New returns a Random backed by crypto/rand
func New() Random {
	return cryptoRandom{}
}

func (cryptoRandom) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}

func (r cryptoRandom) String(length int, alphabet string) string {
	if length <= 0 || len(alphabet) == 0 {
		return ""
	}
	out := make([]byte, length)
	for i := range out {
		out[i] = alphabet[r.Intn(len(alphabet))]
	}
	return string(out)
}
