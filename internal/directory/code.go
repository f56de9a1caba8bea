package directory

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// CodeGenerator produces one-time verification codes from a fixed alphabet.
type CodeGenerator struct {
	alphabet string
	length   int
}

// NewCodeGenerator builds a generator for codes of the given length drawn from alphabet.
func NewCodeGenerator(alphabet string, length int) CodeGenerator {
	return CodeGenerator{alphabet: alphabet, length: length}
}

// Next returns a fresh code, guaranteed to differ from prev so a rotation
// always invalidates the previous code. prev may be empty.
func (g CodeGenerator) Next(prev string) (string, error) {
	if g.length <= 0 || len(g.alphabet) < 2 {
		return "", fmt.Errorf("code generator misconfigured: length=%d alphabet=%d", g.length, len(g.alphabet))
	}
	max := big.NewInt(int64(len(g.alphabet)))
	buf := make([]byte, g.length)
	for {
		for i := range buf {
			n, err := rand.Int(rand.Reader, max)
			if err != nil {
				return "", fmt.Errorf("read random: %w", err)
			}
			buf[i] = g.alphabet[n.Int64()]
		}
		code := string(buf)
		if code != prev {
			return code, nil
		}
	}
}

// Length reports the configured code length.
func (g CodeGenerator) Length() int {
	return g.length
}
