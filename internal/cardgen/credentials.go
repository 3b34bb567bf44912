package cardgen

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strconv"
)

// DefaultBIN is the issuer prefix of every card produced by Generator.
const DefaultBIN = 400_000

const (
	minAccountID = 100_000_000
	maxAccountID = 999_999_999
	minPIN       = 1000
	maxPIN       = 9999
)

// Generator mints card numbers and PINs from an entropy source.
// It performs no uniqueness check; collisions are detected by the store on insert.
type Generator struct {
	entropy io.Reader
}

// NewGenerator returns a Generator reading from entropy, or from crypto/rand when nil.
func NewGenerator(entropy io.Reader) *Generator {
	if entropy == nil {
		entropy = rand.Reader
	}
	return &Generator{entropy: entropy}
}

// GenerateCredentials returns a fresh card number and PIN.
func (g *Generator) GenerateCredentials() (number, pin string, err error) {
	number, err = g.GenerateCard()
	if err != nil {
		return "", "", err
	}
	pin, err = g.GeneratePIN()
	if err != nil {
		return "", "", err
	}
	return number, pin, nil
}

// GenerateCard returns DefaultBIN, a 9-digit account identifier and its checksum digit.
func (g *Generator) GenerateCard() (string, error) {
	accountID, err := g.between(minAccountID, maxAccountID)
	if err != nil {
		return "", fmt.Errorf("account identifier: %w", err)
	}
	checksum := ComputeChecksum(DefaultBIN, int(accountID))
	return fmt.Sprintf("%d%d%d", DefaultBIN, accountID, checksum), nil
}

// GeneratePIN returns a 4-digit PIN without a leading zero.
func (g *Generator) GeneratePIN() (string, error) {
	pin, err := g.between(minPIN, maxPIN)
	if err != nil {
		return "", fmt.Errorf("pin: %w", err)
	}
	return strconv.FormatInt(pin, 10), nil
}

// between draws uniformly from [lo, hi].
func (g *Generator) between(lo, hi int64) (int64, error) {
	n, err := rand.Int(g.entropy, big.NewInt(hi-lo+1))
	if err != nil {
		return 0, err
	}
	return lo + n.Int64(), nil
}
