package cardgen

import (
	"bytes"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateCard_RoundTrip(t *testing.T) {
	g := NewGenerator(nil)
	for i := 0; i < 1000; i++ {
		pan, err := g.GenerateCard()
		require.NoError(t, err)
		require.Len(t, pan, PANLength)
		require.Equal(t, "400000", pan[:6])
		require.NotEqual(t, byte('0'), pan[6], "account identifier must not start with zero")
		require.True(t, IsValid(pan), "generated card %s must validate", pan)
	}
}

func TestGeneratePIN(t *testing.T) {
	g := NewGenerator(nil)
	for i := 0; i < 1000; i++ {
		pin, err := g.GeneratePIN()
		require.NoError(t, err)
		require.Len(t, pin, 4)
		n, err := strconv.Atoi(pin)
		require.NoError(t, err)
		require.GreaterOrEqual(t, n, minPIN)
		require.LessOrEqual(t, n, maxPIN)
	}
}

func TestGenerateCredentials(t *testing.T) {
	number, pin, err := NewGenerator(nil).GenerateCredentials()
	require.NoError(t, err)
	require.Len(t, number, 16)
	require.Len(t, pin, 4)
	require.True(t, IsValid(number))
}

func TestGenerator_Deterministic(t *testing.T) {
	// identical entropy yields identical credentials
	seed := bytes.Repeat([]byte{0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef}, 8)
	n1, p1, err := NewGenerator(bytes.NewReader(seed)).GenerateCredentials()
	require.NoError(t, err)
	n2, p2, err := NewGenerator(bytes.NewReader(seed)).GenerateCredentials()
	require.NoError(t, err)
	require.Equal(t, n1, n2)
	require.Equal(t, p1, p2)
	require.True(t, IsValid(n1))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestGenerator_EntropyError(t *testing.T) {
	_, _, err := NewGenerator(failingReader{}).GenerateCredentials()
	require.ErrorContains(t, err, "entropy exhausted")
}
