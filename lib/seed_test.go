package lib

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveSeed(t *testing.T) {
	seed := DeriveSeed("election-1", "session-1")
	assert.Equal(t, seed, DeriveSeed("election-1", "session-1"))
	assert.NotEqual(t, seed, DeriveSeed("election-1", "session-2"))
	assert.NotEqual(t, seed, DeriveSeed("election-2", "session-1"))

	// The separator keeps boundary-shifted inputs apart.
	assert.NotEqual(t, DeriveSeed("ab", "c"), DeriveSeed("a", "bc"))
}

func TestSeedStream(t *testing.T) {
	seed := DeriveSeed("election-1", "session-1")

	s1, s2 := seed.Stream(), seed.Stream()
	for i := 0; i < 100; i++ {
		assert.Equal(t, Intn(s1, 1000), Intn(s2, 1000))
	}

	other := DeriveSeed("election-1", "session-2").Stream()
	same := true
	replay := seed.Stream()
	for i := 0; i < 100; i++ {
		if Intn(replay, 1000) != Intn(other, 1000) {
			same = false
		}
	}
	assert.False(t, same)
}

func TestIntn(t *testing.T) {
	stream := DeriveSeed("scope", "nonce").Stream()
	for i := 0; i < 1000; i++ {
		v := Intn(stream, 7)
		assert.True(t, v >= 0 && v < 7)
	}
	assert.Equal(t, 0, Intn(stream, 1))
	assert.Panics(t, func() { Intn(stream, 0) })
}
