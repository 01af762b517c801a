package lib

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.dedis.ch/kyber/v3/util/random"

	"github.com/sequentech/strand"
)

func TestElGamal(t *testing.T) {
	secret := strand.Suite.Scalar().Pick(random.New())
	public := strand.Suite.Point().Mul(secret, nil)
	message := []byte("strand")

	K, C := Encrypt(public, message, random.New())
	dec, _ := Decrypt(secret, K, C).Data()
	assert.Equal(t, message, dec)
}
