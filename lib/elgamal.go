package lib

import (
	"crypto/cipher"
	"errors"

	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/proof"
	"go.dedis.ch/kyber/v3/shuffle"

	"github.com/sequentech/strand"
)

// mixProofTag is the protocol name bound into every mix proof.
const mixProofTag = "strand-mix"

// Encrypt performs the ElGamal encryption algorithm.
func Encrypt(public kyber.Point, message []byte, rand cipher.Stream) (K, C kyber.Point) {
	M := strand.Suite.Point().Embed(message, rand)

	// ElGamal-encrypt the point to produce ciphertext (K,C).
	k := strand.Suite.Scalar().Pick(rand)      // ephemeral private key
	K = strand.Suite.Point().Mul(k, nil)       // ephemeral DH public key
	S := strand.Suite.Point().Mul(k, public)   // ephemeral DH shared secret
	C = S.Add(S, M)                            // message blinded with secret
	return
}

// Decrypt performs the ElGamal decryption algorithm.
func Decrypt(private kyber.Scalar, K, C kyber.Point) kyber.Point {
	S := strand.Suite.Point().Mul(private, K) // regenerate shared secret
	return strand.Suite.Point().Sub(C, S)     // use to un-blind the message
}

// verifyShuffle checks the Neff shuffle proof carried by a mix against
// the ElGamal pairs it claims to re-encrypt.
func verifyShuffle(public kyber.Point, x, y, v, w []kyber.Point, prf []byte) error {
	if len(x) < 2 || len(v) < 2 {
		return errors.New("cannot verify a shuffle of less than 2 points")
	}
	verifier := shuffle.Verifier(strand.Suite, nil, public, x, y, v, w)
	return proof.HashVerify(strand.Suite, mixProofTag, verifier, prf)
}
