package lib

import (
	"crypto/cipher"
	"fmt"

	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/proof"
	"go.dedis.ch/kyber/v3/shuffle"
	"go.dedis.ch/kyber/v3/sign/schnorr"

	"github.com/sequentech/strand"
)

// Ballot is a single encrypted ballot, an ElGamal pair over the suite.
type Ballot struct {
	Alpha kyber.Point
	Beta  kyber.Point
}

// Box is a wrapper around a list of encrypted ballots.
type Box struct {
	Ballots []*Ballot
}

// Mix is one re-encryption mix layer: the shuffled ballots, the proof
// of correct shuffling, and the identity of the trustee that produced
// it. The signature over the trustee's public key makes each layer
// attributable.
type Mix struct {
	Ballots []*Ballot
	Proof   []byte

	Trustee   string
	PublicKey kyber.Point
	Signature []byte
}

// Partial holds one trustee's partial decryption of every ballot of the
// final mix.
type Partial struct {
	Points []kyber.Point

	Trustee string
	Index   int
}

// Split separates the ElGamal pairs of a list of ballots into lists.
func Split(ballots []*Ballot) (alpha, beta []kyber.Point) {
	n := len(ballots)
	alpha, beta = make([]kyber.Point, n), make([]kyber.Point, n)
	for i := range ballots {
		alpha[i] = ballots[i].Alpha
		beta[i] = ballots[i].Beta
	}
	return
}

// Combine creates a list of ballots from two lists of points.
func Combine(alpha, beta []kyber.Point) []*Ballot {
	ballots := make([]*Ballot, len(alpha))
	for i := range ballots {
		ballots[i] = &Ballot{Alpha: alpha[i], Beta: beta[i]}
	}
	return ballots
}

// NewMix shuffles and re-encrypts the given ballots under the election
// key and proves it did so correctly. The random stream is explicit, so
// a seeded stream yields a reproducible mix for audit replays. The
// trustee claims the layer by signing with its key-share secret; the
// coordinator matches the signing key against the trustee's published
// share, so a layer cannot be attributed to anyone else.
func NewMix(key kyber.Point, ballots []*Ballot, trustee string,
	private kyber.Scalar, rand cipher.Stream) (*Mix, error) {

	if len(ballots) < 2 {
		return nil, fmt.Errorf("mix: not enough (< 2) ballots to shuffle")
	}

	a, b := Split(ballots)
	v, w, prover := shuffle.Shuffle(strand.Suite, nil, key, a, b, rand)
	prf, err := proof.HashProve(strand.Suite, mixProofTag, prover)
	if err != nil {
		return nil, err
	}

	mix := &Mix{
		Ballots:   Combine(v, w),
		Proof:     prf,
		Trustee:   trustee,
		PublicKey: strand.Suite.Point().Mul(private, nil),
	}
	data, err := mix.PublicKey.MarshalBinary()
	if err != nil {
		return nil, err
	}
	sig, err := schnorr.Sign(strand.Suite, private, data)
	if err != nil {
		return nil, err
	}
	mix.Signature = sig
	return mix, nil
}

// VerifyMix checks that a mix is a correct re-encryption shuffle of the
// previous layer and that its trustee signature holds.
func VerifyMix(key kyber.Point, previous []*Ballot, mix *Mix) error {
	if len(mix.Ballots) != len(previous) {
		return fmt.Errorf("mix: ballot count changed from %d to %d",
			len(previous), len(mix.Ballots))
	}

	data, err := mix.PublicKey.MarshalBinary()
	if err != nil {
		return err
	}
	if err := schnorr.Verify(strand.Suite, mix.PublicKey, data, mix.Signature); err != nil {
		return fmt.Errorf("mix: bad trustee signature: %v", err)
	}

	x, y := Split(previous)
	v, w := Split(mix.Ballots)
	return verifyShuffle(key, x, y, v, w, mix.Proof)
}

// NewPartial computes the trustee's partial decryption of every ballot
// in the final mix using its share of the joint private key. The share
// never leaves the trustee; only the resulting points do.
func NewPartial(secret *SharedSecret, trustee string, mix *Mix) *Partial {
	points := make([]kyber.Point, len(mix.Ballots))
	for i, ballot := range mix.Ballots {
		points[i] = Decrypt(secret.V, ballot.Alpha, ballot.Beta)
	}
	return &Partial{
		Points:  points,
		Trustee: trustee,
		Index:   secret.Index,
	}
}
