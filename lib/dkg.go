package lib

import (
	"crypto/cipher"
	"errors"

	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/share"
	"go.dedis.ch/kyber/v3/util/random"

	"github.com/sequentech/strand"
)

// SharedSecret represents one trustee's view of the distributed key:
// its index, its share of the joint private key, and the joint public
// key. No single party ever holds the full private key.
type SharedSecret struct {
	Index   int
	V       kyber.Scalar
	X       kyber.Point
	Commits []kyber.Point
}

// KeyShare is the public part of a trustee's deal: the Feldman
// commitments to its secret sharing polynomial. Commits[0] commits to
// the constant term and acts as the trustee's public key share.
type KeyShare struct {
	Commits []kyber.Point
}

// Public returns the trustee's public key share.
func (k *KeyShare) Public() kyber.Point {
	return k.Commits[0]
}

// Deal is one trustee's contribution to the joint key: a random secret
// sharing polynomial of degree threshold-1, committed to in the group.
// Shares carries one private sub-share per trustee, to be sent over the
// caller's secure channels; everything else is public.
type Deal struct {
	pri *share.PriPoly
	pub *share.PubPoly

	Commits []kyber.Point
	Shares  []*share.PriShare
}

// NewDeal creates a trustee's deal for n trustees with the given
// reconstruction threshold.
func NewDeal(threshold, n int, rand cipher.Stream) *Deal {
	pri := share.NewPriPoly(strand.Suite, threshold, nil, rand)
	pub := pri.Commit(nil)
	_, commits := pub.Info()
	return &Deal{
		pri:     pri,
		pub:     pub,
		Commits: commits,
		Shares:  pri.Shares(n),
	}
}

// KeyShare returns the public part of the deal, which the trustee
// submits to the key ceremony.
func (d *Deal) KeyShare() *KeyShare {
	return &KeyShare{Commits: d.Commits}
}

// Secret returns the constant term of the dealt polynomial. The
// trustee retains it to later prove consistency with its published
// share.
func (d *Deal) Secret() kyber.Scalar {
	return d.pri.Secret()
}

// AggregateSecret combines the sub-shares every dealer sent to the
// trustee at the given index into that trustee's share of the joint
// private key.
func AggregateSecret(index int, deals []*Deal) (*SharedSecret, error) {
	if len(deals) == 0 {
		return nil, errors.New("dkg: no deals to aggregate")
	}

	v := strand.Suite.Scalar().Zero()
	publics := make([]kyber.Point, len(deals))
	for i, deal := range deals {
		if index < 0 || index >= len(deal.Shares) {
			return nil, errors.New("dkg: share index out of range")
		}
		v = v.Add(v, deal.Shares[index].V)
		publics[i] = deal.Commits[0]
	}
	return &SharedSecret{
		Index:   index,
		V:       v,
		X:       AggregateKey(publics),
		Commits: publics,
	}, nil
}

// AggregateKey combines the dealers' public key shares into the joint
// election key. Point addition is associative and commutative, so the
// result does not depend on the order the shares arrived in.
func AggregateKey(publics []kyber.Point) kyber.Point {
	key := strand.Suite.Point().Null()
	for _, public := range publics {
		key = key.Add(key, public)
	}
	return key
}

// PublicShareOf evaluates the dealers' commitment polynomials at the
// given trustee index, yielding the public counterpart of that
// trustee's aggregated private share. Used to verify a restored key
// without the share itself ever travelling.
func PublicShareOf(index int, commitLists [][]kyber.Point) kyber.Point {
	public := strand.Suite.Point().Null()
	for _, commits := range commitLists {
		pub := share.NewPubPoly(strand.Suite, nil, commits)
		public = public.Add(public, pub.Eval(index).V)
	}
	return public
}

// RecoverPlaintexts recombines partial decryptions into the plaintext
// points of the final mix. Lagrange interpolation over any subset of
// size >= threshold yields the same result, so the tally does not
// depend on which trustees answered.
func RecoverPlaintexts(partials []*Partial, threshold, n int) ([]kyber.Point, error) {
	if len(partials) == 0 {
		return nil, errors.New("dkg: no partial decryptions")
	}

	points := make([]kyber.Point, len(partials[0].Points))
	for i := range points {
		shares := make([]*share.PubShare, 0, len(partials))
		for _, partial := range partials {
			if len(partial.Points) != len(points) {
				return nil, errors.New("dkg: inconsistent partial decryption length")
			}
			shares = append(shares, &share.PubShare{I: partial.Index, V: partial.Points[i]})
		}
		message, err := share.RecoverCommit(strand.Suite, shares, threshold, n)
		if err != nil {
			return nil, err
		}
		points[i] = message
	}
	return points, nil
}

// DKGSimulate runs a full local key generation among n trustees and
// returns their deals and shared secrets. Only tests and the demo CLI
// use it; production trustees run on separate machines and exchange
// deals through the caller's transport.
func DKGSimulate(n, threshold int) ([]*Deal, []*SharedSecret, error) {
	if threshold > n {
		return nil, nil, errors.New("dkg: threshold larger than trustee count")
	}

	deals := make([]*Deal, n)
	for i := range deals {
		deals[i] = NewDeal(threshold, n, random.New())
	}

	secrets := make([]*SharedSecret, n)
	for i := range secrets {
		secret, err := AggregateSecret(i, deals)
		if err != nil {
			return nil, nil, err
		}
		secrets[i] = secret
	}
	return deals, secrets, nil
}
