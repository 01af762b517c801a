package lib

import (
	"crypto/cipher"
	"math/big"

	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/util/random"
	"go.dedis.ch/kyber/v3/xof/blake2xb"

	"github.com/sequentech/strand"
)

// Seed is a derived shuffle seed. Equal seeds yield equal random
// streams, which is what makes a presentation shuffle auditable: anyone
// holding the scope id and the nonce can replay the exact ordering.
type Seed [32]byte

// DeriveSeed derives a seed from a stable scope identifier (election or
// contest id) and a per-invocation nonce (voter session id, or a fixed
// ceremony id when one ordering is shared by all voters). The zero byte
// separator keeps ("ab","c") and ("a","bc") apart.
func DeriveSeed(scopeID, nonce string) Seed {
	h := strand.Suite.Hash()
	h.Write([]byte(scopeID))
	h.Write([]byte{0})
	h.Write([]byte(nonce))

	var seed Seed
	copy(seed[:], h.Sum(nil))
	return seed
}

// Stream returns a reproducible random stream expanded from the seed.
// Two streams from equal seeds emit identical bytes.
func (s Seed) Stream() kyber.XOF {
	return blake2xb.New(s[:])
}

// Intn returns a uniform value in [0, n) drawn from the given stream.
// The stream is explicit state; there is no global source here.
func Intn(stream cipher.Stream, n int) int {
	if n <= 0 {
		panic("lib: Intn bound must be positive")
	}
	return int(random.Int(big.NewInt(int64(n)), stream).Int64())
}
