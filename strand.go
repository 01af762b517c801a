// Package strand is the cryptographic core of a verifiable end-to-end
// voting system. It provides deterministic, auditable shuffling of
// presentation lists (elections, contests, candidates), the threshold
// key ceremony producing a joint election key among N trustees, and the
// tally ceremony mixing and decrypting ballots with M-of-N trustee
// shares.
//
// The core is a pure library: it opens no sockets and persists nothing
// on its own. Transport and authoritative storage belong to the caller.
package strand

import (
	"go.dedis.ch/kyber/v3/suites"
)

// Suite is the cryptographic group used throughout the module. Every
// component takes its group operations from here, so swapping the
// concrete group is a one-line change.
var Suite = suites.MustFind("Ed25519")
