package ceremony

import "errors"

// Sentinel errors of the ceremony state machines. Call sites wrap them
// with the ceremony, trustee and election identifiers involved, so the
// UI layer can render an actionable message; match with errors.Is.
var (
	// ErrInvalidThreshold rejects a threshold below 2 or above the
	// number of trustees.
	ErrInvalidThreshold = errors.New("invalid threshold")

	// ErrUnknownTrustee rejects an actor that is not part of the
	// configured trustee set.
	ErrUnknownTrustee = errors.New("unknown trustee")

	// ErrDuplicateSubmission rejects a share from a trustee that
	// already submitted, including after the ceremony succeeded.
	ErrDuplicateSubmission = errors.New("duplicate submission")

	// ErrKeyMismatch flags private key material inconsistent with the
	// trustee's published public share.
	ErrKeyMismatch = errors.New("private key does not match public share")

	// ErrKeyCeremonyNotReady rejects a tally over a key ceremony that
	// has not succeeded.
	ErrKeyCeremonyNotReady = errors.New("key ceremony not ready")

	// ErrMixVerification flags a mix layer whose shuffle proof does
	// not verify. Fatal for that election, not for its siblings.
	ErrMixVerification = errors.New("mix verification failed")

	// ErrInsufficientShares rejects a decryption combination with
	// fewer than threshold partials.
	ErrInsufficientShares = errors.New("not enough decryption shares")

	// ErrCeremonyCancelled rejects any submission that arrives after
	// the ceremony was cancelled.
	ErrCeremonyCancelled = errors.New("ceremony cancelled")
)
