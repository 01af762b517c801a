// Package ceremony coordinates the two trustee protocols of an
// election event: the key ceremony that produces the joint election
// key, and the tally ceremony that mixes and decrypts cast ballots.
// Every state-mutating operation serializes on its ceremony's mutex, so
// trustees submitting concurrently never race on the status maps.
package ceremony

// ExecutionStatus is the type for storing the stage of a ceremony.
type ExecutionStatus uint32

const (
	// NotStarted depicts a configured ceremony that has not begun.
	NotStarted ExecutionStatus = iota + 1
	// Connected depicts a tally session the trustees have joined but
	// where processing has not begun.
	Connected
	// InProcess depicts a running ceremony.
	InProcess
	// Success is terminal: the ceremony completed.
	Success
	// Cancelled is terminal: the ceremony was aborted.
	Cancelled
)

func (s ExecutionStatus) String() string {
	switch s {
	case NotStarted:
		return "NOT_STARTED"
	case Connected:
		return "CONNECTED"
	case InProcess:
		return "IN_PROCESS"
	case Success:
		return "SUCCESS"
	case Cancelled:
		return "CANCELLED"
	}
	return "UNKNOWN"
}

// TrusteeStatus is the per-trustee sub-state within a ceremony.
type TrusteeStatus uint32

const (
	// Waiting depicts a trustee that has not acted yet.
	Waiting TrusteeStatus = iota + 1
	// KeyGenerated depicts a trustee whose key share was accepted.
	KeyGenerated
	// KeyRetrieved depicts a trustee that downloaded its private
	// share material.
	KeyRetrieved
	// KeyChecked depicts a trustee that proved its retained private
	// share matches its published public share.
	KeyChecked
	// KeyRestored depicts a trustee that rejoined a tally session
	// with its retained share.
	KeyRestored
)

func (s TrusteeStatus) String() string {
	switch s {
	case Waiting:
		return "WAITING"
	case KeyGenerated:
		return "KEY_GENERATED"
	case KeyRetrieved:
		return "KEY_RETRIEVED"
	case KeyChecked:
		return "KEY_CHECKED"
	case KeyRestored:
		return "KEY_RESTORED"
	}
	return "UNKNOWN"
}

// ElectionStatus is the per-election stage within a tally ceremony.
type ElectionStatus uint32

const (
	// ElectionWaiting depicts an election whose ballots are not
	// loaded yet.
	ElectionWaiting ElectionStatus = iota + 1
	// ElectionMixing depicts an election going through its mix
	// layers.
	ElectionMixing
	// ElectionDecrypting depicts an election collecting partial
	// decryptions.
	ElectionDecrypting
	// ElectionSuccess is terminal: the tally was produced.
	ElectionSuccess
	// ElectionError is terminal for this election only; sibling
	// elections in the same ceremony proceed.
	ElectionError
)

func (s ElectionStatus) String() string {
	switch s {
	case ElectionWaiting:
		return "WAITING"
	case ElectionMixing:
		return "MIXING"
	case ElectionDecrypting:
		return "DECRYPTING"
	case ElectionSuccess:
		return "SUCCESS"
	case ElectionError:
		return "ERROR"
	}
	return "UNKNOWN"
}
