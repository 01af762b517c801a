package ceremony

import (
	"fmt"
	"sync"

	uuid "github.com/satori/go.uuid"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/onet/v3/log"

	"github.com/sequentech/strand"
	"github.com/sequentech/strand/lib"
)

// Trustee is one party of a ceremony holding a share of the joint key.
// Identity is process-wide: the same trustee id may appear in many
// ceremonies.
type Trustee struct {
	ID      string
	Status  TrusteeStatus
	Public  kyber.Point
	Commits []kyber.Point
}

// KeyCeremony is the state machine coordinating N trustees through the
// generation of a joint election key with an M-of-N reconstruction
// threshold. All mutations serialize on the ceremony mutex; trustees
// submit shares concurrently from their own machines.
type KeyCeremony struct {
	mutex sync.Mutex

	id        string
	threshold int
	trustees  []*Trustee // registration order, significant for mixing
	status    ExecutionStatus
	key       kyber.Point // joint election key, set on success
	log       ceremonyLog
	notify    func(Event)
}

// NewKeyCeremony configures a ceremony over the given trustee set.
// The threshold must satisfy 2 <= threshold <= len(trusteeIDs).
func NewKeyCeremony(threshold int, trusteeIDs []string) (*KeyCeremony, error) {
	if threshold < 2 || threshold > len(trusteeIDs) {
		return nil, fmt.Errorf("%w: %d of %d trustees",
			ErrInvalidThreshold, threshold, len(trusteeIDs))
	}

	seen := make(map[string]bool)
	trustees := make([]*Trustee, len(trusteeIDs))
	for i, id := range trusteeIDs {
		if seen[id] {
			return nil, fmt.Errorf("%w: trustee %q listed twice",
				ErrInvalidThreshold, id)
		}
		seen[id] = true
		trustees[i] = &Trustee{ID: id, Status: Waiting}
	}

	c := &KeyCeremony{
		id:        uuid.NewV4().String(),
		threshold: threshold,
		trustees:  trustees,
		status:    NotStarted,
	}
	c.log.append(fmt.Sprintf("key ceremony configured: threshold %d of %d",
		threshold, len(trustees)))
	return c, nil
}

// ID returns the ceremony identifier.
func (c *KeyCeremony) ID() string {
	return c.id
}

// Start opens the ceremony for share submissions. The caller fans the
// generation request out to the trustees over its own transport.
// Idempotent while the ceremony is running.
func (c *KeyCeremony) Start() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	switch c.status {
	case NotStarted:
		c.status = InProcess
		c.log.append("key ceremony started")
		c.emit("started")
		log.Lvlf2("key ceremony %s started", c.id)
		return nil
	case InProcess:
		return nil
	case Cancelled:
		return c.fail(fmt.Errorf("%w: key ceremony %s", ErrCeremonyCancelled, c.id))
	default:
		return c.fail(fmt.Errorf("key ceremony %s: cannot start from %v", c.id, c.status))
	}
}

// SubmitKeyShare records a trustee's public key share, moving that
// trustee WAITING -> KEY_GENERATED. The share carries the trustee's
// full commitment polynomial; the tally later checks restored private
// shares against it. A failed submission leaves the rest of the
// ceremony untouched; other trustees keep submitting.
func (c *KeyCeremony) SubmitKeyShare(trusteeID string, share *lib.KeyShare) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.status == Cancelled {
		return c.fail(fmt.Errorf("%w: key ceremony %s, trustee %s",
			ErrCeremonyCancelled, c.id, trusteeID))
	}

	trustee := c.trustee(trusteeID)
	if trustee == nil {
		return c.fail(fmt.Errorf("%w: %s in key ceremony %s",
			ErrUnknownTrustee, trusteeID, c.id))
	}
	if trustee.Status != Waiting {
		return c.fail(fmt.Errorf("%w: trustee %s already at %v in key ceremony %s",
			ErrDuplicateSubmission, trusteeID, trustee.Status, c.id))
	}
	if c.status != InProcess {
		return c.fail(fmt.Errorf("key ceremony %s: not started", c.id))
	}
	if share == nil {
		return c.fail(fmt.Errorf("key ceremony %s: trustee %s submitted an empty share",
			c.id, trusteeID))
	}
	if len(share.Commits) != c.threshold {
		return c.fail(fmt.Errorf("key ceremony %s: trustee %s submitted %d commitments, want %d",
			c.id, trusteeID, len(share.Commits), c.threshold))
	}

	trustee.Status = KeyGenerated
	trustee.Public = share.Public()
	trustee.Commits = share.Commits
	c.log.append(fmt.Sprintf("trustee %s submitted its key share", trusteeID))
	c.emit("share from " + trusteeID)

	if c.generated() == len(c.trustees) {
		c.log.append("all key shares submitted")
	}
	return nil
}

// CombineShares combines the trustees' public key shares into the joint
// election key and marks the ceremony SUCCESS. The combination is a sum
// of group elements, so it does not depend on submission order, and
// recombining the same shares is bit-identical; the UI may call this
// speculatively or retry it.
func (c *KeyCeremony) CombineShares() (kyber.Point, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.status == Success {
		return c.key, nil
	}
	if c.status == Cancelled {
		return nil, c.fail(fmt.Errorf("%w: key ceremony %s", ErrCeremonyCancelled, c.id))
	}
	if c.generated() != len(c.trustees) {
		return nil, c.fail(fmt.Errorf("key ceremony %s: %d of %d key shares submitted",
			c.id, c.generated(), len(c.trustees)))
	}

	publics := make([]kyber.Point, len(c.trustees))
	for i, trustee := range c.trustees {
		publics[i] = trustee.Public
	}
	c.key = lib.AggregateKey(publics)
	c.status = Success
	c.log.append("key shares combined, election key published")
	c.emit("success")
	log.Lvlf2("key ceremony %s: election key %v", c.id, c.key)
	return c.key, nil
}

// RetrieveKey records that a trustee downloaded its private share
// material, KEY_GENERATED -> KEY_RETRIEVED.
func (c *KeyCeremony) RetrieveKey(trusteeID string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.status == Cancelled {
		return c.fail(fmt.Errorf("%w: key ceremony %s, trustee %s",
			ErrCeremonyCancelled, c.id, trusteeID))
	}

	trustee := c.trustee(trusteeID)
	if trustee == nil {
		return c.fail(fmt.Errorf("%w: %s in key ceremony %s",
			ErrUnknownTrustee, trusteeID, c.id))
	}
	if trustee.Status == Waiting {
		return c.fail(fmt.Errorf("key ceremony %s: trustee %s has no key to retrieve",
			c.id, trusteeID))
	}

	if trustee.Status == KeyGenerated {
		trustee.Status = KeyRetrieved
		c.log.append(fmt.Sprintf("trustee %s retrieved its private key", trusteeID))
		c.emit("key retrieved by " + trusteeID)
	}
	return nil
}

// CheckPrivateKey verifies that the trustee's retained private share is
// consistent with its published public share. The trustee must have
// retrieved its key first. A pure check: on failure the trustee keeps
// its prior status and may retry; on success it moves to KEY_CHECKED.
func (c *KeyCeremony) CheckPrivateKey(trusteeID string, private kyber.Scalar) (bool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.status == Cancelled {
		return false, c.fail(fmt.Errorf("%w: key ceremony %s, trustee %s",
			ErrCeremonyCancelled, c.id, trusteeID))
	}

	trustee := c.trustee(trusteeID)
	if trustee == nil {
		return false, c.fail(fmt.Errorf("%w: %s in key ceremony %s",
			ErrUnknownTrustee, trusteeID, c.id))
	}
	if trustee.Status == Waiting {
		return false, c.fail(fmt.Errorf("key ceremony %s: trustee %s has not submitted a share",
			c.id, trusteeID))
	}
	if trustee.Status == KeyGenerated {
		return false, c.fail(fmt.Errorf("key ceremony %s: trustee %s has not retrieved its key",
			c.id, trusteeID))
	}

	if !strand.Suite.Point().Mul(private, nil).Equal(trustee.Public) {
		return false, c.fail(fmt.Errorf("%w: trustee %s in key ceremony %s",
			ErrKeyMismatch, trusteeID, c.id))
	}

	if trustee.Status != KeyChecked {
		trustee.Status = KeyChecked
		c.log.append(fmt.Sprintf("trustee %s checked its private key", trusteeID))
		c.emit("key checked by " + trusteeID)
	}
	return true, nil
}

// Cancel aborts the ceremony. Allowed any time before SUCCESS and
// terminal afterwards; in-flight submissions are rejected with
// ErrCeremonyCancelled.
func (c *KeyCeremony) Cancel() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	switch c.status {
	case Cancelled:
		return nil
	case Success:
		return c.fail(fmt.Errorf("key ceremony %s: cannot cancel after success", c.id))
	}

	c.status = Cancelled
	c.log.append("key ceremony cancelled")
	c.emit("cancelled")
	log.Lvlf2("key ceremony %s cancelled", c.id)
	return nil
}

// KeySnapshot is the read-only view of a key ceremony handed to the UI
// layer.
type KeySnapshot struct {
	ID        string
	Threshold int
	Status    ExecutionStatus
	Key       kyber.Point
	Trustees  []Trustee
	Logs      []LogEntry
}

// Snapshot returns an immutable copy of the ceremony state.
func (c *KeyCeremony) Snapshot() *KeySnapshot {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.snapshot()
}

// snapshot requires the mutex to be held.
func (c *KeyCeremony) snapshot() *KeySnapshot {
	trustees := make([]Trustee, len(c.trustees))
	for i, trustee := range c.trustees {
		trustees[i] = *trustee
	}
	return &KeySnapshot{
		ID:        c.id,
		Threshold: c.threshold,
		Status:    c.status,
		Key:       c.key,
		Trustees:  trustees,
		Logs:      c.log.snapshot(),
	}
}

// trustee requires the mutex to be held.
func (c *KeyCeremony) trustee(id string) *Trustee {
	for _, trustee := range c.trustees {
		if trustee.ID == id {
			return trustee
		}
	}
	return nil
}

// generated requires the mutex to be held.
func (c *KeyCeremony) generated() int {
	count := 0
	for _, trustee := range c.trustees {
		if trustee.Status != Waiting {
			count++
		}
	}
	return count
}

// fail logs a mutating-operation error into the ceremony log before
// returning it, so the UI shows both the immediate error and a
// persistent audit trail.
func (c *KeyCeremony) fail(err error) error {
	c.log.append(err.Error())
	return err
}

// emit pushes a state-change event to the registry channel, if any.
func (c *KeyCeremony) emit(detail string) {
	if c.notify != nil {
		c.notify(Event{
			CeremonyID: c.id,
			Status:     c.status.String(),
			Detail:     detail,
		})
	}
}
