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

// TallyResult is the outcome of one election's tally: the decrypted
// plaintext points of the final mix and, where a point embeds data, the
// recovered message bytes. Messages[i] is nil for points that carry no
// embedded payload.
type TallyResult struct {
	ElectionID string
	Points     []kyber.Point
	Messages   [][]byte
}

// electionTally tracks one election through the mix-and-decrypt
// pipeline. Elections advance independently; a verification failure in
// one never touches its siblings.
type electionTally struct {
	id       string
	status   ElectionStatus
	progress float64
	message  string

	box      *lib.Box
	mixes    []*lib.Mix
	partials []*lib.Partial
	seen     map[string]bool
	result   *TallyResult
}

// TallyCeremony coordinates the trustees of a finished key ceremony
// through mixing and threshold decryption of one or more elections.
// Mixing is strictly sequential in trustee registration order, so every
// verifier reproduces the same chain; decryption accepts any threshold
// subset of trustees.
type TallyCeremony struct {
	mutex sync.Mutex

	id            string
	keyCeremonyID string
	threshold     int
	key           kyber.Point
	trustees      []*Trustee // registration order from the key ceremony
	status        ExecutionStatus
	elections     []*electionTally
	index         map[string]*electionTally
	log           ceremonyLog
	notify        func(Event)
}

// NewTallyCeremony starts a tally over the given elections, inheriting
// the trustee set, threshold and election key from a successfully
// completed key ceremony.
func NewTallyCeremony(keys *KeyCeremony, electionIDs []string) (*TallyCeremony, error) {
	snap := keys.Snapshot()
	if snap.Status != Success {
		return nil, fmt.Errorf("%w: key ceremony %s is %v",
			ErrKeyCeremonyNotReady, snap.ID, snap.Status)
	}
	if len(electionIDs) == 0 {
		return nil, fmt.Errorf("tally: no elections to tally")
	}

	trustees := make([]*Trustee, len(snap.Trustees))
	for i, trustee := range snap.Trustees {
		trustees[i] = &Trustee{
			ID:      trustee.ID,
			Status:  Waiting,
			Public:  trustee.Public,
			Commits: trustee.Commits,
		}
	}

	t := &TallyCeremony{
		id:            uuid.NewV4().String(),
		keyCeremonyID: snap.ID,
		threshold:     snap.Threshold,
		key:           snap.Key,
		trustees:      trustees,
		status:        NotStarted,
		index:         make(map[string]*electionTally),
	}
	for _, id := range electionIDs {
		if _, ok := t.index[id]; ok {
			return nil, fmt.Errorf("tally: election %q listed twice", id)
		}
		election := &electionTally{
			id:     id,
			status: ElectionWaiting,
			seen:   make(map[string]bool),
		}
		t.elections = append(t.elections, election)
		t.index[id] = election
	}
	t.log.append(fmt.Sprintf("tally configured over %d elections, threshold %d of %d",
		len(electionIDs), t.threshold, len(trustees)))
	return t, nil
}

// ID returns the ceremony identifier.
func (t *TallyCeremony) ID() string {
	return t.id
}

// RestoreKey verifies that a reconnecting trustee still holds its share
// of the joint private key and admits it to the tally. The share itself
// never travels: the trustee proves possession by exhibiting the share
// scalar locally and the coordinator checks its public counterpart
// against the key ceremony's commitment polynomials. The first restore
// moves the ceremony to CONNECTED; once every trustee has restored it
// moves to IN_PROCESS.
func (t *TallyCeremony) RestoreKey(trusteeID string, private kyber.Scalar) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.status == Cancelled {
		return t.fail(fmt.Errorf("%w: tally %s, trustee %s",
			ErrCeremonyCancelled, t.id, trusteeID))
	}

	position := t.position(trusteeID)
	if position < 0 {
		return t.fail(fmt.Errorf("%w: %s in tally %s", ErrUnknownTrustee, trusteeID, t.id))
	}
	trustee := t.trustees[position]
	if trustee.Status == KeyRestored {
		return nil
	}

	commitLists := make([][]kyber.Point, len(t.trustees))
	for i, dealer := range t.trustees {
		commitLists[i] = dealer.Commits
	}
	expected := lib.PublicShareOf(position, commitLists)
	if !strand.Suite.Point().Mul(private, nil).Equal(expected) {
		return t.fail(fmt.Errorf("%w: trustee %s restored a wrong key in tally %s",
			ErrKeyMismatch, trusteeID, t.id))
	}

	trustee.Status = KeyRestored
	if t.status == NotStarted {
		t.status = Connected
	}
	t.log.append(fmt.Sprintf("trustee %s restored its key", trusteeID))
	if t.restored() == len(t.trustees) {
		t.status = InProcess
		t.log.append("all trustees restored their keys")
	}
	t.emit("key restored by " + trusteeID)
	log.Lvlf2("tally %s: trustee %s restored its key", t.id, trusteeID)
	return nil
}

// SetBallots loads the encrypted ballots of an election and opens it
// for mixing, WAITING -> MIXING.
func (t *TallyCeremony) SetBallots(electionID string, box *lib.Box) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.status == Cancelled {
		return t.fail(fmt.Errorf("%w: tally %s, election %s",
			ErrCeremonyCancelled, t.id, electionID))
	}

	election, ok := t.index[electionID]
	if !ok {
		return t.fail(fmt.Errorf("tally %s: unknown election %s", t.id, electionID))
	}
	if election.status != ElectionWaiting {
		return t.fail(fmt.Errorf("tally %s: election %s already has ballots",
			t.id, electionID))
	}
	if box == nil || len(box.Ballots) < 2 {
		return t.fail(fmt.Errorf("tally %s: election %s needs at least 2 ballots to mix",
			t.id, electionID))
	}

	election.box = box
	election.status = ElectionMixing
	t.log.append(fmt.Sprintf("election %s: %d ballots loaded", electionID, len(box.Ballots)))
	t.emit(fmt.Sprintf("election %s mixing", electionID))
	return nil
}

// AdvanceMix appends a trustee's mix layer to an election. Layers are
// accepted only from the trustee whose turn it is: layer k belongs to
// the k-th trustee in registration order, the layer must name that
// trustee as its author, and its signature must be under the trustee's
// published key share. Attribution failures are rejected and the
// trustee may resubmit. The shuffle proof is then verified against the
// previous layer; a bad proof moves the election to ERROR and leaves
// every other election untouched. When the last trustee has mixed, the
// election moves to DECRYPTING.
func (t *TallyCeremony) AdvanceMix(electionID, trusteeID string, mix *lib.Mix) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.status == Cancelled {
		return t.fail(fmt.Errorf("%w: tally %s, trustee %s",
			ErrCeremonyCancelled, t.id, trusteeID))
	}
	if t.position(trusteeID) < 0 {
		return t.fail(fmt.Errorf("%w: %s in tally %s", ErrUnknownTrustee, trusteeID, t.id))
	}
	if t.status != InProcess {
		return t.fail(fmt.Errorf("tally %s: waiting for trustees to restore their keys", t.id))
	}

	election, ok := t.index[electionID]
	if !ok {
		return t.fail(fmt.Errorf("tally %s: unknown election %s", t.id, electionID))
	}
	if election.status != ElectionMixing {
		return t.fail(fmt.Errorf("tally %s: election %s is %v, not mixing",
			t.id, electionID, election.status))
	}

	expected := t.trustees[len(election.mixes)]
	if trusteeID != expected.ID {
		return t.fail(fmt.Errorf("tally %s: election %s expects mix %d from trustee %s, got %s",
			t.id, electionID, len(election.mixes), expected.ID, trusteeID))
	}
	if mix.Trustee != trusteeID {
		return t.fail(fmt.Errorf("tally %s: election %s: mix layer claims author %s, submitted by %s",
			t.id, electionID, mix.Trustee, trusteeID))
	}
	if mix.PublicKey == nil || !mix.PublicKey.Equal(expected.Public) {
		return t.fail(fmt.Errorf("tally %s: election %s: mix layer not signed with trustee %s's key share",
			t.id, electionID, trusteeID))
	}

	previous := election.box.Ballots
	if n := len(election.mixes); n > 0 {
		previous = election.mixes[n-1].Ballots
	}
	if err := lib.VerifyMix(t.key, previous, mix); err != nil {
		election.status = ElectionError
		election.message = err.Error()
		t.emit(fmt.Sprintf("election %s failed", electionID))
		return t.fail(fmt.Errorf("%w: election %s, trustee %s: %v",
			ErrMixVerification, electionID, trusteeID, err))
	}

	election.mixes = append(election.mixes, mix)
	election.progress = float64(len(election.mixes)) / float64(len(t.trustees))
	t.log.append(fmt.Sprintf("election %s: mix %d of %d by trustee %s",
		electionID, len(election.mixes), len(t.trustees), trusteeID))

	if len(election.mixes) == len(t.trustees) {
		election.status = ElectionDecrypting
		election.progress = 0
		t.log.append(fmt.Sprintf("election %s: all mixes verified", electionID))
		t.emit(fmt.Sprintf("election %s decrypting", electionID))
	}
	log.Lvlf2("tally %s: election %s mixed by %s", t.id, electionID, trusteeID)
	return nil
}

// AdvanceDecrypt records a trustee's partial decryption of an
// election's final mix. Each trustee may contribute once per election;
// order does not matter.
func (t *TallyCeremony) AdvanceDecrypt(electionID, trusteeID string, partial *lib.Partial) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.status == Cancelled {
		return t.fail(fmt.Errorf("%w: tally %s, trustee %s",
			ErrCeremonyCancelled, t.id, trusteeID))
	}

	position := t.position(trusteeID)
	if position < 0 {
		return t.fail(fmt.Errorf("%w: %s in tally %s", ErrUnknownTrustee, trusteeID, t.id))
	}
	if t.trustees[position].Status != KeyRestored {
		return t.fail(fmt.Errorf("tally %s: trustee %s has not restored its key",
			t.id, trusteeID))
	}

	election, ok := t.index[electionID]
	if !ok {
		return t.fail(fmt.Errorf("tally %s: unknown election %s", t.id, electionID))
	}
	if election.status != ElectionDecrypting {
		return t.fail(fmt.Errorf("tally %s: election %s is %v, not decrypting",
			t.id, electionID, election.status))
	}
	if election.seen[trusteeID] {
		return t.fail(fmt.Errorf("%w: trustee %s already decrypted election %s",
			ErrDuplicateSubmission, trusteeID, electionID))
	}
	if partial == nil || len(partial.Points) != len(election.box.Ballots) {
		return t.fail(fmt.Errorf("tally %s: election %s: malformed partial decryption from %s",
			t.id, electionID, trusteeID))
	}
	if partial.Index != position {
		return t.fail(fmt.Errorf("tally %s: trustee %s holds share %d, partial claims %d",
			t.id, trusteeID, position, partial.Index))
	}

	election.seen[trusteeID] = true
	election.partials = append(election.partials, partial)
	election.progress = float64(len(election.partials)) / float64(t.threshold)
	if election.progress > 1 {
		election.progress = 1
	}
	t.log.append(fmt.Sprintf("election %s: partial decryption %d of %d by trustee %s",
		electionID, len(election.partials), t.threshold, trusteeID))
	log.Lvlf2("tally %s: election %s decrypted by %s", t.id, electionID, trusteeID)
	return nil
}

// CombineDecryptionShares recombines the collected partial decryptions
// of an election into its plaintexts and marks the election SUCCESS.
// Any subset of at least threshold trustees yields the same result, so
// recombining is idempotent and subset-independent. When the last
// election succeeds, the ceremony itself moves to SUCCESS.
func (t *TallyCeremony) CombineDecryptionShares(electionID string) (*TallyResult, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.status == Cancelled {
		return nil, t.fail(fmt.Errorf("%w: tally %s, election %s",
			ErrCeremonyCancelled, t.id, electionID))
	}

	election, ok := t.index[electionID]
	if !ok {
		return nil, t.fail(fmt.Errorf("tally %s: unknown election %s", t.id, electionID))
	}
	if election.status == ElectionSuccess {
		return election.result, nil
	}
	if election.status != ElectionDecrypting {
		return nil, t.fail(fmt.Errorf("tally %s: election %s is %v, not decrypting",
			t.id, electionID, election.status))
	}
	if len(election.partials) < t.threshold {
		return nil, t.fail(fmt.Errorf("%w: election %s has %d of %d partial decryptions",
			ErrInsufficientShares, electionID, len(election.partials), t.threshold))
	}

	points, err := lib.RecoverPlaintexts(election.partials, t.threshold, len(t.trustees))
	if err != nil {
		return nil, t.fail(fmt.Errorf("tally %s: election %s: %v", t.id, electionID, err))
	}

	messages := make([][]byte, len(points))
	for i, point := range points {
		if data, err := point.Data(); err == nil {
			messages[i] = data
		}
	}

	election.result = &TallyResult{
		ElectionID: electionID,
		Points:     points,
		Messages:   messages,
	}
	election.status = ElectionSuccess
	election.progress = 1
	t.log.append(fmt.Sprintf("election %s: tally recovered from %d partial decryptions",
		electionID, len(election.partials)))
	t.emit(fmt.Sprintf("election %s done", electionID))

	if t.succeeded() == len(t.elections) {
		t.status = Success
		t.log.append("tally finished for all elections")
		t.emit("success")
	}
	log.Lvlf2("tally %s: election %s recovered %d plaintexts",
		t.id, electionID, len(points))
	return election.result, nil
}

// Cancel aborts the tally. Every election that has not yet succeeded
// moves to ERROR; finished results stay available.
func (t *TallyCeremony) Cancel() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	switch t.status {
	case Cancelled:
		return nil
	case Success:
		return t.fail(fmt.Errorf("tally %s: cannot cancel after success", t.id))
	}

	t.status = Cancelled
	for _, election := range t.elections {
		if election.status != ElectionSuccess && election.status != ElectionError {
			election.status = ElectionError
			election.message = "tally cancelled"
		}
	}
	t.log.append("tally cancelled")
	t.emit("cancelled")
	log.Lvlf2("tally %s cancelled", t.id)
	return nil
}

// ElectionSnapshot is the read-only view of one election's tally
// pipeline.
type ElectionSnapshot struct {
	ID       string
	Status   ElectionStatus
	Progress float64
	Mixes    int
	Partials int
	Message  string
	Result   *TallyResult
}

// TallySnapshot is the read-only view of a tally ceremony handed to the
// UI layer.
type TallySnapshot struct {
	ID            string
	KeyCeremonyID string
	Threshold     int
	Status        ExecutionStatus
	Key           kyber.Point
	Trustees      []Trustee
	Elections     []ElectionSnapshot
	Logs          []LogEntry
}

// Snapshot returns an immutable copy of the ceremony state.
func (t *TallyCeremony) Snapshot() *TallySnapshot {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.snapshot()
}

// snapshot requires the mutex to be held.
func (t *TallyCeremony) snapshot() *TallySnapshot {
	trustees := make([]Trustee, len(t.trustees))
	for i, trustee := range t.trustees {
		trustees[i] = *trustee
	}
	elections := make([]ElectionSnapshot, len(t.elections))
	for i, election := range t.elections {
		elections[i] = ElectionSnapshot{
			ID:       election.id,
			Status:   election.status,
			Progress: election.progress,
			Mixes:    len(election.mixes),
			Partials: len(election.partials),
			Message:  election.message,
			Result:   election.result,
		}
	}
	return &TallySnapshot{
		ID:            t.id,
		KeyCeremonyID: t.keyCeremonyID,
		Threshold:     t.threshold,
		Status:        t.status,
		Key:           t.key,
		Trustees:      trustees,
		Elections:     elections,
		Logs:          t.log.snapshot(),
	}
}

// position requires the mutex to be held.
func (t *TallyCeremony) position(trusteeID string) int {
	for i, trustee := range t.trustees {
		if trustee.ID == trusteeID {
			return i
		}
	}
	return -1
}

// restored requires the mutex to be held.
func (t *TallyCeremony) restored() int {
	count := 0
	for _, trustee := range t.trustees {
		if trustee.Status == KeyRestored {
			count++
		}
	}
	return count
}

// succeeded requires the mutex to be held.
func (t *TallyCeremony) succeeded() int {
	count := 0
	for _, election := range t.elections {
		if election.status == ElectionSuccess {
			count++
		}
	}
	return count
}

// fail logs a mutating-operation error into the ceremony log before
// returning it.
func (t *TallyCeremony) fail(err error) error {
	t.log.append(err.Error())
	return err
}

// emit pushes a state-change event to the registry channel, if any.
func (t *TallyCeremony) emit(detail string) {
	if t.notify != nil {
		t.notify(Event{
			CeremonyID: t.id,
			Status:     t.status.String(),
			Detail:     detail,
		})
	}
}
