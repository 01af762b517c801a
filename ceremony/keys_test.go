package ceremony

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/onet/v3/log"

	"github.com/sequentech/strand"
	"github.com/sequentech/strand/lib"
)

func TestMain(m *testing.M) {
	log.MainTest(m)
}

var trusteeIDs = []string{"t1", "t2", "t3"}

// completedKeys runs a 2-of-3 key ceremony to SUCCESS and returns it
// together with the trustees' deals and shared secrets.
func completedKeys(t *testing.T) (*KeyCeremony, []*lib.Deal, []*lib.SharedSecret) {
	c, err := NewKeyCeremony(2, trusteeIDs)
	require.NoError(t, err)
	require.NoError(t, c.Start())

	deals, secrets, err := lib.DKGSimulate(3, 2)
	require.NoError(t, err)
	for i, id := range trusteeIDs {
		require.NoError(t, c.SubmitKeyShare(id, deals[i].KeyShare()))
	}
	_, err = c.CombineShares()
	require.NoError(t, err)
	return c, deals, secrets
}

func TestNewKeyCeremony(t *testing.T) {
	c, err := NewKeyCeremony(2, trusteeIDs)
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID())

	snap := c.Snapshot()
	assert.Equal(t, NotStarted, snap.Status)
	assert.Equal(t, 2, snap.Threshold)
	require.Equal(t, 3, len(snap.Trustees))
	for _, trustee := range snap.Trustees {
		assert.Equal(t, Waiting, trustee.Status)
	}

	_, err = NewKeyCeremony(1, trusteeIDs)
	assert.ErrorIs(t, err, ErrInvalidThreshold)
	_, err = NewKeyCeremony(4, trusteeIDs)
	assert.ErrorIs(t, err, ErrInvalidThreshold)
	_, err = NewKeyCeremony(2, []string{"t1", "t2", "t1"})
	assert.ErrorIs(t, err, ErrInvalidThreshold)
}

func TestKeyCeremonyRun(t *testing.T) {
	c, err := NewKeyCeremony(2, trusteeIDs)
	require.NoError(t, err)

	deals, _, err := lib.DKGSimulate(3, 2)
	require.NoError(t, err)

	// Submissions before the start are rejected.
	require.Error(t, c.SubmitKeyShare("t1", deals[0].KeyShare()))

	require.NoError(t, c.Start())
	require.NoError(t, c.Start()) // idempotent

	assert.ErrorIs(t, c.SubmitKeyShare("intruder", deals[0].KeyShare()),
		ErrUnknownTrustee)

	// Combining before all shares are in fails.
	require.NoError(t, c.SubmitKeyShare("t1", deals[0].KeyShare()))
	_, err = c.CombineShares()
	require.Error(t, err)

	assert.ErrorIs(t, c.SubmitKeyShare("t1", deals[0].KeyShare()),
		ErrDuplicateSubmission)

	require.NoError(t, c.SubmitKeyShare("t2", deals[1].KeyShare()))
	require.NoError(t, c.SubmitKeyShare("t3", deals[2].KeyShare()))

	key, err := c.CombineShares()
	require.NoError(t, err)
	publics := make([]kyber.Point, len(deals))
	for i, deal := range deals {
		publics[i] = deal.Commits[0]
	}
	assert.True(t, key.Equal(lib.AggregateKey(publics)))

	// Recombining returns the identical key.
	again, err := c.CombineShares()
	require.NoError(t, err)
	assert.True(t, key.Equal(again))

	// Submissions after success are duplicates, not state changes.
	assert.ErrorIs(t, c.SubmitKeyShare("t1", deals[0].KeyShare()),
		ErrDuplicateSubmission)

	snap := c.Snapshot()
	assert.Equal(t, Success, snap.Status)
	assert.True(t, snap.Key.Equal(key))
	assert.NotEmpty(t, snap.Logs)
}

func TestSubmitKeyShareCommitments(t *testing.T) {
	c, err := NewKeyCeremony(2, trusteeIDs)
	require.NoError(t, err)
	require.NoError(t, c.Start())

	require.Error(t, c.SubmitKeyShare("t1", nil))

	// A share must carry exactly threshold commitments.
	wrong := lib.NewDeal(3, 3, strand.Suite.RandomStream())
	require.Error(t, c.SubmitKeyShare("t1", wrong.KeyShare()))
}

// Every trustee submits concurrently from its own machine, twice each;
// exactly one submission per trustee may win and the ceremony state
// must come out consistent.
func TestConcurrentKeyShareSubmissions(t *testing.T) {
	const n = 8
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("t%d", i+1)
	}
	c, err := NewKeyCeremony(2, ids)
	require.NoError(t, err)
	require.NoError(t, c.Start())

	deals, _, err := lib.DKGSimulate(n, 2)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 2*n)
	for i := range ids {
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs <- c.SubmitKeyShare(ids[i], deals[i].KeyShare())
			}(i)
		}
	}
	wg.Wait()
	close(errs)

	duplicates := 0
	for err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, ErrDuplicateSubmission)
			duplicates++
		}
	}
	assert.Equal(t, n, duplicates)

	key, err := c.CombineShares()
	require.NoError(t, err)
	require.NotNil(t, key)
	snap := c.Snapshot()
	assert.Equal(t, Success, snap.Status)
	for _, trustee := range snap.Trustees {
		assert.Equal(t, KeyGenerated, trustee.Status)
	}
}

func TestRetrieveAndCheckKey(t *testing.T) {
	c, deals, _ := completedKeys(t)

	// Checking is only possible once the key has been retrieved.
	_, err := c.CheckPrivateKey("t1", deals[0].Secret())
	require.Error(t, err)
	assert.Equal(t, KeyGenerated, c.Snapshot().Trustees[0].Status)

	assert.ErrorIs(t, c.RetrieveKey("intruder"), ErrUnknownTrustee)
	require.NoError(t, c.RetrieveKey("t1"))
	require.NoError(t, c.RetrieveKey("t1")) // idempotent
	assert.Equal(t, KeyRetrieved, c.Snapshot().Trustees[0].Status)

	// A wrong scalar fails the check and leaves the status alone.
	wrong := strand.Suite.Scalar().Pick(strand.Suite.RandomStream())
	ok, err := c.CheckPrivateKey("t1", wrong)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrKeyMismatch)
	assert.Equal(t, KeyRetrieved, c.Snapshot().Trustees[0].Status)

	ok, err = c.CheckPrivateKey("t1", deals[0].Secret())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, KeyChecked, c.Snapshot().Trustees[0].Status)
}

func TestKeyCeremonyCancel(t *testing.T) {
	c, err := NewKeyCeremony(2, trusteeIDs)
	require.NoError(t, err)
	require.NoError(t, c.Start())

	deals, _, err := lib.DKGSimulate(3, 2)
	require.NoError(t, err)
	require.NoError(t, c.SubmitKeyShare("t1", deals[0].KeyShare()))

	require.NoError(t, c.Cancel())
	require.NoError(t, c.Cancel()) // idempotent
	assert.Equal(t, Cancelled, c.Snapshot().Status)

	assert.ErrorIs(t, c.SubmitKeyShare("t2", deals[1].KeyShare()),
		ErrCeremonyCancelled)
	assert.ErrorIs(t, c.Start(), ErrCeremonyCancelled)
	_, err = c.CombineShares()
	assert.ErrorIs(t, err, ErrCeremonyCancelled)

	// A successful ceremony can no longer be cancelled.
	done, _, _ := completedKeys(t)
	assert.Error(t, done.Cancel())
}
