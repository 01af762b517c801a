package ceremony

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sequentech/strand/lib"
)

func TestRegistryLookup(t *testing.T) {
	registry := NewRegistry()

	keys, err := registry.NewKeyCeremony(2, trusteeIDs)
	require.NoError(t, err)
	found, err := registry.KeyCeremony(keys.ID())
	require.NoError(t, err)
	assert.Equal(t, keys, found)
	_, err = registry.KeyCeremony("nope")
	assert.Error(t, err)

	_, err = registry.NewKeyCeremony(9, trusteeIDs)
	assert.ErrorIs(t, err, ErrInvalidThreshold)

	_, err = registry.NewTallyCeremony(keys, electionIDs)
	assert.ErrorIs(t, err, ErrKeyCeremonyNotReady)

	done, _, _ := completedKeys(t)
	tally, err := registry.NewTallyCeremony(done, electionIDs)
	require.NoError(t, err)
	foundTally, err := registry.TallyCeremony(tally.ID())
	require.NoError(t, err)
	assert.Equal(t, tally, foundTally)
	_, err = registry.TallyCeremony("nope")
	assert.Error(t, err)
}

func TestRegistryEvents(t *testing.T) {
	registry := NewRegistry()
	events := registry.Subscribe()

	keys, err := registry.NewKeyCeremony(2, trusteeIDs)
	require.NoError(t, err)
	require.NoError(t, keys.Start())

	deals, _, err := lib.DKGSimulate(3, 2)
	require.NoError(t, err)
	for i, id := range trusteeIDs {
		require.NoError(t, keys.SubmitKeyShare(id, deals[i].KeyShare()))
	}
	_, err = keys.CombineShares()
	require.NoError(t, err)

	// started, three shares, success: five buffered events.
	seen := make([]Event, 0, 5)
	for i := 0; i < 5; i++ {
		select {
		case event := <-events:
			seen = append(seen, event)
		default:
			t.Fatalf("missing event %d", i)
		}
	}
	assert.Equal(t, "started", seen[0].Detail)
	assert.Equal(t, "IN_PROCESS", seen[0].Status)
	assert.Equal(t, "success", seen[4].Detail)
	assert.Equal(t, "SUCCESS", seen[4].Status)
	for _, event := range seen {
		assert.Equal(t, keys.ID(), event.CeremonyID)
		assert.NotZero(t, event.Stamp)
	}

	registry.Unsubscribe(events)
	_, open := <-events
	assert.False(t, open)
	registry.Unsubscribe(events) // idempotent

	// Emitting with no subscribers left must not block.
	require.NoError(t, keys.RetrieveKey("t1"))
}

func TestRegistryStatuses(t *testing.T) {
	registry := NewRegistry()

	keys, err := registry.NewKeyCeremony(2, trusteeIDs)
	require.NoError(t, err)
	require.NoError(t, keys.Start())

	done, _, _ := completedKeys(t)
	tally, err := registry.NewTallyCeremony(done, electionIDs)
	require.NoError(t, err)

	statuses := registry.Statuses()
	require.Equal(t, 2, len(statuses))
	byID := make(map[string]Status)
	for _, status := range statuses {
		byID[status.CeremonyID] = status
		assert.NotEmpty(t, status.Logs)
	}
	assert.Equal(t, "keys", byID[keys.ID()].Kind)
	assert.Equal(t, InProcess, byID[keys.ID()].Status)
	assert.Equal(t, "tally", byID[tally.ID()].Kind)
	assert.Equal(t, NotStarted, byID[tally.ID()].Status)
}
