package dht

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokad/kademlia-dht/internal/routing"
)

func TestTwoPeerPingPutGet(t *testing.T) {
	a, err := New("127.0.0.1", 24101, nil)
	require.NoError(t, err)
	defer a.Close()

	bootstrap := a.Self()
	b, err := New("127.0.0.1", 24102, &bootstrap)
	require.NoError(t, err)
	defer b.Close()

	assert.True(t, b.Ping(a.Self()), "b must be able to ping its bootstrap peer")
	assert.GreaterOrEqual(t, a.table.Len(), 1, "a must have learned b from the bootstrap handshake")

	b.Put("greeting", "hello world")
	time.Sleep(200 * time.Millisecond)

	v, ok := a.Get("greeting")
	require.True(t, ok, "a must be able to retrieve a key put by b")
	assert.Equal(t, "hello world", v)
}

func TestGetMissingKeyReturnsNotFound(t *testing.T) {
	a, err := New("127.0.0.1", 24111, nil)
	require.NoError(t, err)
	defer a.Close()

	_, ok := a.Get("never-stored")
	assert.False(t, ok)
}

func TestRefreshOnceEvictsContactAfterRepeatedFailures(t *testing.T) {
	a, err := New("127.0.0.1", 24131, nil)
	require.NoError(t, err)
	defer a.Close()

	dead := routing.NewContact("127.0.0.1", 24999) // nobody listening here
	a.table.Update(dead)
	require.Equal(t, 1, a.table.Len())

	for i := 0; i < maxConsecutiveFailures; i++ {
		a.refreshOnce()
	}

	assert.Equal(t, 0, a.table.Len(), "a contact that fails refresh maxConsecutiveFailures times in a row must be evicted early")
}

func TestRefreshOnceRecordsLivenessForRespondingContact(t *testing.T) {
	a, err := New("127.0.0.1", 24132, nil)
	require.NoError(t, err)
	defer a.Close()

	b, err := New("127.0.0.1", 24133, nil)
	require.NoError(t, err)
	defer b.Close()

	a.table.Update(b.Self())
	a.refreshOnce()

	_, ok := a.ledger.LastPong(b.Self().ID)
	assert.True(t, ok, "a responding contact's refresh pong must be recorded in the liveness ledger")
	assert.Equal(t, 0, a.ledger.Fails(b.Self().ID))
}

func TestPutThenGetOnSamePeerIsImmediatelyVisible(t *testing.T) {
	a, err := New("127.0.0.1", 24121, nil)
	require.NoError(t, err)
	defer a.Close()

	a.Put("k", "v")
	v, ok := a.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)
}
