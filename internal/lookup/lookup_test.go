package lookup

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokad/kademlia-dht/internal/key"
	"github.com/gokad/kademlia-dht/internal/rpcnet"
	"github.com/gokad/kademlia-dht/internal/routing"
)

// fakeProber simulates a tiny fixed network: each contact knows a
// fixed neighbor list and optionally a value, so tests can assert
// convergence without any real sockets.
type fakeProber struct {
	mu        sync.Mutex
	neighbors map[routing.Contact][]routing.Contact
	values    map[string]string // owner contact's addr -> value
	owner     map[string]routing.Contact
	dead      map[routing.Contact]bool
	calls     int
}

func newFakeProber() *fakeProber {
	return &fakeProber{
		neighbors: map[routing.Contact][]routing.Contact{},
		values:    map[string]string{},
		owner:     map[string]routing.Contact{},
		dead:      map[routing.Contact]bool{},
	}
}

func (f *fakeProber) FindNode(c routing.Contact, target key.Key) ([]rpcnet.FoundContact, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.dead[c] {
		return nil, false
	}
	var out []rpcnet.FoundContact
	for _, n := range f.neighbors[c] {
		out = append(out, rpcnet.FoundContact{Contact: n, Distance: key.XOR(target, n.ID)})
	}
	return out, true
}

func (f *fakeProber) FindValue(c routing.Contact, k string) (rpcnet.FindValueResult, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.dead[c] {
		return rpcnet.FindValueResult{}, false
	}
	if v, ok := f.values[c.Addr()]; ok {
		return rpcnet.FindValueResult{Value: v, Found: true}, true
	}
	var found []rpcnet.FoundContact
	target := key.FromString(k)
	for _, n := range f.neighbors[c] {
		found = append(found, rpcnet.FoundContact{Contact: n, Distance: key.XOR(target, n.ID)})
	}
	return rpcnet.FindValueResult{Nodes: found}, true
}

func TestNodeLookupConvergesAcrossHops(t *testing.T) {
	self := routing.NewContact("10.0.0.1", 1)
	a := routing.NewContact("10.0.0.2", 2)
	b := routing.NewContact("10.0.0.3", 3)
	c := routing.NewContact("10.0.0.4", 4)

	prober := newFakeProber()
	prober.neighbors[a] = []routing.Contact{b}
	prober.neighbors[b] = []routing.Contact{c}

	table := routing.NewTable(self, nopPinger{})
	table.Update(a)

	engine := New(table, prober)
	got := engine.NodeLookup(c.ID)

	ids := map[key.Key]bool{}
	for _, g := range got {
		ids[g.ID] = true
	}
	assert.True(t, ids[a.ID] || ids[b.ID] || ids[c.ID], "lookup must surface contacts reached by hopping through replies")
}

func TestValueLookupShortCircuitsOnHit(t *testing.T) {
	self := routing.NewContact("10.0.0.1", 1)
	a := routing.NewContact("10.0.0.2", 2)
	b := routing.NewContact("10.0.0.3", 3)

	prober := newFakeProber()
	prober.neighbors[a] = []routing.Contact{b}
	prober.values[b.Addr()] = "the-value"

	table := routing.NewTable(self, nopPinger{})
	table.Update(a)

	engine := New(table, prober)
	val, found, _ := engine.ValueLookup("some-key")
	require.True(t, found)
	assert.Equal(t, "the-value", val)
}

func TestValueLookupMissReturnsContacts(t *testing.T) {
	self := routing.NewContact("10.0.0.1", 1)
	a := routing.NewContact("10.0.0.2", 2)

	prober := newFakeProber()
	table := routing.NewTable(self, nopPinger{})
	table.Update(a)

	engine := New(table, prober)
	val, found, contacts := engine.ValueLookup("absent")
	assert.False(t, found)
	assert.Empty(t, val)
	assert.NotEmpty(t, contacts)
}

func TestNodeLookupFailedRPCContributesNothing(t *testing.T) {
	self := routing.NewContact("10.0.0.1", 1)
	a := routing.NewContact("10.0.0.2", 2)

	prober := newFakeProber()
	prober.dead[a] = true

	table := routing.NewTable(self, nopPinger{})
	table.Update(a)

	engine := New(table, prober)
	got := engine.NodeLookup(key.FromString("target"))
	assert.Empty(t, got, "a contact that never answers must not appear in the result")
}

type nopPinger struct{}

func (nopPinger) Ping(routing.Contact) bool { return false }
