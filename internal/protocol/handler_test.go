package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokad/kademlia-dht/internal/key"
	"github.com/gokad/kademlia-dht/internal/rpcnet"
	"github.com/gokad/kademlia-dht/internal/routing"
)

type fakeSource struct {
	ch chan rpcnet.Request
}

func (f *fakeSource) Requests() <-chan rpcnet.Request { return f.ch }

type nopPinger struct{}

func (nopPinger) Ping(routing.Contact) bool { return false }

func newTestHandler() (*Handler, *routing.Table, *Store, routing.Contact) {
	self := routing.NewContact("10.0.0.1", 9000)
	table := routing.NewTable(self, nopPinger{})
	store := NewStore()
	return NewHandler(self, table, store), table, store, self
}

func sendAndAwaitReply(t *testing.T, ch chan rpcnet.Request, msg rpcnet.Message) rpcnet.Message {
	t.Helper()
	replies := make(chan rpcnet.Message, 1)
	ch <- rpcnet.Request{Msg: msg, Reply: func(m rpcnet.Message) { replies <- m }}
	select {
	case r := <-replies:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not reply in time")
		return rpcnet.Message{}
	}
}

func TestPingUpdatesTableAndReplies(t *testing.T) {
	h, table, _, self := newTestHandler()
	src := &fakeSource{ch: make(chan rpcnet.Request)}
	go h.Run(src)

	peer := routing.NewContact("10.0.0.2", 9001)
	req := rpcnet.Message{Token: key.FromString("t"), Src: peer, Dst: self, Kind: rpcnet.KindPing}
	reply := sendAndAwaitReply(t, src.ch, req)

	assert.Equal(t, rpcnet.KindPong, reply.Kind)
	assert.Equal(t, 1, table.Len(), "an inbound request must cause the sender to be learned")
}

func TestStoreThenFindValueHit(t *testing.T) {
	h, _, store, self := newTestHandler()
	src := &fakeSource{ch: make(chan rpcnet.Request)}
	go h.Run(src)

	peer := routing.NewContact("10.0.0.3", 9002)
	storeReq := rpcnet.Message{Token: key.FromString("t1"), Src: peer, Dst: self, Kind: rpcnet.KindStore, StoreKey: "hello", StoreVal: "world"}
	reply := sendAndAwaitReply(t, src.ch, storeReq)
	require.Equal(t, rpcnet.KindPong, reply.Kind)

	v, ok := store.Get("hello")
	require.True(t, ok)
	assert.Equal(t, "world", v)

	findReq := rpcnet.Message{Token: key.FromString("t2"), Src: peer, Dst: self, Kind: rpcnet.KindFindValue, StoreKey: "hello"}
	reply = sendAndAwaitReply(t, src.ch, findReq)
	require.Equal(t, rpcnet.KindValueFound, reply.Kind)
	assert.Equal(t, "world", reply.Value)
}

func TestFindValueMissFallsBackToNodes(t *testing.T) {
	h, table, _, self := newTestHandler()
	src := &fakeSource{ch: make(chan rpcnet.Request)}
	go h.Run(src)

	other := routing.NewContact("10.0.0.4", 9003)
	table.Update(other)

	peer := routing.NewContact("10.0.0.5", 9004)
	req := rpcnet.Message{Token: key.FromString("t"), Src: peer, Dst: self, Kind: rpcnet.KindFindValue, StoreKey: "absent"}
	reply := sendAndAwaitReply(t, src.ch, req)

	require.Equal(t, rpcnet.KindNodes, reply.Kind)
	assert.NotEmpty(t, reply.Nodes)
}

func TestFindNodeReturnsClosest(t *testing.T) {
	h, table, _, self := newTestHandler()
	src := &fakeSource{ch: make(chan rpcnet.Request)}
	go h.Run(src)

	for i := 0; i < 5; i++ {
		table.Update(routing.NewContact("172.20.0.1", 6000+i))
	}

	peer := routing.NewContact("10.0.0.6", 9005)
	target := key.FromString("target")
	req := rpcnet.Message{Token: key.FromString("t"), Src: peer, Dst: self, Kind: rpcnet.KindFindNode, FindTarget: target}
	reply := sendAndAwaitReply(t, src.ch, req)

	require.Equal(t, rpcnet.KindNodes, reply.Kind)
	assert.LessOrEqual(t, len(reply.Nodes), routing.K)
}
