package rpcnet

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokad/kademlia-dht/internal/key"
	"github.com/gokad/kademlia-dht/internal/routing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	src := routing.NewContact("10.0.0.1", 9000)
	dst := routing.NewContact("10.0.0.2", 9001)
	target := key.FromString("some target")

	orig := newFindNode(key.FromString("token"), src, dst, target)
	b, err := Encode(orig)
	require.NoError(t, err)

	got, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, orig, got, "encoding then decoding a message must yield an equal message")
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	src := routing.NewContact("10.0.0.1", 9000)
	dst := routing.NewContact("10.0.0.2", 9001)
	huge := strings.Repeat("x", BufSize)
	msg := newStore(key.FromString("t"), src, dst, "k", huge)
	_, err := Encode(msg)
	assert.Error(t, err, "a payload that cannot fit in a single datagram must be rejected, not framed across several")
}

func TestDecodeRejectsOversizedDatagram(t *testing.T) {
	_, err := Decode(make([]byte, BufSize+1))
	assert.Error(t, err)
}

func TestMessageKindClassification(t *testing.T) {
	src := routing.NewContact("10.0.0.1", 1)
	dst := routing.NewContact("10.0.0.2", 2)
	tok := key.FromString("t")

	assert.True(t, newPing(tok, src, dst).IsRequest())
	assert.True(t, newStore(tok, src, dst, "k", "v").IsRequest())
	assert.True(t, newFindNode(tok, src, dst, tok).IsRequest())
	assert.True(t, newFindValue(tok, src, dst, "k").IsRequest())

	assert.True(t, newPong(tok, src, dst).IsResponse())
	assert.True(t, newNodes(tok, src, dst, nil).IsResponse())
	assert.True(t, newValueFound(tok, src, dst, "v").IsResponse())

	abort := newAbort(src, dst)
	assert.False(t, abort.IsRequest())
	assert.False(t, abort.IsResponse())
}

func TestNewPongNodesValueFoundAnswerRequestToken(t *testing.T) {
	self := routing.NewContact("10.0.0.1", 1)
	peer := routing.NewContact("10.0.0.2", 2)
	req := newPing(key.FromString("corr"), peer, self)

	pong := NewPong(req, self)
	assert.Equal(t, req.Token, pong.Token)
	assert.Equal(t, self.ID, pong.Src.ID)
	assert.Equal(t, peer.ID, pong.Dst.ID)

	nodes := NewNodes(req, self, []FoundContact{{Contact: peer, Distance: key.XOR(self.ID, peer.ID)}})
	assert.Equal(t, req.Token, nodes.Token)
	assert.Len(t, nodes.Nodes, 1)

	val := NewValueFound(req, self, "hello")
	assert.Equal(t, req.Token, val.Token)
	assert.Equal(t, "hello", val.Value)
}
