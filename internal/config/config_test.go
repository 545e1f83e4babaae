package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNodeIDDerivedFromPort(t *testing.T) {
	assert.Equal(t, "node9527", NodeID(9527))
}

func TestSelfAddrDerivedFromPort(t *testing.T) {
	assert.Equal(t, "http://cache-server-1:9527", SelfAddr(9527))
	assert.Equal(t, "http://cache-server-3:9529", SelfAddr(9529))
}

func TestDefaultsMatchReferenceCluster(t *testing.T) {
	c := Defaults(9527)
	assert.Equal(t, 150, c.VirtualNodes)
	assert.Equal(t, 10000, c.MaxEntries)
	assert.Equal(t, 1000, c.RateLimit)
	assert.Equal(t, []string{
		"http://cache-server-1:9527",
		"http://cache-server-2:9528",
		"http://cache-server-3:9529",
	}, c.Peers)
}

func TestAllPeersAddsSelfWhenAbsent(t *testing.T) {
	c := &Config{SelfAddr: "http://cache-server-9:9535", Peers: []string{"http://cache-server-1:9527"}}
	all := c.AllPeers()
	assert.Contains(t, all, "http://cache-server-9:9535")
	assert.Contains(t, all, "http://cache-server-1:9527")
}

func TestAllPeersNoDuplicateWhenSelfAlreadyListed(t *testing.T) {
	c := Defaults(9527)
	all := c.AllPeers()
	assert.Equal(t, c.Peers, all)
}

func TestStaticPeerSourceNeverChanges(t *testing.T) {
	s := NewStaticPeerSource([]string{"a", "b"})
	assert.Equal(t, []string{"a", "b"}, s.Peers())
}
