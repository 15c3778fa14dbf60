package nat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNone(t *testing.T) {
	iface, err := Parse("none")
	require.NoError(t, err)
	assert.Nil(t, iface)

	iface, err = Parse("")
	require.NoError(t, err)
	assert.Nil(t, iface)
}

func TestParseExtIP(t *testing.T) {
	iface, err := Parse("extip:203.0.113.5")
	require.NoError(t, err)
	require.NotNil(t, iface)

	ip, err := iface.ExternalIP()
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.5", ip.String())
}

func TestParseExtIPRejectsGarbage(t *testing.T) {
	_, err := Parse("extip:not-an-ip")
	assert.Error(t, err)
}

func TestParseUnknownMechanism(t *testing.T) {
	_, err := Parse("carrier-pigeon")
	assert.Error(t, err)
}
