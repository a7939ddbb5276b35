package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReference_ParseConnect(t *testing.T) {
	p := NewReference()
	ev, err := p.Parse("Pilot1 has connected")
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, EventHumanConnected, ev.Kind)
	assert.Equal(t, "Pilot1", ev.Actor)
}

func TestReference_ParseDisconnect(t *testing.T) {
	p := NewReference()
	ev, err := p.Parse("Pilot2 has disconnected")
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, EventHumanDisconnected, ev.Kind)
	assert.Equal(t, "Pilot2", ev.Actor)
}

func TestReference_ParseOtherEvent(t *testing.T) {
	p := NewReference()
	ev, err := p.Parse("T:120.5 AType:1 ...")
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, EventOther, ev.Kind)
}

func TestReference_NotParsedReturnsNil(t *testing.T) {
	p := NewReference()
	ev, err := p.Parse("garbage line nobody understands")
	require.NoError(t, err)
	assert.Nil(t, ev)
}

func TestReference_EmptyLineReturnsNil(t *testing.T) {
	p := NewReference()
	ev, err := p.Parse("   ")
	require.NoError(t, err)
	assert.Nil(t, ev)
}
