package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSinkFromArgs_RequiresActiveClient(t *testing.T) {
	activeClient = nil
	_, err := newSinkFromArgs(map[string]any{"subject": "chat"})
	assert.Error(t, err)
}

func TestNewSinkFromArgs_RequiresSubject(t *testing.T) {
	activeClient = &Client{}
	defer func() { activeClient = nil }()

	_, err := newSinkFromArgs(map[string]any{})
	assert.Error(t, err)
}

func TestNewSinkFromArgs_BuildsSinkOnSuccess(t *testing.T) {
	activeClient = &Client{}
	defer func() { activeClient = nil }()

	sk, err := newSinkFromArgs(map[string]any{"subject": "chat"})
	assert.NoError(t, err)
	assert.IsType(t, &Sink{}, sk)
}

func TestUseAsDefault_SetsActiveClient(t *testing.T) {
	c := &Client{}
	c.UseAsDefault()
	assert.Same(t, c, activeClient)
	activeClient = nil
}
