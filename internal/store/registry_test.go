package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRegistryIsComplete(t *testing.T) {
	r := NewMemory()
	require.NoError(t, r.Validate())
	for _, e := range Entities {
		assert.True(t, r.Bound(e), string(e))
	}
}

func TestValidateReportsUnboundEntities(t *testing.T) {
	r := NewMemory()
	r.Calls = nil
	r.Accounts = nil

	err := r.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnbound)
	assert.Contains(t, err.Error(), "call")
	assert.Contains(t, err.Error(), "account")
	assert.NotContains(t, err.Error(), "lead")

	var nilRegistry *Registry
	assert.ErrorIs(t, nilRegistry.Validate(), ErrUnbound)
	assert.False(t, r.Bound(Entity("widget")))
}
