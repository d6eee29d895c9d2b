package strategy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryBuild(t *testing.T) {
	r := NewRegistry()
	r.Register("Arbitrage", func() (Strategy, error) {
		return NewArbitrage(DefaultArbitrageConfig(), newFakeSource(), discard()), nil
	})
	r.Register("broken", func() (Strategy, error) { return nil, errors.New("no source") })

	assert.Equal(t, []string{"arbitrage", "broken"}, r.List())

	s, err := r.Build("ARBITRAGE")
	require.NoError(t, err)
	assert.Equal(t, ArbitrageName, s.Name())

	_, err = r.Build("broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no source")

	_, err = r.Build("momentum")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "known: arbitrage, broken")
}
