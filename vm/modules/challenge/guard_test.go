package challenge

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGuard(t *testing.T) {
	var g Guard
	release, err := g.Enter()
	require.NoError(t, err)
	require.True(t, g.Held())

	_, err = g.Enter()
	require.ErrorIs(t, err, ErrReentrantCall)

	release()
	require.False(t, g.Held())
	release, err = g.Enter()
	require.NoError(t, err)
	release()
}
