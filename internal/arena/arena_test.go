package arena

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArenaIdsAreDenseAndMonotonic(t *testing.T) {
	a, err := New(16)
	require.NoError(t, err)
	defer a.Close()

	idS, err := a.AllocTerminal(KindS, 0, 0, 0)
	require.NoError(t, err)
	idK, err := a.AllocTerminal(KindK, 0, 0, 0)
	require.NoError(t, err)
	idApp, err := a.AllocApplication(idS, idK)
	require.NoError(t, err)

	assert.Equal(t, uint32(1), idS)
	assert.Equal(t, uint32(2), idK)
	assert.Equal(t, uint32(3), idApp)

	node, ok := a.Get(idApp)
	require.True(t, ok)
	assert.True(t, node.IsApplication())
	assert.Equal(t, idS, node.Left)
	assert.Equal(t, idK, node.Right)
}

func TestArenaIdZeroIsNull(t *testing.T) {
	a, err := New(4)
	require.NoError(t, err)
	defer a.Close()

	_, ok := a.Get(0)
	assert.False(t, ok)
}

func TestArenaExhaustion(t *testing.T) {
	a, err := New(2)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.AllocTerminal(KindI, 0, 0, 0)
	require.NoError(t, err)
	_, err = a.AllocTerminal(KindI, 0, 0, 0)
	var exhausted ErrExhausted
	require.Error(t, err)
	assert.ErrorAs(t, err, &exhausted)
}

func TestArenaRewriteKeepsIdStable(t *testing.T) {
	a, err := New(8)
	require.NoError(t, err)
	defer a.Close()

	id, err := a.AllocTerminal(KindK, 0, 0, 0)
	require.NoError(t, err)

	ok := a.Rewrite(id, Node{Kind: KindI})
	require.True(t, ok)

	node, ok := a.Get(id)
	require.True(t, ok)
	assert.Equal(t, KindI, node.Kind)
}

func TestArenaLiteralRoundTrip(t *testing.T) {
	a, err := New(4)
	require.NoError(t, err)
	defer a.Close()

	var value uint64 = 0x00000001_0000002A
	id, err := a.AllocTerminal(KindLitInt, uint32(value>>32), 0, uint32(value))
	require.NoError(t, err)

	node, ok := a.Get(id)
	require.True(t, ok)
	assert.Equal(t, value, node.LitValue())
}
