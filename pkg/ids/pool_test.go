package ids

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/rawlayer/pkg/core"
	"github.com/TFMV/rawlayer/pkg/draw"
)

func TestGenerateProducesUniqueIDs(t *testing.T) {
	p, err := Generate("orgs", draw.New(42), 500)
	require.NoError(t, err)
	assert.Equal(t, 500, p.Len())
	assert.True(t, p.Frozen())

	seen := map[uuid.UUID]bool{}
	for _, id := range p.IDs() {
		assert.False(t, seen[id])
		seen[id] = true
		assert.True(t, p.Contains(id))
	}
}

func TestSampleDrawsFromPool(t *testing.T) {
	src := draw.New(1)
	p, err := Generate("users", src, 10)
	require.NoError(t, err)

	hits := map[uuid.UUID]int{}
	for i := 0; i < 2000; i++ {
		id, err := p.Sample(src)
		require.NoError(t, err)
		require.True(t, p.Contains(id))
		hits[id]++
	}
	// With replacement: every member is reachable.
	assert.Len(t, hits, 10)
}

func TestSampleEmptyPool(t *testing.T) {
	src := draw.New(1)

	empty, err := Generate("products", src, 0)
	require.NoError(t, err)
	_, err = empty.Sample(src)
	assert.True(t, core.IsEmptyPoolError(err))

	building := NewPool("orgs", 4)
	building.Add(src.UUID())
	_, err = building.Sample(src)
	assert.True(t, core.IsEmptyPoolError(err), "sampling before Freeze must fail")
}

func TestGenerateRejectsNegativeCount(t *testing.T) {
	_, err := Generate("orgs", draw.New(1), -1)
	assert.True(t, core.IsConfigError(err))
}

func TestAddAfterFreezePanics(t *testing.T) {
	p := NewPool("orgs", 0)
	p.Freeze()
	assert.Panics(t, func() { p.Add(uuid.New()) })
}
