package autoid

import (
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateUniqueUnderConcurrency(t *testing.T) {
	const (
		workers       = 8
		idsPerWorker  = 12500
		totalExpected = workers * idsPerWorker
	)

	gen := New()
	results := make([][]string, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			ids := make([]string, 0, idsPerWorker)
			for i := 0; i < idsPerWorker; i++ {
				ids = append(ids, gen.Generate())
			}
			results[w] = ids
		}(w)
	}
	wg.Wait()

	seen := make(map[string]struct{}, totalExpected)
	for _, ids := range results {
		for _, id := range ids {
			seen[id] = struct{}{}
		}
	}
	assert.Len(t, seen, totalExpected)
}

func TestGenerateRoughlyOrdered(t *testing.T) {
	gen := New()
	prev := int64(-1)
	for i := 0; i < 1000; i++ {
		id, err := strconv.ParseInt(gen.Generate(), 10, 64)
		require.NoError(t, err)
		assert.Greater(t, id, prev)
		prev = id
	}
}

func TestGeneratePositive(t *testing.T) {
	id, err := strconv.ParseInt(Generate(), 10, 64)
	require.NoError(t, err)
	assert.Positive(t, id)
}

func TestWorkerIDWithinRange(t *testing.T) {
	gen := New()
	assert.GreaterOrEqual(t, gen.WorkerID(), int64(0))
	assert.LessOrEqual(t, gen.WorkerID(), int64(maxWorkerID))
}
