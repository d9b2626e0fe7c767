package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/DrSkyle/graphbench/pkg/comm"
	"github.com/DrSkyle/graphbench/pkg/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeasure_SingleRankVisitsEveryVertex(t *testing.T) {
	g, err := graph.Generate(10, 2, 42)
	require.NoError(t, err)
	stats := graph.Analyze(g)
	world := comm.NewWorld(1)

	for _, mode := range []Mode{DFS, BFS} {
		s, err := Measure(context.Background(), world[0], g, graph.Partition(10, 0, 1), mode)
		require.NoError(t, err, mode.String())
		assert.Equal(t, 10, s.Marked, mode.String())
		assert.Equal(t, stats.Components, s.Roots, mode.String())
		assert.GreaterOrEqual(t, s.Seconds, 0.0)
	}
}

func TestMeasure_EmptyRangeStillSynchronizes(t *testing.T) {
	g, err := graph.FromEdges(1, nil)
	require.NoError(t, err)

	world := comm.NewWorld(2)
	samples := make([]Sample, 2)
	var wg sync.WaitGroup
	for _, c := range world {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := graph.Partition(1, c.Rank(), c.Size())
			s, err := Measure(context.Background(), c, g, r, DFS)
			assert.NoError(t, err)
			samples[c.Rank()] = s
		}()
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("ranks did not meet at both barriers")
	}

	assert.Equal(t, Sample{}, samples[0], "rank 0 owns [0,0)")
	assert.Equal(t, 1, samples[1].Marked)
}

func TestMeasure_RangeOnlyLaunchesFromOwnedVertices(t *testing.T) {
	// 0-1-2 3-4 5: rank 1 of 2 owns [3,6) and must not start from 0..2.
	g, err := graph.FromEdges(6, [][2]int{{0, 1}, {1, 2}, {3, 4}})
	require.NoError(t, err)

	world := comm.NewWorld(2)
	samples := make([]Sample, 2)
	var wg sync.WaitGroup
	for _, c := range world {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := Measure(context.Background(), c, g, graph.Partition(6, c.Rank(), 2), BFS)
			assert.NoError(t, err)
			samples[c.Rank()] = s
		}()
	}
	wg.Wait()

	assert.Equal(t, Sample{Seconds: samples[0].Seconds, Roots: 1, Marked: 3}, samples[0])
	assert.Equal(t, Sample{Seconds: samples[1].Seconds, Roots: 2, Marked: 3}, samples[1])
}

func TestMeasure_CanceledContext(t *testing.T) {
	g := graph.New(2)
	world := comm.NewWorld(2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Measure(ctx, world[0], g, graph.Partition(2, 0, 2), DFS)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "dfs", DFS.String())
	assert.Equal(t, "bfs", BFS.String())
	assert.Equal(t, "mode(7)", Mode(7).String())
}
