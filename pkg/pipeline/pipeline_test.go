package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/kass/building-limits/internal/testutil"
	"github.com/kass/building-limits/pkg/merge"
	"github.com/kass/building-limits/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func halves(t *testing.T) ([]*models.Feature, []*models.Feature) {
	t.Helper()
	return []*models.Feature{testutil.Square(t, 0, 0, 10, 10)},
		[]*models.Feature{
			testutil.Plateau(t, 0, 0, 5, 10, 100),
			testutil.Plateau(t, 5, 0, 10, 10, 200),
		}
}

func TestSplitBuildingLimitsScenario(t *testing.T) {
	buildingLimits, heightPlateaus := halves(t)

	fragments, err := SplitBuildingLimits(buildingLimits, heightPlateaus)
	require.NoError(t, err)
	require.Len(t, fragments, 2)

	assert.InDelta(t, 50.0, fragments[0].Geometry.Area(), 1e-9)
	assert.InDelta(t, 50.0, fragments[1].Geometry.Area(), 1e-9)
	assert.Equal(t, []float64{100, 200}, testutil.Elevations(t, fragments))
	assert.InDelta(t, 100.0, testutil.TotalArea(fragments), 1e-9)
}

func TestSplitBuildingLimitsMergesFirst(t *testing.T) {
	buildingLimits := []*models.Feature{
		testutil.Square(t, 0, 0, 6, 10),
		testutil.Square(t, 4, 0, 10, 10),
	}
	heightPlateaus := []*models.Feature{testutil.Plateau(t, 0, 0, 10, 10, 7)}

	fragments, err := SplitBuildingLimits(buildingLimits, heightPlateaus)
	require.NoError(t, err)
	require.Len(t, fragments, 1)
	assert.InDelta(t, 100.0, fragments[0].Geometry.Area(), 1e-9)
	assert.Equal(t, []float64{7}, testutil.Elevations(t, fragments))
}

func TestSplitBuildingLimitsErrors(t *testing.T) {
	testCases := []struct {
		name           string
		buildingLimits func(t *testing.T) []*models.Feature
		heightPlateaus func(t *testing.T) []*models.Feature
		kind           models.ErrorKind
		sentinel       error
	}{
		{
			name:           "nil building limits",
			buildingLimits: func(t *testing.T) []*models.Feature { return nil },
			heightPlateaus: func(t *testing.T) []*models.Feature {
				return []*models.Feature{testutil.Plateau(t, 0, 0, 1, 1, 1)}
			},
			kind:     models.KindEmptyInput,
			sentinel: models.ErrEmptyInput,
		},
		{
			name: "empty height plateaus",
			buildingLimits: func(t *testing.T) []*models.Feature {
				return []*models.Feature{testutil.Square(t, 0, 0, 1, 1)}
			},
			heightPlateaus: func(t *testing.T) []*models.Feature { return []*models.Feature{} },
			kind:           models.KindEmptyInput,
			sentinel:       models.ErrEmptyInput,
		},
		{
			name: "invalid building limit",
			buildingLimits: func(t *testing.T) []*models.Feature {
				return []*models.Feature{
					testutil.Square(t, 0, 0, 1, 1),
					testutil.Feature(t, "POLYGON ((0 0, 10 10, 10 0, 0 10, 0 0))", nil),
				}
			},
			heightPlateaus: func(t *testing.T) []*models.Feature {
				return []*models.Feature{testutil.Plateau(t, 0, 0, 1, 1, 1)}
			},
			kind:     models.KindInvalidPolygon,
			sentinel: models.ErrInvalidPolygon,
		},
		{
			name: "nil plateau",
			buildingLimits: func(t *testing.T) []*models.Feature {
				return []*models.Feature{testutil.Square(t, 0, 0, 1, 1)}
			},
			heightPlateaus: func(t *testing.T) []*models.Feature { return []*models.Feature{nil} },
			kind:           models.KindInvalidPolygon,
			sentinel:       models.ErrInvalidPolygon,
		},
		{
			name: "overlapping plateaus",
			buildingLimits: func(t *testing.T) []*models.Feature {
				return []*models.Feature{testutil.Square(t, 0, 0, 10, 10)}
			},
			heightPlateaus: func(t *testing.T) []*models.Feature {
				return []*models.Feature{
					testutil.Plateau(t, 0, 0, 6, 10, 1),
					testutil.Plateau(t, 5, 0, 10, 10, 2),
				}
			},
			kind:     models.KindOverlapDetected,
			sentinel: models.ErrOverlapDetected,
		},
		{
			name: "plateau without elevation",
			buildingLimits: func(t *testing.T) []*models.Feature {
				return []*models.Feature{testutil.Square(t, 0, 0, 10, 10)}
			},
			heightPlateaus: func(t *testing.T) []*models.Feature {
				return []*models.Feature{
					testutil.Plateau(t, 0, 0, 5, 10, 1),
					testutil.Square(t, 5, 0, 10, 10),
				}
			},
			kind:     models.KindMissingAttribute,
			sentinel: models.ErrMissingAttribute,
		},
		{
			name: "plateau with text elevation",
			buildingLimits: func(t *testing.T) []*models.Feature {
				return []*models.Feature{testutil.Square(t, 0, 0, 10, 10)}
			},
			heightPlateaus: func(t *testing.T) []*models.Feature {
				return []*models.Feature{
					testutil.Feature(t, testutil.Rect(0, 0, 5, 5), map[string]any{models.ElevationKey: "high"}),
				}
			},
			kind:     models.KindMissingAttribute,
			sentinel: models.ErrMissingAttribute,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fragments, err := SplitBuildingLimits(tc.buildingLimits(t), tc.heightPlateaus(t))
			require.Error(t, err)
			assert.Nil(t, fragments)
			assert.True(t, models.IsKind(err, tc.kind), "got %v", err)
			assert.True(t, errors.Is(err, tc.sentinel), "got %v", err)
		})
	}
}

func TestSplitBuildingLimitsLeavesInputsUntouched(t *testing.T) {
	buildingLimits := []*models.Feature{
		testutil.Feature(t, testutil.Rect(0, 0, 10, 10), map[string]any{"name": "a"}),
		testutil.Feature(t, testutil.Rect(50, 50, 60, 60), map[string]any{"name": "b"}),
		testutil.Feature(t, testutil.Rect(5, 5, 15, 15), map[string]any{"name": "c"}),
	}
	heightPlateaus := []*models.Feature{testutil.Plateau(t, 0, 0, 5, 5, 3)}

	order := append([]*models.Feature(nil), buildingLimits...)

	_, err := SplitBuildingLimits(buildingLimits, heightPlateaus)
	require.NoError(t, err)

	for i := range order {
		assert.Same(t, order[i], buildingLimits[i])
		assert.NotContains(t, buildingLimits[i].Properties, models.ElevationKey)
	}
	assert.Equal(t, map[string]any{models.ElevationKey: 3.0}, heightPlateaus[0].Properties)
}

func summarize(fragments []*models.Feature) []string {
	out := make([]string, len(fragments))
	for i, f := range fragments {
		e, _ := f.Elevation()
		out[i] = fmt.Sprintf("%s@%g", f.Geometry.ToWKT(), e)
	}
	return out
}

func TestSplitBuildingLimitsDeterministic(t *testing.T) {
	buildingLimits := []*models.Feature{
		testutil.Square(t, 0, 0, 10, 10),
		testutil.Square(t, 8, 8, 20, 20),
		testutil.Square(t, 40, 0, 50, 10),
	}
	heightPlateaus := []*models.Feature{
		testutil.Plateau(t, 0, 0, 12, 12, 1),
		testutil.Plateau(t, 12, 0, 45, 12, 2),
	}

	first, err := SplitBuildingLimits(buildingLimits, heightPlateaus)
	require.NoError(t, err)
	second, err := SplitBuildingLimits(buildingLimits, heightPlateaus)
	require.NoError(t, err)

	if diff := cmp.Diff(summarize(first), summarize(second)); diff != "" {
		t.Errorf("runs differ (-first +second):\n%s", diff)
	}
}

func TestRunTransitiveStrategy(t *testing.T) {
	buildingLimits := []*models.Feature{
		testutil.Square(t, 0, 0, 10, 10),
		testutil.Square(t, 9, 0, 20, 10),
		testutil.Square(t, 19, 0, 30, 10),
	}
	heightPlateaus := []*models.Feature{testutil.Plateau(t, 100, 100, 110, 110, 1)}

	opts := DefaultOptions()
	opts.Strategy = merge.StrategyTransitive
	run, err := New(opts).Run(context.Background(), buildingLimits, heightPlateaus)
	require.NoError(t, err)

	assert.NotEmpty(t, run.ID)
	assert.Len(t, run.Merged, 1)
	require.Len(t, run.Fragments, 1)
	assert.Equal(t, []float64{models.DefaultElevation}, testutil.Elevations(t, run.Fragments))
}

type recordingStore struct {
	mu   sync.Mutex
	runs []*models.Run
	err  error
}

func (s *recordingStore) SaveRun(_ context.Context, run *models.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.runs = append(s.runs, run)
	return nil
}

func (s *recordingStore) Close() error { return nil }

func TestRunSavesToStore(t *testing.T) {
	buildingLimits, heightPlateaus := halves(t)
	st := &recordingStore{}

	opts := DefaultOptions()
	opts.Store = st
	run, err := New(opts).Run(context.Background(), buildingLimits, heightPlateaus)
	require.NoError(t, err)

	require.Len(t, st.runs, 1)
	assert.Same(t, run, st.runs[0])
}

func TestRunStoreFailureReturnsNoResult(t *testing.T) {
	buildingLimits, heightPlateaus := halves(t)

	opts := DefaultOptions()
	opts.Store = &recordingStore{err: errors.New("disk full")}
	run, err := New(opts).Run(context.Background(), buildingLimits, heightPlateaus)
	assert.Error(t, err)
	assert.Nil(t, run)
}

func TestRunValidationFailureSkipsStore(t *testing.T) {
	st := &recordingStore{}
	opts := DefaultOptions()
	opts.Store = st

	_, err := New(opts).Run(context.Background(), nil, nil)
	require.Error(t, err)
	assert.Empty(t, st.runs)
}

func TestConcurrentCallersAreSerialized(t *testing.T) {
	const callers = 16

	type input struct{ buildingLimits, heightPlateaus []*models.Feature }
	inputs := make([]input, callers)
	for i := range inputs {
		inputs[i].buildingLimits, inputs[i].heightPlateaus = halves(t)
	}

	var wg sync.WaitGroup
	errs := make(chan error, callers)

	for _, in := range inputs {
		wg.Add(1)
		go func(in input) {
			defer wg.Done()
			fragments, err := SplitBuildingLimits(in.buildingLimits, in.heightPlateaus)
			if err == nil && len(fragments) != 2 {
				err = errors.New("unexpected fragment count")
			}
			errs <- err
		}(in)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestTicketBlocksUntilReleased(t *testing.T) {
	var ticket Ticket
	ticket.Acquire()

	acquired := make(chan struct{})
	go func() {
		ticket.Acquire()
		close(acquired)
		ticket.Release()
	}()

	select {
	case <-acquired:
		t.Fatal("second holder entered while the ticket was taken")
	case <-time.After(50 * time.Millisecond):
	}

	ticket.Release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("ticket was never handed over")
	}
}

func BenchmarkSplitBuildingLimits(b *testing.B) {
	var buildingLimits, heightPlateaus []*models.Feature
	for i := 0; i < 20; i++ {
		for j := 0; j < 20; j++ {
			x, y := float64(i*10), float64(j*10)
			buildingLimits = append(buildingLimits, testutil.Square(b, x+1, y+1, x+12, y+12))
			heightPlateaus = append(heightPlateaus, testutil.Plateau(b, x, y, x+10, y+10, float64(i+j)))
		}
	}

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := SplitBuildingLimits(buildingLimits, heightPlateaus); err != nil {
			b.Fatal(err)
		}
	}
}
