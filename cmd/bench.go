package main

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kass/building-limits/pkg/merge"
	"github.com/kass/building-limits/pkg/models"
	"github.com/kass/building-limits/pkg/pipeline"
	"github.com/spf13/cobra"
	"github.com/twpayne/go-geos"
)

// BenchmarkResult summarizes repeated pipeline runs.
type BenchmarkResult struct {
	TotalRuns      int
	Failed         int64
	TotalDuration  time.Duration
	AvgDuration    time.Duration
	RunsPerSec     float64
	MinDuration    time.Duration
	MaxDuration    time.Duration
	TotalFragments int64
}

func runBench(cmd *cobra.Command, opts *cliOptions) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	if opts.gridSize < 1 || opts.runs < 1 || opts.numWorkers < 1 {
		return fmt.Errorf("grid, runs and workers must be positive")
	}

	buildingLimits, heightPlateaus, err := generateGrid(opts.gridSize, time.Now().UnixNano())
	if err != nil {
		return err
	}

	strategy, _ := merge.ParseStrategy(cfg.MergeStrategy)
	p := pipeline.New(pipeline.Options{Strategy: strategy, DefaultElevation: cfg.DefaultElevation})

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Running %d pipeline runs on a %dx%d grid with %d callers...\n",
		opts.runs, opts.gridSize, opts.gridSize, opts.numWorkers)

	result := benchmarkPipeline(cmd, p, buildingLimits, heightPlateaus, opts.runs, opts.numWorkers)

	fmt.Fprintln(out, "\n=== Benchmark Results ===")
	fmt.Fprintf(out, "Building Limits: %d\n", len(buildingLimits))
	fmt.Fprintf(out, "Height Plateaus: %d\n", len(heightPlateaus))
	fmt.Fprintf(out, "Total Runs: %d\n", result.TotalRuns)
	fmt.Fprintf(out, "Failed Runs: %d\n", result.Failed)
	fmt.Fprintf(out, "Total Duration: %v\n", result.TotalDuration)
	fmt.Fprintf(out, "Average Duration: %v\n", result.AvgDuration)
	fmt.Fprintf(out, "Runs/Second: %.2f\n", result.RunsPerSec)
	fmt.Fprintf(out, "Min Duration: %v\n", result.MinDuration)
	fmt.Fprintf(out, "Max Duration: %v\n", result.MaxDuration)
	fmt.Fprintf(out, "Total Fragments: %d\n", result.TotalFragments)
	fmt.Fprintf(out, "Callers Used: %d\n", opts.numWorkers)
	return nil
}

// benchmarkPipeline feeds runs to concurrent callers. The pipeline ticket
// serializes them, so the durations include time spent waiting for it.
func benchmarkPipeline(cmd *cobra.Command, p *pipeline.Pipeline, buildingLimits, heightPlateaus []*models.Feature,
	runs, workers int) BenchmarkResult {

	var (
		totalFragments atomic.Int64
		failed         atomic.Int64
		minDuration    = time.Hour
		maxDuration    time.Duration
		mu             sync.Mutex
	)

	ctx := contextOrBackground(cmd)
	startTime := time.Now()

	// Worker pool
	runCh := make(chan int, runs)
	var wg sync.WaitGroup

	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()

			for range runCh {
				start := time.Now()
				run, err := p.Run(ctx, buildingLimits, heightPlateaus)
				elapsed := time.Since(start)

				if err != nil {
					failed.Add(1)
					continue
				}
				totalFragments.Add(int64(len(run.Fragments)))

				mu.Lock()
				if elapsed < minDuration {
					minDuration = elapsed
				}
				if elapsed > maxDuration {
					maxDuration = elapsed
				}
				mu.Unlock()
			}
		}()
	}

	for i := 0; i < runs; i++ {
		runCh <- i
	}
	close(runCh)
	wg.Wait()

	total := time.Since(startTime)
	return BenchmarkResult{
		TotalRuns:      runs,
		Failed:         failed.Load(),
		TotalDuration:  total,
		AvgDuration:    total / time.Duration(runs),
		RunsPerSec:     float64(runs) / total.Seconds(),
		MinDuration:    minDuration,
		MaxDuration:    maxDuration,
		TotalFragments: totalFragments.Load(),
	}
}

// generateGrid lays out size x size plateaus of 10x10 units with random
// elevations, and building limits of jittered size around each cell so that
// some of them overlap their neighbours.
func generateGrid(size int, seed int64) (buildingLimits, heightPlateaus []*models.Feature, err error) {
	r := rand.New(rand.NewSource(seed))

	rect := func(minX, minY, maxX, maxY float64) (*geos.Geom, error) {
		return geos.NewGeomFromWKT(fmt.Sprintf(
			"POLYGON ((%[1]f %[2]f, %[3]f %[2]f, %[3]f %[4]f, %[1]f %[4]f, %[1]f %[2]f))",
			minX, minY, maxX, maxY))
	}

	for i := 0; i < size; i++ {
		for j := 0; j < size; j++ {
			x, y := float64(i*10), float64(j*10)

			hp, err := rect(x, y, x+10, y+10)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to build plateau %d,%d: %w", i, j, err)
			}
			heightPlateaus = append(heightPlateaus, &models.Feature{
				ID:         fmt.Sprintf("hp_%d_%d", i, j),
				Geometry:   hp,
				Properties: map[string]any{models.ElevationKey: float64(r.Intn(100))},
			})

			grow := r.Float64() * 3
			bl, err := rect(x+2-grow, y+2-grow, x+8+grow, y+8+grow)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to build building limit %d,%d: %w", i, j, err)
			}
			buildingLimits = append(buildingLimits, &models.Feature{
				ID:         fmt.Sprintf("bl_%d_%d", i, j),
				Geometry:   bl,
				Properties: map[string]any{},
			})
		}
	}

	return buildingLimits, heightPlateaus, nil
}
