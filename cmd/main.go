package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kass/building-limits/pkg/config"
	"github.com/kass/building-limits/pkg/geojson"
	"github.com/kass/building-limits/pkg/logger"
	"github.com/kass/building-limits/pkg/merge"
	"github.com/kass/building-limits/pkg/models"
	"github.com/kass/building-limits/pkg/pipeline"
	"github.com/kass/building-limits/pkg/postgis"
	"github.com/kass/building-limits/pkg/store"
	"github.com/kass/building-limits/pkg/store/sqlite"
	"github.com/spf13/cobra"
)

// cliOptions holds the flag values shared by the subcommands.
type cliOptions struct {
	configFile       string
	verbose          bool
	buildingLimits   string
	heightPlateaus   string
	outFile          string
	strategy         string
	defaultElevation float64
	storeDriver      string
	storeDSN         string

	gridSize   int
	runs       int
	numWorkers int
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}

	rootCmd := &cobra.Command{
		Use:           "building-limits",
		Short:         "Split building limits by height plateaus",
		Long:          `Merges overlapping building limits and splits them along height plateaus, tagging every fragment with an elevation.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose output")

	splitCmd := &cobra.Command{
		Use:   "split",
		Short: "Split building limits according to height plateaus",
		Long:  `Validate both inputs, merge overlapping building limits and split them along the height plateaus.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSplit(cmd, opts)
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate building limits and height plateaus without splitting",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, opts)
		},
	}

	mergeCmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge overlapping building limits",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMerge(cmd, opts)
		},
	}

	benchCmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark the pipeline on synthetic grids",
		Long:  `Generate a grid of building limits and height plateaus and time repeated pipeline runs from concurrent callers.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(cmd, opts)
		},
	}

	for _, c := range []*cobra.Command{splitCmd, validateCmd, mergeCmd} {
		c.Flags().StringVarP(&opts.buildingLimits, "building-limits", "b", "", "GeoJSON file with building limits")
		c.MarkFlagRequired("building-limits")
	}
	for _, c := range []*cobra.Command{splitCmd, validateCmd} {
		c.Flags().StringVarP(&opts.heightPlateaus, "height-plateaus", "p", "", "GeoJSON file with height plateaus")
		c.MarkFlagRequired("height-plateaus")
	}
	for _, c := range []*cobra.Command{splitCmd, mergeCmd, benchCmd} {
		c.Flags().StringVarP(&opts.strategy, "strategy", "s", string(merge.StrategyAnchor), "Merge strategy: anchor, transitive")
	}
	splitCmd.Flags().StringVarP(&opts.outFile, "out", "o", "", "Write fragments as GeoJSON to this file")
	splitCmd.Flags().Float64Var(&opts.defaultElevation, "default-elevation", models.DefaultElevation, "Elevation of uncovered parts")
	splitCmd.Flags().StringVar(&opts.storeDriver, "store", "", "Persist the run: none, sqlite, postgis")
	splitCmd.Flags().StringVar(&opts.storeDSN, "dsn", "", "SQLite file or PostGIS connection string")
	mergeCmd.Flags().StringVarP(&opts.outFile, "out", "o", "", "Write merged building limits as GeoJSON to this file")

	benchCmd.Flags().IntVarP(&opts.gridSize, "grid", "g", 20, "Grid cells per side")
	benchCmd.Flags().IntVarP(&opts.runs, "runs", "r", 50, "Number of pipeline runs")
	benchCmd.Flags().IntVarP(&opts.numWorkers, "workers", "w", 4, "Number of concurrent callers")

	rootCmd.AddCommand(splitCmd, validateCmd, mergeCmd, benchCmd)
	return rootCmd
}

// loadConfig reads the config file (if any), applies flag overrides and
// installs the logger.
func loadConfig(cmd *cobra.Command, opts *cliOptions) (config.Config, error) {
	cfg := config.Default()
	if opts.configFile != "" {
		var err error
		if cfg, err = config.Load(opts.configFile); err != nil {
			return config.Config{}, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("strategy") {
		cfg.MergeStrategy = opts.strategy
	}
	if flags.Changed("default-elevation") {
		cfg.DefaultElevation = opts.defaultElevation
	}
	if flags.Changed("store") {
		cfg.Store.Driver = opts.storeDriver
	}
	if flags.Changed("dsn") {
		cfg.Store.DSN = opts.storeDSN
	}
	if opts.verbose {
		cfg.Log.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}

	if _, err := logger.Setup(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cmd.ErrOrStderr(),
	}); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func openStore(cfg config.StoreConfig) (store.Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case config.DriverSQLite:
		return sqlite.Open(cfg.DSN)
	case config.DriverPostGIS:
		return postgis.Open(cfg.DSN)
	}
	return nil, nil
}

func readInputs(opts *cliOptions, withPlateaus bool) (buildingLimits, heightPlateaus []*models.Feature, err error) {
	buildingLimits, err = geojson.ReadFile(opts.buildingLimits)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load building limits: %w", err)
	}
	if !withPlateaus {
		return buildingLimits, nil, nil
	}
	heightPlateaus, err = geojson.ReadFile(opts.heightPlateaus)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load height plateaus: %w", err)
	}
	return buildingLimits, heightPlateaus, nil
}

func runSplit(cmd *cobra.Command, opts *cliOptions) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	buildingLimits, heightPlateaus, err := readInputs(opts, true)
	if err != nil {
		return err
	}

	st, err := openStore(cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	if st != nil {
		defer st.Close()
	}

	strategy, _ := merge.ParseStrategy(cfg.MergeStrategy)
	p := pipeline.New(pipeline.Options{
		Strategy:         strategy,
		DefaultElevation: cfg.DefaultElevation,
		Store:            st,
	})

	run, err := p.Run(contextOrBackground(cmd), buildingLimits, heightPlateaus)
	if err != nil {
		return fmt.Errorf("split failed: %w", err)
	}

	if opts.outFile != "" {
		if err := geojson.WriteFile(opts.outFile, run.Fragments); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d fragments to %s (run %s)\n", len(run.Fragments), opts.outFile, run.ID)
		return nil
	}

	printFeatures(cmd.OutOrStdout(), run.Fragments)
	return nil
}

func runValidate(cmd *cobra.Command, opts *cliOptions) error {
	if _, err := loadConfig(cmd, opts); err != nil {
		return err
	}

	buildingLimits, heightPlateaus, err := readInputs(opts, true)
	if err != nil {
		return err
	}

	if err := pipeline.ValidateBuildingLimits(buildingLimits); err != nil {
		return err
	}
	if err := pipeline.ValidateHeightPlateaus(heightPlateaus); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "OK: %d building limits, %d height plateaus\n", len(buildingLimits), len(heightPlateaus))
	return nil
}

func runMerge(cmd *cobra.Command, opts *cliOptions) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	buildingLimits, _, err := readInputs(opts, false)
	if err != nil {
		return err
	}
	if err := pipeline.ValidateBuildingLimits(buildingLimits); err != nil {
		return err
	}

	strategy, _ := merge.ParseStrategy(cfg.MergeStrategy)
	merged := merge.Merge(buildingLimits, strategy)

	if opts.outFile != "" {
		return geojson.WriteFile(opts.outFile, merged)
	}
	printFeatures(cmd.OutOrStdout(), merged)
	return nil
}

// printFeatures lists each feature's position, geometry and elevation.
func printFeatures(w io.Writer, features []*models.Feature) {
	for i, f := range features {
		fmt.Fprintln(w, i)
		fmt.Fprintln(w, f.Geometry.ToWKT())
		if e, err := f.Elevation(); err == nil {
			fmt.Fprintln(w, e)
		} else {
			fmt.Fprintln(w, "-")
		}
	}
}

// contextOrBackground keeps tests that call RunE directly working.
func contextOrBackground(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
