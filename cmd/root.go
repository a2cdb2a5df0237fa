package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/inference-sim/swizzle-sim/sim"
	"github.com/inference-sim/swizzle-sim/sim/record"
	"github.com/inference-sim/swizzle-sim/sim/trace"
)

var (
	// Global flags
	logLevel         string // Log verbosity level
	defaultsFilePath string // Path to the presets file
	preset           string // Preset name in the presets file

	// Simulation flags shared by run, play, compare, serve and schedule
	seed          int64  // Seed for the request-order shuffle
	dimM          int    // Output rows, in tiles
	dimN          int    // Output columns, in tiles
	dimK          int    // Reduction steps per output tile
	blockSizeM    int    // Rows per output block
	blockSizeN    int    // Columns per output block
	mode          string // Traversal order
	groupSizeM    int    // Rows per group in grouped mode
	numCTAs       int    // Simulated concurrent CTAs
	maxCTAs       int    // Upper bound for CTAs (0 = unbounded)
	cacheCapacity int    // LRU capacity in tiles

	// run flags
	jsonOutput  bool   // Print metrics as JSON
	outputPath  string // Write metrics JSON to this file
	traceLevel  string // Access trace verbosity
	recordPath  string // SQLite file for per-step rows
	recordSteps bool   // Record to a generated SQLite file name
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "swizzle-sim",
	Short: "Simulator of L2 reuse under GEMM output-tile swizzling",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)
	},
}

// registerSimFlags adds the configuration flags every simulating command accepts.
func registerSimFlags(cmd *cobra.Command) {
	cmd.Flags().Int64Var(&seed, "seed", 0, "Seed for the request-order shuffle (unset = time-based)")
	cmd.Flags().IntVar(&dimM, "m", sim.DefaultM, "Output rows, in tiles")
	cmd.Flags().IntVar(&dimN, "n", sim.DefaultN, "Output columns, in tiles")
	cmd.Flags().IntVar(&dimK, "k", sim.DefaultK, "Reduction steps per output tile")
	cmd.Flags().IntVar(&blockSizeM, "block-size-m", 1, "Rows per output block")
	cmd.Flags().IntVar(&blockSizeN, "block-size-n", 1, "Columns per output block")
	cmd.Flags().StringVar(&mode, "mode", string(sim.ModeRowMajor), "Traversal order: row-major, grouped")
	cmd.Flags().IntVar(&groupSizeM, "group-size", sim.DefaultGroupSizeM, "Rows per group in grouped mode (default min(3, m))")
	cmd.Flags().IntVar(&numCTAs, "ctas", sim.DefaultNumCTAs, "Simulated concurrent CTAs")
	cmd.Flags().IntVar(&maxCTAs, "max-ctas", 0, "Upper bound for --ctas (0 = unbounded)")
	cmd.Flags().IntVar(&cacheCapacity, "cache-capacity", sim.DefaultCacheCapacity, "LRU capacity in tiles")
}

// buildConfig resolves the simulation config: defaults, then the preset, then
// every flag the user set explicitly. Preset values never override explicit flags.
func buildConfig(cmd *cobra.Command) (sim.Config, error) {
	cfg := sim.DefaultConfig()
	if preset != "" {
		p, err := GetPreset(defaultsFilePath, preset)
		if err != nil {
			return sim.Config{}, err
		}
		cfg = p
		logrus.Infof("Using preset %q from %s", preset, defaultsFilePath)
	}

	flags := cmd.Flags()
	setInt := func(name string, dst *int, v int) {
		if flags.Changed(name) {
			*dst = v
		}
	}
	setInt("m", &cfg.M, dimM)
	setInt("n", &cfg.N, dimN)
	setInt("k", &cfg.K, dimK)
	setInt("block-size-m", &cfg.BlockSizeM, blockSizeM)
	setInt("block-size-n", &cfg.BlockSizeN, blockSizeN)
	setInt("group-size", &cfg.GroupSizeM, groupSizeM)
	setInt("ctas", &cfg.NumCTAs, numCTAs)
	setInt("max-ctas", &cfg.MaxCTAs, maxCTAs)
	setInt("cache-capacity", &cfg.CacheCapacity, cacheCapacity)
	if flags.Changed("mode") {
		cfg.Mode = sim.Mode(mode)
	}

	// A smaller M without an explicit group size would otherwise fail validation.
	if !flags.Changed("group-size") && cfg.GroupSizeM > cfg.M {
		if cfg.M < sim.MinGroupSizeM {
			return sim.Config{}, fmt.Errorf("%w: m=%d cannot be configured; m must be at least the minimum group size %d",
				sim.ErrInvalidConfig, cfg.M, sim.MinGroupSizeM)
		}
		logrus.Warnf("group size %d exceeds m=%d; using %d", cfg.GroupSizeM, cfg.M, cfg.M)
		cfg.GroupSizeM = cfg.M
	}

	if err := cfg.Validate(); err != nil {
		return sim.Config{}, err
	}
	return cfg, nil
}

// simulationKey returns the --seed key when set, otherwise a time-based key.
func simulationKey(cmd *cobra.Command) sim.SimulationKey {
	if cmd.Flags().Changed("seed") {
		return sim.NewSimulationKey(seed)
	}
	key := sim.UnseededKey()
	logrus.Infof("No --seed given; using %d", key)
	return key
}

// exitFunc ends the process; tests replace it.
var exitFunc = atexit.Exit

// fatalf logs at error level and exits through atexit, so registered recorder
// flushes still run. logrus.Fatalf would skip them.
func fatalf(format string, args ...interface{}) {
	logrus.Errorf(format, args...)
	exitFunc(1)
}

// runCmd executes the simulation to completion using parameters from CLI flags
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the simulation to completion and print hit/miss metrics",
	Run: func(cmd *cobra.Command, args []string) {
		if !trace.IsValidTraceLevel(traceLevel) {
			fatalf("Invalid trace level %q; valid: none, steps, accesses", traceLevel)
		}
		cfg, err := buildConfig(cmd)
		if err != nil {
			fatalf("%v", err)
		}
		s, err := sim.NewSimulator(cfg, simulationKey(cmd))
		if err != nil {
			fatalf("%v", err)
		}

		var st *trace.SimulationTrace
		if traceLevel != "" && trace.TraceLevel(traceLevel) != trace.TraceLevelNone {
			st = trace.NewSimulationTrace(trace.TraceConfig{Level: trace.TraceLevel(traceLevel)})
			s.AddObserver(trace.NewObserver(st))
		}

		var rec *record.Recorder
		if recordPath != "" || recordSteps {
			rec, err = record.New(recordPath)
			if err != nil {
				fatalf("%v", err)
			}
			runID, err := rec.BeginRun(cfg, s.Key())
			if err != nil {
				fatalf("%v", err)
			}
			logrus.Infof("Recording run %s to %s", runID, rec.Path())
			s.AddObserver(rec)
		}

		s.RunToCompletion()
		mo := s.Metrics()

		if rec != nil {
			if err := rec.Close(); err != nil {
				fatalf("Recording failed: %v", err)
			}
		}

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(mo); err != nil {
				fatalf("Encoding metrics: %v", err)
			}
		} else if err := mo.SaveResults(outputPath); err != nil {
			fatalf("%v", err)
		}

		if st != nil {
			printTraceSummary(trace.Summarize(st))
		}
		logrus.Info("Simulation complete.")
	},
}

func printTraceSummary(ts *trace.TraceSummary) {
	fmt.Println("=== Access Trace ===")
	fmt.Printf("Steps recorded       : %d\n", ts.StepsRecorded)
	fmt.Printf("Peak cache occupancy : %d\n", ts.PeakCacheLen)
	if ts.TotalAccesses == 0 {
		return
	}
	fmt.Printf("Accesses recorded    : %d\n", ts.TotalAccesses)
	fmt.Printf("Compulsory misses    : %d\n", ts.CompulsoryMisses)
	fmt.Printf("Reload misses        : %d\n", ts.ReloadMisses)
	fmt.Printf("Evictions            : %d\n", ts.Evictions)
	fmt.Printf("Unique tiles         : %d\n", ts.UniqueTiles)
	if ts.MaxReloads > 0 {
		fmt.Printf("Most reloaded        : %v (%d reloads)\n", ts.MostReloaded, ts.MaxReloads)
	}
}

// Execute runs the CLI root command. Exit goes through atexit so buffered
// recorders are flushed.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		atexit.Exit(1)
	}
	atexit.Exit(0)
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().StringVar(&defaultsFilePath, "defaults", "defaults.yaml", "Path to the presets file")
	rootCmd.PersistentFlags().StringVar(&preset, "preset", "", "Preset name from the presets file")

	registerSimFlags(runCmd)
	runCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print metrics as JSON")
	runCmd.Flags().StringVar(&outputPath, "output", "", "Also write metrics JSON to this file")
	runCmd.Flags().StringVar(&traceLevel, "trace", "none", "Access trace level: none, steps, accesses")
	runCmd.Flags().StringVar(&recordPath, "record", "", "Record per-step counters to this SQLite file")
	runCmd.Flags().BoolVar(&recordSteps, "record-default", false, "Record per-step counters to a generated SQLite file")

	// Attach `run` as a subcommand to `root`
	rootCmd.AddCommand(runCmd)
}
