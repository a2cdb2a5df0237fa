package cmd

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/swizzle-sim/sim"
	"github.com/inference-sim/swizzle-sim/sim/sweep"
)

var compareRepeats int // Repeats per mode

// comparisonSpec builds a two-scenario sweep: row-major and grouped on cfg.
func comparisonSpec(cfg sim.Config, key sim.SimulationKey, repeats int) *sweep.Spec {
	rowMajor, grouped := sim.ModeRowMajor, sim.ModeGrouped
	return &sweep.Spec{
		Seed:    int64(key),
		Repeats: repeats,
		Base:    cfg,
		Scenarios: []sweep.ScenarioSpec{
			{Name: string(rowMajor), Mode: &rowMajor},
			{Name: string(grouped), Mode: &grouped},
		},
	}
}

// compareCmd runs row-major and grouped traversal on the same configuration
var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare row-major and grouped traversal on the same configuration",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := buildConfig(cmd)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		rows, err := sweep.Run(context.Background(), comparisonSpec(cfg, simulationKey(cmd), compareRepeats))
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		if err := sweep.PrintTable(os.Stdout, rows); err != nil {
			logrus.Fatalf("%v", err)
		}
		if len(rows) == 2 {
			logrus.Infof("grouped - row-major hit rate: %+.2f points", 100*(rows[1].MeanHitRate-rows[0].MeanHitRate))
		}
	},
}

func init() {
	registerSimFlags(compareCmd)
	compareCmd.Flags().IntVar(&compareRepeats, "repeats", 1, "Runs per mode, each with a derived seed")
	rootCmd.AddCommand(compareCmd)
}
