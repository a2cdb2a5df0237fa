package cmd

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/swizzle-sim/sim/sweep"
)

var (
	sweepSpecPath string // Path to the sweep spec YAML
	sweepJSON     bool   // Print rows as JSON
)

// sweepCmd runs every scenario of a YAML sweep spec
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run every scenario in a YAML sweep spec and print a comparison table",
	Run: func(cmd *cobra.Command, args []string) {
		if sweepSpecPath == "" {
			logrus.Fatalf("--spec is required")
		}
		spec, err := sweep.LoadSpec(sweepSpecPath)
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		rows, err := sweep.Run(ctx, spec)
		if err != nil {
			logrus.Fatalf("Sweep failed: %v", err)
		}

		if sweepJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(rows); err != nil {
				logrus.Fatalf("Encoding rows: %v", err)
			}
			return
		}
		if err := sweep.PrintTable(os.Stdout, rows); err != nil {
			logrus.Fatalf("%v", err)
		}
	},
}

func init() {
	sweepCmd.Flags().StringVar(&sweepSpecPath, "spec", "", "Path to the sweep spec YAML")
	sweepCmd.Flags().BoolVar(&sweepJSON, "json", false, "Print rows as JSON")
	rootCmd.AddCommand(sweepCmd)
}
