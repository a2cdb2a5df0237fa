package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/swizzle-sim/sim"
)

// printScheduleGrid writes the launch order as a grid: cell (m, n) holds the
// pid that computes output tile (m, n).
func printScheduleGrid(w io.Writer, cfg sim.Config) error {
	schedule, err := sim.GenerateSchedule(cfg.M, cfg.N, cfg.BlockSizeM, cfg.BlockSizeN, cfg.GroupSizeM, cfg.Mode)
	if err != nil {
		return err
	}
	numPidM, numPidN := sim.GridShape(cfg.M, cfg.N, cfg.BlockSizeM, cfg.BlockSizeN)
	grid := make([][]int, numPidM)
	for m := range grid {
		grid[m] = make([]int, numPidN)
	}
	for _, tile := range schedule {
		grid[tile.M][tile.N] = tile.PID
	}

	width := len(fmt.Sprint(len(schedule) - 1))
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s order, %dx%d tiles", cfg.Mode, numPidM, numPidN)
	if cfg.Mode == sim.ModeGrouped {
		fmt.Fprintf(&sb, ", group size %d", cfg.GroupSizeM)
	}
	sb.WriteString("\n")
	for _, row := range grid {
		for n, pid := range row {
			if n > 0 {
				sb.WriteString(" ")
			}
			fmt.Fprintf(&sb, "%*d", width, pid)
		}
		sb.WriteString("\n")
	}
	_, err = io.WriteString(w, sb.String())
	return err
}

// scheduleCmd prints the traversal order without simulating the cache
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Print the tile traversal order as a grid of program ids",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := buildConfig(cmd)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		if err := printScheduleGrid(os.Stdout, cfg); err != nil {
			logrus.Fatalf("%v", err)
		}
	},
}

func init() {
	registerSimFlags(scheduleCmd)
	rootCmd.AddCommand(scheduleCmd)
}
