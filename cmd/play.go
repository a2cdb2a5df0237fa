package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/swizzle-sim/sim"
	"github.com/inference-sim/swizzle-sim/sim/playback"
)

var speed float64 // Playback speed multiplier

// formatSnapshot renders one status line for a snapshot.
func formatSnapshot(snap sim.Snapshot) string {
	return fmt.Sprintf("step %4d/%d  batch %3d  k %2d/%d  ctas %2d  cache %3d/%d  hit %5.1f%%  A %5.1f%%  B %5.1f%%  primary A:%s B:%s",
		snap.MicroStep, snap.TotalMicroSteps, snap.BatchIndex, snap.KIndex+1, snap.Config.K,
		snap.ActiveCTAs, len(snap.Cache), snap.CacheCapacity,
		100*snap.HitRate, 100*snap.HitRateA, 100*snap.HitRateB,
		residency(snap.PrimaryAHit), residency(snap.PrimaryBHit))
}

func residency(hit bool) string {
	if hit {
		return "in-cache"
	}
	return "loading"
}

// playUntilFinished plays s at the given speed, writing a line per step, until
// the simulation finishes or ctx is cancelled.
func playUntilFinished(ctx context.Context, s *sim.Simulator, speed float64, w io.Writer) error {
	p, err := playback.NewPlayer(s, speed)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.OnStep(func(status sim.Status) {
		_, _ = fmt.Fprintln(w, formatSnapshot(s.Snapshot()))
		if status == sim.StatusFinished {
			cancel()
		}
	})
	if !p.Play() {
		return nil
	}
	err = p.Run(ctx)
	if errors.Is(err, context.Canceled) && s.Status() == sim.StatusFinished {
		return nil
	}
	return err
}

// playCmd advances the simulation on a timer, printing each step
var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Play the simulation step by step at a given speed",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := buildConfig(cmd)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		s, err := sim.NewSimulator(cfg, simulationKey(cmd))
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		if err := playUntilFinished(ctx, s, speed, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			logrus.Fatalf("%v", err)
		}
		if err := s.Metrics().SaveResults(""); err != nil {
			logrus.Fatalf("%v", err)
		}
	},
}

func init() {
	registerSimFlags(playCmd)
	playCmd.Flags().Float64Var(&speed, "speed", sim.DefaultSpeed, "Playback speed; one step every max(10ms, 500ms/speed)")
	rootCmd.AddCommand(playCmd)
}
