package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/pkg/browser"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/swizzle-sim/sim"
	"github.com/inference-sim/swizzle-sim/sim/monitor"
	"github.com/inference-sim/swizzle-sim/sim/playback"
)

var (
	port        int  // Monitor port (0 = random)
	openBrowser bool // Open the monitor in a browser
)

// serveCmd exposes an interactive simulation over HTTP
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the simulation over HTTP for interactive stepping and playback",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := buildConfig(cmd)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		s, err := sim.NewSimulator(cfg, simulationKey(cmd))
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		p, err := playback.NewPlayer(s, speed)
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		url, done, err := monitor.NewMonitor(p).WithPortNumber(port).StartServer(ctx)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		// The monitor logs at info level; always tell the user where it is.
		_, _ = os.Stderr.WriteString("Monitoring simulation with " + url + "\n")
		if openBrowser {
			if err := browser.OpenURL(url + "/api/state"); err != nil {
				logrus.Warnf("Could not open browser: %v", err)
			}
		}

		if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logrus.Fatalf("%v", err)
		}
		if err := <-done; err != nil {
			logrus.Fatalf("Monitor: %v", err)
		}
	},
}

func init() {
	registerSimFlags(serveCmd)
	serveCmd.Flags().IntVar(&port, "port", 0, "Monitor port (0 = random free port)")
	serveCmd.Flags().BoolVar(&openBrowser, "open", false, "Open the monitor in a browser")
	serveCmd.Flags().Float64Var(&speed, "speed", sim.DefaultSpeed, "Initial playback speed")
	rootCmd.AddCommand(serveCmd)
}
