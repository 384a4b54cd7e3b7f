// Command ipfs-simulator runs a discrete-event simulation of a
// Kademlia-style content-addressed P2P network from a TOML configuration
// file.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/das67333/ipfs-simulator/internal/simulator"
	"github.com/das67333/ipfs-simulator/internal/telemetry"
	"github.com/das67333/ipfs-simulator/pkg/config"
)

var (
	BuildDate    string
	BuildVersion string
)

func main() {
	app := cli.NewApp()
	app.Name = "ipfs-simulator"
	app.Usage = "discrete-event simulator of a Kademlia DHT overlay"
	app.ArgsUsage = "<config.toml>"
	app.Version = BuildVersion
	app.Action = run
	if err := app.Run(os.Args); err != nil {
		logrus.Errorf("simulation failed: %v", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one argument: the configuration file path")
	}

	cfg, err := config.Load(c.Args().First())
	if err != nil {
		return err
	}
	if err := initLogging(cfg); err != nil {
		return err
	}

	sink := telemetry.NewSink(logrus.StandardLogger())
	s, err := simulator.New(cfg, sink)
	if err != nil {
		return err
	}

	logrus.Infof("starting simulation: %d peers, k=%d, alpha=%d, seed=%d",
		cfg.NumPeers, cfg.K, cfg.Alpha, cfg.Seed)
	steps := s.Run()
	logrus.Infof("simulation finished in %d steps", steps)

	stats := s.Stats()
	fmt.Println(stats.Summary())
	return nil
}

// initLogging configures the global logrus logger from the options
// record: level filter and an optional file sink, stderr by default.
func initLogging(cfg *config.Config) error {
	switch cfg.LogLevelFilter {
	case "off":
		logrus.SetLevel(logrus.PanicLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	case "warn":
		logrus.SetLevel(logrus.WarnLevel)
	case "info":
		logrus.SetLevel(logrus.InfoLevel)
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "trace":
		logrus.SetLevel(logrus.TraceLevel)
	}

	if cfg.LogFilePath != "" {
		f, err := os.OpenFile(cfg.LogFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		logrus.SetOutput(f)
	}
	return nil
}
