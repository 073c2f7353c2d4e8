// Package app wires the telemetry subcommands: a live orientation viewer, a
// timed plant logger, a PID tuning dashboard and a port lister.
package app

import (
	"fmt"

	"github.com/luhtfiimanal/go-serial-telemetry/internal/config"
	"github.com/luhtfiimanal/go-serial-telemetry/internal/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// globalFlags are the persistent flags shared by every subcommand. Set
// flags override the config file.
type globalFlags struct {
	configPath string
	device     string
	baud       int
	backend    string
	logLevel   string
}

func NewRootCommand() *cobra.Command {
	return newRootCommand(&globalFlags{})
}

func newRootCommand(g *globalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:          "telemetry",
		Short:        "Acquire, plot and log serial telemetry from a microcontroller",
		SilenceUsage: true,
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "path to a YAML configuration file")
	pf.StringVarP(&g.device, "port", "p", "", "serial device (overrides serial.device)")
	pf.IntVarP(&g.baud, "baud", "b", 0, "baud rate (overrides serial.baudRate)")
	pf.StringVar(&g.backend, "backend", "", "serial backend: termios or portable (overrides serial.backend)")
	pf.StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides logLevel)")

	root.AddCommand(
		newViewCommand(g),
		newLogCommand(g),
		newTuneCommand(g),
		newPortsCommand(),
	)
	return root
}

// load reads the config file, applies flag overrides and builds the logger.
func (g *globalFlags) load(cmd *cobra.Command) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, zerolog.Nop(), err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Serial.Device = g.device
	}
	if flags.Changed("baud") {
		cfg.Serial.BaudRate = g.baud
	}
	if flags.Changed("backend") {
		cfg.Serial.Backend = g.backend
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = g.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cmd.ErrOrStderr(), cfg.LogLevel)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, logger, nil
}
