package app

import (
	"context"
	"fmt"
	"io"
	"time"

	serial "github.com/luhtfiimanal/go-serial-telemetry"
	"github.com/luhtfiimanal/go-serial-telemetry/command"
	"github.com/luhtfiimanal/go-serial-telemetry/decode"
	"github.com/luhtfiimanal/go-serial-telemetry/internal/capture"
	"github.com/luhtfiimanal/go-serial-telemetry/internal/config"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newLogCommand(g *globalFlags) *cobra.Command {
	var (
		duration time.Duration
		output   string
	)
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Record t,u,v plant samples to a CSV file for a fixed time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := g.load(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("duration") {
				cfg.Capture.Duration = config.Duration(duration)
			}
			if cmd.Flags().Changed("output") {
				cfg.Capture.Output = output
			}
			return runLog(cmd.Context(), cfg, logger, cmd.OutOrStdout())
		},
	}
	cmd.Flags().DurationVarP(&duration, "duration", "d", 0, "capture window (overrides capture.duration)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "CSV output path (overrides capture.output)")
	return cmd
}

func runLog(ctx context.Context, cfg *config.Config, logger zerolog.Logger, out io.Writer) error {
	tr, err := serial.OpenTransport(cfg.Serial.Transport())
	if err != nil {
		logger.Error().Err(err).Msg("cannot open serial port")
		return err
	}
	return record(ctx, tr, cfg, logger, out)
}

// record owns tr and closes it before the CSV is written.
func record(ctx context.Context, tr serial.Transport, cfg *config.Config, logger zerolog.Logger, out io.Writer) error {
	rec := capture.New(tr,
		capture.WithLogger(logger),
		capture.WithSender(command.NewChannel(tr, command.WithLogger(logger))),
		capture.WithReadTimeout(cfg.Serial.ReadTimeout.Std()),
		capture.WithReadErrorsThreshold(cfg.Acquisition.ReadErrorsThreshold),
		capture.OnRow(func(p decode.Plant) {
			fmt.Fprintln(out, capture.FormatRow(p))
		}),
	)

	duration := cfg.Capture.Duration.Std()
	fmt.Fprintf(out, "Capturing for %s. Press Ctrl+C to stop early.\n", duration)
	rows, recErr := rec.Record(ctx, duration)
	if err := tr.Close(); err != nil {
		logger.Warn().Err(err).Msg("closing serial port")
	}
	if recErr != nil {
		logger.Error().Err(recErr).Int("rows", len(rows)).Msg("capture ended early")
	}

	size, err := capture.SaveCSV(cfg.Capture.Output, rows)
	if err != nil {
		return fmt.Errorf("save capture: %w", err)
	}
	fmt.Fprintln(out, capture.Summary(len(rows), cfg.Capture.Output, size))
	return recErr
}
