package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/luhtfiimanal/go-serial-telemetry/acquire"
	"github.com/luhtfiimanal/go-serial-telemetry/internal/config"
	"github.com/rs/zerolog"
)

const shutdownTimeout = time.Second

// serve runs srv until ctx is done, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server, logger zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		logger.Info().Str("addr", srv.Addr).Msg("starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("HTTP server shutdown error")
		if err := srv.Close(); err != nil {
			logger.Warn().Err(err).Msg("HTTP server force close error")
		}
	}
	logger.Info().Msg("HTTP server stopped")
	return nil
}

// acquireOptions carries the configured acquisition settings; each front end
// adds the windows or handoff it reads from.
func acquireOptions(cfg *config.Config, logger zerolog.Logger, extra ...acquire.Option) []acquire.Option {
	return append([]acquire.Option{
		acquire.WithLogger(logger),
		acquire.WithReadTimeout(cfg.Serial.ReadTimeout.Std()),
		acquire.WithQueueSize(cfg.Acquisition.QueueSize),
		acquire.WithReadErrorsThreshold(cfg.Acquisition.ReadErrorsThreshold),
	}, extra...)
}

func writeStats(w io.Writer, st acquire.Stats) {
	fmt.Fprintf(w, "lines:       %s\n", humanize.Comma(int64(st.Lines)))
	fmt.Fprintf(w, "decoded:     %s\n", humanize.Comma(int64(st.Decoded)))
	fmt.Fprintf(w, "ignored:     %s\n", humanize.Comma(int64(st.Ignored)))
	fmt.Fprintf(w, "rejected:    %s\n", humanize.Comma(int64(st.Rejected)))
	fmt.Fprintf(w, "read errors: %s\n", humanize.Comma(int64(st.ReadErrors)))
	fmt.Fprintf(w, "dropped:     %s\n", humanize.Comma(int64(st.Dropped)))
}
