package app

import (
	"bytes"
	"context"
	"net/http"
	"sync/atomic"
	"time"

	serial "github.com/luhtfiimanal/go-serial-telemetry"
	"github.com/luhtfiimanal/go-serial-telemetry/acquire"
	"github.com/luhtfiimanal/go-serial-telemetry/decode"
	"github.com/luhtfiimanal/go-serial-telemetry/internal/config"
	"github.com/luhtfiimanal/go-serial-telemetry/internal/render"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gonum.org/v1/plot/vg"
)

func newViewCommand(g *globalFlags) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "view",
		Short: "Plot IMU roll and pitch live in the browser",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := g.load(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("listen") {
				cfg.HTTP.Listen = listen
			}
			return runView(cmd.Context(), cfg, logger)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides http.listen)")
	return cmd
}

func runView(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	tr, err := serial.OpenTransport(cfg.Serial.Transport())
	if err != nil {
		logger.Error().Err(err).Msg("cannot open serial port")
		return err
	}
	defer tr.Close()

	svc, err := acquire.New(tr, viewerOptions(cfg, logger)...)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := svc.Start(ctx); err != nil {
		return err
	}
	go func() {
		_ = svc.Wait()
		cancel()
	}()

	v := newViewer(svc)
	go v.run(ctx, cfg.HTTP.Refresh.Std())

	srv := &http.Server{Addr: cfg.HTTP.Listen, Handler: v.routes()}
	serveErr := serve(ctx, srv, logger)

	cancel()
	if err := svc.Stop(); err != nil {
		logger.Error().Err(err).Msg("acquisition failed")
		return err
	}
	return serveErr
}

// viewerOptions keeps one orientation window and no handoff queue; the
// viewer only ever reads the window.
func viewerOptions(cfg *config.Config, logger zerolog.Logger) []acquire.Option {
	return acquireOptions(cfg, logger,
		acquire.WithChannel(decode.KindOrientation, cfg.Acquisition.ViewerCapacity),
		acquire.WithoutHandoff(),
	)
}

type windowSource interface {
	Window(kind decode.Kind) ([]decode.Sample, uint64)
	Stats() acquire.Stats
}

// viewer serves the orientation window. The chart is rebuilt on every
// tick and handlers render the latest one.
type viewer struct {
	src   windowSource
	chart atomic.Pointer[render.Chart]
}

func newViewer(src windowSource) *viewer {
	v := &viewer{src: src}
	v.refresh()
	return v
}

func (v *viewer) run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			v.refresh()
		}
	}
}

func (v *viewer) refresh() {
	samples, total := v.src.Window(decode.KindOrientation)
	c := orientationChart(samples, total)
	v.chart.Store(&c)
}

func orientationChart(samples []decode.Sample, total uint64) render.Chart {
	index := render.Index(total, len(samples))
	roll := render.Series{Name: "Roll"}
	pitch := render.Series{Name: "Pitch"}
	for i, s := range samples {
		o, ok := s.(decode.Orientation)
		if !ok {
			continue
		}
		roll.X = append(roll.X, index[i])
		roll.Y = append(roll.Y, o.Roll)
		pitch.X = append(pitch.X, index[i])
		pitch.Y = append(pitch.Y, o.Pitch)
	}
	return render.Chart{
		Title:  "Orientation",
		XLabel: "sample",
		YLabel: "degrees",
		YMin:   -90,
		YMax:   90,
		Series: []render.Series{roll, pitch},
	}
}

func (v *viewer) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", v.handleChart)
	mux.HandleFunc("GET /plot.png", v.handlePNG)
	mux.HandleFunc("GET /stats", v.handleStats)
	return mux
}

func (v *viewer) handleChart(w http.ResponseWriter, _ *http.Request) {
	var buf bytes.Buffer
	if err := render.HTML(&buf, *v.chart.Load()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Refresh", "1")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (v *viewer) handlePNG(w http.ResponseWriter, _ *http.Request) {
	var buf bytes.Buffer
	if err := render.PNG(&buf, *v.chart.Load(), 8*vg.Inch, 6*vg.Inch); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}

func (v *viewer) handleStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	writeStats(w, v.src.Stats())
}
