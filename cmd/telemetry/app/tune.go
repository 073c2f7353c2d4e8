package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"slices"
	"sync"
	"time"

	serial "github.com/luhtfiimanal/go-serial-telemetry"
	"github.com/luhtfiimanal/go-serial-telemetry/acquire"
	"github.com/luhtfiimanal/go-serial-telemetry/control"
	"github.com/luhtfiimanal/go-serial-telemetry/decode"
	"github.com/luhtfiimanal/go-serial-telemetry/internal/config"
	"github.com/luhtfiimanal/go-serial-telemetry/internal/render"
	"github.com/luhtfiimanal/go-serial-telemetry/ring"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newTuneCommand(g *globalFlags) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "tune",
		Short: "Serve the PID tuning dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := g.load(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("listen") {
				cfg.HTTP.Listen = listen
			}
			return runTune(cmd.Context(), cfg, logger)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides http.listen)")
	return cmd
}

func runTune(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	d, err := newDashboard(ctx, cfg, logger, serial.OpenTransport, serial.ListPorts)
	if err != nil {
		return err
	}
	defer d.disconnect()

	srv := &http.Server{Addr: cfg.HTTP.Listen, Handler: d.routes()}
	return serve(ctx, srv, logger)
}

// trace is one plotted point: a distance reading and the setpoint in force
// when it was consumed.
type trace struct {
	t        float64
	distance float64
	setpoint float64
}

// session is one connection to the device.
type session struct {
	tr     serial.Transport
	svc    *acquire.Service
	cancel context.CancelFunc
	done   chan struct{} // closed when the consumer exits
}

type dashboard struct {
	ctx       context.Context
	cfg       *config.Config
	logger    zerolog.Logger
	surface   *control.Surface
	open      func(serial.Config) (serial.Transport, error)
	listPorts func() ([]string, error)
	start     time.Time
	history   *ring.Buffer[trace]

	connectMu sync.Mutex // serializes connect

	mu     sync.Mutex
	sess   *session
	device string
}

// newDashboard returns a disconnected dashboard. Sessions it opens live
// until ctx is done or they are disconnected.
func newDashboard(
	ctx context.Context,
	cfg *config.Config,
	logger zerolog.Logger,
	open func(serial.Config) (serial.Transport, error),
	listPorts func() ([]string, error),
) (*dashboard, error) {
	history, err := ring.NewBuffer[trace](cfg.Acquisition.DashboardCapacity)
	if err != nil {
		return nil, err
	}
	return &dashboard{
		ctx:       ctx,
		cfg:       cfg,
		logger:    logger.With().Str("component", "dashboard").Logger(),
		surface:   control.New(control.WithLogger(logger)),
		open:      open,
		listPorts: listPorts,
		start:     time.Now(),
		history:   history,
		device:    cfg.Serial.Device,
	}, nil
}

// connect replaces any current session with one on device and announces
// the setpoint. The announcement waits out the device's settle delay, so it
// runs without d.mu and the other handlers keep answering meanwhile.
func (d *dashboard) connect(device string) error {
	d.connectMu.Lock()
	defer d.connectMu.Unlock()

	s, err := d.startSession(device)
	if err != nil {
		return err
	}

	if err := d.surface.Connect(s.tr); err != nil {
		d.mu.Lock()
		if d.sess == s {
			d.closeLocked()
		}
		d.mu.Unlock()
		return err
	}
	d.logger.Info().Str("device", d.deviceName()).Msg("session started")
	return nil
}

// startSession closes the current session and starts acquiring on device.
func (d *dashboard) startSession(device string) (*session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closeLocked()

	scfg := d.cfg.Serial.Transport()
	if device != "" {
		scfg.Device = device
	}
	tr, err := d.open(scfg)
	if err != nil {
		d.logger.Error().Err(err).Str("device", scfg.Device).Msg("cannot open serial port")
		return nil, err
	}
	d.device = scfg.Device

	// the decoder created by acquire.New stamps samples relative to now
	offset := time.Since(d.start).Seconds()
	svc, err := acquire.New(tr, acquireOptions(d.cfg, d.logger, acquire.WithHandoffOnly())...)
	if err != nil {
		tr.Close()
		return nil, err
	}
	ctx, cancel := context.WithCancel(d.ctx)
	if err := svc.Start(ctx); err != nil {
		cancel()
		tr.Close()
		return nil, err
	}

	s := &session{tr: tr, svc: svc, cancel: cancel, done: make(chan struct{})}
	d.sess = s
	go d.consume(ctx, s, offset)
	go d.watch(s)
	return s, nil
}

func (d *dashboard) disconnect() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeLocked()
}

func (d *dashboard) closeLocked() {
	s := d.sess
	if s == nil {
		return
	}
	d.sess = nil
	d.surface.Disconnect()

	s.cancel()
	if err := s.tr.Close(); err != nil {
		d.logger.Warn().Err(err).Msg("closing serial port")
	}
	if err := s.svc.Stop(); err != nil {
		d.logger.Warn().Err(err).Msg("acquisition ended with error")
	}
	<-s.done
	d.logger.Info().Msg("session closed")
}

// consume pairs each distance sample with the current setpoint.
func (d *dashboard) consume(ctx context.Context, s *session, offset float64) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case sample := <-s.svc.Samples():
			dist, ok := sample.(decode.Distance)
			if !ok {
				continue
			}
			sp, _ := d.surface.Value(control.ParamSet)
			d.history.Push(trace{t: offset + dist.ObservedAt, distance: dist.Distance, setpoint: sp})
		}
	}
}

// watch tears the session down if acquisition ends on its own.
func (d *dashboard) watch(s *session) {
	err := s.svc.Wait()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sess != s {
		return
	}
	if err != nil {
		d.logger.Error().Err(err).Msg("device lost")
	}
	d.closeLocked()
}

// act runs a surface action and drops the session if the write failed.
func (d *dashboard) act(fn func() error) error {
	err := fn()
	if err != nil && !errors.Is(err, control.ErrNotConnected) && d.surface.State() == control.Disconnected {
		d.disconnect()
	}
	return err
}

func (d *dashboard) chart() render.Chart {
	traces := d.history.Snapshot()
	dist := render.Series{Name: "Distance", X: make([]float64, 0, len(traces)), Y: make([]float64, 0, len(traces))}
	sp := render.Series{Name: "Setpoint", X: make([]float64, 0, len(traces)), Y: make([]float64, 0, len(traces))}
	for _, tr := range traces {
		dist.X = append(dist.X, tr.t)
		dist.Y = append(dist.Y, tr.distance)
		sp.X = append(sp.X, tr.t)
		sp.Y = append(sp.Y, tr.setpoint)
	}
	return render.Chart{Title: "Ball and beam", XLabel: "time (s)", YLabel: "mm", Series: []render.Series{dist, sp}}
}

func (d *dashboard) deviceName() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.device
}

func (d *dashboard) ports() []string {
	ports, err := d.listPorts()
	if err != nil {
		d.logger.Warn().Err(err).Msg("cannot list serial ports")
	}
	device := d.deviceName()
	if device != "" && !slices.Contains(ports, device) {
		ports = append(ports, device)
	}
	if ports == nil {
		ports = []string{}
	}
	return ports
}

func (d *dashboard) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", d.handleIndex)
	mux.HandleFunc("GET /chart", d.handleChart)
	mux.HandleFunc("GET /ports", d.handlePorts)
	mux.HandleFunc("GET /stats", d.handleStats)
	mux.HandleFunc("POST /connect", d.handleConnect)
	mux.HandleFunc("POST /disconnect", d.handleDisconnect)
	mux.HandleFunc("POST /params", d.handleParams)
	mux.HandleFunc("POST /error", d.handleError)
	mux.HandleFunc("POST /setpoint", d.handleSetpoint)
	mux.HandleFunc("POST /tune", d.handleTune)
	return mux
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>PID tuning</title></head>
<body style="font-family: sans-serif">
<div style="display: flex">
<iframe src="/chart" style="flex: 1; height: 560px; border: 0"></iframe>
<form method="post" action="/params" style="width: 300px">
<p>State: <b>{{.State}}</b></p>
<table>
{{range .Params}}<tr><td>{{.Name}}</td><td><input name="{{.Name}}" value="{{.Value}}" size="8"></td></tr>
{{end}}</table>
<p>
<button formaction="/params">Save</button>
<button formaction="/setpoint">Apply SET</button>
<button formaction="/error">Apply ERROR</button>
</p>
<p>Autotune: <b>{{if .Tune}}on{{else}}off{{end}}</b>
<button formaction="/tune" name="tune" value="on">On</button>
<button formaction="/tune" name="tune" value="off">Off</button>
</p>
<p>Serial port:
<select name="port">{{range .Ports}}<option{{if eq . $.Device}} selected{{end}}>{{.}}</option>{{end}}</select>
</p>
<p>
<button formaction="/connect">Connect</button>
<button formaction="/disconnect">Disconnect</button>
</p>
</form>
</div>
</body>
</html>
`))

type indexData struct {
	State  control.State
	Params []control.Param
	Tune   bool
	Ports  []string
	Device string
}

func (d *dashboard) handleIndex(w http.ResponseWriter, _ *http.Request) {
	ports := d.ports()
	d.mu.Lock()
	device := d.device
	d.mu.Unlock()

	data := indexData{
		State:  d.surface.State(),
		Params: d.surface.Params(),
		Tune:   d.surface.Tune(),
		Ports:  ports,
		Device: device,
	}
	var buf bytes.Buffer
	if err := indexTemplate.Execute(&buf, data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (d *dashboard) handleChart(w http.ResponseWriter, _ *http.Request) {
	var buf bytes.Buffer
	if err := render.HTML(&buf, d.chart()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Refresh", "1")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (d *dashboard) handlePorts(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(d.ports())
}

func (d *dashboard) handleStats(w http.ResponseWriter, _ *http.Request) {
	d.mu.Lock()
	s := d.sess
	d.mu.Unlock()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if s == nil {
		_, _ = w.Write([]byte("disconnected\n"))
		return
	}
	writeStats(w, s.svc.Stats())
}

func (d *dashboard) handleConnect(w http.ResponseWriter, r *http.Request) {
	if !d.applyParams(w, r) {
		return
	}
	d.respond(w, r, d.connect(r.PostFormValue("port")))
}

func (d *dashboard) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	d.disconnect()
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (d *dashboard) handleParams(w http.ResponseWriter, r *http.Request) {
	if !d.applyParams(w, r) {
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (d *dashboard) handleError(w http.ResponseWriter, r *http.Request) {
	if !d.applyParams(w, r) {
		return
	}
	d.respond(w, r, d.act(d.surface.ApplyError))
}

func (d *dashboard) handleSetpoint(w http.ResponseWriter, r *http.Request) {
	if !d.applyParams(w, r) {
		return
	}
	d.respond(w, r, d.act(d.surface.ApplySetpoint))
}

func (d *dashboard) handleTune(w http.ResponseWriter, r *http.Request) {
	if !d.applyParams(w, r) {
		return
	}
	on := r.PostFormValue("tune") == "on"
	d.respond(w, r, d.act(func() error { return d.surface.SetTune(on) }))
}

// applyParams stores every parameter present in the form. On a bad value
// it answers 400 and returns false.
func (d *dashboard) applyParams(w http.ResponseWriter, r *http.Request) bool {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	for _, p := range d.surface.Params() {
		if !r.PostForm.Has(p.Name) {
			continue
		}
		if err := d.surface.SetParam(p.Name, r.PostForm.Get(p.Name)); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return false
		}
	}
	return true
}

func (d *dashboard) respond(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	status := http.StatusBadGateway
	if errors.Is(err, control.ErrNotConnected) {
		status = http.StatusConflict
	}
	d.logger.Warn().Err(err).Int("status", status).Msg("action failed")
	http.Error(w, err.Error(), status)
}
