package app

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/luhtfiimanal/go-serial-telemetry/acquire"
	"github.com/luhtfiimanal/go-serial-telemetry/decode"
	"github.com/luhtfiimanal/go-serial-telemetry/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWindow struct {
	mu      sync.Mutex
	samples []decode.Sample
	total   uint64
	stats   acquire.Stats
}

func (f *fakeWindow) Window(decode.Kind) ([]decode.Sample, uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]decode.Sample(nil), f.samples...), f.total
}

func (f *fakeWindow) Stats() acquire.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}

func (f *fakeWindow) push(o decode.Orientation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples = append(f.samples, o)
	f.total++
}

func TestOrientationChart_AbsoluteIndex(t *testing.T) {
	samples := []decode.Sample{
		decode.Orientation{Roll: 1, Pitch: -1},
		decode.Orientation{Roll: 2, Pitch: -2},
		decode.Orientation{Roll: 3, Pitch: -3},
	}
	c := orientationChart(samples, 10)

	require.Len(t, c.Series, 2)
	assert.Equal(t, []float64{7, 8, 9}, c.Series[0].X)
	assert.Equal(t, []float64{1, 2, 3}, c.Series[0].Y)
	assert.Equal(t, []float64{-1, -2, -3}, c.Series[1].Y)
	assert.Equal(t, -90.0, c.YMin)
	assert.Equal(t, 90.0, c.YMax)
}

func TestViewer_Routes(t *testing.T) {
	src := &fakeWindow{stats: acquire.Stats{Lines: 1234, Decoded: 1200}}
	src.push(decode.Orientation{Roll: 12.5, Pitch: -3.2})
	h := newViewer(src).routes()

	rec := get(t, h, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Refresh"))
	assert.Contains(t, rec.Body.String(), "Roll")

	rec = get(t, h, "/plot.png")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))

	rec = get(t, h, "/stats")
	assert.Contains(t, rec.Body.String(), "lines:       1,234")
	assert.Contains(t, rec.Body.String(), "decoded:     1,200")

	assert.Equal(t, http.StatusNotFound, get(t, h, "/missing").Code)
}

func TestViewer_RefreshTick(t *testing.T) {
	src := &fakeWindow{}
	v := newViewer(src)
	require.Empty(t, v.chart.Load().Series[0].X)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go v.run(ctx, 5*time.Millisecond)

	src.push(decode.Orientation{Roll: 4, Pitch: 5})
	require.Eventually(t, func() bool {
		return len(v.chart.Load().Series[0].X) == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestViewerOptions_NoHandoff(t *testing.T) {
	cfg := config.Default()
	cfg.Acquisition.QueueSize = 8
	ft := newFakeTransport()

	svc, err := acquire.New(ft, viewerOptions(cfg, zerolog.Nop())...)
	require.NoError(t, err)
	require.NoError(t, svc.Start(context.Background()))
	t.Cleanup(func() { svc.Stop() })

	for i := range 40 {
		ft.lines <- fmt.Sprintf("Roll: %d, Pitch: 0", i)
	}
	require.Eventually(t, func() bool { return svc.Stats().Lines >= 40 }, 2*time.Second, 5*time.Millisecond)

	assert.Zero(t, svc.Stats().Dropped)
	window, total := svc.Window(decode.KindOrientation)
	assert.Len(t, window, 40)
	assert.Equal(t, uint64(40), total)
	assert.Equal(t, cfg.Acquisition.ViewerCapacity, svc.Capacity(decode.KindOrientation))
	assert.Zero(t, svc.Capacity(decode.KindDistance))
}
