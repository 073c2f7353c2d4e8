package command

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	mu       sync.Mutex
	lines    []string
	inFlight atomic.Int32
	overlap  atomic.Bool
	err      error
}

func (w *recordingWriter) WriteLine(line, newline string) error {
	if w.inFlight.Add(1) > 1 {
		w.overlap.Store(true)
	}
	defer w.inFlight.Add(-1)
	time.Sleep(100 * time.Microsecond)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.lines = append(w.lines, line+newline)
	return nil
}

func TestChannel_Send(t *testing.T) {
	w := &recordingWriter{}
	c := NewChannel(w)
	require.True(t, c.Connected())

	require.NoError(t, c.Send(Error(-3, 3)))
	require.Equal(t, []string{"ERROR -3 3\n"}, w.lines)
}

func TestChannel_NotConnected(t *testing.T) {
	c := NewChannel(nil)
	require.False(t, c.Connected())
	require.ErrorIs(t, c.Send(Start()), ErrNotConnected)

	w := &recordingWriter{}
	c.Attach(w)
	require.NoError(t, c.Send(Start()))
	c.Attach(nil)
	require.ErrorIs(t, c.Send(Start()), ErrNotConnected)
	require.Equal(t, []string{"START\n"}, w.lines)
}

func TestChannel_WriteErrorIsReturnedNotRetried(t *testing.T) {
	boom := errors.New("boom")
	w := &recordingWriter{err: boom}
	c := NewChannel(w)

	require.ErrorIs(t, c.Send(Tune(true)), boom)
	require.Empty(t, w.lines)
}

func TestChannel_SerializesWriters(t *testing.T) {
	w := &recordingWriter{}
	c := NewChannel(w)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			require.NoError(t, c.Send(Set(float64(i))))
		}(i)
	}
	wg.Wait()

	require.False(t, w.overlap.Load(), "writes overlapped")
	require.Len(t, w.lines, 20)
	for _, l := range w.lines {
		require.True(t, strings.HasPrefix(l, "SET "), l)
		require.True(t, strings.HasSuffix(l, "\n"), l)
	}
	require.Contains(t, w.lines, fmt.Sprintf("SET %d\n", 19))
}

// blockingWriter holds every write until release is closed.
type blockingWriter struct {
	entered chan struct{}
	release chan struct{}
}

func (w *blockingWriter) WriteLine(string, string) error {
	w.entered <- struct{}{}
	<-w.release
	return nil
}

func TestChannel_AttachDoesNotWaitForWrite(t *testing.T) {
	w := &blockingWriter{entered: make(chan struct{}, 1), release: make(chan struct{})}
	c := NewChannel(w)

	sent := make(chan error, 1)
	go func() { sent <- c.Send(Set(100)) }()
	<-w.entered

	attached := make(chan struct{})
	go func() {
		c.Attach(nil)
		close(attached)
	}()
	select {
	case <-attached:
	case <-time.After(time.Second):
		t.Fatal("Attach blocked behind an in-flight write")
	}
	require.False(t, c.Connected())

	close(w.release)
	require.NoError(t, <-sent)
	require.ErrorIs(t, c.Send(Set(1)), ErrNotConnected)
}
