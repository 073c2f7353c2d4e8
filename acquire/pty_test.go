package acquire

import (
	"context"
	"testing"
	"time"

	"github.com/creack/pty"
	serial "github.com/luhtfiimanal/go-serial-telemetry"
	"github.com/luhtfiimanal/go-serial-telemetry/command"
	"github.com/luhtfiimanal/go-serial-telemetry/decode"
	"github.com/stretchr/testify/require"
)

func TestService_OverPTY(t *testing.T) {
	master, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { master.Close(); slave.Close() })

	reader, err := serial.Open(serial.Config{Device: slave.Name(), BaudRate: 115200})
	require.NoError(t, err)
	t.Cleanup(func() { reader.Close() })

	commands := command.NewChannel(reader)
	s, err := New(reader,
		WithReadTimeout(20*time.Millisecond),
		WithChannel(decode.KindPlant, 500),
		WithStartCommand(commands, command.Start()),
	)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	buf := make([]byte, 6)
	n, err := master.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "START\n", string(buf[:n]))

	_, err = master.Write([]byte("t[s],u,v\n0.010,1.50,0.00\n"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(s.Snapshot(decode.KindPlant)) == 1
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, []decode.Sample{decode.Plant{T: 0.010, U: 1.50, V: 0.00}}, s.Snapshot(decode.KindPlant))
	require.Equal(t, uint64(1), s.Stats().Ignored)

	// commands share the transport with the running loop
	require.NoError(t, commands.Send(command.Error(-3, 3)))
	buf = make([]byte, 16)
	n, err = master.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "ERROR -3 3\n", string(buf[:n]))

	start := time.Now()
	require.NoError(t, s.Stop())
	require.Less(t, time.Since(start), time.Second)
	require.NoError(t, reader.Close())
	require.NoError(t, reader.Close())
}
