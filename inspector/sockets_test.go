package inspector

import (
	"context"
	"errors"
	"net"
	"os"
	"testing"

	inet "github.com/guseggert/jsinject/internal/net"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemSocketTable(t *testing.T) {
	listener, port, err := inet.Listen()
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	udp, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { udp.Close() })
	udpPort := uint16(udp.LocalAddr().(*net.UDPAddr).Port)

	ports, err := SystemSocketTable{}.Listening(context.Background(), int32(os.Getpid()))
	require.NoError(t, err)
	assert.True(t, ports.Contains(port), "listening port %d missing from %v", port, ports)
	if udpPort != port {
		assert.False(t, ports.Contains(udpPort))
	}

	listener.Close()
	ports, err = SystemSocketTable{}.Listening(context.Background(), int32(os.Getpid()))
	require.NoError(t, err)
	assert.False(t, ports.Contains(port))
}

func TestSystemSocketTableUnknownProcess(t *testing.T) {
	// pids are capped well below this on every supported platform
	ports, err := SystemSocketTable{}.Listening(context.Background(), 1<<30)
	assert.Nil(t, ports)
	var tableErr *SocketTableError
	require.True(t, errors.As(err, &tableErr))
	assert.Equal(t, int32(1<<30), tableErr.PID)
}
