package server

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebSocketURLs(t *testing.T) {
	t.Run("specific host", func(t *testing.T) {
		urls := WebSocketURLs(&net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 18080})
		assert.Equal(t, []string{"ws://127.0.0.1:18080/ws"}, urls)
	})

	t.Run("wildcard expands to localhost and LAN", func(t *testing.T) {
		urls := WebSocketURLs(&net.TCPAddr{IP: net.IPv4zero, Port: 9000})
		require.NotEmpty(t, urls)
		assert.Equal(t, "ws://localhost:9000/ws", urls[0])

		ips, err := lanIPs()
		require.NoError(t, err)
		assert.Len(t, urls, 1+len(ips))
	})

	t.Run("non tcp address", func(t *testing.T) {
		assert.Nil(t, WebSocketURLs(&net.UnixAddr{Name: "/tmp/agent.sock", Net: "unix"}))
	})
}
