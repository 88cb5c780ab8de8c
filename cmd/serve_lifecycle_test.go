package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePort(t *testing.T) {
	assert.Equal(t, 9999, resolvePort(9999, 8080), "flag wins over config")
	assert.Equal(t, 8080, resolvePort(0, 8080), "config fills in when flag unset")
	assert.Equal(t, 0, resolvePort(0, 0))
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag)
	assert.Equal(t, "0", flag.DefValue)
}

func getFreePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close() //nolint:errcheck
	return l.Addr().(*net.TCPAddr).Port
}

func TestStartServer_GracefulShutdown(t *testing.T) {
	port := getFreePort(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- startServer(ctx, buildRouter(nil, nil, nil, 1, 24), port)
	}()

	// Wait for the server to accept requests.
	url := fmt.Sprintf("http://127.0.0.1:%d/health", port)
	var ready bool
	for i := 0; i < 30; i++ {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close() //nolint:errcheck
			if resp.StatusCode == http.StatusOK {
				ready = true
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.True(t, ready, "server never became ready")

	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down in time")
	}
}

func TestStartServer_ListenError(t *testing.T) {
	// Hold the port so the server cannot bind it.
	l, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer l.Close() //nolint:errcheck
	port := l.Addr().(*net.TCPAddr).Port

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = startServer(ctx, buildRouter(nil, nil, nil, 1, 24), port)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server listen")
}
