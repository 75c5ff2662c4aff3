package server_test

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/kuo-hm/devdeck-backends/internal/config"
	"github.com/kuo-hm/devdeck-backends/internal/domain"
	"github.com/kuo-hm/devdeck-backends/internal/server"
	"github.com/kuo-hm/devdeck-backends/internal/syncbuffer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testBody = "Test Service Running\n"

func testParams(out io.Writer) server.Params {
	return server.Params{
		Name:           "testservice",
		Body:           testBody,
		PortFromConfig: func(_ *config.Config) (int, error) { return 0, nil },
		LogOutput:      out,
	}
}

// client never keeps idle connections, so no transport goroutines outlive a test.
var client = &http.Client{
	Timeout:   2 * time.Second,
	Transport: &http.Transport{DisableKeepAlives: true},
}

func TestRunGracefulShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	ln := newTestListener(t)
	addr := ln.Addr().String()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run(ctx, testParams(io.Discard), ln)
	}()

	waitForServing(t, addr)

	start := time.Now()
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
		assert.Less(t, time.Since(start), domain.GracefulShutdownTimeout)
	case <-time.After(domain.GracefulShutdownTimeout + 5*time.Second):
		t.Fatal("shutdown did not complete within budget")
	}
}

func TestRunServesFixedBody(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ln := newTestListener(t)
	addr := ln.Addr().String()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run(ctx, testParams(io.Discard), ln)
	}()
	waitForServing(t, addr)

	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, "PURGE"} {
		for _, path := range []string{"/", "/healthz", "/metrics", "/a/b/c"} {
			resp, err := do(t, method, fmt.Sprintf("http://%s%s", addr, path))
			require.NoError(t, err)
			body, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			require.NoError(t, err)

			assert.Equal(t, http.StatusOK, resp.StatusCode, "%s %s", method, path)
			assert.Equal(t, domain.ContentTypePlain, resp.Header.Get("Content-Type"), "%s %s", method, path)
			assert.Equal(t, testBody, string(body), "%s %s", method, path)
		}
	}

	cancel()
	require.NoError(t, <-errCh)
}

func TestRunAnnouncesOnceWithBoundPort(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ln := newTestListener(t)
	addr := ln.Addr().String()
	wantPort := ln.Addr().(*net.TCPAddr).Port

	var calls atomic.Int32
	var gotPort atomic.Int32
	p := testParams(io.Discard)
	p.Announce = func(_ context.Context, _ *slog.Logger, port int) {
		calls.Add(1)
		gotPort.Store(int32(port))
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run(ctx, p, ln)
	}()
	waitForServing(t, addr)

	for i := 0; i < 5; i++ {
		resp, err := do(t, http.MethodGet, fmt.Sprintf("http://%s/", addr))
		require.NoError(t, err)
		resp.Body.Close()
	}

	cancel()
	require.NoError(t, <-errCh)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int32(wantPort), gotPort.Load())
}

func TestRunDefaultAnnounce(t *testing.T) {
	t.Setenv("LOG_FORMAT", "json")

	ctx, cancel := context.WithCancel(context.Background())
	ln := newTestListener(t)
	addr := ln.Addr().String()
	var logs syncbuffer.SyncBuffer

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run(ctx, testParams(&logs), ln)
	}()
	waitForServing(t, addr)
	cancel()
	require.NoError(t, <-errCh)

	var listening []map[string]any
	for _, line := range logs.Lines() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		if rec["msg"] == "listening" {
			listening = append(listening, rec)
		}
	}
	require.Len(t, listening, 1)
	assert.EqualValues(t, ln.Addr().(*net.TCPAddr).Port, listening[0]["port"])
	assert.Equal(t, "testservice", listening[0]["service"])
}

func TestRunLogsRequestsWhenEnabled(t *testing.T) {
	t.Setenv("LOG_FORMAT", "json")

	ctx, cancel := context.WithCancel(context.Background())
	ln := newTestListener(t)
	addr := ln.Addr().String()
	var logs syncbuffer.SyncBuffer

	p := testParams(&logs)
	p.LogRequests = true

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run(ctx, p, ln)
	}()
	waitForServing(t, addr)

	resp, err := do(t, http.MethodPatch, fmt.Sprintf("http://%s/orders/7", addr))
	require.NoError(t, err)
	resp.Body.Close()

	cancel()
	require.NoError(t, <-errCh)

	assert.Equal(t, 1, strings.Count(logs.String(), `"msg":"PATCH /orders/7"`))
}

func TestRunListenFailureIsFatal(t *testing.T) {
	busy, err := (&net.ListenConfig{}).Listen(context.Background(), "tcp", ":0")
	require.NoError(t, err)
	defer busy.Close()
	busyPort := busy.Addr().(*net.TCPAddr).Port

	p := testParams(io.Discard)
	p.PortFromConfig = func(_ *config.Config) (int, error) { return busyPort, nil }

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run(context.Background(), p, nil)
	}()

	select {
	case err := <-errCh:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "listen:")
		assert.False(t, domain.IsConfigError(err))
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not fail on a busy port")
	}
}

func TestRunServesOptionsAsterisk(t *testing.T) {
	t.Setenv("LOG_FORMAT", "json")

	ctx, cancel := context.WithCancel(context.Background())
	ln := newTestListener(t)
	addr := ln.Addr().String()
	var logs syncbuffer.SyncBuffer

	p := testParams(&logs)
	p.LogRequests = true

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run(ctx, p, ln)
	}()
	waitForServing(t, addr)

	// http.Client cannot send an asterisk-form target, so write it by hand.
	conn, err := (&net.Dialer{Timeout: 2 * time.Second}).DialContext(ctx, "tcp", addr)
	require.NoError(t, err)
	_, err = io.WriteString(conn, "OPTIONS * HTTP/1.1\r\nHost: "+addr+"\r\nConnection: close\r\n\r\n")
	require.NoError(t, err)

	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	conn.Close()
	require.NoError(t, err)

	cancel()
	require.NoError(t, <-errCh)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, domain.ContentTypePlain, resp.Header.Get("Content-Type"))
	assert.Equal(t, testBody, string(body))
	assert.Equal(t, 1, strings.Count(logs.String(), `"msg":"OPTIONS *"`))
}

func TestRunConfigError(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose")

	err := server.Run(context.Background(), testParams(io.Discard), nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "load config")
}

func TestRunPortSelectorError(t *testing.T) {
	t.Setenv("PORT", "not-a-port")

	p := testParams(io.Discard)
	p.PortFromConfig = func(cfg *config.Config) (int, error) { return cfg.PortOr(domain.CoreAPIPort) }

	err := server.Run(context.Background(), p, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
	assert.True(t, domain.IsConfigError(err))
	assert.Contains(t, err.Error(), "resolve port")
}

func TestRunRequiresPortSelector(t *testing.T) {
	p := testParams(io.Discard)
	p.PortFromConfig = nil

	err := server.Run(context.Background(), p, nil)

	require.Error(t, err)
}

// newTestListener creates a TCP listener on an OS-assigned port.
func newTestListener(t *testing.T) net.Listener {
	t.Helper()
	ln, err := (&net.ListenConfig{}).Listen(context.Background(), "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create test listener: %v", err)
	}
	return ln
}

// waitForServing polls the server until it answers 200.
func waitForServing(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := do(t, http.MethodGet, fmt.Sprintf("http://%s/", addr))
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("server at %s not serving within 5s", addr)
}

// do performs a request with a background context (satisfies noctx linter).
func do(t *testing.T, method, url string) (*http.Response, error) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, url, nil)
	if err != nil {
		return nil, err
	}
	return client.Do(req)
}
