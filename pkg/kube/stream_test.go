package kube

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/k8s-resource-client/pkg/auth"
)

var testUpgrader = websocket.Upgrader{Subprotocols: []string{"v4.channel.k8s.io"}}

func writeFrame(t *testing.T, conn *websocket.Conn, channel Channel, data string) {
	t.Helper()
	assert.NoError(t, conn.WriteMessage(websocket.BinaryMessage, append([]byte{byte(channel)}, data...)))
}

func closeNormally(conn *websocket.Conn) {
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func TestExec_DemultiplexesFrames(t *testing.T) {
	var (
		query         map[string][]string
		authorization string
	)
	s := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/namespaces/default/pods/web/exec", r.URL.Path)
		query = r.URL.Query()
		authorization = r.Header.Get("Authorization")

		conn, err := testUpgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer func() { _ = conn.Close() }()

		writeFrame(t, conn, ChannelStdout, "hello\n")
		writeFrame(t, conn, ChannelStderr, "warning\n")
		writeFrame(t, conn, ChannelStdout, "world\n")
		writeFrame(t, conn, ChannelError, `{"metadata":{},"status":"Success"}`)
		closeNormally(conn)
		_, _, _ = conn.ReadMessage()
	}), WithTokenProvider(auth.NewStaticProvider("secret")))

	pod := newObject(t, s, "Pod", "web", nil)
	result, err := Exec(context.Background(), pod, ExecOptions{
		Command:   []string{"sh", "-c", "echo hello"},
		Container: "app",
	})
	require.NoError(t, err)

	assert.Equal(t, "v4.channel.k8s.io", result.Protocol)
	require.Len(t, result.Frames, 4)
	assert.Equal(t, "hello\nworld\n", result.Stdout())
	assert.Equal(t, "warning\n", result.Stderr())
	assert.Contains(t, result.Error(), `"status":"Success"`)

	assert.Equal(t, []string{"sh", "-c", "echo hello"}, query["command"])
	assert.Equal(t, []string{"app"}, query["container"])
	assert.Equal(t, []string{"true"}, query["stdout"])
	assert.Equal(t, []string{"true"}, query["stderr"])
	assert.Empty(t, query["stdin"])
	assert.Equal(t, "Bearer secret", authorization)
}

func TestExec_ForwardsStdin(t *testing.T) {
	s := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("stdin"))
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer func() { _ = conn.Close() }()

		_, data, err := conn.ReadMessage()
		if !assert.NoError(t, err) || !assert.NotEmpty(t, data) {
			return
		}
		assert.Equal(t, byte(ChannelStdin), data[0])

		writeFrame(t, conn, ChannelStdout, "echo:"+string(data[1:]))
		closeNormally(conn)
		_, _, _ = conn.ReadMessage()
	}))

	result, err := Exec(context.Background(), newObject(t, s, "Pod", "web", nil), ExecOptions{
		Command: []string{"cat"},
		Stdin:   strings.NewReader("ping"),
	})
	require.NoError(t, err)
	assert.Equal(t, "echo:ping", result.Stdout())
}

func TestExec_BlockedStdinEndsAfterNextRead(t *testing.T) {
	s := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer func() { _ = conn.Close() }()

		writeFrame(t, conn, ChannelStdout, "done")
		closeNormally(conn)
		_, _, _ = conn.ReadMessage()
	}))

	stdin, stdinWriter := io.Pipe()
	defer func() { _ = stdin.Close() }()

	result, err := Exec(context.Background(), newObject(t, s, "Pod", "web", nil), ExecOptions{
		Command: []string{"cat"},
		Stdin:   stdin,
	})
	require.NoError(t, err)
	assert.Equal(t, "done", result.Stdout())

	// The copier is still parked in Read and consumes exactly one more chunk.
	_, err = stdinWriter.Write([]byte("late"))
	require.NoError(t, err)

	second := make(chan error, 1)
	go func() {
		_, err := stdinWriter.Write([]byte("later"))
		second <- err
	}()
	select {
	case err := <-second:
		t.Fatalf("stdin was read after the copier should have exited: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
	_ = stdin.Close()
	assert.ErrorIs(t, <-second, io.ErrClosedPipe)
}

func TestExec_HandlerStopsStream(t *testing.T) {
	s := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer func() { _ = conn.Close() }()

		for _, line := range []string{"one", "two", "three"} {
			writeFrame(t, conn, ChannelStdout, line)
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))

	var seen []string
	result, err := Exec(context.Background(), newObject(t, s, "Pod", "web", nil), ExecOptions{
		Command: []string{"tail", "-f", "/var/log/app"},
		Handler: func(f Frame) (any, error) {
			seen = append(seen, string(f.Data))
			if len(seen) == 2 {
				return "stopped", nil
			}
			return nil, nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "stopped", result.Value)
	assert.Equal(t, []string{"one", "two"}, seen)
	assert.Empty(t, result.Frames)
}

func TestExec_HandshakeRejected(t *testing.T) {
	s := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusForbidden, "Forbidden", "pods/exec is forbidden")
	}))

	_, err := Exec(context.Background(), newObject(t, s, "Pod", "web", nil), ExecOptions{Command: []string{"ls"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.NotNil(t, apiErr.Status)
	assert.Equal(t, "pods/exec is forbidden", apiErr.Status.Message)
}

func TestExec_RequiresCommand(t *testing.T) {
	api := newFakeAPI()
	s := newTestSession(t, api)

	_, err := Exec(context.Background(), newObject(t, s, "Pod", "web", nil), ExecOptions{})
	assert.Error(t, err)
	assert.Empty(t, api.calls())
}

func TestAttach(t *testing.T) {
	s := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/namespaces/default/pods/web/attach", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("tty"))
		assert.Empty(t, r.URL.Query().Get("stderr"))

		conn, err := testUpgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer func() { _ = conn.Close() }()
		writeFrame(t, conn, ChannelStdout, "$ ")
		closeNormally(conn)
		_, _, _ = conn.ReadMessage()
	}))

	result, err := Attach(context.Background(), newObject(t, s, "Pod", "web", nil), AttachOptions{TTY: true})
	require.NoError(t, err)
	assert.Equal(t, "$ ", result.Stdout())
}

func TestDispatcher_StreamRejectsOtherOperations(t *testing.T) {
	s := newTestSession(t, newFakeAPI())
	_, err := s.Dispatcher().Stream(context.Background(), Request{Operation: OpGet, Path: "/api/v1/pods"}, StreamOptions{})
	assert.Error(t, err)
}

func TestChannel_String(t *testing.T) {
	assert.Equal(t, "stdin", ChannelStdin.String())
	assert.Equal(t, "stdout", ChannelStdout.String())
	assert.Equal(t, "stderr", ChannelStderr.String())
	assert.Equal(t, "error", ChannelError.String())
	assert.Equal(t, "resize", ChannelResize.String())
	assert.Equal(t, "channel(9)", Channel(9).String())
}
