package kube

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/giantswarm/k8s-resource-client/internal/logging"
)

// Channel protocols offered for exec and attach, most preferred first.
var channelProtocols = []string{
	"v4.channel.k8s.io",
	"v3.channel.k8s.io",
	"v2.channel.k8s.io",
	"channel.k8s.io",
}

// Channel is the stream selector prefixed to every frame.
type Channel byte

// Stream channels.
const (
	ChannelStdin Channel = iota
	ChannelStdout
	ChannelStderr
	ChannelError
	ChannelResize
)

// String implements fmt.Stringer.
func (c Channel) String() string {
	switch c {
	case ChannelStdin:
		return "stdin"
	case ChannelStdout:
		return "stdout"
	case ChannelStderr:
		return "stderr"
	case ChannelError:
		return "error"
	case ChannelResize:
		return "resize"
	default:
		return fmt.Sprintf("channel(%d)", byte(c))
	}
}

// Frame is one demultiplexed message.
type Frame struct {
	Channel Channel
	Data    []byte
}

// FrameHandler receives frames as they arrive, with the same stop contract
// as WatchHandler.
type FrameHandler func(Frame) (any, error)

// StreamOptions configures an exec or attach stream.
type StreamOptions struct {
	// Stdin, when set, is copied to the stdin channel until EOF. Stream may
	// return while a Read on Stdin is blocked; the copying goroutine then
	// exits after that Read returns and writes nothing further. Callers that
	// need it gone at once must close or unblock the reader themselves.
	Stdin io.Reader
	// Handler receives frames live. When nil, frames are collected into
	// StreamResult.Frames.
	Handler FrameHandler
}

// StreamResult is the outcome of an exec or attach stream.
type StreamResult struct {
	// Frames holds every received frame when no handler was set.
	Frames []Frame
	// Value is the first non-nil value returned by the handler.
	Value any
	// Protocol is the negotiated channel protocol.
	Protocol string
}

// Stdout concatenates the stdout frames.
func (r *StreamResult) Stdout() string {
	return r.channel(ChannelStdout)
}

// Stderr concatenates the stderr frames.
func (r *StreamResult) Stderr() string {
	return r.channel(ChannelStderr)
}

// Error concatenates the error channel frames. With v4 this is a JSON
// encoded Status.
func (r *StreamResult) Error() string {
	return r.channel(ChannelError)
}

func (r *StreamResult) channel(c Channel) string {
	var b strings.Builder
	for _, f := range r.Frames {
		if f.Channel == c {
			b.Write(f.Data)
		}
	}
	return b.String()
}

// Stream runs an exec or attach operation over a WebSocket and demultiplexes
// the channel frames. It returns when the server closes the connection, the
// handler stops the stream or ctx is done.
func (d *Dispatcher) Stream(ctx context.Context, req Request, opts StreamOptions) (*StreamResult, error) {
	if req.Operation != OpExec && req.Operation != OpAttach {
		return nil, fmt.Errorf("operation %s is not a channel stream", req.Operation)
	}
	s := d.session

	conn, err := d.dial(ctx, req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	streamName := req.Operation.String()
	s.metrics.IncrementActiveStreams(ctx, streamName)
	defer s.metrics.DecrementActiveStreams(ctx, streamName)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	var writeMu sync.Mutex
	if opts.Stdin != nil {
		go copyStdin(conn, &writeMu, opts.Stdin, done)
	}

	result := &StreamResult{Protocol: conn.Subprotocol()}
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return result, nil
			}
			return nil, wrapTransportError(s.config.Server, err)
		}
		if messageType != websocket.BinaryMessage || len(data) == 0 {
			continue
		}

		frame := Frame{Channel: Channel(data[0]), Data: data[1:]}
		s.metrics.RecordStreamFrame(ctx, streamName, frame.Channel.String())

		if opts.Handler == nil {
			result.Frames = append(result.Frames, frame)
			continue
		}
		value, err := opts.Handler(frame)
		if err != nil {
			return nil, err
		}
		if value != nil {
			result.Value = value
			writeMu.Lock()
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			writeMu.Unlock()
			return result, nil
		}
	}
}

// dial opens the WebSocket for req, authenticating with the session's token
// provider.
func (d *Dispatcher) dial(ctx context.Context, req Request) (*websocket.Conn, error) {
	s := d.session

	u := *s.baseURL
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + req.Path
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}

	header := http.Header{}
	header.Set("User-Agent", s.config.UserAgent)
	if s.provider != nil {
		token, err := s.provider.Token(ctx)
		if err != nil {
			return nil, err
		}
		header.Set("Authorization", "Bearer "+token)
	}

	dialer := *s.dialer
	dialer.Subprotocols = channelProtocols

	start := s.now()
	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	duration := s.now().Sub(start)

	statusCode := 0
	if resp != nil {
		statusCode = resp.StatusCode
	}
	s.metrics.RecordAPIRequest(ctx, req.Operation.Method(), statusCode, duration)

	if err != nil {
		s.logger.Debug("stream handshake failed",
			logging.Method(req.Operation.Method()),
			logging.Path(req.Path),
			logging.StatusCode(statusCode),
			logging.SanitizedErr(err))
		if resp != nil && resp.StatusCode >= http.StatusBadRequest {
			var body []byte
			if resp.Body != nil {
				body, _ = io.ReadAll(resp.Body)
				_ = resp.Body.Close()
			}
			return nil, newAPIError(resp.StatusCode, body)
		}
		return nil, wrapTransportError(s.config.Server, err)
	}

	s.logger.Debug("stream opened",
		logging.Method(req.Operation.Method()),
		logging.Path(req.Path),
		logging.StatusCode(statusCode),
		logging.Duration(duration))
	return conn, nil
}

// copyStdin forwards r to the stdin channel until EOF, a write failure or
// done is closed.
func copyStdin(conn *websocket.Conn, writeMu *sync.Mutex, r io.Reader, done <-chan struct{}) {
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			select {
			case <-done:
				return
			default:
			}
			frame := append([]byte{byte(ChannelStdin)}, buf[:n]...)
			writeMu.Lock()
			werr := conn.WriteMessage(websocket.BinaryMessage, frame)
			writeMu.Unlock()
			if werr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}
