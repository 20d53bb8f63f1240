package kube

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	utiljson "k8s.io/apimachinery/pkg/util/json"
	"k8s.io/apimachinery/pkg/watch"

	"github.com/giantswarm/k8s-resource-client/internal/logging"
)

// maxLogLineSize bounds a single log line read by WatchLogs.
const maxLogLineSize = 1 << 20

// WatchEvent is one decoded watch notification. Object is nil when the
// server sent an event without an object.
type WatchEvent struct {
	Type   watch.EventType
	Object Object
}

// WatchHandler is called for every watch event in server order. Returning a
// non-nil value or an error stops the watch; the value is returned to the
// caller.
type WatchHandler func(WatchEvent) (any, error)

// LineHandler is called for every log line, with the same stop contract as
// WatchHandler.
type LineHandler func(string) (any, error)

// Watch streams watch events for req to handler. It returns (nil, nil) when
// the server closes the stream or the session's WatchTimeout elapses.
func (d *Dispatcher) Watch(ctx context.Context, req Request, handler WatchHandler) (any, error) {
	if handler == nil {
		return nil, errors.New("watch handler cannot be nil")
	}
	req.Operation = OpWatch

	return d.stream(ctx, req, func(streamCtx context.Context, body io.Reader) (any, error) {
		decoder := json.NewDecoder(body)
		for {
			var raw struct {
				Type   watch.EventType `json:"type"`
				Object json.RawMessage `json:"object"`
			}
			if err := decoder.Decode(&raw); err != nil {
				if errors.Is(err, io.EOF) {
					return nil, nil
				}
				return streamEnd(ctx, streamCtx, fmt.Errorf("failed to decode watch event: %w", err))
			}

			event := WatchEvent{Type: raw.Type}
			if len(raw.Object) > 0 {
				var attrs map[string]interface{}
				if err := utiljson.Unmarshal(raw.Object, &attrs); err != nil {
					return nil, fmt.Errorf("failed to decode %s watch object: %w", raw.Type, err)
				}
				if attrs != nil {
					event.Object = d.session.wrap(attrs)
				}
			}

			d.session.metrics.RecordWatchEvent(ctx, req.ResourceType, string(raw.Type))
			d.session.logger.Debug("watch event",
				logging.ResourceType(req.ResourceType),
				logging.Namespace(req.Namespace),
				logging.EventType(string(raw.Type)))

			value, err := handler(event)
			if err != nil {
				return nil, err
			}
			if value != nil {
				return value, nil
			}
		}
	})
}

// WatchLogs streams log lines for req to handler. It returns (nil, nil)
// when the server closes the stream or the session's WatchTimeout elapses.
func (d *Dispatcher) WatchLogs(ctx context.Context, req Request, handler LineHandler) (any, error) {
	if handler == nil {
		return nil, errors.New("line handler cannot be nil")
	}
	req.Operation = OpWatchLogs

	return d.stream(ctx, req, func(streamCtx context.Context, body io.Reader) (any, error) {
		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLogLineSize)
		for scanner.Scan() {
			value, err := handler(scanner.Text())
			if err != nil {
				return nil, err
			}
			if value != nil {
				return value, nil
			}
		}
		if err := scanner.Err(); err != nil {
			return streamEnd(ctx, streamCtx, fmt.Errorf("failed to read log stream: %w", err))
		}
		return nil, nil
	})
}

// stream opens a long-running GET for req and hands the body to consume.
func (d *Dispatcher) stream(ctx context.Context, req Request, consume func(context.Context, io.Reader) (any, error)) (any, error) {
	s := d.session

	var (
		streamCtx context.Context
		cancel    context.CancelFunc
	)
	if s.config.WatchTimeout > 0 {
		streamCtx, cancel = context.WithTimeout(ctx, s.config.WatchTimeout)
	} else {
		streamCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	resp, err := d.send(streamCtx, s.streamClient, req)
	if err != nil {
		return streamEnd(ctx, streamCtx, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return nil, newAPIError(resp.StatusCode, body)
	}

	streamName := req.Operation.String()
	s.metrics.IncrementActiveStreams(ctx, streamName)
	defer s.metrics.DecrementActiveStreams(ctx, streamName)

	return consume(streamCtx, resp.Body)
}

// streamEnd classifies a stream failure. Cancellation of the caller's
// context is returned as is; expiry of the watch timeout ends the stream
// normally.
func streamEnd(parent, stream context.Context, err error) (any, error) {
	if parent.Err() != nil {
		return nil, parent.Err()
	}
	if errors.Is(stream.Err(), context.DeadlineExceeded) {
		return nil, nil
	}
	return nil, err
}
