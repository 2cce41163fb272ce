package ws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oshokin/swupdate/internal/events"
)

const handshakeTimeout = 10 * time.Second

// ErrStopWatching may be returned by a watch callback to end the stream cleanly.
var ErrStopWatching = errors.New("stop watching")

// URL builds the websocket address of the hub served on addr.
func URL(addr string) string {
	u := url.URL{
		Scheme: "ws",
		Host:   addr,
		Path:   EventsPath,
	}

	return u.String()
}

// Stream is a client connection to a hub.
type Stream struct {
	ctx  context.Context //nolint:containedctx // Needed to tell cancellation from a broken stream.
	conn *websocket.Conn
	stop func() bool
}

// Connect subscribes to the hub at rawURL. Canceling ctx closes the stream.
func Connect(ctx context.Context, rawURL string) (*Stream, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}

	conn, resp, err := dialer.DialContext(ctx, rawURL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rawURL, err)
	}

	return &Stream{
		ctx:  ctx,
		conn: conn,
		stop: context.AfterFunc(ctx, func() {
			_ = conn.Close()
		}),
	}, nil
}

// Next blocks for the next event. It returns io.EOF once the server closes the stream.
func (s *Stream) Next() (events.Event, error) {
	var e events.Event

	err := s.conn.ReadJSON(&e)

	switch {
	case err == nil:
		return e, nil
	case s.ctx.Err() != nil:
		return e, s.ctx.Err()
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		return e, io.EOF
	default:
		return e, fmt.Errorf("read event: %w", err)
	}
}

// SetDeadline bounds the wait of subsequent reads. A zero t waits forever.
// After a deadline passes the stream is unusable.
func (s *Stream) SetDeadline(t time.Time) error {
	return s.conn.SetReadDeadline(t)
}

// Close ends the stream.
func (s *Stream) Close() error {
	s.stop()

	return s.conn.Close()
}

// Watch connects to the hub at rawURL and calls fn for every event until ctx
// is done, the server closes the stream, or fn returns an error.
func Watch(ctx context.Context, rawURL string, fn func(events.Event) error) error {
	stream, err := Connect(ctx, rawURL)
	if err != nil {
		return err
	}

	defer func() {
		_ = stream.Close()
	}()

	for {
		e, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return err
		}

		if err = fn(e); err != nil {
			if errors.Is(err, ErrStopWatching) {
				return nil
			}

			return err
		}
	}
}
