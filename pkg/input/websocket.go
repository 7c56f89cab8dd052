package input

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/coder/websocket"
)

// wsDefaultWait is the retry delay for failed websocket dials. Live feeds
// come and go, so a refused endpoint is worth another attempt.
const wsDefaultWait = 5 * time.Second

// WebSocket streams audio bytes from an endpoint publishing binary frames,
// such as a live transcoder or a broadcast relay. Frame boundaries carry
// no meaning; the frames concatenate into one continuous byte stream.
type WebSocket struct {
	// URL is the ws:// or wss:// endpoint.
	URL string

	// Hint names the expected stream format. Websocket frames carry no
	// content type of their own, so without a hint every probe starts
	// from magic bytes alone.
	Hint string

	// DialOptions are passed through to the dial. May be nil.
	DialOptions *websocket.DialOptions
}

var _ Composer = (*WebSocket)(nil)

func (w *WebSocket) Create(ctx context.Context) (*AudioStream, error) {
	u, err := url.Parse(w.URL)
	if err != nil {
		return nil, fmt.Errorf("input: websocket url %q: %w", w.URL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("input: websocket url %q: scheme %q is not ws or wss", w.URL, u.Scheme)
	}

	conn, _, err := websocket.Dial(ctx, w.URL, w.DialOptions)
	if err != nil {
		// The URL itself is fine, so the endpoint being down is treated
		// as transient.
		return nil, fmt.Errorf("input: dial %q: %v: %w", w.URL, err, &RetryAfter{Wait: wsDefaultWait})
	}
	conn.SetReadLimit(-1)

	// The stream outlives the creation attempt, so reads must not be tied
	// to the creation context's deadline.
	nc := websocket.NetConn(context.WithoutCancel(ctx), conn, websocket.MessageBinary)
	return &AudioStream{Body: nc, Hint: w.Hint}, nil
}

func (w *WebSocket) AuxMetadata(ctx context.Context) (*AuxMetadata, error) {
	return nil, fmt.Errorf("input: websocket %q has no out-of-band metadata: %w", w.URL, ErrUnsupported)
}
