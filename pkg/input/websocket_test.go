package input_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/chorus-audio/chorus/pkg/input"
)

func TestWebSocket_BadSchemeIsPermanent(t *testing.T) {
	t.Parallel()

	comp := &input.WebSocket{URL: "http://example.com/feed"}
	_, err := comp.Create(context.Background())
	if err == nil {
		t.Fatal("Create() error = nil, want error")
	}
	if _, ok := input.RetryDelay(err); ok {
		t.Errorf("bad scheme classified as transient: %v", err)
	}
}

func TestWebSocket_UnreachableEndpointIsTransient(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	comp := &input.WebSocket{URL: "ws://127.0.0.1:1/feed"}
	_, err := comp.Create(ctx)
	if err == nil {
		t.Fatal("Create() error = nil, want error")
	}
	if _, ok := input.RetryDelay(err); !ok {
		t.Errorf("refused dial classified as permanent: %v", err)
	}
}

func TestWebSocket_FramesConcatenateIntoOneStream(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("Accept() error = %v", err)
			return
		}
		ctx := r.Context()
		conn.Write(ctx, websocket.MessageBinary, []byte("RAW0"))
		conn.Write(ctx, websocket.MessageBinary, []byte(" first"))
		conn.Write(ctx, websocket.MessageBinary, []byte(" second"))
		conn.Close(websocket.StatusNormalClosure, "done")
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	comp := &input.WebSocket{URL: wsURL, Hint: "raw"}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stream, err := comp.Create(ctx)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer stream.Body.Close()

	if stream.Hint != "raw" {
		t.Errorf("Hint = %q, want %q", stream.Hint, "raw")
	}
	data, err := io.ReadAll(stream.Body)
	if err != nil {
		t.Fatalf("reading stream: %v", err)
	}
	if got, want := string(data), "RAW0 first second"; got != want {
		t.Errorf("stream content = %q, want %q", got, want)
	}
}

func TestWebSocket_AuxMetadataUnsupported(t *testing.T) {
	t.Parallel()

	comp := &input.WebSocket{URL: "wss://example.com/feed"}
	_, err := comp.AuxMetadata(context.Background())
	if !errors.Is(err, input.ErrUnsupported) {
		t.Errorf("AuxMetadata() error = %v, want ErrUnsupported in chain", err)
	}
}
