package input

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"
)

// httpDefaultWait is the retry delay used when an upstream asks us to back
// off without saying for how long.
const httpDefaultWait = 5 * time.Second

// HTTP lazily fetches a remote audio resource over HTTP(S).
//
// Rate limiting and overload answers (429, 503) become [*RetryAfter]
// directives honouring the upstream's Retry-After header, so the driving
// loop can reschedule the attempt instead of hammering the server.
type HTTP struct {
	// Client issues all requests. Nil means http.DefaultClient.
	Client *http.Client

	// URL locates the audio resource.
	URL string

	// Header is added to every request: auth tokens, range requests and
	// the like. May be nil.
	Header http.Header

	// Hint overrides format detection. When empty the hint is derived
	// from the response Content-Type, falling back to the URL extension.
	Hint string
}

var _ Composer = (*HTTP)(nil)

func (h *HTTP) Create(ctx context.Context) (*AudioStream, error) {
	resp, err := h.do(ctx, http.MethodGet)
	if err != nil {
		return nil, err
	}
	hint := h.Hint
	if hint == "" {
		hint = streamHint(resp.Header.Get("Content-Type"), h.URL)
	}
	return &AudioStream{
		Body: resp.Body,
		Hint: hint,
	}, nil
}

// AuxMetadata answers from a HEAD request: enough to confirm the resource
// exists and name it, without pulling any audio.
func (h *HTTP) AuxMetadata(ctx context.Context) (*AuxMetadata, error) {
	resp, err := h.do(ctx, http.MethodHead)
	if err != nil {
		return nil, err
	}
	resp.Body.Close()

	meta := &AuxMetadata{SourceURL: h.URL}
	if u, err := url.Parse(h.URL); err == nil {
		if base := path.Base(u.Path); base != "." && base != "/" {
			meta.Title = base
		}
	}
	return meta, nil
}

// do issues one request and classifies the response: transient statuses
// come back as [*RetryAfter], anything else non-2xx is permanent.
func (h *HTTP) do(ctx context.Context, method string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, h.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("input: request %q: %w", h.URL, err)
	}
	for k, vs := range h.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("input: fetch %q: %w", h.URL, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable:
		wait := retryAfterHeader(resp.Header, httpDefaultWait)
		resp.Body.Close()
		return nil, fmt.Errorf("input: fetch %q: %s: %w", h.URL, resp.Status, &RetryAfter{Wait: wait})
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		resp.Body.Close()
		return nil, fmt.Errorf("input: fetch %q: unexpected status %s", h.URL, resp.Status)
	}
	return resp, nil
}

// retryAfterHeader parses a Retry-After header, which is either delay
// seconds or an HTTP date. Absent or unparseable headers fall back to def.
func retryAfterHeader(h http.Header, def time.Duration) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return def
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return def
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return def
}

// streamHint derives a probe hint from the response content type, falling
// back to the URL path's extension.
func streamHint(contentType, rawURL string) string {
	if mediatype, _, err := mime.ParseMediaType(contentType); err == nil {
		switch mediatype {
		case "audio/wav", "audio/wave", "audio/x-wav", "audio/vnd.wave":
			return "wav"
		case "audio/mpeg", "audio/mp3":
			return "mp3"
		case "audio/ogg", "application/ogg":
			return "vorbis"
		}
	}
	if u, err := url.Parse(rawURL); err == nil {
		return strings.TrimPrefix(path.Ext(u.Path), ".")
	}
	return ""
}
