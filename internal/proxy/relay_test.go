package proxy

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResponse(status int, header http.Header, body string) *http.Response {
	if header == nil {
		header = make(http.Header)
	}
	return &http.Response{
		StatusCode:    status,
		Header:        header,
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
	}
}

func TestRelay_NotModifiedKeepsHeadersDropsBody(t *testing.T) {
	t.Parallel()

	resp := newResponse(http.StatusNotModified, http.Header{
		"Etag":         {`"abc"`},
		"Content-Type": {"application/json"},
	}, `{"stale":true}`)
	rec := httptest.NewRecorder()

	n, err := Relay(context.Background(), resp, rec)
	require.NoError(t, err)

	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Equal(t, `"abc"`, rec.Header().Get("ETag"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Zero(t, n)
	assert.Zero(t, rec.Body.Len())
}

func TestRelay_BodySuppressedByStatus(t *testing.T) {
	t.Parallel()

	for _, status := range []int{
		http.StatusContinue,
		http.StatusSwitchingProtocols,
		http.StatusEarlyHints,
		http.StatusNoContent,
		http.StatusResetContent,
		http.StatusNotModified,
	} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			t.Parallel()

			resp := newResponse(status, http.Header{"Content-Length": {"5"}}, "hello")
			rec := httptest.NewRecorder()

			n, err := Relay(context.Background(), resp, rec)
			require.NoError(t, err)
			assert.Equal(t, status, rec.Code)
			assert.Zero(t, n)
			assert.Empty(t, rec.Body.Bytes())
		})
	}
}

func TestRelay_BodyCopiedVerbatim(t *testing.T) {
	t.Parallel()

	for _, status := range []int{
		http.StatusOK,
		http.StatusCreated,
		http.StatusFound,
		http.StatusNotFound,
		http.StatusInternalServerError,
		http.StatusServiceUnavailable,
	} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			t.Parallel()

			body := strings.Repeat("envproxy-", 10000)
			resp := newResponse(status, http.Header{"Content-Type": {"text/plain"}}, body)
			rec := httptest.NewRecorder()

			n, err := Relay(context.Background(), resp, rec)
			require.NoError(t, err)
			assert.Equal(t, status, rec.Code)
			assert.Equal(t, int64(len(body)), n)
			assert.Equal(t, body, rec.Body.String())
		})
	}
}

func TestRelay_BinaryBodyUnknownLengthIsFlushed(t *testing.T) {
	t.Parallel()

	body := make([]byte, 3*relayBufferSize+17)
	for i := range body {
		body[i] = byte(i % 251)
	}
	resp := &http.Response{
		StatusCode:    http.StatusOK,
		Header:        http.Header{"Content-Type": {"application/octet-stream"}},
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: -1,
	}
	rec := httptest.NewRecorder()

	n, err := Relay(context.Background(), resp, rec)
	require.NoError(t, err)
	assert.Equal(t, int64(len(body)), n)
	assert.Equal(t, body, rec.Body.Bytes())
	assert.True(t, rec.Flushed)
}

func TestRelay_ExcludesHopByHopHeadersAnyCase(t *testing.T) {
	t.Parallel()

	resp := newResponse(http.StatusOK, http.Header{
		"transfer-encoding": {"chunked"},
		"CONNECTION":        {"close"},
		"Upgrade":           {"websocket"},
		"Proxy-Connection":  {"keep-alive"},
		"pRoXy-CoNnEcTiOn":  {"keep-alive"},
		"X-Request-Id":      {"r-1"},
		"Set-Cookie":        {"a=1", "b=2"},
	}, "ok")
	rec := httptest.NewRecorder()

	_, err := Relay(context.Background(), resp, rec)
	require.NoError(t, err)

	for name := range rec.Header() {
		assert.False(t, IsExcludedResponseHeader(name), "header %s must not be relayed", name)
	}
	assert.Equal(t, "r-1", rec.Header().Get("X-Request-Id"))
	assert.Equal(t, []string{"a=1", "b=2"}, rec.Header().Values("Set-Cookie"))
}

func TestRelay_OverwritesPresetHeaders(t *testing.T) {
	t.Parallel()

	resp := newResponse(http.StatusOK, http.Header{"Content-Type": {"text/html"}}, "<p>")
	rec := httptest.NewRecorder()
	rec.Header().Set("Content-Type", "application/json")

	_, err := Relay(context.Background(), resp, rec)
	require.NoError(t, err)
	assert.Equal(t, []string{"text/html"}, rec.Header().Values("Content-Type"))
}

func TestRelay_StopsOnCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp := newResponse(http.StatusOK, nil, "never copied")
	rec := httptest.NewRecorder()

	n, err := Relay(ctx, resp, rec)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, n)
	assert.Equal(t, http.StatusOK, rec.Code)
}

type failingReader struct {
	data []byte
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

type closeRecorder struct {
	io.Reader
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func TestRelay_ReadErrorAfterHeaders(t *testing.T) {
	t.Parallel()

	readErr := errors.New("connection reset by peer")
	body := &closeRecorder{Reader: &failingReader{data: []byte("partial"), err: readErr}}
	resp := &http.Response{
		StatusCode:    http.StatusOK,
		Header:        make(http.Header),
		Body:          body,
		ContentLength: 100,
	}
	rec := httptest.NewRecorder()

	n, err := Relay(context.Background(), resp, rec)
	assert.ErrorIs(t, err, readErr)
	assert.Equal(t, int64(len("partial")), n)
	assert.Equal(t, "partial", rec.Body.String())
	assert.True(t, body.closed)
}

func TestBodyAllowed(t *testing.T) {
	t.Parallel()

	tests := map[int]bool{
		100: false,
		101: false,
		103: false,
		199: false,
		200: true,
		204: false,
		205: false,
		206: true,
		301: true,
		304: false,
		404: true,
		500: true,
	}
	for status, expected := range tests {
		assert.Equal(t, expected, BodyAllowed(status), "status %d", status)
	}
}

func TestIsExcludedResponseHeader(t *testing.T) {
	t.Parallel()

	for _, name := range []string{
		"Transfer-Encoding", "transfer-encoding", "TRANSFER-ENCODING",
		"Connection", "connection", "Upgrade", "UPGRADE",
		"Proxy-Connection", "proxy-connection",
	} {
		assert.True(t, IsExcludedResponseHeader(name), name)
	}
	for _, name := range []string{"Content-Length", "Content-Type", "Keep-Alive", "ETag", "Set-Cookie"} {
		assert.False(t, IsExcludedResponseHeader(name), name)
	}
}
