package proxy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
)

// relayBufferSize is the chunk size of the streaming body copy.
const relayBufferSize = 32 * 1024

// excludedResponseHeaders are never relayed to the client. Keys are
// lower case.
var excludedResponseHeaders = map[string]struct{}{
	"transfer-encoding": {},
	"connection":        {},
	"upgrade":           {},
	"proxy-connection":  {},
}

var relayBufferPool = sync.Pool{
	New: func() any {
		buf := make([]byte, relayBufferSize)
		return &buf
	},
}

// IsExcludedResponseHeader reports whether a backend response header is
// dropped by the relay. The comparison ignores case.
func IsExcludedResponseHeader(name string) bool {
	_, ok := excludedResponseHeaders[strings.ToLower(name)]
	return ok
}

// BodyAllowed reports whether a response with the given status may
// carry a body.
//
// http.Client.Do consumes 1xx responses, so Relay never sees one from a
// backend. Relaying a 1xx other than 101 through net/http would send it
// as an informational response followed by an implicit 200.
func BodyAllowed(status int) bool {
	switch {
	case status >= 100 && status <= 199:
		return false
	case status == http.StatusNoContent,
		status == http.StatusResetContent,
		status == http.StatusNotModified:
		return false
	}
	return true
}

// Relay writes the backend response onto w: status code, headers minus
// the hop-by-hop set, then the body unless the status forbids one. It
// returns the number of body bytes written. The body of resp is always
// closed.
//
// Headers are sent before the body copy starts, so an error returned
// from Relay means the client already saw a partial response.
func Relay(ctx context.Context, resp *http.Response, w http.ResponseWriter) (int64, error) {
	defer resp.Body.Close()

	dst := w.Header()
	for name, values := range resp.Header {
		if IsExcludedResponseHeader(name) {
			continue
		}
		dst[name] = append([]string(nil), values...)
	}

	w.WriteHeader(resp.StatusCode)
	if !BodyAllowed(resp.StatusCode) {
		return 0, nil
	}
	return copyBody(ctx, w, resp.Body, resp.ContentLength < 0)
}

// copyBody streams src into w, checking ctx between chunks. Streaming
// responses of unknown length are flushed after every chunk.
func copyBody(ctx context.Context, w http.ResponseWriter, src io.Reader, flush bool) (int64, error) {
	bufp := relayBufferPool.Get().(*[]byte)
	defer relayBufferPool.Put(bufp)
	buf := *bufp

	rc := http.NewResponseController(w)

	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := w.Write(buf[:nr])
			written += int64(nw)
			if werr != nil {
				return written, werr
			}
			if nw != nr {
				return written, io.ErrShortWrite
			}
			if flush {
				if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
					return written, err
				}
			}
		}

		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}
