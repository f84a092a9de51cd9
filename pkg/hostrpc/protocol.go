// Package hostrpc exposes the session manager to an editor over stdio using
// JSON-RPC 2.0 messages with LSP style Content-Length framing.
package hostrpc

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	// CodeUnknownSession is returned for operations on a document that was
	// never opened or has been closed.
	CodeUnknownSession = -32001
)

// Request is an inbound request or notification. Notifications have no ID.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response answers a request.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *ResponseError  `json:"error,omitempty"`
}

// ResponseError is the error member of a Response.
type ResponseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Notification is an outbound message that expects no answer.
type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// MaxMessageBytes bounds the body of one inbound frame.
const MaxMessageBytes = 16 << 20

// ErrBadFrame reports a frame header that cannot be honored. The stream
// cannot be resynchronized after it.
var ErrBadFrame = errors.New("hostrpc: bad frame")

// ReadMessage reads one framed message body. It returns io.EOF when the
// input ends cleanly before a frame, and an ErrBadFrame error when the
// Content-Length header is missing, malformed, or above MaxMessageBytes.
func ReadMessage(r *bufio.Reader) ([]byte, error) {
	contentLen := -1
	started := false
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) && (started || line != "") {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		started = true
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		if i := strings.IndexByte(line, ':'); i >= 0 {
			key := strings.ToLower(strings.TrimSpace(line[:i]))
			val := strings.TrimSpace(line[i+1:])
			if key == "content-length" {
				n, err := strconv.ParseInt(val, 10, 64)
				if err != nil || n < 0 {
					return nil, fmt.Errorf("%w: Content-Length %q", ErrBadFrame, val)
				}
				if n > MaxMessageBytes {
					return nil, fmt.Errorf("%w: Content-Length %d exceeds %d", ErrBadFrame, n, MaxMessageBytes)
				}
				contentLen = int(n)
			}
		}
	}
	if contentLen < 0 {
		return nil, fmt.Errorf("%w: missing Content-Length", ErrBadFrame)
	}
	buf := make([]byte, contentLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf, nil
}

// WriteMessage frames v as JSON and writes it in a single Write call.
func WriteMessage(w io.Writer, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var b bytes.Buffer
	fmt.Fprintf(&b, "Content-Length: %d\r\n\r\n", len(body))
	b.Write(body)
	_, err = w.Write(b.Bytes())
	return err
}
