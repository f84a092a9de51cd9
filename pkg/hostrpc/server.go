package hostrpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"fortio.org/log"

	"github.com/thomasrohde/livecalc/pkg/session"
	"github.com/thomasrohde/livecalc/pkg/sheet"
)

// Methods handled by the server.
const (
	MethodDidOpen      = "livecalc/didOpen"
	MethodDidChange    = "livecalc/didChange"
	MethodDidClose     = "livecalc/didClose"
	MethodSetFormat    = "livecalc/setFormat"
	MethodToggleFormat = "livecalc/toggleFormat"
	MethodLastValue    = "livecalc/lastValue"
	MethodSessions     = "livecalc/sessions"
	MethodShutdown     = "shutdown"
	MethodExit         = "exit"
)

// Notifications sent to the host.
const (
	NotifyClear  = "livecalc/clear"
	NotifyRender = "livecalc/render"
	NotifyStatus = "livecalc/status"
)

type docParams struct {
	ID string `json:"id"`
}

type changeParams struct {
	ID    string   `json:"id"`
	Lines []string `json:"lines"`
}

type formatParams struct {
	ID     string `json:"id"`
	Format string `json:"format"`
}

type lastValueParams struct {
	ID   string `json:"id"`
	Line int    `json:"line"`
}

type clearParams struct {
	ID string `json:"id"`
}

type renderParams struct {
	ID    string `json:"id"`
	Line  int    `json:"line"`
	Text  string `json:"text"`
	Style string `json:"style"`
}

type statusParams struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

type formatResult struct {
	Format string `json:"format"`
}

type lastValueResult struct {
	Text  string `json:"text"`
	Found bool   `json:"found"`
}

type closeResult struct {
	Closed bool `json:"closed"`
}

// Server reads requests from in and writes responses and render
// notifications to out. It is the Renderer and Notifier of its manager.
type Server struct {
	in      *bufio.Reader
	wmu     sync.Mutex
	out     io.Writer
	manager *session.Manager

	shuttingDown bool
}

// NewServer creates a server over in and out. opts configure the session
// manager; the renderer and notifier are always the server itself.
func NewServer(in io.Reader, out io.Writer, opts ...session.Option) *Server {
	s := &Server{in: bufio.NewReader(in), out: out}
	opts = append(opts, session.WithRenderer(s), session.WithNotifier(s))
	s.manager = session.NewManager(opts...)
	return s
}

// Manager returns the session registry driven by the server.
func (s *Server) Manager() *session.Manager {
	return s.manager
}

type frame struct {
	body []byte
	err  error
}

// readFrames reads frames from the input until a read fails or done is
// closed. A read blocked on the input outlives done; the frame it returns
// is dropped.
func (s *Server) readFrames(done <-chan struct{}) <-chan frame {
	frames := make(chan frame)
	go func() {
		for {
			body, err := ReadMessage(s.in)
			select {
			case frames <- frame{body: body, err: err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return frames
}

// Serve processes messages until exit, end of input, or ctx is done. A
// cancelled ctx stops Serve even while it waits for input.
func (s *Server) Serve(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan struct{})
	defer close(done)
	frames := s.readFrames(done)
	for {
		var f frame
		select {
		case <-ctx.Done():
			log.Infof("hostrpc: %v", ctx.Err())
			return ctx.Err()
		case f = <-frames:
		}
		if f.err != nil {
			if errors.Is(f.err, io.EOF) {
				return nil
			}
			log.Errf("hostrpc: read failed: %v", f.err)
			return f.err
		}
		var req Request
		if err := json.Unmarshal(f.body, &req); err != nil {
			log.Warnf("hostrpc: dropping malformed message: %v", err)
			s.send(Response{JSONRPC: "2.0", ID: json.RawMessage("null"),
				Error: &ResponseError{Code: CodeParseError, Message: "parse error"}})
			continue
		}
		if req.Method == MethodExit {
			log.Infof("hostrpc: exit")
			return nil
		}
		log.LogVf("hostrpc: %s", req.Method)
		result, rerr := s.dispatch(req)
		if len(req.ID) == 0 {
			if rerr != nil {
				log.Warnf("hostrpc: notification %s failed: %s", req.Method, rerr.Message)
			}
			continue
		}
		s.reply(req.ID, result, rerr)
	}
}

func (s *Server) dispatch(req Request) (any, *ResponseError) {
	if s.shuttingDown {
		return nil, &ResponseError{Code: CodeInvalidRequest, Message: "server is shutting down"}
	}
	switch req.Method {
	case MethodDidOpen:
		var p changeParams
		if rerr := decodeParams(req.Params, &p); rerr != nil {
			return nil, rerr
		}
		if p.Lines == nil {
			s.manager.Open(p.ID)
			return nil, nil
		}
		res, err := s.manager.OnContentChanged(p.ID, p.Lines)
		return res, toResponseError(err)

	case MethodDidChange:
		var p changeParams
		if rerr := decodeParams(req.Params, &p); rerr != nil {
			return nil, rerr
		}
		res, err := s.manager.OnContentChanged(p.ID, p.Lines)
		return res, toResponseError(err)

	case MethodDidClose:
		var p docParams
		if rerr := decodeParams(req.Params, &p); rerr != nil {
			return nil, rerr
		}
		return closeResult{Closed: s.manager.Close(p.ID)}, nil

	case MethodSetFormat:
		var p formatParams
		if rerr := decodeParams(req.Params, &p); rerr != nil {
			return nil, rerr
		}
		f, err := sheet.ParseFormat(p.Format)
		if err != nil {
			return nil, &ResponseError{Code: CodeInvalidParams, Message: err.Error()}
		}
		res, err := s.manager.SetFormat(p.ID, f)
		return res, toResponseError(err)

	case MethodToggleFormat:
		var p docParams
		if rerr := decodeParams(req.Params, &p); rerr != nil {
			return nil, rerr
		}
		f, err := s.manager.ToggleFormat(p.ID)
		if err != nil {
			return nil, toResponseError(err)
		}
		return formatResult{Format: f.String()}, nil

	case MethodLastValue:
		var p lastValueParams
		if rerr := decodeParams(req.Params, &p); rerr != nil {
			return nil, rerr
		}
		res, err := s.manager.LastResult(p.ID)
		if err != nil {
			return nil, toResponseError(err)
		}
		var out lastValueResult
		if res != nil {
			out.Text, out.Found = res.Display[p.Line]
		}
		return out, nil

	case MethodSessions:
		return s.manager.Sessions(), nil

	case MethodShutdown:
		s.shuttingDown = true
		return nil, nil
	}
	return nil, &ResponseError{Code: CodeMethodNotFound, Message: "method not found"}
}

func decodeParams(raw json.RawMessage, v any) *ResponseError {
	if len(raw) == 0 {
		return &ResponseError{Code: CodeInvalidParams, Message: "missing params"}
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &ResponseError{Code: CodeInvalidParams, Message: err.Error()}
	}
	return nil
}

func toResponseError(err error) *ResponseError {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, session.ErrUnknownSession):
		return &ResponseError{Code: CodeUnknownSession, Message: err.Error()}
	default:
		return &ResponseError{Code: CodeInternalError, Message: err.Error()}
	}
}

func (s *Server) reply(id json.RawMessage, result any, rerr *ResponseError) {
	if rerr == nil && result == nil {
		s.send(Response{JSONRPC: "2.0", ID: id, Result: json.RawMessage("null")})
		return
	}
	s.send(Response{JSONRPC: "2.0", ID: id, Result: result, Error: rerr})
}

func (s *Server) notify(method string, params any) {
	s.send(Notification{JSONRPC: "2.0", Method: method, Params: params})
}

func (s *Server) send(v any) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if err := WriteMessage(s.out, v); err != nil {
		log.Errf("hostrpc: write failed: %v", err)
	}
}

// ClearRenders implements session.Renderer.
func (s *Server) ClearRenders(id string) {
	s.notify(NotifyClear, clearParams{ID: id})
}

// Render implements session.Renderer.
func (s *Server) Render(id string, line int, text string, style session.Style) {
	s.notify(NotifyRender, renderParams{ID: id, Line: line, Text: text, Style: style.String()})
}

// Notify implements session.Notifier.
func (s *Server) Notify(id, message string) {
	s.notify(NotifyStatus, statusParams{ID: id, Message: message})
}
