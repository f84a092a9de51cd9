package hostrpc_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/thomasrohde/livecalc/pkg/hostrpc"
)

// frames builds framed request input from method/params/id triples.
func frames(t *testing.T, msgs ...map[string]any) io.Reader {
	t.Helper()
	var buf bytes.Buffer
	for _, m := range msgs {
		m["jsonrpc"] = "2.0"
		if err := hostrpc.WriteMessage(&buf, m); err != nil {
			t.Fatal(err)
		}
	}
	return &buf
}

type message struct {
	ID     json.RawMessage        `json:"id"`
	Method string                 `json:"method"`
	Params map[string]any         `json:"params"`
	Result json.RawMessage        `json:"result"`
	Error  *hostrpc.ResponseError `json:"error"`
}

// readAll decodes every frame written by the server.
func readAll(t *testing.T, out *bytes.Buffer) []message {
	t.Helper()
	r := bufio.NewReader(out)
	var msgs []message
	for {
		body, err := hostrpc.ReadMessage(r)
		if errors.Is(err, io.EOF) {
			return msgs
		}
		if err != nil {
			t.Fatal(err)
		}
		var m message
		if err := json.Unmarshal(body, &m); err != nil {
			t.Fatalf("bad frame %s: %v", body, err)
		}
		msgs = append(msgs, m)
	}
}

func serve(t *testing.T, in io.Reader) []message {
	t.Helper()
	var out bytes.Buffer
	s := hostrpc.NewServer(in, &out)
	if err := s.Serve(context.Background()); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	return readAll(t, &out)
}

func responseFor(t *testing.T, msgs []message, id string) message {
	t.Helper()
	for _, m := range msgs {
		if string(m.ID) == id && m.Method == "" {
			return m
		}
	}
	t.Fatalf("no response with id %s", id)
	return message{}
}

func TestReadWriteMessage(t *testing.T) {
	var buf bytes.Buffer
	if err := hostrpc.WriteMessage(&buf, map[string]int{"a": 1}); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "Content-Length: 7\r\n\r\n") {
		t.Errorf("unexpected framing %q", buf.String())
	}
	body, err := hostrpc.ReadMessage(bufio.NewReader(&buf))
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != `{"a":1}` {
		t.Errorf("got %s", body)
	}
}

func TestReadMessageHeaderCase(t *testing.T) {
	in := "content-length: 2\r\nContent-Type: application/json\r\n\r\n{}"
	body, err := hostrpc.ReadMessage(bufio.NewReader(strings.NewReader(in)))
	if err != nil || string(body) != "{}" {
		t.Errorf("got %q, %v", body, err)
	}
	if _, err := hostrpc.ReadMessage(bufio.NewReader(strings.NewReader(""))); !errors.Is(err, io.EOF) {
		t.Errorf("expected EOF for empty input, got %v", err)
	}
}

func TestReadMessageRejectsBadFrames(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want error
	}{
		{"oversized", "Content-Length: 999999999999999999\r\n\r\n{}", hostrpc.ErrBadFrame},
		{"just above limit", fmt.Sprintf("Content-Length: %d\r\n\r\n", hostrpc.MaxMessageBytes+1), hostrpc.ErrBadFrame},
		{"not a number", "Content-Length: ten\r\n\r\n{}", hostrpc.ErrBadFrame},
		{"negative", "Content-Length: -2\r\n\r\n{}", hostrpc.ErrBadFrame},
		{"missing length", "Content-Type: application/json\r\n\r\n{}", hostrpc.ErrBadFrame},
		{"empty header", "\r\n", hostrpc.ErrBadFrame},
		{"truncated body", "Content-Length: 10\r\n\r\n{}", io.ErrUnexpectedEOF},
		{"truncated header", "Content-Length: 2\r\n", io.ErrUnexpectedEOF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := hostrpc.ReadMessage(bufio.NewReader(strings.NewReader(tt.in)))
			if !errors.Is(err, tt.want) {
				t.Errorf("got %q, %v; want %v", body, err, tt.want)
			}
		})
	}
}

func TestServeStopsOnBadFrame(t *testing.T) {
	in := io.MultiReader(
		frames(t, map[string]any{"id": 1, "method": "livecalc/sessions"}),
		strings.NewReader("Content-Length: 999999999999999999\r\n\r\n{}"),
	)
	var out bytes.Buffer
	err := hostrpc.NewServer(in, &out).Serve(context.Background())
	if !errors.Is(err, hostrpc.ErrBadFrame) {
		t.Fatalf("expected ErrBadFrame, got %v", err)
	}
	if got := string(responseFor(t, readAll(t, &out), "1").Result); got != "[]" {
		t.Errorf("sessions result %s", got)
	}
}

func TestServeStopsWhileWaitingForInput(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() { errc <- hostrpc.NewServer(pr, io.Discard).Serve(ctx) }()
	cancel()

	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve kept waiting for input after cancel")
	}
}

func TestDidChangeRendersLines(t *testing.T) {
	msgs := serve(t, frames(t,
		map[string]any{"id": 1, "method": "livecalc/didChange", "params": map[string]any{
			"id": "buf", "lines": []string{"x = 4", "x / 0"},
		}},
	))

	var methods []string
	for _, m := range msgs {
		if m.Method != "" {
			methods = append(methods, m.Method)
		}
	}
	want := []string{"livecalc/clear", "livecalc/render", "livecalc/render"}
	if diff := cmp.Diff(want, methods); diff != "" {
		t.Errorf("notifications mismatch (-want +got):\n%s", diff)
	}
	if got := msgs[1].Params["text"]; got != "4" {
		t.Errorf("first render text = %v", got)
	}
	if got := msgs[2].Params["style"]; got != "error" {
		t.Errorf("second render style = %v", got)
	}

	resp := responseFor(t, msgs, "1")
	if resp.Error != nil {
		t.Fatalf("unexpected error %v", resp.Error)
	}
	var records []map[string]any
	if err := json.Unmarshal(resp.Result, &records); err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 || records[0]["display"] != "4" {
		t.Errorf("unexpected result %s", resp.Result)
	}
}

func TestFormatAndLastValue(t *testing.T) {
	msgs := serve(t, frames(t,
		map[string]any{"id": 1, "method": "livecalc/didOpen", "params": map[string]any{"id": "buf", "lines": []string{"255"}}},
		map[string]any{"id": 2, "method": "livecalc/toggleFormat", "params": map[string]any{"id": "buf"}},
		map[string]any{"id": 3, "method": "livecalc/lastValue", "params": map[string]any{"id": "buf", "line": 1}},
		map[string]any{"id": 4, "method": "livecalc/setFormat", "params": map[string]any{"id": "buf", "format": "octal"}},
		map[string]any{"id": 5, "method": "livecalc/lastValue", "params": map[string]any{"id": "buf", "line": 9}},
	))

	if got := string(responseFor(t, msgs, "2").Result); got != `{"format":"hex"}` {
		t.Errorf("toggle result %s", got)
	}
	if got := string(responseFor(t, msgs, "3").Result); got != `{"text":"0xff","found":true}` {
		t.Errorf("lastValue result %s", got)
	}
	if e := responseFor(t, msgs, "4").Error; e == nil || e.Code != hostrpc.CodeInvalidParams {
		t.Errorf("expected invalid params for bad format, got %v", e)
	}
	if got := string(responseFor(t, msgs, "5").Result); got != `{"text":"","found":false}` {
		t.Errorf("lastValue result %s", got)
	}

	var status []any
	for _, m := range msgs {
		if m.Method == "livecalc/status" {
			status = append(status, m.Params["message"])
		}
	}
	if diff := cmp.Diff([]any{"livecalc: format hex"}, status); diff != "" {
		t.Errorf("status mismatch (-want +got):\n%s", diff)
	}
}

func TestErrors(t *testing.T) {
	msgs := serve(t, frames(t,
		map[string]any{"id": 1, "method": "livecalc/bogus"},
		map[string]any{"id": 2, "method": "livecalc/toggleFormat", "params": map[string]any{"id": "missing"}},
		map[string]any{"id": 3, "method": "livecalc/didChange"},
		map[string]any{"id": 4, "method": "livecalc/didChange", "params": "nope"},
		map[string]any{"method": "livecalc/bogus"},
		map[string]any{"id": 5, "method": "livecalc/lastValue", "params": map[string]any{"id": "missing", "line": 1}},
	))
	tests := []struct {
		id   string
		code int
	}{
		{"1", hostrpc.CodeMethodNotFound},
		{"2", hostrpc.CodeUnknownSession},
		{"3", hostrpc.CodeInvalidParams},
		{"4", hostrpc.CodeInvalidParams},
		{"5", hostrpc.CodeUnknownSession},
	}
	for _, tt := range tests {
		resp := responseFor(t, msgs, tt.id)
		if resp.Error == nil || resp.Error.Code != tt.code {
			t.Errorf("id %s: expected code %d, got %v", tt.id, tt.code, resp.Error)
		}
	}
	if len(msgs) != len(tests) {
		t.Errorf("notification produced a response: %d messages", len(msgs))
	}
}

func TestShutdownAndExit(t *testing.T) {
	msgs := serve(t, frames(t,
		map[string]any{"id": 1, "method": "shutdown"},
		map[string]any{"id": 2, "method": "livecalc/sessions"},
		map[string]any{"method": "exit"},
		map[string]any{"id": 3, "method": "livecalc/sessions"},
	))
	if got := string(responseFor(t, msgs, "1").Result); got != "null" {
		t.Errorf("shutdown result %s", got)
	}
	if e := responseFor(t, msgs, "2").Error; e == nil || e.Code != hostrpc.CodeInvalidRequest {
		t.Errorf("expected invalid request after shutdown, got %v", e)
	}
	if len(msgs) != 2 {
		t.Errorf("messages after exit were processed: %d", len(msgs))
	}
}

func TestCloseAndSessions(t *testing.T) {
	in := frames(t,
		map[string]any{"method": "livecalc/didOpen", "params": map[string]any{"id": "a"}},
		map[string]any{"method": "livecalc/didOpen", "params": map[string]any{"id": "b"}},
		map[string]any{"id": 1, "method": "livecalc/didClose", "params": map[string]any{"id": "a"}},
		map[string]any{"id": 2, "method": "livecalc/sessions"},
	)
	var out bytes.Buffer
	s := hostrpc.NewServer(in, &out)
	if err := s.Serve(context.Background()); err != nil {
		t.Fatal(err)
	}
	msgs := readAll(t, &out)
	if got := string(responseFor(t, msgs, "1").Result); got != `{"closed":true}` {
		t.Errorf("close result %s", got)
	}
	if got := string(responseFor(t, msgs, "2").Result); got != `["b"]` {
		t.Errorf("sessions result %s", got)
	}
	if diff := cmp.Diff([]string{"b"}, s.Manager().Sessions()); diff != "" {
		t.Errorf("manager sessions mismatch (-want +got):\n%s", diff)
	}
}

func TestServeStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := hostrpc.NewServer(strings.NewReader(""), io.Discard)
	if err := s.Serve(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
