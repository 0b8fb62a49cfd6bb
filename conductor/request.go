package conductor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/Cara-Framework/core-sub002/auth"
	"github.com/Cara-Framework/core-sub002/pipeline"
)

// Handler produces the response for a matched route.
type Handler func(ctx context.Context, req *Request) (*Response, error)

// Unit is the HTTP middleware shape.
type Unit = pipeline.Unit[*Request, *Response]

// Next continues the HTTP pipeline.
type Next = pipeline.Next[*Request, *Response]

// Request is the payload flowing through the HTTP pipeline: the raw
// request, the per-request auth session, and the captured route params.
type Request struct {
	Raw     *http.Request
	Session *auth.Session
	Params  map[string]string

	// ID is the request correlation id, set by the request-id unit.
	ID string

	w    http.ResponseWriter
	sent atomic.Bool
}

// Sent reports whether the response has been written.
func (r *Request) Sent() bool { return r.sent.Load() }

// send writes resp once. Later calls are dropped, which keeps a
// double-fault in the error path from corrupting the wire.
func (r *Request) send(resp *Response) {
	if !r.sent.CompareAndSwap(false, true) {
		return
	}
	header := r.w.Header()
	for name, values := range resp.Header {
		for _, v := range values {
			header.Add(name, v)
		}
	}
	if r.ID != "" {
		header.Set("X-Request-ID", r.ID)
	}
	r.w.WriteHeader(resp.Status)
	if len(resp.Body) > 0 {
		_, _ = r.w.Write(resp.Body)
	}
}

// Response is a buffered reply: nothing touches the wire until the
// conductor sends it.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// NewResponse returns an empty response with the given status.
func NewResponse(status int) *Response {
	return &Response{Status: status, Header: http.Header{}}
}

// Text builds a plain-text response.
func Text(status int, body string) *Response {
	resp := NewResponse(status)
	resp.Header.Set("Content-Type", "text/plain; charset=utf-8")
	resp.Body = []byte(body)
	return resp
}

// JSON builds an application/json response. Marshal failures fall back
// to a generic 500 body.
func JSON(status int, v any) *Response {
	body, err := json.Marshal(v)
	if err != nil {
		return Text(http.StatusInternalServerError, "internal server error")
	}
	resp := NewResponse(status)
	resp.Header.Set("Content-Type", "application/json")
	resp.Body = body
	return resp
}

// HTTPError is a unit-level failure already translated to a client
// outcome. Units return it instead of raw guard or gate errors, so the
// conductor's top-level mapping never sees internals.
type HTTPError struct {
	Status  int
	Kind    string
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Kind, e.Message)
}

// Response renders the error as its structured JSON body.
func (e *HTTPError) Response() *Response {
	return JSON(e.Status, map[string]string{"error": e.Kind, "message": e.Message})
}
