/*
Package inspectortest provides an in-process fake of a V8 inspector: the /json discovery endpoints and a
WebSocket that answers Runtime.evaluate calls. It exists so that the manifest client, the session and the
driver can be exercised end to end without a Node runtime.
*/
package inspectortest

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Request is a method call received by the fake.
type Request struct {
	ID     int64          `json:"id"`
	Method string         `json:"method"`
	Params map[string]any `json:"params"`
}

func (r Request) Expression() string {
	s, _ := r.Params["expression"].(string)
	return s
}

// Evaluator produces the value of an expression. Returning ok=false omits the value from the reply.
type Evaluator func(expression string) (value any, ok bool)

type Server struct {
	Log *zap.SugaredLogger

	targetID     string
	domains      []Domain
	evaluate     Evaluator
	preamble     func(req Request) [][]byte
	manifestBody []byte

	httpServer *httptest.Server

	mut      sync.Mutex
	requests []Request
}

// Domain mirrors the /json/protocol shape.
type Domain struct {
	Domain   string    `json:"domain"`
	Commands []Command `json:"commands"`
}

type Command struct {
	Name       string      `json:"name"`
	Parameters []Parameter `json:"parameters,omitempty"`
}

type Parameter struct {
	Name string `json:"name"`
}

type Option func(s *Server)

func WithDomains(domains ...Domain) Option {
	return func(s *Server) {
		s.domains = domains
	}
}

func WithEvaluator(e Evaluator) Option {
	return func(s *Server) {
		s.evaluate = e
	}
}

// WithPreamble sends the returned frames before the reply to each request.
func WithPreamble(f func(req Request) [][]byte) Option {
	return func(s *Server) {
		s.preamble = f
	}
}

// WithManifestBody replaces the /json response body.
func WithManifestBody(b []byte) Option {
	return func(s *Server) {
		s.manifestBody = b
	}
}

func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Server) {
		s.Log = l
	}
}

// New starts a fake inspector on a loopback port. Callers must Close it.
func New(opts ...Option) *Server {
	s := &Server{
		Log:      zap.NewNop().Sugar(),
		targetID: uuid.NewString(),
		domains: []Domain{{
			Domain: "Runtime",
			Commands: []Command{
				{Name: "evaluate", Parameters: []Parameter{{Name: "expression"}}},
			},
		}},
		evaluate: func(expression string) (any, bool) { return expression, true },
	}
	for _, o := range opts {
		o(s)
	}

	router := httprouter.New()
	router.GET("/json", s.list)
	router.GET("/json/list", s.list)
	router.GET("/json/version", s.version)
	router.GET("/json/protocol", s.protocol)
	router.GET("/ws/:id", s.debugWS)

	s.httpServer = httptest.NewServer(router)
	return s
}

func (s *Server) Close() { s.httpServer.Close() }

func (s *Server) Port() uint16 {
	addr := s.httpServer.Listener.Addr().(*net.TCPAddr)
	return uint16(addr.Port)
}

func (s *Server) DebugURL() string {
	return fmt.Sprintf("ws://127.0.0.1:%d/ws/%s", s.Port(), s.targetID)
}

// Requests returns the method calls received so far, in arrival order.
func (s *Server) Requests() []Request {
	s.mut.Lock()
	defer s.mut.Unlock()
	return append([]Request(nil), s.requests...)
}

func writeJSON(w http.ResponseWriter, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Add("Content-Type", "application/json; charset=UTF-8")
	w.Write(b)
}

func (s *Server) list(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if s.manifestBody != nil {
		w.Header().Add("Content-Type", "application/json; charset=UTF-8")
		w.Write(s.manifestBody)
		return
	}
	writeJSON(w, []map[string]string{{
		"description":          "node.js instance",
		"devtoolsFrontendUrl":  "devtools://devtools/bundled/js_app.html?experiments=true&v8only=true&ws=127.0.0.1:" + strconv.Itoa(int(s.Port())) + "/ws/" + s.targetID,
		"id":                   s.targetID,
		"title":                "node",
		"type":                 "node",
		"url":                  "file://",
		"webSocketDebuggerUrl": s.DebugURL(),
	}})
}

func (s *Server) version(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, map[string]string{"Browser": "node.js/v20.0.0", "Protocol-Version": "1.1"})
}

func (s *Server) protocol(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, map[string]any{
		"version": map[string]string{"major": "1", "minor": "3"},
		"domains": s.domains,
	})
}

func (s *Server) debugWS(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	if params.ByName("id") != s.targetID {
		http.Error(w, "unknown target", http.StatusNotFound)
		return
	}
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.Log.Debugf("error accepting WebSocket conn: %s", err)
		return
	}
	conn.SetReadLimit(1 << 24)
	s.Log.Debug("accepted WebSocket conn")
	s.serve(r.Context(), conn)
}

func (s *Server) serve(ctx context.Context, conn *websocket.Conn) {
	for {
		var req Request
		err := wsjson.Read(ctx, conn, &req)
		if err != nil {
			s.Log.Debugf("reader got error: %s", err)
			conn.Close(websocket.StatusNormalClosure, "")
			return
		}
		s.mut.Lock()
		s.requests = append(s.requests, req)
		s.mut.Unlock()

		if s.preamble != nil {
			for _, frame := range s.preamble(req) {
				if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
					s.Log.Debugf("writing preamble: %s", err)
					return
				}
			}
		}
		b, err := json.Marshal(s.reply(req))
		if err != nil {
			s.Log.Debugf("encoding reply: %s", err)
			return
		}
		if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
			s.Log.Debugf("writing reply: %s", err)
			return
		}
	}
}

func (s *Server) reply(req Request) map[string]any {
	if req.Method != "Runtime.evaluate" {
		return map[string]any{"id": req.ID, "result": map[string]any{}}
	}
	value, ok := s.evaluate(req.Expression())
	result := map[string]any{"type": "undefined"}
	if ok {
		result = map[string]any{"type": typeOf(value), "value": value}
	}
	return map[string]any{
		"id":     req.ID,
		"result": map[string]any{"result": result},
	}
}

func typeOf(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case int, int64, float64:
		return "number"
	}
	return "object"
}
