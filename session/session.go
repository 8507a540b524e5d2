package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/eapache/queue"
	"github.com/guseggert/jsinject/protocol"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// evaluation results can be large, the library default of 32KiB is not enough
const readLimit = 1 << 24

var ErrTransport = errors.New("transport failure")

func transportError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
}

// Message is one inbound frame. Response is nil when the frame is not a JSON object.
type Message struct {
	Raw      []byte
	Response *protocol.Response
}

type Session struct {
	Logger *zap.SugaredLogger
	URL    string

	conn    *websocket.Conn
	builder *protocol.Builder
	out     io.Writer

	// frames received while waiting for a specific response
	backlog *queue.Queue

	closeConnOnce sync.Once
}

type Option func(s *Session)

// WithBuilder shares a request builder, and so its id sequence, with the session.
func WithBuilder(b *protocol.Builder) Option {
	return func(s *Session) {
		s.builder = b
	}
}

// WithOutput sets where responses and read-loop frames are printed. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(s *Session) {
		s.out = w
	}
}

func Dial(ctx context.Context, log *zap.SugaredLogger, url string, opts ...Option) (*Session, error) {
	s := &Session{
		Logger:  log.Named("session"),
		URL:     url,
		builder: protocol.NewBuilder(),
		out:     os.Stdout,
		backlog: queue.New(),
	}
	for _, o := range opts {
		o(s)
	}

	s.Logger.Infof("connecting to %s", url)
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		s.Logger.Debugf("dial error: %s", err)
		return nil, transportError("establishing WebSocket conn to "+url, err)
	}
	conn.SetReadLimit(readLimit)
	s.conn = conn
	return s, nil
}

func (s *Session) Close() error {
	var err error
	s.closeConnOnce.Do(func() {
		err = s.conn.Close(websocket.StatusNormalClosure, "")
		if err != nil {
			s.Logger.Debugf("error closing conn: %s", err)
		}
	})
	return err
}

func (s *Session) Builder() *protocol.Builder { return s.builder }

func (s *Session) Send(ctx context.Context, call protocol.MethodCall) error {
	s.Logger.Debugw("sending method call", "ID", call.ID, "Method", call.Method)
	if err := wsjson.Write(ctx, s.conn, call); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return transportError("sending method call", err)
	}
	return nil
}

// SendRaw transmits an already encoded payload as one text frame.
func (s *Session) SendRaw(ctx context.Context, payload []byte) error {
	if err := s.conn.Write(ctx, websocket.MessageText, payload); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return transportError("sending payload", err)
	}
	return nil
}

// Receive blocks for the next frame.
func (s *Session) Receive(ctx context.Context) (Message, error) {
	_, b, err := s.conn.Read(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Message{}, ctxErr
		}
		if websocket.CloseStatus(err) != -1 {
			return Message{}, transportError("conn closed by target", err)
		}
		return Message{}, transportError("reading frame", err)
	}
	msg := Message{Raw: b}
	resp, err := protocol.DecodeResponse(b)
	if err != nil {
		s.Logger.Debugf("received unrecognized frame: %s", err)
		return msg, nil
	}
	msg.Response = resp
	return msg, nil
}

// Await reads frames until the response to the given request id arrives. A negative id accepts the first response of any id.
func (s *Session) Await(ctx context.Context, id int64) (Message, error) {
	for {
		msg, err := s.Receive(ctx)
		if err != nil {
			return Message{}, err
		}
		switch {
		case msg.Response == nil || msg.Response.ID == nil:
			s.backlog.Add(msg)
		case id >= 0 && *msg.Response.ID != id:
			s.Logger.Warnw("dropping response to another request", "Expected", id, "Got", *msg.Response.ID, "Frame", string(msg.Raw))
		default:
			return msg, nil
		}
	}
}

// drain hands every backlogged frame to f in arrival order.
func (s *Session) drain(f func(Message) error) error {
	for s.backlog.Length() > 0 {
		msg := s.backlog.Remove().(Message)
		if err := f(msg); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) printLine(b []byte) error {
	_, err := fmt.Fprintf(s.out, "%s\n", bytes.TrimRight(b, "\r\n"))
	return err
}

// EvalAndAwait evaluates the expression and prints the response it gets back.
func (s *Session) EvalAndAwait(ctx context.Context, expression string) (Message, error) {
	call := s.builder.Evaluate(expression)
	if err := s.Send(ctx, call); err != nil {
		return Message{}, err
	}
	s.Logger.Info("payload sent!")
	return s.awaitAndPrint(ctx, call.ID)
}

// SendPayloadAndAwait sends a raw payload and prints the response to it. If the payload has an integer id, the response is matched on it.
func (s *Session) SendPayloadAndAwait(ctx context.Context, payload []byte) (Message, error) {
	var head struct {
		ID *int64 `json:"id"`
	}
	id := int64(-1)
	if err := json.Unmarshal(payload, &head); err == nil && head.ID != nil && *head.ID >= 0 {
		id = *head.ID
	}
	if err := s.SendRaw(ctx, payload); err != nil {
		return Message{}, err
	}
	s.Logger.Info("payload sent!")
	return s.awaitAndPrint(ctx, id)
}

func (s *Session) awaitAndPrint(ctx context.Context, id int64) (Message, error) {
	msg, err := s.Await(ctx, id)
	if err != nil {
		return Message{}, err
	}
	logResponseProblems(s.Logger, msg.Response)
	if err := s.printLine(msg.Raw); err != nil {
		return Message{}, fmt.Errorf("printing response: %w", err)
	}
	return msg, nil
}

func logResponseProblems(log *zap.SugaredLogger, resp *protocol.Response) {
	if resp.Error != nil {
		log.Warnf("request %d failed: %s", *resp.ID, resp.Error)
	}
	if exc := resp.Exception(); exc != nil {
		log.Warnf("evaluation threw: %s", exc)
	}
}

// ReadLoop prints every inbound frame until the context is canceled or the connection fails.
func (s *Session) ReadLoop(ctx context.Context) error {
	s.Logger.Info("reading events, press ctrl+c to exit ...")
	err := s.drain(func(m Message) error { return s.printLine(m.Raw) })
	if err != nil {
		return fmt.Errorf("printing frame: %w", err)
	}
	for {
		msg, err := s.Receive(ctx)
		if err != nil {
			return err
		}
		if err := s.printLine(msg.Raw); err != nil {
			return fmt.Errorf("printing frame: %w", err)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
