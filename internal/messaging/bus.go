// Package messaging connects the page agent, the coordinator and rendering
// surfaces with request/response envelopes. Every request gets an id and a
// Future that resolves exactly once.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Target names the logical context a request is addressed to.
type Target string

const (
	TargetAgent       Target = "agent"
	TargetCoordinator Target = "coordinator"
)

type Action string

// Request is the envelope sent between contexts.
type Request struct {
	ID      string          `json:"id,omitempty"`
	Target  Target          `json:"target,omitempty"`
	Action  Action          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response carries either Result or Error, never both.
type Response struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Handler serves one action. It may block; the bus runs it on its own goroutine.
type Handler func(ctx context.Context, req Request) (any, error)

// Observer is told about every completed request.
type Observer interface {
	ObserveMessage(target Target, action Action, elapsed time.Duration, err error)
}

var ErrNoHandler = errors.New("no handler registered")

// RemoteError is a failure reported by the handler on the other side.
type RemoteError struct {
	Action  Action
	Message string
}

func (e *RemoteError) Error() string { return string(e.Action) + ": " + e.Message }

// Future is the pending result of a request.
type Future struct {
	id   string
	once sync.Once
	done chan struct{}
	resp Response
}

func newFuture(id string) *Future {
	return &Future{id: id, done: make(chan struct{})}
}

func (f *Future) ID() string { return f.id }

// Done is closed once the future resolves.
func (f *Future) Done() <-chan struct{} { return f.done }

// resolve reports whether this call was the one that settled the future.
func (f *Future) resolve(resp Response) bool {
	ok := false
	f.once.Do(func() {
		resp.ID = f.id
		f.resp = resp
		ok = true
		close(f.done)
	})
	return ok
}

// Wait blocks until the future resolves or ctx ends.
func (f *Future) Wait(ctx context.Context) (Response, error) {
	select {
	case <-f.done:
		return f.resp, nil
	case <-ctx.Done():
		return Response{ID: f.id}, fmt.Errorf("request %s: %w", f.id, ctx.Err())
	}
}

type Bus struct {
	log      logrus.FieldLogger
	observer Observer

	mu       sync.RWMutex
	handlers map[Target]map[Action]Handler
	pending  map[string]*Future
}

func NewBus(log logrus.FieldLogger, observer Observer) *Bus {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Bus{
		log:      log,
		observer: observer,
		handlers: map[Target]map[Action]Handler{},
		pending:  map[string]*Future{},
	}
}

// Handle registers h for action on target, replacing any previous handler.
func (b *Bus) Handle(target Target, action Action, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handlers[target] == nil {
		b.handlers[target] = map[Action]Handler{}
	}
	b.handlers[target][action] = h
}

func (b *Bus) handler(target Target, action Action) (Handler, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	h, ok := b.handlers[target][action]
	return h, ok
}

// Post starts req and returns its future without waiting. An empty Target
// means the coordinator.
func (b *Bus) Post(ctx context.Context, req Request) *Future {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Target == "" {
		req.Target = TargetCoordinator
	}
	fut := newFuture(req.ID)

	h, ok := b.handler(req.Target, req.Action)
	if !ok {
		fut.resolve(Response{Error: fmt.Sprintf("%s %s/%s", ErrNoHandler, req.Target, req.Action)})
		return fut
	}

	b.mu.Lock()
	if _, dup := b.pending[req.ID]; dup {
		b.mu.Unlock()
		fut.resolve(Response{Error: "duplicate request id " + req.ID})
		return fut
	}
	b.pending[req.ID] = fut
	b.mu.Unlock()

	go b.run(ctx, h, req, fut)
	return fut
}

func (b *Bus) run(ctx context.Context, h Handler, req Request, fut *Future) {
	start := time.Now()
	result, err := b.invoke(ctx, h, req)

	resp := Response{}
	if err == nil {
		raw, merr := json.Marshal(result)
		if merr != nil {
			err = fmt.Errorf("encode result: %w", merr)
		} else {
			resp.Result = raw
		}
	}
	if err != nil {
		resp.Error = err.Error()
	}
	b.Resolve(Response{ID: req.ID, Result: resp.Result, Error: resp.Error})

	if b.observer != nil {
		b.observer.ObserveMessage(req.Target, req.Action, time.Since(start), err)
	}
	if err != nil {
		b.log.WithFields(logrus.Fields{"id": req.ID, "target": req.Target, "action": req.Action}).WithError(err).Debug("request failed")
	}
}

func (b *Bus) invoke(ctx context.Context, h Handler, req Request) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h(ctx, req)
}

// Resolve settles the pending request with resp.ID. It reports false when the
// id is unknown or already resolved.
func (b *Bus) Resolve(resp Response) bool {
	b.mu.Lock()
	fut, ok := b.pending[resp.ID]
	delete(b.pending, resp.ID)
	b.mu.Unlock()
	if !ok {
		return false
	}
	return fut.resolve(resp)
}

// Pending reports how many requests are unresolved.
func (b *Bus) Pending() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.pending)
}

// Dispatch runs req to completion and always returns a response envelope.
func (b *Bus) Dispatch(ctx context.Context, req Request) Response {
	fut := b.Post(ctx, req)
	resp, err := fut.Wait(ctx)
	if err != nil {
		return Response{ID: fut.ID(), Error: err.Error()}
	}
	return resp
}

// Send posts payload to target and waits for the raw result.
func (b *Bus) Send(ctx context.Context, target Target, action Action, payload any) (json.RawMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", action, err)
	}
	resp, err := b.Post(ctx, Request{Target: target, Action: action, Payload: raw}).Wait(ctx)
	if err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, &RemoteError{Action: action, Message: resp.Error}
	}
	return resp.Result, nil
}

// Call is Send followed by decoding the result into out.
func (b *Bus) Call(ctx context.Context, target Target, action Action, payload, out any) error {
	raw, err := b.Send(ctx, target, action, payload)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s result: %w", action, err)
	}
	return nil
}
