package worker

import (
	"context"
	"errors"
	"fmt"
)

// EventKind 是分发表的键。
type EventKind string

const (
	EventInstall  EventKind = "install"
	EventActivate EventKind = "activate"
	EventFetch    EventKind = "fetch"
	EventMessage  EventKind = "message"
)

// Event 是投递给 worker 的一次事件；Request 只对 fetch 有意义，Message 只对 message 有意义。
type Event struct {
	Kind    EventKind
	Request *Request
	Message string
}

// Outcome 是事件处理结果，只有 fetch 事件会填充 Fetch。
type Outcome struct {
	Fetch FetchResult
	State State
}

// EventHandler 处理单一类型的事件。
type EventHandler func(ctx context.Context, ev Event) (Outcome, error)

// Dispatcher 以事件类型为键组合各个处理函数。
type Dispatcher struct {
	handlers map[EventKind]EventHandler
}

// NewDispatcher 为 worker 注册 install/activate/fetch/message 四类处理函数。
func NewDispatcher(w *Worker) *Dispatcher {
	d := &Dispatcher{handlers: make(map[EventKind]EventHandler, 4)}
	d.Handle(EventInstall, func(ctx context.Context, _ Event) (Outcome, error) {
		err := w.Install(ctx)
		return Outcome{State: w.State()}, err
	})
	d.Handle(EventActivate, func(ctx context.Context, _ Event) (Outcome, error) {
		err := w.Activate(ctx)
		return Outcome{State: w.State()}, err
	})
	d.Handle(EventFetch, func(ctx context.Context, ev Event) (Outcome, error) {
		if ev.Request == nil {
			return Outcome{}, errors.New("fetch event without request")
		}
		result, err := w.Fetch(ctx, ev.Request)
		return Outcome{Fetch: result}, err
	})
	d.Handle(EventMessage, func(ctx context.Context, ev Event) (Outcome, error) {
		err := w.Message(ctx, ev.Message)
		return Outcome{State: w.State()}, err
	})
	return d
}

// Handle 注册或替换某类事件的处理函数。
func (d *Dispatcher) Handle(kind EventKind, handler EventHandler) {
	d.handlers[kind] = handler
}

// Dispatch 把事件交给对应的处理函数，未注册的类型返回错误。
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) (Outcome, error) {
	handler, ok := d.handlers[ev.Kind]
	if !ok {
		return Outcome{}, fmt.Errorf("no handler for event %q", ev.Kind)
	}
	return handler(ctx, ev)
}
