package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultQueueSize = 64
	// routeGrace keeps a finished query's route so that sinks handling the
	// final event after its owner still see it as bound.
	routeGrace = time.Minute
)

// Sender delivers a text message to a chat.
type Sender interface {
	Send(chatID string, text string) error
}

type route struct {
	owner   *MessengerSink
	chat    string
	endedAt time.Time
}

// Routes maps queries to the chat they were submitted from. Sinks sharing
// one Routes never forward a query bound by another sink.
type Routes struct {
	mu     sync.Mutex
	routes map[string]*route
	now    func() time.Time
}

func NewRoutes() *Routes {
	return &Routes{routes: map[string]*route{}, now: time.Now}
}

func (r *Routes) bind(owner *MessengerSink, queryID, chatID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prune()
	r.routes[queryID] = &route{owner: owner, chat: chatID}
}

// lookup returns the route of queryID and marks it ended on a final event.
func (r *Routes) lookup(queryID string, final bool) (*route, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt, ok := r.routes[queryID]
	if !ok {
		return nil, false
	}
	if final && rt.endedAt.IsZero() {
		rt.endedAt = r.now()
	}
	return rt, true
}

func (r *Routes) prune() {
	cutoff := r.now().Add(-routeGrace)
	for id, rt := range r.routes {
		if !rt.endedAt.IsZero() && rt.endedAt.Before(cutoff) {
			delete(r.routes, id)
		}
	}
}

type outgoing struct {
	queryID string
	chat    string
	text    string
}

// MessengerSink forwards text renderings of events to a chat. Events of
// queries bound with Bind go to their chat; queries no sink bound go to
// DefaultChat, if any. Intermediate events are only forwarded when Verbose
// is set.
//
// Publish only enqueues. Messages are sent by one goroutine per sink, and
// a full queue drops the event.
type MessengerSink struct {
	sender      Sender
	DefaultChat string
	Verbose     bool
	routes      *Routes
	logger      *zap.Logger

	queue     chan outgoing
	done      chan struct{}
	closeOnce sync.Once
}

// NewMessengerSink starts a sink delivering through sender. routes may be
// shared with other sinks; nil gives the sink its own.
func NewMessengerSink(sender Sender, defaultChat string, verbose bool, routes *Routes, logger *zap.Logger) *MessengerSink {
	if routes == nil {
		routes = NewRoutes()
	}
	s := &MessengerSink{
		sender:      sender,
		DefaultChat: defaultChat,
		Verbose:     verbose,
		routes:      routes,
		logger:      logger.Named("messenger"),
		queue:       make(chan outgoing, defaultQueueSize),
		done:        make(chan struct{}),
	}
	go s.deliver()
	return s
}

// Bind sends the events of queryID to chatID.
func (s *MessengerSink) Bind(queryID, chatID string) {
	s.routes.bind(s, queryID, chatID)
}

func (s *MessengerSink) chatFor(ev Event) string {
	rt, ok := s.routes.lookup(ev.QueryID, ev.Final())
	switch {
	case !ok:
		return s.DefaultChat
	case rt.owner == s:
		return rt.chat
	default:
		return ""
	}
}

func (s *MessengerSink) Publish(_ context.Context, ev Event) {
	if !ev.Terminal() && !s.Verbose {
		return
	}
	chat := s.chatFor(ev)
	if chat == "" {
		return
	}
	msg := outgoing{queryID: ev.QueryID, chat: chat, text: RenderText(ev)}
	defer func() {
		// Publish after Close.
		if recover() != nil {
			s.logger.Warn("sink closed, event dropped", zap.String("query_id", ev.QueryID))
		}
	}()
	select {
	case s.queue <- msg:
	default:
		s.logger.Warn("chat queue full, event dropped",
			zap.String("query_id", ev.QueryID), zap.String("chat_id", chat))
	}
}

func (s *MessengerSink) deliver() {
	defer close(s.done)
	for msg := range s.queue {
		if err := s.sender.Send(msg.chat, msg.text); err != nil {
			s.logger.Warn("failed to forward event",
				zap.String("query_id", msg.queryID), zap.String("chat_id", msg.chat), zap.Error(err))
		}
	}
}

// Close stops accepting events and waits until the queued ones are sent
// or ctx ends.
func (s *MessengerSink) Close(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.queue) })
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RenderText is the plain-text form of an event used by chat gateways.
func RenderText(ev Event) string {
	var b strings.Builder
	switch {
	case ev.IsError():
		b.WriteString("❌ ")
	case ev.Done:
		b.WriteString("✅ ")
	}
	b.WriteString(ev.Message)
	if ev.Step > 0 {
		fmt.Fprintf(&b, " (step %d)", ev.Step)
	}
	for i, step := range planSteps(ev.ActionPlan) {
		fmt.Fprintf(&b, "\n%d. %s", i+1, step)
	}
	if ev.Actions != nil {
		if raw, err := json.Marshal(ev.Actions); err == nil && string(raw) != "null" && string(raw) != "[]" {
			b.WriteString("\n")
			b.Write(raw)
		}
	}
	return b.String()
}

// planSteps reads the step list of an action plan payload: either a plain
// list or a plan object with an action_plan field.
func planSteps(plan any) []string {
	if plan == nil {
		return nil
	}
	raw, err := json.Marshal(plan)
	if err != nil {
		return nil
	}
	var steps []string
	if json.Unmarshal(raw, &steps) == nil {
		return steps
	}
	var obj struct {
		Steps []string `json:"action_plan"`
	}
	if json.Unmarshal(raw, &obj) == nil {
		return obj.Steps
	}
	return nil
}
