package bot

import (
	"context"
	"sync"

	"github.com/aegion/docbot/pkg/bus"
	"github.com/aegion/docbot/pkg/logger"
)

// laneMaxPending caps how many messages one sender can have waiting.
const laneMaxPending = 256

// lanes serializes messages per sender while different senders run
// concurrently. A lane's worker exits and unregisters as soon as its queue
// drains, so idle senders hold no goroutine.
type lanes struct {
	mu     sync.Mutex
	queues map[string]*lane
	wg     sync.WaitGroup
	handle func(context.Context, bus.InboundMessage)
}

type lane struct {
	pending []bus.InboundMessage
}

func newLanes(handle func(context.Context, bus.InboundMessage)) *lanes {
	return &lanes{
		queues: make(map[string]*lane),
		handle: handle,
	}
}

// dispatch queues msg on its sender's lane and never blocks. Messages beyond
// laneMaxPending for one sender are dropped.
func (l *lanes) dispatch(ctx context.Context, msg bus.InboundMessage) bool {
	key := msg.SenderID

	l.mu.Lock()
	defer l.mu.Unlock()

	if ln, ok := l.queues[key]; ok {
		if len(ln.pending) >= laneMaxPending {
			logger.WarnCF("bot", "Sender lane full, dropping message", map[string]any{
				"sender_id":  key,
				"message_id": msg.MessageID,
				"pending":    len(ln.pending),
			})
			return false
		}
		ln.pending = append(ln.pending, msg)
		return true
	}

	ln := &lane{pending: []bus.InboundMessage{msg}}
	l.queues[key] = ln
	l.wg.Add(1)
	go l.work(ctx, key, ln)
	return true
}

func (l *lanes) work(ctx context.Context, key string, ln *lane) {
	defer l.wg.Done()
	for {
		msg, ok := l.next(ctx, key, ln)
		if !ok {
			return
		}
		l.run(ctx, key, msg)
	}
}

// next pops the lane's oldest message. When the lane is empty or ctx is done
// it removes the lane and reports false.
func (l *lanes) next(ctx context.Context, key string, ln *lane) (bus.InboundMessage, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(ln.pending) == 0 || ctx.Err() != nil {
		if l.queues[key] == ln {
			delete(l.queues, key)
		}
		return bus.InboundMessage{}, false
	}
	msg := ln.pending[0]
	ln.pending[0] = bus.InboundMessage{}
	ln.pending = ln.pending[1:]
	return msg, true
}

func (l *lanes) run(ctx context.Context, key string, msg bus.InboundMessage) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCF("bot", "Message handler panicked", map[string]any{
				"sender_id": key,
				"panic":     r,
			})
		}
	}()
	l.handle(ctx, msg)
}

// size reports how many senders currently hold a lane.
func (l *lanes) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queues)
}

func (l *lanes) wait() {
	l.wg.Wait()
}
