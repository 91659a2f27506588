package channels

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/aegion/docbot/pkg/bus"
)

// Channel is a chat gateway: it turns platform events into inbound messages
// and delivers outbound ones.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, msg bus.OutboundMessage) error
	IsRunning() bool
	IsAllowed(senderID string) bool
}

type BaseChannel struct {
	bus       *bus.MessageBus
	running   atomic.Bool
	name      string
	allowList []string
}

func NewBaseChannel(name string, bus *bus.MessageBus, allowList []string) *BaseChannel {
	return &BaseChannel{
		bus:       bus,
		name:      name,
		allowList: allowList,
	}
}

func (c *BaseChannel) Name() string {
	return c.name
}

func (c *BaseChannel) IsRunning() bool {
	return c.running.Load()
}

// IsAllowed reports whether senderID may talk to the bot. An empty allow list
// admits everyone. Entries may carry a "|username" suffix.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowList) == 0 {
		return true
	}
	for _, allowed := range c.allowList {
		allowed = strings.TrimSpace(allowed)
		if id, _, ok := strings.Cut(allowed, "|"); ok {
			allowed = id
		}
		if allowed == senderID {
			return true
		}
	}
	return false
}

// HandleMessage stamps the channel name and publishes msg. Senders outside
// the allow list are dropped, except the bot's own messages.
func (c *BaseChannel) HandleMessage(msg bus.InboundMessage) {
	if !msg.IsSelf && !c.IsAllowed(msg.SenderID) {
		return
	}
	msg.Channel = c.name
	c.bus.PublishInbound(msg)
}

func (c *BaseChannel) setRunning(running bool) {
	c.running.Store(running)
}
