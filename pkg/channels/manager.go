package channels

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aegion/docbot/pkg/bus"
	"github.com/aegion/docbot/pkg/logger"
)

// Manager owns the gateways and routes outbound messages to them by name.
type Manager struct {
	bus      *bus.MessageBus
	mu       sync.RWMutex
	channels map[string]Channel
	wg       sync.WaitGroup
}

func NewManager(mb *bus.MessageBus) *Manager {
	return &Manager{
		bus:      mb,
		channels: make(map[string]Channel),
	}
}

func (m *Manager) Register(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[ch.Name()] = ch
}

func (m *Manager) Get(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[name]
	return ch, ok
}

// Names lists registered channels in sorted order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Status reports whether each channel is running.
func (m *Manager) Status() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]bool, len(m.channels))
	for name, ch := range m.channels {
		out[name] = ch.IsRunning()
	}
	return out
}

// StartAll starts every channel and the outbound dispatcher. A channel that
// fails to start aborts startup.
func (m *Manager) StartAll(ctx context.Context) error {
	for _, name := range m.Names() {
		ch, _ := m.Get(name)
		if err := ch.Start(ctx); err != nil {
			return fmt.Errorf("failed to start %s channel: %w", name, err)
		}
		logger.InfoCF("channels", "Channel started", map[string]any{
			"channel": name,
		})
	}

	m.wg.Add(1)
	go m.dispatchOutbound(ctx)
	return nil
}

// StopAll stops every channel and waits for the dispatcher to exit.
func (m *Manager) StopAll(ctx context.Context) {
	for _, name := range m.Names() {
		ch, _ := m.Get(name)
		if err := ch.Stop(ctx); err != nil {
			logger.WarnCF("channels", "Channel stop failed", map[string]any{
				"channel": name,
				"error":   err.Error(),
			})
		}
	}
	m.wg.Wait()
}

func (m *Manager) dispatchOutbound(ctx context.Context) {
	defer m.wg.Done()
	for {
		msg, ok := m.bus.SubscribeOutbound(ctx)
		if !ok {
			return
		}

		ch, found := m.Get(msg.Channel)
		if !found {
			logger.WarnCF("channels", "No channel for outbound message", map[string]any{
				"channel": msg.Channel,
				"chat_id": msg.ChatID,
			})
			continue
		}
		if err := ch.Send(ctx, msg); err != nil {
			logger.ErrorCF("channels", "Failed to deliver message", map[string]any{
				"channel": msg.Channel,
				"chat_id": msg.ChatID,
				"error":   err.Error(),
			})
		}
	}
}
