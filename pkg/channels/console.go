package channels

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/chzyer/readline"
	"github.com/google/uuid"

	"github.com/aegion/docbot/pkg/bus"
	"github.com/aegion/docbot/pkg/config"
	"github.com/aegion/docbot/pkg/logger"
)

const consoleChatID = "console"

// ConsoleChannel drives the bot from a terminal. Every line counts as
// addressed to the bot, so the first line opens a session.
type ConsoleChannel struct {
	*BaseChannel
	config config.ConsoleConfig
	rl     *readline.Instance
	outMu  sync.Mutex
	out    io.Writer
	done   chan struct{}
	closed func()
}

func NewConsoleChannel(cfg config.ConsoleConfig, bus *bus.MessageBus) *ConsoleChannel {
	return &ConsoleChannel{
		BaseChannel: NewBaseChannel("console", bus, nil),
		config:      cfg,
		out:         os.Stdout,
		done:        make(chan struct{}),
	}
}

// OnClose registers fn to run when the operator ends console input.
func (c *ConsoleChannel) OnClose(fn func()) {
	c.closed = fn
}

func (c *ConsoleChannel) Start(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          c.config.Prompt,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		HistoryLimit:    200,
	})
	if err != nil {
		return fmt.Errorf("failed to open console: %w", err)
	}

	c.rl = rl
	c.outMu.Lock()
	c.out = rl.Stdout()
	c.outMu.Unlock()
	c.setRunning(true)

	logger.InfoCF("console", "Console gateway started", map[string]any{
		"user_id": c.config.UserID,
	})

	go c.readLoop(ctx)
	return nil
}

func (c *ConsoleChannel) Stop(ctx context.Context) error {
	c.setRunning(false)
	if c.rl == nil {
		return nil
	}
	if err := c.rl.Close(); err != nil {
		return fmt.Errorf("failed to close console: %w", err)
	}
	select {
	case <-c.done:
	case <-ctx.Done():
	}
	return nil
}

func (c *ConsoleChannel) readLoop(ctx context.Context) {
	defer func() {
		close(c.done)
		if c.closed != nil && ctx.Err() == nil {
			c.closed()
		}
	}()
	for ctx.Err() == nil {
		line, err := c.rl.Readline()
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			if line == "" {
				logger.InfoC("console", "Console interrupted")
				return
			}
			continue
		case errors.Is(err, io.EOF):
			logger.InfoC("console", "Console input closed")
			return
		case err != nil:
			logger.WarnCF("console", "Console read failed", map[string]any{
				"error": err.Error(),
			})
			return
		}
		c.handleLine(line)
	}
}

func (c *ConsoleChannel) handleLine(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	c.HandleMessage(bus.InboundMessage{
		SenderID:    c.config.UserID,
		ChatID:      consoleChatID,
		Content:     line,
		MentionsBot: true,
		MessageID:   uuid.NewString(),
	})
}

func (c *ConsoleChannel) Send(_ context.Context, msg bus.OutboundMessage) error {
	if msg.Control {
		return nil
	}

	prefix := "bot> "
	if msg.ChatID != consoleChatID {
		prefix = "bot [" + msg.ChatID + "]> "
	}

	c.outMu.Lock()
	defer c.outMu.Unlock()
	if _, err := fmt.Fprintln(c.out, prefix+renderContent(msg)); err != nil {
		return fmt.Errorf("failed to write console message: %w", err)
	}
	return nil
}
