package channels

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/aegion/docbot/pkg/bus"
	"github.com/aegion/docbot/pkg/config"
	"github.com/aegion/docbot/pkg/logger"
	"github.com/aegion/docbot/pkg/utils"
)

const (
	sendTimeout       = 10 * time.Second
	typingInterval    = 8 * time.Second
	typingMaxDuration = 5 * time.Minute
	discordMaxMessage = 2000
)

// discordAPI is the subset of *discordgo.Session the channel drives.
type discordAPI interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelTyping(channelID string, options ...discordgo.RequestOption) error
}

type DiscordChannel struct {
	*BaseChannel
	session     *discordgo.Session
	api         discordAPI
	config      config.DiscordConfig
	botMu       sync.RWMutex
	botID       string
	typingMu    sync.Mutex
	typingTasks map[string]typingTask
	typingSeq   uint64
}

type typingTask struct {
	id     uint64
	cancel context.CancelFunc
}

func NewDiscordChannel(cfg config.DiscordConfig, bus *bus.MessageBus) (*DiscordChannel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	return &DiscordChannel{
		BaseChannel: NewBaseChannel("discord", bus, cfg.AllowFrom),
		session:     session,
		api:         session,
		config:      cfg,
		typingTasks: make(map[string]typingTask),
	}, nil
}

// BotID is the bot account id, known once Start has connected.
func (c *DiscordChannel) BotID() string {
	c.botMu.RLock()
	defer c.botMu.RUnlock()
	return c.botID
}

func (c *DiscordChannel) Start(ctx context.Context) error {
	logger.InfoC("discord", "Starting Discord bot")

	c.session.AddHandler(c.handleMessage)

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}

	c.setRunning(true)

	botUser, err := c.session.User("@me")
	if err != nil {
		return fmt.Errorf("failed to get bot user: %w", err)
	}
	c.botMu.Lock()
	c.botID = botUser.ID
	c.botMu.Unlock()

	logger.InfoCF("discord", "Discord bot connected", map[string]any{
		"username": botUser.Username,
		"user_id":  botUser.ID,
	})

	return nil
}

func (c *DiscordChannel) Stop(ctx context.Context) error {
	logger.InfoC("discord", "Stopping Discord bot")
	c.setRunning(false)
	c.stopAllTyping()

	if err := c.session.Close(); err != nil {
		return fmt.Errorf("failed to close discord session: %w", err)
	}

	return nil
}

func (c *DiscordChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("discord bot not running")
	}

	channelID := msg.ChatID
	if channelID == "" {
		return fmt.Errorf("channel ID is empty")
	}

	if msg.Typing {
		c.startTyping(msg.RequestID, channelID)
	}
	defer func() {
		// Only the final reply of a request stops its typing indicator.
		if msg.IsFinal {
			c.stopTyping(msg.RequestID)
		}
	}()

	if msg.Control {
		return nil
	}

	for _, chunk := range utils.SplitMessage(renderContent(msg), discordMaxMessage) {
		if err := c.sendChunk(ctx, channelID, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (c *DiscordChannel) sendChunk(ctx context.Context, channelID, content string) error {
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := c.api.ChannelMessageSend(channelID, content)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send discord message: %w", err)
		}
		return nil
	case <-sendCtx.Done():
		return fmt.Errorf("send message timeout: %w", sendCtx.Err())
	}
}

// renderContent prefixes the addressed user's mention.
func renderContent(msg bus.OutboundMessage) string {
	if msg.MentionID == "" {
		return msg.Content
	}
	return "<@" + msg.MentionID + "> " + msg.Content
}

// appendContent appends suffix on a new line.
func appendContent(content, suffix string) string {
	if content == "" {
		return suffix
	}
	return content + "\n" + suffix
}

func (c *DiscordChannel) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m == nil || m.Author == nil {
		return
	}

	selfID := c.BotID()
	if s.State != nil && s.State.User != nil {
		selfID = s.State.User.ID
	}

	msg, ok := inboundFromDiscord(m.Message, selfID)
	if !ok {
		return
	}
	if !msg.IsSelf && !c.IsAllowed(msg.SenderID) {
		logger.DebugCF("discord", "Message rejected by allowlist", map[string]any{
			"user_id": msg.SenderID,
		})
		return
	}
	if !msg.IsSelf && m.GuildID != "" {
		msg.FromAdmin = c.isAdministrator(s, m.Author.ID, m.ChannelID)
	}

	logger.DebugCF("discord", "Received message", map[string]any{
		"sender_name": msg.Metadata["display_name"],
		"sender_id":   msg.SenderID,
		"self":        msg.IsSelf,
		"mentions":    msg.MentionsBot,
		"preview":     utils.Truncate(msg.Content, 50),
	})

	c.HandleMessage(msg)
}

// inboundFromDiscord converts a gateway message. It reports false for
// messages with nothing to process.
func inboundFromDiscord(m *discordgo.Message, selfID string) (bus.InboundMessage, bool) {
	content := m.Content
	for _, attachment := range m.Attachments {
		content = appendContent(content, fmt.Sprintf("[attachment: %s]", attachment.URL))
	}
	if content == "" {
		return bus.InboundMessage{}, false
	}

	senderName := m.Author.Username
	if m.Author.Discriminator != "" && m.Author.Discriminator != "0" {
		senderName += "#" + m.Author.Discriminator
	}

	msg := bus.InboundMessage{
		SenderID:  m.Author.ID,
		ChatID:    m.ChannelID,
		Content:   content,
		MessageID: m.ID,
		IsSelf:    selfID != "" && m.Author.ID == selfID,
		IsBot:     m.Author.Bot,
		Metadata: map[string]string{
			"username":     m.Author.Username,
			"display_name": senderName,
			"guild_id":     m.GuildID,
			"is_dm":        fmt.Sprintf("%t", m.GuildID == ""),
		},
	}
	for _, u := range m.Mentions {
		if u == nil {
			continue
		}
		msg.Mentions = append(msg.Mentions, u.ID)
		if u.ID == selfID {
			msg.MentionsBot = true
		}
	}
	return msg, true
}

func (c *DiscordChannel) isAdministrator(s *discordgo.Session, userID, channelID string) bool {
	perms, err := s.UserChannelPermissions(userID, channelID)
	if err != nil {
		logger.DebugCF("discord", "Failed to resolve permissions", map[string]any{
			"user_id": userID,
			"error":   err.Error(),
		})
		return false
	}
	return perms&discordgo.PermissionAdministrator != 0
}

func (c *DiscordChannel) typingKey(requestID string) string {
	if requestID == "" {
		return ""
	}
	return fmt.Sprintf("%s:req:%s", c.Name(), requestID)
}

func (c *DiscordChannel) startTyping(requestID, channelID string) {
	key := c.typingKey(requestID)
	if key == "" {
		return
	}

	c.typingMu.Lock()
	if _, exists := c.typingTasks[key]; exists {
		c.typingMu.Unlock()
		return
	}

	typingCtx, cancel := context.WithCancel(context.Background())
	c.typingSeq++
	taskID := c.typingSeq
	c.typingTasks[key] = typingTask{id: taskID, cancel: cancel}
	c.typingMu.Unlock()

	go func() {
		defer c.cleanupTypingTask(key, taskID)

		sendTyping := func() {
			if err := c.api.ChannelTyping(channelID); err != nil {
				logger.DebugCF("discord", "Failed to send typing indicator", map[string]any{
					"channel_id": channelID,
					"error":      err.Error(),
				})
			}
		}

		sendTyping()

		ticker := time.NewTicker(typingInterval)
		defer ticker.Stop()

		timeout := time.NewTimer(typingMaxDuration)
		defer timeout.Stop()

		for {
			select {
			case <-typingCtx.Done():
				return
			case <-timeout.C:
				logger.DebugCF("discord", "Typing indicator auto-stopped on timeout", map[string]any{
					"typing_key": key,
				})
				return
			case <-ticker.C:
				sendTyping()
			}
		}
	}()
}

func (c *DiscordChannel) stopTyping(requestID string) {
	key := c.typingKey(requestID)
	if key == "" {
		return
	}

	c.typingMu.Lock()
	task, exists := c.typingTasks[key]
	if exists {
		delete(c.typingTasks, key)
	}
	c.typingMu.Unlock()

	if exists {
		task.cancel()
	}
}

func (c *DiscordChannel) cleanupTypingTask(key string, taskID uint64) {
	c.typingMu.Lock()
	current, exists := c.typingTasks[key]
	if exists && current.id == taskID {
		delete(c.typingTasks, key)
	}
	c.typingMu.Unlock()
}

func (c *DiscordChannel) stopAllTyping() {
	c.typingMu.Lock()
	cancellers := make([]context.CancelFunc, 0, len(c.typingTasks))
	for key, task := range c.typingTasks {
		cancellers = append(cancellers, task.cancel)
		delete(c.typingTasks, key)
	}
	c.typingMu.Unlock()

	for _, cancel := range cancellers {
		cancel()
	}
}
