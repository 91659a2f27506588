package channels

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/aegion/docbot/pkg/bus"
	"github.com/aegion/docbot/pkg/config"
)

type fakeDiscord struct {
	mu     sync.Mutex
	sent   []string
	typing int
	err    error
}

func (f *fakeDiscord) ChannelMessageSend(_, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, content)
	return &discordgo.Message{Content: content}, nil
}

func (f *fakeDiscord) ChannelTyping(string, ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing++
	return nil
}

func (f *fakeDiscord) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func newTestDiscord(api discordAPI) *DiscordChannel {
	c := &DiscordChannel{
		BaseChannel: NewBaseChannel("discord", bus.NewMessageBus(), nil),
		api:         api,
		typingTasks: make(map[string]typingTask),
	}
	c.setRunning(true)
	return c
}

func consume(t *testing.T, mb *bus.MessageBus) (bus.InboundMessage, bool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	return mb.ConsumeInbound(ctx)
}

func TestBaseChannel_IsAllowed(t *testing.T) {
	open := NewBaseChannel("x", nil, nil)
	if !open.IsAllowed("anyone") {
		t.Error("empty allow list should admit everyone")
	}

	c := NewBaseChannel("x", nil, []string{"42|mani", " 7 "})
	for id, want := range map[string]bool{"42": true, "7": true, "8": false} {
		if got := c.IsAllowed(id); got != want {
			t.Errorf("IsAllowed(%q) = %v, want %v", id, got, want)
		}
	}
}

func TestBaseChannel_HandleMessage(t *testing.T) {
	mb := bus.NewMessageBus()
	defer mb.Close()
	c := NewBaseChannel("discord", mb, []string{"42"})

	c.HandleMessage(bus.InboundMessage{SenderID: "99", Content: "blocked"})
	if _, ok := consume(t, mb); ok {
		t.Fatal("sender outside the allow list must be dropped")
	}

	c.HandleMessage(bus.InboundMessage{SenderID: "bot", Content: "mine", IsSelf: true})
	msg, ok := consume(t, mb)
	if !ok || msg.Channel != "discord" || !msg.IsSelf {
		t.Fatalf("self message should pass with channel stamped, got %+v", msg)
	}
}

func TestInboundFromDiscord(t *testing.T) {
	m := &discordgo.Message{
		ID:        "m1",
		ChannelID: "c1",
		GuildID:   "g1",
		Content:   "<@900> hello",
		Author:    &discordgo.User{ID: "42", Username: "mani", Discriminator: "0"},
		Mentions:  []*discordgo.User{{ID: "900"}, {ID: "55"}},
		Attachments: []*discordgo.MessageAttachment{
			{URL: "https://cdn.example/x.png"},
		},
	}

	msg, ok := inboundFromDiscord(m, "900")
	if !ok {
		t.Fatal("expected message to convert")
	}
	if !msg.MentionsBot || len(msg.Mentions) != 2 || msg.IsSelf {
		t.Errorf("unexpected mention flags: %+v", msg)
	}
	if !strings.HasSuffix(msg.Content, "\n[attachment: https://cdn.example/x.png]") {
		t.Errorf("attachment not appended: %q", msg.Content)
	}
	if msg.ChatID != "c1" || msg.MessageID != "m1" || msg.Metadata["is_dm"] != "false" {
		t.Errorf("unexpected routing fields: %+v", msg)
	}

	self := &discordgo.Message{Content: "reply", Author: &discordgo.User{ID: "900", Bot: true}}
	msg, _ = inboundFromDiscord(self, "900")
	if !msg.IsSelf || !msg.IsBot {
		t.Errorf("own message should be flagged: %+v", msg)
	}

	if _, ok := inboundFromDiscord(&discordgo.Message{Author: &discordgo.User{ID: "1"}}, "900"); ok {
		t.Error("empty message should be skipped")
	}
}

func TestDiscordSend_MentionAndSplit(t *testing.T) {
	api := &fakeDiscord{}
	c := newTestDiscord(api)

	err := c.Send(context.Background(), bus.OutboundMessage{ChatID: "c1", Content: "hi", MentionID: "42"})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	long := strings.Repeat("word ", 500)
	if err := c.Send(context.Background(), bus.OutboundMessage{ChatID: "c1", Content: long}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	sent := api.messages()
	if sent[0] != "<@42> hi" {
		t.Errorf("expected mention prefix, got %q", sent[0])
	}
	if len(sent) != 3 {
		t.Fatalf("expected long message split in two, got %d messages", len(sent))
	}
	for _, s := range sent[1:] {
		if len([]rune(s)) > discordMaxMessage {
			t.Errorf("chunk exceeds limit: %d", len([]rune(s)))
		}
	}
}

func TestDiscordSend_TypingLifecycle(t *testing.T) {
	api := &fakeDiscord{}
	c := newTestDiscord(api)
	ctx := context.Background()

	if err := c.Send(ctx, bus.OutboundMessage{ChatID: "c1", RequestID: "r1", Typing: true, Control: true}); err != nil {
		t.Fatalf("typing signal failed: %v", err)
	}
	if len(api.messages()) != 0 {
		t.Error("control message must not be delivered as text")
	}
	c.typingMu.Lock()
	_, typing := c.typingTasks[c.typingKey("r1")]
	c.typingMu.Unlock()
	if !typing {
		t.Fatal("typing task should be running")
	}

	if err := c.Send(ctx, bus.OutboundMessage{ChatID: "c1", RequestID: "r1", Content: "done", IsFinal: true}); err != nil {
		t.Fatalf("final send failed: %v", err)
	}
	c.typingMu.Lock()
	_, typing = c.typingTasks[c.typingKey("r1")]
	c.typingMu.Unlock()
	if typing {
		t.Error("final reply should stop typing")
	}
}

func TestDiscordSend_Errors(t *testing.T) {
	c := newTestDiscord(&fakeDiscord{err: errors.New("rate limited")})

	if err := c.Send(context.Background(), bus.OutboundMessage{ChatID: "c1", Content: "x"}); err == nil {
		t.Error("expected api error to surface")
	}
	if err := c.Send(context.Background(), bus.OutboundMessage{Content: "x"}); err == nil {
		t.Error("expected error for empty channel id")
	}
	c.setRunning(false)
	if err := c.Send(context.Background(), bus.OutboundMessage{ChatID: "c1", Content: "x"}); err == nil {
		t.Error("expected error when not running")
	}
}

func TestConsoleChannel(t *testing.T) {
	mb := bus.NewMessageBus()
	defer mb.Close()
	c := NewConsoleChannel(config.ConsoleConfig{UserID: "operator"}, mb)
	var out bytes.Buffer
	c.out = &out

	c.handleLine("   ")
	if _, ok := consume(t, mb); ok {
		t.Fatal("blank line should be ignored")
	}

	c.handleLine(" I'm Mani ")
	msg, ok := consume(t, mb)
	if !ok {
		t.Fatal("expected inbound message")
	}
	if msg.Channel != "console" || msg.SenderID != "operator" || msg.Content != "I'm Mani" || !msg.MentionsBot || msg.MessageID == "" {
		t.Errorf("unexpected inbound %+v", msg)
	}

	_ = c.Send(context.Background(), bus.OutboundMessage{ChatID: consoleChatID, Typing: true, Control: true})
	_ = c.Send(context.Background(), bus.OutboundMessage{ChatID: consoleChatID, Content: "hello", MentionID: "operator"})
	_ = c.Send(context.Background(), bus.OutboundMessage{ChatID: "doctors", Content: "case"})

	want := "bot> <@operator> hello\nbot [doctors]> case\n"
	if out.String() != want {
		t.Errorf("console output = %q, want %q", out.String(), want)
	}
}

type recordingChannel struct {
	*BaseChannel
	mu   sync.Mutex
	sent []bus.OutboundMessage
	got  chan struct{}
}

func newRecordingChannel(name string) *recordingChannel {
	return &recordingChannel{BaseChannel: NewBaseChannel(name, nil, nil), got: make(chan struct{}, 10)}
}

func (r *recordingChannel) Start(context.Context) error {
	r.setRunning(true)
	return nil
}

func (r *recordingChannel) Stop(context.Context) error {
	r.setRunning(false)
	return nil
}

func (r *recordingChannel) Send(_ context.Context, msg bus.OutboundMessage) error {
	r.mu.Lock()
	r.sent = append(r.sent, msg)
	r.mu.Unlock()
	r.got <- struct{}{}
	return nil
}

func TestManager_RoutesByChannel(t *testing.T) {
	mb := bus.NewMessageBus()
	defer mb.Close()
	m := NewManager(mb)
	discord := newRecordingChannel("discord")
	console := newRecordingChannel("console")
	m.Register(discord)
	m.Register(console)

	ctx, cancel := context.WithCancel(context.Background())
	if err := m.StartAll(ctx); err != nil {
		t.Fatalf("StartAll failed: %v", err)
	}
	if st := m.Status(); !st["discord"] || !st["console"] {
		t.Errorf("channels should be running: %v", st)
	}

	mb.PublishOutbound(bus.OutboundMessage{Channel: "nowhere", Content: "lost"})
	mb.PublishOutbound(bus.OutboundMessage{Channel: "console", Content: "hi"})

	select {
	case <-console.got:
	case <-time.After(time.Second):
		t.Fatal("console channel never received its message")
	}

	cancel()
	m.StopAll(context.Background())

	if len(discord.sent) != 0 {
		t.Errorf("discord should not receive console traffic: %+v", discord.sent)
	}
	if console.sent[0].Content != "hi" {
		t.Errorf("unexpected console message %+v", console.sent[0])
	}
	if m.Status()["console"] {
		t.Error("channel should be stopped")
	}
}
