// Package bot runs the per-message conversation pipeline: history, puppeteer
// interception, commands, session membership and the staged intake flow.
package bot

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/aegion/docbot/pkg/bus"
	"github.com/aegion/docbot/pkg/control"
	"github.com/aegion/docbot/pkg/extract"
	"github.com/aegion/docbot/pkg/logger"
	"github.com/aegion/docbot/pkg/profile"
	"github.com/aegion/docbot/pkg/providers"
	"github.com/aegion/docbot/pkg/session"
	"github.com/aegion/docbot/pkg/utils"
)

const (
	exitToken = "!exit"

	genericErrorReply       = "Something went wrong while processing your message. Please try again."
	consultationClosedReply = "Your consultation is complete. Mention me again to start a new one."
)

// Options configures a Bot.
type Options struct {
	BotID         string
	RecordSelf    bool     // keep the bot's own messages in history
	DoctorChannel string   // chat that receives completed case summaries
	AdminIDs      []string // users treated as administrators on every channel
}

// Bot routes inbound messages through control, commands and the staged
// consultation, publishing replies on the bus.
type Bot struct {
	bus       *bus.MessageBus
	sessions  *session.Store
	profiles  *profile.Store
	authority *control.Authority
	intake    *extract.IntakeExtractor
	diagnosis *extract.DiagnosisExtractor
	commands  map[string]command
	admins    map[string]bool
	opts      Options

	idMu  sync.RWMutex
	botID string
}

// New wires a Bot to its stores and completer. Both extractors share llm.
func New(mb *bus.MessageBus, sessions *session.Store, profiles *profile.Store, authority *control.Authority, llm providers.Completer, opts Options) *Bot {
	admins := make(map[string]bool, len(opts.AdminIDs))
	for _, id := range opts.AdminIDs {
		if id = strings.TrimSpace(id); id != "" {
			admins[id] = true
		}
	}
	return &Bot{
		bus:       mb,
		sessions:  sessions,
		profiles:  profiles,
		authority: authority,
		intake:    extract.NewIntakeExtractor(llm),
		diagnosis: extract.NewDiagnosisExtractor(llm),
		commands:  defaultCommands(),
		admins:    admins,
		opts:      opts,
		botID:     opts.BotID,
	}
}

// SetBotID records the bot account id once the gateway knows it.
func (b *Bot) SetBotID(id string) {
	b.idMu.Lock()
	defer b.idMu.Unlock()
	b.botID = id
}

// BotID returns the bot account id, or "" before the gateway reports it.
func (b *Bot) BotID() string {
	b.idMu.RLock()
	defer b.idMu.RUnlock()
	return b.botID
}

// Mode derives Idle or Engaged from the session store.
func (b *Bot) Mode() Mode {
	return ModeFor(b.sessions.ActiveCount())
}

// Run consumes inbound messages until ctx is cancelled or the bus closes.
// Each sender gets its own lane so one slow completion only delays that user.
func (b *Bot) Run(ctx context.Context) {
	l := newLanes(b.HandleMessage)
	defer l.wait()

	logger.InfoC("bot", "Conversation loop started")
	for {
		msg, ok := b.bus.ConsumeInbound(ctx)
		if !ok {
			logger.InfoC("bot", "Conversation loop stopped")
			return
		}
		l.dispatch(ctx, msg)
	}
}

// HandleMessage runs one inbound message through the pipeline.
func (b *Bot) HandleMessage(ctx context.Context, msg bus.InboundMessage) {
	if !msg.IsSelf || b.opts.RecordSelf {
		b.sessions.RecordMessage(msg.SenderID, msg.Content)
	}
	if msg.IsSelf {
		return
	}

	if b.intercept(msg) {
		return
	}
	if b.dispatchCommand(ctx, msg) {
		return
	}

	input := msg.Content
	if b.mentionsBot(msg) {
		input = utils.StripMentions(msg.Content)
		if !b.sessions.IsActive(msg.SenderID) {
			b.startSession(msg)
			return
		}
		if strings.Contains(input, exitToken) {
			b.endSession(msg)
			return
		}
	}

	if b.Mode() == ModeEngaged && b.sessions.IsActive(msg.SenderID) {
		b.converse(ctx, msg, input)
	}
}

func (b *Bot) mentionsBot(msg bus.InboundMessage) bool {
	if msg.MentionsBot {
		return true
	}
	id := b.BotID()
	return id != "" && (msg.Mentioned(id) || utils.MentionsUser(msg.Content, id))
}

func (b *Bot) startSession(msg bus.InboundMessage) {
	b.reply(msg, extract.OnboardingPrompt, msg.SenderID)
	b.sessions.Activate(msg.SenderID)
	b.profiles.ResetDiagnosis(msg.SenderID)

	logger.InfoCF("bot", "Session started", map[string]any{
		"user_id": msg.SenderID,
		"chat_id": msg.ChatID,
		"mode":    b.Mode().String(),
	})
}

func (b *Bot) endSession(msg bus.InboundMessage) {
	b.reply(msg, "Conversation with the user <@"+msg.SenderID+"> Ended.", "")
	b.sessions.Deactivate(msg.SenderID)

	logger.InfoCF("bot", "Session ended", map[string]any{
		"user_id": msg.SenderID,
		"mode":    b.Mode().String(),
	})
}

// converse runs one extractor turn for an engaged user. Stores are read
// before the completion call and written after it; no lock is held across it.
func (b *Bot) converse(ctx context.Context, msg bus.InboundMessage, input string) {
	requestID := msg.MessageID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	b.bus.PublishOutbound(bus.OutboundMessage{
		Channel:   msg.Channel,
		ChatID:    msg.ChatID,
		RequestID: requestID,
		Typing:    true,
		Control:   true,
	})

	stage := b.sessions.Stage(msg.SenderID)
	var (
		reply string
		err   error
	)
	switch stage {
	case session.StageIntake:
		reply, err = b.runIntake(ctx, msg.SenderID, input)
	case session.StageDiagnosis:
		reply, err = b.runDiagnosis(ctx, msg, input)
	default:
		reply = consultationClosedReply
	}

	if err != nil {
		var ok bool
		if reply, ok = extract.ReplyFor(err); !ok {
			reply = genericErrorReply
		}
		logger.WarnCF("bot", "Extractor turn failed", map[string]any{
			"user_id": msg.SenderID,
			"stage":   stage.String(),
			"error":   err.Error(),
		})
	}

	b.sessions.RecordReply(b.BotID(), input, reply)
	b.bus.PublishOutbound(bus.OutboundMessage{
		Channel:   msg.Channel,
		ChatID:    msg.ChatID,
		Content:   reply,
		MentionID: msg.SenderID,
		RequestID: requestID,
		IsFinal:   true,
	})
}

func (b *Bot) runIntake(ctx context.Context, userID, input string) (string, error) {
	prior, _ := b.profiles.Profile(userID)
	res, err := b.intake.Extract(ctx, prior, input, b.sessions.History())
	if err != nil {
		return "", err
	}

	// The stored profile may have moved while the model was running; the
	// reply follows what was actually stored.
	merged := b.profiles.MergeProfile(userID, res.Delta)
	stored := extract.BuildIntakeResult(merged, nil)

	logger.DebugCF("bot", "Intake turn merged", map[string]any{
		"user_id": userID,
		"updated": len(res.Delta),
		"missing": len(stored.Missing),
	})

	if stored.Complete() {
		b.advance(userID, eventProfileComplete)
	}
	return stored.Reply, nil
}

func (b *Bot) runDiagnosis(ctx context.Context, msg bus.InboundMessage, input string) (string, error) {
	patient, _ := b.profiles.Profile(msg.SenderID)
	res, err := b.diagnosis.Extract(ctx, input, b.sessions.History(), patient)
	if err != nil {
		return "", err
	}

	record := b.profiles.AccumulateDiagnosis(msg.SenderID, res.Record)
	if res.Gated || !res.Record.Complete {
		return res.Reply, nil
	}

	b.advance(msg.SenderID, eventDiagnosisComplete)
	b.sessions.Deactivate(msg.SenderID)
	b.sendDoctorReport(msg, extract.DoctorSummary(patient, record))

	logger.InfoCF("bot", "Consultation complete", map[string]any{
		"user_id":    msg.SenderID,
		"candidates": len(record.PossibleDiagnoses),
		"mode":       b.Mode().String(),
	})
	return res.Reply, nil
}

func (b *Bot) advance(userID string, ev event) {
	from := b.sessions.Stage(userID)
	to, ok := nextStage(from, ev)
	if !ok {
		logger.WarnCF("bot", "No transition for event", map[string]any{
			"user_id": userID,
			"stage":   from.String(),
			"event":   ev.String(),
		})
		return
	}
	b.sessions.SetStage(userID, to)
	logger.InfoCF("bot", "Stage changed", map[string]any{
		"user_id": userID,
		"from":    from.String(),
		"to":      to.String(),
	})
}

func (b *Bot) sendDoctorReport(msg bus.InboundMessage, report string) {
	if b.opts.DoctorChannel == "" {
		return
	}
	b.bus.PublishOutbound(bus.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  b.opts.DoctorChannel,
		Content: "Case for <@" + msg.SenderID + ">\n\n" + report,
	})
}

// reply sends text back to the chat msg came from, addressed to mention when set.
func (b *Bot) reply(msg bus.InboundMessage, text, mention string) {
	b.bus.PublishOutbound(bus.OutboundMessage{
		Channel:   msg.Channel,
		ChatID:    msg.ChatID,
		Content:   text,
		MentionID: mention,
	})
}

func (b *Bot) isAdmin(msg bus.InboundMessage) bool {
	return msg.FromAdmin || b.admins[msg.SenderID]
}

// Status snapshots mode, history and control for ops endpoints.
func (b *Bot) Status() Status {
	active := b.sessions.ActiveCount()
	controller, held := b.authority.Active()
	st := Status{
		Mode:           ModeFor(active).String(),
		ActiveSessions: active,
		HistoryLength:  b.sessions.HistoryLen(),
		ControlHeld:    held,
	}
	if held {
		st.Controller = controller
		st.PendingRelay = b.authority.Pending(controller)
	}
	return st
}

// SessionStatus reports one user's consultation. It is false for users the
// bot has never engaged.
func (b *Bot) SessionStatus(userID string) (SessionStatus, bool) {
	sess, ok := b.sessions.Get(userID)
	if !ok {
		return SessionStatus{}, false
	}
	st := SessionStatus{
		UserID:    sess.UserID,
		Active:    sess.Active,
		Stage:     sess.Stage.String(),
		UpdatedAt: sess.UpdatedAt,
	}
	if record, ok := b.profiles.Diagnosis(userID); ok && !record.Empty() {
		st.DiagnosisStarted = true
		st.Symptoms = len(record.Symptoms)
		st.Candidates = len(record.PossibleDiagnoses)
	}
	return st, true
}
