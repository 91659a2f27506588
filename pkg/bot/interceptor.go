package bot

import (
	"strings"

	"github.com/aegion/docbot/pkg/bus"
	"github.com/aegion/docbot/pkg/logger"
	"github.com/aegion/docbot/pkg/utils"
)

// intercept relays plain text from the active controller verbatim to the
// originating chat. It runs ahead of commands and the conversation, and a
// true result ends processing of msg.
func (b *Bot) intercept(msg bus.InboundMessage) bool {
	if msg.IsSelf || msg.IsBot {
		return false
	}
	if strings.HasPrefix(msg.Content, commandPrefix) || !b.authority.HasControl(msg.SenderID) {
		return false
	}
	if !b.authority.Enqueue(msg.SenderID, msg.Content) {
		// control was released between the check and the enqueue
		return false
	}

	for _, text := range b.authority.Drain(msg.SenderID) {
		b.reply(msg, text, "")
	}

	logger.DebugCF("bot", "Relayed controller message", map[string]any{
		"user_id": msg.SenderID,
		"chat_id": msg.ChatID,
		"preview": utils.Truncate(msg.Content, 50),
	})
	return true
}
