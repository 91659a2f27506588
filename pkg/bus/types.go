package bus

type InboundMessage struct {
	Channel     string            `json:"channel"`
	SenderID    string            `json:"sender_id"`
	ChatID      string            `json:"chat_id"`
	Content     string            `json:"content"`
	Mentions    []string          `json:"mentions,omitempty"`
	MentionsBot bool              `json:"mentions_bot,omitempty"`
	MessageID   string            `json:"message_id,omitempty"`
	IsSelf      bool              `json:"is_self,omitempty"`    // authored by the bot's own account
	IsBot       bool              `json:"is_bot,omitempty"`     // authored by any bot account
	FromAdmin   bool              `json:"from_admin,omitempty"` // sender holds administrator rights in the chat
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Mentioned reports whether userID is in the message's mention list.
func (m InboundMessage) Mentioned(userID string) bool {
	for _, id := range m.Mentions {
		if id == userID {
			return true
		}
	}
	return false
}

type OutboundMessage struct {
	Channel   string `json:"channel"`
	ChatID    string `json:"chat_id"`
	Content   string `json:"content"`
	MentionID string `json:"mention_id,omitempty"` // user to address at the start of the message
	RequestID string `json:"request_id,omitempty"`
	IsFinal   bool   `json:"is_final,omitempty"`
	Typing    bool   `json:"typing,omitempty"`  // start a typing indicator for RequestID
	Control   bool   `json:"control,omitempty"` // internal signal message, not user-visible text
}

type MessageHandler func(InboundMessage) error
