// Package control decides which registered user, if any, is puppeting the bot.
package control

import (
	"crypto/subtle"
	"sync"

	"github.com/aegion/docbot/pkg/logger"
)

// Authority holds controller registrations and the single active controller.
// The active controller, when set, is always a registered user.
type Authority struct {
	mu          sync.Mutex
	controllers map[string]string
	active      string
	pending     map[string][]string
}

func NewAuthority() *Authority {
	return &Authority{
		controllers: make(map[string]string),
		pending:     make(map[string][]string),
	}
}

// Register adds or replaces a controller's token.
func (a *Authority) Register(userID, token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.controllers[userID] = token
}

// Deregister removes the registration, clearing active control if the user
// held it. It reports whether a registration existed.
func (a *Authority) Deregister(userID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.controllers[userID]; !ok {
		return false
	}
	delete(a.controllers, userID)
	delete(a.pending, userID)
	if a.active == userID {
		a.active = ""
	}
	return true
}

// Claim grants control when token matches the user's registration exactly.
// The latest successful claim wins; a preempted controller loses control and
// its pending buffer.
func (a *Authority) Claim(userID, token string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	registered, ok := a.controllers[userID]
	if !ok || subtle.ConstantTimeCompare([]byte(registered), []byte(token)) != 1 {
		return false
	}

	if a.active != "" && a.active != userID {
		logger.InfoCF("control", "Control preempted", map[string]any{
			"previous": a.active,
			"user_id":  userID,
		})
		delete(a.pending, a.active)
	}
	a.active = userID
	a.pending[userID] = []string{}
	return true
}

// Release clears control if userID currently holds it.
func (a *Authority) Release(userID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if userID == "" || a.active != userID {
		return false
	}
	a.active = ""
	delete(a.pending, userID)
	return true
}

func (a *Authority) IsController(userID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.controllers[userID]
	return ok
}

func (a *Authority) HasControl(userID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return userID != "" && a.active == userID
}

// Active returns the current controller and whether one is set.
func (a *Authority) Active() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active, a.active != ""
}

// Enqueue buffers text for relay. Only the active controller can enqueue.
func (a *Authority) Enqueue(userID, text string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.active != userID {
		return false
	}
	a.pending[userID] = append(a.pending[userID], text)
	return true
}

// Drain returns and clears the user's pending messages.
func (a *Authority) Drain(userID string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	msgs := a.pending[userID]
	if len(msgs) == 0 {
		return nil
	}
	a.pending[userID] = []string{}
	return msgs
}

// Pending reports how many messages are buffered for the user.
func (a *Authority) Pending(userID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending[userID])
}
