package bot

import (
	"context"
	"math/rand/v2"
	"sort"
	"strings"

	"github.com/aegion/docbot/pkg/bus"
	"github.com/aegion/docbot/pkg/logger"
	"github.com/aegion/docbot/pkg/utils"
)

const commandPrefix = "!"

const (
	notAdminReply      = "You need administrator permission to use this command."
	invalidClaimReply  = "Invalid control token or you are not authorized"
	notControllerReply = "You don't have control of the bot"
)

// command is one "!name" handler. run returns the reply text; an empty
// string sends nothing. Fewer than minArgs arguments yields the usage line.
type command struct {
	help    string
	usage   string
	admin   bool
	minArgs int
	run     func(b *Bot, msg bus.InboundMessage, args []string) string
}

func defaultCommands() map[string]command {
	return map[string]command{
		"addcontroller": {
			help:    "Add a new bot controller (Admin only)",
			usage:   "!addcontroller <user> <token>",
			admin:   true,
			minArgs: 2,
			run:     cmdAddController,
		},
		"removecontroller": {
			help:    "Remove a bot controller (Admin only)",
			usage:   "!removecontroller <user>",
			admin:   true,
			minArgs: 1,
			run:     cmdRemoveController,
		},
		"takecontrol": {
			help:    "Take control of the bot",
			usage:   "!takecontrol <token>",
			minArgs: 1,
			run:     cmdTakeControl,
		},
		"releasecontrol": {
			help: "Release control of the bot",
			run:  cmdReleaseControl,
		},
		"bye": {
			help: "Will end the conversation",
			run:  cmdBye,
		},
		"state": {
			help: "Prompts the current state of bot",
			run:  cmdState,
		},
		"help": {
			help: "Lists the available commands",
			run:  cmdHelp,
		},
	}
}

// dispatchCommand runs a known "!name args..." command. Unknown names are
// left to the rest of the pipeline.
func (b *Bot) dispatchCommand(_ context.Context, msg bus.InboundMessage) bool {
	content := strings.TrimSpace(msg.Content)
	if !strings.HasPrefix(content, commandPrefix) {
		return false
	}
	fields := strings.Fields(strings.TrimPrefix(content, commandPrefix))
	if len(fields) == 0 {
		return false
	}
	name := strings.ToLower(fields[0])
	cmd, ok := b.commands[name]
	if !ok {
		return false
	}
	args := fields[1:]

	logger.DebugCF("bot", "Command received", map[string]any{
		"command": name,
		"user_id": msg.SenderID,
		"args":    len(args),
	})

	var reply string
	switch {
	case cmd.admin && !b.isAdmin(msg):
		logger.WarnCF("bot", "Admin command denied", map[string]any{
			"command": name,
			"user_id": msg.SenderID,
		})
		reply = notAdminReply
	case len(args) < cmd.minArgs:
		reply = "Usage: " + cmd.usage
	default:
		reply = cmd.run(b, msg, args)
	}

	if reply != "" {
		b.reply(msg, reply, "")
	}
	return true
}

func cmdAddController(b *Bot, msg bus.InboundMessage, args []string) string {
	userID := utils.ParseUserRef(args[0])
	b.authority.Register(userID, args[1])
	logger.InfoCF("bot", "Controller registered", map[string]any{
		"user_id": userID,
		"by":      msg.SenderID,
	})
	return "Added <@" + userID + "> as a bot controller"
}

func cmdRemoveController(b *Bot, msg bus.InboundMessage, args []string) string {
	userID := utils.ParseUserRef(args[0])
	if !b.authority.Deregister(userID) {
		return "<@" + userID + "> is not a controller"
	}
	logger.InfoCF("bot", "Controller removed", map[string]any{
		"user_id": userID,
		"by":      msg.SenderID,
	})
	return "Removed <@" + userID + "> as a bot controller"
}

// cmdTakeControl grants control silently.
func cmdTakeControl(b *Bot, msg bus.InboundMessage, args []string) string {
	if !b.authority.Claim(msg.SenderID, args[0]) {
		logger.WarnCF("bot", "Control claim rejected", map[string]any{
			"user_id": msg.SenderID,
		})
		return invalidClaimReply
	}
	logger.InfoCF("bot", "Control granted", map[string]any{
		"user_id": msg.SenderID,
	})
	return ""
}

func cmdReleaseControl(b *Bot, msg bus.InboundMessage, _ []string) string {
	if !b.authority.Release(msg.SenderID) {
		return notControllerReply
	}
	logger.InfoCF("bot", "Control released", map[string]any{
		"user_id": msg.SenderID,
	})
	return "<@" + msg.SenderID + "> has released control of the bot"
}

func cmdBye(b *Bot, msg bus.InboundMessage, _ []string) string {
	farewells := []string{
		"Goodbye <@" + msg.SenderID + ">! Have a great day!",
		"Bye <@" + msg.SenderID + ">! Hope to see you soon!",
		"See you later <@" + msg.SenderID + ">!",
	}
	if b.sessions.Deactivate(msg.SenderID) {
		logger.InfoCF("bot", "Session ended by farewell", map[string]any{
			"user_id": msg.SenderID,
			"mode":    b.Mode().String(),
		})
	}
	return farewells[rand.IntN(len(farewells))]
}

func cmdState(b *Bot, _ bus.InboundMessage, _ []string) string {
	return b.Mode().String()
}

func cmdHelp(b *Bot, _ bus.InboundMessage, _ []string) string {
	names := make([]string, 0, len(b.commands))
	for name := range b.commands {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("Commands:")
	for _, name := range names {
		sb.WriteString("\n" + commandPrefix + name + " - " + b.commands[name].help)
	}
	return sb.String()
}
