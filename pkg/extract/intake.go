package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/aegion/docbot/pkg/logger"
	"github.com/aegion/docbot/pkg/profile"
	"github.com/aegion/docbot/pkg/providers"
	"github.com/aegion/docbot/pkg/session"
)

const stageIntake = "intake"

// IntakeResult is the outcome of one intake turn.
type IntakeResult struct {
	Delta   profile.Profile // fields to merge into the stored profile
	Merged  profile.Profile // prior with Delta applied
	Missing []profile.Field // fields still empty after the merge
	Reply   string
}

// Complete reports whether the merged profile has every field.
func (r IntakeResult) Complete() bool {
	return len(r.Missing) == 0
}

// IntakeExtractor turns free text into personal-detail updates.
type IntakeExtractor struct {
	llm providers.Completer
}

func NewIntakeExtractor(llm providers.Completer) *IntakeExtractor {
	return &IntakeExtractor{llm: llm}
}

// Extract runs a first-time extraction when prior is empty and an update
// otherwise. On a *ParseError the caller must leave stored state unchanged.
func (e *IntakeExtractor) Extract(ctx context.Context, prior profile.Profile, input string, history []session.Entry) (IntakeResult, error) {
	firstTime := len(prior) == 0

	system := intakeSystemPrompt
	failReply := intakeFirstParseReply
	if !firstTime {
		system = fmt.Sprintf(intakeUpdatePrompt, profileJSON(prior), historyContext(history))
		failReply = intakeUpdateParseReply
	}

	answer, err := e.llm.Complete(ctx, system, input)
	if err != nil {
		return IntakeResult{}, newParseError(stageIntake, err, unavailableReply)
	}

	block, err := findBlock(answer)
	if err != nil {
		logger.DebugCF("extract", "Intake response had no usable block", map[string]any{
			"first_time": firstTime,
			"error":      err.Error(),
		})
		return IntakeResult{}, newParseError(stageIntake, err, failReply)
	}

	return BuildIntakeResult(prior, decodeProfile(block)), nil
}

// BuildIntakeResult merges delta over prior and selects the reply. It depends
// only on its arguments.
func BuildIntakeResult(prior, delta profile.Profile) IntakeResult {
	merged := profile.Merge(prior, delta)
	missing := merged.Missing()

	res := IntakeResult{
		Delta:   delta,
		Merged:  merged,
		Missing: missing,
	}
	if len(missing) > 0 {
		res.Reply = MissingFieldsReply(missing)
	} else {
		res.Reply = intakeCompleteReply
	}
	return res
}

// MissingFieldsReply names every missing field: "Please provide your age and mobile."
func MissingFieldsReply(missing []profile.Field) string {
	labels := make([]string, len(missing))
	for i, f := range missing {
		labels[i] = f.Label()
	}
	return "Please provide your " + strings.Join(labels, " and ") + "."
}
