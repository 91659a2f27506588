package extract_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegion/docbot/pkg/extract"
	"github.com/aegion/docbot/pkg/profile"
	"github.com/aegion/docbot/pkg/session"
)

// scriptedCompleter returns canned answers in order and records each call.
type scriptedCompleter struct {
	mu      sync.Mutex
	answers []string
	err     error
	calls   []call
}

type call struct {
	system string
	user   string
}

func (s *scriptedCompleter) Name() string { return "scripted" }

func (s *scriptedCompleter) Complete(_ context.Context, system, user string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call{system: system, user: user})
	if s.err != nil {
		return "", s.err
	}
	if len(s.answers) == 0 {
		return "", errors.New("no scripted answer left")
	}
	out := s.answers[0]
	s.answers = s.answers[1:]
	return out, nil
}

func fenced(body string) string {
	return "Here you go:\n```json\n" + body + "\n```\nLet me know if anything is off."
}

const fullProfile = `{
  "name": "Mani",
  "age": 21,
  "mobile": "9876543210",
  "gender": "Male",
  "address": "Chennai",
  "occupation": "Developer at Aegion",
  "Family History": "Diabetes (father)"
}`

func TestIntake_FirstTimeComplete(t *testing.T) {
	llm := &scriptedCompleter{answers: []string{fenced(fullProfile)}}
	ex := extract.NewIntakeExtractor(llm)

	res, err := ex.Extract(context.Background(), nil, "I'm Mani, 21 Male", nil)
	require.NoError(t, err)

	require.True(t, res.Complete(), "missing %v", res.Missing)
	assert.Equal(t, "21", res.Delta[profile.FieldAge], "numeric age should render as text")
	assert.Equal(t, "Diabetes (father)", res.Delta[profile.FieldFamilyHistory], "family history key not normalized")
	assert.NotContains(t, res.Reply, "Please provide")
	assert.Contains(t, res.Reply, "Thank you for providing all your personal details")
	require.Len(t, llm.calls, 1)
	assert.Equal(t, "I'm Mani, 21 Male", llm.calls[0].user)
}

func TestIntake_FirstTimeMissingFields(t *testing.T) {
	llm := &scriptedCompleter{answers: []string{fenced(`{
  "name": "Mani", "age": "21", "mobile": "", "gender": "Male",
  "address": "", "occupation": "Developer", "familyHistory": "none"
}`)}}
	ex := extract.NewIntakeExtractor(llm)

	res, err := ex.Extract(context.Background(), nil, "I'm Mani", nil)
	require.NoError(t, err)

	assert.Equal(t, []profile.Field{profile.FieldMobile, profile.FieldAddress}, res.Missing)
	assert.Equal(t, "Please provide your mobile and address.", res.Reply)
}

func TestIntake_AbsentKeysCountAsMissing(t *testing.T) {
	llm := &scriptedCompleter{answers: []string{fenced(`{"name": "Mani", "unrelated": "x"}`)}}
	ex := extract.NewIntakeExtractor(llm)

	res, err := ex.Extract(context.Background(), nil, "Mani here", nil)
	require.NoError(t, err)
	assert.Len(t, res.Delta, 1, "unknown keys should be ignored")
	assert.Len(t, res.Missing, len(profile.Fields)-1)
	assert.True(t, strings.HasSuffix(res.Reply, "occupation and family history."), "reply = %q", res.Reply)
}

func TestIntake_NoFencedBlock(t *testing.T) {
	llm := &scriptedCompleter{answers: []string{"Sure! Your name is Mani and you are 21."}}
	ex := extract.NewIntakeExtractor(llm)

	res, err := ex.Extract(context.Background(), nil, "I'm Mani", nil)
	require.Error(t, err)

	var pe *extract.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Empty(t, res.Delta)
	reply, ok := extract.ReplyFor(err)
	assert.True(t, ok)
	assert.Contains(t, reply, "I'm [Name]", "reply should explain the expected format")
}

func TestIntake_MalformedBlock(t *testing.T) {
	tests := map[string]string{
		"invalid json": fenced(`{"name": "Mani",`),
		"array":        fenced(`["Mani", 21]`),
	}
	for name, answer := range tests {
		t.Run(name, func(t *testing.T) {
			ex := extract.NewIntakeExtractor(&scriptedCompleter{answers: []string{answer}})
			_, err := ex.Extract(context.Background(), profile.Profile{profile.FieldName: "A"}, "x", nil)

			reply, ok := extract.ReplyFor(err)
			require.True(t, ok, "expected parse error with reply, got %v", err)
			assert.Equal(t, "I couldn't understand your response. Please try again.", reply)
		})
	}
}

func TestIntake_FenceSelection(t *testing.T) {
	tests := []struct {
		name   string
		answer string
	}{
		{"note before json fence", "```\nnote\n```\n```json\n{\"name\": \"Mani\"}\n```"},
		{"json tag preferred over bare object", "```\n{\"name\": \"Other\"}\n```\n```JSON\n{\"name\": \"Mani\"}\n```"},
		{"bare fence after invalid json fence", "```json\n{oops\n```\n```\n{\"name\": \"Mani\"}\n```"},
		{"other language skipped", "```python\nprint(1)\n```\n```\n{\"name\": \"Mani\"}\n```"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := extract.NewIntakeExtractor(&scriptedCompleter{answers: []string{tt.answer}})
			res, err := ex.Extract(context.Background(), nil, "I'm Mani", nil)
			require.NoError(t, err)
			assert.Equal(t, "Mani", res.Delta[profile.FieldName])
		})
	}
}

func TestIntake_UpdateMergesLastWriteWins(t *testing.T) {
	llm := &scriptedCompleter{answers: []string{fenced(`{"age": "30"}`)}}
	ex := extract.NewIntakeExtractor(llm)

	prior := profile.Profile{profile.FieldName: "A", profile.FieldAge: ""}
	history := []session.Entry{
		{SpeakerID: "u1", Text: "I'm A"},
		{SpeakerID: "bot", Text: "Please provide your age."},
	}

	res, err := ex.Extract(context.Background(), prior, "I'm 30", history)
	require.NoError(t, err)

	assert.Equal(t, "A", res.Merged[profile.FieldName])
	assert.Equal(t, "30", res.Merged[profile.FieldAge])
	assert.Equal(t, profile.Profile{profile.FieldAge: "30"}, res.Delta)
	assert.NotContains(t, res.Missing, profile.FieldName)
	assert.NotContains(t, res.Missing, profile.FieldAge)

	system := llm.calls[0].system
	assert.Contains(t, system, `"name":"A"`, "update prompt should carry prior data")
	assert.Contains(t, system, "bot: Please provide your age.", "update prompt should carry history")
}

func TestIntake_CompleterFailure(t *testing.T) {
	boom := errors.New("connection reset")
	ex := extract.NewIntakeExtractor(&scriptedCompleter{err: boom})

	_, err := ex.Extract(context.Background(), nil, "hi", nil)
	require.ErrorIs(t, err, boom)
	reply, ok := extract.ReplyFor(err)
	assert.True(t, ok)
	assert.Contains(t, reply, "try again")
}

func TestBuildIntakeResult_Deterministic(t *testing.T) {
	prior := profile.Profile{profile.FieldName: "A"}
	delta := profile.Profile{profile.FieldAge: "30", profile.FieldName: ""}

	first := extract.BuildIntakeResult(prior, delta)
	second := extract.BuildIntakeResult(prior, delta)
	assert.Equal(t, first, second, "identical inputs must produce identical results")
	assert.Empty(t, first.Merged[profile.FieldName], "empty delta value should overwrite prior")
	require.NotEmpty(t, first.Missing)
	assert.Equal(t, profile.FieldName, first.Missing[0], "missing should be computed from the merged record")
}

func symptomHistory() []session.Entry {
	return []session.Entry{
		{SpeakerID: "bot", Text: extract.SymptomIntakePrompt},
		{SpeakerID: "u1", Text: "Headache for three days, 7/10"},
	}
}

func TestDiagnosis_GateWithoutSymptoms(t *testing.T) {
	llm := &scriptedCompleter{}
	ex := extract.NewDiagnosisExtractor(llm)

	res, err := ex.Extract(context.Background(), "my head hurts", []session.Entry{{SpeakerID: "u1", Text: "hello"}}, nil)
	require.NoError(t, err)
	assert.True(t, res.Gated)
	assert.Equal(t, extract.SymptomIntakePrompt, res.Reply)
	assert.Equal(t, profile.Diagnosis{}, res.Record, "gated turn returns an empty record")
	assert.Empty(t, llm.calls, "gated turn must not call the model")
}

func TestDiagnosis_GateIsCaseInsensitive(t *testing.T) {
	llm := &scriptedCompleter{answers: []string{fenced(`{"diagnose_complete": "no", "next_question": "Since when?"}`)}}
	ex := extract.NewDiagnosisExtractor(llm)

	res, err := ex.Extract(context.Background(), "x", []session.Entry{{Text: "My SYMPTOMS are bad"}}, nil)
	require.NoError(t, err)
	assert.False(t, res.Gated, "gate should open on a case-insensitive match")
}

func TestDiagnosis_FollowUp(t *testing.T) {
	llm := &scriptedCompleter{answers: []string{fenced(`{
  "diagnose_complete": "no",
  "symptoms": ["headache", "nausea"],
  "possible_diagnoses": ["Migraine", "Tension headache"],
  "next_question": "Does light make it worse?",
  "red_flags": "Sudden worst-ever headache"
}`)}}
	ex := extract.NewDiagnosisExtractor(llm)

	res, err := ex.Extract(context.Background(), "headache", symptomHistory(), profile.Profile{profile.FieldName: "Mani"})
	require.NoError(t, err)

	want := "I need more information to better understand your condition. Does light make it worse?" +
		"\n\n⚠️ Important: Sudden worst-ever headache" +
		"\n\nDo you have any family history of similar symptoms or conditions?"
	assert.Equal(t, want, res.Reply)
	assert.False(t, res.Record.Complete)
	assert.Len(t, res.Record.Symptoms, 2)
	assert.Contains(t, llm.calls[0].system, `"name":"Mani"`, "prompt should carry patient information")
}

func TestDiagnosis_FollowUpWithFamilyHistoryAnswered(t *testing.T) {
	llm := &scriptedCompleter{answers: []string{fenced(`{
  "diagnose_complete": false,
  "next_question": "Any fever?",
  "family_history_related": "no"
}`)}}
	ex := extract.NewDiagnosisExtractor(llm)

	res, err := ex.Extract(context.Background(), "x", symptomHistory(), nil)
	require.NoError(t, err)
	assert.Equal(t, "Any fever?", res.Reply)
}

func TestDiagnosis_Complete(t *testing.T) {
	llm := &scriptedCompleter{answers: []string{fenced(`{
  "diagnose_complete": "yes",
  "symptoms": {"headache": "3 days, throbbing", "photophobia": "yes"},
  "possible_diagnoses": ["Migraine", "Tension headache"],
  "confidence_level": {"Migraine": "70%", "Tension headache": 20},
  "red_flags": [],
  "can_diagnose": "yes",
  "doctor_summary": "Likely migraine without aura.",
  "family_history_related": "yes"
}`)}}
	ex := extract.NewDiagnosisExtractor(llm)

	patient := profile.Profile{profile.FieldName: "Mani", profile.FieldAge: "21"}
	res, err := ex.Extract(context.Background(), "it throbs", symptomHistory(), patient)
	require.NoError(t, err)

	assert.True(t, res.Record.Complete)
	assert.True(t, res.Record.CanDiagnose)
	assert.NotContains(t, res.Reply, "Important", "empty red flag list should not produce a warning")
	assert.True(t, strings.HasPrefix(res.Reply, "Thank you for providing detailed information"), "reply = %q", res.Reply)
	assert.Contains(t, res.Reply, "family history of similar conditions")
	assert.True(t, strings.HasSuffix(res.Reply, "will contact you soon for further consultation."), "reply = %q", res.Reply)
	assert.Equal(t, "Likely migraine without aura.", res.Record.DoctorSummary)

	summary := extract.DoctorSummary(patient, res.Record)
	for _, want := range []string{
		"- name: Mani",
		"- headache: 3 days, throbbing",
		"- Migraine (Confidence: 70%)",
		"- Tension headache (Confidence: 20%)",
		"Patient has reported family history",
		"Likely migraine without aura.",
	} {
		assert.Contains(t, summary, want)
	}
}

func TestDoctorSummary_NoSymptoms(t *testing.T) {
	summary := extract.DoctorSummary(nil, profile.Diagnosis{Complete: true})
	assert.Contains(t, summary, "- none recorded")
	assert.NotContains(t, summary, "Assessment:")
}

func TestDiagnosis_RankedObjects(t *testing.T) {
	llm := &scriptedCompleter{answers: []string{fenced(`{
  "diagnose_complete": "yes",
  "possible_diagnoses": [{"name": "Sinusitis", "confidence": "55"}, {"diagnosis": "Cold"}],
  "confidence_level": [55, 30]
}`)}}
	ex := extract.NewDiagnosisExtractor(llm)

	res, err := ex.Extract(context.Background(), "x", symptomHistory(), nil)
	require.NoError(t, err)
	want := []profile.RankedDiagnosis{{Name: "Sinusitis", Confidence: "55"}, {Name: "Cold", Confidence: "30"}}
	assert.Equal(t, want, res.Record.PossibleDiagnoses)
}

func TestDiagnosis_ParseFailures(t *testing.T) {
	tests := []struct {
		name      string
		answer    string
		wantReply string
	}{
		{"no block", "I think it's a migraine.", "Could you please describe your symptoms in detail"},
		{"bad json", fenced(`{"diagnose_complete": `), "Error parsing response"},
		{"missing completion flag", fenced(`{"next_question": "Since when?"}`), "diagnose_complete"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := extract.NewDiagnosisExtractor(&scriptedCompleter{answers: []string{tt.answer}})
			res, err := ex.Extract(context.Background(), "x", symptomHistory(), nil)

			reply, ok := extract.ReplyFor(err)
			require.True(t, ok, "expected parse error, got %v", err)
			assert.Contains(t, reply, tt.wantReply)
			assert.Equal(t, profile.Diagnosis{}, res.Record, "failed turn must return an empty record")
		})
	}
}

func TestParseError_Message(t *testing.T) {
	err := &extract.ParseError{Stage: "intake", Reason: "no fenced json block"}
	assert.Equal(t, "intake parse error: no fenced json block", err.Error())
	_, ok := extract.ReplyFor(errors.New("plain"))
	assert.False(t, ok, "plain errors carry no reply")
}
