package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/aegion/docbot/pkg/logger"
	"github.com/aegion/docbot/pkg/profile"
	"github.com/aegion/docbot/pkg/providers"
	"github.com/aegion/docbot/pkg/session"
)

const stageDiagnosis = "diagnosis"

// DiagnosisResult is the outcome of one diagnosis turn.
type DiagnosisResult struct {
	Record profile.Diagnosis
	Reply  string
	Gated  bool // the symptom questionnaire was returned without calling the model
}

// DiagnosisExtractor runs the structured symptom interview.
type DiagnosisExtractor struct {
	llm providers.Completer
}

func NewDiagnosisExtractor(llm providers.Completer) *DiagnosisExtractor {
	return &DiagnosisExtractor{llm: llm}
}

// Extract asks the model for the next interview step. Until some history
// entry mentions "symptoms" it returns the fixed questionnaire instead.
func (e *DiagnosisExtractor) Extract(ctx context.Context, input string, history []session.Entry, patient profile.Profile) (DiagnosisResult, error) {
	if !symptomsDiscussed(history) {
		return DiagnosisResult{Reply: SymptomIntakePrompt, Gated: true}, nil
	}

	system := fmt.Sprintf(diagnosisPrompt, profileJSON(patient), historyContext(history))
	answer, err := e.llm.Complete(ctx, system, input)
	if err != nil {
		return DiagnosisResult{}, newParseError(stageDiagnosis, err, unavailableReply)
	}

	block, err := findBlock(answer)
	if errors.Is(err, errNoBlock) {
		return DiagnosisResult{}, newParseError(stageDiagnosis, err, describeSymptomsReply)
	}
	if err != nil {
		return DiagnosisResult{}, newParseError(stageDiagnosis, err, "Error parsing response: "+err.Error())
	}

	record, err := decodeDiagnosis(block)
	if err != nil {
		return DiagnosisResult{}, newParseError(stageDiagnosis, err, "Error parsing response: "+err.Error())
	}

	logger.DebugCF("extract", "Diagnosis turn decoded", map[string]any{
		"complete":   record.Complete,
		"symptoms":   len(record.Symptoms),
		"candidates": len(record.PossibleDiagnoses),
		"red_flags":  record.RedFlags != "",
	})

	if !record.Complete {
		return DiagnosisResult{Record: record, Reply: followUpReply(record)}, nil
	}
	return DiagnosisResult{Record: record, Reply: closingReply(record)}, nil
}

func symptomsDiscussed(history []session.Entry) bool {
	for _, e := range history {
		if strings.Contains(strings.ToLower(e.Text), "symptoms") {
			return true
		}
	}
	return false
}

func decodeDiagnosis(block gjson.Result) (profile.Diagnosis, error) {
	var d profile.Diagnosis

	complete, ok := flag(lookup(block, "diagnose_complete", "diagnoseComplete"))
	if !ok {
		return d, fmt.Errorf("%w: diagnose_complete", errMissingField)
	}
	d.Complete = complete
	d.CanDiagnose, _ = flag(lookup(block, "can_diagnose", "canDiagnose"))
	d.Symptoms = list(lookup(block, "symptoms"))
	d.PossibleDiagnoses = rankDiagnoses(
		lookup(block, "possible_diagnoses", "possibleDiagnoses"),
		lookup(block, "confidence_level", "confidenceLevel"),
	)
	d.NextQuestion = text(lookup(block, "next_question", "nextQuestion"))
	d.RedFlags = text(lookup(block, "red_flags", "redFlags"))
	d.FamilyHistoryRelated, d.FamilyHistoryKnown = flag(lookup(block, "family_history_related", "familyHistoryRelated"))
	d.DoctorSummary = text(lookup(block, "doctor_summary", "doctorSummary"))
	return d, nil
}

// rankDiagnoses pairs candidate diagnoses with confidences. A confidence
// object keyed by diagnosis wins; otherwise confidences come from each
// candidate object or from a parallel array.
func rankDiagnoses(possible, confidence gjson.Result) []profile.RankedDiagnosis {
	var ranked []profile.RankedDiagnosis

	if confidence.IsObject() {
		confidence.ForEach(func(k, v gjson.Result) bool {
			ranked = append(ranked, profile.RankedDiagnosis{Name: k.String(), Confidence: percent(v)})
			return true
		})
		if len(ranked) > 0 {
			return ranked
		}
	}

	var parallel []gjson.Result
	if confidence.IsArray() {
		parallel = confidence.Array()
	}

	add := func(i int, v gjson.Result) {
		rd := profile.RankedDiagnosis{}
		if v.IsObject() {
			rd.Name = text(lookup(v, "name", "diagnosis", "condition"))
			rd.Confidence = percent(lookup(v, "confidence", "confidence_level", "probability"))
		} else {
			rd.Name = text(v)
		}
		if rd.Confidence == "" && i < len(parallel) {
			rd.Confidence = percent(parallel[i])
		}
		if rd.Name != "" {
			ranked = append(ranked, rd)
		}
	}

	switch {
	case possible.IsArray():
		for i, v := range possible.Array() {
			add(i, v)
		}
	case possible.Exists() && possible.Type != gjson.Null:
		add(0, possible)
	}
	return ranked
}

func percent(r gjson.Result) string {
	return strings.TrimSpace(strings.TrimSuffix(text(r), "%"))
}

func followUpReply(d profile.Diagnosis) string {
	reply := d.NextQuestion
	if reply == "" {
		reply = describeSymptomsReply
	}
	if len(d.PossibleDiagnoses) > 0 {
		reply = softeningClause + reply
	}
	if d.RedFlags != "" {
		reply += redFlagPrefix + d.RedFlags
	}
	if !d.FamilyHistoryKnown {
		reply += familyHistoryAsk
	}
	return reply
}

func closingReply(d profile.Diagnosis) string {
	reply := diagnosisThanks
	if d.RedFlags != "" {
		reply += redFlagPrefix + d.RedFlags
	}
	if d.FamilyHistoryRelated {
		reply += familyHistoryNote
	}
	return reply + diagnosisClosing
}

// DoctorSummary renders the doctor-facing case summary. d should be the
// record accumulated over the whole interview; its DoctorSummary field holds
// the model's assessment.
func DoctorSummary(patient profile.Profile, d profile.Diagnosis) string {
	var sb strings.Builder
	sb.WriteString("Patient Case Summary:\n\nPatient Information:\n")
	for _, f := range profile.Fields {
		if v := patient[f]; v != "" {
			fmt.Fprintf(&sb, "- %s: %s\n", f.Label(), v)
		}
	}

	sb.WriteString("\nReported Symptoms:\n")
	if len(d.Symptoms) == 0 {
		sb.WriteString("- none recorded\n")
	}
	for _, s := range d.Symptoms {
		fmt.Fprintf(&sb, "- %s\n", s)
	}

	sb.WriteString("\nPotential Diagnoses:\n")
	for _, rd := range d.PossibleDiagnoses {
		if rd.Confidence != "" {
			fmt.Fprintf(&sb, "- %s (Confidence: %s%%)\n", rd.Name, rd.Confidence)
		} else {
			fmt.Fprintf(&sb, "- %s\n", rd.Name)
		}
	}

	if d.RedFlags != "" {
		fmt.Fprintf(&sb, "\nRed Flags:\n%s\n", d.RedFlags)
	}
	if d.FamilyHistoryRelated {
		sb.WriteString("\nFamily History:\nPatient has reported family history of similar conditions.\n")
	}
	if d.DoctorSummary != "" {
		fmt.Fprintf(&sb, "\nAssessment:\n%s\n", d.DoctorSummary)
	}
	return sb.String()
}
