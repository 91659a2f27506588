package profile

import "strings"

// Field names a personal detail collected during intake.
type Field string

const (
	FieldName          Field = "name"
	FieldAge           Field = "age"
	FieldMobile        Field = "mobile"
	FieldGender        Field = "gender"
	FieldAddress       Field = "address"
	FieldOccupation    Field = "occupation"
	FieldFamilyHistory Field = "familyHistory"
)

// Fields lists every intake field in prompt order.
var Fields = []Field{
	FieldName,
	FieldAge,
	FieldMobile,
	FieldGender,
	FieldAddress,
	FieldOccupation,
	FieldFamilyHistory,
}

// Label is the human-facing name of the field.
func (f Field) Label() string {
	if f == FieldFamilyHistory {
		return "family history"
	}
	return string(f)
}

// ParseField maps a loosely spelled key ("Family History", "family_history",
// "MOBILE") onto a known field.
func ParseField(key string) (Field, bool) {
	norm := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '_', '-':
			return -1
		}
		return r
	}, strings.ToLower(strings.TrimSpace(key)))

	for _, f := range Fields {
		if strings.ToLower(string(f)) == norm {
			return f, true
		}
	}
	switch norm {
	case "phone", "mobilenumber", "phonenumber", "contact":
		return FieldMobile, true
	case "fullname":
		return FieldName, true
	case "sex":
		return FieldGender, true
	case "job", "profession":
		return FieldOccupation, true
	}
	return "", false
}

// Profile is a user's personal details. A field is missing when it is absent
// or holds an empty string.
type Profile map[Field]string

func (p Profile) Clone() Profile {
	out := make(Profile, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Missing returns the fields without a value, in prompt order.
func (p Profile) Missing() []Field {
	var missing []Field
	for _, f := range Fields {
		if strings.TrimSpace(p[f]) == "" {
			missing = append(missing, f)
		}
	}
	return missing
}

func (p Profile) Complete() bool {
	return len(p.Missing()) == 0
}

// Merge overlays delta on prior, last write wins per field. A key present in
// delta overwrites prior even when its value is empty. Neither input is modified.
func Merge(prior, delta Profile) Profile {
	out := prior.Clone()
	for k, v := range delta {
		out[k] = v
	}
	return out
}

// RankedDiagnosis is one candidate diagnosis with the model's confidence.
type RankedDiagnosis struct {
	Name       string
	Confidence string
}

// Diagnosis is the structured outcome of the symptom interview.
type Diagnosis struct {
	Complete             bool
	CanDiagnose          bool
	Symptoms             []string
	PossibleDiagnoses    []RankedDiagnosis
	NextQuestion         string
	RedFlags             string
	FamilyHistoryKnown   bool // the response carried a family history flag
	FamilyHistoryRelated bool
	DoctorSummary        string
}

// Empty reports whether nothing has been collected yet.
func (d Diagnosis) Empty() bool {
	return !d.Complete && !d.CanDiagnose && len(d.Symptoms) == 0 &&
		len(d.PossibleDiagnoses) == 0 && d.NextQuestion == "" && d.RedFlags == "" &&
		!d.FamilyHistoryKnown && d.DoctorSummary == ""
}

// Accumulate folds a newer turn's record into d. Flags and the next question
// always follow the newer turn; collected lists and text only move forward
// when the newer turn carries them.
func (d Diagnosis) Accumulate(next Diagnosis) Diagnosis {
	out := d
	out.Complete = next.Complete
	out.CanDiagnose = next.CanDiagnose
	out.NextQuestion = next.NextQuestion
	if len(next.Symptoms) > 0 {
		out.Symptoms = append([]string(nil), next.Symptoms...)
	}
	if len(next.PossibleDiagnoses) > 0 {
		out.PossibleDiagnoses = append([]RankedDiagnosis(nil), next.PossibleDiagnoses...)
	}
	if next.RedFlags != "" {
		out.RedFlags = next.RedFlags
	}
	if next.FamilyHistoryKnown {
		out.FamilyHistoryKnown = true
		out.FamilyHistoryRelated = next.FamilyHistoryRelated
	}
	if next.DoctorSummary != "" {
		out.DoctorSummary = next.DoctorSummary
	}
	return out
}
