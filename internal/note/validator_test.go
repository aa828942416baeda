package note

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medscribe/medscribe-go/internal/domain/model"
)

func cleanNote() *model.SOAPNote {
	return &model.SOAPNote{
		Subjective: "Patient reports mild seasonal allergy symptoms for one week.",
		Objective:  "Nasal turbinates boggy. Lungs clear to auscultation.",
		Assessment: "Allergic rhinitis.",
		Plan:       "Loratadine 10mg daily. Follow up if symptoms worsen.",
	}
}

func TestValidator_CleanNoteProducesNoWarnings(t *testing.T) {
	v := NewValidator(ValidatorOptions{})

	warnings := v.Validate(cleanNote())
	assert.Empty(t, warnings)
}

func TestValidator_Idempotent(t *testing.T) {
	v := NewValidator(ValidatorOptions{})

	note := cleanNote()
	note.Assessment = "Domestic violence disclosed during visit."
	note.Plan = "Discuss with partner how to improve communication."

	first := v.Validate(note)
	second := v.Validate(note)
	assert.Equal(t, first, second)
	assert.NotEmpty(t, first)
}

func TestValidator_SafetyPlanLeakage(t *testing.T) {
	v := NewValidator(ValidatorOptions{})

	t.Run("unsafe phrase in violence case is critical", func(t *testing.T) {
		note := cleanNote()
		note.Assessment = "Injuries consistent with domestic violence."
		note.Plan = "Safety planning to discuss with partner at next visit."

		warnings := v.Validate(note)
		require.NotEmpty(t, warnings)
		assert.Contains(t, warnings[0], "CRITICAL SAFETY ISSUE")
		assert.Contains(t, warnings[0], "with partner")
	})

	t.Run("no violence keywords means no violence warnings", func(t *testing.T) {
		note := cleanNote()
		note.Plan = "Discuss with partner about medication schedule. Hotline number provided."

		warnings := v.Validate(note)
		assert.Empty(t, warnings)
	})

	t.Run("violence case without safety resources gets lesser warning", func(t *testing.T) {
		note := cleanNote()
		note.Assessment = "Intimate partner violence disclosed."
		note.Plan = "Return in one week."

		warnings := v.Validate(note)
		require.Len(t, warnings, 1)
		assert.Contains(t, warnings[0], "no safety resources")
	})

	t.Run("violence case with safety resources and safe plan is clean", func(t *testing.T) {
		note := cleanNote()
		note.Assessment = "Intimate partner violence disclosed."
		note.Plan = "Provided confidential hotline and shelter information. Safety plan reviewed privately."

		warnings := v.Validate(note)
		assert.Empty(t, warnings)
	})
}

func TestValidator_ICD10Codes(t *testing.T) {
	v := NewValidator(ValidatorOptions{})

	tests := []struct {
		name       string
		assessment string
		wantSubstr string
	}{
		{
			name:       "depression code with anxiety diagnosis",
			assessment: "Generalized anxiety disorder. ICD-10: F32.1",
			wantSubstr: "ICD-10 HALLUCINATION",
		},
		{
			name:       "external cause code as primary diagnosis",
			assessment: "Multiple contusions. ICD-10: X34.0",
			wantSubstr: "External Cause code",
		},
		{
			name:       "anxiety code with depression-only diagnosis",
			assessment: "Moderate depressive episode. ICD-10: F41.1",
			wantSubstr: "ICD-10 MISMATCH",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			note := cleanNote()
			note.Assessment = tt.assessment

			warnings := v.Validate(note)
			require.NotEmpty(t, warnings)
			assert.Contains(t, warnings[0], tt.wantSubstr)
		})
	}

	t.Run("external cause code marked secondary is accepted", func(t *testing.T) {
		note := cleanNote()
		note.Assessment = "Contusions, secondary external cause code ICD-10: X34.0"

		warnings := v.Validate(note)
		assert.Empty(t, warnings)
	})

	t.Run("correct anxiety code passes", func(t *testing.T) {
		note := cleanNote()
		note.Assessment = "Generalized anxiety disorder. ICD-10: F41.1"

		warnings := v.Validate(note)
		assert.Empty(t, warnings)
	})
}

func TestValidator_VitalSignsInSubjective(t *testing.T) {
	v := NewValidator(ValidatorOptions{})

	tests := []struct {
		name       string
		subjective string
		want       bool
	}{
		{"blood pressure ratio", "Reports feeling dizzy. BP 150/95 noted.", true},
		{"heart rate", "Feels palpitations. HR: 110", true},
		{"oxygen saturation", "Short of breath. O2 sat 91%", true},
		{"symptoms only", "Reports feeling dizzy and lightheaded when standing.", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			note := cleanNote()
			note.Subjective = tt.subjective

			warnings := v.Validate(note)
			if tt.want {
				require.Len(t, warnings, 1)
				assert.Contains(t, warnings[0], "STRUCTURE ERROR")
			} else {
				assert.Empty(t, warnings)
			}
		})
	}

	t.Run("multiple vitals produce a single warning", func(t *testing.T) {
		note := cleanNote()
		note.Subjective = "Reports fatigue. BP 150/95, HR 110 documented during intake."

		warnings := v.Validate(note)
		assert.Len(t, warnings, 1)
	})
}

func TestValidator_PainMedicationWithoutDocumentedPain(t *testing.T) {
	v := NewValidator(ValidatorOptions{})

	t.Run("pain med without pain is flagged", func(t *testing.T) {
		note := cleanNote()
		note.Plan = "Ibuprofen 400mg every 8 hours."

		warnings := v.Validate(note)
		require.Len(t, warnings, 1)
		assert.Contains(t, warnings[0], "CLINICAL LOGIC ERROR")
	})

	t.Run("pain documented in subjective", func(t *testing.T) {
		note := cleanNote()
		note.Subjective = "Reports lower back pain for three days."
		note.Plan = "Ibuprofen 400mg every 8 hours."

		warnings := v.Validate(note)
		assert.Empty(t, warnings)
	})

	t.Run("tenderness documented in objective", func(t *testing.T) {
		note := cleanNote()
		note.Objective = "Paraspinal muscles tender to palpation."
		note.Plan = "Ibuprofen 400mg every 8 hours."

		warnings := v.Validate(note)
		assert.Empty(t, warnings)
	})
}

func TestValidator_NoFindingsWithMedications(t *testing.T) {
	v := NewValidator(ValidatorOptions{})

	t.Run("unremarkable exam with active medication block", func(t *testing.T) {
		note := cleanNote()
		note.Objective = "No significant findings on examination."
		note.Plan = "Medications: amoxicillin 500mg three times daily for ten days"

		warnings := v.Validate(note)
		require.NotEmpty(t, warnings)
		assert.Contains(t, warnings[0], "no significant findings")
	})

	t.Run("preventive medications are excluded", func(t *testing.T) {
		note := cleanNote()
		note.Objective = "No significant findings on examination."
		note.Plan = "Medications: continue daily vitamin d supplement"

		warnings := v.Validate(note)
		assert.Empty(t, warnings)
	})
}

func TestValidator_FrequencyContradiction(t *testing.T) {
	v := NewValidator(ValidatorOptions{})

	t.Run("scheduled plus as-needed conflicts", func(t *testing.T) {
		note := cleanNote()
		note.Subjective = "Reports knee pain after running."
		note.Plan = "Ibuprofen 400mg TID PRN"

		warnings := v.Validate(note)
		require.Len(t, warnings, 1)
		assert.Contains(t, warnings[0], "MEDICATION ERROR")
		assert.Contains(t, warnings[0], "tid prn")
	})

	t.Run("scheduled with duration does not conflict", func(t *testing.T) {
		note := cleanNote()
		note.Subjective = "Reports knee pain after running."
		note.Plan = "Ibuprofen 400mg TID x 5 days"

		warnings := v.Validate(note)
		assert.Empty(t, warnings)
	})

	t.Run("as needed alone does not conflict", func(t *testing.T) {
		note := cleanNote()
		note.Subjective = "Reports knee pain after running."
		note.Plan = "Ibuprofen 400mg PRN"

		warnings := v.Validate(note)
		assert.Empty(t, warnings)
	})
}

func TestValidator_BenzodiazepineDoseCeiling(t *testing.T) {
	v := NewValidator(ValidatorOptions{})

	tests := []struct {
		name string
		plan string
		want bool
	}{
		{"clonazepam over ceiling with TID", "Clonazepam 1mg TID", true},
		{"clonazepam within ceiling", "Clonazepam 0.5mg QHS PRN", false},
		{"lorazepam over ceiling with BID", "Lorazepam 2.5mg BID", true},
		{"lorazepam at ceiling", "Lorazepam 2mg BID", false},
		{"brand name xanax over ceiling", "Xanax 1.5mg QID", true},
		{"single dose under ceiling", "Alprazolam 0.25mg at bedtime", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			note := cleanNote()
			note.Plan = tt.plan

			warnings := v.Validate(note)
			if tt.want {
				require.NotEmpty(t, warnings)
				assert.Contains(t, warnings[0], "HIGH-DOSE BENZODIAZEPINE")
			} else {
				assert.Empty(t, warnings)
			}
		})
	}
}

func TestValidator_SafetyWarningsPrecedeLogicWarnings(t *testing.T) {
	v := NewValidator(ValidatorOptions{})

	note := cleanNote()
	note.Assessment = "Domestic violence disclosed."
	note.Plan = "Discuss with partner. Clonazepam 1mg TID. Hotline provided."

	warnings := v.Validate(note)
	require.GreaterOrEqual(t, len(warnings), 2)
	assert.Contains(t, warnings[0], "CRITICAL SAFETY ISSUE")
	assert.Contains(t, warnings[len(warnings)-1], "HIGH-DOSE BENZODIAZEPINE")
}

func TestApplyWarnings(t *testing.T) {
	t.Run("appends formatted block and retains list", func(t *testing.T) {
		note := cleanNote()
		warnings := []string{"warning one", "warning two"}

		ApplyWarnings(note, warnings)
		assert.Contains(t, note.Plan, "VALIDATION WARNINGS")
		assert.Contains(t, note.Plan, "warning one\nwarning two")
		assert.Equal(t, warnings, note.Warnings)
	})

	t.Run("no warnings leaves note unchanged", func(t *testing.T) {
		note := cleanNote()
		originalPlan := note.Plan

		ApplyWarnings(note, nil)
		assert.Equal(t, originalPlan, note.Plan)
		assert.Empty(t, note.Warnings)
	})
}
