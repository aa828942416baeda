package note

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/medscribe/medscribe-go/internal/domain/model"
)

// Interpersonal-violence context keywords checked against the assessment.
var ipvKeywords = []string{
	"intimate partner violence", "ipv", "domestic violence",
	"domestic abuse", "partner abuse", "spousal abuse",
	"physical abuse", "assault", "violence by partner",
	"violence by spouse", "relationship violence",
}

// Phrases that must never appear in a safety plan for a violence case.
var unsafePlanPhrases = []string{
	"with partner", "with spouse", "with abuser",
	"include partner", "include spouse",
	"discuss with partner", "discuss with spouse",
	"involve partner", "involve spouse",
	"partner in safety", "spouse in safety",
}

// Support-resource keywords expected in a violence-case safety plan.
var safetyResources = []string{
	"hotline", "shelter", "crisis", "emergency contact",
	"safe", "confidential", "resource",
}

// Vital sign measurements that belong in the objective section only.
var vitalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`bp\s*[:=]?\s*\d+/\d+`),
	regexp.MustCompile(`blood pressure\s*[:=]?\s*\d+/\d+`),
	regexp.MustCompile(`hr\s*[:=]?\s*\d+`),
	regexp.MustCompile(`heart rate\s*[:=]?\s*\d+`),
	regexp.MustCompile(`rr\s*[:=]?\s*\d+`),
	regexp.MustCompile(`respiratory rate\s*[:=]?\s*\d+`),
	regexp.MustCompile(`temperature\s*[:=]?\s*\d+`),
	regexp.MustCompile(`t\s*[:=]?\s*\d+\.?\d*\s*°?[fc]`),
	regexp.MustCompile(`o2\s*sat\s*[:=]?\s*\d+%?`),
}

var painMeds = []string{
	"ibuprofen", "acetaminophen", "naproxen", "aspirin",
	"tylenol", "advil", "motrin", "aleve",
	"oxycodone", "hydrocodone", "morphine", "tramadol",
}

var painKeywords = []string{
	"pain", "tender", "ache", "sore", "discomfort",
	"hurts", "painful",
}

// Maintenance or preventive content that excuses medications in an otherwise
// unremarkable exam.
var preventiveMedTerms = []string{"vitamin", "supplement", "follow-up", "continue"}

var reICD10 = regexp.MustCompile(`(?i)icd-10:\s*([A-Za-z]\d{2}(?:\.\d{1,2})?)`)

// The medication block runs until the next numbered item or heading.
var reMedicationBlock = regexp.MustCompile(`(?s)medications?:\s*(.*?)(?:\n\d+\.|\n[A-Z]|$)`)

// Scheduled-frequency and as-needed tokens appearing together contradict
// each other.
var frequencyConflictPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(tid|bid|qid)\s+(prn|as\s+needed)`),
	regexp.MustCompile(`(prn|as\s+needed)\s+(tid|bid|qid)`),
	regexp.MustCompile(`(tid|bid|qid).*\s+(prn|as\s+needed)`),
}

// Benzodiazepine daily dose ceilings, including common brand synonyms.
var benzoDoseRules = []struct {
	pattern  *regexp.Regexp
	maxDaily float64
	name     string
}{
	{regexp.MustCompile(`clonazepam\s+(\d+(?:\.\d+)?)\s*mg`), 2.0, "clonazepam"},
	{regexp.MustCompile(`klonopin\s+(\d+(?:\.\d+)?)\s*mg`), 2.0, "klonopin (clonazepam)"},
	{regexp.MustCompile(`lorazepam\s+(\d+(?:\.\d+)?)\s*mg`), 4.0, "lorazepam"},
	{regexp.MustCompile(`ativan\s+(\d+(?:\.\d+)?)\s*mg`), 4.0, "ativan (lorazepam)"},
	{regexp.MustCompile(`alprazolam\s+(\d+(?:\.\d+)?)\s*mg`), 4.0, "alprazolam"},
	{regexp.MustCompile(`xanax\s+(\d+(?:\.\d+)?)\s*mg`), 4.0, "xanax (alprazolam)"},
}

// Validator runs the clinical safety and logic rule battery over a
// structured note. Every check is independent and produces warnings only;
// validation never fails a note.
type Validator struct {
	logger *slog.Logger
}

// ValidatorOptions configures a Validator.
type ValidatorOptions struct {
	Logger *slog.Logger
}

// NewValidator creates a new Validator with the given options.
func NewValidator(opts ValidatorOptions) *Validator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Validator{logger: opts.Logger}
}

// Validate returns the flat warning list for the note: safety checks first,
// then clinical logic checks. Validation is stateless; running it twice on
// the same note yields the same list.
func (v *Validator) Validate(note *model.SOAPNote) []string {
	warnings := v.validateSafety(note)
	warnings = append(warnings, v.validateLogic(note)...)
	return warnings
}

// validateSafety covers interpersonal-violence safety planning and ICD-10
// code plausibility.
func (v *Validator) validateSafety(note *model.SOAPNote) []string {
	var warnings []string

	assessmentLower := strings.ToLower(note.Assessment)
	planLower := strings.ToLower(note.Plan)

	if containsAny(assessmentLower, ipvKeywords) {
		v.logger.Info("detected interpersonal violence case, validating safety plan")

		for _, phrase := range unsafePlanPhrases {
			if strings.Contains(planLower, phrase) {
				warnings = append(warnings, fmt.Sprintf(
					"CRITICAL SAFETY ISSUE: IPV case contains unsafe phrase '%s' in safety plan. "+
						"Safety planning must NEVER include the abuser/partner. "+
						"Patient safety may be compromised.", phrase))
				v.logger.Error("safety violation detected in safety plan", "phrase", phrase)
			}
		}

		if !containsAny(planLower, safetyResources) {
			warnings = append(warnings,
				"WARNING: IPV case detected but no safety resources (hotline, shelter, crisis line) "+
					"mentioned in plan. Consider adding patient-centered safety resources.")
		}
	}

	warnings = append(warnings, v.validateICD10(note)...)
	return warnings
}

// validateICD10 checks diagnosis codes in the assessment for common
// generation hallucinations.
func (v *Validator) validateICD10(note *model.SOAPNote) []string {
	var warnings []string
	assessmentLower := strings.ToLower(note.Assessment)

	for _, m := range reICD10.FindAllStringSubmatch(note.Assessment, -1) {
		code := strings.ToUpper(m[1])

		// F32.x codes are depression, not anxiety.
		if strings.HasPrefix(code, "F32") && strings.Contains(assessmentLower, "anxiety") {
			warnings = append(warnings, fmt.Sprintf(
				"ICD-10 HALLUCINATION: Code %s is for Major Depressive Disorder, "+
					"but diagnosis mentions 'anxiety'. F32.X codes are for depression, NOT anxiety. "+
					"Anxiety disorders use F41.X codes. This is a common hallucination error.", code))
			v.logger.Error("ICD-10 hallucination detected", "code", code)
		}

		// X and Y codes are external causes, never primary diagnoses.
		if strings.HasPrefix(code, "X") || strings.HasPrefix(code, "Y") {
			if !strings.Contains(assessmentLower, "external cause") && !strings.Contains(assessmentLower, "secondary") {
				warnings = append(warnings, fmt.Sprintf(
					"ICD-10 ERROR: Code %s is an External Cause code (accidents, assaults, events). "+
						"These should NOT be used as primary diagnoses for medical conditions. "+
						"Example hallucination: X34.0 (earthquake victim) for IPV.", code))
				v.logger.Error("external cause code used as primary diagnosis", "code", code)
			}
		}

		if strings.HasPrefix(code, "F41") &&
			strings.Contains(assessmentLower, "depress") &&
			!strings.Contains(assessmentLower, "anxiety") {
			warnings = append(warnings, fmt.Sprintf(
				"ICD-10 MISMATCH: Code %s is for anxiety disorders, "+
					"but diagnosis primarily mentions depression. Consider F32.X codes instead.", code))
		}
	}

	return warnings
}

// validateLogic covers section placement and medication plausibility.
func (v *Validator) validateLogic(note *model.SOAPNote) []string {
	var warnings []string

	subjectiveLower := strings.ToLower(note.Subjective)
	objectiveLower := strings.ToLower(note.Objective)
	planLower := strings.ToLower(note.Plan)

	// Measured vitals belong in the objective section. One warning covers
	// the whole section regardless of how many values leaked.
	for _, pattern := range vitalPatterns {
		if match := pattern.FindString(subjectiveLower); match != "" {
			warnings = append(warnings,
				"STRUCTURE ERROR: Vital sign measurement found in SUBJECTIVE section. "+
					"All vital signs (BP, HR, RR, T, O2 sat) must be in OBJECTIVE section only. "+
					"ROS should contain patient-reported symptoms, not measured values.")
			v.logger.Warn("vital signs detected in subjective section", "match", match)
			break
		}
	}

	if containsAny(planLower, painMeds) {
		if !containsAny(subjectiveLower, painKeywords) && !containsAny(objectiveLower, painKeywords) {
			warnings = append(warnings,
				"CLINICAL LOGIC ERROR: Pain medication prescribed but no pain documented "+
					"in Subjective or Objective sections. Treatment must be supported by documented findings.")
			v.logger.Warn("pain medication prescribed without documented pain")
		}
	}

	if strings.Contains(objectiveLower, "no significant findings") {
		if m := reMedicationBlock.FindStringSubmatch(planLower); m != nil {
			meds := m[1]
			if len(strings.TrimSpace(meds)) > 10 && !containsAny(meds, preventiveMedTerms) {
				warnings = append(warnings,
					"CLINICAL LOGIC WARNING: Objective section states 'no significant findings' "+
						"but medications are prescribed in Plan. Ensure findings support treatment.")
			}
		}
	}

	for _, pattern := range frequencyConflictPatterns {
		if match := pattern.FindString(planLower); match != "" {
			warnings = append(warnings, fmt.Sprintf(
				"MEDICATION ERROR: Found contradictory frequency '%s'. "+
					"TID/BID/QID means scheduled (at set times). PRN/as needed means when patient decides. "+
					"Cannot be both! Choose one: either scheduled (TID/BID/QID) OR as needed (PRN).", match))
			v.logger.Warn("scheduled and as-needed frequency conflict", "match", match)
			break
		}
	}

	warnings = append(warnings, v.validateBenzoDoses(planLower)...)
	return warnings
}

// validateBenzoDoses computes total daily benzodiazepine doses from the plan
// and flags totals above the per-drug ceiling.
func (v *Validator) validateBenzoDoses(planLower string) []string {
	var warnings []string

	multiplier := 1.0
	switch {
	case strings.Contains(planLower, "tid"):
		multiplier = 3.0
	case strings.Contains(planLower, "qid"):
		multiplier = 4.0
	case strings.Contains(planLower, "bid"):
		multiplier = 2.0
	}

	for _, rule := range benzoDoseRules {
		for _, m := range rule.pattern.FindAllStringSubmatch(planLower, -1) {
			dose, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				continue
			}

			totalDaily := dose * multiplier
			if totalDaily > rule.maxDaily {
				warnings = append(warnings, fmt.Sprintf(
					"HIGH-DOSE BENZODIAZEPINE: %s %gmg/day exceeds "+
						"typical maximum of %gmg/day. High doses require clear justification "+
						"and should be approached cautiously due to dependence risk.",
					rule.name, totalDaily, rule.maxDaily))
				v.logger.Warn("high benzodiazepine dose",
					"medication", rule.name, "total_daily_mg", totalDaily)
			}
		}
	}

	return warnings
}

// ApplyWarnings appends the warning list as a formatted block to the note's
// plan and retains the structured list on the note. A note with no warnings
// is returned unchanged.
func ApplyWarnings(note *model.SOAPNote, warnings []string) {
	if len(warnings) == 0 {
		return
	}

	rule := strings.Repeat("=", 70)
	var b strings.Builder
	b.WriteString(note.Plan)
	b.WriteString("\n\n" + rule + "\n")
	b.WriteString("VALIDATION WARNINGS\n")
	b.WriteString(rule + "\n")
	b.WriteString(strings.Join(warnings, "\n"))
	b.WriteString("\n" + rule)

	note.Plan = b.String()
	note.Warnings = append(note.Warnings, warnings...)
}

func containsAny(s string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(s, needle) {
			return true
		}
	}
	return false
}
