// Package note converts raw language-model output into structured SOAP
// notes and runs rule-based clinical safety validation over them.
package note

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/medscribe/medscribe-go/internal/domain/model"
)

// SentinelNotDocumented fills any section the generator failed to produce.
const SentinelNotDocumented = "Not documented in this encounter"

// minSectionLength is the threshold below which a candidate match is treated
// as a degenerate artifact rather than real content.
const minSectionLength = 5

// minCombinedLength is the combined section length under which the note is
// flagged as implausibly short. Quality signal only, never an error.
const minCombinedLength = 50

// Section patterns accept optional bold markers around the header and run
// until the next recognized header or end of text. The generator sometimes
// emits a section header more than once, so extraction considers every
// occurrence, not just the first.
var sectionPatterns = []struct {
	name    string
	pattern *regexp.Regexp
}{
	{"subjective", regexp.MustCompile(`(?is)(?:\*\*)?SUBJECTIVE:(?:\*\*)?[\s\n]+(.*?)(?:(?:\*\*)?OBJECTIVE:(?:\*\*)?|---[\s\n]+(?:\*\*)?OBJECTIVE|$)`)},
	{"objective", regexp.MustCompile(`(?is)(?:\*\*)?OBJECTIVE:(?:\*\*)?[\s\n]+(.*?)(?:(?:\*\*)?ASSESSMENT:(?:\*\*)?|---[\s\n]+(?:\*\*)?ASSESSMENT|$)`)},
	{"assessment", regexp.MustCompile(`(?is)(?:\*\*)?ASSESSMENT:(?:\*\*)?[\s\n]+(.*?)(?:(?:\*\*)?PLAN:(?:\*\*)?|---[\s\n]+(?:\*\*)?PLAN|$)`)},
	{"plan", regexp.MustCompile(`(?is)(?:\*\*)?PLAN:(?:\*\*)?[\s\n]+(.*?)(?:---|End of SOAP Note|VALIDATION WARNINGS|$)`)},
}

// Cleaning patterns for common generator artifacts.
var (
	reLeadingDashes    = regexp.MustCompile(`^-+\s*`)
	reLeadingNoteBold  = regexp.MustCompile(`^Note\*\*\s*`)
	reLineDashes       = regexp.MustCompile(`(?m)^---\s*`)
	reMarkdownHeading  = regexp.MustCompile(`(?m)^#+\s*`)
	reExcessNewlines   = regexp.MustCompile(`\n{3,}`)
	reBareSectionLabel = regexp.MustCompile(`(?im)^(SUBJECTIVE|OBJECTIVE|ASSESSMENT|PLAN|S|O|A|P):\s*$`)
	reStandaloneDashes = regexp.MustCompile(`(?m)^---+$`)
)

// degenerate artifacts that survive cleaning but carry no content.
var degenerateContent = map[string]bool{
	"---":    true,
	"Note**": true,
}

// Extractor parses raw generation output into the four SOAP sections.
type Extractor struct {
	logger *slog.Logger
}

// ExtractorOptions configures an Extractor.
type ExtractorOptions struct {
	Logger *slog.Logger
}

// NewExtractor creates a new Extractor with the given options.
func NewExtractor(opts ExtractorOptions) *Extractor {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Extractor{logger: opts.Logger}
}

// Extract structures the raw response into a SOAPNote. Sections are resolved
// in the fixed subjective, objective, assessment, plan order; a section with
// no usable content falls back to the sentinel string. Extraction never
// fails: missing content is a quality problem, not an error.
func (e *Extractor) Extract(raw string) *model.SOAPNote {
	sections := make(map[string]string, len(sectionPatterns))

	for _, sp := range sectionPatterns {
		matches := sp.pattern.FindAllStringSubmatch(raw, -1)

		content := ""
		for _, m := range matches {
			cleaned := cleanSectionContent(m[1])
			if len(cleaned) > minSectionLength && !degenerateContent[cleaned] {
				content = cleaned
				break
			}
		}

		switch {
		case content != "":
			sections[sp.name] = content
		case len(matches) > 0:
			e.logger.Warn("section header found but no meaningful content", "section", sp.name)
			sections[sp.name] = SentinelNotDocumented
		default:
			e.logger.Warn("section not found in response", "section", sp.name)
			sections[sp.name] = SentinelNotDocumented
		}
	}

	total := 0
	for _, s := range sections {
		total += len(s)
	}
	if total < minCombinedLength {
		e.logger.Warn("extracted note content seems too short", "combined_length", total)
	}

	return &model.SOAPNote{
		Subjective: sections["subjective"],
		Objective:  sections["objective"],
		Assessment: sections["assessment"],
		Plan:       sections["plan"],
	}
}

// cleanSectionContent strips generator artifacts from a section body:
// leading dash runs, stray Note markers, markdown heading markers, leftover
// bare section labels, standalone separator lines, and excess blank lines.
func cleanSectionContent(content string) string {
	content = strings.TrimSpace(content)

	content = reLeadingDashes.ReplaceAllString(content, "")
	content = reLeadingNoteBold.ReplaceAllString(content, "")
	content = reLineDashes.ReplaceAllString(content, "")
	content = reMarkdownHeading.ReplaceAllString(content, "")
	content = reExcessNewlines.ReplaceAllString(content, "\n\n")
	content = reBareSectionLabel.ReplaceAllString(content, "")
	content = reStandaloneDashes.ReplaceAllString(content, "")
	content = reExcessNewlines.ReplaceAllString(content, "\n\n")

	return strings.TrimSpace(content)
}
