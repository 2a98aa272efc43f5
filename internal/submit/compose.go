package submit

import (
	"fmt"
	"strings"

	"github.com/phrazzld/apply-orchestrator/internal/domain"
)

// DefaultInstructions is used when neither the caller nor the profile
// supplies instructions.
const DefaultInstructions = "Fill in every field of the application accurately using the applicant profile, then submit the application."

// extractFromPage is appended when the job lacks a title or company.
const extractFromPage = "The job title or company is not known; extract them from the job page before applying."

// TaskSpec is everything that goes into the composed task text.
type TaskSpec struct {
	Job          domain.Job
	Profile      *domain.Profile
	Instructions string
	Notes        string
	Artifact     *domain.ArtifactReference
}

// Compose renders the task specification. The output depends only on the
// input and never contains a placeholder for an absent field.
func Compose(spec TaskSpec) string {
	var b strings.Builder

	if url := strings.TrimSpace(spec.Job.URL); url != "" {
		fmt.Fprintf(&b, "Apply to the job posted at %s.\n", url)
	} else {
		b.WriteString("Find and apply to the job described below.\n")
	}

	b.WriteString("\nJob:\n")
	writeField(&b, "Title", spec.Job.Title)
	writeField(&b, "Company", spec.Job.Company)
	writeField(&b, "Location", spec.Job.Location)
	if strings.TrimSpace(spec.Job.Title) == "" || strings.TrimSpace(spec.Job.Company) == "" {
		b.WriteString(extractFromPage + "\n")
	}

	if spec.Profile != nil {
		b.WriteString("\nApplicant profile:\n")
		writeProfile(&b, spec.Profile)
	}

	if spec.Artifact != nil && spec.Artifact.RemoteName != "" {
		fmt.Fprintf(&b, "\nResume: upload the file %q whenever the form asks for a resume or CV.\n", spec.Artifact.RemoteName)
	}

	b.WriteString("\nInstructions:\n")
	b.WriteString(instructionsFor(spec))
	b.WriteString("\n")

	if notes := strings.TrimSpace(spec.Notes); notes != "" {
		b.WriteString("\nAdditional notes:\n")
		b.WriteString(notes)
		b.WriteString("\n")
	}

	return b.String()
}

func instructionsFor(spec TaskSpec) string {
	if s := strings.TrimSpace(spec.Instructions); s != "" {
		return s
	}
	if spec.Profile != nil {
		if s := strings.TrimSpace(spec.Profile.Instructions); s != "" {
			return s
		}
	}
	return DefaultInstructions
}

func writeProfile(b *strings.Builder, p *domain.Profile) {
	writeField(b, "Name", p.FullName())
	writeField(b, "Email", p.Email)
	writeField(b, "Phone", p.Phone)
	writeField(b, "Location", p.Location)
	writeField(b, "Headline", p.Headline)
	writeField(b, "LinkedIn", p.LinkedInURL)
	writeField(b, "Website", p.Website)
	writeField(b, "Summary", p.Summary)
	writeField(b, "Skills", joinNonEmpty(p.Skills, ", "))

	var exp []string
	for _, e := range p.Experience {
		if line := experienceLine(e); line != "" {
			exp = append(exp, line)
		}
	}
	writeList(b, "Experience", exp)

	var edu []string
	for _, e := range p.Education {
		if line := educationLine(e); line != "" {
			edu = append(edu, line)
		}
	}
	writeList(b, "Education", edu)
}

func experienceLine(e domain.Experience) string {
	head := joinNonEmpty([]string{e.Title, e.Company}, " at ")
	if period := joinNonEmpty([]string{e.StartDate, e.EndDate}, " - "); period != "" {
		head = joinNonEmpty([]string{head, "(" + period + ")"}, " ")
	}
	return joinNonEmpty([]string{head, e.Summary}, ": ")
}

func educationLine(e domain.Education) string {
	degree := joinNonEmpty([]string{e.Degree, e.Field}, " in ")
	line := joinNonEmpty([]string{degree, e.School}, ", ")
	if y := strings.TrimSpace(e.Year); y != "" {
		line = joinNonEmpty([]string{line, "(" + y + ")"}, " ")
	}
	return line
}

func writeField(b *strings.Builder, label, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	fmt.Fprintf(b, "- %s: %s\n", label, value)
}

func writeList(b *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "- %s:\n", label)
	for _, item := range items {
		fmt.Fprintf(b, "  - %s\n", item)
	}
}

func joinNonEmpty(parts []string, sep string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
