package submit

import (
	"strings"
	"testing"

	"github.com/phrazzld/apply-orchestrator/internal/domain"
	"github.com/stretchr/testify/assert"
)

func fullProfile() *domain.Profile {
	return &domain.Profile{
		FirstName:   "Ada",
		LastName:    "Lovelace",
		Email:       "ada@example.com",
		Phone:       "+44 20 0000 0000",
		Location:    "London",
		LinkedInURL: "https://linkedin.com/in/ada",
		Skills:      []string{"Go", " ", "Postgres"},
		Experience: []domain.Experience{
			{Title: "Engineer", Company: "Analytical Engines", StartDate: "1842", Summary: "Wrote the first program"},
			{},
		},
		Education: []domain.Education{
			{School: "Home", Degree: "", Field: "Mathematics"},
		},
	}
}

func TestComposeIncludesJobAndProfile(t *testing.T) {
	text := Compose(TaskSpec{
		Job:     domain.Job{Title: "Backend Engineer", Company: "Acme", Location: "Remote", URL: "https://jobs.acme.dev/1"},
		Profile: fullProfile(),
	})

	assert.Contains(t, text, "https://jobs.acme.dev/1")
	assert.Contains(t, text, "- Title: Backend Engineer")
	assert.Contains(t, text, "- Company: Acme")
	assert.Contains(t, text, "- Name: Ada Lovelace")
	assert.Contains(t, text, "- Email: ada@example.com")
	assert.Contains(t, text, "- Skills: Go, Postgres")
	assert.Contains(t, text, "Engineer at Analytical Engines (1842): Wrote the first program")
	assert.Contains(t, text, "Mathematics, Home")
	assert.NotContains(t, text, extractFromPage)
	assert.NotContains(t, text, "Resume:")
	assert.Contains(t, text, DefaultInstructions)
}

func TestComposeNeverRendersAbsentFields(t *testing.T) {
	text := Compose(TaskSpec{
		Job:     domain.Job{},
		Profile: &domain.Profile{FirstName: "Ada", Email: "ada@example.com"},
	})

	for _, bad := range []string{"undefined", "null", "<nil>", "Phone", "Website", "Experience", "Education", ": \n"} {
		assert.NotContains(t, text, bad)
	}
	assert.Contains(t, text, extractFromPage)
	assert.Contains(t, text, "Find and apply to the job described below.")
}

func TestComposeMissingCompanyOnlyAddsGuidance(t *testing.T) {
	text := Compose(TaskSpec{Job: domain.Job{Title: "SRE"}})
	assert.Contains(t, text, "- Title: SRE")
	assert.Contains(t, text, extractFromPage)
}

func TestComposeInstructionsPrecedence(t *testing.T) {
	profile := &domain.Profile{FirstName: "Ada", Instructions: "Prefer remote roles."}

	assert.Contains(t, Compose(TaskSpec{Profile: profile}), "Prefer remote roles.")
	assert.Contains(t, Compose(TaskSpec{Profile: profile, Instructions: "Use the cover letter."}), "Use the cover letter.")
	assert.NotContains(t, Compose(TaskSpec{Profile: profile, Instructions: "Use the cover letter."}), "Prefer remote roles.")
	assert.Contains(t, Compose(TaskSpec{}), DefaultInstructions)
}

func TestComposeArtifactAndNotes(t *testing.T) {
	text := Compose(TaskSpec{
		Job:      domain.Job{Title: "SRE", Company: "Acme"},
		Artifact: &domain.ArtifactReference{RemoteName: "abc-resume.pdf"},
		Notes:    "  Mention the referral from Grace.  ",
	})

	assert.Contains(t, text, `upload the file "abc-resume.pdf"`)
	assert.Contains(t, text, "Additional notes:\nMention the referral from Grace.\n")
}

func TestComposeIsDeterministic(t *testing.T) {
	spec := TaskSpec{
		Job:      domain.Job{Title: "SRE", Company: "Acme", URL: "https://acme.dev/jobs/2"},
		Profile:  fullProfile(),
		Artifact: &domain.ArtifactReference{RemoteName: "r.pdf"},
		Notes:    "n",
	}
	first := Compose(spec)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Compose(spec))
	}
	assert.True(t, strings.HasSuffix(first, "\n"))
}
