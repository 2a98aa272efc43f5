package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/apply-orchestrator/internal/domain"
	"github.com/phrazzld/apply-orchestrator/internal/secrets"
	"gopkg.in/yaml.v3"
)

// Seed is the YAML fixture loaded into the memory stores at startup:
//
//	profiles:
//	  - owner_id: 4b2c...
//	    first_name: Ada
//	    email: ada@example.com
//	    resume_path: ./resume.pdf
//	    credentials:
//	      - platform: greenhouse
//	        username: ada
//	        password: ENC[age:...]
//	jobs:
//	  - id: job-1
//	    url: https://boards.greenhouse.io/acme/jobs/1
type Seed struct {
	Profiles []SeedProfile `yaml:"profiles"`
	Jobs     []domain.Job  `yaml:"jobs"`
}

// SeedProfile is one applicant profile in a Seed.
type SeedProfile struct {
	OwnerID      string              `yaml:"owner_id"`
	FirstName    string              `yaml:"first_name"`
	LastName     string              `yaml:"last_name"`
	Email        string              `yaml:"email"`
	Phone        string              `yaml:"phone"`
	Location     string              `yaml:"location,omitempty"`
	Headline     string              `yaml:"headline,omitempty"`
	Summary      string              `yaml:"summary,omitempty"`
	LinkedInURL  string              `yaml:"linkedin_url,omitempty"`
	Website      string              `yaml:"website,omitempty"`
	Skills       []string            `yaml:"skills,omitempty"`
	Experience   []domain.Experience `yaml:"experience,omitempty"`
	Education    []domain.Education  `yaml:"education,omitempty"`
	Instructions string              `yaml:"instructions,omitempty"`
	ResumePath   string              `yaml:"resume_path,omitempty"`
	Credentials  []SeedCredential    `yaml:"credentials,omitempty"`
}

// SeedCredential is a platform login. Password may be sealed.
type SeedCredential struct {
	Platform string `yaml:"platform"`
	Domain   string `yaml:"domain,omitempty"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// LoadSeedFile reads a Seed from path. Relative resume paths are resolved
// against the seed file's directory.
func LoadSeedFile(path string) (*Seed, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("seed path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("decode seed file: %w", err)
	}

	dir := filepath.Dir(path)
	for i := range seed.Profiles {
		p := &seed.Profiles[i]
		if p.ResumePath != "" && !filepath.IsAbs(p.ResumePath) {
			p.ResumePath = filepath.Join(dir, p.ResumePath)
		}
	}
	for i, job := range seed.Jobs {
		if strings.TrimSpace(job.ID) == "" {
			return nil, fmt.Errorf("seed job %d has no id", i)
		}
	}
	return &seed, nil
}

// Apply loads every profile and job into the stores. Sealed passwords are
// opened with sealer, which may be nil when none are sealed.
func (s *Seed) Apply(profiles *ProfileStore, jobs *JobStore, sealer *secrets.Sealer) error {
	for i, sp := range s.Profiles {
		p, err := sp.toProfile(sealer)
		if err != nil {
			return fmt.Errorf("seed profile %d: %w", i, err)
		}
		profiles.Put(p)
	}
	for _, job := range s.Jobs {
		jobs.Put(job)
	}
	return nil
}

func (sp SeedProfile) toProfile(sealer *secrets.Sealer) (domain.Profile, error) {
	ownerID, err := uuid.Parse(sp.OwnerID)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("invalid owner_id: %w", err)
	}

	p := domain.Profile{
		OwnerID:      ownerID,
		FirstName:    sp.FirstName,
		LastName:     sp.LastName,
		Email:        sp.Email,
		Phone:        sp.Phone,
		Location:     sp.Location,
		Headline:     sp.Headline,
		Summary:      sp.Summary,
		LinkedInURL:  sp.LinkedInURL,
		Website:      sp.Website,
		Skills:       sp.Skills,
		Experience:   sp.Experience,
		Education:    sp.Education,
		Instructions: sp.Instructions,
	}

	for _, c := range sp.Credentials {
		password, err := sealer.Open(c.Password)
		if err != nil {
			return domain.Profile{}, fmt.Errorf("open %s password: %w", c.Platform, err)
		}
		p.Credentials = append(p.Credentials, domain.PlatformCredential{
			Platform: c.Platform,
			Domain:   c.Domain,
			Username: c.Username,
			Password: password,
		})
	}

	if sp.ResumePath != "" {
		content, err := os.ReadFile(sp.ResumePath)
		if err != nil {
			return domain.Profile{}, fmt.Errorf("read resume: %w", err)
		}
		p.Resume = &domain.ResumeFile{Name: filepath.Base(sp.ResumePath), Content: content}
	}
	return p, nil
}
