package domain

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Profile is the applicant data read from the profile store.
type Profile struct {
	OwnerID      uuid.UUID            `json:"owner_id"`
	FirstName    string               `json:"first_name"    validate:"required"`
	LastName     string               `json:"last_name"     validate:"required"`
	Email        string               `json:"email"         validate:"required"`
	Phone        string               `json:"phone"         validate:"required"`
	Location     string               `json:"location,omitempty"`
	Headline     string               `json:"headline,omitempty"`
	Summary      string               `json:"summary,omitempty"`
	LinkedInURL  string               `json:"linkedin_url,omitempty"`
	Website      string               `json:"website,omitempty"`
	Skills       []string             `json:"skills,omitempty"`
	Experience   []Experience         `json:"experience,omitempty"`
	Education    []Education          `json:"education,omitempty"`
	Credentials  []PlatformCredential `json:"-"`
	Instructions string               `json:"instructions,omitempty"`
	Resume       *ResumeFile          `json:"-"`
}

// Experience is one employment entry.
type Experience struct {
	Title     string `json:"title" yaml:"title"`
	Company   string `json:"company" yaml:"company"`
	StartDate string `json:"start_date,omitempty" yaml:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty" yaml:"end_date,omitempty"`
	Summary   string `json:"summary,omitempty" yaml:"summary,omitempty"`
}

// Education is one education entry.
type Education struct {
	School string `json:"school" yaml:"school"`
	Degree string `json:"degree,omitempty" yaml:"degree,omitempty"`
	Field  string `json:"field,omitempty" yaml:"field,omitempty"`
	Year   string `json:"year,omitempty" yaml:"year,omitempty"`
}

// PlatformCredential is a username/password pair for one job platform.
// Domain overrides the built-in platform table when set.
type PlatformCredential struct {
	Platform string
	Domain   string
	Username string
	Password string
}

// ResumeFile is the optional resume attached to a profile.
type ResumeFile struct {
	Name    string
	Content []byte
}

// FullName joins the non-empty name parts.
func (p *Profile) FullName() string {
	return strings.TrimSpace(strings.Join([]string{p.FirstName, p.LastName}, " "))
}

// Job is the job metadata read from the job store.
type Job struct {
	ID          string `json:"id" yaml:"id"`
	Title       string `json:"title,omitempty" yaml:"title,omitempty"`
	Company     string `json:"company,omitempty" yaml:"company,omitempty"`
	Location    string `json:"location,omitempty" yaml:"location,omitempty"`
	URL         string `json:"url" yaml:"url"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

var (
	profileValidatorOnce sync.Once
	profileValidator     *validator.Validate
)

func getProfileValidator() *validator.Validate {
	profileValidatorOnce.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		profileValidator = v
	})
	return profileValidator
}

// CheckRequired returns an *IncompleteProfileError naming every required
// field that is empty, or nil when the profile is complete. Whitespace-only
// values count as empty.
func (p *Profile) CheckRequired() error {
	trimmed := *p
	trimmed.FirstName = strings.TrimSpace(p.FirstName)
	trimmed.LastName = strings.TrimSpace(p.LastName)
	trimmed.Email = strings.TrimSpace(p.Email)
	trimmed.Phone = strings.TrimSpace(p.Phone)

	err := getProfileValidator().Struct(&trimmed)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	missing := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		missing = append(missing, fe.Field())
	}
	return &IncompleteProfileError{Missing: missing}
}
