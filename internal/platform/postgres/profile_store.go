package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/apply-orchestrator/internal/domain"
	"github.com/phrazzld/apply-orchestrator/internal/platform/logger"
	"github.com/phrazzld/apply-orchestrator/internal/redact"
	"github.com/phrazzld/apply-orchestrator/internal/secrets"
	"github.com/phrazzld/apply-orchestrator/internal/store"
)

// PostgresProfileStore reads applicant profiles and their platform
// credentials. Passwords are stored sealed and opened on read.
type PostgresProfileStore struct {
	db     *sql.DB
	sealer *secrets.Sealer
	logger *slog.Logger
}

// NewPostgresProfileStore creates a new PostgresProfileStore. sealer may be
// nil when no stored password is sealed.
func NewPostgresProfileStore(db *sql.DB, sealer *secrets.Sealer, log *slog.Logger) *PostgresProfileStore {
	if log == nil {
		log = slog.Default()
	}
	return &PostgresProfileStore{
		db:     db,
		sealer: sealer,
		logger: log.With("component", "profile_store"),
	}
}

var _ store.ProfileStore = (*PostgresProfileStore)(nil)

// GetProfile loads the profile owned by ownerID, including credentials and
// the resume file if one is stored.
func (s *PostgresProfileStore) GetProfile(ctx context.Context, ownerID uuid.UUID) (*domain.Profile, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var (
		p                              domain.Profile
		location, headline, summary    sql.NullString
		linkedIn, website, instruction sql.NullString
		skills, experience, education  []byte
		resumeName                     sql.NullString
		resumeContent                  []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT owner_id, first_name, last_name, email, phone, location, headline, summary,
			linkedin_url, website, skills, experience, education, instructions,
			resume_name, resume_content
		FROM profiles
		WHERE owner_id = $1`, ownerID,
	).Scan(
		&p.OwnerID, &p.FirstName, &p.LastName, &p.Email, &p.Phone, &location, &headline, &summary,
		&linkedIn, &website, &skills, &experience, &education, &instruction,
		&resumeName, &resumeContent,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrProfileNotFound
		}
		log.Error("failed to load profile", "owner_id", ownerID, "error", redact.Error(err))
		return nil, store.NewStoreError("profile", "get", "query failed", MapError(err))
	}

	p.Location = location.String
	p.Headline = headline.String
	p.Summary = summary.String
	p.LinkedInURL = linkedIn.String
	p.Website = website.String
	p.Instructions = instruction.String

	if err := decodeJSONColumn(skills, &p.Skills); err != nil {
		return nil, err
	}
	if err := decodeJSONColumn(experience, &p.Experience); err != nil {
		return nil, err
	}
	if err := decodeJSONColumn(education, &p.Education); err != nil {
		return nil, err
	}
	if resumeName.Valid && len(resumeContent) > 0 {
		p.Resume = &domain.ResumeFile{Name: resumeName.String, Content: resumeContent}
	}

	creds, err := s.credentials(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	p.Credentials = creds
	return &p, nil
}

func (s *PostgresProfileStore) credentials(ctx context.Context, ownerID uuid.UUID) ([]domain.PlatformCredential, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	rows, err := s.db.QueryContext(ctx, `
		SELECT platform, domain, username, password_sealed
		FROM platform_credentials
		WHERE owner_id = $1
		ORDER BY platform`, ownerID)
	if err != nil {
		return nil, store.NewStoreError("profile", "credentials", "query failed", MapError(err))
	}
	defer rows.Close()

	var creds []domain.PlatformCredential
	for rows.Next() {
		var (
			c        domain.PlatformCredential
			dom      sql.NullString
			password string
		)
		if err := rows.Scan(&c.Platform, &dom, &c.Username, &password); err != nil {
			return nil, store.NewStoreError("profile", "credentials", "scan failed", err)
		}
		c.Domain = dom.String

		opened, err := s.sealer.Open(password)
		if err != nil {
			// Without the password the username alone is useless to the executor.
			log.Warn("skipping credential that could not be opened",
				"platform", c.Platform,
				"error", redact.Error(err))
			continue
		}
		c.Password = opened
		creds = append(creds, c)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("profile", "credentials", "row iteration failed", MapError(err))
	}
	return creds, nil
}

func decodeJSONColumn(b []byte, dst any) error {
	if len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("decode profile column: %w", err)
	}
	return nil
}
