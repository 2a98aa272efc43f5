package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"filippo.io/age"
	"github.com/google/uuid"
	"github.com/phrazzld/apply-orchestrator/internal/secrets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestSeed_LoadAndApply(t *testing.T) {
	dir := t.TempDir()
	ownerID := uuid.New()

	identity, err := age.GenerateX25519Identity()
	require.NoError(t, err)
	sealer := secrets.NewSealer(identity)
	sealed, err := sealer.Seal("hunter2")
	require.NoError(t, err)

	writeFile(t, dir, "resume.pdf", "%PDF-1.4 resume")
	path := writeFile(t, dir, "seed.yaml", `
profiles:
  - owner_id: `+ownerID.String()+`
    first_name: Ada
    last_name: Lovelace
    email: ada@example.com
    phone: "+44 20 7946 0000"
    skills: [go, postgres]
    experience:
      - title: Engineer
        company: Analytical Engines
        start_date: "1842"
    resume_path: resume.pdf
    credentials:
      - platform: greenhouse
        username: ada
        password: "`+sealed+`"
      - platform: custom
        domain: jobs.example.com
        username: ada
        password: plain-text
jobs:
  - id: job-1
    title: Engineer
    url: https://boards.greenhouse.io/acme/jobs/1
`)

	seed, err := LoadSeedFile(path)
	require.NoError(t, err)
	require.Len(t, seed.Profiles, 1)
	assert.Equal(t, filepath.Join(dir, "resume.pdf"), seed.Profiles[0].ResumePath)

	profiles := NewProfileStore()
	jobs := NewJobStore()
	require.NoError(t, seed.Apply(profiles, jobs, sealer))

	p, err := profiles.GetProfile(context.Background(), ownerID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", p.FirstName)
	assert.Equal(t, []string{"go", "postgres"}, p.Skills)
	require.Len(t, p.Experience, 1)
	assert.Equal(t, "1842", p.Experience[0].StartDate)
	require.Len(t, p.Credentials, 2)
	assert.Equal(t, "hunter2", p.Credentials[0].Password)
	assert.Equal(t, "plain-text", p.Credentials[1].Password)
	assert.Equal(t, "jobs.example.com", p.Credentials[1].Domain)
	require.NotNil(t, p.Resume)
	assert.Equal(t, "resume.pdf", p.Resume.Name)
	assert.Equal(t, "%PDF-1.4 resume", string(p.Resume.Content))
	assert.NoError(t, p.CheckRequired())

	job, err := jobs.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, "https://boards.greenhouse.io/acme/jobs/1", job.URL)
}

func TestSeed_SealedPasswordNeedsIdentity(t *testing.T) {
	identity, err := age.GenerateX25519Identity()
	require.NoError(t, err)
	sealed, err := secrets.NewSealer(identity).Seal("hunter2")
	require.NoError(t, err)

	seed := &Seed{Profiles: []SeedProfile{{
		OwnerID:     uuid.NewString(),
		Credentials: []SeedCredential{{Platform: "lever", Username: "u", Password: sealed}},
	}}}

	err = seed.Apply(NewProfileStore(), NewJobStore(), nil)
	assert.ErrorIs(t, err, secrets.ErrNoIdentity)
}

func TestLoadSeedFile_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadSeedFile("")
	assert.Error(t, err)

	_, err = LoadSeedFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadSeedFile(writeFile(t, dir, "bad.yaml", "profiles: [oops"))
	assert.Error(t, err)

	_, err = LoadSeedFile(writeFile(t, dir, "nojob.yaml", "jobs:\n  - url: https://x\n"))
	assert.ErrorContains(t, err, "has no id")

	seed := &Seed{Profiles: []SeedProfile{{OwnerID: "not-a-uuid"}}}
	assert.Error(t, seed.Apply(NewProfileStore(), NewJobStore(), nil))
}
