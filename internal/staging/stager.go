// Package staging turns a local file into an object addressable by one remote
// executor session: request an upload slot, then push the bytes to it.
//
// Staging is a side channel. Callers that must not fail on it use
// StageBestEffort, which logs the failure and yields no artifact.
package staging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/phrazzld/apply-orchestrator/internal/domain"
	"github.com/phrazzld/apply-orchestrator/internal/platform/executor"
	"github.com/phrazzld/apply-orchestrator/internal/platform/logger"
	"github.com/phrazzld/apply-orchestrator/internal/redact"
)

// Stage names reported in StagingError.
const (
	StageValidate    = "validate"
	StageRequestSlot = "request_slot"
	StageUpload      = "upload"
)

// DefaultContentType is used for any extension other than .pdf and .txt.
const DefaultContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// ErrEmptyArtifact is returned when there is nothing to stage.
var ErrEmptyArtifact = errors.New("artifact has no content or name")

// StagingError reports which step of staging failed.
type StagingError struct {
	Stage string
	Err   error
}

func (e *StagingError) Error() string {
	return fmt.Sprintf("staging failed at %s: %v", e.Stage, e.Err)
}

func (e *StagingError) Unwrap() error { return e.Err }

// Uploader is the subset of the executor client used for staging.
type Uploader interface {
	RequestUploadSlot(ctx context.Context, sessionID string, req executor.UploadSlotRequest) (executor.UploadSlot, error)
	UploadFile(ctx context.Context, slot executor.UploadSlot, contentType string, content []byte) error
}

// FailureRecorder counts staging failures by stage.
type FailureRecorder interface {
	StagingFailed(stage string)
}

// Stager stages artifacts into executor sessions.
type Stager struct {
	uploader Uploader
	recorder FailureRecorder
	logger   *slog.Logger
}

// NewStager creates a Stager. recorder may be nil.
func NewStager(uploader Uploader, recorder FailureRecorder, log *slog.Logger) *Stager {
	if log == nil {
		log = slog.Default()
	}
	return &Stager{
		uploader: uploader,
		recorder: recorder,
		logger:   log.With("component", "artifact_stager"),
	}
}

// ContentTypeFor infers the upload content type from the file extension.
func ContentTypeFor(fileName string) string {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf":
		return "application/pdf"
	case ".txt":
		return "text/plain"
	default:
		return DefaultContentType
	}
}

// Stage uploads content into sessionID. Any error is a *StagingError.
func (s *Stager) Stage(ctx context.Context, sessionID string, content []byte, fileName string) (*domain.ArtifactReference, error) {
	if len(content) == 0 || strings.TrimSpace(fileName) == "" || sessionID == "" {
		return nil, s.fail(StageValidate, ErrEmptyArtifact)
	}

	contentType := ContentTypeFor(fileName)
	slot, err := s.uploader.RequestUploadSlot(ctx, sessionID, executor.UploadSlotRequest{
		FileName:    fileName,
		ContentType: contentType,
		SizeBytes:   int64(len(content)),
	})
	if err != nil {
		return nil, s.fail(StageRequestSlot, err)
	}

	if err := s.uploader.UploadFile(ctx, slot, contentType, content); err != nil {
		return nil, s.fail(StageUpload, err)
	}

	return &domain.ArtifactReference{
		SessionID:   sessionID,
		RemoteName:  slot.FileName,
		ContentType: contentType,
		SizeBytes:   int64(len(content)),
	}, nil
}

// StageBestEffort calls Stage and swallows any failure after logging it. A
// nil result means the submission proceeds without an artifact.
func (s *Stager) StageBestEffort(ctx context.Context, sessionID string, content []byte, fileName string) *domain.ArtifactReference {
	ref, err := s.Stage(ctx, sessionID, content, fileName)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Warn("artifact staging failed, continuing without artifact",
			"session_id", sessionID,
			"error", redact.Error(err))
		return nil
	}
	return ref
}

func (s *Stager) fail(stage string, err error) *StagingError {
	if s.recorder != nil {
		s.recorder.StagingFailed(stage)
	}
	return &StagingError{Stage: stage, Err: err}
}
