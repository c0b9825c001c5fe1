package registry

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"death2data.org/internal/fingerprint"
	"death2data.org/internal/usage"
)

// Verification reasons. Verify is a pure hash-equality test, not a signature
// check.
const (
	ReasonMatch    = "file matches registered fingerprint"
	ReasonMismatch = "file has been modified (fingerprint mismatch)"
	ReasonNotFound = "uuid not found"
)

// RegisterRequest describes one registration attempt.
type RegisterRequest struct {
	Path    string
	OwnerID string
	Tier    string
	License string
	Tags    string
	Notes   string
	// Auto marks watch-triggered registrations, which never count against
	// quota.
	Auto bool
}

// IDFunc issues a fresh content identifier.
type IDFunc func() string

// Service orchestrates registration: validate input, reserve quota, compute
// fingerprint, persist, and surface errors per the taxonomy (ErrNotFound,
// QuotaExceededError, ErrConflict, fingerprint.ErrUnreadable).
type Service struct {
	store    Store
	meter    *usage.Meter
	engine   *fingerprint.Engine
	licenses LicenseCatalog
	newID    IDFunc
	now      func() time.Time
}

// NewService constructs the registration service. The license catalog and
// the meter's tier limits are immutable configuration.
func NewService(store Store, meter *usage.Meter, engine *fingerprint.Engine, licenses LicenseCatalog, newID IDFunc) *Service {
	return &Service{
		store:    store,
		meter:    meter,
		engine:   engine,
		licenses: licenses,
		newID:    newID,
		now:      time.Now,
	}
}

// WithClock overrides the wall clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Register runs the registration state machine and returns the stored
// record. Quota is reserved atomically before any persistence; a failure on
// a later step releases the reserved unit within the same invocation, so no
// failure path leaves a partial record or a stray counter increment.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (Record, error) {
	// The input source must exist before anything is charged.
	info, err := os.Stat(req.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Record{}, ErrNotFound
		}
		return Record{}, fingerprint.ErrUnreadable
	}
	if info.IsDir() {
		return Record{}, fingerprint.ErrUnreadable
	}

	license := strings.TrimSpace(req.License)
	if license == "" {
		license = DefaultLicense
	}
	if !s.licenses.Knows(license) {
		return Record{}, ErrUnknownLicense
	}

	// Explicit registrations reserve one monthly quota unit atomically;
	// auto registrations are exempt.
	reserved := false
	if !req.Auto {
		ok, limit, err := s.meter.Reserve(ctx, req.OwnerID, req.Tier, usage.ActionRegistrations)
		if err != nil {
			return Record{}, err
		}
		if !ok {
			return Record{}, &QuotaExceededError{Limit: limit}
		}
		reserved = true
	}
	release := func() {
		if reserved {
			_ = s.meter.Release(ctx, req.OwnerID, usage.ActionRegistrations)
		}
	}

	digest, size, err := s.engine.File(ctx, req.Path)
	if err != nil {
		release()
		return Record{}, err
	}

	rec := Record{
		ID:           s.newID(),
		Fingerprint:  digest,
		Filename:     filepath.Base(req.Path),
		Filepath:     req.Path,
		Filesize:     size,
		OwnerID:      req.OwnerID,
		License:      license,
		Tags:         strings.TrimSpace(req.Tags),
		Notes:        req.Notes,
		Auto:         req.Auto,
		RegisteredAt: s.now().UTC(),
	}
	if err := s.store.Create(ctx, rec); err != nil {
		release()
		return Record{}, err
	}

	return rec, nil
}

// MetadataRequest registers an artifact with no backing file; the
// fingerprint is derived from the descriptive metadata instead.
type MetadataRequest struct {
	Title       string
	Description string
	OwnerID     string
	Tier        string
	License     string
	Tags        string
}

// RegisterMetadata registers descriptive metadata under the same monthly
// quota as file registrations. The digest is computed from the title and
// description alone so recomputation from the same input always matches.
func (s *Service) RegisterMetadata(ctx context.Context, req MetadataRequest) (Record, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return Record{}, ErrInvalidInput
	}

	license := strings.TrimSpace(req.License)
	if license == "" {
		license = DefaultLicense
	}
	if !s.licenses.Knows(license) {
		return Record{}, ErrUnknownLicense
	}

	ok, limit, err := s.meter.Reserve(ctx, req.OwnerID, req.Tier, usage.ActionRegistrations)
	if err != nil {
		return Record{}, err
	}
	if !ok {
		return Record{}, &QuotaExceededError{Limit: limit}
	}

	rec := Record{
		ID:           s.newID(),
		Fingerprint:  s.engine.Bytes([]byte(title + "\x00" + req.Description)),
		Filename:     title,
		OwnerID:      req.OwnerID,
		License:      license,
		Tags:         strings.TrimSpace(req.Tags),
		Notes:        req.Description,
		RegisteredAt: s.now().UTC(),
	}
	if err := s.store.Create(ctx, rec); err != nil {
		_ = s.meter.Release(ctx, req.OwnerID, usage.ActionRegistrations)
		return Record{}, err
	}
	return rec, nil
}

// Get returns a record by identifier.
func (s *Service) Get(ctx context.Context, id string) (Record, error) {
	return s.store.GetByID(ctx, id)
}

// ListByOwner returns the owner's records, newest first.
func (s *Service) ListByOwner(ctx context.Context, ownerID string, limit int) ([]Record, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	return s.store.ListByOwner(ctx, ownerID, limit)
}

// DeleteByOwner removes every record the user owns as part of account
// deletion.
func (s *Service) DeleteByOwner(ctx context.Context, ownerID string) error {
	return s.store.DeleteByOwner(ctx, ownerID)
}

// Count returns the total number of registered records.
func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.store.Count(ctx)
}

// Verify recomputes the fingerprint of the candidate file and compares it
// byte-for-byte against the stored one. An unknown identifier yields
// (false, ReasonNotFound, nil); only I/O failures surface as errors.
func (s *Service) Verify(ctx context.Context, id, candidatePath string) (bool, string, error) {
	rec, err := s.store.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, ReasonNotFound, nil
	}
	if err != nil {
		return false, "", err
	}

	digest, _, err := s.engine.File(ctx, candidatePath)
	if err != nil {
		return false, "", err
	}
	if digest != rec.Fingerprint {
		return false, ReasonMismatch, nil
	}
	return true, ReasonMatch, nil
}
