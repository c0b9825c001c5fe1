package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"death2data.org/internal/fingerprint"
	"death2data.org/internal/ids"
	"death2data.org/internal/usage"
)

func newTestService(t *testing.T, limits usage.Limits) (*Service, *InMemory) {
	t.Helper()
	store := NewInMemory(nil)
	meter := usage.NewMeter(usage.NewInMemory(), limits)
	svc := NewService(store, meter, fingerprint.New(), DefaultLicenses(), ids.NewContentID)
	return svc, store
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestRegisterReturnsRecordWithIndependentDigest(t *testing.T) {
	svc, _ := newTestService(t, usage.Limits{"free": {usage.ActionRegistrations: 10}})

	data := make([]byte, 500000)
	for i := range data {
		data[i] = byte(i % 251)
	}
	path := writeFile(t, "report.pdf", data)

	rec, err := svc.Register(context.Background(), RegisterRequest{
		Path:    path,
		OwnerID: "u1",
		Tier:    "free",
		License: "MIT",
	})
	require.NoError(t, err)

	sum := sha256.Sum256(data)
	assert.Equal(t, hex.EncodeToString(sum[:]), rec.Fingerprint)
	assert.Equal(t, int64(500000), rec.Filesize)
	assert.Equal(t, "MIT", rec.License)
	assert.Equal(t, "report.pdf", rec.Filename)
	assert.Len(t, rec.ID, 36, "canonical hyphenated uuid")

	got, err := svc.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Fingerprint, got.Fingerprint)
	assert.Equal(t, int64(500000), got.Filesize)
}

func TestRegisterMissingFile(t *testing.T) {
	svc, _ := newTestService(t, usage.DefaultLimits())

	_, err := svc.Register(context.Background(), RegisterRequest{
		Path:    filepath.Join(t.TempDir(), "nope.bin"),
		OwnerID: "u1",
		Tier:    "free",
	})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRegisterDefaultsAndRejectsLicense(t *testing.T) {
	svc, _ := newTestService(t, usage.DefaultLimits())
	path := writeFile(t, "a.txt", []byte("hello"))

	rec, err := svc.Register(context.Background(), RegisterRequest{
		Path: path, OwnerID: "u1", Tier: "free",
	})
	require.NoError(t, err)
	assert.Equal(t, DefaultLicense, rec.License)

	_, err = svc.Register(context.Background(), RegisterRequest{
		Path: path, OwnerID: "u1", Tier: "free", License: "WTFPL",
	})
	require.ErrorIs(t, err, ErrUnknownLicense)
}

func TestMonthlyQuotaEnforcedOnEleventh(t *testing.T) {
	svc, _ := newTestService(t, usage.Limits{"free": {usage.ActionRegistrations: 10}})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		path := writeFile(t, fmt.Sprintf("f%d.txt", i), []byte(fmt.Sprintf("content %d", i)))
		_, err := svc.Register(ctx, RegisterRequest{Path: path, OwnerID: "u1", Tier: "free"})
		require.NoError(t, err, "registration %d should fit the quota", i+1)
	}

	path := writeFile(t, "f10.txt", []byte("one too many"))
	_, err := svc.Register(ctx, RegisterRequest{Path: path, OwnerID: "u1", Tier: "free"})

	var qe *QuotaExceededError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, 10, qe.Limit)
	assert.Contains(t, err.Error(), "10")
}

func TestAutoRegistrationsBypassQuota(t *testing.T) {
	svc, _ := newTestService(t, usage.Limits{"free": {usage.ActionRegistrations: 1}})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		path := writeFile(t, fmt.Sprintf("w%d.txt", i), []byte(fmt.Sprintf("watched %d", i)))
		_, err := svc.Register(ctx, RegisterRequest{Path: path, OwnerID: "u1", Tier: "free", Auto: true})
		require.NoError(t, err)
	}

	// The explicit budget of 1 is untouched by the auto registrations.
	path := writeFile(t, "explicit.txt", []byte("explicit"))
	_, err := svc.Register(ctx, RegisterRequest{Path: path, OwnerID: "u1", Tier: "free"})
	require.NoError(t, err)
}

func TestFailedPersistReleasesQuota(t *testing.T) {
	store := &failingStore{fail: true, inner: NewInMemory(nil)}
	meter := usage.NewMeter(usage.NewInMemory(), usage.Limits{"free": {usage.ActionRegistrations: 1}})
	svc := NewService(store, meter, fingerprint.New(), DefaultLicenses(), ids.NewContentID)
	ctx := context.Background()

	path := writeFile(t, "a.txt", []byte("a"))
	_, err := svc.Register(ctx, RegisterRequest{Path: path, OwnerID: "u1", Tier: "free"})
	require.Error(t, err)

	// The reserved unit was released; the single-slot quota is still usable.
	store.fail = false
	_, err = svc.Register(ctx, RegisterRequest{Path: path, OwnerID: "u1", Tier: "free"})
	require.NoError(t, err)
}

func TestVerify(t *testing.T) {
	svc, _ := newTestService(t, usage.DefaultLimits())
	ctx := context.Background()

	original := []byte("original content")
	path := writeFile(t, "doc.txt", original)

	rec, err := svc.Register(ctx, RegisterRequest{Path: path, OwnerID: "u1", Tier: "free"})
	require.NoError(t, err)

	ok, reason, err := svc.Verify(ctx, rec.ID, path)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ReasonMatch, reason)

	altered := writeFile(t, "doc2.txt", []byte("original content, altered"))
	ok, reason, err = svc.Verify(ctx, rec.ID, altered)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, reason, "modified")

	ok, reason, err = svc.Verify(ctx, "00000000-0000-4000-8000-000000000000", path)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, ReasonNotFound, reason)
}

func TestListByOwnerNewestFirst(t *testing.T) {
	svc, _ := newTestService(t, usage.DefaultLimits())
	ctx := context.Background()

	base := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Hour)
		svc.WithClock(func() time.Time { return at })
		path := writeFile(t, fmt.Sprintf("n%d.txt", i), []byte(fmt.Sprintf("n%d", i)))
		_, err := svc.Register(ctx, RegisterRequest{Path: path, OwnerID: "u1", Tier: "free"})
		require.NoError(t, err)
	}

	recs, err := svc.ListByOwner(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "n2.txt", recs[0].Filename)
	assert.Equal(t, "n0.txt", recs[2].Filename)
}

// failingStore rejects inserts while fail is set, delegating everything else
// to a real in-memory store.
type failingStore struct {
	fail  bool
	inner *InMemory
}

var _ Store = (*failingStore)(nil)

func (s *failingStore) Create(ctx context.Context, rec Record) error {
	if s.fail {
		return errors.New("storage down")
	}
	return s.inner.Create(ctx, rec)
}

func (s *failingStore) GetByID(ctx context.Context, id string) (Record, error) {
	return s.inner.GetByID(ctx, id)
}

func (s *failingStore) ListByOwner(ctx context.Context, ownerID string, limit int) ([]Record, error) {
	return s.inner.ListByOwner(ctx, ownerID, limit)
}

func (s *failingStore) DeleteByOwner(ctx context.Context, ownerID string) error {
	return s.inner.DeleteByOwner(ctx, ownerID)
}

func (s *failingStore) Count(ctx context.Context) (int64, error) {
	return s.inner.Count(ctx)
}
