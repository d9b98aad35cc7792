package submission

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pengajuan-service/internal/bucketing"
	"pengajuan-service/internal/config"
	"pengajuan-service/internal/encryption"
	"pengajuan-service/internal/models"
)

type fakeRepo struct {
	records map[string]*models.SubmissionRecord
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{records: make(map[string]*models.SubmissionRecord)}
}

func (f *fakeRepo) Create(_ context.Context, record *models.SubmissionRecord) error {
	clone := *record
	f.records[record.ID] = &clone
	return nil
}

func (f *fakeRepo) GetByID(_ context.Context, _ int, id string) (*models.SubmissionRecord, error) {
	record, ok := f.records[id]
	if !ok {
		return nil, nil
	}
	clone := *record
	return &clone, nil
}

func (f *fakeRepo) GetByReferenceCode(_ context.Context, referenceCode string) (*models.SubmissionRecord, error) {
	for _, record := range f.records {
		if record.ReferenceCode == referenceCode {
			clone := *record
			return &clone, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) UpdateStatus(_ context.Context, record *models.SubmissionRecord) error {
	stored, ok := f.records[record.ID]
	if !ok {
		return ErrRecordNotFound
	}
	stored.Status = record.Status
	stored.DecidedBy = record.DecidedBy
	stored.DecisionNote = record.DecisionNote
	stored.UpdatedAt = record.UpdatedAt
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeRepo) {
	t.Helper()

	cfg := &config.Config{
		Bucketing: config.BucketingConfig{
			SubmissionBuckets: 64,
			EventBuckets:      32,
		},
	}
	repo := newFakeRepo()
	svc := NewService(repo, encryption.NewManager(cfg, nil), bucketing.NewManager(cfg))
	return svc, repo
}

func TestCommitCreatesPendingRecord(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	record, err := svc.Commit(ctx, testForm())
	require.NoError(t, err)

	assert.Equal(t, models.StatusPending, record.Status)
	assert.Regexp(t, regexp.MustCompile(`^REF-\d{8}-[A-Z2-9]{6}$`), record.ReferenceCode)
	assert.NotEmpty(t, record.PhoneEncrypted)
	assert.NotEmpty(t, record.NIKEncrypted)
	assert.Contains(t, repo.records, record.ID)

	// Encrypted fields must not carry the plaintext
	assert.NotContains(t, string(record.PhoneEncrypted), testForm().Phone)
	assert.NotContains(t, string(record.NIKEncrypted), testForm().NIK)
}

func TestDecryptPhoneRoundTrip(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	record, err := svc.Commit(ctx, testForm())
	require.NoError(t, err)

	phone, err := svc.DecryptPhone(ctx, record)
	require.NoError(t, err)
	assert.Equal(t, testForm().Phone, phone)
}

func TestUpdateStatusApprove(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	record, err := svc.Commit(ctx, testForm())
	require.NoError(t, err)

	updated, err := svc.UpdateStatus(ctx, record.ID, models.StatusApproved, "admin-1", "lengkap")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, updated.Status)
	assert.Equal(t, "admin-1", updated.DecidedBy)

	got, err := svc.GetByID(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, got.Status)
}

func TestUpdateStatusRejectsSecondDecision(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	record, err := svc.Commit(ctx, testForm())
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, record.ID, models.StatusRejected, "admin-1", "")
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, record.ID, models.StatusApproved, "admin-2", "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestUpdateStatusValidatesInput(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	record, err := svc.Commit(ctx, testForm())
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, record.ID, "pending", "admin-1", "")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = svc.UpdateStatus(ctx, record.ID, "archived", "admin-1", "")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestGetByReference(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	record, err := svc.Commit(ctx, testForm())
	require.NoError(t, err)

	got, err := svc.GetByReference(ctx, record.ReferenceCode)
	require.NoError(t, err)
	assert.Equal(t, record.ID, got.ID)

	_, err = svc.GetByReference(ctx, "REF-20260101-ZZZZZZ")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestGetByIDUnknown(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.GetByID(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, ErrRecordNotFound)

	_, err = svc.GetByID(context.Background(), "8b2af0f5-54f4-4a6b-9d3c-111111111111")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}
