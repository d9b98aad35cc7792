package submission

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pengajuan-service/internal/config"
	"pengajuan-service/internal/hashing"
	"pengajuan-service/internal/models"
	"pengajuan-service/internal/otp"
	"pengajuan-service/internal/store"
)

type fakeSender struct {
	configured bool
	sentCodes  []string
}

func (f *fakeSender) Configured() bool { return f.configured }

func (f *fakeSender) Send(_ context.Context, _, code string) error {
	f.sentCodes = append(f.sentCodes, code)
	return nil
}

type fakeCommitter struct {
	committed []models.ApplicationForm
	err       error
}

func (f *fakeCommitter) Commit(_ context.Context, form models.ApplicationForm) (*models.SubmissionRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.committed = append(f.committed, form)
	return &models.SubmissionRecord{
		ID:            "id-1",
		ReferenceCode: "REF-20260829-ABCDEF",
		Form:          form,
		Status:        models.StatusPending,
	}, nil
}

func testForm() models.ApplicationForm {
	return models.ApplicationForm{
		FullName:    "Budi Santoso",
		NIK:         "3173051234567890",
		Phone:       "+628123456789",
		Email:       "budi@example.com",
		ProductType: "tabungan-reguler",
	}
}

func newTestStager(t *testing.T, sender otp.CodeSender, committer Committer) (*Stager, DraftStore) {
	t.Helper()

	cfg := &config.Config{
		Abuse: config.AbuseConfig{
			OTPLength: 6,
			OTPTTL:    5 * time.Minute,
		},
		Hashing: config.HashingConfig{
			Argon2MemoryCost:  1024,
			Argon2TimeCost:    1,
			Argon2Parallelism: 1,
		},
	}
	backend := store.NewMemoryStore(time.Minute, time.Minute)
	gateway := otp.NewGateway(cfg, backend, hashing.NewHasher(cfg), sender)
	drafts := NewDraftStore(backend, "session-1", 30*time.Minute)
	return NewStager(drafts, gateway, committer), drafts
}

func TestStageSendsOtpAndPersistsDraft(t *testing.T) {
	sender := &fakeSender{configured: true}
	stager, _ := newTestStager(t, sender, &fakeCommitter{})
	ctx := context.Background()

	result, err := stager.Stage(ctx, testForm(), "+628123456789")
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.Len(t, sender.sentCodes, 1)

	envelope, err := stager.Resume(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateOtpSent, envelope.State)
	assert.Equal(t, "+628123456789", envelope.Draft.Phone)
}

func TestResumeReconstructsDraftWithoutResending(t *testing.T) {
	sender := &fakeSender{configured: true}
	stager, _ := newTestStager(t, sender, &fakeCommitter{})
	ctx := context.Background()

	form := testForm()
	_, err := stager.Stage(ctx, form, form.Phone)
	require.NoError(t, err)

	// Simulate a reload: resume twice, no new code goes out
	for i := 0; i < 2; i++ {
		envelope, err := stager.Resume(ctx)
		require.NoError(t, err)
		assert.Equal(t, StateOtpSent, envelope.State)
		assert.Equal(t, form, envelope.Draft.Payload)
		assert.Equal(t, form.Phone, envelope.Draft.Phone)
	}
	assert.Len(t, sender.sentCodes, 1)
}

func TestStageWithUnconfiguredChannelStaysStaged(t *testing.T) {
	stager, _ := newTestStager(t, &fakeSender{configured: false}, &fakeCommitter{})
	ctx := context.Background()

	result, err := stager.Stage(ctx, testForm(), "+628123456789")
	require.NoError(t, err)
	assert.False(t, result.Success)

	envelope, err := stager.Resume(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateStaged, envelope.State)
}

func TestVerifyThenCommitClearsDraft(t *testing.T) {
	sender := &fakeSender{configured: true}
	committer := &fakeCommitter{}
	stager, drafts := newTestStager(t, sender, committer)
	ctx := context.Background()

	form := testForm()
	_, err := stager.Stage(ctx, form, form.Phone)
	require.NoError(t, err)

	require.NoError(t, stager.Verify(ctx, sender.sentCodes[0]))

	record, err := stager.Commit(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, record.Status)
	require.Len(t, committer.committed, 1)
	assert.Equal(t, form, committer.committed[0])

	// Draft is gone
	envelope, err := drafts.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, envelope)

	_, err = stager.Commit(ctx)
	assert.ErrorIs(t, err, ErrNoDraft)
}

func TestVerifyWithSameCodeAfterSuccessFails(t *testing.T) {
	sender := &fakeSender{configured: true}
	stager, _ := newTestStager(t, sender, &fakeCommitter{})
	ctx := context.Background()

	form := testForm()
	_, err := stager.Stage(ctx, form, form.Phone)
	require.NoError(t, err)

	code := sender.sentCodes[0]
	require.NoError(t, stager.Verify(ctx, code))

	// Challenge was consumed; the draft is already verified
	err = stager.Verify(ctx, code)
	assert.ErrorIs(t, err, ErrDraftNotStaged)
}

func TestCommitBeforeVerifyFails(t *testing.T) {
	sender := &fakeSender{configured: true}
	stager, _ := newTestStager(t, sender, &fakeCommitter{})
	ctx := context.Background()

	_, err := stager.Stage(ctx, testForm(), "+628123456789")
	require.NoError(t, err)

	_, err = stager.Commit(ctx)
	assert.ErrorIs(t, err, ErrDraftNotVerified)
}

func TestCommitFailureAfterClearDoesNotRestoreDraft(t *testing.T) {
	sender := &fakeSender{configured: true}
	committer := &fakeCommitter{err: assert.AnError}
	stager, drafts := newTestStager(t, sender, committer)
	ctx := context.Background()

	form := testForm()
	_, err := stager.Stage(ctx, form, form.Phone)
	require.NoError(t, err)
	require.NoError(t, stager.Verify(ctx, sender.sentCodes[0]))

	_, err = stager.Commit(ctx)
	assert.Error(t, err)

	// The clear happened before the commit attempt; the user re-enters
	envelope, err := drafts.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, envelope)
}

func TestCancelClearsDraft(t *testing.T) {
	sender := &fakeSender{configured: true}
	stager, drafts := newTestStager(t, sender, &fakeCommitter{})
	ctx := context.Background()

	_, err := stager.Stage(ctx, testForm(), "+628123456789")
	require.NoError(t, err)
	require.NoError(t, stager.Cancel(ctx))

	envelope, err := drafts.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, envelope)

	_, err = stager.Resume(ctx)
	assert.ErrorIs(t, err, ErrNoDraft)
}
