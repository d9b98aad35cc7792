package submission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pengajuan-service/internal/models"
	"pengajuan-service/internal/otp"
	"pengajuan-service/internal/store"
)

// Draft states. The envelope is a tagged union: exactly one state at a
// time, and resumption is a plain load-and-branch on it.
const (
	StateStaged    = "staged"
	StateOtpSent   = "otp_sent"
	StateVerified  = "verified"
	StateCommitted = "committed"
	StateCancelled = "cancelled"
)

var (
	ErrNoDraft          = errors.New("no staged draft")
	ErrDraftNotStaged   = errors.New("draft is not awaiting otp")
	ErrDraftNotVerified = errors.New("draft is not verified")
)

// Envelope is the persisted draft wrapper. Everything the OTP step
// needs to survive a reload lives here.
type Envelope struct {
	State     string                  `json:"state"`
	Draft     models.StagedSubmission `json:"draft"`
	UpdatedAt time.Time               `json:"updated_at"`
}

// DraftStore persists the envelope between requests. The reference
// deployment keys it per client session; anything that can hold one
// JSON blob works.
type DraftStore interface {
	Save(ctx context.Context, envelope *Envelope) error
	Load(ctx context.Context) (*Envelope, error)
	Clear(ctx context.Context) error
}

// Committer turns a verified draft into a persistent record.
type Committer interface {
	Commit(ctx context.Context, form models.ApplicationForm) (*models.SubmissionRecord, error)
}

// Stager drives the stage -> send OTP -> verify -> commit protocol and
// owns the resumability contract: a reload mid-OTP reconstructs the
// exact draft without re-sending a code.
type Stager struct {
	drafts    DraftStore
	gateway   *otp.Gateway
	committer Committer
}

func NewStager(drafts DraftStore, gateway *otp.Gateway, committer Committer) *Stager {
	return &Stager{
		drafts:    drafts,
		gateway:   gateway,
		committer: committer,
	}
}

// Stage persists the draft, then asks the gateway to send a code. The
// draft is saved before the send so a reload during the send still
// resumes. A soft send failure leaves the draft staged; the user can
// retry from there.
func (s *Stager) Stage(ctx context.Context, payload models.ApplicationForm, phone string) (*otp.Result, error) {
	envelope := &Envelope{
		State: StateStaged,
		Draft: models.StagedSubmission{
			Phone:    phone,
			Payload:  payload,
			StagedAt: time.Now(),
		},
		UpdatedAt: time.Now(),
	}
	if err := s.drafts.Save(ctx, envelope); err != nil {
		return nil, fmt.Errorf("failed to persist draft: %w", err)
	}

	result, err := s.gateway.Send(ctx, phone)
	if err != nil {
		return nil, err
	}

	if result.Success {
		envelope.State = StateOtpSent
		envelope.UpdatedAt = time.Now()
		if err := s.drafts.Save(ctx, envelope); err != nil {
			return nil, fmt.Errorf("failed to persist draft: %w", err)
		}
	}

	return result, nil
}

// Resume reloads the persisted envelope. It never re-sends a code:
// the caller re-opens the OTP entry step when the state is OtpSent.
func (s *Stager) Resume(ctx context.Context) (*Envelope, error) {
	envelope, err := s.drafts.Load(ctx)
	if err != nil {
		return nil, err
	}
	if envelope == nil {
		return nil, ErrNoDraft
	}
	return envelope, nil
}

// Verify forwards the code to the gateway and, on success, marks the
// draft verified so Commit may proceed.
func (s *Stager) Verify(ctx context.Context, code string) error {
	envelope, err := s.Resume(ctx)
	if err != nil {
		return err
	}
	if envelope.State != StateOtpSent {
		return ErrDraftNotStaged
	}

	if err := s.gateway.Verify(ctx, envelope.Draft.Phone, code); err != nil {
		return err
	}

	envelope.State = StateVerified
	envelope.UpdatedAt = time.Now()
	return s.drafts.Save(ctx, envelope)
}

// Commit clears the persisted draft first, then performs the network
// commit. A commit failure after the clear means the user re-enters
// the form; that trade-off is deliberate, the draft must never outlive
// a verified OTP.
func (s *Stager) Commit(ctx context.Context) (*models.SubmissionRecord, error) {
	envelope, err := s.Resume(ctx)
	if err != nil {
		return nil, err
	}
	if envelope.State != StateVerified {
		return nil, ErrDraftNotVerified
	}

	payload := envelope.Draft.Payload
	if err := s.drafts.Clear(ctx); err != nil {
		return nil, fmt.Errorf("failed to clear draft: %w", err)
	}

	return s.committer.Commit(ctx, payload)
}

// Cancel clears the draft without committing. A pending OTP challenge
// is left to expire on its own.
func (s *Stager) Cancel(ctx context.Context) error {
	return s.drafts.Clear(ctx)
}

// storeDraftStore keys one envelope per client session in the shared
// key-value store.
type storeDraftStore struct {
	store     store.Store
	sessionID string
	ttl       time.Duration
}

func NewDraftStore(backend store.Store, sessionID string, ttl time.Duration) DraftStore {
	return &storeDraftStore{
		store:     backend,
		sessionID: sessionID,
		ttl:       ttl,
	}
}

func (d *storeDraftStore) key() string {
	return "draft:" + d.sessionID
}

func (d *storeDraftStore) Save(ctx context.Context, envelope *Envelope) error {
	data, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	return d.store.Set(ctx, d.key(), data, d.ttl)
}

func (d *storeDraftStore) Load(ctx context.Context) (*Envelope, error) {
	data, err := d.store.Get(ctx, d.key())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var envelope Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, err
	}
	return &envelope, nil
}

func (d *storeDraftStore) Clear(ctx context.Context) error {
	return d.store.Delete(ctx, d.key())
}
