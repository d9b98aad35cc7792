package submission

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pengajuan-service/internal/bucketing"
	"pengajuan-service/internal/encryption"
	"pengajuan-service/internal/models"
	"pengajuan-service/internal/util"
)

var (
	ErrRecordNotFound    = errors.New("submission not found")
	ErrInvalidStatus     = errors.New("invalid submission status")
	ErrInvalidTransition = errors.New("submission already decided")
)

// Repository is the persistence boundary for committed records.
type Repository interface {
	Create(ctx context.Context, record *models.SubmissionRecord) error
	GetByID(ctx context.Context, bucket int, id string) (*models.SubmissionRecord, error)
	GetByReferenceCode(ctx context.Context, referenceCode string) (*models.SubmissionRecord, error)
	UpdateStatus(ctx context.Context, record *models.SubmissionRecord) error
}

// Service owns the committed side of an application: creating the
// record after OTP verification and applying staff decisions.
type Service struct {
	repo       Repository
	encryption *encryption.Manager
	bucketing  *bucketing.Manager
}

func NewService(repo Repository, encryptionManager *encryption.Manager, bucketingManager *bucketing.Manager) *Service {
	return &Service{
		repo:       repo,
		encryption: encryptionManager,
		bucketing:  bucketingManager,
	}
}

// Commit persists a verified draft as a pending record. Phone and NIK
// are envelope-encrypted before they leave the process.
func (s *Service) Commit(ctx context.Context, form models.ApplicationForm) (*models.SubmissionRecord, error) {
	id := uuid.New()

	referenceCode, err := generateReferenceCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate reference code: %w", err)
	}

	phoneEnc, err := s.encryptField(ctx, form.Phone)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt phone: %w", err)
	}
	nikEnc, err := s.encryptField(ctx, form.NIK)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt nik: %w", err)
	}

	now := time.Now().UTC()
	record := &models.SubmissionRecord{
		Bucket:         s.bucketing.GetSubmissionBucket(id),
		ID:             id.String(),
		ReferenceCode:  referenceCode,
		Form:           form,
		PhoneEncrypted: phoneEnc,
		NIKEncrypted:   nikEnc,
		Status:         models.StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.repo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to create submission: %w", err)
	}

	util.Info("submission committed",
		zap.String("id", record.ID),
		zap.String("kode_referensi", record.ReferenceCode))

	return record, nil
}

// GetByID loads a record; the partition bucket is derived from the ID.
func (s *Service) GetByID(ctx context.Context, id string) (*models.SubmissionRecord, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrRecordNotFound
	}

	record, err := s.repo.GetByID(ctx, s.bucketing.GetSubmissionBucket(parsed), id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrRecordNotFound
	}
	return record, nil
}

// GetByReference resolves the public reference code handed to the
// applicant at commit time.
func (s *Service) GetByReference(ctx context.Context, referenceCode string) (*models.SubmissionRecord, error) {
	record, err := s.repo.GetByReferenceCode(ctx, referenceCode)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrRecordNotFound
	}
	return record, nil
}

// UpdateStatus applies a staff decision. Only a pending record may
// move, and only to approved or rejected.
func (s *Service) UpdateStatus(ctx context.Context, id, status, decidedBy, note string) (*models.SubmissionRecord, error) {
	if status != models.StatusApproved && status != models.StatusRejected {
		return nil, ErrInvalidStatus
	}

	record, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if record.Status != models.StatusPending {
		return nil, ErrInvalidTransition
	}

	record.Status = status
	record.DecidedBy = decidedBy
	record.DecisionNote = note
	record.UpdatedAt = time.Now().UTC()

	if err := s.repo.UpdateStatus(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to update submission status: %w", err)
	}

	util.Info("submission status updated",
		zap.String("id", record.ID),
		zap.String("status", status))

	return record, nil
}

func (s *Service) encryptField(ctx context.Context, value string) ([]byte, error) {
	encrypted, err := s.encryption.EncryptField(ctx, value)
	if err != nil {
		return nil, err
	}
	return json.Marshal(encrypted)
}

// DecryptPhone recovers the applicant phone number for notification
// delivery.
func (s *Service) DecryptPhone(ctx context.Context, record *models.SubmissionRecord) (string, error) {
	var encrypted encryption.EncryptedData
	if err := json.Unmarshal(record.PhoneEncrypted, &encrypted); err != nil {
		return "", fmt.Errorf("invalid encrypted phone payload: %w", err)
	}
	return s.encryption.DecryptField(ctx, &encrypted)
}

const referenceAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// generateReferenceCode builds REF-YYYYMMDD-XXXXXX with an unambiguous
// alphabet (no O/0, I/1).
func generateReferenceCode() (string, error) {
	suffix := make([]byte, 6)
	for i := range suffix {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(referenceAlphabet))))
		if err != nil {
			return "", err
		}
		suffix[i] = referenceAlphabet[n.Int64()]
	}
	return fmt.Sprintf("REF-%s-%s", time.Now().UTC().Format("20060102"), suffix), nil
}
