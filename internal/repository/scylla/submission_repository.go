package scylla

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"pengajuan-service/internal/models"
	"pengajuan-service/internal/util"
)

// SubmissionRepository persists committed applications. The table is
// partitioned by a murmur3-derived bucket; a small lookup table maps
// the public reference code back to (bucket, id).
type SubmissionRepository struct {
	client *ScyllaClient
}

func NewSubmissionRepository(client *ScyllaClient) *SubmissionRepository {
	return &SubmissionRepository{client: client}
}

func (r *SubmissionRepository) Create(ctx context.Context, record *models.SubmissionRecord) error {
	formJSON, err := json.Marshal(record.Form)
	if err != nil {
		return fmt.Errorf("failed to marshal form: %w", err)
	}

	batch := r.client.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)

	batch.Query(r.client.Prepared.CreateSubmission.Statement(),
		record.Bucket, record.ID, record.ReferenceCode, string(formJSON),
		record.PhoneEncrypted, record.NIKEncrypted, record.KeyID,
		record.Status, record.DecidedBy, record.DecisionNote,
		record.CreatedAt, record.UpdatedAt)

	batch.Query(r.client.Prepared.CreateRefToID.Statement(),
		record.ReferenceCode, record.Bucket, record.ID, record.CreatedAt)

	if err := r.client.Session.ExecuteBatch(batch); err != nil {
		util.Error("Failed to create submission",
			zap.String("id", record.ID),
			zap.Error(err))
		return fmt.Errorf("failed to create submission: %w", err)
	}

	util.Info("Submission created",
		zap.String("id", record.ID),
		zap.String("kode_referensi", record.ReferenceCode),
		zap.Int("bucket", record.Bucket))

	return nil
}

func (r *SubmissionRepository) GetByID(ctx context.Context, bucket int, id string) (*models.SubmissionRecord, error) {
	record := &models.SubmissionRecord{}
	var formJSON string

	query := r.client.Prepared.GetSubmissionByID.Bind(bucket, id).WithContext(ctx)

	err := r.client.ScanWithRetry(query,
		&record.Bucket, &record.ID, &record.ReferenceCode, &formJSON,
		&record.PhoneEncrypted, &record.NIKEncrypted, &record.KeyID,
		&record.Status, &record.DecidedBy, &record.DecisionNote,
		&record.CreatedAt, &record.UpdatedAt)

	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, nil
		}
		util.Error("Failed to get submission",
			zap.String("id", id),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}

	if err := json.Unmarshal([]byte(formJSON), &record.Form); err != nil {
		return nil, fmt.Errorf("failed to unmarshal form: %w", err)
	}

	return record, nil
}

// GetByReferenceCode resolves a public reference code to its record.
func (r *SubmissionRepository) GetByReferenceCode(ctx context.Context, referenceCode string) (*models.SubmissionRecord, error) {
	var bucket int
	var id string

	query := r.client.Prepared.GetIDByReference.Bind(referenceCode).WithContext(ctx)
	if err := r.client.ScanWithRetry(query, &bucket, &id); err != nil {
		if err == gocql.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to resolve reference code: %w", err)
	}

	return r.GetByID(ctx, bucket, id)
}

func (r *SubmissionRepository) UpdateStatus(ctx context.Context, record *models.SubmissionRecord) error {
	query := r.client.Prepared.UpdateStatus.Bind(
		record.Status, record.DecidedBy, record.DecisionNote,
		time.Now().UTC(), record.Bucket, record.ID).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		util.Error("Failed to update submission status",
			zap.String("id", record.ID),
			zap.String("status", record.Status),
			zap.Error(err))
		return fmt.Errorf("failed to update submission status: %w", err)
	}

	util.Info("Submission status updated",
		zap.String("id", record.ID),
		zap.String("status", record.Status))

	return nil
}

// HealthCheck verifies the session is usable.
func (r *SubmissionRepository) HealthCheck(ctx context.Context) error {
	return r.client.HealthCheck()
}
