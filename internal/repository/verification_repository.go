package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/trustvault/internal/logging"
)

// VerificationRecord is a persisted, fully scored verification request. The
// breakdown, reasons, and flags are stored as JSON text so a record is a
// complete audit trail on its own.
type VerificationRecord struct {
	ID         uint      `gorm:"primaryKey"`
	RequestID  string    `gorm:"column:request_id;uniqueIndex;size:64"`
	SubjectID  string    `gorm:"column:subject_id;index;size:64"`
	Score      float64   `gorm:"column:score"`
	Decision   string    `gorm:"column:decision;size:32"`
	Confidence string    `gorm:"column:confidence;size:16"`
	Breakdown  string    `gorm:"column:breakdown;type:text"`
	Reasons    string    `gorm:"column:reasons;type:text"`
	Flags      string    `gorm:"column:flags;type:text"`
	// FaceHash is the privacy-preserving embedding digest used for
	// duplicate-identity lookups; the biometric itself is never stored.
	FaceHash   string    `gorm:"column:face_hash;index;size:128"`
	LatencyMs  int64     `gorm:"column:latency_ms"`
	CreatedAt  time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (VerificationRecord) TableName() string {
	return "verification_records"
}

// MetricsAggregation holds the raw aggregates behind the metrics endpoint.
type MetricsAggregation struct {
	TotalCount        int64
	AutoVerifiedCount int64
	ManualReviewCount int64
	RejectedCount     int64
	AverageScore      float64
	AverageLatencyMs  float64
}

// VerificationRepository provides persistence APIs for verification records.
// Transient database errors are retried with capped exponential backoff.
type VerificationRepository struct {
	db             *gorm.DB
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewVerificationRepository creates a new repository instance.
func NewVerificationRepository(db *gorm.DB, logger *zap.Logger) *VerificationRepository {
	return &VerificationRepository{
		db:             db,
		logger:         logger.Named("verification_repository"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// AutoMigrate ensures the schema is available.
func (r *VerificationRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&VerificationRecord{})
}

// SaveRecord persists a scored verification.
func (r *VerificationRepository) SaveRecord(ctx context.Context, record *VerificationRecord) error {
	return r.executeWithRetry(ctx, "repository.save_record", record.RequestID, func() error {
		return r.db.WithContext(ctx).Create(record).Error
	})
}

// FindByRequestIDAndSubject retrieves a record matching the request and owner.
func (r *VerificationRepository) FindByRequestIDAndSubject(ctx context.Context, requestID, subjectID string) (*VerificationRecord, error) {
	var record VerificationRecord
	err := r.executeWithRetry(ctx, "repository.find_record", requestID, func() error {
		return r.db.WithContext(ctx).First(&record, "request_id = ? AND subject_id = ?", requestID, subjectID).Error
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// CountDuplicatesByFaceHash counts prior records from other subjects whose
// face hash matches, which is the duplicate-identity signal.
func (r *VerificationRepository) CountDuplicatesByFaceHash(ctx context.Context, subjectID, faceHash string) (int64, error) {
	if faceHash == "" {
		return 0, nil
	}
	var count int64
	err := r.executeWithRetry(ctx, "repository.count_duplicates", "", func() error {
		return r.db.WithContext(ctx).
			Model(&VerificationRecord{}).
			Where("face_hash = ? AND subject_id <> ?", faceHash, subjectID).
			Count(&count).Error
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// AggregateMetrics computes the verification metrics summary source data.
func (r *VerificationRepository) AggregateMetrics(ctx context.Context) (*MetricsAggregation, error) {
	var agg MetricsAggregation
	err := r.executeWithRetry(ctx, "repository.aggregate_metrics", "", func() error {
		row := r.db.WithContext(ctx).
			Model(&VerificationRecord{}).
			Select(
				"COUNT(*) AS total_count",
				"COUNT(*) FILTER (WHERE decision = 'auto_verified') AS auto_verified_count",
				"COUNT(*) FILTER (WHERE decision = 'manual_review') AS manual_review_count",
				"COUNT(*) FILTER (WHERE decision = 'rejected') AS rejected_count",
				"COALESCE(AVG(score), 0) AS average_score",
				"COALESCE(AVG(latency_ms), 0) AS average_latency_ms",
			).Row()
		return row.Scan(
			&agg.TotalCount,
			&agg.AutoVerifiedCount,
			&agg.ManualReviewCount,
			&agg.RejectedCount,
			&agg.AverageScore,
			&agg.AverageLatencyMs,
		)
	})
	if err != nil {
		return nil, err
	}
	return &agg, nil
}

func (r *VerificationRepository) executeWithRetry(ctx context.Context, operation, requestID string, fn func() error) error {
	opLogger := logging.WithOperation(r.logger, operation, requestID)
	backoff := r.initialBackoff

	var err error
	for attempt := 0; attempt < r.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= r.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("database operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !isTransientError(err) || attempt == r.retryAttempts-1 {
			opLogger.Error("database operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient database error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return true
	}
	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}
	return false
}
