package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/trustvault/internal/inference"
	"github.com/example/trustvault/internal/logging"
	"github.com/example/trustvault/internal/repository"
	"github.com/example/trustvault/internal/trustscore"
	"github.com/example/trustvault/internal/webhook"
)

// VerificationRepository defines the persistence operations needed by the
// use case.
type VerificationRepository interface {
	SaveRecord(ctx context.Context, record *repository.VerificationRecord) error
	FindByRequestIDAndSubject(ctx context.Context, requestID, subjectID string) (*repository.VerificationRecord, error)
	CountDuplicatesByFaceHash(ctx context.Context, subjectID, faceHash string) (int64, error)
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
}

// Notifier delivers verification lifecycle events to subscribers.
type Notifier interface {
	Dispatch(ctx context.Context, event webhook.Event) error
}

// VerificationUseCase orchestrates the full verification flow: adapter
// calls, duplicate lookup, scoring, persistence, caching, and webhook
// notification. The scoring itself is delegated entirely to the engine.
type VerificationUseCase struct {
	repo      VerificationRepository
	cache     Cache
	faces     inference.FaceComparer
	liveness  inference.LivenessDetector
	documents inference.DocumentReader
	engine    *trustscore.Engine
	notifier  Notifier
	logger    *zap.Logger

	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	notifyTimeout  time.Duration
}

// VerifyRequest is one incoming verification: the subject identifier, the
// claimed date of birth if the caller supplied one, and the two images.
type VerifyRequest struct {
	SubjectID  string
	ClaimedDOB *time.Time
	Selfie     []byte
	Document   []byte
}

type cachedVerification struct {
	RequestID  string             `json:"request_id"`
	SubjectID  string             `json:"subject_id"`
	Score      float64            `json:"score"`
	Decision   string             `json:"decision"`
	Confidence string             `json:"confidence"`
	Breakdown  map[string]float64 `json:"breakdown"`
	Reasons    []string           `json:"reasons"`
	Flags      []string           `json:"flags"`
	FaceHash   string             `json:"face_hash"`
	CreatedAt  time.Time          `json:"created_at"`
}

// NewVerificationUseCase constructs a new use case instance.
func NewVerificationUseCase(
	repo VerificationRepository,
	cache Cache,
	faces inference.FaceComparer,
	liveness inference.LivenessDetector,
	documents inference.DocumentReader,
	engine *trustscore.Engine,
	notifier Notifier,
	logger *zap.Logger,
) *VerificationUseCase {
	return &VerificationUseCase{
		repo:           repo,
		cache:          cache,
		faces:          faces,
		liveness:       liveness,
		documents:      documents,
		engine:         engine,
		notifier:       notifier,
		logger:         logger.Named("verification_usecase"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
		notifyTimeout:  30 * time.Second,
	}
}

// VerifyIdentity runs the complete verification flow for one request and
// returns the request id with the scored decision.
func (uc *VerificationUseCase) VerifyIdentity(ctx context.Context, req VerifyRequest) (string, *trustscore.TrustScoreResult, error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.verify_identity", requestID)
	started := time.Now()

	cacheKey := cacheKeyFor(requestID)
	if err := uc.withRedisRetry(ctx, requestID, "cache.set.processing", func() error {
		return uc.cache.Set(ctx, cacheKey, "processing", time.Minute)
	}); err != nil {
		opLogger.Error("failed to set processing flag", zap.Error(err))
		return "", nil, err
	}

	face, err := uc.faces.CompareFaces(ctx, requestID, req.Selfie, req.Document)
	if err != nil {
		opLogger.Error("face comparison failed", zap.Error(err))
		return "", nil, err
	}
	live, err := uc.liveness.DetectLiveness(ctx, requestID, req.Selfie)
	if err != nil {
		opLogger.Error("liveness detection failed", zap.Error(err))
		return "", nil, err
	}
	document, err := uc.documents.ReadDocument(ctx, requestID, req.Document)
	if err != nil {
		opLogger.Error("document reading failed", zap.Error(err))
		return "", nil, err
	}

	faceHash := face.EmbeddingHash
	if faceHash == "" {
		sum := sha256.Sum256(req.Selfie)
		faceHash = hex.EncodeToString(sum[:])
	}
	duplicates, err := uc.repo.CountDuplicatesByFaceHash(ctx, req.SubjectID, faceHash)
	if err != nil {
		opLogger.Error("duplicate lookup failed", zap.Error(err))
		return "", nil, err
	}

	signals := buildSignals(req, face, live, document, duplicates > 0)

	result, err := uc.engine.Evaluate(signals)
	if err != nil {
		// An invalid signal means an adapter broke its contract; surface it
		// untouched so the caller sees the offending field.
		opLogger.Error("scoring rejected signals", zap.Error(err))
		return "", nil, err
	}

	record, err := buildRecord(requestID, req.SubjectID, faceHash, result, time.Since(started))
	if err != nil {
		opLogger.Error("failed to serialize verification record", zap.Error(err))
		return "", nil, err
	}
	if err := uc.repo.SaveRecord(ctx, record); err != nil {
		opLogger.Error("failed to persist verification record", zap.Error(err))
		return "", nil, err
	}

	cached := cachedVerification{
		RequestID:  requestID,
		SubjectID:  req.SubjectID,
		Score:      result.Score,
		Decision:   string(result.Decision),
		Confidence: string(result.Confidence),
		Breakdown:  result.Breakdown,
		Reasons:    result.Reasons,
		Flags:      flagStrings(result.Flags),
		FaceHash:   faceHash,
		CreatedAt:  record.CreatedAt,
	}
	serialized, err := json.Marshal(cached)
	if err != nil {
		opLogger.Error("failed to serialize verification result", zap.Error(err))
		return "", nil, err
	}
	if err := uc.withRedisRetry(ctx, requestID, "cache.set.result", func() error {
		return uc.cache.Set(ctx, cacheKey, string(serialized), 5*time.Minute)
	}); err != nil {
		opLogger.Error("failed to cache verification result", zap.Error(err))
		return "", nil, err
	}

	uc.notifyAsync(webhook.Event{
		Type:       webhook.EventTypeForDecision(string(result.Decision)),
		RequestID:  requestID,
		SubjectID:  req.SubjectID,
		Score:      result.Score,
		Decision:   string(result.Decision),
		Confidence: string(result.Confidence),
		Flags:      flagStrings(result.Flags),
		OccurredAt: record.CreatedAt,
	})

	opLogger.Info("verification scored",
		zap.Float64("score", result.Score),
		zap.String("decision", string(result.Decision)),
		zap.Int64("duplicates", duplicates))
	return requestID, result, nil
}

// ScoreSignals evaluates caller-supplied, pre-computed signals without
// running the adapters or persisting anything.
func (uc *VerificationUseCase) ScoreSignals(ctx context.Context, signals trustscore.VerificationSignals) (*trustscore.TrustScoreResult, error) {
	result, err := uc.engine.Evaluate(signals)
	if err != nil {
		return nil, err
	}
	uc.logger.Info("signals scored",
		zap.Float64("score", result.Score),
		zap.String("decision", string(result.Decision)))
	return result, nil
}

// GetResult retrieves a cached verification outcome or loads it from
// persistence.
func (uc *VerificationUseCase) GetResult(ctx context.Context, subjectID, requestID string) (*repository.VerificationRecord, error) {
	cacheKey := cacheKeyFor(requestID)
	if cached, err := uc.withRedisGet(ctx, requestID, "cache.get.result", cacheKey); err == nil {
		var payload cachedVerification
		if err := json.Unmarshal([]byte(cached), &payload); err != nil || payload.RequestID == "" {
			// Either the in-flight "processing" marker or a corrupt entry;
			// fall through to the repository.
			logging.WithOperation(uc.logger, "usecase.get_result", requestID).
				Debug("cache entry not usable", zap.Error(err))
		} else if payload.SubjectID == subjectID {
			return recordFromCache(payload)
		}
	} else if !errors.Is(err, ErrCacheMiss) {
		logging.WithOperation(uc.logger, "usecase.get_result", requestID).Warn("failed to read cache", zap.Error(err))
	}

	return uc.repo.FindByRequestIDAndSubject(ctx, requestID, subjectID)
}

func buildSignals(req VerifyRequest, face *inference.FaceComparison, live *inference.LivenessResult, document *inference.DocumentResult, isDuplicate bool) trustscore.VerificationSignals {
	return trustscore.VerificationSignals{
		FaceSimilarity:         trustscore.Float64(face.Similarity),
		FaceMatch:              face.Match,
		LivenessScore:          trustscore.Float64(live.Score),
		LivenessPassed:         trustscore.Bool(live.Passed),
		DocumentConfidence:     trustscore.Float64(document.Confidence),
		DocumentTypeDetected:   document.DocumentType,
		ClaimedDOB:             req.ClaimedDOB,
		ExtractedDOB:           document.ExtractedDOB,
		EstimatedFaceAge:       face.EstimatedAge,
		IsDuplicate:            trustscore.Bool(isDuplicate),
		GenderDetectedDocument: face.GenderDocument,
		GenderDetectedSelfie:   face.GenderSelfie,
	}
}

func buildRecord(requestID, subjectID, faceHash string, result *trustscore.TrustScoreResult, latency time.Duration) (*repository.VerificationRecord, error) {
	breakdown, err := json.Marshal(result.Breakdown)
	if err != nil {
		return nil, err
	}
	reasons, err := json.Marshal(result.Reasons)
	if err != nil {
		return nil, err
	}
	flags, err := json.Marshal(flagStrings(result.Flags))
	if err != nil {
		return nil, err
	}
	return &repository.VerificationRecord{
		RequestID:  requestID,
		SubjectID:  subjectID,
		Score:      result.Score,
		Decision:   string(result.Decision),
		Confidence: string(result.Confidence),
		Breakdown:  string(breakdown),
		Reasons:    string(reasons),
		Flags:      string(flags),
		FaceHash:   faceHash,
		LatencyMs:  latency.Milliseconds(),
		CreatedAt:  time.Now().UTC(),
	}, nil
}

func recordFromCache(payload cachedVerification) (*repository.VerificationRecord, error) {
	breakdown, err := json.Marshal(payload.Breakdown)
	if err != nil {
		return nil, err
	}
	reasons, err := json.Marshal(payload.Reasons)
	if err != nil {
		return nil, err
	}
	flags, err := json.Marshal(payload.Flags)
	if err != nil {
		return nil, err
	}
	return &repository.VerificationRecord{
		RequestID:  payload.RequestID,
		SubjectID:  payload.SubjectID,
		Score:      payload.Score,
		Decision:   payload.Decision,
		Confidence: payload.Confidence,
		Breakdown:  string(breakdown),
		Reasons:    string(reasons),
		Flags:      string(flags),
		FaceHash:   payload.FaceHash,
		CreatedAt:  payload.CreatedAt,
	}, nil
}

func flagStrings(flags []trustscore.Flag) []string {
	out := make([]string, len(flags))
	for i, f := range flags {
		out[i] = string(f)
	}
	return out
}

func cacheKeyFor(requestID string) string {
	return fmt.Sprintf("verification:%s", requestID)
}

// notifyAsync fires the webhook without blocking or tying delivery to the
// request's context lifetime.
func (uc *VerificationUseCase) notifyAsync(event webhook.Event) {
	if uc.notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), uc.notifyTimeout)
		defer cancel()
		if err := uc.notifier.Dispatch(ctx, event); err != nil {
			uc.logger.Warn("webhook notification failed",
				zap.String("request_id", event.RequestID), zap.Error(err))
		}
	}()
}

func (uc *VerificationUseCase) withRedisRetry(ctx context.Context, requestID, operation string, fn func() error) error {
	if uc.retryAttempts <= 1 {
		return logging.NewOperationError(operation, requestID, fn())
	}

	backoff := uc.initialBackoff
	opLogger := logging.WithOperation(uc.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < uc.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= uc.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("redis operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !isTransientError(err) || attempt == uc.retryAttempts-1 {
			opLogger.Error("redis operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient redis error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func (uc *VerificationUseCase) withRedisGet(ctx context.Context, requestID, operation, cacheKey string) (string, error) {
	var result string
	err := uc.withRedisRetry(ctx, requestID, operation, func() error {
		value, err := uc.cache.Get(ctx, cacheKey)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
