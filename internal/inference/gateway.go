package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/example/trustvault/internal/logging"
	"github.com/example/trustvault/internal/trustscore"
)

const dobLayout = "2006-01-02"

// Gateway is an HTTP/JSON client for the inference gateway, implementing all
// three adapter contracts. Transient failures (timeouts, 5xx) are retried
// with capped exponential backoff; everything else surfaces immediately as an
// OperationError.
type Gateway struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger

	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewGateway builds a gateway client for the given base URL.
func NewGateway(baseURL string, logger *zap.Logger) *Gateway {
	return &Gateway{
		baseURL:        baseURL,
		client:         &http.Client{Timeout: 30 * time.Second},
		logger:         logger.Named("inference_gateway"),
		retryAttempts:  3,
		initialBackoff: 100 * time.Millisecond,
		maxBackoff:     2 * time.Second,
	}
}

type faceCompareRequest struct {
	RequestID string `json:"request_id"`
	Selfie    []byte `json:"selfie"`
	Document  []byte `json:"document"`
}

type faceCompareResponse struct {
	Similarity     float64 `json:"similarity"`
	Match          bool    `json:"match"`
	EstimatedAge   *int    `json:"estimated_age"`
	GenderSelfie   string  `json:"gender_selfie"`
	GenderDocument string  `json:"gender_document"`
	EmbeddingHash  string  `json:"embedding_hash"`
}

// CompareFaces implements FaceComparer.
func (g *Gateway) CompareFaces(ctx context.Context, requestID string, selfie, document []byte) (*FaceComparison, error) {
	var resp faceCompareResponse
	err := g.post(ctx, "gateway.compare_faces", requestID, "/v1/face/compare",
		faceCompareRequest{RequestID: requestID, Selfie: selfie, Document: document}, &resp)
	if err != nil {
		return nil, err
	}
	return &FaceComparison{
		Similarity:     resp.Similarity,
		Match:          resp.Match,
		EstimatedAge:   resp.EstimatedAge,
		GenderSelfie:   trustscore.Gender(resp.GenderSelfie),
		GenderDocument: trustscore.Gender(resp.GenderDocument),
		EmbeddingHash:  resp.EmbeddingHash,
	}, nil
}

type livenessRequest struct {
	RequestID string `json:"request_id"`
	Selfie    []byte `json:"selfie"`
}

type livenessResponse struct {
	Score  float64 `json:"score"`
	Passed bool    `json:"passed"`
}

// DetectLiveness implements LivenessDetector.
func (g *Gateway) DetectLiveness(ctx context.Context, requestID string, selfie []byte) (*LivenessResult, error) {
	var resp livenessResponse
	err := g.post(ctx, "gateway.detect_liveness", requestID, "/v1/liveness",
		livenessRequest{RequestID: requestID, Selfie: selfie}, &resp)
	if err != nil {
		return nil, err
	}
	return &LivenessResult{Score: resp.Score, Passed: resp.Passed}, nil
}

type documentRequest struct {
	RequestID string `json:"request_id"`
	Document  []byte `json:"document"`
}

type documentResponse struct {
	Confidence   float64           `json:"confidence"`
	DocumentType string            `json:"document_type"`
	DOB          string            `json:"dob"`
	Fields       map[string]string `json:"fields"`
}

// ReadDocument implements DocumentReader.
func (g *Gateway) ReadDocument(ctx context.Context, requestID string, document []byte) (*DocumentResult, error) {
	var resp documentResponse
	err := g.post(ctx, "gateway.read_document", requestID, "/v1/document",
		documentRequest{RequestID: requestID, Document: document}, &resp)
	if err != nil {
		return nil, err
	}
	result := &DocumentResult{
		Confidence:   resp.Confidence,
		DocumentType: trustscore.DocumentType(resp.DocumentType),
		Fields:       resp.Fields,
	}
	if resp.DOB != "" {
		dob, err := time.ParseInLocation(dobLayout, resp.DOB, time.UTC)
		if err != nil {
			// A malformed DOB degrades age consistency to its neutral
			// default rather than failing the whole verification.
			g.logger.Warn("unparseable dob from gateway",
				zap.String("request_id", requestID), zap.String("dob", resp.DOB))
		} else {
			result.ExtractedDOB = &dob
		}
	}
	return result, nil
}

// statusError marks a non-2xx gateway response.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("gateway returned status %d: %s", e.code, e.body)
}

func (e *statusError) Temporary() bool {
	return e.code >= http.StatusInternalServerError
}

func (g *Gateway) post(ctx context.Context, operation, requestID, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return logging.NewOperationError(operation, requestID, err)
	}

	opLogger := logging.WithOperation(g.logger, operation, requestID)
	backoff := g.initialBackoff

	var lastErr error
	for attempt := 0; attempt < g.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= g.maxBackoff {
				backoff = next
			}
		}

		lastErr = g.doOnce(ctx, path, body, out)
		if lastErr == nil {
			if attempt > 0 {
				opLogger.Info("gateway call succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}
		if !isTransient(lastErr) {
			break
		}
		opLogger.Warn("transient gateway error", zap.Error(lastErr), zap.Int("attempt", attempt+1))
	}

	opLogger.Error("gateway call failed", zap.Error(lastErr))
	return logging.NewOperationError(operation, requestID, lastErr)
}

func (g *Gateway) doOnce(ctx context.Context, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{code: resp.StatusCode, body: string(bytes.TrimSpace(snippet))}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func isTransient(err error) bool {
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
