// Package webhook delivers verification lifecycle events to subscriber
// endpoints. Payloads are HMAC-SHA256 signed so receivers can authenticate
// them; delivery retries transient failures with capped backoff and then
// gives up, never blocking the verification flow.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/example/trustvault/internal/logging"
)

// Event types emitted by the verification flow.
const (
	EventVerificationCompleted    = "verification.completed"
	EventVerificationManualReview = "verification.manual_review"
	EventVerificationFailed       = "verification.failed"
)

// SignatureHeader carries the hex HMAC-SHA256 of the payload body.
const SignatureHeader = "X-Trustvault-Signature"

// Event is the payload delivered to subscribers.
type Event struct {
	Type       string    `json:"type"`
	RequestID  string    `json:"request_id"`
	SubjectID  string    `json:"subject_id"`
	Score      float64   `json:"score"`
	Decision   string    `json:"decision"`
	Confidence string    `json:"confidence"`
	Flags      []string  `json:"flags"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Dispatcher posts events to every configured subscriber URL.
type Dispatcher struct {
	urls        []string
	secret      string
	client      *http.Client
	logger      *zap.Logger
	maxAttempts int
	backoff     time.Duration
}

// NewDispatcher builds a dispatcher; with no subscriber URLs it is a no-op.
func NewDispatcher(urls []string, secret string, timeout time.Duration, maxAttempts int, logger *zap.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Dispatcher{
		urls:        urls,
		secret:      secret,
		client:      &http.Client{Timeout: timeout},
		logger:      logger.Named("webhook_dispatcher"),
		maxAttempts: maxAttempts,
		backoff:     500 * time.Millisecond,
	}
}

// Sign returns the hex HMAC-SHA256 of payload under the dispatcher secret.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature matches payload, in constant
// time. Receivers use this to authenticate deliveries.
func VerifySignature(payload []byte, signature, secret string) bool {
	return hmac.Equal([]byte(Sign(payload, secret)), []byte(signature))
}

// Dispatch delivers the event to every subscriber. Failures are logged per
// subscriber; the last error is returned for observability but callers
// normally fire and forget.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) error {
	if len(d.urls) == 0 {
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return logging.NewOperationError("webhook.marshal_event", event.RequestID, err)
	}
	signature := Sign(payload, d.secret)

	var lastErr error
	for _, url := range d.urls {
		if err := d.deliver(ctx, url, payload, signature, event.RequestID); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (d *Dispatcher) deliver(ctx context.Context, url string, payload []byte, signature, requestID string) error {
	opLogger := logging.WithOperation(d.logger, "webhook.deliver", requestID).With(zap.String("url", url))
	backoff := d.backoff

	var lastErr error
	for attempt := 0; attempt < d.maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError("webhook.deliver", requestID, ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		lastErr = d.post(ctx, url, payload, signature)
		if lastErr == nil {
			if attempt > 0 {
				opLogger.Info("webhook delivered after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}
		opLogger.Warn("webhook delivery attempt failed", zap.Error(lastErr), zap.Int("attempt", attempt+1))
	}

	opLogger.Error("webhook delivery exhausted retries", zap.Error(lastErr))
	return logging.NewOperationError("webhook.deliver", requestID, lastErr)
}

func (d *Dispatcher) post(ctx context.Context, url string, payload []byte, signature string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, signature)

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("subscriber returned status %d", resp.StatusCode)
	}
	return nil
}

// EventTypeForDecision maps a decision to its lifecycle event type.
func EventTypeForDecision(decision string) string {
	switch decision {
	case "auto_verified":
		return EventVerificationCompleted
	case "manual_review":
		return EventVerificationManualReview
	default:
		return EventVerificationFailed
	}
}
