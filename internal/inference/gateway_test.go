package inference

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/trustvault/internal/logging"
	"github.com/example/trustvault/internal/trustscore"
)

func newTestGateway(url string) *Gateway {
	g := NewGateway(url, zap.NewNop())
	g.initialBackoff = time.Millisecond
	g.maxBackoff = 2 * time.Millisecond
	return g
}

func TestCompareFacesMapsResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/face/compare", r.URL.Path)

		var req faceCompareRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "req-1", req.RequestID)
		assert.Equal(t, []byte("selfie"), req.Selfie)

		age := 34
		json.NewEncoder(w).Encode(faceCompareResponse{
			Similarity:     0.92,
			Match:          true,
			EstimatedAge:   &age,
			GenderSelfie:   "female",
			GenderDocument: "female",
			EmbeddingHash:  "abc123",
		})
	}))
	defer server.Close()

	result, err := newTestGateway(server.URL).CompareFaces(context.Background(), "req-1", []byte("selfie"), []byte("doc"))
	require.NoError(t, err)

	assert.Equal(t, 0.92, result.Similarity)
	assert.True(t, result.Match)
	require.NotNil(t, result.EstimatedAge)
	assert.Equal(t, 34, *result.EstimatedAge)
	assert.Equal(t, trustscore.GenderFemale, result.GenderSelfie)
	assert.Equal(t, "abc123", result.EmbeddingHash)
}

func TestGatewayRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(livenessResponse{Score: 0.9, Passed: true})
	}))
	defer server.Close()

	result, err := newTestGateway(server.URL).DetectLiveness(context.Background(), "req-2", []byte("selfie"))
	require.NoError(t, err)
	assert.True(t, result.Passed)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGatewayDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad image", http.StatusBadRequest)
	}))
	defer server.Close()

	_, err := newTestGateway(server.URL).DetectLiveness(context.Background(), "req-3", []byte("selfie"))
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	var opErr *logging.OperationError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, "gateway.detect_liveness", opErr.Operation)
	assert.Equal(t, "req-3", opErr.RequestID)
}

func TestReadDocumentParsesDOB(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(documentResponse{
			Confidence:   0.85,
			DocumentType: "aadhaar",
			DOB:          "1991-06-01",
			Fields:       map[string]string{"name": "A. Tester"},
		})
	}))
	defer server.Close()

	result, err := newTestGateway(server.URL).ReadDocument(context.Background(), "req-4", []byte("doc"))
	require.NoError(t, err)

	assert.Equal(t, trustscore.DocumentAadhaar, result.DocumentType)
	require.NotNil(t, result.ExtractedDOB)
	assert.Equal(t, time.Date(1991, time.June, 1, 0, 0, 0, 0, time.UTC), *result.ExtractedDOB)
}

func TestReadDocumentToleratesMalformedDOB(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(documentResponse{Confidence: 0.4, DocumentType: "unknown", DOB: "01/06/91??"})
	}))
	defer server.Close()

	result, err := newTestGateway(server.URL).ReadDocument(context.Background(), "req-5", []byte("doc"))
	require.NoError(t, err)
	assert.Nil(t, result.ExtractedDOB)
}
