package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/example/trustvault/internal/auth"
	"github.com/example/trustvault/internal/trustscore"
	"github.com/example/trustvault/internal/usecase"
)

const (
	testJWTSecret = "test-secret"
	testAPIKey    = "test-api-key"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.MaxMultipartMemory = MaxUploadSize

	engine, err := trustscore.NewEngine(trustscore.DefaultPolicy())
	if err != nil {
		t.Fatalf("failed to build engine: %v", err)
	}
	uc := usecase.NewVerificationUseCase(nil, nil, nil, nil, nil, engine, nil, zap.NewNop())

	middleware := auth.Middleware(testJWTSecret, "", []string{auth.HashAPIKey(testAPIKey)})
	RegisterRoutes(router, uc, middleware)
	return router
}

func TestVerifyRejectsLargeUpload(t *testing.T) {
	router := newTestRouter(t)

	token := buildTestToken(t, "subject-123")
	body, contentType := buildMultipartBody(t, "selfie", "image/png", bytes.Repeat([]byte("a"), MaxUploadSize+1))

	req := httptest.NewRequest(http.MethodPost, "/v1/verify", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status %d, got %d", http.StatusRequestEntityTooLarge, resp.Code)
	}
}

func TestVerifyRejectsUnsupportedContentType(t *testing.T) {
	router := newTestRouter(t)

	token := buildTestToken(t, "subject-123")
	body, contentType := buildMultipartBody(t, "selfie", "text/plain", []byte("hello"))

	req := httptest.NewRequest(http.MethodPost, "/v1/verify", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected status %d, got %d", http.StatusUnsupportedMediaType, resp.Code)
	}
}

func TestVerifyRequiresAuthentication(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/verify", strings.NewReader(""))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, resp.Code)
	}
}

func TestScoreReturnsDecision(t *testing.T) {
	router := newTestRouter(t)

	payload := `{
		"face_similarity": 0.92,
		"face_match": true,
		"liveness_score": 0.88,
		"liveness_passed": true,
		"document_confidence": 0.85,
		"document_type_detected": "aadhaar",
		"is_duplicate": false
	}`

	req := httptest.NewRequest(http.MethodPost, "/v1/trust/score", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(auth.APIKeyHeader, testAPIKey)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, resp.Code, resp.Body.String())
	}

	var result trustscore.TrustScoreResult
	if err := json.Unmarshal(resp.Body.Bytes(), &result); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if result.Score != 91.6 {
		t.Fatalf("expected score 91.6, got %v", result.Score)
	}
	if result.Decision != trustscore.DecisionAutoVerified {
		t.Fatalf("expected auto_verified, got %s", result.Decision)
	}
	if len(result.Breakdown) != 5 {
		t.Fatalf("expected five breakdown categories, got %v", result.Breakdown)
	}
}

func TestScoreRejectsInvalidSignal(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/trust/score", strings.NewReader(`{"face_similarity": 1.5}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(auth.APIKeyHeader, testAPIKey)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "face_similarity") {
		t.Fatalf("expected error to name the offending field, got %s", resp.Body.String())
	}
}

func TestScoreRejectsMalformedDate(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/trust/score", strings.NewReader(`{"claimed_dob": "01-06-1991"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(auth.APIKeyHeader, testAPIKey)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.Code)
	}
}

func TestScoreRejectsBadAPIKey(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/trust/score", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(auth.APIKeyHeader, "wrong-key")

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, resp.Code)
	}
}

func TestHealthIsUnauthenticated(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.Code)
	}
}

func buildMultipartBody(t *testing.T, field, contentType string, payload []byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="`+field+`"; filename="upload"`)
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("failed to create multipart part: %v", err)
	}
	if _, err := part.Write(payload); err != nil {
		t.Fatalf("failed to write payload: %v", err)
	}

	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	return body, writer.FormDataContentType()
}

func buildTestToken(t *testing.T, subject string) string {
	t.Helper()

	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}
