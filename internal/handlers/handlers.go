package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/example/trustvault/internal/auth"
	"github.com/example/trustvault/internal/trustscore"
	"github.com/example/trustvault/internal/usecase"
)

// MaxUploadSize bounds each uploaded image part.
const MaxUploadSize = 10 << 20

const dobLayout = "2006-01-02"

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// RegisterRoutes wires the HTTP handlers to the Gin router. Everything under
// /v1 requires authentication; the health probe does not.
func RegisterRoutes(router *gin.Engine, uc *usecase.VerificationUseCase, authMiddleware gin.HandlerFunc) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/v1", authMiddleware)
	v1.POST("/verify", func(c *gin.Context) { handleVerify(c, uc) })
	v1.POST("/trust/score", func(c *gin.Context) { handleScore(c, uc) })
	v1.GET("/result/:id", func(c *gin.Context) { handleResult(c, uc) })
	v1.GET("/metrics", func(c *gin.Context) { handleMetrics(c, uc) })
}

func handleVerify(c *gin.Context, uc *usecase.VerificationUseCase) {
	subjectID, ok := auth.GetSubjectID(c.Request.Context())
	if !ok {
		subjectID = c.PostForm("subject_id")
	}
	if subjectID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "subject_id is required"})
		return
	}

	var claimedDOB *time.Time
	if raw := c.PostForm("claimed_dob"); raw != "" {
		parsed, err := time.Parse(dobLayout, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "claimed_dob must be formatted as YYYY-MM-DD"})
			return
		}
		claimedDOB = &parsed
	}

	selfie, ok := readImagePart(c, "selfie")
	if !ok {
		return
	}
	document, ok := readImagePart(c, "document")
	if !ok {
		return
	}

	requestID, result, err := uc.VerifyIdentity(c.Request.Context(), usecase.VerifyRequest{
		SubjectID:  subjectID,
		ClaimedDOB: claimedDOB,
		Selfie:     selfie,
		Document:   document,
	})
	if err != nil {
		var sigErr *trustscore.InvalidSignalError
		if errors.As(err, &sigErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": sigErr.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"request_id": requestID,
		"result":     result,
	})
}

// scoreRequest carries pre-computed signals for direct scoring. Pointer
// fields distinguish absent from zero, matching the engine's optional
// semantics.
type scoreRequest struct {
	FaceSimilarity         *float64 `json:"face_similarity"`
	FaceMatch              bool     `json:"face_match"`
	LivenessScore          *float64 `json:"liveness_score"`
	LivenessPassed         *bool    `json:"liveness_passed"`
	DocumentConfidence     *float64 `json:"document_confidence"`
	DocumentTypeDetected   string   `json:"document_type_detected"`
	ClaimedDOB             string   `json:"claimed_dob"`
	ExtractedDOB           string   `json:"extracted_dob"`
	EstimatedFaceAge       *int     `json:"estimated_face_age"`
	IsDuplicate            *bool    `json:"is_duplicate"`
	GenderDetectedDocument string   `json:"gender_detected_document"`
	GenderDetectedSelfie   string   `json:"gender_detected_selfie"`
}

func handleScore(c *gin.Context, uc *usecase.VerificationUseCase) {
	var req scoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	claimedDOB, ok := parseOptionalDate(c, "claimed_dob", req.ClaimedDOB)
	if !ok {
		return
	}
	extractedDOB, ok := parseOptionalDate(c, "extracted_dob", req.ExtractedDOB)
	if !ok {
		return
	}

	result, err := uc.ScoreSignals(c.Request.Context(), trustscore.VerificationSignals{
		FaceSimilarity:         req.FaceSimilarity,
		FaceMatch:              req.FaceMatch,
		LivenessScore:          req.LivenessScore,
		LivenessPassed:         req.LivenessPassed,
		DocumentConfidence:     req.DocumentConfidence,
		DocumentTypeDetected:   trustscore.DocumentType(req.DocumentTypeDetected),
		ClaimedDOB:             claimedDOB,
		ExtractedDOB:           extractedDOB,
		EstimatedFaceAge:       req.EstimatedFaceAge,
		IsDuplicate:            req.IsDuplicate,
		GenderDetectedDocument: trustscore.Gender(req.GenderDetectedDocument),
		GenderDetectedSelfie:   trustscore.Gender(req.GenderDetectedSelfie),
	})
	if err != nil {
		var sigErr *trustscore.InvalidSignalError
		if errors.As(err, &sigErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": sigErr.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

func handleResult(c *gin.Context, uc *usecase.VerificationUseCase) {
	requestID := c.Param("id")
	if requestID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required"})
		return
	}

	subjectID, ok := auth.GetSubjectID(c.Request.Context())
	if !ok {
		subjectID = c.Query("subject_id")
	}
	if subjectID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "subject_id is required"})
		return
	}

	record, err := uc.GetResult(c.Request.Context(), subjectID, requestID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "result not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"request_id": record.RequestID,
		"subject_id": record.SubjectID,
		"score":      record.Score,
		"decision":   record.Decision,
		"confidence": record.Confidence,
		"breakdown":  rawJSON(record.Breakdown),
		"reasons":    rawJSON(record.Reasons),
		"flags":      rawJSON(record.Flags),
		"created_at": record.CreatedAt,
	})
}

func handleMetrics(c *gin.Context, uc *usecase.VerificationUseCase) {
	summary, err := uc.GetMetricsSummary(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// readImagePart extracts one uploaded image, enforcing size and content-type
// limits. On failure it writes the error response and returns ok=false.
func readImagePart(c *gin.Context, field string) ([]byte, bool) {
	file, err := c.FormFile(field)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": field + " file is required"})
		return nil, false
	}

	if file.Size > MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": field + " exceeds the upload size limit"})
		return nil, false
	}
	if !allowedImageTypes[partContentType(file)] {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": field + " must be a JPEG or PNG image"})
		return nil, false
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open " + field})
		return nil, false
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, MaxUploadSize+1))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read " + field})
		return nil, false
	}
	if len(data) > MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": field + " exceeds the upload size limit"})
		return nil, false
	}
	return data, true
}

func partContentType(file *multipart.FileHeader) string {
	return file.Header.Get("Content-Type")
}

func parseOptionalDate(c *gin.Context, field, raw string) (*time.Time, bool) {
	if raw == "" {
		return nil, true
	}
	parsed, err := time.Parse(dobLayout, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": field + " must be formatted as YYYY-MM-DD"})
		return nil, false
	}
	return &parsed, true
}

func rawJSON(s string) json.RawMessage {
	if s == "" {
		return json.RawMessage("null")
	}
	return json.RawMessage(s)
}
