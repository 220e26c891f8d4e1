package usecase

import "context"

// MetricsSummary represents aggregated verification insights.
type MetricsSummary struct {
	TotalRequests              int64   `json:"total_requests"`
	AutoVerified               int64   `json:"auto_verified"`
	ManualReview               int64   `json:"manual_review"`
	Rejected                   int64   `json:"rejected"`
	AutoVerifyRate             float64 `json:"auto_verify_rate"`
	AverageScore               float64 `json:"average_score"`
	AverageProcessingLatencyMs float64 `json:"average_processing_latency_ms"`
}

// GetMetricsSummary aggregates verification metrics from persisted records.
func (uc *VerificationUseCase) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	aggregation, err := uc.repo.AggregateMetrics(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MetricsSummary{
		TotalRequests:              aggregation.TotalCount,
		AutoVerified:               aggregation.AutoVerifiedCount,
		ManualReview:               aggregation.ManualReviewCount,
		Rejected:                   aggregation.RejectedCount,
		AverageScore:               aggregation.AverageScore,
		AverageProcessingLatencyMs: aggregation.AverageLatencyMs,
	}

	if aggregation.TotalCount > 0 {
		summary.AutoVerifyRate = float64(aggregation.AutoVerifiedCount) / float64(aggregation.TotalCount)
	}

	return summary, nil
}
