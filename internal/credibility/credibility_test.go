package credibility

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crowdfill/internal/domain"
)

func TestClassify(t *testing.T) {
	t.Parallel()
	th := DefaultThresholds()
	tests := []struct {
		name  string
		stats domain.WorkerReportStats
		want  Level
	}{
		{name: "no history", stats: domain.WorkerReportStats{}, want: Normal},
		{name: "below sample is never suspicious", stats: domain.WorkerReportStats{TotalReports: 2, FalseReports: 2}, want: Normal},
		{name: "below sample is never trusted", stats: domain.WorkerReportStats{TotalReports: 2, ConfirmedReports: 2}, want: Normal},
		{name: "mostly false", stats: domain.WorkerReportStats{TotalReports: 4, FalseReports: 3, ConfirmedReports: 1}, want: Suspicious},
		{name: "exactly half false stays normal", stats: domain.WorkerReportStats{TotalReports: 4, FalseReports: 2, ConfirmedReports: 2}, want: Normal},
		{name: "mostly confirmed", stats: domain.WorkerReportStats{TotalReports: 5, ConfirmedReports: 4, DismissedReports: 1}, want: Trusted},
		{name: "mixed history", stats: domain.WorkerReportStats{TotalReports: 10, ConfirmedReports: 5, DismissedReports: 3, FalseReports: 2}, want: Normal},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, Classify(tc.stats, th).Level)
		})
	}
}

func TestClassifyNormalizesThresholds(t *testing.T) {
	t.Parallel()
	// a zero-valued config falls back to the conservative defaults
	got := Classify(domain.WorkerReportStats{TotalReports: 1, FalseReports: 1}, Thresholds{})
	assert.Equal(t, Normal, got.Level)
	assert.InDelta(t, 1.0, got.FalseRatio, 1e-9)
}

func TestClassifyDoesNotTouchCanReport(t *testing.T) {
	t.Parallel()
	got := Classify(domain.WorkerReportStats{TotalReports: 5, FalseReports: 5, CanReport: true}, DefaultThresholds())
	assert.Equal(t, Suspicious, got.Level)
	assert.True(t, got.CanReport)
}

func TestPrioritize(t *testing.T) {
	t.Parallel()
	stats := map[string]domain.WorkerReportStats{
		"good": {WorkerID: "good", TotalReports: 5, ConfirmedReports: 5},
		"bad":  {WorkerID: "bad", TotalReports: 5, FalseReports: 4},
	}
	reports := []Report{
		{ID: "r1", ReporterID: "bad", CreatedAt: "2024-01-01T00:00:00Z"},
		{ID: "r2", ReporterID: "new", CreatedAt: "2024-01-03T00:00:00Z"},
		{ID: "r3", ReporterID: "good", CreatedAt: "2024-01-04T00:00:00Z"},
		{ID: "r4", ReporterID: "new", CreatedAt: "2024-01-02T00:00:00Z"},
	}
	ranked := Prioritize(reports, stats, DefaultThresholds())
	require.Len(t, ranked, 4)
	var ids []string
	for _, r := range ranked {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"r3", "r4", "r2", "r1"}, ids)
}
