// Package credibility scores content reporters from their review history. The
// score only annotates and orders reports; it never decides them.
package credibility

import (
	"sort"

	"crowdfill/internal/domain"
)

type Level string

const (
	Suspicious Level = "suspicious"
	Normal     Level = "normal"
	Trusted    Level = "trusted"
)

type Thresholds struct {
	MinSample             int     `yaml:"min_sample" mapstructure:"min_sample"`
	SuspiciousFalseRatio  float64 `yaml:"suspicious_false_ratio" mapstructure:"suspicious_false_ratio"`
	TrustedConfirmedRatio float64 `yaml:"trusted_confirmed_ratio" mapstructure:"trusted_confirmed_ratio"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{MinSample: 3, SuspiciousFalseRatio: 0.5, TrustedConfirmedRatio: 0.8}
}

func (t Thresholds) normalize() Thresholds {
	d := DefaultThresholds()
	if t.MinSample < 3 {
		t.MinSample = d.MinSample
	}
	if t.SuspiciousFalseRatio <= 0 || t.SuspiciousFalseRatio >= 1 {
		t.SuspiciousFalseRatio = d.SuspiciousFalseRatio
	}
	if t.TrustedConfirmedRatio <= 0 || t.TrustedConfirmedRatio > 1 {
		t.TrustedConfirmedRatio = d.TrustedConfirmedRatio
	}
	return t
}

type Score struct {
	WorkerID       string  `json:"worker_id"`
	Level          Level   `json:"level" enum:"suspicious,normal,trusted"`
	Sample         int     `json:"sample"`
	FalseRatio     float64 `json:"false_ratio"`
	ConfirmedRatio float64 `json:"confirmed_ratio"`
	CanReport      bool    `json:"can_report"`
}

// Classify scores one reporter. Below the minimum sample everyone is normal.
func Classify(stats domain.WorkerReportStats, th Thresholds) Score {
	th = th.normalize()
	s := Score{WorkerID: stats.WorkerID, Level: Normal, Sample: stats.TotalReports, CanReport: stats.CanReport}
	if stats.TotalReports <= 0 {
		return s
	}
	total := float64(stats.TotalReports)
	s.FalseRatio = float64(stats.FalseReports) / total
	s.ConfirmedRatio = float64(stats.ConfirmedReports) / total
	if stats.TotalReports < th.MinSample {
		return s
	}
	switch {
	case s.FalseRatio > th.SuspiciousFalseRatio:
		s.Level = Suspicious
	case s.ConfirmedRatio >= th.TrustedConfirmedRatio:
		s.Level = Trusted
	}
	return s
}

// Report is a pending content report awaiting review.
type Report struct {
	ID         string `json:"id"`
	ReporterID string `json:"reporter_id"`
	CreatedAt  string `json:"created_at"`
}

type RankedReport struct {
	Report
	Score Score `json:"score"`
}

func rank(l Level) int {
	switch l {
	case Trusted:
		return 0
	case Suspicious:
		return 2
	default:
		return 1
	}
}

// Prioritize orders reports for review: trusted reporters first, suspicious
// last, oldest first within a level. Unknown reporters score as normal.
func Prioritize(reports []Report, stats map[string]domain.WorkerReportStats, th Thresholds) []RankedReport {
	out := make([]RankedReport, 0, len(reports))
	for _, r := range reports {
		st, ok := stats[r.ReporterID]
		if !ok {
			st = domain.WorkerReportStats{WorkerID: r.ReporterID, CanReport: true}
		}
		out = append(out, RankedReport{Report: r, Score: Classify(st, th)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := rank(out[i].Score.Level), rank(out[j].Score.Level)
		if ri != rj {
			return ri < rj
		}
		return out[i].CreatedAt < out[j].CreatedAt
	})
	return out
}
