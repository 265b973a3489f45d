package pattern

import (
	"github.com/chainsight-ai/chainsight-backend/internal/features"
	"github.com/chainsight-ai/chainsight-backend/pkg/config"
)

// Label is a demand-pattern classification. The vocabulary is fixed; labels
// never carry free text.
type Label string

const (
	LabelNew          Label = "NEW"
	LabelSeasonal     Label = "SEASONAL"
	LabelTrending     Label = "TRENDING"
	LabelLumpy        Label = "LUMPY"
	LabelIntermittent Label = "INTERMITTENT"
	LabelErratic      Label = "ERRATIC"
	LabelSmooth       Label = "SMOOTH"
)

// Labels lists the full vocabulary in priority order.
func Labels() []Label {
	return []Label{
		LabelNew,
		LabelSeasonal,
		LabelTrending,
		LabelLumpy,
		LabelIntermittent,
		LabelErratic,
		LabelSmooth,
	}
}

type rule struct {
	match func(features.Vector) bool
	label Label
}

// Classifier maps a feature vector to exactly one demand-pattern label via an
// ordered decision table. Rules are evaluated top to bottom; the first match
// wins and the final rule matches unconditionally, so classification is total.
type Classifier struct {
	rules []rule
}

func NewClassifier(cfg config.AnalyticsConfig) *Classifier {
	return &Classifier{
		rules: []rule{
			{
				label: LabelNew,
				match: func(v features.Vector) bool {
					return v.HistoryDays < cfg.MinHistoryDays
				},
			},
			{
				label: LabelSeasonal,
				match: func(v features.Vector) bool {
					return v.SeasonalityStrength >= cfg.SeasonalityThreshold
				},
			},
			{
				label: LabelTrending,
				match: func(v features.Vector) bool {
					return v.TrendR2 >= cfg.TrendR2Threshold
				},
			},
			{
				label: LabelLumpy,
				match: func(v features.Vector) bool {
					return v.DemandCV > cfg.CVThreshold && v.ADI < cfg.ADIThreshold
				},
			},
			{
				label: LabelIntermittent,
				match: func(v features.Vector) bool {
					return v.ADI >= cfg.ADIThreshold && v.DemandCV <= cfg.CVThreshold
				},
			},
			{
				label: LabelErratic,
				match: func(v features.Vector) bool {
					return v.DemandCV > cfg.CVThreshold && v.ADI >= cfg.ADIThreshold
				},
			},
			{
				label: LabelSmooth,
				match: func(features.Vector) bool { return true },
			},
		},
	}
}

// Classify returns the first matching label. Safe for concurrent use; the
// classifier holds no mutable state.
func (c *Classifier) Classify(v features.Vector) Label {
	for _, r := range c.rules {
		if r.match(v) {
			return r.label
		}
	}
	// Unreachable: the final rule always matches.
	return LabelSmooth
}
