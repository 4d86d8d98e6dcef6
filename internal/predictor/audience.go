// Package predictor holds the built-in desirability predictors used at
// admission time.
package predictor

import (
	"time"

	"github.com/spf13/cast"

	"github.com/viralshorts/automation/internal/scheduler"
)

// AudiencePredictor prefers running publish scheduling when the audience is
// active: near one of the optimal posting hours, on weekends, and never during
// the quiet night window.
type AudiencePredictor struct {
	OptimalHours      []int   // Local hours with peak activity
	WeekdayMultiplier float64
	WeekendMultiplier float64
	PeakBoost         float64 // Applied within an hour of an optimal hour
	QuietStart        int     // Quiet window is [QuietStart, 24) and [0, QuietEnd]
	QuietEnd          int
	QuietPenalty      float64

	now func() time.Time
}

// NewAudiencePredictor returns a predictor with the posting profile the
// daily poster used: 09:00, 15:00 and 20:00 peaks, weekends 20% busier,
// nothing scheduled between 23:00 and 06:59.
func NewAudiencePredictor() *AudiencePredictor {
	return &AudiencePredictor{
		OptimalHours:      []int{9, 15, 20},
		WeekdayMultiplier: 1.0,
		WeekendMultiplier: 1.2,
		PeakBoost:         1.25,
		QuietStart:        23,
		QuietEnd:          6,
		QuietPenalty:      0.4,
		now:               time.Now,
	}
}

// WithClock overrides the time source.
func (p *AudiencePredictor) WithClock(now func() time.Time) *AudiencePredictor {
	p.now = now
	return p
}

// Score implements scheduler.Predictor. Only publish scheduling tasks that ask
// for audience insights get an opinion; the base is the clip's viral_score
// param (50 when absent or unparsable).
func (p *AudiencePredictor) Score(kind scheduler.Kind, params scheduler.Params) (float64, bool) {
	if kind != scheduler.KindPublishScheduling {
		return 0, false
	}
	if v, ok := params["use_audience_insights"]; ok && !cast.ToBool(v) {
		return 0, false
	}

	base := scheduler.NeutralScore
	if v, ok := params["viral_score"]; ok {
		if f, err := cast.ToFloat64E(v); err == nil {
			base = f
		}
	}

	score := base * p.Multiplier(p.now())
	return min(max(score, 0), 100), true
}

// Multiplier is the audience activity factor at t.
func (p *AudiencePredictor) Multiplier(t time.Time) float64 {
	m := p.WeekdayMultiplier
	if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
		m = p.WeekendMultiplier
	}

	hour := t.Hour()
	if hour >= p.QuietStart || hour <= p.QuietEnd {
		return m * p.QuietPenalty
	}

	minutes := hour*60 + t.Minute()
	for _, h := range p.OptimalHours {
		if d := minutes - h*60; d > -60 && d < 60 {
			return m * p.PeakBoost
		}
	}
	return m
}
