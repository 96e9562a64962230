package realtime

import (
	"math"
	"time"

	"github.com/setlistvote/setlistvote/internal/model"
)

const (
	// FactorWindow bounds the votes that contribute to a trending factor.
	FactorWindow = 7 * 24 * time.Hour
	// HotWindow is how recent a vote must be to earn HotBonus.
	HotWindow = time.Hour
	HotBonus  = 0.5
)

// TrendingFactor is the live momentum of one song: each vote contributes
// exp(-ageHours/24) weighted by confidence/100, plus HotBonus when it was
// cast within HotWindow. Votes from the future count as age zero.
func TrendingFactor(samples []model.VoteSample, now time.Time) float64 {
	var f float64
	for _, s := range samples {
		age := now.Sub(s.CastAt)
		if age < 0 {
			age = 0
		}
		if age > FactorWindow {
			continue
		}
		conf := s.Confidence
		if conf <= 0 {
			conf = model.DefaultConfidence
		}
		f += math.Exp(-age.Hours()/24) * float64(conf) / 100
		if age <= HotWindow {
			f += HotBonus
		}
	}
	return f
}
