package footprint

import (
	"github.com/ashureev/ecotrace/internal/domain"
)

// MaxTips is the most tips GenerateTips returns.
const MaxTips = 3

// A category earns its targeted tip when it exceeds this share of the total.
const (
	transportTipShare = 0.30
	energyTipShare    = 0.30
	foodTipShare      = 0.25
)

var (
	transportTip = domain.Tip{
		Category:   domain.CategoryTransport,
		Tip:        "Try carpooling or using public transit once a week to significantly cut down on commute emissions.",
		Impact:     "High",
		Difficulty: "Easy",
	}
	energyTip = domain.Tip{
		Category:   domain.CategoryEnergy,
		Tip:        "Lower your thermostat by 2°F in winter and raise it by 2°F in summer. You'll barely notice the difference!",
		Impact:     "Medium",
		Difficulty: "Easy",
	}
	foodTip = domain.Tip{
		Category:   domain.CategoryFood,
		Tip:        `Incorporate one "meatless Monday" (or any other day) into your week to reduce dietary carbon impact.`,
		Impact:     "High",
		Difficulty: "Medium",
	}

	// fillerTips are always eligible.
	fillerTips = []domain.Tip{
		{
			Category:   domain.CategoryEnergy,
			Tip:        `Unplug electronics when not in use. "Phantom load" can account for 10% of your electricity bill.`,
			Impact:     "Low",
			Difficulty: "Easy",
		},
		{
			Category:   domain.CategoryFood,
			Tip:        "Plan your meals for the week to reduce food waste. About one-third of all food produced is wasted!",
			Impact:     "Medium",
			Difficulty: "Medium",
		},
		{
			Category:   domain.CategoryTransport,
			Tip:        "Combine your errands into a single trip to save fuel and time.",
			Impact:     "Medium",
			Difficulty: "Easy",
		},
	}
)

// CandidateTips returns every tip GenerateTips can return.
func CandidateTips() []domain.Tip {
	out := []domain.Tip{transportTip, energyTip, foodTip}
	return append(out, fillerTips...)
}

// GenerateTips returns up to MaxTips tips in random order. Categories that
// dominate the footprint add a targeted tip to the pool; the filler tips are
// always in it. Zero emissions yield no tips.
func (e *Engine) GenerateTips(em domain.Emissions) []domain.Tip {
	if em.IsZero() {
		return []domain.Tip{}
	}
	total := em.Total()

	pool := make([]domain.Tip, 0, 6)
	if em.Transport > total*transportTipShare {
		pool = append(pool, transportTip)
	}
	if em.Energy > total*energyTipShare {
		pool = append(pool, energyTip)
	}
	if em.Food > total*foodTipShare {
		pool = append(pool, foodTip)
	}
	pool = append(pool, fillerTips...)
	pool = dedupeTips(pool)

	e.shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})
	if len(pool) > MaxTips {
		pool = pool[:MaxTips]
	}
	return pool
}

// dedupeTips drops repeated tips, keeping the first occurrence.
func dedupeTips(tips []domain.Tip) []domain.Tip {
	type key struct{ category, text string }
	seen := make(map[key]struct{}, len(tips))
	out := tips[:0]
	for _, t := range tips {
		k := key{t.Category, t.Tip}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, t)
	}
	return out
}
