package footprint

import (
	"math/rand/v2"
	"sync"

	"github.com/ashureev/ecotrace/internal/domain"
)

// Engine produces the randomized outputs: tip selection and weekly series.
// The zero value draws from the global math/rand/v2 source. Engines built
// with NewEngine own a private generator and are safe for concurrent use.
type Engine struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewEngine returns an engine drawing from src. A nil src uses the global
// source.
func NewEngine(src rand.Source) *Engine {
	if src == nil {
		return &Engine{}
	}
	return &Engine{rng: rand.New(src)}
}

var defaultEngine = &Engine{}

// Calculate estimates emissions for a. See the package-level Calculate.
func (e *Engine) Calculate(a domain.Activities) domain.Emissions {
	return Calculate(a)
}

func (e *Engine) float64() float64 {
	if e.rng == nil {
		return rand.Float64()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.Float64()
}

func (e *Engine) shuffle(n int, swap func(i, j int)) {
	if e.rng == nil {
		rand.Shuffle(n, swap)
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rng.Shuffle(n, swap)
}

// jitter returns a uniform value in [-width/2, width/2).
func (e *Engine) jitter(width float64) float64 {
	return (e.float64() - 0.5) * width
}

// GenerateTips picks up to MaxTips tips from the default engine.
func GenerateTips(em domain.Emissions) []domain.Tip {
	return defaultEngine.GenerateTips(em)
}

// GenerateHistoricalData builds a synthetic week from the default engine.
func GenerateHistoricalData(em domain.Emissions) []domain.WeeklyDataPoint {
	return defaultEngine.GenerateHistoricalData(em)
}
