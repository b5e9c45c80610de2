package footprint

import (
	"math"

	"github.com/ashureev/ecotrace/internal/domain"
)

// Weekdays labels the points of a weekly series.
var Weekdays = [7]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// Full widths of the uniform noise applied to each series.
const (
	transportJitter = 10
	energyJitter    = 8
	foodJitter      = 6
	totalJitter     = 15
)

// MinDailyTotal is the floor of a synthetic day's total.
const MinDailyTotal = 5

// GenerateHistoricalData returns seven synthetic days, Mon..Sun, scattered
// around em. Each category and the total are jittered independently, so a
// day's total is not the sum of its categories.
func (e *Engine) GenerateHistoricalData(em domain.Emissions) []domain.WeeklyDataPoint {
	total := em.Total()
	week := make([]domain.WeeklyDataPoint, 0, len(Weekdays))
	for _, day := range Weekdays {
		week = append(week, domain.WeeklyDataPoint{
			Day:       day,
			Transport: math.Max(0, em.Transport+e.jitter(transportJitter)),
			Energy:    math.Max(0, em.Energy+e.jitter(energyJitter)),
			Food:      math.Max(0, em.Food+e.jitter(foodJitter)),
			Total:     math.Max(MinDailyTotal, total+e.jitter(totalJitter)),
		})
	}
	return week
}
