package domain

// Category names used for tips, breakdowns and charts.
const (
	CategoryTransport = "Transport"
	CategoryEnergy    = "Energy"
	CategoryFood      = "Food"
)

// Emissions is an estimated daily footprint in kg CO2e per category.
type Emissions struct {
	Transport float64 `json:"transport" yaml:"transport"`
	Energy    float64 `json:"energy" yaml:"energy"`
	Food      float64 `json:"food" yaml:"food"`
}

// Total returns the sum of all categories.
func (e Emissions) Total() float64 {
	return e.Transport + e.Energy + e.Food
}

// IsZero reports whether the total is zero.
func (e Emissions) IsZero() bool {
	return e.Total() == 0
}

// Slice is one entry of an emissions breakdown.
type Slice struct {
	Name  string  `json:"name" yaml:"name"`
	Value float64 `json:"value" yaml:"value"`
	Share float64 `json:"share" yaml:"share"`
}

// Breakdown returns the non-zero categories in Transport, Energy, Food order
// with their share of the total as a percentage.
func (e Emissions) Breakdown() []Slice {
	total := e.Total()
	out := make([]Slice, 0, 3)
	for _, s := range []Slice{
		{Name: CategoryTransport, Value: e.Transport},
		{Name: CategoryEnergy, Value: e.Energy},
		{Name: CategoryFood, Value: e.Food},
	} {
		if s.Value <= 0 {
			continue
		}
		s.Share = s.Value / total * 100
		out = append(out, s)
	}
	return out
}

// Tip is a piece of behavior-change advice.
type Tip struct {
	Category   string `json:"category" yaml:"category"`
	Tip        string `json:"tip" yaml:"tip"`
	Impact     string `json:"impact" yaml:"impact"`
	Difficulty string `json:"difficulty" yaml:"difficulty"`
}

// WeeklyDataPoint is one synthetic day of a trend chart.
type WeeklyDataPoint struct {
	Day       string  `json:"day" yaml:"day"`
	Transport float64 `json:"transport" yaml:"transport"`
	Energy    float64 `json:"energy" yaml:"energy"`
	Food      float64 `json:"food" yaml:"food"`
	Total     float64 `json:"total" yaml:"total"`
}
