package footprint

// weightTable maps categorical values to a weight. Lookups of an empty or
// unknown key return the weight of the default key.
type weightTable struct {
	weights    map[string]float64
	defaultKey string
}

func (t weightTable) lookup(key string) float64 {
	if w, ok := t.weights[key]; ok {
		return w
	}
	return t.weights[t.defaultKey]
}

// kg CO2e per km travelled.
var transportFactors = weightTable{
	weights: map[string]float64{
		"car_gas":        0.411,
		"car_hybrid":     0.25,
		"car_electric":   0.189,
		"public_transit": 0.089,
		"walking":        0,
		"cycling":        0,
	},
	defaultKey: "car_gas",
}

// Daily kg CO2e for a household of the given size.
var homeBase = weightTable{
	weights: map[string]float64{
		"apartment":   15,
		"small_house": 25,
		"large_house": 40,
	},
	defaultKey: "small_house",
}

var heatingMultipliers = weightTable{
	weights: map[string]float64{
		"gas":       1.2,
		"electric":  1.0,
		"heat_pump": 0.7,
	},
	defaultKey: "gas",
}

var electricityMultipliers = weightTable{
	weights: map[string]float64{
		"grid":             1.0,
		"some_renewable":   0.7,
		"mostly_renewable": 0.4,
	},
	defaultKey: "grid",
}

// Daily kg CO2e per diet.
var dietBase = weightTable{
	weights: map[string]float64{
		"meat_heavy":    7.2,
		"moderate_meat": 5.6,
		"vegetarian":    3.8,
		"vegan":         2.9,
	},
	defaultKey: "moderate_meat",
}

var wasteMultipliers = weightTable{
	weights: map[string]float64{
		"high":   1.3,
		"medium": 1.0,
		"low":    0.8,
	},
	defaultKey: "medium",
}

var mealMultipliers = weightTable{
	weights: map[string]float64{
		"mostly_out":  1.4,
		"half_half":   1.2,
		"mostly_home": 1.0,
	},
	defaultKey: "half_half",
}

const (
	// commuteLegs turns a one-way commute distance into a round trip.
	commuteLegs = 2
	// flightKg is the footprint attributed to one flight.
	flightKg = 500
)
