package footprint

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ashureev/ecotrace/internal/domain"
)

func TestCalculateZeroTravelForEveryMethod(t *testing.T) {
	for _, opt := range domain.Options[domain.FieldTransportMethod] {
		t.Run(opt.Value, func(t *testing.T) {
			em := Calculate(domain.Activities{
				TransportMethod: opt.Value,
				CommuteDistance: "0",
				FlightsMonth:    "0",
			})
			assert.Zero(t, em.Transport)
		})
	}
}

func TestCalculateTransport(t *testing.T) {
	tests := []struct {
		name       string
		activities domain.Activities
		want       float64
	}{
		{"gas car commute", domain.Activities{TransportMethod: "car_gas", CommuteDistance: "20"}, 16.44},
		{"hybrid", domain.Activities{TransportMethod: "car_hybrid", CommuteDistance: "10"}, 5},
		{"electric", domain.Activities{TransportMethod: "car_electric", CommuteDistance: "10"}, 3.78},
		{"transit", domain.Activities{TransportMethod: "public_transit", CommuteDistance: "10"}, 1.78},
		{"walking has no factor", domain.Activities{TransportMethod: "walking", CommuteDistance: "10"}, 0},
		{"cycling has no factor", domain.Activities{TransportMethod: "cycling", CommuteDistance: "10"}, 0},
		{"unknown method uses gas car", domain.Activities{TransportMethod: "hovercraft", CommuteDistance: "20"}, 16.44},
		{"missing method uses gas car", domain.Activities{CommuteDistance: "20"}, 16.44},
		{"flights only", domain.Activities{FlightsMonth: "2"}, 1000},
		{"commute plus flight", domain.Activities{TransportMethod: "car_gas", CommuteDistance: "20", FlightsMonth: "1"}, 516.44},
		{"non numeric distance", domain.Activities{CommuteDistance: "far"}, 0},
		{"non numeric flights", domain.Activities{FlightsMonth: "some"}, 0},
		{"distance with unit suffix", domain.Activities{CommuteDistance: "20km"}, 16.44},
		{"fractional flights truncate", domain.Activities{FlightsMonth: "2.7"}, 1000},
		{"negative distance clamps", domain.Activities{CommuteDistance: "-5"}, 0},
		{"negative flights clamp", domain.Activities{FlightsMonth: "-1"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Calculate(tt.activities)
			assert.InDelta(t, tt.want, got.Transport, 1e-9)
		})
	}
}

func TestCalculateEnergy(t *testing.T) {
	tests := []struct {
		name       string
		activities domain.Activities
		want       float64
	}{
		{"defaults", domain.Activities{}, 25 * 1.2 * 1.0},
		{"apartment electric mostly renewable", domain.Activities{HomeType: "apartment", HeatingType: "electric", ElectricitySource: "mostly_renewable"}, 6.0},
		{"large house heat pump some renewable", domain.Activities{HomeType: "large_house", HeatingType: "heat_pump", ElectricitySource: "some_renewable"}, 40 * 0.7 * 0.7},
		{"unknown values use defaults", domain.Activities{HomeType: "castle", HeatingType: "fireplace", ElectricitySource: "nuclear"}, 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Calculate(tt.activities)
			assert.InDelta(t, tt.want, got.Energy, 1e-9)
		})
	}
}

func TestCalculateFood(t *testing.T) {
	tests := []struct {
		name       string
		activities domain.Activities
		want       float64
	}{
		{"defaults", domain.Activities{}, 5.6 * 1.0 * 1.2},
		{"vegan low waste home cooked", domain.Activities{DietType: "vegan", FoodWaste: "low", MealRatio: "mostly_home"}, 2.32},
		{"meat heavy high waste dining out", domain.Activities{DietType: "meat_heavy", FoodWaste: "high", MealRatio: "mostly_out"}, 7.2 * 1.3 * 1.4},
		{"vegetarian", domain.Activities{DietType: "vegetarian", FoodWaste: "medium", MealRatio: "half_half"}, 3.8 * 1.2},
		{"unknown values use defaults", domain.Activities{DietType: "keto", FoodWaste: "none", MealRatio: "always_out"}, 5.6 * 1.2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Calculate(tt.activities)
			assert.InDelta(t, tt.want, got.Food, 1e-9)
		})
	}
}

func TestCalculateNeverNegative(t *testing.T) {
	inputs := []domain.Activities{
		{},
		{CommuteDistance: "-100", FlightsMonth: "-3"},
		{CommuteDistance: "1e999"},
		{CommuteDistance: "NaN"},
		{TransportMethod: "walking", HomeType: "apartment", DietType: "vegan"},
	}
	for _, in := range inputs {
		em := Calculate(in)
		assert.GreaterOrEqual(t, em.Transport, 0.0)
		assert.GreaterOrEqual(t, em.Energy, 0.0)
		assert.GreaterOrEqual(t, em.Food, 0.0)
	}
}

func TestNumericPrefix(t *testing.T) {
	tests := []struct {
		in      string
		decimal bool
		want    string
	}{
		{"12.5km", true, "12.5"},
		{".5", true, ".5"},
		{"5.", true, "5."},
		{"1e3x", true, "1e3"},
		{"1e", true, "1"},
		{"-", true, ""},
		{"abc", true, ""},
		{"2.7", false, "2"},
		{"+4 trips", false, "+4"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, numericPrefix(tt.in, tt.decimal), tt.in)
	}
}
