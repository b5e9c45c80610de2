package domain

// Option is one selectable value of a categorical activity field.
type Option struct {
	Value string `json:"value" yaml:"value"`
	Label string `json:"label" yaml:"label"`
}

// Options holds the selectable values for each categorical field, in the
// order the form presents them. Numeric fields have no entry.
var Options = map[string][]Option{
	FieldTransportMethod: {
		{Value: "car_gas", Label: "Gasoline Car"},
		{Value: "car_hybrid", Label: "Hybrid Car"},
		{Value: "car_electric", Label: "Electric Car"},
		{Value: "public_transit", Label: "Public Transit"},
		{Value: "walking", Label: "Walking"},
		{Value: "cycling", Label: "Cycling"},
	},
	FieldHomeType: {
		{Value: "apartment", Label: "Apartment"},
		{Value: "small_house", Label: "Small House"},
		{Value: "large_house", Label: "Large House"},
	},
	FieldHeatingType: {
		{Value: "gas", Label: "Natural Gas"},
		{Value: "electric", Label: "Electric"},
		{Value: "heat_pump", Label: "Heat Pump"},
	},
	FieldElectricitySource: {
		{Value: "grid", Label: "Grid Standard"},
		{Value: "some_renewable", Label: "Some Renewables"},
		{Value: "mostly_renewable", Label: "Mostly Renewables"},
	},
	FieldDietType: {
		{Value: "meat_heavy", Label: "Meat Heavy"},
		{Value: "moderate_meat", Label: "Moderate Meat"},
		{Value: "vegetarian", Label: "Vegetarian"},
		{Value: "vegan", Label: "Vegan"},
	},
	FieldFoodWaste: {
		{Value: "high", Label: "High"},
		{Value: "medium", Label: "Medium"},
		{Value: "low", Label: "Low"},
	},
	FieldMealRatio: {
		{Value: "mostly_out", Label: "Mostly Dining Out"},
		{Value: "half_half", Label: "Half and Half"},
		{Value: "mostly_home", Label: "Mostly Home Cooked"},
	},
}

// IsKnownOption reports whether value is a listed option of field.
func IsKnownOption(field, value string) bool {
	for _, o := range Options[field] {
		if o.Value == value {
			return true
		}
	}
	return false
}

// UnknownOptions lists the categorical fields of a whose non-empty value is not
// a listed option. The estimator falls back to defaults for those.
func UnknownOptions(a Activities) []string {
	var unknown []string
	for _, name := range ActivityFields {
		if _, categorical := Options[name]; !categorical {
			continue
		}
		if v, _ := a.Get(name); v != "" && !IsKnownOption(name, v) {
			unknown = append(unknown, name)
		}
	}
	return unknown
}
