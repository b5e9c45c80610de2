package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/containerd/errdefs"
)

// Activity field names as they appear on the wire and in storage.
const (
	FieldTransportMethod   = "transport_method"
	FieldCommuteDistance   = "commute_distance"
	FieldFlightsMonth      = "flights_month"
	FieldHomeType          = "home_type"
	FieldHeatingType       = "heating_type"
	FieldElectricitySource = "electricity_source"
	FieldDietType          = "diet_type"
	FieldFoodWaste         = "food_waste"
	FieldMealRatio         = "meal_ratio"
)

// ActivityFields lists every known activity field in form order.
var ActivityFields = []string{
	FieldTransportMethod,
	FieldCommuteDistance,
	FieldFlightsMonth,
	FieldHomeType,
	FieldHeatingType,
	FieldElectricitySource,
	FieldDietType,
	FieldFoodWaste,
	FieldMealRatio,
}

// Activities is a user's snapshot of daily lifestyle choices. Every field is
// optional and kept as the raw string the form submitted; the estimator
// applies defaults for anything empty or unrecognized.
type Activities struct {
	TransportMethod   string `json:"transport_method,omitempty" yaml:"transport_method,omitempty"`
	CommuteDistance   string `json:"commute_distance,omitempty" yaml:"commute_distance,omitempty"`
	FlightsMonth      string `json:"flights_month,omitempty" yaml:"flights_month,omitempty"`
	HomeType          string `json:"home_type,omitempty" yaml:"home_type,omitempty"`
	HeatingType       string `json:"heating_type,omitempty" yaml:"heating_type,omitempty"`
	ElectricitySource string `json:"electricity_source,omitempty" yaml:"electricity_source,omitempty"`
	DietType          string `json:"diet_type,omitempty" yaml:"diet_type,omitempty"`
	FoodWaste         string `json:"food_waste,omitempty" yaml:"food_waste,omitempty"`
	MealRatio         string `json:"meal_ratio,omitempty" yaml:"meal_ratio,omitempty"`
}

func (a *Activities) field(name string) *string {
	switch name {
	case FieldTransportMethod:
		return &a.TransportMethod
	case FieldCommuteDistance:
		return &a.CommuteDistance
	case FieldFlightsMonth:
		return &a.FlightsMonth
	case FieldHomeType:
		return &a.HomeType
	case FieldHeatingType:
		return &a.HeatingType
	case FieldElectricitySource:
		return &a.ElectricitySource
	case FieldDietType:
		return &a.DietType
	case FieldFoodWaste:
		return &a.FoodWaste
	case FieldMealRatio:
		return &a.MealRatio
	}
	return nil
}

// Get returns the value of the named field and whether the name is known.
func (a Activities) Get(name string) (string, bool) {
	p := a.field(name)
	if p == nil {
		return "", false
	}
	return *p, true
}

// Set assigns a single field. Unknown names are an invalid argument.
func (a *Activities) Set(name, value string) error {
	p := a.field(name)
	if p == nil {
		return fmt.Errorf("unknown activity field %q: %w", name, errdefs.ErrInvalidArgument)
	}
	*p = strings.TrimSpace(value)
	return nil
}

// ActivitiesFromMap builds Activities from a field map, rejecting unknown names.
func ActivitiesFromMap(m map[string]string) (Activities, error) {
	var a Activities
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := a.Set(k, m[k]); err != nil {
			return Activities{}, err
		}
	}
	return a, nil
}

// ActivitiesFromValues is ActivitiesFromMap for decoded JSON or protobuf
// Struct values. Numbers are accepted for any field and null means empty.
func ActivitiesFromValues(m map[string]any) (Activities, error) {
	fields := make(map[string]string, len(m))
	for k, v := range m {
		switch v := v.(type) {
		case nil:
			fields[k] = ""
		case string:
			fields[k] = v
		case float64:
			fields[k] = strconv.FormatFloat(v, 'f', -1, 64)
		case json.Number:
			fields[k] = v.String()
		default:
			return Activities{}, fmt.Errorf("field %q must be a string or number: %w", k, errdefs.ErrInvalidArgument)
		}
	}
	return ActivitiesFromMap(fields)
}

// Map returns the non-empty fields as a map.
func (a Activities) Map() map[string]string {
	out := make(map[string]string, len(ActivityFields))
	for _, name := range ActivityFields {
		if v, _ := a.Get(name); v != "" {
			out[name] = v
		}
	}
	return out
}

// ActivityPatch is a partial update: Set fields overwrite, Clear names are
// reset to empty.
type ActivityPatch struct {
	Set   Activities
	Clear []string
}

// PatchFromValues builds a patch from decoded JSON or protobuf Struct values.
// A null value clears its field; everything else follows ActivitiesFromValues.
func PatchFromValues(m map[string]any) (ActivityPatch, error) {
	var p ActivityPatch
	set := make(map[string]any, len(m))
	for k, v := range m {
		if v != nil {
			set[k] = v
			continue
		}
		if _, ok := p.Set.Get(k); !ok {
			return ActivityPatch{}, fmt.Errorf("unknown activity field %q: %w", k, errdefs.ErrInvalidArgument)
		}
		p.Clear = append(p.Clear, k)
	}
	sort.Strings(p.Clear)

	a, err := ActivitiesFromValues(set)
	if err != nil {
		return ActivityPatch{}, err
	}
	p.Set = a
	return p, nil
}

// IsEmpty reports whether the patch changes nothing.
func (p ActivityPatch) IsEmpty() bool {
	return p.Set.IsEmpty() && len(p.Clear) == 0
}

// Apply returns a copy of a with patch applied. Cleared fields are reset
// before set fields are written.
func (a Activities) Apply(patch ActivityPatch) Activities {
	out := a
	for _, name := range patch.Clear {
		if f := out.field(name); f != nil {
			*f = ""
		}
	}
	for _, name := range ActivityFields {
		if v, _ := patch.Set.Get(name); v != "" {
			*out.field(name) = v
		}
	}
	return out
}

// IsEmpty reports whether no field is set.
func (a Activities) IsEmpty() bool {
	return a == Activities{}
}

// ActivityProfile is the persisted activity record of one user.
type ActivityProfile struct {
	UserID     string     `json:"user_id"`
	Activities Activities `json:"activities"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
