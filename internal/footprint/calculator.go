// Package footprint estimates daily carbon emissions from lifestyle
// activities and derives reduction tips and weekly trend series from them.
package footprint

import (
	"math"
	"strconv"
	"strings"

	"github.com/ashureev/ecotrace/internal/domain"
)

// Calculate estimates daily emissions for a. It never fails: empty or
// unrecognized categorical values use the default weight and unparseable
// numbers count as zero.
func Calculate(a domain.Activities) domain.Emissions {
	return domain.Emissions{
		Transport: transportEmissions(a),
		Energy:    energyEmissions(a),
		Food:      foodEmissions(a),
	}
}

func transportEmissions(a domain.Activities) float64 {
	factor := transportFactors.lookup(a.TransportMethod)
	distance := parseDistance(a.CommuteDistance)
	flights := parseCount(a.FlightsMonth)
	return factor*distance*commuteLegs + float64(flights)*flightKg
}

func energyEmissions(a domain.Activities) float64 {
	return homeBase.lookup(a.HomeType) *
		heatingMultipliers.lookup(a.HeatingType) *
		electricityMultipliers.lookup(a.ElectricitySource)
}

func foodEmissions(a domain.Activities) float64 {
	return dietBase.lookup(a.DietType) *
		wasteMultipliers.lookup(a.FoodWaste) *
		mealMultipliers.lookup(a.MealRatio)
}

// parseDistance reads the leading decimal number of s ("12.5 km" is 12.5).
// Missing, negative or non-finite values are 0.
func parseDistance(s string) float64 {
	prefix := numericPrefix(strings.TrimSpace(s), true)
	if prefix == "" {
		return 0
	}
	v, err := strconv.ParseFloat(prefix, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}

// parseCount reads the leading integer of s ("2.7" is 2). Missing or
// negative values are 0.
func parseCount(s string) int64 {
	prefix := numericPrefix(strings.TrimSpace(s), false)
	if prefix == "" {
		return 0
	}
	v, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// numericPrefix returns the longest prefix of s that forms a number, or ""
// when s does not start with one.
func numericPrefix(s string, decimal bool) string {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	digits := 0
	for i < len(s) && isDigit(s[i]) {
		i++
		digits++
	}
	if decimal && i < len(s) && s[i] == '.' {
		j := i + 1
		frac := 0
		for j < len(s) && isDigit(s[j]) {
			j++
			frac++
		}
		if digits+frac > 0 {
			i = j
			digits += frac
		}
	}
	if digits == 0 {
		return ""
	}
	if decimal && i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		exp := 0
		for j < len(s) && isDigit(s[j]) {
			j++
			exp++
		}
		if exp > 0 {
			i = j
		}
	}
	return s[:i]
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
