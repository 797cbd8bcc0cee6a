package enums

import (
	"fmt"
	"strings"
)

// Operator identifies the mobile-money network that settled a collection.
type Operator string

const (
	OperatorMTN    Operator = "MTN"
	OperatorOrange Operator = "ORANGE"
)

var validOperators = []Operator{
	OperatorMTN,
	OperatorOrange,
}

// String implements fmt.Stringer.
func (o Operator) String() string {
	return string(o)
}

// IsValid reports whether the value is a known Operator.
func (o Operator) IsValid() bool {
	for _, candidate := range validOperators {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOperator converts raw input into an Operator, tolerating case drift.
func ParseOperator(value string) (Operator, error) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	for _, candidate := range validOperators {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid operator %q", value)
}
