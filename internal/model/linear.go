package model

import (
	"fmt"
)

// linearModel scores a row as intercept + sum of numeric coefficients plus
// one-hot category weights. A category value absent from the weight table
// is the reference (dropped) level and contributes nothing.
type linearModel struct {
	intercept    float64
	coefficients map[string]float64
	categories   map[string]map[string]float64
}

func newLinearModel(spec modelSpec) *linearModel {
	return &linearModel{
		intercept:    spec.Intercept,
		coefficients: spec.Coefficients,
		categories:   spec.Categories,
	}
}

func (m *linearModel) Predict(features map[string]any) (float64, error) {
	out := m.intercept

	for name, coef := range m.coefficients {
		v, ok := features[name]
		if !ok {
			return 0, fmt.Errorf("feature %q missing from row", name)
		}
		num, err := toFloat(v)
		if err != nil {
			return 0, fmt.Errorf("feature %q: %w", name, err)
		}
		out += coef * num
	}

	for name, levels := range m.categories {
		v, ok := features[name]
		if !ok {
			return 0, fmt.Errorf("feature %q missing from row", name)
		}
		out += levels[fmt.Sprintf("%v", v)]
	}

	return out, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("value %v (%T) is not numeric", v, v)
	}
}
