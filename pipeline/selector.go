package pipeline

import (
	"math"

	"github.com/YuminosukeSato/ridecast/metrics"
	"github.com/YuminosukeSato/ridecast/pkg/errors"
)

// Selection names the winning variant and its held-out metrics.
type Selection struct {
	Name    string
	Metrics metrics.MetricSet
}

// Select picks the successful variant with the highest R2. Ties go to the
// variant that appears first; a NaN R2 never wins. When no variant
// succeeded the error is an *errors.AllVariantsFailedError.
func Select(results []VariantResult) (Selection, error) {
	order := make([]string, 0, len(results))
	for _, r := range results {
		if r.OK() {
			order = append(order, string(r.Name))
		}
	}
	sel, ok := pick(order, Summarize(results))
	if !ok {
		return Selection{}, errors.NewAllVariantsFailedError(Failures(results))
	}
	return sel, nil
}

// SelectFromSummary applies the same rule to a bare summary, visiting names
// in order.
func SelectFromSummary(order []string, s metrics.Summary) (Selection, error) {
	sel, ok := pick(order, s)
	if !ok {
		return Selection{}, errors.NewValueError("SelectFromSummary", "no variant with a finite R2")
	}
	return sel, nil
}

func pick(order []string, s metrics.Summary) (Selection, bool) {
	var best Selection
	found := false
	for _, name := range order {
		ms, ok := s[name]
		if !ok || math.IsNaN(ms.R2) {
			continue
		}
		if !found || ms.R2 > best.Metrics.R2 {
			best = Selection{Name: name, Metrics: ms}
			found = true
		}
	}
	return best, found
}
