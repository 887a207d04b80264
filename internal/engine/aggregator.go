package engine

import (
	"fmt"
	"math"
	"sort"

	"dashboard/internal/models"
)

// Rank orders the regions of a table by one indicator column, highest first.
// Rows whose indicator value is not a finite number count as missing.
func Rank(t *Table, labelColumn, valueColumn string) (*models.Ranking, error) {
	labels, ok := t.Column(labelColumn)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingColumn, labelColumn)
	}
	values, ok := t.Column(valueColumn)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingColumn, valueColumn)
	}

	out := &models.Ranking{
		Indicator: valueColumn,
		Items:     make([]models.RankedItem, 0, len(values)),
	}
	sum := 0.0
	lo, hi := math.Inf(1), math.Inf(-1)
	for i, v := range values {
		if !v.Finite() {
			out.Summary.Missing++
			continue
		}
		out.Items = append(out.Items, models.RankedItem{Region: labels[i].Text(), Value: v.Num})
		sum += v.Num
		lo = math.Min(lo, v.Num)
		hi = math.Max(hi, v.Num)
	}

	// Sort: value desc, ties by region name
	sort.Slice(out.Items, func(i, j int) bool {
		a, b := out.Items[i], out.Items[j]
		if a.Value != b.Value {
			return a.Value > b.Value
		}
		return a.Region < b.Region
	})
	for i := range out.Items {
		out.Items[i].Rank = i + 1
	}

	if n := len(out.Items); n > 0 {
		out.Summary.Count = n
		out.Summary.Min = lo
		out.Summary.Max = hi
		out.Summary.Mean = sum / float64(n)
	}
	return out, nil
}
