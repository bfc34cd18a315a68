package settlement

import (
	"math"
	"sort"
)

// Tolerance absorbs display/floating-point rounding when comparing a
// requested amount against an outstanding balance.
const Tolerance = 0.01

// AllocateOldestFirst distributes total across obligations in ascending
// due-date order, ties broken by ID. Each obligation receives
// min(remaining pool, outstanding); obligations past the point where the
// pool runs out are omitted. A pool larger than the combined outstanding is
// reported as Unallocated, never dropped.
func AllocateOldestFirst(total float64, obligations []CreditObligation) (AllocationResult, error) {
	total = round2(total)
	if total <= 0 {
		return AllocationResult{}, &RuleViolation{Rule: RuleNonPositiveAmount, Detail: "total amount must be positive"}
	}

	sorted := append([]CreditObligation(nil), obligations...)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].DueDate.Equal(sorted[j].DueDate) {
			return sorted[i].DueDate.Before(sorted[j].DueDate)
		}
		return sorted[i].ID < sorted[j].ID
	})

	result := AllocationResult{}
	pool := total
	for _, o := range sorted {
		if pool <= 0 {
			break
		}
		outstanding := round2(o.OutstandingAmount)
		applied := round2(math.Min(pool, outstanding))
		result.Entries = append(result.Entries, AllocationEntry{
			ObligationID: o.ID,
			Applied:      applied,
			Remaining:    round2(outstanding - applied),
		})
		pool = round2(pool - applied)
	}
	result.TotalApplied = round2(total - pool)
	result.Unallocated = pool
	return result, nil
}

// AllocateBySelection applies the caller-chosen amounts to the caller-chosen
// obligations in the caller's order. Validation runs first and the first
// violated rule aborts. A requested amount within Tolerance of the full
// outstanding balance settles the obligation exactly; an applied amount
// never exceeds the true outstanding.
func AllocateBySelection(targets []AllocationTarget, byID map[int64]CreditObligation) (AllocationResult, error) {
	if err := ValidateSelection(targets, byID); err != nil {
		return AllocationResult{}, err
	}

	result := AllocationResult{}
	for _, t := range targets {
		outstanding := round2(byID[t.ObligationID].OutstandingAmount)
		applied := round2(t.Amount)
		if applied > outstanding || outstanding-applied <= Tolerance {
			applied = outstanding
		}
		result.Entries = append(result.Entries, AllocationEntry{
			ObligationID: t.ObligationID,
			Applied:      applied,
			Remaining:    round2(outstanding - applied),
		})
		result.TotalApplied = round2(result.TotalApplied + applied)
	}
	result.Unallocated = 0
	return result, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
