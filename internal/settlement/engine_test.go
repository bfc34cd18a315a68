package settlement

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func obligation(id int64, due string, outstanding float64) CreditObligation {
	dueDate, err := time.Parse("2006-01-02", due)
	if err != nil {
		panic(err)
	}
	return CreditObligation{ID: id, CustomerID: 1, DueDate: dueDate, OutstandingAmount: outstanding}
}

func TestAllocateOldestFirstOrdering(t *testing.T) {
	obligations := []CreditObligation{
		obligation(3, "2024-03-01", 100),
		obligation(1, "2024-01-01", 50),
		obligation(2, "2024-02-01", 30),
	}

	result, err := AllocateOldestFirst(120, obligations)
	require.NoError(t, err)
	require.Len(t, result.Entries, 3)

	require.Equal(t, int64(1), result.Entries[0].ObligationID)
	require.Equal(t, 50.0, result.Entries[0].Applied)
	require.Equal(t, 0.0, result.Entries[0].Remaining)

	require.Equal(t, int64(2), result.Entries[1].ObligationID)
	require.Equal(t, 30.0, result.Entries[1].Applied)
	require.Equal(t, 0.0, result.Entries[1].Remaining)

	require.Equal(t, int64(3), result.Entries[2].ObligationID)
	require.Equal(t, 40.0, result.Entries[2].Applied)
	require.Equal(t, 60.0, result.Entries[2].Remaining)

	require.Equal(t, 120.0, result.TotalApplied)
	require.Equal(t, 0.0, result.Unallocated)
}

func TestAllocateOldestFirstStopsEarly(t *testing.T) {
	obligations := []CreditObligation{
		obligation(1, "2024-01-01", 40),
		obligation(2, "2024-02-01", 40),
		obligation(3, "2024-03-01", 40),
	}

	result, err := AllocateOldestFirst(40, obligations)
	require.NoError(t, err)
	require.Len(t, result.Entries, 1, "obligations past the exhausted pool must be omitted")
	require.Equal(t, int64(1), result.Entries[0].ObligationID)
	require.Equal(t, 40.0, result.TotalApplied)
	require.Equal(t, 0.0, result.Unallocated)
}

func TestAllocateOldestFirstTieBrokenByID(t *testing.T) {
	obligations := []CreditObligation{
		obligation(9, "2024-01-01", 10),
		obligation(4, "2024-01-01", 10),
	}

	result, err := AllocateOldestFirst(15, obligations)
	require.NoError(t, err)
	require.Equal(t, int64(4), result.Entries[0].ObligationID)
	require.Equal(t, int64(9), result.Entries[1].ObligationID)
	require.Equal(t, 5.0, result.Entries[1].Applied)
	require.Equal(t, 5.0, result.Entries[1].Remaining)
}

func TestAllocateOldestFirstOverpaymentReported(t *testing.T) {
	obligations := []CreditObligation{
		obligation(1, "2024-01-01", 25.50),
		obligation(2, "2024-02-01", 10.25),
	}

	result, err := AllocateOldestFirst(100, obligations)
	require.NoError(t, err)
	require.Equal(t, 35.75, result.TotalApplied)
	require.Equal(t, 64.25, result.Unallocated)
	for _, e := range result.Entries {
		require.Equal(t, 0.0, e.Remaining)
	}
}

func TestAllocateOldestFirstConservation(t *testing.T) {
	obligations := []CreditObligation{
		obligation(1, "2023-11-05", 19.99),
		obligation(2, "2023-12-01", 250.10),
		obligation(3, "2024-01-15", 0.03),
	}

	for _, total := range []float64{0.01, 19.99, 20.00, 135.55, 270.12, 500} {
		result, err := AllocateOldestFirst(total, obligations)
		require.NoError(t, err)
		require.Equal(t, total, round2(result.TotalApplied+result.Unallocated), "total %v", total)
		for _, e := range result.Entries {
			require.LessOrEqual(t, e.Applied, round2(obligations[e.ObligationID-1].OutstandingAmount))
		}
	}
}

func TestAllocateOldestFirstExactMatch(t *testing.T) {
	obligations := []CreditObligation{
		obligation(1, "2024-01-01", 60),
		obligation(2, "2024-02-01", 40),
	}

	result, err := AllocateOldestFirst(100, obligations)
	require.NoError(t, err)
	require.Equal(t, 0.0, result.Unallocated)
	for _, e := range result.Entries {
		require.Equal(t, 0.0, e.Remaining)
	}
}

func TestAllocateOldestFirstEmptySet(t *testing.T) {
	result, err := AllocateOldestFirst(100, nil)
	require.NoError(t, err)
	require.Empty(t, result.Entries)
	require.Equal(t, 0.0, result.TotalApplied)
	require.Equal(t, 100.0, result.Unallocated)
}

func TestAllocateOldestFirstNonPositiveTotal(t *testing.T) {
	for _, total := range []float64{0, -10, 0.004} {
		_, err := AllocateOldestFirst(total, []CreditObligation{obligation(1, "2024-01-01", 50)})
		var violation *RuleViolation
		require.True(t, errors.As(err, &violation), "total %v", total)
		require.Equal(t, RuleNonPositiveAmount, violation.Rule)
	}
}

func TestAllocateBySelectionCallerOrder(t *testing.T) {
	obligations := []CreditObligation{
		obligation(1, "2024-01-01", 50),
		obligation(2, "2024-02-01", 30),
		obligation(3, "2024-03-01", 100),
	}
	byID := ObligationsByID(obligations)

	result, err := AllocateBySelection([]AllocationTarget{
		{ObligationID: 3, Amount: 70},
		{ObligationID: 1, Amount: 20},
	}, byID)
	require.NoError(t, err)
	require.Len(t, result.Entries, 2)
	require.Equal(t, int64(3), result.Entries[0].ObligationID)
	require.Equal(t, 70.0, result.Entries[0].Applied)
	require.Equal(t, 30.0, result.Entries[0].Remaining)
	require.Equal(t, int64(1), result.Entries[1].ObligationID)
	require.Equal(t, 20.0, result.Entries[1].Applied)
	require.Equal(t, 30.0, result.Entries[1].Remaining)
	require.Equal(t, 90.0, result.TotalApplied)
	require.Equal(t, 0.0, result.Unallocated, "selective mode is exhaustive by construction")
}

func TestAllocateBySelectionToleranceClamp(t *testing.T) {
	byID := ObligationsByID([]CreditObligation{obligation(1, "2024-01-01", 100)})

	result, err := AllocateBySelection([]AllocationTarget{{ObligationID: 1, Amount: 99.999}}, byID)
	require.NoError(t, err)
	require.Equal(t, 100.0, result.Entries[0].Applied)
	require.Equal(t, 0.0, result.Entries[0].Remaining)

	result, err = AllocateBySelection([]AllocationTarget{{ObligationID: 1, Amount: 100.009}}, byID)
	require.NoError(t, err)
	require.Equal(t, 100.0, result.Entries[0].Applied, "applied amount never exceeds true outstanding")
}

func TestAllocateBySelectionRejectsExcess(t *testing.T) {
	byID := ObligationsByID([]CreditObligation{obligation(1, "2024-01-01", 100)})

	_, err := AllocateBySelection([]AllocationTarget{{ObligationID: 1, Amount: 105}}, byID)
	var violation *RuleViolation
	require.True(t, errors.As(err, &violation))
	require.Equal(t, RuleAmountExceedsOutstanding, violation.Rule)
	require.Equal(t, int64(1), violation.ObligationID)
}
