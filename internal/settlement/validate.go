package settlement

import "fmt"

// Rule identifies a validation rule an allocation request can violate.
type Rule string

const (
	RuleNonPositiveAmount        Rule = "NON_POSITIVE_AMOUNT"
	RuleAmountExceedsOutstanding Rule = "AMOUNT_EXCEEDS_OUTSTANDING"
	RuleUnknownObligation        Rule = "UNKNOWN_OBLIGATION"
	RuleDuplicateTarget          Rule = "DUPLICATE_TARGET"
	RuleEmptyTargetSet           Rule = "EMPTY_TARGET_SET"
)

// RuleViolation reports the first rule an allocation request violates,
// with enough context for field-level feedback. It is returned as a plain
// error value; callers match it with errors.As.
type RuleViolation struct {
	Rule         Rule
	ObligationID int64
	Detail       string
}

func (v *RuleViolation) Error() string {
	if v.ObligationID != 0 {
		return fmt.Sprintf("settlement: %s (obligation %d): %s", v.Rule, v.ObligationID, v.Detail)
	}
	return fmt.Sprintf("settlement: %s: %s", v.Rule, v.Detail)
}

// ValidateTotal checks a simple-mode request before the engine runs.
// It is pure and safe to re-run on every input change.
func ValidateTotal(total float64, obligations []CreditObligation) error {
	if round2(total) <= 0 {
		return &RuleViolation{Rule: RuleNonPositiveAmount, Detail: "total amount must be positive"}
	}
	if len(obligations) == 0 {
		return &RuleViolation{Rule: RuleEmptyTargetSet, Detail: "no outstanding obligations selected"}
	}
	return nil
}

// ValidateSelection checks a selective-mode request before the engine runs.
// Targets are walked in caller order and the first violation aborts.
func ValidateSelection(targets []AllocationTarget, byID map[int64]CreditObligation) error {
	if len(targets) == 0 {
		return &RuleViolation{Rule: RuleEmptyTargetSet, Detail: "no allocation targets supplied"}
	}
	seen := make(map[int64]bool, len(targets))
	for _, t := range targets {
		o, ok := byID[t.ObligationID]
		if !ok {
			return &RuleViolation{Rule: RuleUnknownObligation, ObligationID: t.ObligationID, Detail: "obligation not in supplied set"}
		}
		if seen[t.ObligationID] {
			return &RuleViolation{Rule: RuleDuplicateTarget, ObligationID: t.ObligationID, Detail: "obligation targeted more than once"}
		}
		seen[t.ObligationID] = true
		amount := round2(t.Amount)
		if amount <= 0 {
			return &RuleViolation{Rule: RuleNonPositiveAmount, ObligationID: t.ObligationID, Detail: "requested amount must be positive"}
		}
		if amount > round2(o.OutstandingAmount)+Tolerance {
			return &RuleViolation{
				Rule:         RuleAmountExceedsOutstanding,
				ObligationID: t.ObligationID,
				Detail:       fmt.Sprintf("requested %.2f exceeds outstanding %.2f", amount, o.OutstandingAmount),
			}
		}
	}
	return nil
}
