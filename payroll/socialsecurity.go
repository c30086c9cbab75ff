package payroll

import (
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SOCIAL SECURITY - Statutory deduction
// =============================================================================

// Statutory parameters: 5% of gross, clamped to [83, 750]. Workers whose
// external identifier begins with "9" are exempt and always deduct zero -
// the exemption is checked BEFORE the clamp, so an exempt worker never pays
// the floor.
var (
	socialSecurityRate    = decimal.NewFromFloat(0.05)
	socialSecurityFloor   = decimal.NewFromInt(83)
	socialSecurityCeiling = decimal.NewFromInt(750)
)

// ExemptWorker reports whether the worker's external identifier marks them
// exempt from social security.
func ExemptWorker(workerID WorkerID) bool {
	return strings.HasPrefix(string(workerID), "9")
}

// SocialSecurityDeduction computes the period's statutory withholding for
// one worker's gross wage.
func SocialSecurityDeduction(gross decimal.Decimal, exempt bool) decimal.Decimal {
	if exempt {
		return decimal.Zero
	}
	base := gross.Mul(socialSecurityRate)
	if base.LessThan(socialSecurityFloor) {
		return socialSecurityFloor
	}
	if base.GreaterThan(socialSecurityCeiling) {
		return socialSecurityCeiling
	}
	return base
}
