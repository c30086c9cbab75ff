package payroll_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/forgeline/payroll-engine/payroll"
)

func TestSocialSecurity_CeilingApplies(t *testing.T) {
	// GIVEN: 100000 gross, 5% would be 5000
	// WHEN: Computing the deduction
	// THEN: Clamped to the 750 ceiling

	got := payroll.SocialSecurityDeduction(decimal.NewFromInt(100000), false)
	assert.True(t, got.Equal(decimal.NewFromInt(750)), "got %s", got)
}

func TestSocialSecurity_FloorApplies(t *testing.T) {
	// GIVEN: 500 gross, 5% would be 25
	// WHEN: Computing the deduction
	// THEN: Raised to the 83 floor

	got := payroll.SocialSecurityDeduction(decimal.NewFromInt(500), false)
	assert.True(t, got.Equal(decimal.NewFromInt(83)), "got %s", got)
}

func TestSocialSecurity_InBand(t *testing.T) {
	// 5% of 10000 = 500, inside [83, 750].
	got := payroll.SocialSecurityDeduction(decimal.NewFromInt(10000), false)
	assert.True(t, got.Equal(decimal.NewFromInt(500)), "got %s", got)
}

func TestSocialSecurity_ExemptWorker_PaysNothing(t *testing.T) {
	// GIVEN: An exempt worker with any gross
	// WHEN: Computing the deduction
	// THEN: Zero, never the floor

	for _, gross := range []int64{0, 500, 100000} {
		got := payroll.SocialSecurityDeduction(decimal.NewFromInt(gross), true)
		assert.True(t, got.IsZero(), "gross %d: got %s", gross, got)
	}
}

func TestExemptWorker_PrefixRule(t *testing.T) {
	assert.True(t, payroll.ExemptWorker("9001"))
	assert.True(t, payroll.ExemptWorker("9"))
	assert.False(t, payroll.ExemptWorker("1009"))
	assert.False(t, payroll.ExemptWorker("0901"))
	assert.False(t, payroll.ExemptWorker(""))
}
