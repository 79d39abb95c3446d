package hierarchy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roles(levels []Level) []string {
	out := make([]string, len(levels))
	for i, l := range levels {
		out[i] = l.Role
	}
	return out
}

func TestResolve_CumulativeTiers(t *testing.T) {
	r := NewResolver(DefaultConfig())

	tests := []struct {
		name   string
		amount float64
		want   []string
	}{
		{"small amount needs AP only", 50_000, []string{RoleAccountsPayable}},
		{"mid amount adds department head", 250_000, []string{RoleAccountsPayable, RoleDepartmentHead}},
		{"large amount adds finance manager", 750_000, []string{RoleAccountsPayable, RoleDepartmentHead, RoleFinanceManager}},
		{"very large amount adds executive", 2_000_000, []string{RoleAccountsPayable, RoleDepartmentHead, RoleFinanceManager, RoleExecutive}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Resolve(tt.amount, "engineering", "existing")
			assert.Equal(t, tt.want, roles(got))
		})
	}
}

func TestResolve_BoundariesAreInclusive(t *testing.T) {
	r := NewResolver(DefaultConfig())

	below := r.Resolve(99_999.99, "ops", "existing")
	require.Len(t, below, 1)

	at := r.Resolve(100_000, "ops", "existing")
	require.Len(t, at, 2)
	assert.Equal(t, RoleDepartmentHead, at[1].Role)

	atFinance := r.Resolve(500_000, "ops", "existing")
	assert.Equal(t, RoleFinanceManager, atFinance[len(atFinance)-1].Role)

	atExec := r.Resolve(1_000_000, "ops", "existing")
	assert.Equal(t, RoleExecutive, atExec[len(atExec)-1].Role)
}

func TestResolve_LevelsNumberedFromOne(t *testing.T) {
	r := NewResolver(DefaultConfig())
	levels := r.Resolve(2_000_000, "ops", "existing")
	for i, l := range levels {
		assert.Equal(t, i+1, l.Level)
	}
}

func TestResolve_MonotonicSuperset(t *testing.T) {
	r := NewResolver(DefaultConfig())
	amounts := []float64{0, 99_999, 100_000, 499_999, 500_000, 999_999, 1_000_000, 5_000_000}
	prev := -1
	for _, amount := range amounts {
		n := len(r.Resolve(amount, "ops", "existing"))
		require.GreaterOrEqual(t, n, prev, "amount %v shrank the ladder", amount)
		prev = n
	}
}

func TestResolve_NewVendorRequiresCompliance(t *testing.T) {
	r := NewResolver(DefaultConfig())

	got := r.Resolve(50_000, "ops", "new")
	require.Equal(t, []string{RoleAccountsPayable, RoleVendorCompliance}, roles(got))

	got = r.Resolve(250_000, "ops", "unverified")
	require.Equal(t, []string{RoleAccountsPayable, RoleVendorCompliance, RoleDepartmentHead}, roles(got))

	got = r.Resolve(250_000, "ops", "existing")
	assert.NotContains(t, roles(got), RoleVendorCompliance)
}

func TestResolve_CustomConfig(t *testing.T) {
	r := NewResolver(Config{
		BaseRole:    "clerk",
		BaseTimeout: time.Hour,
		Tiers: []Tier{
			// Deliberately out of order; Resolve sorts by threshold.
			{Threshold: 10_000, Role: "cfo", Timeout: time.Hour},
			{Threshold: 1_000, Role: "lead", Timeout: time.Hour},
		},
	})
	got := r.Resolve(10_000, "ops", "existing")
	assert.Equal(t, []string{"clerk", "lead", "cfo"}, roles(got))
}

func TestResolve_ZeroConfigFallsBackToDefault(t *testing.T) {
	r := NewResolver(Config{})
	got := r.Resolve(1_000_000, "ops", "existing")
	require.Len(t, got, 4)
	assert.Equal(t, RoleAccountsPayable, got[0].Role)
	assert.Equal(t, 24*time.Hour, got[0].Timeout)
}
