// Package hierarchy computes the ordered list of approval levels required
// for a monetary request. Resolution is a pure function of the input amount,
// department and vendor type; it runs once at workflow start and is never
// recomputed mid-flight.
package hierarchy

import (
	"sort"
	"time"
)

// Standard approver roles, ordered by increasing approval authority.
const (
	RoleAccountsPayable  = "accounts-payable"
	RoleVendorCompliance = "vendor-compliance"
	RoleDepartmentHead   = "department-head"
	RoleFinanceManager   = "finance-manager"
	RoleExecutive        = "executive"
)

// Level is one required approval step: who must decide, and how long they
// get before the absence of a decision is treated as an automatic rejection.
type Level struct {
	Level   int
	Role    string
	Timeout time.Duration
}

// Tier adds a role once the amount reaches Threshold. Thresholds are
// cumulative: a tier at or above its boundary adds a level on top of all
// lower tiers rather than replacing them. The boundary itself is inclusive:
// an amount exactly equal to Threshold includes the tier.
type Tier struct {
	Threshold float64
	Role      string
	Timeout   time.Duration
}

// Config holds the tier table and base settings.
type Config struct {
	// BaseRole is always required regardless of amount.
	BaseRole    string
	BaseTimeout time.Duration

	// Tiers are evaluated in ascending Threshold order.
	Tiers []Tier

	// ComplianceVendorTypes lists vendor types (e.g. unvetted new vendors)
	// that require a vendor-compliance review level directly after the
	// base level, regardless of amount.
	ComplianceVendorTypes []string
	ComplianceTimeout     time.Duration
}

// DefaultConfig returns the standard approval ladder:
//
//	accounts-payable  always           (24h)
//	department-head   >= 100,000       (48h)
//	finance-manager   >= 500,000       (72h)
//	executive         >= 1,000,000     (72h)
func DefaultConfig() Config {
	return Config{
		BaseRole:    RoleAccountsPayable,
		BaseTimeout: 24 * time.Hour,
		Tiers: []Tier{
			{Threshold: 100_000, Role: RoleDepartmentHead, Timeout: 48 * time.Hour},
			{Threshold: 500_000, Role: RoleFinanceManager, Timeout: 72 * time.Hour},
			{Threshold: 1_000_000, Role: RoleExecutive, Timeout: 72 * time.Hour},
		},
		ComplianceVendorTypes: []string{"new", "unverified"},
		ComplianceTimeout:     24 * time.Hour,
	}
}

// Resolver resolves approval hierarchies from a fixed configuration.
type Resolver struct {
	cfg Config
}

// NewResolver creates a Resolver. A zero-value config falls back to
// DefaultConfig.
func NewResolver(cfg Config) *Resolver {
	if cfg.BaseRole == "" && len(cfg.Tiers) == 0 {
		cfg = DefaultConfig()
	}
	return &Resolver{cfg: cfg}
}

// Resolve returns the ordered approval levels for the given request.
// Levels are numbered from 1 and monotonically non-decreasing in authority;
// for amounts a1 < a2, Resolve(a2) is a superset of Resolve(a1).
func (r *Resolver) Resolve(amount float64, department, vendorType string) []Level {
	_ = department // reserved for department-scoped routing rules

	tiers := make([]Tier, len(r.cfg.Tiers))
	copy(tiers, r.cfg.Tiers)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].Threshold < tiers[j].Threshold })

	levels := []Level{{Role: r.cfg.BaseRole, Timeout: r.cfg.BaseTimeout}}

	if r.requiresCompliance(vendorType) {
		levels = append(levels, Level{Role: RoleVendorCompliance, Timeout: r.cfg.ComplianceTimeout})
	}

	for _, t := range tiers {
		if amount >= t.Threshold {
			levels = append(levels, Level{Role: t.Role, Timeout: t.Timeout})
		}
	}

	for i := range levels {
		levels[i].Level = i + 1
	}
	return levels
}

func (r *Resolver) requiresCompliance(vendorType string) bool {
	for _, t := range r.cfg.ComplianceVendorTypes {
		if t == vendorType {
			return true
		}
	}
	return false
}
