package workflows

import (
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"sync"

	"github.com/vextrus/vextrus-erp-sub018/pkg/activity"
)

// Activity names consumed by the definitions. Implementations are external
// collaborators; the definitions only depend on these contracts.
const (
	ActivityValidateInput      = "ValidateInput"
	ActivityCheckDuplicate     = "CheckDuplicate"
	ActivityValidateParty      = "ValidateCounterpartyStatus"
	ActivityMatchReference     = "MatchAgainstReference"
	ActivityComputeWithholding = "ComputeWithholding"
	ActivityCheckBudget        = "CheckBudgetAvailability"
	ActivityNotifyApprover     = "NotifyApprover"
	ActivityCreatePayment      = "CreatePaymentRecord"
	ActivityPostLedger         = "PostLedger"
	ActivityNotifyParty        = "NotifyParty"
	ActivityRecordAudit        = "RecordAudit"
)

// ValidateInputRequest asks for structural validation of process input.
type ValidateInputRequest struct {
	Kind       string
	Key        string
	Department string
	Amount     float64
}

// ValidationResult reports structural validity.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// DuplicateCheck reports whether a business key was already processed.
type DuplicateCheck struct {
	IsDuplicate bool
	ExistingID  string
}

// CounterpartyStatus reports whether a vendor/party may transact.
type CounterpartyStatus struct {
	Active bool
	Reason string
}

// MatchRequest asks for an invoice-vs-purchase-order comparison.
type MatchRequest struct {
	ReferenceID string
	Amount      float64
}

// MatchResult reports the comparison. VariancePercent is the absolute
// percentage difference against the reference amount.
type MatchResult struct {
	Matches         bool
	VariancePercent float64
}

// WithholdingRequest asks for tax withholding on a payment.
type WithholdingRequest struct {
	PartyType string
	Amount    float64
}

// Withholding is the computed tax amount.
type Withholding struct {
	TaxAmount float64
}

// BudgetRequest asks whether a scope has budget available.
type BudgetRequest struct {
	Scope  string
	Amount float64
}

// BudgetCheck reports availability.
type BudgetCheck struct {
	Available bool
	Remaining float64
}

// NotifyApproverRequest notifies the approver holding a role.
type NotifyApproverRequest struct {
	Role   string
	Scope  string
	Amount float64
}

// PaymentRequest creates the payment for an approved invoice.
type PaymentRequest struct {
	InvoiceID string
	VendorID  string
	Amount    float64
	TaxAmount float64
}

// PaymentRecord identifies the created payment.
type PaymentRecord struct {
	PaymentID string
}

// LedgerEntry posts an approved payment to the ledger.
type LedgerEntry struct {
	PaymentID string
	Scope     string
	Amount    float64
}

// Notification informs an interested party of a terminal outcome.
type Notification struct {
	PartyID string
	Subject string
	Body    string
}

// AuditRecord captures a terminal decision for the audit trail.
type AuditRecord struct {
	ProcessKind string
	ReferenceID string
	Decision    Decision
	Reason      string
}

func init() {
	gob.Register(ValidateInputRequest{})
	gob.Register(ValidationResult{})
	gob.Register(DuplicateCheck{})
	gob.Register(CounterpartyStatus{})
	gob.Register(MatchRequest{})
	gob.Register(MatchResult{})
	gob.Register(WithholdingRequest{})
	gob.Register(Withholding{})
	gob.Register(BudgetRequest{})
	gob.Register(BudgetCheck{})
	gob.Register(NotifyApproverRequest{})
	gob.Register(PaymentRequest{})
	gob.Register(PaymentRecord{})
	gob.Register(LedgerEntry{})
	gob.Register(Notification{})
	gob.Register(AuditRecord{})
}

// ReferenceActivities is a contract-shaped implementation of the activity
// surface, sufficient for the examples and scenario tests. Real deployments
// register their own implementations under the same names.
type ReferenceActivities struct {
	mu sync.Mutex

	// SeenKeys maps business keys to existing record IDs for duplicate
	// detection.
	SeenKeys map[string]string

	// InactiveParties maps vendor IDs to a deactivation reason.
	InactiveParties map[string]string

	// ReferenceAmounts maps purchase-order IDs to their committed amount.
	ReferenceAmounts map[string]float64

	// BudgetByScope maps a department to its remaining budget. Scopes not
	// present are treated as unlimited.
	BudgetByScope map[string]float64

	// WithholdingRates maps party types to tax rates; unknown types pay no
	// withholding.
	WithholdingRates map[string]float64

	payments int
	audits   []AuditRecord
}

// Register wires the reference implementations into the registry.
func (a *ReferenceActivities) Register(reg *activity.Registry) {
	reg.MustRegister(ActivityValidateInput, a.validateInput)
	reg.MustRegister(ActivityCheckDuplicate, a.checkDuplicate)
	reg.MustRegister(ActivityValidateParty, a.validateParty)
	reg.MustRegister(ActivityMatchReference, a.matchReference)
	reg.MustRegister(ActivityComputeWithholding, a.computeWithholding)
	reg.MustRegister(ActivityCheckBudget, a.checkBudget)
	reg.MustRegister(ActivityNotifyApprover, a.notify)
	reg.MustRegister(ActivityCreatePayment, a.createPayment)
	reg.MustRegister(ActivityPostLedger, a.postLedger)
	reg.MustRegister(ActivityNotifyParty, a.notify)
	reg.MustRegister(ActivityRecordAudit, a.recordAudit)
}

// Audits returns the audit records captured so far.
func (a *ReferenceActivities) Audits() []AuditRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]AuditRecord, len(a.audits))
	copy(out, a.audits)
	return out
}

func (a *ReferenceActivities) validateInput(ctx context.Context, input any) (any, error) {
	req, ok := input.(ValidateInputRequest)
	if !ok {
		return nil, fmt.Errorf("ValidateInput: unexpected input %T", input)
	}
	var errs []string
	if req.Key == "" {
		errs = append(errs, "business key is required")
	}
	if req.Department == "" {
		errs = append(errs, "department is required")
	}
	if req.Amount < 0 {
		errs = append(errs, "amount must not be negative")
	}
	if req.Kind != "onboarding" && req.Amount == 0 {
		errs = append(errs, "amount is required")
	}
	return ValidationResult{Valid: len(errs) == 0, Errors: errs}, nil
}

func (a *ReferenceActivities) checkDuplicate(ctx context.Context, input any) (any, error) {
	key, ok := input.(string)
	if !ok {
		return nil, fmt.Errorf("CheckDuplicate: unexpected input %T", input)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if existing, dup := a.SeenKeys[key]; dup {
		return DuplicateCheck{IsDuplicate: true, ExistingID: existing}, nil
	}
	return DuplicateCheck{}, nil
}

func (a *ReferenceActivities) validateParty(ctx context.Context, input any) (any, error) {
	id, ok := input.(string)
	if !ok {
		return nil, fmt.Errorf("ValidateCounterpartyStatus: unexpected input %T", input)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if reason, inactive := a.InactiveParties[id]; inactive {
		return CounterpartyStatus{Active: false, Reason: reason}, nil
	}
	return CounterpartyStatus{Active: true}, nil
}

func (a *ReferenceActivities) matchReference(ctx context.Context, input any) (any, error) {
	req, ok := input.(MatchRequest)
	if !ok {
		return nil, fmt.Errorf("MatchAgainstReference: unexpected input %T", input)
	}
	a.mu.Lock()
	reference, found := a.ReferenceAmounts[req.ReferenceID]
	a.mu.Unlock()
	if !found {
		return MatchResult{Matches: false, VariancePercent: 100}, nil
	}
	if reference == 0 {
		return MatchResult{Matches: req.Amount == 0}, nil
	}
	variance := math.Abs(req.Amount-reference) / reference * 100
	return MatchResult{Matches: variance == 0, VariancePercent: variance}, nil
}

func (a *ReferenceActivities) computeWithholding(ctx context.Context, input any) (any, error) {
	req, ok := input.(WithholdingRequest)
	if !ok {
		return nil, fmt.Errorf("ComputeWithholding: unexpected input %T", input)
	}
	a.mu.Lock()
	rate := a.WithholdingRates[req.PartyType]
	a.mu.Unlock()
	return Withholding{TaxAmount: req.Amount * rate}, nil
}

func (a *ReferenceActivities) checkBudget(ctx context.Context, input any) (any, error) {
	req, ok := input.(BudgetRequest)
	if !ok {
		return nil, fmt.Errorf("CheckBudgetAvailability: unexpected input %T", input)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	remaining, limited := a.BudgetByScope[req.Scope]
	if !limited {
		return BudgetCheck{Available: true}, nil
	}
	if req.Amount > remaining {
		return BudgetCheck{Available: false, Remaining: remaining}, nil
	}
	return BudgetCheck{Available: true, Remaining: remaining - req.Amount}, nil
}

func (a *ReferenceActivities) notify(ctx context.Context, input any) (any, error) {
	// Notification delivery is fire-and-forget here.
	return nil, nil
}

func (a *ReferenceActivities) createPayment(ctx context.Context, input any) (any, error) {
	if _, ok := input.(PaymentRequest); !ok {
		return nil, fmt.Errorf("CreatePaymentRecord: unexpected input %T", input)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.payments++
	return PaymentRecord{PaymentID: fmt.Sprintf("pay-%04d", a.payments)}, nil
}

func (a *ReferenceActivities) postLedger(ctx context.Context, input any) (any, error) {
	if _, ok := input.(LedgerEntry); !ok {
		return nil, fmt.Errorf("PostLedger: unexpected input %T", input)
	}
	return nil, nil
}

func (a *ReferenceActivities) recordAudit(ctx context.Context, input any) (any, error) {
	rec, ok := input.(AuditRecord)
	if !ok {
		return nil, fmt.Errorf("RecordAudit: unexpected input %T", input)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.audits = append(a.audits, rec)
	return nil, nil
}
