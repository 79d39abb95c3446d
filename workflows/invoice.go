package workflows

import (
	"fmt"

	"github.com/vextrus/vextrus-erp-sub018/pkg/workflow"
)

// TypeInvoiceApproval is the registered name of the invoice process.
const TypeInvoiceApproval = "invoice-approval"

// InvoiceApproval validates an invoice, matches it against its purchase
// order when one is referenced, walks the approval ladder, and on full
// approval creates the payment and posts it to the ledger. A PO-match
// variance above the configured cutoff parks the invoice OnHold for manual
// reconciliation; no payment activities run in that case.
func InvoiceApproval(cfg Config) workflow.Definition {
	cfg = cfg.withDefaults()
	return func(ctx *workflow.Context) (any, error) {
		inv, err := workflow.Input[Invoice](ctx)
		if err != nil {
			return nil, err
		}
		st := &chainState{phase: "validating"}
		registerQueries(ctx, st)

		finish := func(out Outcome) (any, error) {
			st.phase = "finished"
			if _, err := ctx.ExecuteActivity(ActivityNotifyParty, Notification{
				PartyID: inv.VendorID,
				Subject: fmt.Sprintf("invoice %s: %s", inv.InvoiceNumber, out.Decision),
				Body:    out.Reason,
			}); err != nil {
				return nil, err
			}
			if _, err := ctx.ExecuteActivity(ActivityRecordAudit, AuditRecord{
				ProcessKind: "invoice",
				ReferenceID: inv.ID,
				Decision:    out.Decision,
				Reason:      out.Reason,
			}); err != nil {
				return nil, err
			}
			return out, nil
		}
		rejected := func(reason string) (any, error) {
			return finish(Outcome{Decision: DecisionRejected, Reason: reason, Steps: st.steps})
		}

		v, err := workflow.Call[ValidationResult](ctx, ActivityValidateInput, ValidateInputRequest{
			Kind:       "invoice",
			Key:        inv.InvoiceNumber,
			Department: inv.Department,
			Amount:     inv.Amount,
		})
		if err != nil {
			return nil, err
		}
		if !v.Valid {
			return rejected(validationReason(v.Errors))
		}

		st.phase = "duplicate-check"
		dup, err := workflow.Call[DuplicateCheck](ctx, ActivityCheckDuplicate, inv.InvoiceNumber)
		if err != nil {
			return nil, err
		}
		if dup.IsDuplicate {
			return rejected(fmt.Sprintf("duplicate invoice: already processed as %s", dup.ExistingID))
		}

		st.phase = "vendor-check"
		party, err := workflow.Call[CounterpartyStatus](ctx, ActivityValidateParty, inv.VendorID)
		if err != nil {
			return nil, err
		}
		if !party.Active {
			return rejected(fmt.Sprintf("vendor %s is inactive: %s", inv.VendorID, party.Reason))
		}

		if inv.PurchaseOrderID != "" {
			st.phase = "po-matching"
			m, err := workflow.Call[MatchResult](ctx, ActivityMatchReference, MatchRequest{
				ReferenceID: inv.PurchaseOrderID,
				Amount:      inv.Amount,
			})
			if err != nil {
				return nil, err
			}
			if !m.Matches && m.VariancePercent > cfg.MatchVariancePercent {
				return finish(Outcome{
					Decision: DecisionOnHold,
					Reason: fmt.Sprintf("purchase order mismatch: variance %.2f%% exceeds %.2f%%, manual reconciliation required",
						m.VariancePercent, cfg.MatchVariancePercent),
					Steps: st.steps,
				})
			}
		}

		st.phase = "withholding"
		wh, err := workflow.Call[Withholding](ctx, ActivityComputeWithholding, WithholdingRequest{
			PartyType: inv.PartyType,
			Amount:    inv.Amount,
		})
		if err != nil {
			return nil, err
		}

		st.phase = "budget-check"
		budget, err := workflow.Call[BudgetCheck](ctx, ActivityCheckBudget, BudgetRequest{
			Scope:  inv.Department,
			Amount: inv.Amount,
		})
		if err != nil {
			return nil, err
		}
		if !budget.Available {
			return rejected(fmt.Sprintf("insufficient budget in %s: %.2f remaining", inv.Department, budget.Remaining))
		}

		st.phase = "approval"
		st.levels = cfg.Resolver.Resolve(inv.Amount, inv.Department, inv.VendorType)
		decision, reason, err := runApprovalChain(ctx, st, inv.Department, inv.Amount)
		if err != nil {
			return nil, err
		}
		if decision != DecisionApproved {
			return finish(Outcome{Decision: decision, Reason: reason, Steps: st.steps, TaxAmount: wh.TaxAmount})
		}

		st.phase = "payment"
		pay, err := workflow.Call[PaymentRecord](ctx, ActivityCreatePayment, PaymentRequest{
			InvoiceID: inv.ID,
			VendorID:  inv.VendorID,
			Amount:    inv.Amount,
			TaxAmount: wh.TaxAmount,
		})
		if err != nil {
			return nil, err
		}
		if _, err := ctx.ExecuteActivity(ActivityPostLedger, LedgerEntry{
			PaymentID: pay.PaymentID,
			Scope:     inv.Department,
			Amount:    inv.Amount,
		}); err != nil {
			return nil, err
		}

		return finish(Outcome{
			Decision:  DecisionApproved,
			Steps:     st.steps,
			PaymentID: pay.PaymentID,
			TaxAmount: wh.TaxAmount,
		})
	}
}
