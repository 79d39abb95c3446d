package workflows

import (
	"fmt"

	"github.com/vextrus/vextrus-erp-sub018/pkg/workflow"
)

// TypePurchaseOrderApproval is the registered name of the purchase-order
// process.
const TypePurchaseOrderApproval = "purchase-order-approval"

// PurchaseOrderApproval validates a purchase order, checks budget, and walks
// the approval ladder resolved from the order amount. There is no payment
// phase; an approved order is committed downstream once the audit record is
// written.
func PurchaseOrderApproval(cfg Config) workflow.Definition {
	cfg = cfg.withDefaults()
	return func(ctx *workflow.Context) (any, error) {
		po, err := workflow.Input[PurchaseOrder](ctx)
		if err != nil {
			return nil, err
		}
		st := &chainState{phase: "validating"}
		registerQueries(ctx, st)

		finish := func(out Outcome) (any, error) {
			st.phase = "finished"
			if _, err := ctx.ExecuteActivity(ActivityNotifyParty, Notification{
				PartyID: po.VendorID,
				Subject: fmt.Sprintf("purchase order %s: %s", po.PONumber, out.Decision),
				Body:    out.Reason,
			}); err != nil {
				return nil, err
			}
			if _, err := ctx.ExecuteActivity(ActivityRecordAudit, AuditRecord{
				ProcessKind: "purchase-order",
				ReferenceID: po.ID,
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
			Kind:       "purchase-order",
			Key:        po.PONumber,
			Department: po.Department,
			Amount:     po.Amount,
		})
		if err != nil {
			return nil, err
		}
		if !v.Valid {
			return rejected(validationReason(v.Errors))
		}

		st.phase = "duplicate-check"
		dup, err := workflow.Call[DuplicateCheck](ctx, ActivityCheckDuplicate, po.PONumber)
		if err != nil {
			return nil, err
		}
		if dup.IsDuplicate {
			return rejected(fmt.Sprintf("duplicate purchase order: already processed as %s", dup.ExistingID))
		}

		st.phase = "vendor-check"
		party, err := workflow.Call[CounterpartyStatus](ctx, ActivityValidateParty, po.VendorID)
		if err != nil {
			return nil, err
		}
		if !party.Active {
			return rejected(fmt.Sprintf("vendor %s is inactive: %s", po.VendorID, party.Reason))
		}

		st.phase = "budget-check"
		budget, err := workflow.Call[BudgetCheck](ctx, ActivityCheckBudget, BudgetRequest{
			Scope:  po.Department,
			Amount: po.Amount,
		})
		if err != nil {
			return nil, err
		}
		if !budget.Available {
			return rejected(fmt.Sprintf("insufficient budget in %s: %.2f remaining", po.Department, budget.Remaining))
		}

		st.phase = "approval"
		st.levels = cfg.Resolver.Resolve(po.Amount, po.Department, po.VendorType)
		decision, reason, err := runApprovalChain(ctx, st, po.Department, po.Amount)
		if err != nil {
			return nil, err
		}

		return finish(Outcome{Decision: decision, Reason: reason, Steps: st.steps})
	}
}
