package workflows

import (
	"fmt"

	"github.com/vextrus/vextrus-erp-sub018/pkg/hierarchy"
	"github.com/vextrus/vextrus-erp-sub018/pkg/workflow"
)

// TypeEmployeeOnboarding is the registered name of the onboarding process.
const TypeEmployeeOnboarding = "employee-onboarding"

// onboardingTasks are executed in order after the hiring manager approves.
var onboardingTasks = []string{
	"provision-accounts",
	"assign-equipment",
	"schedule-orientation",
}

// EmployeeOnboarding validates an onboarding request, waits for the hiring
// manager's approval, then drives the task sequence. Each task is raced
// against the task timeout; a timed-out task is recorded and the sequence
// moves on rather than blocking the whole onboarding, since the remaining
// tasks are independent of it.
func EmployeeOnboarding(cfg Config) workflow.Definition {
	cfg = cfg.withDefaults()
	return func(ctx *workflow.Context) (any, error) {
		req, err := workflow.Input[OnboardingRequest](ctx)
		if err != nil {
			return nil, err
		}
		st := &chainState{phase: "validating"}
		registerQueries(ctx, st)

		finish := func(out OnboardingOutcome) (any, error) {
			st.phase = "finished"
			if _, err := ctx.ExecuteActivity(ActivityNotifyParty, Notification{
				PartyID: req.EmployeeID,
				Subject: fmt.Sprintf("onboarding for %s: %s", req.Name, out.Decision),
				Body:    out.Reason,
			}); err != nil {
				return nil, err
			}
			if _, err := ctx.ExecuteActivity(ActivityRecordAudit, AuditRecord{
				ProcessKind: "onboarding",
				ReferenceID: req.EmployeeID,
				Decision:    out.Decision,
				Reason:      out.Reason,
			}); err != nil {
				return nil, err
			}
			return out, nil
		}

		v, err := workflow.Call[ValidationResult](ctx, ActivityValidateInput, ValidateInputRequest{
			Kind:       "onboarding",
			Key:        req.EmployeeID,
			Department: req.Department,
		})
		if err != nil {
			return nil, err
		}
		if !v.Valid {
			return finish(OnboardingOutcome{
				Decision: DecisionRejected,
				Reason:   validationReason(v.Errors),
			})
		}

		// A single manager decision gates the task sequence; reuse the chain
		// machinery with a one-level ladder.
		st.phase = "approval"
		st.levels = []hierarchy.Level{{
			Level:   1,
			Role:    hierarchy.RoleDepartmentHead,
			Timeout: cfg.ApprovalTimeout,
		}}
		decision, reason, err := runApprovalChain(ctx, st, req.Department, 0)
		if err != nil {
			return nil, err
		}
		if decision != DecisionApproved {
			return finish(OnboardingOutcome{Decision: decision, Reason: reason, Steps: st.steps})
		}

		for _, task := range onboardingTasks {
			st.phase = "task:" + task
			if _, err := ctx.ExecuteActivity(ActivityNotifyParty, Notification{
				PartyID: req.Department,
				Subject: fmt.Sprintf("onboarding task %s for %s", task, req.Name),
			}); err != nil {
				return nil, err
			}

			res, err := ctx.RaceSignalTimer(cfg.OnboardingTaskTimeout, SignalTaskComplete, SignalTaskSkip)
			if err != nil {
				return nil, err
			}

			switch {
			case res.TimedOut:
				st.tasks = append(st.tasks, TaskResult{
					Name:        task,
					Status:      StepTimedOut,
					CompletedAt: ctx.Now(),
				})
			case res.Signal.Name == SignalTaskSkip:
				sig := decisionFrom(res.Signal)
				st.tasks = append(st.tasks, TaskResult{
					Name:        task,
					Status:      StepSkipped,
					CompletedBy: sig.Approver,
					CompletedAt: ctx.Now(),
				})
			default:
				sig := decisionFrom(res.Signal)
				st.tasks = append(st.tasks, TaskResult{
					Name:        task,
					Status:      StepApproved,
					CompletedBy: sig.Approver,
					CompletedAt: ctx.Now(),
				})
			}
		}

		return finish(OnboardingOutcome{
			Decision: DecisionApproved,
			Steps:    st.steps,
			Tasks:    st.tasks,
		})
	}
}
