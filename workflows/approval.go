package workflows

import (
	"fmt"
	"strings"

	"github.com/vextrus/vextrus-erp-sub018/pkg/hierarchy"
	"github.com/vextrus/vextrus-erp-sub018/pkg/workflow"
)

// chainState is the live progress of a definition, shared with its query
// handlers. The definition mutates it as phases advance; replay rebuilds it
// from history, so queries always see the state as of the last recorded
// event.
type chainState struct {
	phase  string
	levels []hierarchy.Level
	steps  []ApprovalStep
	tasks  []TaskResult

	// current is the 1-based level awaiting a decision, 0 outside the chain.
	current int
}

func registerQueries(ctx *workflow.Context, st *chainState) {
	ctx.SetQueryHandler(QueryStatus, func(args any) (any, error) {
		return StatusView{
			Phase:         st.phase,
			CurrentLevel:  st.current,
			TotalLevels:   len(st.levels),
			StepsResolved: len(st.steps),
		}, nil
	})
	ctx.SetQueryHandler(QuerySteps, func(args any) (any, error) {
		out := make([]ApprovalStep, len(st.steps))
		copy(out, st.steps)
		return out, nil
	})
}

// runApprovalChain walks the resolved ladder level by level. Each level is
// notified, then raced against its escalation timeout: an approve signal
// advances to the next level, a reject signal or an elapsed timeout
// short-circuits the chain as Rejected. Decided steps accumulate on st.
//
// A decision resolves at most one level. Stale decisions (an explicit level
// that is not the pending one, or a repeat from an approver who already
// decided an earlier step) are discarded and the escalation timer is
// re-armed; once a level resolves, decision signals still buffered are
// drained before the next level is notified.
func runApprovalChain(ctx *workflow.Context, st *chainState, scope string, amount float64) (Decision, string, error) {
	for _, level := range st.levels {
		st.current = level.Level

		_, err := ctx.ExecuteActivity(ActivityNotifyApprover, NotifyApproverRequest{
			Role:   level.Role,
			Scope:  scope,
			Amount: amount,
		})
		if err != nil {
			return "", "", err
		}

		var res *workflow.Resolution
		var sig DecisionSignal
		for {
			res, err = ctx.RaceSignalTimer(level.Timeout, SignalApprove, SignalReject)
			if err != nil {
				return "", "", err
			}
			if res.TimedOut {
				break
			}
			sig = decisionFrom(res.Signal)
			if !staleDecision(st.steps, sig, level.Level) {
				break
			}
		}

		if res.TimedOut {
			st.steps = append(st.steps, ApprovalStep{
				Level:     level.Level,
				Role:      level.Role,
				Status:    StepTimedOut,
				DecidedAt: ctx.Now(),
				Amount:    amount,
			})
			st.current = 0
			return DecisionRejected, fmt.Sprintf("Timeout: no response from %s within %s", level.Role, level.Timeout), nil
		}

		if res.Signal.Name == SignalReject {
			st.steps = append(st.steps, ApprovalStep{
				Level:     level.Level,
				Role:      level.Role,
				Status:    StepRejected,
				Approver:  sig.Approver,
				Comments:  sig.Comments,
				DecidedAt: ctx.Now(),
				Amount:    amount,
			})
			st.current = 0
			reason := sig.Comments
			if reason == "" {
				reason = fmt.Sprintf("rejected by %s", level.Role)
			}
			return DecisionRejected, reason, nil
		}

		st.steps = append(st.steps, ApprovalStep{
			Level:     level.Level,
			Role:      level.Role,
			Status:    StepApproved,
			Approver:  sig.Approver,
			Comments:  sig.Comments,
			DecidedAt: ctx.Now(),
			Amount:    amount,
		})

		// Duplicate submissions buffered while this level was pending must
		// not carry over into the next level.
		ctx.DrainSignals(SignalApprove, SignalReject)
	}
	st.current = 0
	return DecisionApproved, "", nil
}

// staleDecision reports whether a consumed decision belongs to an already
// resolved level: it carries an explicit level other than the pending one, or
// it repeats an approver who has already decided an earlier step. Every level
// needs its own decision, so a second approve from the same approver is a
// no-op.
func staleDecision(steps []ApprovalStep, sig DecisionSignal, level int) bool {
	if sig.Level != 0 && sig.Level != level {
		return true
	}
	if sig.Approver == "" {
		return false
	}
	for _, step := range steps {
		if step.Approver == sig.Approver {
			return true
		}
	}
	return false
}

func decisionFrom(s *workflow.Signal) DecisionSignal {
	if s == nil {
		return DecisionSignal{}
	}
	if d, ok := s.Payload.(DecisionSignal); ok {
		return d
	}
	return DecisionSignal{}
}

func validationReason(errs []string) string {
	return "validation failed: " + strings.Join(errs, "; ")
}
