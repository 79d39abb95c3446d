// Package metrics provides a Prometheus-backed Observer.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vextrus/vextrus-erp-sub018/pkg/api"
)

// PrometheusObserver exports workflow lifecycle metrics. Combine it with a
// LoggingObserver through api.NewCompositeObserver.
type PrometheusObserver struct {
	workflowsStarted  *prometheus.CounterVec
	workflowsFinished *prometheus.CounterVec
	eventsRecorded    *prometheus.CounterVec
	signalsDropped    prometheus.Counter
	activityDuration  *prometheus.HistogramVec
	activityAttempts  *prometheus.HistogramVec
}

var _ api.Observer = (*PrometheusObserver)(nil)

// NewPrometheusObserver registers the metrics with reg and returns the
// observer. Passing nil uses the default registerer.
func NewPrometheusObserver(reg prometheus.Registerer) *PrometheusObserver {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &PrometheusObserver{
		workflowsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_started_total",
			Help: "Workflow instances started, by workflow type.",
		}, []string{"workflow_type"}),
		workflowsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_finished_total",
			Help: "Workflow instances finished, by workflow type and terminal status.",
		}, []string{"workflow_type", "status"}),
		eventsRecorded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_history_events_total",
			Help: "History events recorded, by event type.",
		}, []string{"event_type"}),
		signalsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "workflow_signals_dropped_total",
			Help: "Signals dropped because no wait point ever consumed them.",
		}),
		activityDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "workflow_activity_duration_seconds",
			Help:    "Wall-clock duration of activity invocations across all attempts.",
			Buckets: prometheus.DefBuckets,
		}, []string{"activity", "outcome"}),
		activityAttempts: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "workflow_activity_attempts",
			Help:    "Attempts used per activity invocation.",
			Buckets: []float64{1, 2, 3, 4, 5, 8, 13},
		}, []string{"activity"}),
	}
}

func (p *PrometheusObserver) OnWorkflowStart(ctx context.Context, inst *api.WorkflowInstance) {
	p.workflowsStarted.WithLabelValues(inst.Type).Inc()
}

func (p *PrometheusObserver) OnWorkflowFinished(ctx context.Context, inst *api.WorkflowInstance, err error) {
	p.workflowsFinished.WithLabelValues(inst.Type, string(inst.Status)).Inc()
}

func (p *PrometheusObserver) OnEventRecorded(ctx context.Context, inst *api.WorkflowInstance, ev api.HistoryEvent) {
	p.eventsRecorded.WithLabelValues(string(ev.Type)).Inc()
}

func (p *PrometheusObserver) OnActivityCompleted(ctx context.Context, instanceID, name string, attempts int, err error, d time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	p.activityDuration.WithLabelValues(name, outcome).Observe(d.Seconds())
	p.activityAttempts.WithLabelValues(name).Observe(float64(attempts))
}

func (p *PrometheusObserver) OnSignalDropped(ctx context.Context, instanceID, name string) {
	p.signalsDropped.Inc()
}
