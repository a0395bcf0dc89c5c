// Package observability records sync metrics. The Prometheus recorder keeps a
// private registry so a batch run can dump it to a node-exporter textfile.
package observability

import (
	"context"
	"time"
)

// Target outcomes reported by the orchestrator.
const (
	OutcomeSynced  = "synced"
	OutcomeSkipped = "skipped"
)

// Recorder receives sync and fetch measurements.
type Recorder interface {
	// ObserveRequest records one HTTP attempt. status is zero for transport errors.
	ObserveRequest(ctx context.Context, kind string, status int, duration time.Duration)
	ObserveRetry(ctx context.Context, kind string)
	ObserveTarget(ctx context.Context, outcome string, duration time.Duration)
	ObserveCommit(ctx context.Context, rows int, success bool)
}

// Nop discards every observation.
type Nop struct{}

func (Nop) ObserveRequest(context.Context, string, int, time.Duration) {}
func (Nop) ObserveRetry(context.Context, string)                       {}
func (Nop) ObserveTarget(context.Context, string, time.Duration)       {}
func (Nop) ObserveCommit(context.Context, int, bool)                   {}

// OrNop returns r, or Nop when r is nil.
func OrNop(r Recorder) Recorder {
	if r == nil {
		return Nop{}
	}
	return r
}
