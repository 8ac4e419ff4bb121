// Package metrics records build timings and page outcomes. Components hold a
// Recorder and default to NoopRecorder, so metrics need no nil checks.
package metrics

import "time"

type PageResult string

const (
	PageOK       PageResult = "ok"
	PageDegraded PageResult = "degraded"
	PageFailed   PageResult = "failed"
	PageCopied   PageResult = "copied"
)

type BuildOutcome string

const (
	BuildSuccess BuildOutcome = "success"
	BuildFailed  BuildOutcome = "failed"
)

// Recorder receives build measurements.
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	ObserveBuildDuration(app string, d time.Duration)
	IncPageResult(app string, result PageResult)
	IncBuildOutcome(outcome BuildOutcome)
	IncRebuild(kind string)
}

// NoopRecorder drops everything.
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration) {}
func (NoopRecorder) ObserveBuildDuration(string, time.Duration) {}
func (NoopRecorder) IncPageResult(string, PageResult)           {}
func (NoopRecorder) IncBuildOutcome(BuildOutcome)               {}
func (NoopRecorder) IncRebuild(string)                          {}
