package pipeline

import "log"

// Reporter receives progress milestones as a run advances. Reported
// values are monotonic per evidence; the persisted progress column
// enforces this even across process restarts.
type Reporter interface {
	Report(evidenceID string, progress float64, stage string)
}

// LogReporter is the default reporter.
type LogReporter struct{}

func (LogReporter) Report(evidenceID string, progress float64, stage string) {
	log.Printf("[PIPELINE] %s %.0f%% %s", evidenceID, progress, stage)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(evidenceID string, progress float64, stage string)

func (f ReporterFunc) Report(evidenceID string, progress float64, stage string) {
	f(evidenceID, progress, stage)
}
