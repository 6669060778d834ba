package migration

import "time"

// KindSummary counts the outcomes of one entity kind's phase.
type KindSummary struct {
	EntityKind EntityKind
	Succeeded  int
	Failed     int
	Skipped    int
}

// Total reports the number of attempted entities of the kind.
func (kindSummary KindSummary) Total() int {
	return kindSummary.Succeeded + kindSummary.Failed + kindSummary.Skipped
}

// Report is the final outcome of a migration run, handed to the presentation
// layer. Skipped entities are surfaced separately from failed ones because the
// two require different operator follow-up.
type Report struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Summaries  []KindSummary
	Results    []Result
	Aborted    bool
}

func (report *Report) appendOutcome(entityKind EntityKind, batchOutcome BatchOutcome) {
	report.Summaries = append(report.Summaries, KindSummary{
		EntityKind: entityKind,
		Succeeded:  batchOutcome.SucceededCount,
		Failed:     batchOutcome.FailedCount,
		Skipped:    batchOutcome.SkippedCount,
	})
	report.Results = append(report.Results, batchOutcome.Results...)
}

// TotalSucceeded counts succeeded entities across every kind.
func (report *Report) TotalSucceeded() int {
	succeededTotal := 0
	for _, kindSummary := range report.Summaries {
		succeededTotal += kindSummary.Succeeded
	}
	return succeededTotal
}

// TotalFailed counts failed entities across every kind.
func (report *Report) TotalFailed() int {
	failedTotal := 0
	for _, kindSummary := range report.Summaries {
		failedTotal += kindSummary.Failed
	}
	return failedTotal
}

// TotalSkipped counts skipped entities across every kind.
func (report *Report) TotalSkipped() int {
	skippedTotal := 0
	for _, kindSummary := range report.Summaries {
		skippedTotal += kindSummary.Skipped
	}
	return skippedTotal
}
