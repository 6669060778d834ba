package migration

import (
	"context"
	"errors"
	"sync"
)

const orchestratorConcurrencyRequiredMessageConstant = "batch concurrency must be positive"

var errOrchestratorConcurrencyRequired = errors.New(orchestratorConcurrencyRequiredMessageConstant)

// BatchSettings bounds the parallelism of one entity-kind batch.
type BatchSettings struct {
	Concurrency int
}

// ResultObserver receives every finalized result in collection order. It is
// invoked from a single goroutine, never concurrently.
type ResultObserver func(finalizedResult Result)

// BatchOutcome aggregates the results of one batch.
type BatchOutcome struct {
	Results        []Result
	SucceededCount int
	FailedCount    int
	SkippedCount   int
}

// MigrateFunction attempts one entity and returns its finalized result. It
// must capture per-entity failures inside the result rather than panicking;
// one entity's failure never affects another's in-flight attempt.
type MigrateFunction[EntityType any] func(executionContext context.Context, entity EntityType) Result

// RunBatch dispatches the entities across a bounded pool of workers and
// collects one result per input entity. Results arrive in completion order,
// not input order. Per-entity failures are captured as failed results; the
// only returned error is an invalid concurrency setting.
func RunBatch[EntityType any](
	executionContext context.Context,
	batchSettings BatchSettings,
	entities []EntityType,
	migrateFunction MigrateFunction[EntityType],
	resultObserver ResultObserver,
) (BatchOutcome, error) {
	if batchSettings.Concurrency <= 0 {
		return BatchOutcome{}, errOrchestratorConcurrencyRequired
	}

	entityQueue := make(chan EntityType)
	resultQueue := make(chan Result)

	var workerGroup sync.WaitGroup
	workerCount := batchSettings.Concurrency
	if workerCount > len(entities) {
		workerCount = len(entities)
	}

	for workerIndex := 0; workerIndex < workerCount; workerIndex++ {
		workerGroup.Add(1)
		go func() {
			defer workerGroup.Done()
			for queuedEntity := range entityQueue {
				resultQueue <- migrateFunction(executionContext, queuedEntity)
			}
		}()
	}

	go func() {
		defer close(entityQueue)
		for _, pendingEntity := range entities {
			entityQueue <- pendingEntity
		}
	}()

	go func() {
		workerGroup.Wait()
		close(resultQueue)
	}()

	batchOutcome := BatchOutcome{Results: make([]Result, 0, len(entities))}
	for collectedResult := range resultQueue {
		batchOutcome.Results = append(batchOutcome.Results, collectedResult)
		switch collectedResult.Status {
		case ResultStatusSucceeded:
			batchOutcome.SucceededCount++
		case ResultStatusSkipped:
			batchOutcome.SkippedCount++
		default:
			batchOutcome.FailedCount++
		}
		if resultObserver != nil {
			resultObserver(collectedResult)
		}
	}

	return batchOutcome, nil
}
