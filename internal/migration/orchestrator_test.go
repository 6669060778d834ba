package migration_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/temirov/glmigrate/internal/gitlab"
	"github.com/temirov/glmigrate/internal/migration"
)

const (
	flakyEntityCountConstant      = 10
	flakyBatchConcurrencyConstant = 3
	flakyFailureStrideConstant    = 4
)

func TestRunBatchRejectsNonPositiveConcurrency(testInstance *testing.T) {
	_, batchError := migration.RunBatch(
		context.Background(),
		migration.BatchSettings{Concurrency: 0},
		[]int{1, 2, 3},
		func(context.Context, int) migration.Result { return migration.Result{} },
		nil,
	)
	require.Error(testInstance, batchError)
}

func TestRunBatchProducesOneResultPerEntity(testInstance *testing.T) {
	entities := []int64{11, 22, 33, 44, 55}

	batchOutcome, batchError := migration.RunBatch(
		context.Background(),
		migration.BatchSettings{Concurrency: 2},
		entities,
		func(executionContext context.Context, entityIdentifier int64) migration.Result {
			entityResult := migration.NewResult(migration.EntityKindUser, entityIdentifier, "")
			entityResult.MarkSucceeded(entityIdentifier * 10)
			return entityResult
		},
		nil,
	)

	require.NoError(testInstance, batchError)
	require.Len(testInstance, batchOutcome.Results, len(entities))
	require.Equal(testInstance, len(entities), batchOutcome.SucceededCount)
}

func TestRunBatchNeverExceedsConcurrencyBound(testInstance *testing.T) {
	const concurrencyBound = 3

	var inFlightCount atomic.Int64
	var observedMaximum atomic.Int64

	entities := make([]int, 20)
	_, batchError := migration.RunBatch(
		context.Background(),
		migration.BatchSettings{Concurrency: concurrencyBound},
		entities,
		func(executionContext context.Context, entity int) migration.Result {
			currentInFlight := inFlightCount.Add(1)
			for {
				recordedMaximum := observedMaximum.Load()
				if currentInFlight <= recordedMaximum || observedMaximum.CompareAndSwap(recordedMaximum, currentInFlight) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlightCount.Add(-1)

			entityResult := migration.NewResult(migration.EntityKindUser, 0, "")
			entityResult.MarkSucceeded(1)
			return entityResult
		},
		nil,
	)

	require.NoError(testInstance, batchError)
	require.LessOrEqual(testInstance, observedMaximum.Load(), int64(concurrencyBound))
}

func TestRunBatchIsolatesPerEntityFailures(testInstance *testing.T) {
	entities := []int64{1, 2, 3, 4}

	batchOutcome, batchError := migration.RunBatch(
		context.Background(),
		migration.BatchSettings{Concurrency: 2},
		entities,
		func(executionContext context.Context, entityIdentifier int64) migration.Result {
			entityResult := migration.NewResult(migration.EntityKindGroup, entityIdentifier, "")
			if entityIdentifier%2 == 0 {
				entityResult.MarkFailed("destination rejected the entity")
				return entityResult
			}
			entityResult.MarkSucceeded(entityIdentifier)
			return entityResult
		},
		nil,
	)

	require.NoError(testInstance, batchError)
	require.Equal(testInstance, 2, batchOutcome.SucceededCount)
	require.Equal(testInstance, 2, batchOutcome.FailedCount)
}

// Every 4th call against the remote double fails with a transient error and
// succeeds on retry; the aggregate must show every entity succeeding.
func TestRunBatchWithRetriesAbsorbsTransientFailures(testInstance *testing.T) {
	var remoteCallCount atomic.Int64
	remoteDouble := func() error {
		if remoteCallCount.Add(1)%flakyFailureStrideConstant == 0 {
			return gitlab.RemoteError{StatusCode: 503, Body: "temporarily unavailable"}
		}
		return nil
	}

	retryPolicy := gitlab.BackoffPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2}

	entities := make([]int, flakyEntityCountConstant)
	batchOutcome, batchError := migration.RunBatch(
		context.Background(),
		migration.BatchSettings{Concurrency: flakyBatchConcurrencyConstant},
		entities,
		func(executionContext context.Context, entity int) migration.Result {
			entityResult := migration.NewResult(migration.EntityKindProject, 0, "")
			operationError := gitlab.WithRetry(executionContext, retryPolicy, func(context.Context) error {
				return remoteDouble()
			})
			if operationError != nil {
				entityResult.MarkFailed(operationError.Error())
				return entityResult
			}
			entityResult.MarkSucceeded(1)
			return entityResult
		},
		nil,
	)

	require.NoError(testInstance, batchError)
	require.Equal(testInstance, flakyEntityCountConstant, batchOutcome.SucceededCount)
	require.Equal(testInstance, 0, batchOutcome.FailedCount)
}

func TestRunBatchInvokesObserverSerially(testInstance *testing.T) {
	var observerMutex sync.Mutex
	observedResults := make([]migration.Result, 0)

	entities := make([]int, 12)
	_, batchError := migration.RunBatch(
		context.Background(),
		migration.BatchSettings{Concurrency: 4},
		entities,
		func(executionContext context.Context, entity int) migration.Result {
			entityResult := migration.NewResult(migration.EntityKindUser, 0, "")
			entityResult.MarkSucceeded(1)
			return entityResult
		},
		func(finalizedResult migration.Result) {
			observerMutex.Lock()
			defer observerMutex.Unlock()
			observedResults = append(observedResults, finalizedResult)
		},
	)

	require.NoError(testInstance, batchError)
	require.Len(testInstance, observedResults, len(entities))
}
