package migration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/temirov/glmigrate/internal/gitlab"
)

// EnginePhase names the engine's position in the fixed phase order.
type EnginePhase string

// Engine phases. The order is fixed: projects need resolved group and user
// namespaces, repositories need resolved projects, and memberships need
// resolved users.
const (
	EnginePhaseNotStarted   EnginePhase = "not_started"
	EnginePhaseUsers        EnginePhase = "users"
	EnginePhaseGroups       EnginePhase = "groups"
	EnginePhaseProjects     EnginePhase = "projects"
	EnginePhaseRepositories EnginePhase = "repositories"
	EnginePhaseDone         EnginePhase = "done"
)

const (
	engineSourceClientRequiredMessageConstant      = "engine requires a source client"
	engineDestinationClientRequiredMessageConstant = "engine requires a destination client"
	engineStrategyMissingMessageTemplateConstant   = "strategy for %s phase must be provided"
	sourceConnectivityErrorTemplateConstant        = "source instance unreachable: %w"
	destinationConnectivityErrorTemplateConstant   = "destination instance unreachable: %w"
	phasePrerequisiteErrorTemplateConstant         = "%s phase prerequisites failed: %w"
	phaseExecutionErrorTemplateConstant            = "%s phase aborted: %w"
	identifierRecordFailedMessageConstant          = "Identifier mapping rejected"
	phaseStartedMessageConstant                    = "Phase started"
	phaseCompletedMessageConstant                  = "Phase completed"
	stopHonoredMessageConstant                     = "Stop requested, halting before next phase"
	logFieldPhaseConstant                          = "phase"
	logFieldSucceededConstant                      = "succeeded"
	logFieldFailedConstant                         = "failed"
	logFieldSkippedConstant                        = "skipped"
)

var (
	errEngineSourceClientRequired      = errors.New(engineSourceClientRequiredMessageConstant)
	errEngineDestinationClientRequired = errors.New(engineDestinationClientRequiredMessageConstant)
)

// EngineDependencies carries the engine's collaborators.
type EngineDependencies struct {
	SourceClient      *gitlab.Client
	DestinationClient *gitlab.Client
	Logger            *zap.Logger
	Metrics           *Metrics
}

// StrategySet binds one strategy to each phase.
type StrategySet struct {
	Users        PhaseStrategy
	Groups       PhaseStrategy
	Projects     PhaseStrategy
	Repositories PhaseStrategy
}

func (strategySet StrategySet) ordered() ([]PhaseStrategy, error) {
	orderedStrategies := []struct {
		phase    EnginePhase
		strategy PhaseStrategy
	}{
		{phase: EnginePhaseUsers, strategy: strategySet.Users},
		{phase: EnginePhaseGroups, strategy: strategySet.Groups},
		{phase: EnginePhaseProjects, strategy: strategySet.Projects},
		{phase: EnginePhaseRepositories, strategy: strategySet.Repositories},
	}

	strategies := make([]PhaseStrategy, 0, len(orderedStrategies))
	for _, phaseBinding := range orderedStrategies {
		if phaseBinding.strategy == nil {
			return nil, fmt.Errorf(engineStrategyMissingMessageTemplateConstant, phaseBinding.phase)
		}
		strategies = append(strategies, phaseBinding.strategy)
	}
	return strategies, nil
}

// Engine sequences the migration phases, owns the identifier map, and
// enforces phase-boundary cancellation.
type Engine struct {
	dependencies  EngineDependencies
	strategies    []PhaseStrategy
	identifierMap *IdentifierMap
	phaseMutex    sync.Mutex
	currentPhase  EnginePhase
	stopRequested atomic.Bool
}

// NewEngine constructs the migration engine over the full strategy set.
func NewEngine(dependencies EngineDependencies, strategySet StrategySet) (*Engine, error) {
	if dependencies.SourceClient == nil {
		return nil, errEngineSourceClientRequired
	}
	if dependencies.DestinationClient == nil {
		return nil, errEngineDestinationClientRequired
	}
	if dependencies.Logger == nil {
		dependencies.Logger = zap.NewNop()
	}

	orderedStrategies, orderingError := strategySet.ordered()
	if orderingError != nil {
		return nil, orderingError
	}

	return &Engine{
		dependencies:  dependencies,
		strategies:    orderedStrategies,
		identifierMap: NewIdentifierMap(),
		currentPhase:  EnginePhaseNotStarted,
	}, nil
}

// RequestStop asks the engine to halt at the next phase boundary. In-flight
// entity attempts within the current phase run to completion.
func (engine *Engine) RequestStop() {
	engine.stopRequested.Store(true)
}

// CurrentPhase reports the engine's position for progress display.
func (engine *Engine) CurrentPhase() EnginePhase {
	engine.phaseMutex.Lock()
	defer engine.phaseMutex.Unlock()
	return engine.currentPhase
}

// IdentifierLookup exposes a read-only view of the accumulated mappings.
func (engine *Engine) IdentifierLookup() IdentifierLookup {
	return engine.identifierMap
}

// Execute runs every phase in order and returns the aggregate report. The
// returned error is non-nil only for run-fatal conditions: unreachable
// remotes, failed phase prerequisites, or a phase that could not start.
// Per-entity failures are captured inside the report.
func (engine *Engine) Execute(executionContext context.Context) (*Report, error) {
	migrationReport := &Report{StartedAt: time.Now()}

	for _, phaseStrategy := range engine.strategies {
		if engine.stopRequested.Load() || executionContext.Err() != nil {
			engine.dependencies.Logger.Info(stopHonoredMessageConstant, zap.String(logFieldPhaseConstant, string(engine.CurrentPhase())))
			migrationReport.Aborted = true
			break
		}

		engine.setPhase(phaseForKind(phaseStrategy.Kind()))

		if connectivityError := engine.verifyConnectivity(executionContext); connectivityError != nil {
			migrationReport.Aborted = true
			migrationReport.FinishedAt = time.Now()
			return migrationReport, connectivityError
		}

		if prerequisiteError := phaseStrategy.ValidatePrerequisites(executionContext); prerequisiteError != nil {
			migrationReport.Aborted = true
			migrationReport.FinishedAt = time.Now()
			return migrationReport, fmt.Errorf(phasePrerequisiteErrorTemplateConstant, phaseStrategy.Kind(), prerequisiteError)
		}

		engine.dependencies.Logger.Info(phaseStartedMessageConstant, zap.String(logFieldPhaseConstant, string(engine.CurrentPhase())))
		phaseStartTime := time.Now()

		batchOutcome, phaseError := phaseStrategy.Run(executionContext, engine.identifierMap, engine.recordResult)
		if phaseError != nil {
			migrationReport.Aborted = true
			migrationReport.FinishedAt = time.Now()
			return migrationReport, fmt.Errorf(phaseExecutionErrorTemplateConstant, phaseStrategy.Kind(), phaseError)
		}

		engine.dependencies.Metrics.ObservePhaseDuration(phaseStrategy.Kind(), time.Since(phaseStartTime).Seconds())
		migrationReport.appendOutcome(phaseStrategy.Kind(), batchOutcome)

		engine.dependencies.Logger.Info(
			phaseCompletedMessageConstant,
			zap.String(logFieldPhaseConstant, string(engine.CurrentPhase())),
			zap.Int(logFieldSucceededConstant, batchOutcome.SucceededCount),
			zap.Int(logFieldFailedConstant, batchOutcome.FailedCount),
			zap.Int(logFieldSkippedConstant, batchOutcome.SkippedCount),
		)
	}

	if !migrationReport.Aborted {
		engine.setPhase(EnginePhaseDone)
	}
	migrationReport.FinishedAt = time.Now()
	return migrationReport, nil
}

// recordResult is invoked serially by each phase's collector. Succeeded and
// skipped-as-already-present entities contribute identifier mappings consumed
// by later phases.
func (engine *Engine) recordResult(finalizedResult Result) {
	engine.dependencies.Metrics.ObserveResult(finalizedResult)

	if finalizedResult.DestinationIdentifier == 0 {
		return
	}
	if finalizedResult.Status != ResultStatusSucceeded && finalizedResult.Status != ResultStatusSkipped {
		return
	}

	if recordError := engine.identifierMap.Record(finalizedResult.EntityKind, finalizedResult.SourceIdentifier, finalizedResult.DestinationIdentifier); recordError != nil {
		engine.dependencies.Logger.Warn(identifierRecordFailedMessageConstant, zap.Error(recordError))
	}
}

func (engine *Engine) verifyConnectivity(executionContext context.Context) error {
	var connectivityFailures *multierror.Error

	if sourceError := engine.dependencies.SourceClient.TestConnection(executionContext); sourceError != nil {
		connectivityFailures = multierror.Append(connectivityFailures, fmt.Errorf(sourceConnectivityErrorTemplateConstant, sourceError))
	}
	if destinationError := engine.dependencies.DestinationClient.TestConnection(executionContext); destinationError != nil {
		connectivityFailures = multierror.Append(connectivityFailures, fmt.Errorf(destinationConnectivityErrorTemplateConstant, destinationError))
	}

	return connectivityFailures.ErrorOrNil()
}

func (engine *Engine) setPhase(nextPhase EnginePhase) {
	engine.phaseMutex.Lock()
	defer engine.phaseMutex.Unlock()
	engine.currentPhase = nextPhase
}

func phaseForKind(entityKind EntityKind) EnginePhase {
	switch entityKind {
	case EntityKindUser:
		return EnginePhaseUsers
	case EntityKindGroup:
		return EnginePhaseGroups
	case EntityKindProject:
		return EnginePhaseProjects
	case EntityKindRepository:
		return EnginePhaseRepositories
	default:
		return EnginePhaseNotStarted
	}
}
