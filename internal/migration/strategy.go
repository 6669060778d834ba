package migration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/temirov/glmigrate/internal/gitlab"
)

const (
	strategySourceClientRequiredMessageConstant      = "source client must be provided"
	strategyDestinationClientRequiredMessageConstant = "destination client must be provided"
	strategyResolverRequiredMessageConstant          = "conflict resolver must be provided"
	entityDecodeErrorTemplateConstant                = "unable to decode %s listing: %w"
)

var (
	errStrategySourceClientRequired      = errors.New(strategySourceClientRequiredMessageConstant)
	errStrategyDestinationClientRequired = errors.New(strategyDestinationClientRequiredMessageConstant)
	errStrategyResolverRequired          = errors.New(strategyResolverRequiredMessageConstant)
)

// PhaseStrategy migrates every entity of one kind. The engine runs strategies
// strictly in dependency order and threads the identifier lookup between them.
type PhaseStrategy interface {
	// Kind names the entity kind the strategy migrates.
	Kind() EntityKind
	// ValidatePrerequisites checks kind-specific preconditions before any
	// entity of the phase is attempted. A returned error aborts the run.
	ValidatePrerequisites(executionContext context.Context) error
	// Run fetches the kind's entities from the source and migrates them with
	// bounded concurrency, reporting one result per entity.
	Run(executionContext context.Context, identifierLookup IdentifierLookup, resultObserver ResultObserver) (BatchOutcome, error)
}

// StrategyDependencies carries the collaborators shared by every strategy.
type StrategyDependencies struct {
	SourceClient      *gitlab.Client
	DestinationClient *gitlab.Client
	Logger            *zap.Logger
	Resolver          *ConflictResolver
	RetryPolicy       gitlab.BackoffPolicy
	BatchSettings     BatchSettings
}

func (dependencies StrategyDependencies) validate() error {
	if dependencies.SourceClient == nil {
		return errStrategySourceClientRequired
	}
	if dependencies.DestinationClient == nil {
		return errStrategyDestinationClientRequired
	}
	if dependencies.Resolver == nil {
		return errStrategyResolverRequired
	}
	return nil
}

func (dependencies StrategyDependencies) logger() *zap.Logger {
	if dependencies.Logger == nil {
		return zap.NewNop()
	}
	return dependencies.Logger
}

func decodeEntities[EntityType any](entityKind EntityKind, rawItems []json.RawMessage) ([]EntityType, error) {
	decodedEntities := make([]EntityType, 0, len(rawItems))
	for _, rawItem := range rawItems {
		var decodedEntity EntityType
		if decodeError := json.Unmarshal(rawItem, &decodedEntity); decodeError != nil {
			return nil, decodingFailure(entityKind, decodeError)
		}
		decodedEntities = append(decodedEntities, decodedEntity)
	}
	return decodedEntities, nil
}

func decodingFailure(entityKind EntityKind, decodeError error) error {
	return fmt.Errorf(entityDecodeErrorTemplateConstant, entityKind, decodeError)
}
