package migration

import "context"

// DisabledPhaseStrategy fills a phase slot for an entity kind the operator
// turned off in configuration. It fetches nothing and reports an empty
// outcome, keeping the engine's phase order intact.
type DisabledPhaseStrategy struct {
	entityKind EntityKind
}

// NewDisabledPhaseStrategy constructs the no-op strategy for the kind.
func NewDisabledPhaseStrategy(entityKind EntityKind) *DisabledPhaseStrategy {
	return &DisabledPhaseStrategy{entityKind: entityKind}
}

// Kind names the entity kind the disabled slot stands in for.
func (strategy *DisabledPhaseStrategy) Kind() EntityKind {
	return strategy.entityKind
}

// ValidatePrerequisites always passes for a disabled phase.
func (strategy *DisabledPhaseStrategy) ValidatePrerequisites(executionContext context.Context) error {
	return nil
}

// Run completes immediately without touching either remote.
func (strategy *DisabledPhaseStrategy) Run(executionContext context.Context, identifierLookup IdentifierLookup, resultObserver ResultObserver) (BatchOutcome, error) {
	return BatchOutcome{}, nil
}
