package migration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/temirov/glmigrate/internal/gitlab"
	"github.com/temirov/glmigrate/internal/models"
)

const (
	groupsEndpointConstant                 = "/groups"
	groupEndpointPrefixConstant            = "/groups/"
	pathSegmentSeparatorConstant           = "/"
	groupAlreadyPresentSkipReasonTemplate  = "destination already has a group at %s"
	groupCreationFailedReasonTemplate      = "group creation failed: %s"
	groupStorageConflictSkipReasonTemplate = "destination storage conflict prevents creating %s, manual cleanup required"
	groupRetryCollisionFailedReasonConst   = "disambiguated path also collided on the destination"
	groupRenamedWarningTemplateConstant    = "path collision on destination, group created under %s"
	parentUnresolvedWarningTemplateConst   = "parent group %s has no destination mapping, creating at top level"
	groupMigratedMessageConstant           = "Migrated group"
	logFieldGroupPathConstant              = "group_path"
)

// GroupStrategy migrates groups, shallowest first so parents exist before
// their subgroups, then copies each group's direct members. Groups created
// within the running phase are tracked locally so subgroup parent resolution
// does not depend on the engine having recorded the parent yet.
type GroupStrategy struct {
	dependencies  StrategyDependencies
	createdMutex  sync.Mutex
	createdGroups map[int64]int64
}

// NewGroupStrategy constructs the group phase strategy.
func NewGroupStrategy(dependencies StrategyDependencies) (*GroupStrategy, error) {
	if validationError := dependencies.validate(); validationError != nil {
		return nil, validationError
	}
	return &GroupStrategy{dependencies: dependencies, createdGroups: map[int64]int64{}}, nil
}

func (strategy *GroupStrategy) rememberCreatedGroup(sourceIdentifier int64, destinationIdentifier int64) {
	strategy.createdMutex.Lock()
	defer strategy.createdMutex.Unlock()
	strategy.createdGroups[sourceIdentifier] = destinationIdentifier
}

func (strategy *GroupStrategy) createdGroupIdentifier(sourceIdentifier int64) (int64, bool) {
	strategy.createdMutex.Lock()
	defer strategy.createdMutex.Unlock()
	destinationIdentifier, groupCreated := strategy.createdGroups[sourceIdentifier]
	return destinationIdentifier, groupCreated
}

// Kind implements PhaseStrategy.
func (strategy *GroupStrategy) Kind() EntityKind {
	return EntityKindGroup
}

// ValidatePrerequisites implements PhaseStrategy.
func (strategy *GroupStrategy) ValidatePrerequisites(executionContext context.Context) error {
	return nil
}

// Run implements PhaseStrategy.
func (strategy *GroupStrategy) Run(executionContext context.Context, identifierLookup IdentifierLookup, resultObserver ResultObserver) (BatchOutcome, error) {
	rawGroups, listingError := strategy.dependencies.SourceClient.CollectPaginated(executionContext, groupsEndpointConstant, nil)
	if listingError != nil {
		return BatchOutcome{}, listingError
	}

	sourceGroups, decodeError := decodeEntities[models.Group](EntityKindGroup, rawGroups)
	if decodeError != nil {
		return BatchOutcome{}, decodeError
	}

	sort.SliceStable(sourceGroups, func(firstIndex int, secondIndex int) bool {
		return namespaceDepth(sourceGroups[firstIndex].FullPath) < namespaceDepth(sourceGroups[secondIndex].FullPath)
	})

	migrateFunction := func(migrationContext context.Context, sourceGroup models.Group) Result {
		return strategy.migrateGroup(migrationContext, sourceGroup, identifierLookup)
	}
	return RunBatch(executionContext, strategy.dependencies.BatchSettings, sourceGroups, migrateFunction, resultObserver)
}

func (strategy *GroupStrategy) migrateGroup(executionContext context.Context, sourceGroup models.Group, identifierLookup IdentifierLookup) Result {
	entityResult := NewResult(EntityKindGroup, sourceGroup.Identifier, sourceGroup.FullPath)
	entityResult.Begin()

	if existingIdentifier, alreadyPresent := strategy.findDestinationGroupByPath(executionContext, sourceGroup.FullPath); alreadyPresent {
		strategy.rememberCreatedGroup(sourceGroup.Identifier, existingIdentifier)
		entityResult.MarkSkipped(fmt.Sprintf(groupAlreadyPresentSkipReasonTemplate, sourceGroup.FullPath), existingIdentifier)
		return entityResult
	}

	destinationParentIdentifier := strategy.resolveParent(executionContext, &entityResult, sourceGroup, identifierLookup)

	createdIdentifier, creationError := strategy.createGroup(executionContext, sourceGroup, destinationParentIdentifier, sourceGroup.Path)
	if creationError == nil {
		strategy.finishGroup(executionContext, &entityResult, identifierLookup, sourceGroup, createdIdentifier)
		return entityResult
	}

	switch strategy.dependencies.Resolver.ClassifyError(creationError) {
	case CollisionClassStorage:
		entityResult.MarkSkipped(fmt.Sprintf(groupStorageConflictSkipReasonTemplate, sourceGroup.FullPath), 0)
		return entityResult
	case CollisionClassPath:
		disambiguatedPath := strategy.dependencies.Resolver.DisambiguatedPath(sourceGroup.Path)
		retriedIdentifier, retryError := strategy.createGroup(executionContext, sourceGroup, destinationParentIdentifier, disambiguatedPath)
		if retryError != nil {
			switch strategy.dependencies.Resolver.ClassifyError(retryError) {
			case CollisionClassStorage:
				entityResult.MarkSkipped(fmt.Sprintf(groupStorageConflictSkipReasonTemplate, sourceGroup.FullPath), 0)
			case CollisionClassPath:
				entityResult.MarkFailed(groupRetryCollisionFailedReasonConst)
			default:
				entityResult.MarkFailed(fmt.Sprintf(groupCreationFailedReasonTemplate, retryError))
			}
			return entityResult
		}
		entityResult.AddWarning(fmt.Sprintf(groupRenamedWarningTemplateConstant, disambiguatedPath))
		strategy.finishGroup(executionContext, &entityResult, identifierLookup, sourceGroup, retriedIdentifier)
		return entityResult
	default:
		entityResult.MarkFailed(fmt.Sprintf(groupCreationFailedReasonTemplate, creationError))
		return entityResult
	}
}

func (strategy *GroupStrategy) createGroup(executionContext context.Context, sourceGroup models.Group, destinationParentIdentifier int64, destinationPath string) (int64, error) {
	creationPayload := sourceGroup.CreationPayload(destinationParentIdentifier)
	creationPayload["path"] = destinationPath

	var creationResponse gitlab.Response
	creationError := gitlab.WithRetry(executionContext, strategy.dependencies.RetryPolicy, func(retryContext context.Context) error {
		var requestError error
		creationResponse, requestError = strategy.dependencies.DestinationClient.Post(retryContext, groupsEndpointConstant, creationPayload)
		return requestError
	})
	if creationError != nil {
		return 0, creationError
	}

	if strategy.dependencies.DestinationClient.DryRun() {
		return 0, nil
	}

	var createdGroup models.Group
	if decodeError := json.Unmarshal(creationResponse.Body, &createdGroup); decodeError != nil {
		return 0, decodeError
	}
	return createdGroup.Identifier, nil
}

func (strategy *GroupStrategy) finishGroup(executionContext context.Context, entityResult *Result, identifierLookup IdentifierLookup, sourceGroup models.Group, createdIdentifier int64) {
	if createdIdentifier != 0 {
		strategy.rememberCreatedGroup(sourceGroup.Identifier, createdIdentifier)
	}

	sourceGroupEndpoint := groupEndpointPrefixConstant + formatIdentifier(sourceGroup.Identifier)
	destinationGroupEndpoint := groupEndpointPrefixConstant + formatIdentifier(createdIdentifier)
	if createdIdentifier != 0 {
		strategy.dependencies.migrateMembers(executionContext, entityResult, identifierLookup, sourceGroupEndpoint, destinationGroupEndpoint)
	}

	entityResult.MarkSucceeded(createdIdentifier)
	strategy.dependencies.logger().Info(
		groupMigratedMessageConstant,
		zap.String(logFieldGroupPathConstant, sourceGroup.FullPath),
		zap.Int64(logFieldDestinationIdentifierConstant, createdIdentifier),
	)
}

// resolveParent translates the parent group reference into the destination's
// identifier space. The identifier map is consulted first; when concurrency
// within the phase has not yet recorded the parent, the destination is
// queried by full path. An unresolved parent degrades to a top-level group
// with a warning.
func (strategy *GroupStrategy) resolveParent(executionContext context.Context, entityResult *Result, sourceGroup models.Group, identifierLookup IdentifierLookup) int64 {
	if !sourceGroup.IsNested() {
		return 0
	}

	if destinationParentIdentifier, parentCreatedThisPhase := strategy.createdGroupIdentifier(sourceGroup.ParentIdentifier); parentCreatedThisPhase {
		return destinationParentIdentifier
	}

	if destinationParentIdentifier, parentMapped := identifierLookup.Resolve(EntityKindGroup, sourceGroup.ParentIdentifier); parentMapped {
		return destinationParentIdentifier
	}

	parentFullPath := parentNamespacePath(sourceGroup.FullPath)
	if len(parentFullPath) > 0 {
		if destinationParentIdentifier, parentPresent := strategy.findDestinationGroupByPath(executionContext, parentFullPath); parentPresent {
			return destinationParentIdentifier
		}
	}

	entityResult.AddWarning(fmt.Sprintf(parentUnresolvedWarningTemplateConst, parentFullPath))
	return 0
}

func (strategy *GroupStrategy) findDestinationGroupByPath(executionContext context.Context, groupFullPath string) (int64, bool) {
	groupResponse, lookupError := strategy.dependencies.DestinationClient.Get(executionContext, groupEndpointPrefixConstant+url.PathEscape(groupFullPath), nil)
	if lookupError != nil {
		return 0, false
	}

	var destinationGroup models.Group
	if decodeError := json.Unmarshal(groupResponse.Body, &destinationGroup); decodeError != nil {
		return 0, false
	}
	return destinationGroup.Identifier, true
}

func namespaceDepth(fullPath string) int {
	return strings.Count(fullPath, pathSegmentSeparatorConstant)
}

func parentNamespacePath(fullPath string) string {
	lastSeparatorIndex := strings.LastIndex(fullPath, pathSegmentSeparatorConstant)
	if lastSeparatorIndex < 0 {
		return ""
	}
	return fullPath[:lastSeparatorIndex]
}
