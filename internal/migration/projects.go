package migration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/temirov/glmigrate/internal/gitlab"
	"github.com/temirov/glmigrate/internal/models"
)

const (
	projectsEndpointConstant                 = "/projects"
	projectEndpointPrefixConstant            = "/projects/"
	userEndpointPrefixConstant               = "/users/"
	projectAlreadyPresentSkipReasonTemplate  = "destination already has a project at %s"
	projectNamespaceUnresolvedReasonTemplate = "namespace %s was not migrated: %s"
	projectCreationFailedReasonTemplate      = "project creation failed: %s"
	projectStorageConflictSkipReasonTempl    = "destination storage conflict prevents creating %s, manual cleanup required"
	projectRetryCollisionFailedReasonConst   = "disambiguated path also collided on the destination"
	projectRenamedWarningTemplateConstant    = "path collision on destination, project created under %s"
	projectMigratedMessageConstant           = "Migrated project"
	logFieldProjectPathConstant              = "project_path"
	personalNamespaceCacheSizeConstant       = 512
)

// ProjectStrategy migrates projects into their translated namespaces, then
// copies each project's direct members. Personal-namespace lookups against
// the destination are cached because many projects share an owner.
type ProjectStrategy struct {
	dependencies           StrategyDependencies
	personalNamespaceCache *lru.Cache[int64, int64]
}

// NewProjectStrategy constructs the project phase strategy.
func NewProjectStrategy(dependencies StrategyDependencies) (*ProjectStrategy, error) {
	if validationError := dependencies.validate(); validationError != nil {
		return nil, validationError
	}

	personalNamespaceCache, cacheError := lru.New[int64, int64](personalNamespaceCacheSizeConstant)
	if cacheError != nil {
		return nil, cacheError
	}

	return &ProjectStrategy{dependencies: dependencies, personalNamespaceCache: personalNamespaceCache}, nil
}

// Kind implements PhaseStrategy.
func (strategy *ProjectStrategy) Kind() EntityKind {
	return EntityKindProject
}

// ValidatePrerequisites implements PhaseStrategy.
func (strategy *ProjectStrategy) ValidatePrerequisites(executionContext context.Context) error {
	return nil
}

// Run implements PhaseStrategy.
func (strategy *ProjectStrategy) Run(executionContext context.Context, identifierLookup IdentifierLookup, resultObserver ResultObserver) (BatchOutcome, error) {
	rawProjects, listingError := strategy.dependencies.SourceClient.CollectPaginated(executionContext, projectsEndpointConstant, nil)
	if listingError != nil {
		return BatchOutcome{}, listingError
	}

	sourceProjects, decodeError := decodeEntities[models.Project](EntityKindProject, rawProjects)
	if decodeError != nil {
		return BatchOutcome{}, decodeError
	}

	migrateFunction := func(migrationContext context.Context, sourceProject models.Project) Result {
		return strategy.migrateProject(migrationContext, sourceProject, identifierLookup)
	}
	return RunBatch(executionContext, strategy.dependencies.BatchSettings, sourceProjects, migrateFunction, resultObserver)
}

func (strategy *ProjectStrategy) migrateProject(executionContext context.Context, sourceProject models.Project, identifierLookup IdentifierLookup) Result {
	entityResult := NewResult(EntityKindProject, sourceProject.Identifier, sourceProject.PathWithNamespace)
	entityResult.Begin()

	if existingIdentifier, alreadyPresent := strategy.findDestinationProjectByPath(executionContext, sourceProject.PathWithNamespace); alreadyPresent {
		entityResult.MarkSkipped(fmt.Sprintf(projectAlreadyPresentSkipReasonTemplate, sourceProject.PathWithNamespace), existingIdentifier)
		return entityResult
	}

	destinationNamespaceIdentifier, namespaceError := strategy.resolveNamespace(executionContext, sourceProject, identifierLookup)
	if namespaceError != nil {
		entityResult.MarkFailed(fmt.Sprintf(projectNamespaceUnresolvedReasonTemplate, sourceProject.Namespace.FullPath, namespaceError))
		return entityResult
	}

	createdIdentifier, creationError := strategy.createProject(executionContext, sourceProject, destinationNamespaceIdentifier)
	if creationError == nil {
		strategy.finishProject(executionContext, &entityResult, identifierLookup, sourceProject, createdIdentifier)
		return entityResult
	}

	switch strategy.dependencies.Resolver.ClassifyError(creationError) {
	case CollisionClassStorage:
		entityResult.MarkSkipped(fmt.Sprintf(projectStorageConflictSkipReasonTempl, sourceProject.PathWithNamespace), 0)
		return entityResult
	case CollisionClassPath:
		disambiguatedPath := strategy.dependencies.Resolver.DisambiguatedPath(sourceProject.Path)
		retriedIdentifier, retryError := strategy.createProject(executionContext, sourceProject.WithPath(disambiguatedPath), destinationNamespaceIdentifier)
		if retryError != nil {
			switch strategy.dependencies.Resolver.ClassifyError(retryError) {
			case CollisionClassStorage:
				entityResult.MarkSkipped(fmt.Sprintf(projectStorageConflictSkipReasonTempl, sourceProject.PathWithNamespace), 0)
			case CollisionClassPath:
				entityResult.MarkFailed(projectRetryCollisionFailedReasonConst)
			default:
				entityResult.MarkFailed(fmt.Sprintf(projectCreationFailedReasonTemplate, retryError))
			}
			return entityResult
		}
		entityResult.AddWarning(fmt.Sprintf(projectRenamedWarningTemplateConstant, disambiguatedPath))
		strategy.finishProject(executionContext, &entityResult, identifierLookup, sourceProject, retriedIdentifier)
		return entityResult
	default:
		entityResult.MarkFailed(fmt.Sprintf(projectCreationFailedReasonTemplate, creationError))
		return entityResult
	}
}

func (strategy *ProjectStrategy) createProject(executionContext context.Context, sourceProject models.Project, destinationNamespaceIdentifier int64) (int64, error) {
	var creationResponse gitlab.Response
	creationError := gitlab.WithRetry(executionContext, strategy.dependencies.RetryPolicy, func(retryContext context.Context) error {
		var requestError error
		creationResponse, requestError = strategy.dependencies.DestinationClient.Post(
			retryContext,
			projectsEndpointConstant,
			sourceProject.CreationPayload(destinationNamespaceIdentifier),
		)
		return requestError
	})
	if creationError != nil {
		return 0, creationError
	}

	if strategy.dependencies.DestinationClient.DryRun() {
		return 0, nil
	}

	var createdProject models.Project
	if decodeError := json.Unmarshal(creationResponse.Body, &createdProject); decodeError != nil {
		return 0, decodeError
	}
	return createdProject.Identifier, nil
}

func (strategy *ProjectStrategy) finishProject(executionContext context.Context, entityResult *Result, identifierLookup IdentifierLookup, sourceProject models.Project, createdIdentifier int64) {
	if createdIdentifier != 0 {
		sourceProjectEndpoint := projectEndpointPrefixConstant + formatIdentifier(sourceProject.Identifier)
		destinationProjectEndpoint := projectEndpointPrefixConstant + formatIdentifier(createdIdentifier)
		strategy.dependencies.migrateMembers(executionContext, entityResult, identifierLookup, sourceProjectEndpoint, destinationProjectEndpoint)
	}

	entityResult.MarkSucceeded(createdIdentifier)
	strategy.dependencies.logger().Info(
		projectMigratedMessageConstant,
		zap.String(logFieldProjectPathConstant, sourceProject.PathWithNamespace),
		zap.Int64(logFieldDestinationIdentifierConstant, createdIdentifier),
	)
}

// resolveNamespace translates the project's owning namespace. Group
// namespaces resolve through the group phase's identifier entries; personal
// namespaces resolve through the user entries plus a destination lookup of
// the user's namespace identifier.
func (strategy *ProjectStrategy) resolveNamespace(executionContext context.Context, sourceProject models.Project, identifierLookup IdentifierLookup) (int64, error) {
	if sourceProject.Namespace.IsPersonal() {
		destinationUserIdentifier, userMapped := identifierLookup.Resolve(EntityKindUser, sourceProject.Namespace.Identifier)
		if !userMapped {
			return 0, gitlab.NotFoundError{Endpoint: userEndpointPrefixConstant + formatIdentifier(sourceProject.Namespace.Identifier)}
		}
		return strategy.personalNamespaceIdentifier(executionContext, destinationUserIdentifier)
	}

	destinationGroupIdentifier, groupMapped := identifierLookup.Resolve(EntityKindGroup, sourceProject.Namespace.Identifier)
	if !groupMapped {
		return 0, gitlab.NotFoundError{Endpoint: groupEndpointPrefixConstant + url.PathEscape(sourceProject.Namespace.FullPath)}
	}
	return destinationGroupIdentifier, nil
}

func (strategy *ProjectStrategy) personalNamespaceIdentifier(executionContext context.Context, destinationUserIdentifier int64) (int64, error) {
	if cachedIdentifier, cacheHit := strategy.personalNamespaceCache.Get(destinationUserIdentifier); cacheHit {
		return cachedIdentifier, nil
	}

	userResponse, lookupError := strategy.dependencies.DestinationClient.Get(executionContext, userEndpointPrefixConstant+formatIdentifier(destinationUserIdentifier), nil)
	if lookupError != nil {
		return 0, lookupError
	}

	var userPayload struct {
		Namespace models.Namespace `json:"namespace"`
	}
	if decodeError := json.Unmarshal(userResponse.Body, &userPayload); decodeError != nil {
		return 0, decodeError
	}

	strategy.personalNamespaceCache.Add(destinationUserIdentifier, userPayload.Namespace.Identifier)
	return userPayload.Namespace.Identifier, nil
}

func (strategy *ProjectStrategy) findDestinationProjectByPath(executionContext context.Context, pathWithNamespace string) (int64, bool) {
	projectResponse, lookupError := strategy.dependencies.DestinationClient.Get(executionContext, projectEndpointPrefixConstant+url.PathEscape(pathWithNamespace), nil)
	if lookupError != nil {
		return 0, false
	}

	var destinationProject models.Project
	if decodeError := json.Unmarshal(projectResponse.Body, &destinationProject); decodeError != nil {
		return 0, false
	}
	return destinationProject.Identifier, true
}
