package migration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/temirov/glmigrate/internal/gitlab"
	"github.com/temirov/glmigrate/internal/models"
)

const (
	protectedBranchesEndpointSuffixConstant = "/protected_branches"
	hooksEndpointSuffixConstant             = "/hooks"
	archiveEndpointSuffixConstant           = "/archive"
	defaultBranchPayloadFieldConstant       = "default_branch"
	repositoryMirrorRequiredMessageConstant = "repository mirror must be provided"
	repositoryProjectUnmappedReasonTemplate = "project %s was not migrated, repository has no destination"
	repositoryEmptySkipReasonConstant       = "source repository is empty"
	repositoryDryRunSkipReasonConstant      = "dry run, repository content not transferred"
	repositoryStorageConflictReasonTemplate = "destination storage conflict for %s, manual cleanup required"
	repositoryTransferFailedReasonTemplate  = "repository transfer failed: %s"
	repositoryCloneURLFailedReasonTemplate  = "unable to determine destination clone URL: %s"
	defaultBranchWarningTemplateConstant    = "unable to set default branch %s: %s"
	protectedBranchWarningTemplateConstant  = "unable to protect branch %s: %s"
	hookWarningTemplateConstant             = "unable to recreate hook %s: %s"
	archiveWarningTemplateConstant          = "unable to archive project: %s"
	repositoryMigratedMessageConstant       = "Migrated repository"
	logFieldRepositoryPathConstant          = "repository_path"
)

var errRepositoryMirrorRequired = errors.New(repositoryMirrorRequiredMessageConstant)

// RepositoryMirror transfers the full contents of one repository between
// instances. The returned error's text is matched against the collision rule
// set, so transport implementations must surface the underlying tool's
// error output.
type RepositoryMirror interface {
	Mirror(executionContext context.Context, sourceCloneURL string, destinationCloneURL string, repositorySlug string) error
}

// RepositoryStrategyConfiguration carries the credentials embedded into
// clone URLs for the transport.
type RepositoryStrategyConfiguration struct {
	SourceAccessToken      string
	DestinationAccessToken string
}

// RepositoryStrategy transfers repository contents for every project that
// reached the destination, then propagates repository-level settings.
type RepositoryStrategy struct {
	dependencies  StrategyDependencies
	configuration RepositoryStrategyConfiguration
	mirror        RepositoryMirror
}

// NewRepositoryStrategy constructs the repository phase strategy.
func NewRepositoryStrategy(dependencies StrategyDependencies, configuration RepositoryStrategyConfiguration, repositoryMirror RepositoryMirror) (*RepositoryStrategy, error) {
	if validationError := dependencies.validate(); validationError != nil {
		return nil, validationError
	}
	if repositoryMirror == nil {
		return nil, errRepositoryMirrorRequired
	}
	return &RepositoryStrategy{dependencies: dependencies, configuration: configuration, mirror: repositoryMirror}, nil
}

// Kind implements PhaseStrategy.
func (strategy *RepositoryStrategy) Kind() EntityKind {
	return EntityKindRepository
}

// ValidatePrerequisites implements PhaseStrategy.
func (strategy *RepositoryStrategy) ValidatePrerequisites(executionContext context.Context) error {
	return nil
}

type repositoryWorkItem struct {
	sourceProject                models.Project
	destinationProjectIdentifier int64
}

// Run implements PhaseStrategy.
func (strategy *RepositoryStrategy) Run(executionContext context.Context, identifierLookup IdentifierLookup, resultObserver ResultObserver) (BatchOutcome, error) {
	rawProjects, listingError := strategy.dependencies.SourceClient.CollectPaginated(executionContext, projectsEndpointConstant, nil)
	if listingError != nil {
		return BatchOutcome{}, listingError
	}

	sourceProjects, decodeError := decodeEntities[models.Project](EntityKindProject, rawProjects)
	if decodeError != nil {
		return BatchOutcome{}, decodeError
	}

	workItems := make([]repositoryWorkItem, 0, len(sourceProjects))
	for _, sourceProject := range sourceProjects {
		destinationProjectIdentifier, _ := identifierLookup.Resolve(EntityKindProject, sourceProject.Identifier)
		workItems = append(workItems, repositoryWorkItem{
			sourceProject:                sourceProject,
			destinationProjectIdentifier: destinationProjectIdentifier,
		})
	}

	return RunBatch(executionContext, strategy.dependencies.BatchSettings, workItems, strategy.migrateRepository, resultObserver)
}

func (strategy *RepositoryStrategy) migrateRepository(executionContext context.Context, workItem repositoryWorkItem) Result {
	sourceProject := workItem.sourceProject
	entityResult := NewResult(EntityKindRepository, sourceProject.Identifier, sourceProject.PathWithNamespace)
	entityResult.Begin()

	if workItem.destinationProjectIdentifier == 0 {
		entityResult.MarkFailed(fmt.Sprintf(repositoryProjectUnmappedReasonTemplate, sourceProject.PathWithNamespace))
		return entityResult
	}
	if sourceProject.EmptyRepository {
		entityResult.MarkSkipped(repositoryEmptySkipReasonConstant, workItem.destinationProjectIdentifier)
		return entityResult
	}
	if strategy.dependencies.DestinationClient.DryRun() {
		entityResult.MarkSkipped(repositoryDryRunSkipReasonConstant, workItem.destinationProjectIdentifier)
		return entityResult
	}

	sourceCloneURL, destinationCloneURL, urlError := strategy.cloneEndpoints(executionContext, sourceProject, workItem.destinationProjectIdentifier)
	if urlError != nil {
		entityResult.MarkFailed(fmt.Sprintf(repositoryCloneURLFailedReasonTemplate, urlError))
		return entityResult
	}

	mirrorError := strategy.mirror.Mirror(executionContext, sourceCloneURL, destinationCloneURL, sourceProject.PathWithNamespace)
	if mirrorError != nil {
		if strategy.dependencies.Resolver.ClassifyError(mirrorError) == CollisionClassStorage {
			entityResult.MarkSkipped(fmt.Sprintf(repositoryStorageConflictReasonTemplate, sourceProject.PathWithNamespace), workItem.destinationProjectIdentifier)
			return entityResult
		}
		entityResult.MarkFailed(fmt.Sprintf(repositoryTransferFailedReasonTemplate, mirrorError))
		return entityResult
	}

	strategy.propagateSettings(executionContext, &entityResult, sourceProject, workItem.destinationProjectIdentifier)

	entityResult.MarkSucceeded(workItem.destinationProjectIdentifier)
	strategy.dependencies.logger().Info(
		repositoryMigratedMessageConstant,
		zap.String(logFieldRepositoryPathConstant, sourceProject.PathWithNamespace),
		zap.Int64(logFieldDestinationIdentifierConstant, workItem.destinationProjectIdentifier),
	)
	return entityResult
}

func (strategy *RepositoryStrategy) cloneEndpoints(executionContext context.Context, sourceProject models.Project, destinationProjectIdentifier int64) (string, string, error) {
	destinationResponse, lookupError := strategy.dependencies.DestinationClient.Get(
		executionContext,
		projectEndpointPrefixConstant+formatIdentifier(destinationProjectIdentifier),
		nil,
	)
	if lookupError != nil {
		return "", "", lookupError
	}

	var destinationProject models.Project
	if decodeError := json.Unmarshal(destinationResponse.Body, &destinationProject); decodeError != nil {
		return "", "", decodeError
	}

	sourceCloneURL, sourceURLError := models.AuthenticatedCloneURL(sourceProject.HTTPCloneURL, strategy.configuration.SourceAccessToken)
	if sourceURLError != nil {
		return "", "", sourceURLError
	}

	destinationCloneURL, destinationURLError := models.AuthenticatedCloneURL(destinationProject.HTTPCloneURL, strategy.configuration.DestinationAccessToken)
	if destinationURLError != nil {
		return "", "", destinationURLError
	}

	return sourceCloneURL, destinationCloneURL, nil
}

// propagateSettings carries repository-level configuration that a mirror push
// does not transfer: the default branch, branch protection rules, project
// webhooks, and the archived flag. Each item degrades to a warning on failure.
func (strategy *RepositoryStrategy) propagateSettings(executionContext context.Context, entityResult *Result, sourceProject models.Project, destinationProjectIdentifier int64) {
	destinationProjectEndpoint := projectEndpointPrefixConstant + formatIdentifier(destinationProjectIdentifier)
	sourceProjectEndpoint := projectEndpointPrefixConstant + formatIdentifier(sourceProject.Identifier)

	if len(sourceProject.DefaultBranch) > 0 {
		defaultBranchPayload := map[string]any{defaultBranchPayloadFieldConstant: sourceProject.DefaultBranch}
		if _, updateError := strategy.dependencies.DestinationClient.Put(executionContext, destinationProjectEndpoint, defaultBranchPayload); updateError != nil {
			entityResult.AddWarning(fmt.Sprintf(defaultBranchWarningTemplateConstant, sourceProject.DefaultBranch, updateError))
		}
	}

	strategy.propagateProtectedBranches(executionContext, entityResult, sourceProjectEndpoint, destinationProjectEndpoint)
	strategy.propagateHooks(executionContext, entityResult, sourceProjectEndpoint, destinationProjectEndpoint)

	if sourceProject.Archived {
		if _, archiveError := strategy.dependencies.DestinationClient.Post(executionContext, destinationProjectEndpoint+archiveEndpointSuffixConstant, nil); archiveError != nil {
			entityResult.AddWarning(fmt.Sprintf(archiveWarningTemplateConstant, archiveError))
		}
	}
}

type protectedBranchListing struct {
	Name             string `json:"name"`
	PushAccessLevels []struct {
		AccessLevel int `json:"access_level"`
	} `json:"push_access_levels"`
	MergeAccessLevels []struct {
		AccessLevel int `json:"access_level"`
	} `json:"merge_access_levels"`
}

func (strategy *RepositoryStrategy) propagateProtectedBranches(executionContext context.Context, entityResult *Result, sourceProjectEndpoint string, destinationProjectEndpoint string) {
	rawBranches, listingError := strategy.dependencies.SourceClient.CollectPaginated(executionContext, sourceProjectEndpoint+protectedBranchesEndpointSuffixConstant, nil)
	if listingError != nil {
		entityResult.AddWarning(fmt.Sprintf(protectedBranchWarningTemplateConstant, sourceProjectEndpoint, listingError))
		return
	}

	branchListings, decodeError := decodeEntities[protectedBranchListing](EntityKindRepository, rawBranches)
	if decodeError != nil {
		entityResult.AddWarning(decodeError.Error())
		return
	}

	for _, branchListing := range branchListings {
		protectedBranch := models.ProtectedBranch{
			Name:             branchListing.Name,
			PushAccessLevel:  models.AccessLevelMaintainer,
			MergeAccessLevel: models.AccessLevelMaintainer,
		}
		if len(branchListing.PushAccessLevels) > 0 {
			protectedBranch.PushAccessLevel = models.AccessLevel(branchListing.PushAccessLevels[0].AccessLevel)
		}
		if len(branchListing.MergeAccessLevels) > 0 {
			protectedBranch.MergeAccessLevel = models.AccessLevel(branchListing.MergeAccessLevels[0].AccessLevel)
		}

		protectionError := gitlab.WithRetry(executionContext, strategy.dependencies.RetryPolicy, func(retryContext context.Context) error {
			_, requestError := strategy.dependencies.DestinationClient.Post(
				retryContext,
				destinationProjectEndpoint+protectedBranchesEndpointSuffixConstant,
				protectedBranch.CreationPayload(),
			)
			return requestError
		})
		if protectionError != nil {
			var conflictError gitlab.ConflictError
			if errors.As(protectionError, &conflictError) {
				continue
			}
			entityResult.AddWarning(fmt.Sprintf(protectedBranchWarningTemplateConstant, protectedBranch.Name, protectionError))
		}
	}
}

func (strategy *RepositoryStrategy) propagateHooks(executionContext context.Context, entityResult *Result, sourceProjectEndpoint string, destinationProjectEndpoint string) {
	rawHooks, listingError := strategy.dependencies.SourceClient.CollectPaginated(executionContext, sourceProjectEndpoint+hooksEndpointSuffixConstant, nil)
	if listingError != nil {
		entityResult.AddWarning(fmt.Sprintf(hookWarningTemplateConstant, sourceProjectEndpoint, listingError))
		return
	}

	projectHooks, decodeError := decodeEntities[models.ProjectHook](EntityKindRepository, rawHooks)
	if decodeError != nil {
		entityResult.AddWarning(decodeError.Error())
		return
	}

	for _, projectHook := range projectHooks {
		hookError := gitlab.WithRetry(executionContext, strategy.dependencies.RetryPolicy, func(retryContext context.Context) error {
			_, requestError := strategy.dependencies.DestinationClient.Post(
				retryContext,
				destinationProjectEndpoint+hooksEndpointSuffixConstant,
				projectHook.CreationPayload(),
			)
			return requestError
		})
		if hookError != nil {
			entityResult.AddWarning(fmt.Sprintf(hookWarningTemplateConstant, projectHook.URL, hookError))
		}
	}
}
