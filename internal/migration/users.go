package migration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/glmigrate/internal/gitlab"
	"github.com/temirov/glmigrate/internal/models"
)

const (
	usersEndpointConstant                 = "/users"
	userSearchQueryParameterConstant      = "search"
	systemAccountSkipReasonConstant       = "system or service account"
	userAlreadyPresentSkipReasonTemplate  = "destination already has a user with email %s"
	userCreationFailedReasonTemplate      = "user creation failed: %s"
	userLookupFailedReasonTemplate        = "destination lookup failed: %s"
	userConflictUnresolvedReasonConstant  = "destination reported a conflict but no user with the source email exists"
	userMigratedMessageConstant           = "Migrated user"
	userSkippedMessageConstant            = "Skipped user"
	logFieldUsernameConstant              = "username"
	logFieldReasonConstant                = "reason"
	logFieldDestinationIdentifierConstant = "destination_id"
)

// UserStrategy migrates user accounts. Users are the first phase because
// group and project membership reference them by identifier.
type UserStrategy struct {
	dependencies StrategyDependencies
}

// NewUserStrategy constructs the user phase strategy.
func NewUserStrategy(dependencies StrategyDependencies) (*UserStrategy, error) {
	if validationError := dependencies.validate(); validationError != nil {
		return nil, validationError
	}
	return &UserStrategy{dependencies: dependencies}, nil
}

// Kind implements PhaseStrategy.
func (strategy *UserStrategy) Kind() EntityKind {
	return EntityKindUser
}

// ValidatePrerequisites implements PhaseStrategy. User creation requires no
// earlier phase, so connectivity checks at the engine level suffice.
func (strategy *UserStrategy) ValidatePrerequisites(executionContext context.Context) error {
	return nil
}

// Run implements PhaseStrategy.
func (strategy *UserStrategy) Run(executionContext context.Context, identifierLookup IdentifierLookup, resultObserver ResultObserver) (BatchOutcome, error) {
	rawUsers, listingError := strategy.dependencies.SourceClient.CollectPaginated(executionContext, usersEndpointConstant, nil)
	if listingError != nil {
		return BatchOutcome{}, listingError
	}

	sourceUsers, decodeError := decodeEntities[models.User](EntityKindUser, rawUsers)
	if decodeError != nil {
		return BatchOutcome{}, decodeError
	}

	return RunBatch(executionContext, strategy.dependencies.BatchSettings, sourceUsers, strategy.migrateUser, resultObserver)
}

func (strategy *UserStrategy) migrateUser(executionContext context.Context, sourceUser models.User) Result {
	entityResult := NewResult(EntityKindUser, sourceUser.Identifier, sourceUser.Username)
	entityResult.Begin()

	if sourceUser.IsSystem() {
		entityResult.MarkSkipped(systemAccountSkipReasonConstant, 0)
		strategy.logSkip(sourceUser, systemAccountSkipReasonConstant)
		return entityResult
	}

	existingUser, lookupError := strategy.findDestinationUserByEmail(executionContext, sourceUser.Email)
	if lookupError != nil {
		entityResult.MarkFailed(fmt.Sprintf(userLookupFailedReasonTemplate, lookupError))
		return entityResult
	}
	if existingUser != nil {
		skipReason := fmt.Sprintf(userAlreadyPresentSkipReasonTemplate, sourceUser.Email)
		entityResult.MarkSkipped(skipReason, existingUser.Identifier)
		strategy.logSkip(sourceUser, skipReason)
		return entityResult
	}

	var creationResponse gitlab.Response
	creationError := gitlab.WithRetry(executionContext, strategy.dependencies.RetryPolicy, func(retryContext context.Context) error {
		var requestError error
		creationResponse, requestError = strategy.dependencies.DestinationClient.Post(retryContext, usersEndpointConstant, sourceUser.CreationPayload())
		return requestError
	})
	if creationError != nil {
		var conflictError gitlab.ConflictError
		if errors.As(creationError, &conflictError) {
			return strategy.resolveCreationConflict(executionContext, entityResult, sourceUser)
		}
		entityResult.MarkFailed(fmt.Sprintf(userCreationFailedReasonTemplate, creationError))
		return entityResult
	}

	if strategy.dependencies.DestinationClient.DryRun() {
		entityResult.MarkSucceeded(0)
		return entityResult
	}

	var createdUser models.User
	if decodeError := json.Unmarshal(creationResponse.Body, &createdUser); decodeError != nil {
		entityResult.MarkFailed(fmt.Sprintf(userCreationFailedReasonTemplate, decodeError))
		return entityResult
	}

	entityResult.MarkSucceeded(createdUser.Identifier)
	strategy.dependencies.logger().Info(
		userMigratedMessageConstant,
		zap.String(logFieldUsernameConstant, sourceUser.Username),
		zap.Int64(logFieldDestinationIdentifierConstant, createdUser.Identifier),
	)
	return entityResult
}

// resolveCreationConflict re-queries the destination after a conflict. A
// conflicting create usually means the email or username is already present,
// in which case the entity is idempotently mapped to the existing account.
func (strategy *UserStrategy) resolveCreationConflict(executionContext context.Context, entityResult Result, sourceUser models.User) Result {
	existingUser, lookupError := strategy.findDestinationUserByEmail(executionContext, sourceUser.Email)
	if lookupError != nil {
		entityResult.MarkFailed(fmt.Sprintf(userLookupFailedReasonTemplate, lookupError))
		return entityResult
	}
	if existingUser == nil {
		entityResult.MarkFailed(userConflictUnresolvedReasonConstant)
		return entityResult
	}

	skipReason := fmt.Sprintf(userAlreadyPresentSkipReasonTemplate, sourceUser.Email)
	entityResult.MarkSkipped(skipReason, existingUser.Identifier)
	strategy.logSkip(sourceUser, skipReason)
	return entityResult
}

func (strategy *UserStrategy) findDestinationUserByEmail(executionContext context.Context, emailAddress string) (*models.User, error) {
	searchQuery := url.Values{}
	searchQuery.Set(userSearchQueryParameterConstant, emailAddress)

	rawCandidates, searchError := strategy.dependencies.DestinationClient.CollectPaginated(executionContext, usersEndpointConstant, searchQuery)
	if searchError != nil {
		return nil, searchError
	}

	candidateUsers, decodeError := decodeEntities[models.User](EntityKindUser, rawCandidates)
	if decodeError != nil {
		return nil, decodeError
	}

	for candidateIndex := range candidateUsers {
		if strings.EqualFold(candidateUsers[candidateIndex].Email, emailAddress) {
			return &candidateUsers[candidateIndex], nil
		}
	}
	return nil, nil
}

func (strategy *UserStrategy) logSkip(sourceUser models.User, skipReason string) {
	strategy.dependencies.logger().Info(
		userSkippedMessageConstant,
		zap.String(logFieldUsernameConstant, sourceUser.Username),
		zap.String(logFieldReasonConstant, skipReason),
	)
}
