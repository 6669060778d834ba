package migration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/temirov/glmigrate/internal/gitlab"
	"github.com/temirov/glmigrate/internal/models"
)

const (
	membersEndpointSuffixConstant           = "/members"
	memberEndpointTemplateConstant          = "%s/members/%d"
	memberUserUnresolvedWarningTemplate     = "member %s not migrated, user %d has no destination mapping"
	memberAdditionFailedWarningTemplate     = "unable to add member %s: %s"
	memberUpgradeFailedWarningTemplate      = "unable to raise access level for member %s: %s"
	accessLevelUpdatePayloadFieldConstant   = "access_level"
	memberListingFailedWarningTemplateConst = "unable to list members of %s: %s"
	memberInspectionFailedWarningTemplConst = "unable to inspect existing member %s: %s"
)

// migrateMembers copies the direct members of one source entity onto its
// migrated destination counterpart. Users without a destination mapping are
// recorded as warnings and skipped. An already-present member is upgraded when
// the source grants a strictly higher access level, never downgraded.
func (dependencies StrategyDependencies) migrateMembers(
	executionContext context.Context,
	entityResult *Result,
	identifierLookup IdentifierLookup,
	sourceEntityEndpoint string,
	destinationEntityEndpoint string,
) {
	rawMembers, listingError := dependencies.SourceClient.CollectPaginated(executionContext, sourceEntityEndpoint+membersEndpointSuffixConstant, nil)
	if listingError != nil {
		entityResult.AddWarning(fmt.Sprintf(memberListingFailedWarningTemplateConst, sourceEntityEndpoint, listingError))
		return
	}

	memberBindings, decodeError := decodeEntities[models.MemberBinding](entityResult.EntityKind, rawMembers)
	if decodeError != nil {
		entityResult.AddWarning(decodeError.Error())
		return
	}

	for _, memberBinding := range memberBindings {
		destinationUserIdentifier, userMapped := identifierLookup.Resolve(EntityKindUser, memberBinding.UserIdentifier)
		if !userMapped {
			entityResult.AddWarning(fmt.Sprintf(memberUserUnresolvedWarningTemplate, memberBinding.Username, memberBinding.UserIdentifier))
			continue
		}

		dependencies.ensureMembership(executionContext, entityResult, destinationEntityEndpoint, memberBinding, destinationUserIdentifier)
	}
}

func (dependencies StrategyDependencies) ensureMembership(
	executionContext context.Context,
	entityResult *Result,
	destinationEntityEndpoint string,
	memberBinding models.MemberBinding,
	destinationUserIdentifier int64,
) {
	additionError := gitlab.WithRetry(executionContext, dependencies.RetryPolicy, func(retryContext context.Context) error {
		_, requestError := dependencies.DestinationClient.Post(
			retryContext,
			destinationEntityEndpoint+membersEndpointSuffixConstant,
			memberBinding.CreationPayload(destinationUserIdentifier),
		)
		return requestError
	})
	if additionError == nil {
		return
	}

	var conflictError gitlab.ConflictError
	if !errors.As(additionError, &conflictError) {
		entityResult.AddWarning(fmt.Sprintf(memberAdditionFailedWarningTemplate, memberBinding.Username, additionError))
		return
	}

	dependencies.upgradeMembershipIfHigher(executionContext, entityResult, destinationEntityEndpoint, memberBinding, destinationUserIdentifier)
}

func (dependencies StrategyDependencies) upgradeMembershipIfHigher(
	executionContext context.Context,
	entityResult *Result,
	destinationEntityEndpoint string,
	memberBinding models.MemberBinding,
	destinationUserIdentifier int64,
) {
	memberEndpoint := fmt.Sprintf(memberEndpointTemplateConstant, destinationEntityEndpoint, destinationUserIdentifier)

	memberResponse, inspectionError := dependencies.DestinationClient.Get(executionContext, memberEndpoint, nil)
	if inspectionError != nil {
		entityResult.AddWarning(fmt.Sprintf(memberInspectionFailedWarningTemplConst, memberBinding.Username, inspectionError))
		return
	}

	var existingBinding models.MemberBinding
	if decodeError := json.Unmarshal(memberResponse.Body, &existingBinding); decodeError != nil {
		entityResult.AddWarning(fmt.Sprintf(memberInspectionFailedWarningTemplConst, memberBinding.Username, decodeError))
		return
	}

	if existingBinding.AccessLevel.AtLeast(memberBinding.AccessLevel) {
		return
	}

	upgradePayload := map[string]any{accessLevelUpdatePayloadFieldConstant: int(memberBinding.AccessLevel)}
	upgradeError := gitlab.WithRetry(executionContext, dependencies.RetryPolicy, func(retryContext context.Context) error {
		_, requestError := dependencies.DestinationClient.Put(retryContext, memberEndpoint, upgradePayload)
		return requestError
	})
	if upgradeError != nil {
		entityResult.AddWarning(fmt.Sprintf(memberUpgradeFailedWarningTemplate, memberBinding.Username, upgradeError))
	}
}

func formatIdentifier(identifierValue int64) string {
	return strconv.FormatInt(identifierValue, 10)
}
