package migration

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/temirov/glmigrate/internal/gitlab"
)

// CollisionClass partitions destination-side errors by how the migration must
// react to them.
type CollisionClass int

// Collision classes. Path collisions are retried once under a disambiguated
// path; storage collisions indicate destination-side inconsistency that
// renaming cannot resolve, so the entity is skipped for operator follow-up.
const (
	CollisionClassNone CollisionClass = iota
	CollisionClassPath
	CollisionClassStorage
)

// CollisionRule pairs a lowercase substring pattern with its classification.
// Rules are evaluated top to bottom; the first match wins.
type CollisionRule struct {
	Pattern string
	Class   CollisionClass
}

const (
	suffixTimestampBaseConstant    = 36
	suffixTokenLengthConstant      = 8
	pathSuffixSeparatorConstant    = "-"
	projectExistenceEndpointPrefix = "/projects/"
	resolverRulesRequiredMessage   = "collision rules must not be empty"
)

var errResolverRulesRequired = errors.New(resolverRulesRequiredMessage)

// DefaultCollisionRules returns the built-in rule set. Storage rules precede
// path rules so the broader "already" phrasings do not shadow them.
func DefaultCollisionRules() []CollisionRule {
	return []CollisionRule{
		{Pattern: "there is already a repository with that name on disk", Class: CollisionClassStorage},
		{Pattern: "repository with that name already exists on disk", Class: CollisionClassStorage},
		{Pattern: "uncaught throw :abort", Class: CollisionClassStorage},
		{Pattern: "has already been taken", Class: CollisionClassPath},
		{Pattern: "already exists", Class: CollisionClassPath},
		{Pattern: "already in use", Class: CollisionClassPath},
	}
}

// ConflictResolver classifies destination collision errors and computes
// disambiguated paths. One resolver is shared across all strategies of a run.
type ConflictResolver struct {
	rules      []CollisionRule
	timeSource func() time.Time
}

// NewConflictResolver constructs a resolver over the ordered rule set.
func NewConflictResolver(rules []CollisionRule) (*ConflictResolver, error) {
	if len(rules) == 0 {
		return nil, errResolverRulesRequired
	}
	return &ConflictResolver{rules: rules, timeSource: time.Now}, nil
}

// Classify matches the raw error text against the rule set.
func (resolver *ConflictResolver) Classify(errorText string) CollisionClass {
	normalizedText := strings.ToLower(errorText)
	for _, collisionRule := range resolver.rules {
		if strings.Contains(normalizedText, collisionRule.Pattern) {
			return collisionRule.Class
		}
	}
	return CollisionClassNone
}

// ClassifyError extracts the destination error text and classifies it.
// Conflict responses and repository transport failures both route here.
func (resolver *ConflictResolver) ClassifyError(candidateError error) CollisionClass {
	var conflictError gitlab.ConflictError
	if errors.As(candidateError, &conflictError) {
		classifiedAs := resolver.Classify(conflictError.Body)
		if classifiedAs == CollisionClassNone {
			return CollisionClassPath
		}
		return classifiedAs
	}

	var remoteError gitlab.RemoteError
	if errors.As(candidateError, &remoteError) {
		return resolver.Classify(remoteError.Body)
	}

	return resolver.Classify(candidateError.Error())
}

// DisambiguatedPath appends a short unique suffix to the proposed path. The
// suffix combines the current timestamp with a random token so repeated calls
// within one run produce distinct candidates.
func (resolver *ConflictResolver) DisambiguatedPath(proposedPath string) string {
	timestampComponent := strconv.FormatInt(resolver.timeSource().Unix(), suffixTimestampBaseConstant)
	randomComponent := strings.ReplaceAll(uuid.NewString(), "-", "")[:suffixTokenLengthConstant]
	return proposedPath + pathSuffixSeparatorConstant + timestampComponent + pathSuffixSeparatorConstant + randomComponent
}

// ConfirmProjectPathAvailable checks the destination for an existing project
// at the candidate path. A missing-resource response confirms availability.
func (resolver *ConflictResolver) ConfirmProjectPathAvailable(executionContext context.Context, destinationClient *gitlab.Client, candidatePathWithNamespace string) (bool, error) {
	probeEndpoint := projectExistenceEndpointPrefix + url.PathEscape(candidatePathWithNamespace)
	_, probeError := destinationClient.Get(executionContext, probeEndpoint, nil)
	if probeError == nil {
		return false, nil
	}

	var notFoundError gitlab.NotFoundError
	if errors.As(probeError, &notFoundError) {
		return true, nil
	}

	return false, probeError
}
