package migration_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/glmigrate/internal/gitlab"
	"github.com/temirov/glmigrate/internal/migration"
)

func newResolverForTesting(testInstance *testing.T) *migration.ConflictResolver {
	testInstance.Helper()
	resolverInstance, resolverError := migration.NewConflictResolver(migration.DefaultCollisionRules())
	require.NoError(testInstance, resolverError)
	return resolverInstance
}

func TestNewConflictResolverRejectsEmptyRuleSet(testInstance *testing.T) {
	resolverInstance, resolverError := migration.NewConflictResolver(nil)
	require.Error(testInstance, resolverError)
	require.Nil(testInstance, resolverInstance)
}

func TestConflictResolverClassification(testInstance *testing.T) {
	testCases := []struct {
		name          string
		errorText     string
		expectedClass migration.CollisionClass
	}{
		{
			name:          "path_already_taken",
			errorText:     `{"message":{"path":["has already been taken"]}}`,
			expectedClass: migration.CollisionClassPath,
		},
		{
			name:          "name_already_exists",
			errorText:     "Group name already exists",
			expectedClass: migration.CollisionClassPath,
		},
		{
			name:          "repository_on_disk",
			errorText:     "There is already a repository with that name on disk",
			expectedClass: migration.CollisionClassStorage,
		},
		{
			name:          "storage_abort",
			errorText:     "uncaught throw :abort",
			expectedClass: migration.CollisionClassStorage,
		},
		{
			name:          "unrelated_failure",
			errorText:     "visibility level restricted by instance policy",
			expectedClass: migration.CollisionClassNone,
		},
	}

	resolverInstance := newResolverForTesting(testInstance)
	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subtestInstance *testing.T) {
			require.Equal(subtestInstance, testCase.expectedClass, resolverInstance.Classify(testCase.errorText))
		})
	}
}

func TestConflictResolverClassifyErrorUnwrapsTaxonomy(testInstance *testing.T) {
	resolverInstance := newResolverForTesting(testInstance)

	conflictClass := resolverInstance.ClassifyError(gitlab.ConflictError{Body: "path has already been taken"})
	require.Equal(testInstance, migration.CollisionClassPath, conflictClass)

	storageClass := resolverInstance.ClassifyError(gitlab.ConflictError{Body: "there is already a repository with that name on disk"})
	require.Equal(testInstance, migration.CollisionClassStorage, storageClass)

	remoteClass := resolverInstance.ClassifyError(gitlab.RemoteError{StatusCode: 400, Body: "name already exists"})
	require.Equal(testInstance, migration.CollisionClassPath, remoteClass)
}

func TestConflictResolverUnrecognizedConflictDefaultsToPath(testInstance *testing.T) {
	resolverInstance := newResolverForTesting(testInstance)

	conflictClass := resolverInstance.ClassifyError(gitlab.ConflictError{Body: "duplicate key value violates unique constraint"})
	require.Equal(testInstance, migration.CollisionClassPath, conflictClass)
}

func TestDisambiguatedPathsAreDistinctAndPrefixed(testInstance *testing.T) {
	resolverInstance := newResolverForTesting(testInstance)

	const proposedPath = "p"
	seenSuffixes := map[string]struct{}{}
	for attemptIndex := 0; attemptIndex < 50; attemptIndex++ {
		candidatePath := resolverInstance.DisambiguatedPath(proposedPath)
		require.True(testInstance, strings.HasPrefix(candidatePath, proposedPath+"-"))

		suffixPart := strings.TrimPrefix(candidatePath, proposedPath+"-")
		require.NotEmpty(testInstance, suffixPart)
		require.NotContains(testInstance, seenSuffixes, suffixPart)
		seenSuffixes[suffixPart] = struct{}{}
	}
}

func TestCollisionRuleOrderIsRespected(testInstance *testing.T) {
	orderedRules := []migration.CollisionRule{
		{Pattern: "already", Class: migration.CollisionClassStorage},
		{Pattern: "has already been taken", Class: migration.CollisionClassPath},
	}
	resolverInstance, resolverError := migration.NewConflictResolver(orderedRules)
	require.NoError(testInstance, resolverError)

	require.Equal(testInstance, migration.CollisionClassStorage, resolverInstance.Classify("path has already been taken"))
}
