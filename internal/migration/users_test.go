package migration_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/temirov/glmigrate/internal/gitlab"
	"github.com/temirov/glmigrate/internal/migration"
)

func newStrategyDependencies(testInstance *testing.T, sourceURL string, destinationURL string, destinationDryRun bool) migration.StrategyDependencies {
	testInstance.Helper()

	resolverInstance, resolverError := migration.NewConflictResolver(migration.DefaultCollisionRules())
	require.NoError(testInstance, resolverError)

	return migration.StrategyDependencies{
		SourceClient:      newStrategyClient(testInstance, sourceURL, false),
		DestinationClient: newStrategyClient(testInstance, destinationURL, destinationDryRun),
		Resolver:          resolverInstance,
		RetryPolicy:       gitlab.BackoffPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, Multiplier: 2},
		BatchSettings:     migration.BatchSettings{Concurrency: 1},
	}
}

func newStrategyClient(testInstance *testing.T, serverURL string, dryRunEnabled bool) *gitlab.Client {
	testInstance.Helper()

	limiterInstance, limiterError := gitlab.NewRateLimiter(1000)
	require.NoError(testInstance, limiterError)
	breakerInstance, breakerError := gitlab.NewCircuitBreaker(10, time.Minute)
	require.NoError(testInstance, breakerError)

	clientInstance, clientError := gitlab.NewClient(
		gitlab.ClientConfiguration{BaseURL: serverURL, Token: "test-token", InstanceLabel: "test", DryRun: dryRunEnabled},
		gitlab.ClientDependencies{RateLimiter: limiterInstance, CircuitBreaker: breakerInstance},
	)
	require.NoError(testInstance, clientError)
	return clientInstance
}

func newJSONServer(testInstance *testing.T, routes map[string]string) *httptest.Server {
	testInstance.Helper()
	routedServer := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		routeKey := request.Method + " " + request.URL.EscapedPath()
		if responseBody, routeKnown := routes[routeKey]; routeKnown {
			_, _ = responseWriter.Write([]byte(responseBody))
			return
		}
		responseWriter.WriteHeader(http.StatusNotFound)
		_, _ = responseWriter.Write([]byte(`{"message":"404 Not Found"}`))
	}))
	testInstance.Cleanup(routedServer.Close)
	return routedServer
}

// The destination already holds a user with the same email under a different
// username; the source user must be skipped and mapped to the existing
// destination account.
func TestUserStrategySkipsAndMapsPreExistingEmail(testInstance *testing.T) {
	sourceServer := newJSONServer(testInstance, map[string]string{
		"GET /api/v4/users": `[{"id":10,"username":"alice","email":"a@example.com","name":"Alice","state":"active"}]`,
	})
	destinationServer := newJSONServer(testInstance, map[string]string{
		"GET /api/v4/users": `[{"id":205,"username":"alice.renamed","email":"a@example.com","name":"Alice","state":"active"}]`,
	})

	userStrategy, strategyError := migration.NewUserStrategy(newStrategyDependencies(testInstance, sourceServer.URL, destinationServer.URL, false))
	require.NoError(testInstance, strategyError)

	identifierMap := migration.NewIdentifierMap()
	recordObserver := func(finalizedResult migration.Result) {
		if finalizedResult.DestinationIdentifier != 0 {
			require.NoError(testInstance, identifierMap.Record(finalizedResult.EntityKind, finalizedResult.SourceIdentifier, finalizedResult.DestinationIdentifier))
		}
	}

	batchOutcome, runError := userStrategy.Run(context.Background(), identifierMap, recordObserver)
	require.NoError(testInstance, runError)
	require.Len(testInstance, batchOutcome.Results, 1)

	userResult := batchOutcome.Results[0]
	require.Equal(testInstance, migration.ResultStatusSkipped, userResult.Status)
	require.Equal(testInstance, int64(205), userResult.DestinationIdentifier)

	mappedIdentifier, mappingFound := identifierMap.Resolve(migration.EntityKindUser, 10)
	require.True(testInstance, mappingFound)
	require.Equal(testInstance, int64(205), mappedIdentifier)
}

func TestUserStrategySkipsSystemAccountsWithoutDestinationCalls(testInstance *testing.T) {
	sourceServer := newJSONServer(testInstance, map[string]string{
		"GET /api/v4/users": `[
			{"id":1,"username":"root","email":"admin@example.com","name":"Administrator","state":"active"},
			{"id":2,"username":"project_7_bot","email":"bot@example.com","name":"Token Bot","state":"active"},
			{"id":3,"username":"pending","email":"pending@example.com","name":"Pending","state":"blocked_pending_approval"}
		]`,
	})
	destinationServer := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		testInstance.Errorf("unexpected destination request: %s %s", request.Method, request.URL.Path)
	}))
	testInstance.Cleanup(destinationServer.Close)

	userStrategy, strategyError := migration.NewUserStrategy(newStrategyDependencies(testInstance, sourceServer.URL, destinationServer.URL, false))
	require.NoError(testInstance, strategyError)

	batchOutcome, runError := userStrategy.Run(context.Background(), migration.NewIdentifierMap(), nil)
	require.NoError(testInstance, runError)
	require.Equal(testInstance, 3, batchOutcome.SkippedCount)
}

func TestUserStrategyCreatesMissingUser(testInstance *testing.T) {
	sourceServer := newJSONServer(testInstance, map[string]string{
		"GET /api/v4/users": `[{"id":10,"username":"alice","email":"a@example.com","name":"Alice","state":"active"}]`,
	})
	destinationServer := newJSONServer(testInstance, map[string]string{
		"GET /api/v4/users":  `[]`,
		"POST /api/v4/users": `{"id":301,"username":"alice","email":"a@example.com","name":"Alice","state":"active"}`,
	})

	userStrategy, strategyError := migration.NewUserStrategy(newStrategyDependencies(testInstance, sourceServer.URL, destinationServer.URL, false))
	require.NoError(testInstance, strategyError)

	batchOutcome, runError := userStrategy.Run(context.Background(), migration.NewIdentifierMap(), nil)
	require.NoError(testInstance, runError)
	require.Equal(testInstance, 1, batchOutcome.SucceededCount)
	require.Equal(testInstance, int64(301), batchOutcome.Results[0].DestinationIdentifier)
}

func TestUserStrategyDryRunDoesNotCreate(testInstance *testing.T) {
	sourceServer := newJSONServer(testInstance, map[string]string{
		"GET /api/v4/users": `[{"id":10,"username":"alice","email":"a@example.com","name":"Alice","state":"active"}]`,
	})
	destinationServer := newJSONServer(testInstance, map[string]string{
		"GET /api/v4/users": `[]`,
	})

	userStrategy, strategyError := migration.NewUserStrategy(newStrategyDependencies(testInstance, sourceServer.URL, destinationServer.URL, true))
	require.NoError(testInstance, strategyError)

	batchOutcome, runError := userStrategy.Run(context.Background(), migration.NewIdentifierMap(), nil)
	require.NoError(testInstance, runError)
	require.Equal(testInstance, 1, batchOutcome.SucceededCount)
	require.Equal(testInstance, int64(0), batchOutcome.Results[0].DestinationIdentifier)
}
