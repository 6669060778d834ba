package migration_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/glmigrate/internal/migration"
)

const sourceGroupListingConstant = `[
	{"id":3,"name":"platform","path":"platform","full_path":"platform","visibility":"private","parent_id":0},
	{"id":4,"name":"runtime","path":"runtime","full_path":"platform/runtime","visibility":"private","parent_id":3}
]`

func TestGroupStrategyCreatesNestedGroupsUnderTranslatedParents(testInstance *testing.T) {
	sourceServer := newJSONServer(testInstance, map[string]string{
		"GET /api/v4/groups":           sourceGroupListingConstant,
		"GET /api/v4/groups/3/members": `[]`,
		"GET /api/v4/groups/4/members": `[]`,
	})

	var observedParentIdentifier atomic.Int64
	var createdGroupCount atomic.Int64
	destinationServer := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		if request.Method == http.MethodPost && request.URL.Path == "/api/v4/groups" {
			var creationPayload map[string]any
			require.NoError(testInstance, json.NewDecoder(request.Body).Decode(&creationPayload))
			if parentValue, parentPresent := creationPayload["parent_id"]; parentPresent {
				observedParentIdentifier.Store(int64(parentValue.(float64)))
			}
			createdIdentifier := 50 + createdGroupCount.Add(1)
			_, _ = responseWriter.Write([]byte(`{"id":` + formatInt(createdIdentifier) + `,"path":"` + creationPayload["path"].(string) + `"}`))
			return
		}
		if request.Method == http.MethodGet && request.URL.Path == "/api/v4/groups/51/members" {
			_, _ = responseWriter.Write([]byte(`[]`))
			return
		}
		if request.Method == http.MethodGet && request.URL.Path == "/api/v4/groups/52/members" {
			_, _ = responseWriter.Write([]byte(`[]`))
			return
		}
		responseWriter.WriteHeader(http.StatusNotFound)
		_, _ = responseWriter.Write([]byte(`{"message":"404 Not Found"}`))
	}))
	testInstance.Cleanup(destinationServer.Close)

	groupStrategy, strategyError := migration.NewGroupStrategy(newStrategyDependencies(testInstance, sourceServer.URL, destinationServer.URL, false))
	require.NoError(testInstance, strategyError)

	identifierMap := migration.NewIdentifierMap()
	recordObserver := func(finalizedResult migration.Result) {
		if finalizedResult.DestinationIdentifier != 0 {
			require.NoError(testInstance, identifierMap.Record(finalizedResult.EntityKind, finalizedResult.SourceIdentifier, finalizedResult.DestinationIdentifier))
		}
	}

	batchOutcome, runError := groupStrategy.Run(context.Background(), identifierMap, recordObserver)
	require.NoError(testInstance, runError)
	require.Equal(testInstance, 2, batchOutcome.SucceededCount)
	require.Equal(testInstance, int64(51), observedParentIdentifier.Load())
}

func TestGroupStrategySkipsOnStorageConflict(testInstance *testing.T) {
	sourceServer := newJSONServer(testInstance, map[string]string{
		"GET /api/v4/groups": `[{"id":3,"name":"platform","path":"platform","full_path":"platform","visibility":"private","parent_id":0}]`,
	})
	destinationServer := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		if request.Method == http.MethodPost {
			responseWriter.WriteHeader(http.StatusConflict)
			_, _ = responseWriter.Write([]byte(`{"message":"There is already a repository with that name on disk"}`))
			return
		}
		responseWriter.WriteHeader(http.StatusNotFound)
		_, _ = responseWriter.Write([]byte(`{"message":"404 Not Found"}`))
	}))
	testInstance.Cleanup(destinationServer.Close)

	groupStrategy, strategyError := migration.NewGroupStrategy(newStrategyDependencies(testInstance, sourceServer.URL, destinationServer.URL, false))
	require.NoError(testInstance, strategyError)

	batchOutcome, runError := groupStrategy.Run(context.Background(), migration.NewIdentifierMap(), nil)
	require.NoError(testInstance, runError)
	require.Equal(testInstance, 1, batchOutcome.SkippedCount)
	require.Contains(testInstance, batchOutcome.Results[0].Reason, "manual cleanup")
}

func TestGroupStrategyRetriesOnceWithDisambiguatedPath(testInstance *testing.T) {
	sourceServer := newJSONServer(testInstance, map[string]string{
		"GET /api/v4/groups":           `[{"id":3,"name":"platform","path":"platform","full_path":"platform","visibility":"private","parent_id":0}]`,
		"GET /api/v4/groups/3/members": `[]`,
	})

	var creationAttemptCount atomic.Int64
	var retriedPath atomic.Value
	destinationServer := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		if request.Method == http.MethodPost && request.URL.Path == "/api/v4/groups" {
			var creationPayload map[string]any
			require.NoError(testInstance, json.NewDecoder(request.Body).Decode(&creationPayload))
			if creationAttemptCount.Add(1) == 1 {
				responseWriter.WriteHeader(http.StatusConflict)
				_, _ = responseWriter.Write([]byte(`{"message":{"path":["has already been taken"]}}`))
				return
			}
			retriedPath.Store(creationPayload["path"].(string))
			_, _ = responseWriter.Write([]byte(`{"id":61,"path":"` + creationPayload["path"].(string) + `"}`))
			return
		}
		if request.Method == http.MethodGet && request.URL.Path == "/api/v4/groups/61/members" {
			_, _ = responseWriter.Write([]byte(`[]`))
			return
		}
		responseWriter.WriteHeader(http.StatusNotFound)
		_, _ = responseWriter.Write([]byte(`{"message":"404 Not Found"}`))
	}))
	testInstance.Cleanup(destinationServer.Close)

	groupStrategy, strategyError := migration.NewGroupStrategy(newStrategyDependencies(testInstance, sourceServer.URL, destinationServer.URL, false))
	require.NoError(testInstance, strategyError)

	batchOutcome, runError := groupStrategy.Run(context.Background(), migration.NewIdentifierMap(), nil)
	require.NoError(testInstance, runError)
	require.Equal(testInstance, 1, batchOutcome.SucceededCount)
	require.Equal(testInstance, int64(2), creationAttemptCount.Load())

	disambiguated := retriedPath.Load().(string)
	require.Contains(testInstance, disambiguated, "platform-")
	require.NotEqual(testInstance, "platform", disambiguated)
}

// A transport failure on the disambiguated attempt must surface the real
// error instead of being reported as a second path collision.
func TestGroupStrategyDistinguishesRetryTransportFailureFromCollision(testInstance *testing.T) {
	sourceServer := newJSONServer(testInstance, map[string]string{
		"GET /api/v4/groups": `[{"id":3,"name":"platform","path":"platform","full_path":"platform","visibility":"private","parent_id":0}]`,
	})

	var creationAttemptCount atomic.Int64
	destinationServer := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		if request.Method == http.MethodPost && request.URL.Path == "/api/v4/groups" {
			if creationAttemptCount.Add(1) == 1 {
				responseWriter.WriteHeader(http.StatusConflict)
				_, _ = responseWriter.Write([]byte(`{"message":{"path":["has already been taken"]}}`))
				return
			}
			responseWriter.WriteHeader(http.StatusServiceUnavailable)
			_, _ = responseWriter.Write([]byte(`{"message":"service unavailable"}`))
			return
		}
		responseWriter.WriteHeader(http.StatusNotFound)
		_, _ = responseWriter.Write([]byte(`{"message":"404 Not Found"}`))
	}))
	testInstance.Cleanup(destinationServer.Close)

	groupStrategy, strategyError := migration.NewGroupStrategy(newStrategyDependencies(testInstance, sourceServer.URL, destinationServer.URL, false))
	require.NoError(testInstance, strategyError)

	batchOutcome, runError := groupStrategy.Run(context.Background(), migration.NewIdentifierMap(), nil)
	require.NoError(testInstance, runError)
	require.Len(testInstance, batchOutcome.Results, 1)

	groupResult := batchOutcome.Results[0]
	require.Equal(testInstance, migration.ResultStatusFailed, groupResult.Status)
	require.Contains(testInstance, groupResult.Reason, "group creation failed")
	require.NotContains(testInstance, groupResult.Reason, "collided")
}

func formatInt(value int64) string {
	encoded, _ := json.Marshal(value)
	return string(encoded)
}
