package migration_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/glmigrate/internal/migration"
)

const memberSourceGroupListingConstant = `[{"id":3,"name":"platform","path":"platform","full_path":"platform","visibility":"private","parent_id":0}]`

// Members whose user never reached the destination are reported as warnings
// on the owning entity, without any destination membership call.
func TestGroupMemberWithoutUserMappingBecomesWarning(testInstance *testing.T) {
	sourceServer := newJSONServer(testInstance, map[string]string{
		"GET /api/v4/groups":           memberSourceGroupListingConstant,
		"GET /api/v4/groups/3/members": `[{"id":10,"username":"alice","access_level":30}]`,
	})

	var membershipCallsMutex sync.Mutex
	membershipCallCount := 0
	destinationServer := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		if request.Method == http.MethodPost && request.URL.Path == "/api/v4/groups" {
			_, _ = responseWriter.Write([]byte(`{"id":51,"path":"platform"}`))
			return
		}
		if request.Method == http.MethodPost && request.URL.Path == "/api/v4/groups/51/members" {
			membershipCallsMutex.Lock()
			membershipCallCount++
			membershipCallsMutex.Unlock()
			_, _ = responseWriter.Write([]byte(`{}`))
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

	groupResult := batchOutcome.Results[0]
	require.NotEmpty(testInstance, groupResult.Warnings)
	require.Contains(testInstance, groupResult.Warnings[0], "no destination mapping")

	membershipCallsMutex.Lock()
	defer membershipCallsMutex.Unlock()
	require.Zero(testInstance, membershipCallCount)
}

// An already-present destination member is raised to the source access level
// only when the source grants strictly more, never lowered.
func TestGroupMemberAccessLevelIsRaisedButNeverLowered(testInstance *testing.T) {
	sourceServer := newJSONServer(testInstance, map[string]string{
		"GET /api/v4/groups": memberSourceGroupListingConstant,
		"GET /api/v4/groups/3/members": `[
			{"id":10,"username":"alice","access_level":40},
			{"id":11,"username":"bob","access_level":30}
		]`,
	})

	var upgradeMutex sync.Mutex
	upgradePayloads := map[string]float64{}
	destinationServer := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		switch {
		case request.Method == http.MethodPost && request.URL.Path == "/api/v4/groups":
			_, _ = responseWriter.Write([]byte(`{"id":51,"path":"platform"}`))
		case request.Method == http.MethodPost && request.URL.Path == "/api/v4/groups/51/members":
			responseWriter.WriteHeader(http.StatusConflict)
			_, _ = responseWriter.Write([]byte(`{"message":"Member already exists"}`))
		case request.Method == http.MethodGet && request.URL.Path == "/api/v4/groups/51/members/210":
			_, _ = responseWriter.Write([]byte(`{"id":210,"username":"alice","access_level":20}`))
		case request.Method == http.MethodGet && request.URL.Path == "/api/v4/groups/51/members/211":
			_, _ = responseWriter.Write([]byte(`{"id":211,"username":"bob","access_level":50}`))
		case request.Method == http.MethodPut:
			var updatePayload map[string]any
			require.NoError(testInstance, json.NewDecoder(request.Body).Decode(&updatePayload))
			upgradeMutex.Lock()
			upgradePayloads[request.URL.Path] = updatePayload["access_level"].(float64)
			upgradeMutex.Unlock()
			_, _ = responseWriter.Write([]byte(`{}`))
		default:
			responseWriter.WriteHeader(http.StatusNotFound)
			_, _ = responseWriter.Write([]byte(`{"message":"404 Not Found"}`))
		}
	}))
	testInstance.Cleanup(destinationServer.Close)

	groupStrategy, strategyError := migration.NewGroupStrategy(newStrategyDependencies(testInstance, sourceServer.URL, destinationServer.URL, false))
	require.NoError(testInstance, strategyError)

	identifierMap := migration.NewIdentifierMap()
	require.NoError(testInstance, identifierMap.Record(migration.EntityKindUser, 10, 210))
	require.NoError(testInstance, identifierMap.Record(migration.EntityKindUser, 11, 211))

	batchOutcome, runError := groupStrategy.Run(context.Background(), identifierMap, nil)
	require.NoError(testInstance, runError)
	require.Equal(testInstance, 1, batchOutcome.SucceededCount)
	require.Empty(testInstance, batchOutcome.Results[0].Warnings)

	upgradeMutex.Lock()
	defer upgradeMutex.Unlock()
	require.Len(testInstance, upgradePayloads, 1)
	require.Equal(testInstance, float64(40), upgradePayloads["/api/v4/groups/51/members/210"])
}
