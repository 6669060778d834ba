package cli

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewApplicationRegistersCommands(testInstance *testing.T) {
	application := NewApplication()
	require.NotNil(testInstance, application.rootCommand)

	registeredNames := map[string]bool{}
	for _, registeredCommand := range application.rootCommand.Commands() {
		registeredNames[registeredCommand.Name()] = true
	}

	expectedCommandNames := []string{"migrate", "plan", "init-config"}
	for _, expectedName := range expectedCommandNames {
		require.True(testInstance, registeredNames[expectedName], expectedName)
	}
}

func TestMigrationConfigurationProjection(testInstance *testing.T) {
	applicationConfiguration := ApplicationConfiguration{}
	applicationConfiguration.Source.URL = "https://source.example.com"
	applicationConfiguration.Destination.URL = "https://destination.example.com"
	applicationConfiguration.Migration.Users = true
	applicationConfiguration.Git.LFSEnabled = true

	projectedConfiguration := applicationConfiguration.migrationConfiguration()
	require.Equal(testInstance, "https://source.example.com", projectedConfiguration.Source.URL)
	require.Equal(testInstance, "https://destination.example.com", projectedConfiguration.Destination.URL)
	require.True(testInstance, projectedConfiguration.Migration.Users)
	require.True(testInstance, projectedConfiguration.Git.LFSEnabled)
}
