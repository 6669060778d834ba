package execshell_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/glmigrate/internal/execshell"
)

const (
	shellCommandNameConstant    = execshell.CommandName("sh")
	shellInlineFlagConstant     = "-c"
	failingScriptConstant       = "echo diagnostics >&2; exit 3"
	succeedingScriptConstant    = "echo ready; pwd"
	expectedFailureExitConstant = 3
)

func TestOSCommandRunnerCapturesOutputAndExitCode(testInstance *testing.T) {
	runnerInstance := execshell.NewOSCommandRunner()

	failingResult, failingError := runnerInstance.Run(context.Background(), execshell.ShellCommand{
		Name:    shellCommandNameConstant,
		Details: execshell.CommandDetails{Arguments: []string{shellInlineFlagConstant, failingScriptConstant}},
	})
	require.NoError(testInstance, failingError)
	require.Equal(testInstance, expectedFailureExitConstant, failingResult.ExitCode)
	require.Contains(testInstance, failingResult.StandardError, "diagnostics")

	workingDirectory := testInstance.TempDir()
	succeedingResult, succeedingError := runnerInstance.Run(context.Background(), execshell.ShellCommand{
		Name: shellCommandNameConstant,
		Details: execshell.CommandDetails{
			Arguments:        []string{shellInlineFlagConstant, succeedingScriptConstant},
			WorkingDirectory: workingDirectory,
		},
	})
	require.NoError(testInstance, succeedingError)
	require.Equal(testInstance, 0, succeedingResult.ExitCode)
	require.Contains(testInstance, succeedingResult.StandardOutput, "ready")
}
