package execshell_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/glmigrate/internal/execshell"
)

type recordingCommandRunner struct {
	recordedCommands []execshell.ShellCommand
	scriptedResult   execshell.ExecutionResult
	scriptedError    error
}

func (runner *recordingCommandRunner) Run(executionContext context.Context, command execshell.ShellCommand) (execshell.ExecutionResult, error) {
	runner.recordedCommands = append(runner.recordedCommands, command)
	return runner.scriptedResult, runner.scriptedError
}

func TestNewShellExecutorRequiresRunner(testInstance *testing.T) {
	executorInstance, constructionError := execshell.NewShellExecutor(nil, nil)
	require.Error(testInstance, constructionError)
	require.Nil(testInstance, executorInstance)
}

func TestShellExecutorRunsGitCommands(testInstance *testing.T) {
	runnerDouble := &recordingCommandRunner{scriptedResult: execshell.ExecutionResult{StandardOutput: "ok"}}
	executorInstance, constructionError := execshell.NewShellExecutor(nil, runnerDouble)
	require.NoError(testInstance, constructionError)

	executionResult, executionError := executorInstance.ExecuteGit(context.Background(), execshell.CommandDetails{
		Arguments:        []string{"clone", "--mirror", "https://example.com/repo.git"},
		WorkingDirectory: "/tmp/workspace",
	})

	require.NoError(testInstance, executionError)
	require.Equal(testInstance, "ok", executionResult.StandardOutput)
	require.Len(testInstance, runnerDouble.recordedCommands, 1)
	require.Equal(testInstance, execshell.CommandGit, runnerDouble.recordedCommands[0].Name)
	require.Equal(testInstance, "/tmp/workspace", runnerDouble.recordedCommands[0].Details.WorkingDirectory)
}

func TestShellExecutorWrapsNonZeroExit(testInstance *testing.T) {
	runnerDouble := &recordingCommandRunner{
		scriptedResult: execshell.ExecutionResult{ExitCode: 128, StandardError: "fatal: remote error"},
	}
	executorInstance, constructionError := execshell.NewShellExecutor(nil, runnerDouble)
	require.NoError(testInstance, constructionError)

	_, executionError := executorInstance.ExecuteGit(context.Background(), execshell.CommandDetails{Arguments: []string{"push", "--mirror"}})

	var commandFailedError execshell.CommandFailedError
	require.ErrorAs(testInstance, executionError, &commandFailedError)
	require.Equal(testInstance, 128, commandFailedError.Result.ExitCode)
	require.Contains(testInstance, commandFailedError.Error(), "fatal: remote error")
}

func TestShellExecutorWrapsStartFailure(testInstance *testing.T) {
	startFailure := errors.New("executable file not found")
	runnerDouble := &recordingCommandRunner{scriptedError: startFailure}
	executorInstance, constructionError := execshell.NewShellExecutor(nil, runnerDouble)
	require.NoError(testInstance, constructionError)

	_, executionError := executorInstance.ExecuteGitLFS(context.Background(), execshell.CommandDetails{Arguments: []string{"fetch", "--all"}})

	var commandFailedError execshell.CommandFailedError
	require.ErrorAs(testInstance, executionError, &commandFailedError)
	require.ErrorIs(testInstance, executionError, startFailure)
	require.Equal(testInstance, execshell.CommandGitLFS, runnerDouble.recordedCommands[0].Name)
}
