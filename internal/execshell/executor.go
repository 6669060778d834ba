package execshell

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// CommandName identifies the executable being run.
type CommandName string

// Supported executables.
const (
	CommandGit    CommandName = "git"
	CommandGitLFS CommandName = "git-lfs"
)

const (
	commandRunnerRequiredMessageConstant = "command runner must be provided"
	commandFailedErrorTemplateConstant   = "%s %s exited with code %d: %s"
	commandStartFailedTemplateConstant   = "%s %s could not start: %v"
	commandStartedMessageConstant        = "Executing command"
	commandCompletedMessageConstant      = "Command completed"
	commandFailedMessageConstant         = "Command failed"
	logFieldCommandConstant              = "command"
	logFieldArgumentsConstant            = "arguments"
	logFieldWorkingDirectoryConstant     = "working_directory"
	logFieldExitCodeConstant             = "exit_code"
	argumentsJoinSeparatorConstant       = " "
)

var errCommandRunnerRequired = errors.New(commandRunnerRequiredMessageConstant)

// CommandDetails carries the invocation parameters for one command.
type CommandDetails struct {
	Arguments        []string
	WorkingDirectory string
}

// ShellCommand pairs an executable with its invocation details.
type ShellCommand struct {
	Name    CommandName
	Details CommandDetails
}

// ExecutionResult captures the observable outcome of a completed command.
type ExecutionResult struct {
	StandardOutput string
	StandardError  string
	ExitCode       int
}

// CommandFailedError reports a command that ran but exited unsuccessfully.
// The standard error output is part of the message because callers pattern
// match it against collision rules.
type CommandFailedError struct {
	Command ShellCommand
	Result  ExecutionResult
	Cause   error
}

// Error describes the failed command.
func (commandFailedError CommandFailedError) Error() string {
	if commandFailedError.Cause != nil {
		return fmt.Sprintf(
			commandStartFailedTemplateConstant,
			commandFailedError.Command.Name,
			strings.Join(commandFailedError.Command.Details.Arguments, argumentsJoinSeparatorConstant),
			commandFailedError.Cause,
		)
	}
	return fmt.Sprintf(
		commandFailedErrorTemplateConstant,
		commandFailedError.Command.Name,
		strings.Join(commandFailedError.Command.Details.Arguments, argumentsJoinSeparatorConstant),
		commandFailedError.Result.ExitCode,
		strings.TrimSpace(commandFailedError.Result.StandardError),
	)
}

// Unwrap exposes the start failure, when present.
func (commandFailedError CommandFailedError) Unwrap() error {
	return commandFailedError.Cause
}

// CommandRunner executes a shell command and reports its result.
type CommandRunner interface {
	Run(executionContext context.Context, command ShellCommand) (ExecutionResult, error)
}

// ShellExecutor runs git and git-lfs commands through a CommandRunner with
// structured logging around every invocation.
type ShellExecutor struct {
	logger        *zap.Logger
	commandRunner CommandRunner
}

// NewShellExecutor constructs an executor over the supplied runner.
func NewShellExecutor(logger *zap.Logger, commandRunner CommandRunner) (*ShellExecutor, error) {
	if commandRunner == nil {
		return nil, errCommandRunnerRequired
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ShellExecutor{logger: logger, commandRunner: commandRunner}, nil
}

// ExecuteGit runs a git command, returning CommandFailedError on a non-zero exit.
func (executor *ShellExecutor) ExecuteGit(executionContext context.Context, details CommandDetails) (ExecutionResult, error) {
	return executor.execute(executionContext, ShellCommand{Name: CommandGit, Details: details})
}

// ExecuteGitLFS runs a git-lfs command, returning CommandFailedError on a non-zero exit.
func (executor *ShellExecutor) ExecuteGitLFS(executionContext context.Context, details CommandDetails) (ExecutionResult, error) {
	return executor.execute(executionContext, ShellCommand{Name: CommandGitLFS, Details: details})
}

func (executor *ShellExecutor) execute(executionContext context.Context, command ShellCommand) (ExecutionResult, error) {
	executor.logger.Debug(
		commandStartedMessageConstant,
		zap.String(logFieldCommandConstant, string(command.Name)),
		zap.Strings(logFieldArgumentsConstant, command.Details.Arguments),
		zap.String(logFieldWorkingDirectoryConstant, command.Details.WorkingDirectory),
	)

	executionResult, runError := executor.commandRunner.Run(executionContext, command)
	if runError != nil {
		executor.logger.Error(
			commandFailedMessageConstant,
			zap.String(logFieldCommandConstant, string(command.Name)),
			zap.Error(runError),
		)
		return ExecutionResult{}, CommandFailedError{Command: command, Cause: runError}
	}

	if executionResult.ExitCode != 0 {
		executor.logger.Error(
			commandFailedMessageConstant,
			zap.String(logFieldCommandConstant, string(command.Name)),
			zap.Int(logFieldExitCodeConstant, executionResult.ExitCode),
		)
		return executionResult, CommandFailedError{Command: command, Result: executionResult}
	}

	executor.logger.Debug(
		commandCompletedMessageConstant,
		zap.String(logFieldCommandConstant, string(command.Name)),
		zap.Int(logFieldExitCodeConstant, executionResult.ExitCode),
	)
	return executionResult, nil
}
