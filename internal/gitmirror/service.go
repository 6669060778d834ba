package gitmirror

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/temirov/glmigrate/internal/execshell"
)

const (
	executorRequiredMessageConstant    = "shell executor must be provided"
	workspaceRequiredMessageConstant   = "workspace directory must be provided"
	repositoryLockSuffixConstant       = ".lock"
	workspaceLockRetryIntervalConstant = 100 * time.Millisecond
	workspaceDirectoryPermissions      = 0o755
	mirrorDirectorySuffixConstant      = ".git"
	pathSeparatorReplacementConstant   = "__"
	workspacePreparationErrorTemplate  = "unable to prepare workspace %s: %w"
	workspaceLockErrorTemplateConstant = "unable to lock workspace: %w"
	cloneSubcommandConstant            = "clone"
	pushSubcommandConstant             = "push"
	fetchSubcommandConstant            = "fetch"
	lfsFetchFailedWarningConstant      = "LFS fetch failed, continuing with git objects only"
	mirrorFlagConstant                 = "--mirror"
	allFlagConstant                    = "--all"
	mirrorStartedMessageConstant       = "Mirroring repository"
	mirrorCompletedMessageConstant     = "Repository mirrored"
	workspaceCleanupFailedMessageConst = "Workspace cleanup failed"
	logFieldRepositoryConstant         = "repository"
	logFieldWorkspaceConstant          = "workspace"
)

var (
	errExecutorRequired  = errors.New(executorRequiredMessageConstant)
	errWorkspaceRequired = errors.New(workspaceRequiredMessageConstant)
)

// ServiceConfiguration controls where and how repositories are mirrored.
type ServiceConfiguration struct {
	WorkspaceDirectory string
	LFSEnabled         bool
	CleanupWorkspace   bool
	CommandTimeout     time.Duration
}

// Service mirrors repositories through an on-disk workspace. Each repository
// directory is guarded by its own file lock so concurrent runs of the tool
// cannot interleave clones of the same repository while distinct repositories
// still mirror in parallel.
type Service struct {
	logger        *zap.Logger
	executor      *execshell.ShellExecutor
	configuration ServiceConfiguration
}

// NewService constructs a mirror service.
func NewService(logger *zap.Logger, executor *execshell.ShellExecutor, configuration ServiceConfiguration) (*Service, error) {
	if executor == nil {
		return nil, errExecutorRequired
	}
	if len(strings.TrimSpace(configuration.WorkspaceDirectory)) == 0 {
		return nil, errWorkspaceRequired
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{logger: logger, executor: executor, configuration: configuration}, nil
}

// Mirror clones the source repository with full refs, then pushes everything
// to the destination. Large-file objects are fetched and pushed separately
// when enabled. The returned error carries the underlying tool's error output
// so callers can match it against collision patterns.
func (service *Service) Mirror(executionContext context.Context, sourceCloneURL string, destinationCloneURL string, repositorySlug string) error {
	workspacePath := filepath.Join(service.configuration.WorkspaceDirectory, sanitizeSlug(repositorySlug)+mirrorDirectorySuffixConstant)

	service.logger.Info(
		mirrorStartedMessageConstant,
		zap.String(logFieldRepositoryConstant, repositorySlug),
		zap.String(logFieldWorkspaceConstant, workspacePath),
	)

	if preparationError := os.MkdirAll(service.configuration.WorkspaceDirectory, workspaceDirectoryPermissions); preparationError != nil {
		return fmt.Errorf(workspacePreparationErrorTemplate, workspacePath, preparationError)
	}

	repositoryLock := flock.New(service.lockPath(repositorySlug))
	lockAcquired, lockError := repositoryLock.TryLockContext(executionContext, workspaceLockRetryIntervalConstant)
	if lockError != nil {
		return fmt.Errorf(workspaceLockErrorTemplateConstant, lockError)
	}
	if !lockAcquired {
		return fmt.Errorf(workspaceLockErrorTemplateConstant, context.Canceled)
	}
	defer func() { _ = repositoryLock.Unlock() }()

	if removalError := os.RemoveAll(workspacePath); removalError != nil {
		return fmt.Errorf(workspacePreparationErrorTemplate, workspacePath, removalError)
	}
	if service.configuration.CleanupWorkspace {
		defer func() {
			if cleanupError := os.RemoveAll(workspacePath); cleanupError != nil {
				service.logger.Warn(workspaceCleanupFailedMessageConst, zap.Error(cleanupError))
			}
		}()
	}

	if cloneError := service.runGit(executionContext, "", cloneSubcommandConstant, mirrorFlagConstant, sourceCloneURL, workspacePath); cloneError != nil {
		return cloneError
	}

	if service.configuration.LFSEnabled {
		if lfsFetchError := service.runGitLFS(executionContext, workspacePath, fetchSubcommandConstant, allFlagConstant); lfsFetchError != nil {
			service.logger.Warn(lfsFetchFailedWarningConstant, zap.Error(lfsFetchError))
		}
	}

	if pushError := service.runGit(executionContext, workspacePath, pushSubcommandConstant, mirrorFlagConstant, destinationCloneURL); pushError != nil {
		return pushError
	}

	if service.configuration.LFSEnabled {
		if lfsPushError := service.runGitLFS(executionContext, workspacePath, pushSubcommandConstant, allFlagConstant, destinationCloneURL); lfsPushError != nil {
			return lfsPushError
		}
	}

	service.logger.Info(mirrorCompletedMessageConstant, zap.String(logFieldRepositoryConstant, repositorySlug))
	return nil
}

func (service *Service) runGit(executionContext context.Context, workingDirectory string, arguments ...string) error {
	commandContext, cancelFunction := service.commandContext(executionContext)
	defer cancelFunction()

	_, executionError := service.executor.ExecuteGit(commandContext, execshell.CommandDetails{
		Arguments:        arguments,
		WorkingDirectory: workingDirectory,
	})
	return executionError
}

func (service *Service) runGitLFS(executionContext context.Context, workingDirectory string, arguments ...string) error {
	commandContext, cancelFunction := service.commandContext(executionContext)
	defer cancelFunction()

	_, executionError := service.executor.ExecuteGitLFS(commandContext, execshell.CommandDetails{
		Arguments:        arguments,
		WorkingDirectory: workingDirectory,
	})
	return executionError
}

func (service *Service) commandContext(executionContext context.Context) (context.Context, context.CancelFunc) {
	if service.configuration.CommandTimeout > 0 {
		return context.WithTimeout(executionContext, service.configuration.CommandTimeout)
	}
	return executionContext, func() {}
}

func (service *Service) lockPath(repositorySlug string) string {
	return filepath.Join(service.configuration.WorkspaceDirectory, sanitizeSlug(repositorySlug)+repositoryLockSuffixConstant)
}

func sanitizeSlug(repositorySlug string) string {
	return strings.ReplaceAll(repositorySlug, "/", pathSeparatorReplacementConstant)
}
