package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/glmigrate/internal/config"
	"github.com/temirov/glmigrate/internal/execshell"
	"github.com/temirov/glmigrate/internal/gitlab"
	"github.com/temirov/glmigrate/internal/gitmirror"
	"github.com/temirov/glmigrate/internal/migration"
)

const (
	migrateCommandUseConstant             = "migrate"
	migrateCommandShortConstant           = "Run the migration from the source instance to the destination instance"
	migrateCommandLongConstant            = "migrate copies users, groups, projects, and repository contents in dependency order, honoring the configured entity toggles and concurrency limits."
	planCommandUseConstant                = "plan"
	planCommandShortConstant              = "Preview the migration without mutating the destination instance"
	planCommandLongConstant               = "plan runs the full migration pipeline in dry-run mode: every read happens, every destination mutation is skipped, and the report shows what migrate would do."
	migrateUnexpectedArgumentsMessage     = "migrate does not accept positional arguments"
	migrateConfigurationMissingMessage    = "migration configuration unavailable"
	migrateExecutionErrorTemplateConstant = "migration failed: %w"
	migrateAssemblyErrorTemplateConstant  = "unable to assemble migration engine: %w"
	flagDryRunNameConstant                = "dry-run"
	flagDryRunDescriptionConstant         = "Preview the migration without mutating the destination instance"
	sourceInstanceLabelConstant           = "source"
	destinationInstanceLabelConstant      = "destination"
	defaultWorkspaceDirectoryNameConstant = "glmigrate"
	stopRequestedMessageConstant          = "interrupt received, stopping at the next phase boundary"
	cancellationRequestedMessageConstant  = "second interrupt received, cancelling in-flight work"
	migrationStartingMessageConstant      = "migration starting"
	migrationFinishedMessageConstant      = "migration finished"
	logFieldDryRunConstant                = "dry_run"
	logFieldSucceededConstant             = "succeeded"
	logFieldFailedConstant                = "failed"
	logFieldSkippedConstant               = "skipped"
	logFieldAbortedConstant               = "aborted"
	reportHeaderTemplateConstant          = "migration report (started %s, finished %s)\n"
	reportAbortedLineConstant             = "run aborted before all phases completed\n"
	reportSummaryLineTemplateConstant     = "%-12s succeeded=%-5d failed=%-5d skipped=%-5d\n"
	reportTotalsLineTemplateConstant      = "%-12s succeeded=%-5d failed=%-5d skipped=%-5d\n"
	reportTotalsLabelConstant             = "total"
	reportFailureLineTemplateConstant     = "failed  %s %s: %s\n"
	reportSkipLineTemplateConstant        = "skipped %s %s: %s\n"
	reportWarningLineTemplateConstant     = "warning %s %s: %s\n"
	reportTimestampLayoutConstant         = "2006-01-02 15:04:05"
)

var errMigrateUnexpectedArguments = errors.New(migrateUnexpectedArgumentsMessage)

// MigrateCommandBuilder assembles the Cobra command running a full migration.
// PlanMode builds the same pipeline under the plan name with dry-run forced on.
type MigrateCommandBuilder struct {
	LoggerProvider        LoggerProvider
	ConfigurationProvider func() config.Configuration
	MetricsRegisterer     prometheus.Registerer
	PlanMode              bool
}

// Build constructs the migrate or plan command.
func (builder *MigrateCommandBuilder) Build() (*cobra.Command, error) {
	commandUse := migrateCommandUseConstant
	commandShort := migrateCommandShortConstant
	commandLong := migrateCommandLongConstant
	if builder.PlanMode {
		commandUse = planCommandUseConstant
		commandShort = planCommandShortConstant
		commandLong = planCommandLongConstant
	}

	command := &cobra.Command{
		Use:   commandUse,
		Short: commandShort,
		Long:  commandLong,
		RunE:  builder.run,
	}

	if !builder.PlanMode {
		command.Flags().Bool(flagDryRunNameConstant, false, flagDryRunDescriptionConstant)
	}

	return command, nil
}

func (builder *MigrateCommandBuilder) run(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return errMigrateUnexpectedArguments
	}
	if builder.ConfigurationProvider == nil {
		return errors.New(migrateConfigurationMissingMessage)
	}

	configuration := builder.ConfigurationProvider()
	if builder.PlanMode {
		configuration.Migration.DryRun = true
	} else if dryRunValue, _ := command.Flags().GetBool(flagDryRunNameConstant); dryRunValue {
		configuration.Migration.DryRun = true
	}

	if validationError := configuration.Validate(); validationError != nil {
		return validationError
	}

	logger := builder.resolveLogger()

	engine, assemblyError := builder.assembleEngine(logger, configuration)
	if assemblyError != nil {
		return fmt.Errorf(migrateAssemblyErrorTemplateConstant, assemblyError)
	}

	executionContext, cancelExecution := context.WithCancel(command.Context())
	defer cancelExecution()

	signalChannel := make(chan os.Signal, 1)
	signal.Notify(signalChannel, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signalChannel)
	go func() {
		interruptCount := 0
		for range signalChannel {
			interruptCount++
			if interruptCount == 1 {
				logger.Warn(stopRequestedMessageConstant)
				engine.RequestStop()
				continue
			}
			logger.Warn(cancellationRequestedMessageConstant)
			cancelExecution()
			return
		}
	}()

	logger.Info(
		migrationStartingMessageConstant,
		zap.Bool(logFieldDryRunConstant, configuration.Migration.DryRun),
	)

	migrationReport, executionError := engine.Execute(executionContext)
	if migrationReport != nil {
		renderReport(command.OutOrStdout(), migrationReport)
		logger.Info(
			migrationFinishedMessageConstant,
			zap.Int(logFieldSucceededConstant, migrationReport.TotalSucceeded()),
			zap.Int(logFieldFailedConstant, migrationReport.TotalFailed()),
			zap.Int(logFieldSkippedConstant, migrationReport.TotalSkipped()),
			zap.Bool(logFieldAbortedConstant, migrationReport.Aborted),
		)
	}
	if executionError != nil {
		return fmt.Errorf(migrateExecutionErrorTemplateConstant, executionError)
	}

	return nil
}

func (builder *MigrateCommandBuilder) assembleEngine(logger *zap.Logger, configuration config.Configuration) (*migration.Engine, error) {
	metricsRegisterer := builder.MetricsRegisterer
	if metricsRegisterer == nil {
		metricsRegisterer = prometheus.NewRegistry()
	}
	metrics := migration.NewMetrics(metricsRegisterer)

	sourceClient, sourceClientError := buildInstanceClient(
		logger,
		metrics,
		configuration.Source,
		configuration.Migration.CircuitBreaker,
		sourceInstanceLabelConstant,
		false,
	)
	if sourceClientError != nil {
		return nil, sourceClientError
	}

	destinationClient, destinationClientError := buildInstanceClient(
		logger,
		metrics,
		configuration.Destination,
		configuration.Migration.CircuitBreaker,
		destinationInstanceLabelConstant,
		configuration.Migration.DryRun,
	)
	if destinationClientError != nil {
		return nil, destinationClientError
	}

	conflictResolver, resolverError := migration.NewConflictResolver(migration.DefaultCollisionRules())
	if resolverError != nil {
		return nil, resolverError
	}

	retryPolicy := gitlab.BackoffPolicy{
		MaxAttempts: configuration.Migration.Retry.MaxAttempts,
		BaseDelay:   configuration.Migration.Retry.BaseDelay(),
		Multiplier:  configuration.Migration.Retry.Multiplier,
	}

	strategyDependencies := func(concurrencyLimit int) migration.StrategyDependencies {
		return migration.StrategyDependencies{
			SourceClient:      sourceClient,
			DestinationClient: destinationClient,
			Logger:            logger,
			Resolver:          conflictResolver,
			RetryPolicy:       retryPolicy,
			BatchSettings:     migration.BatchSettings{Concurrency: concurrencyLimit},
		}
	}

	strategySet := migration.StrategySet{
		Users:        migration.NewDisabledPhaseStrategy(migration.EntityKindUser),
		Groups:       migration.NewDisabledPhaseStrategy(migration.EntityKindGroup),
		Projects:     migration.NewDisabledPhaseStrategy(migration.EntityKindProject),
		Repositories: migration.NewDisabledPhaseStrategy(migration.EntityKindRepository),
	}

	if configuration.Migration.Users {
		userStrategy, userStrategyError := migration.NewUserStrategy(strategyDependencies(configuration.Migration.UserConcurrency))
		if userStrategyError != nil {
			return nil, userStrategyError
		}
		strategySet.Users = userStrategy
	}

	if configuration.Migration.Groups {
		groupStrategy, groupStrategyError := migration.NewGroupStrategy(strategyDependencies(configuration.Migration.GroupConcurrency))
		if groupStrategyError != nil {
			return nil, groupStrategyError
		}
		strategySet.Groups = groupStrategy
	}

	if configuration.Migration.Projects {
		projectStrategy, projectStrategyError := migration.NewProjectStrategy(strategyDependencies(configuration.Migration.ProjectConcurrency))
		if projectStrategyError != nil {
			return nil, projectStrategyError
		}
		strategySet.Projects = projectStrategy
	}

	if configuration.Migration.Repositories {
		repositoryMirror, mirrorError := buildRepositoryMirror(logger, configuration.Git)
		if mirrorError != nil {
			return nil, mirrorError
		}

		repositoryStrategy, repositoryStrategyError := migration.NewRepositoryStrategy(
			strategyDependencies(configuration.Migration.RepositoryConcurrency),
			migration.RepositoryStrategyConfiguration{
				SourceAccessToken:      configuration.Source.Token,
				DestinationAccessToken: configuration.Destination.Token,
			},
			repositoryMirror,
		)
		if repositoryStrategyError != nil {
			return nil, repositoryStrategyError
		}
		strategySet.Repositories = repositoryStrategy
	}

	return migration.NewEngine(
		migration.EngineDependencies{
			SourceClient:      sourceClient,
			DestinationClient: destinationClient,
			Logger:            logger,
			Metrics:           metrics,
		},
		strategySet,
	)
}

func buildInstanceClient(
	logger *zap.Logger,
	metrics *migration.Metrics,
	instanceConfiguration config.InstanceConfiguration,
	breakerConfiguration config.CircuitBreakerConfiguration,
	instanceLabel string,
	dryRunEnabled bool,
) (*gitlab.Client, error) {
	rateLimiter, limiterError := gitlab.NewRateLimiter(instanceConfiguration.RequestsPerSecond)
	if limiterError != nil {
		return nil, limiterError
	}

	circuitBreaker, breakerError := gitlab.NewCircuitBreaker(
		breakerConfiguration.FailureThreshold,
		breakerConfiguration.ResetTimeout(),
	)
	if breakerError != nil {
		return nil, breakerError
	}
	circuitBreaker.OnStateTransition(metrics.BreakerTransitionHook(instanceLabel))

	return gitlab.NewClient(
		gitlab.ClientConfiguration{
			BaseURL:       instanceConfiguration.URL,
			Token:         instanceConfiguration.Token,
			Timeout:       instanceConfiguration.Timeout(),
			InstanceLabel: instanceLabel,
			DryRun:        dryRunEnabled,
		},
		gitlab.ClientDependencies{
			Logger:          logger,
			HTTPClient:      &http.Client{Timeout: instanceConfiguration.Timeout()},
			RateLimiter:     rateLimiter,
			CircuitBreaker:  circuitBreaker,
			RequestObserver: metrics.RequestObserver(),
		},
	)
}

func buildRepositoryMirror(logger *zap.Logger, gitConfiguration config.GitConfiguration) (migration.RepositoryMirror, error) {
	shellExecutor, executorError := execshell.NewShellExecutor(logger, execshell.NewOSCommandRunner())
	if executorError != nil {
		return nil, executorError
	}

	workspaceDirectory := gitConfiguration.WorkspaceDirectory
	if len(workspaceDirectory) == 0 {
		workspaceDirectory = filepath.Join(os.TempDir(), defaultWorkspaceDirectoryNameConstant)
	}

	return gitmirror.NewService(logger, shellExecutor, gitmirror.ServiceConfiguration{
		WorkspaceDirectory: workspaceDirectory,
		LFSEnabled:         gitConfiguration.LFSEnabled,
		CleanupWorkspace:   gitConfiguration.CleanupWorkspace,
		CommandTimeout:     gitConfiguration.CommandTimeout(),
	})
}

func renderReport(outputWriter io.Writer, migrationReport *migration.Report) {
	fmt.Fprintf(
		outputWriter,
		reportHeaderTemplateConstant,
		migrationReport.StartedAt.Format(reportTimestampLayoutConstant),
		migrationReport.FinishedAt.Format(reportTimestampLayoutConstant),
	)
	if migrationReport.Aborted {
		fmt.Fprint(outputWriter, reportAbortedLineConstant)
	}

	for _, kindSummary := range migrationReport.Summaries {
		fmt.Fprintf(
			outputWriter,
			reportSummaryLineTemplateConstant,
			string(kindSummary.EntityKind),
			kindSummary.Succeeded,
			kindSummary.Failed,
			kindSummary.Skipped,
		)
	}
	fmt.Fprintf(
		outputWriter,
		reportTotalsLineTemplateConstant,
		reportTotalsLabelConstant,
		migrationReport.TotalSucceeded(),
		migrationReport.TotalFailed(),
		migrationReport.TotalSkipped(),
	)

	for _, entityResult := range migrationReport.Results {
		switch entityResult.Status {
		case migration.ResultStatusFailed:
			fmt.Fprintf(outputWriter, reportFailureLineTemplateConstant, string(entityResult.EntityKind), entityResult.SourcePath, entityResult.Reason)
		case migration.ResultStatusSkipped:
			fmt.Fprintf(outputWriter, reportSkipLineTemplateConstant, string(entityResult.EntityKind), entityResult.SourcePath, entityResult.Reason)
		}
		for _, warningText := range entityResult.Warnings {
			fmt.Fprintf(outputWriter, reportWarningLineTemplateConstant, string(entityResult.EntityKind), entityResult.SourcePath, warningText)
		}
	}
}

func (builder *MigrateCommandBuilder) resolveLogger() *zap.Logger {
	if builder.LoggerProvider == nil {
		return zap.NewNop()
	}

	logger := builder.LoggerProvider()
	if logger == nil {
		return zap.NewNop()
	}

	return logger
}
