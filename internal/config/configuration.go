package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	configurationValidationErrorTemplateConstant = "invalid configuration: %w"

	defaultTimeoutSecondsConstant        = 30
	defaultRequestsPerSecondConstant     = 10.0
	defaultRetryMaxAttemptsConstant      = 3
	defaultRetryBaseDelayMillisConstant  = 500
	defaultRetryMultiplierConstant       = 2.0
	defaultFailureThresholdConstant      = 5
	defaultResetTimeoutSecondsConstant   = 60
	defaultUserConcurrencyConstant       = 8
	defaultGroupConcurrencyConstant      = 4
	defaultProjectConcurrencyConstant    = 4
	defaultRepositoryConcurrencyConstant = 2
	defaultGitCommandTimeoutConstant     = 3600
)

// InstanceConfiguration describes one GitLab instance endpoint and its client budget.
type InstanceConfiguration struct {
	URL               string  `mapstructure:"url" yaml:"url" validate:"required,url"`
	Token             string  `mapstructure:"token" yaml:"token" validate:"required"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds" yaml:"timeout_seconds" validate:"gt=0"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second" validate:"gt=0"`
}

// RetryConfiguration describes the shared exponential backoff policy.
type RetryConfiguration struct {
	MaxAttempts     int     `mapstructure:"max_attempts" yaml:"max_attempts" validate:"gt=0"`
	BaseDelayMillis int     `mapstructure:"base_delay_ms" yaml:"base_delay_ms" validate:"gt=0"`
	Multiplier      float64 `mapstructure:"multiplier" yaml:"multiplier" validate:"gte=1"`
}

// CircuitBreakerConfiguration describes per-instance failure gating.
type CircuitBreakerConfiguration struct {
	FailureThreshold    int `mapstructure:"failure_threshold" yaml:"failure_threshold" validate:"gt=0"`
	ResetTimeoutSeconds int `mapstructure:"reset_timeout_seconds" yaml:"reset_timeout_seconds" validate:"gt=0"`
}

// MigrationConfiguration toggles entity kinds and sizes the per-kind worker pools.
type MigrationConfiguration struct {
	Users                 bool                        `mapstructure:"users" yaml:"users"`
	Groups                bool                        `mapstructure:"groups" yaml:"groups"`
	Projects              bool                        `mapstructure:"projects" yaml:"projects"`
	Repositories          bool                        `mapstructure:"repositories" yaml:"repositories"`
	DryRun                bool                        `mapstructure:"dry_run" yaml:"dry_run"`
	UserConcurrency       int                         `mapstructure:"user_concurrency" yaml:"user_concurrency" validate:"gt=0"`
	GroupConcurrency      int                         `mapstructure:"group_concurrency" yaml:"group_concurrency" validate:"gt=0"`
	ProjectConcurrency    int                         `mapstructure:"project_concurrency" yaml:"project_concurrency" validate:"gt=0"`
	RepositoryConcurrency int                         `mapstructure:"repository_concurrency" yaml:"repository_concurrency" validate:"gt=0"`
	Retry                 RetryConfiguration          `mapstructure:"retry" yaml:"retry"`
	CircuitBreaker        CircuitBreakerConfiguration `mapstructure:"circuit_breaker" yaml:"circuit_breaker"`
}

// GitConfiguration controls the repository mirror transport.
type GitConfiguration struct {
	WorkspaceDirectory    string `mapstructure:"workspace_dir" yaml:"workspace_dir"`
	LFSEnabled            bool   `mapstructure:"lfs_enabled" yaml:"lfs_enabled"`
	CleanupWorkspace      bool   `mapstructure:"cleanup_workspace" yaml:"cleanup_workspace"`
	CommandTimeoutSeconds int    `mapstructure:"command_timeout_seconds" yaml:"command_timeout_seconds" validate:"gt=0"`
}

// Configuration aggregates every setting consumed by the migration engine.
type Configuration struct {
	Source      InstanceConfiguration  `mapstructure:"source" yaml:"source" validate:"required"`
	Destination InstanceConfiguration  `mapstructure:"destination" yaml:"destination" validate:"required"`
	Migration   MigrationConfiguration `mapstructure:"migration" yaml:"migration"`
	Git         GitConfiguration       `mapstructure:"git" yaml:"git"`
}

// Timeout converts the configured request timeout into a duration.
func (instanceConfiguration InstanceConfiguration) Timeout() time.Duration {
	return time.Duration(instanceConfiguration.TimeoutSeconds) * time.Second
}

// BaseDelay converts the configured backoff base delay into a duration.
func (retryConfiguration RetryConfiguration) BaseDelay() time.Duration {
	return time.Duration(retryConfiguration.BaseDelayMillis) * time.Millisecond
}

// ResetTimeout converts the configured breaker reset window into a duration.
func (breakerConfiguration CircuitBreakerConfiguration) ResetTimeout() time.Duration {
	return time.Duration(breakerConfiguration.ResetTimeoutSeconds) * time.Second
}

// CommandTimeout converts the configured git command timeout into a duration.
func (gitConfiguration GitConfiguration) CommandTimeout() time.Duration {
	return time.Duration(gitConfiguration.CommandTimeoutSeconds) * time.Second
}

// DefaultConfigurationValues exposes defaults merged before file and environment sources.
func DefaultConfigurationValues() map[string]any {
	return map[string]any{
		"source.timeout_seconds":                          defaultTimeoutSecondsConstant,
		"source.requests_per_second":                      defaultRequestsPerSecondConstant,
		"destination.timeout_seconds":                     defaultTimeoutSecondsConstant,
		"destination.requests_per_second":                 defaultRequestsPerSecondConstant,
		"migration.users":                                 true,
		"migration.groups":                                true,
		"migration.projects":                              true,
		"migration.repositories":                          true,
		"migration.user_concurrency":                      defaultUserConcurrencyConstant,
		"migration.group_concurrency":                     defaultGroupConcurrencyConstant,
		"migration.project_concurrency":                   defaultProjectConcurrencyConstant,
		"migration.repository_concurrency":                defaultRepositoryConcurrencyConstant,
		"migration.retry.max_attempts":                    defaultRetryMaxAttemptsConstant,
		"migration.retry.base_delay_ms":                   defaultRetryBaseDelayMillisConstant,
		"migration.retry.multiplier":                      defaultRetryMultiplierConstant,
		"migration.circuit_breaker.failure_threshold":     defaultFailureThresholdConstant,
		"migration.circuit_breaker.reset_timeout_seconds": defaultResetTimeoutSecondsConstant,
		"git.lfs_enabled":                                 true,
		"git.cleanup_workspace":                           true,
		"git.command_timeout_seconds":                     defaultGitCommandTimeoutConstant,
	}
}

// Validate checks the configuration against the declared constraints.
func (configuration Configuration) Validate() error {
	validatorInstance := validator.New(validator.WithRequiredStructEnabled())
	if validationError := validatorInstance.Struct(configuration); validationError != nil {
		return fmt.Errorf(configurationValidationErrorTemplateConstant, validationError)
	}
	return nil
}
