package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	templateDirectoryCreateErrorTemplateConstant = "unable to create configuration directory: %w"
	templateEncodeErrorTemplateConstant          = "unable to encode configuration template: %w"
	templateWriteErrorTemplateConstant           = "unable to write configuration template: %w"
	templateDirectoryPermissionsConstant         = 0o755
	templateFilePermissionsConstant              = 0o600
	templateSourceURLPlaceholderConstant         = "https://gitlab-source.example.com"
	templateDestinationURLPlaceholderConstant    = "https://gitlab-destination.example.com"
	templateTokenPlaceholderConstant             = "replace-with-personal-access-token"
	templateLogLevelPlaceholderConstant          = "info"
	templateLogFormatPlaceholderConstant         = "structured"
)

type templateCommonSection struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

type configurationTemplate struct {
	Common      templateCommonSection  `yaml:"common"`
	Source      InstanceConfiguration  `yaml:"source"`
	Destination InstanceConfiguration  `yaml:"destination"`
	Migration   MigrationConfiguration `yaml:"migration"`
	Git         GitConfiguration       `yaml:"git"`
}

// WriteTemplate renders a starter configuration file with placeholder credentials.
func WriteTemplate(outputPath string) error {
	templateContents := configurationTemplate{
		Common: templateCommonSection{
			LogLevel:  templateLogLevelPlaceholderConstant,
			LogFormat: templateLogFormatPlaceholderConstant,
		},
		Source: InstanceConfiguration{
			URL:               templateSourceURLPlaceholderConstant,
			Token:             templateTokenPlaceholderConstant,
			TimeoutSeconds:    defaultTimeoutSecondsConstant,
			RequestsPerSecond: defaultRequestsPerSecondConstant,
		},
		Destination: InstanceConfiguration{
			URL:               templateDestinationURLPlaceholderConstant,
			Token:             templateTokenPlaceholderConstant,
			TimeoutSeconds:    defaultTimeoutSecondsConstant,
			RequestsPerSecond: defaultRequestsPerSecondConstant,
		},
		Migration: MigrationConfiguration{
			Users:                 true,
			Groups:                true,
			Projects:              true,
			Repositories:          true,
			UserConcurrency:       defaultUserConcurrencyConstant,
			GroupConcurrency:      defaultGroupConcurrencyConstant,
			ProjectConcurrency:    defaultProjectConcurrencyConstant,
			RepositoryConcurrency: defaultRepositoryConcurrencyConstant,
			Retry: RetryConfiguration{
				MaxAttempts:     defaultRetryMaxAttemptsConstant,
				BaseDelayMillis: defaultRetryBaseDelayMillisConstant,
				Multiplier:      defaultRetryMultiplierConstant,
			},
			CircuitBreaker: CircuitBreakerConfiguration{
				FailureThreshold:    defaultFailureThresholdConstant,
				ResetTimeoutSeconds: defaultResetTimeoutSecondsConstant,
			},
		},
		Git: GitConfiguration{
			LFSEnabled:            true,
			CleanupWorkspace:      true,
			CommandTimeoutSeconds: defaultGitCommandTimeoutConstant,
		},
	}

	if directoryError := os.MkdirAll(filepath.Dir(outputPath), templateDirectoryPermissionsConstant); directoryError != nil {
		return fmt.Errorf(templateDirectoryCreateErrorTemplateConstant, directoryError)
	}

	encodedTemplate, encodeError := yaml.Marshal(templateContents)
	if encodeError != nil {
		return fmt.Errorf(templateEncodeErrorTemplateConstant, encodeError)
	}

	if writeError := os.WriteFile(outputPath, encodedTemplate, templateFilePermissionsConstant); writeError != nil {
		return fmt.Errorf(templateWriteErrorTemplateConstant, writeError)
	}

	return nil
}
