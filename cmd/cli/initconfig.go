package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/glmigrate/internal/config"
)

const (
	initConfigCommandUseConstant            = "init-config"
	initConfigCommandShortConstant          = "Write a starter configuration file with placeholder credentials"
	initConfigCommandLongConstant           = "init-config renders a complete configuration template covering both instances, migration toggles, and the git transport, ready for tokens to be filled in."
	initConfigUnexpectedArgumentsMessage    = "init-config does not accept positional arguments"
	initConfigWriteErrorTemplateConstant    = "unable to write configuration template: %w"
	initConfigWrittenMessageConstant        = "configuration template written"
	initConfigOutputFlagNameConstant        = "output"
	initConfigOutputFlagDescriptionConstant = "Path of the configuration file to create"
	initConfigDefaultOutputPathConstant     = "config.yaml"
	initConfigLogFieldOutputPathConstant    = "output_path"
	initConfigWrittenOutputTemplateConstant = "configuration template written to %s\n"
)

var errInitConfigUnexpectedArguments = errors.New(initConfigUnexpectedArgumentsMessage)

// InitConfigCommandBuilder assembles the Cobra command writing the starter configuration.
type InitConfigCommandBuilder struct {
	LoggerProvider LoggerProvider
}

// Build constructs the init-config command.
func (builder *InitConfigCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   initConfigCommandUseConstant,
		Short: initConfigCommandShortConstant,
		Long:  initConfigCommandLongConstant,
		RunE:  builder.run,
	}

	command.Flags().String(initConfigOutputFlagNameConstant, initConfigDefaultOutputPathConstant, initConfigOutputFlagDescriptionConstant)

	return command, nil
}

func (builder *InitConfigCommandBuilder) run(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return errInitConfigUnexpectedArguments
	}

	outputPath, _ := command.Flags().GetString(initConfigOutputFlagNameConstant)
	if len(outputPath) == 0 {
		outputPath = initConfigDefaultOutputPathConstant
	}

	if writeError := config.WriteTemplate(outputPath); writeError != nil {
		return fmt.Errorf(initConfigWriteErrorTemplateConstant, writeError)
	}

	builder.resolveLogger().Info(
		initConfigWrittenMessageConstant,
		zap.String(initConfigLogFieldOutputPathConstant, outputPath),
	)
	fmt.Fprintf(command.OutOrStdout(), initConfigWrittenOutputTemplateConstant, outputPath)

	return nil
}

func (builder *InitConfigCommandBuilder) resolveLogger() *zap.Logger {
	if builder.LoggerProvider == nil {
		return zap.NewNop()
	}

	logger := builder.LoggerProvider()
	if logger == nil {
		return zap.NewNop()
	}

	return logger
}
