// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/anvilhq/anvil/internal/json"
	"github.com/anvilhq/anvil/pkg/mapping"
)

var errNoMappingsFile = errors.New("a mappings file is required, use -m or the configuration")

var validateCmd = &cobra.Command{
	Use:     "validate",
	Short:   "Validates a topic mappings file and reports every problem found",
	PreRunE: validateFlagBinding,
	RunE: func(cmd *cobra.Command, args []string) error {
		sp, _ := pterm.DefaultSpinner.WithText("validating topic mappings...").Start()

		mappingsFile := mappingsFilePath()
		if mappingsFile == "" {
			sp.Fail(errNoMappingsFile.Error())
			return errNoMappingsFile
		}

		status := validateMappings(mappingsFile)
		if status.Valid {
			sp.Success(fmt.Sprintf("%d topic mappings are valid", status.MappingCount))
		} else {
			sp.Warning("mappings validation identified issues: ", strings.Join(status.Errors, ", "))
		}

		if err := printJSON(cmd, status); err != nil {
			return fmt.Errorf("failed to format validation status: %w", err)
		}
		return nil
	},
	Example: `
	anvil validate -m mappings.yaml
	anvil validate -c anvil.yaml --json`,
}

type mappingsStatus struct {
	File         string   `json:"file"`
	Valid        bool     `json:"valid"`
	MappingCount int      `json:"mapping_count"`
	Errors       []string `json:"errors,omitempty"`
}

func validateMappings(file string) *mappingsStatus {
	status := &mappingsStatus{File: file}
	cfg, err := mapping.Load(file)
	if err != nil {
		status.Errors = flattenErrors(err)
		return status
	}
	status.Valid = true
	status.MappingCount = len(cfg.Mappings)
	return status
}

// flattenErrors unpacks joined validation errors into one message per line.
func flattenErrors(err error) []string {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		msgs := make([]string, 0, len(joined.Unwrap()))
		for _, e := range joined.Unwrap() {
			msgs = append(msgs, e.Error())
		}
		return msgs
	}
	return []string{err.Error()}
}

func printJSON(cmd *cobra.Command, v any) error {
	jsonFlag := cmd.Flags().Lookup("json")
	if jsonFlag == nil || jsonFlag.Value.String() != "true" {
		return nil
	}
	out, err := json.Marshal(v)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

func mappingsFilePath() string {
	if file := viper.GetString("ANVIL_MAPPINGS_FILE"); file != "" {
		return file
	}
	return viper.GetString("mappings_file")
}

func validateFlagBinding(cmd *cobra.Command, _ []string) error {
	// to be able to overwrite configuration with flags when yaml config file is
	// provided
	viper.BindPFlag("mappings_file", cmd.Flags().Lookup("mappings"))

	// to be able to overwrite configuration with flags when env config file is
	// provided or when no configuration is provided
	viper.BindPFlag("ANVIL_MAPPINGS_FILE", cmd.Flags().Lookup("mappings"))
	return nil
}
