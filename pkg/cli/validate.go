package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/logwire/logwire/pkg/config"
)

// ValidateOutput is the JSON form of a validate result.
type ValidateOutput struct {
	Path      string   `json:"path"`
	Valid     bool     `json:"valid"`
	Listeners int      `json:"listeners"`
	Routes    int      `json:"routes"`
	Problems  []string `json:"problems,omitempty"`
}

var validateConfigPath string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a configuration file without starting any listener",
	Long: `Validate parses a logwire configuration file, applies defaults and LOGWIRE_*
environment overrides, and reports every problem found. Output connections
are not attempted.`,
	Example: `  logwire validate --config /etc/logwire/logwire.yaml
  logwire validate --config logwire.json --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(cmd, configPath(validateConfigPath))
	},
}

func runValidate(cmd *cobra.Command, path string) error {
	out := ValidateOutput{Path: path}
	cfg, err := config.Load(path)

	var verr *config.ValidationError
	switch {
	case err == nil:
		out.Valid = true
		out.Listeners = len(cfg.Listeners)
		out.Routes = len(cfg.Routes)
	case errors.As(err, &verr):
		for _, fe := range verr.Errors {
			out.Problems = append(out.Problems, fe.String())
		}
	default:
		return err
	}

	if jsonOutput {
		if err := printJSON(cmd.OutOrStdout(), out); err != nil {
			return err
		}
	} else if out.Valid {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: configuration is valid (%d listeners, %d routes)\n", path, out.Listeners, out.Routes)
	} else {
		for _, p := range out.Problems {
			fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", p)
		}
	}
	if !out.Valid {
		return fmt.Errorf("%s: %d configuration problem(s)", path, len(out.Problems))
	}
	return nil
}

func init() {
	validateCmd.Flags().StringVarP(&validateConfigPath, "config", "c", "", "Config file path (default $LOGWIRE_CONFIG or logwire.yaml)")
	rootCmd.AddCommand(validateCmd)
}
