package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/diligence-cli/internal/answer"
	"github.com/sells-group/diligence-cli/internal/model"
)

// errInvalidAnswer makes the command exit non-zero for an invalid answer.
var errInvalidAnswer = eris.New("answer failed validation")

var validateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Check an answer against the Source/Analysis/Conclusion contract",
	Long:  "Validates answer text read from a file (or stdin when the file is omitted or \"-\") and prints its sections, errors, warnings and citation quality. With --reformat an invalid answer is rebuilt by the fallback reformatter and validated again.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("validate"); err != nil {
			return err
		}
		reformat, _ := cmd.Flags().GetBool("reformat")
		asJSON, _ := cmd.Flags().GetBool("json")

		var (
			data []byte
			err  error
		)
		if len(args) == 0 || args[0] == "-" {
			data, err = io.ReadAll(cmd.InOrStdin())
		} else {
			data, err = os.ReadFile(args[0])
		}
		if err != nil {
			return eris.Wrap(err, "read answer")
		}

		v, err := initValidator()
		if err != nil {
			return err
		}
		return runValidate(cmd.OutOrStdout(), v, string(data), reformat, asJSON)
	},
}

func init() {
	validateCmd.Flags().Bool("reformat", false, "reformat an invalid answer and validate the result")
	validateCmd.Flags().Bool("json", false, "print the validation result as JSON")
	rootCmd.AddCommand(validateCmd)
}

type validateReport struct {
	Result      model.ValidationResult  `json:"result"`
	Reformatted *model.ValidationResult `json:"reformatted,omitempty"`
	Text        string                  `json:"text,omitempty"`
}

// runValidate validates text and writes the report to out. It returns
// errInvalidAnswer when the answer (or its reformatted form) is invalid.
func runValidate(out io.Writer, v *answer.Validator, text string, reformat, asJSON bool) error {
	report := validateReport{Result: v.Validate(text)}
	valid := report.Result.IsValid

	if !valid && reformat {
		fixed, _, err := answer.Reformat(text)
		if err != nil {
			return eris.Wrap(err, "reformat")
		}
		again := v.Validate(fixed)
		report.Reformatted = &again
		report.Text = fixed
		valid = again.IsValid
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		printValidation(out, "Original", report.Result)
		if report.Reformatted != nil {
			_, _ = fmt.Fprintln(out)
			_, _ = fmt.Fprintln(out, report.Text)
			_, _ = fmt.Fprintln(out)
			printValidation(out, "Reformatted", *report.Reformatted)
		}
	}

	if !valid {
		return errInvalidAnswer
	}
	return nil
}

func printValidation(out io.Writer, label string, r model.ValidationResult) {
	status := "valid"
	if !r.IsValid {
		status = "invalid"
	}
	_, _ = fmt.Fprintf(out, "%s: %s (citation %s)\n", label, status, r.Citation)
	for _, e := range r.Errors {
		_, _ = fmt.Fprintf(out, "  error: %s\n", e)
	}
	for _, w := range r.Warnings {
		_, _ = fmt.Fprintf(out, "  warning: %s\n", w)
	}
}
