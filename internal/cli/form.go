package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/digiurban/lifecycle/internal/formschema"
)

var errFormInvalid = errors.New("form submission is invalid")

// ValidateFormCmd returns the validate-form command
func ValidateFormCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate-form",
		Short: "Validate a form submission against its schema",
		Long: `Validate a JSON form submission against a form schema, either a legacy field
list or a property schema. Use "-" as --data to read the submission from stdin.`,
		Example: `  lifecyclectl validate-form --schema cadastro.json --data submissao.json
  cat submissao.json | lifecyclectl validate-form --schema cadastro.json --data -`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			schemaPath, _ := cmd.Flags().GetString("schema")
			dataPath, _ := cmd.Flags().GetString("data")

			rawSchema, err := os.ReadFile(schemaPath)
			if err != nil {
				return err
			}
			rawData, err := readInput(cmd.InOrStdin(), dataPath)
			if err != nil {
				return err
			}
			var data map[string]any
			if err := json.Unmarshal(rawData, &data); err != nil {
				return fmt.Errorf("parsing %s: %w", dataPath, err)
			}

			res, err := formschema.ValidateRaw(rawSchema, data)
			if err != nil {
				return fmt.Errorf("parsing %s: %w", schemaPath, err)
			}

			out := cmd.OutOrStdout()
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(res); err != nil {
					return err
				}
			} else if res.Valid {
				fmt.Fprintf(out, "%s submission is valid\n", checkMark(true))
			} else {
				fmt.Fprintf(out, "%s submission has %s\n", checkMark(false), plural(len(res.Errors), "error"))
				for _, msg := range res.Errors {
					failColor.Fprintf(out, "  - %s\n", msg)
				}
			}

			if !res.Valid {
				return errFormInvalid
			}
			return nil
		},
	}

	cmd.Flags().String("schema", "", "form schema file (JSON)")
	cmd.Flags().String("data", "", "submission file (JSON object), - for stdin")
	cmd.Flags().Bool("json", false, "print the validation result as JSON")
	cmd.MarkFlagRequired("schema")
	cmd.MarkFlagRequired("data")

	return cmd
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}
