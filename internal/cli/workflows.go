package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/digiurban/lifecycle/internal/definition"
	"github.com/digiurban/lifecycle/model"
)

// WorkflowsCmd returns the workflows command
func WorkflowsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflows",
		Short: "Inspect and validate workflow definitions",
	}

	cmd.AddCommand(workflowsListCmd())
	cmd.AddCommand(workflowsShowCmd())
	cmd.AddCommand(workflowsValidateCmd())

	return cmd
}

func workflowsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the workflows the service would register",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			registry, err := loadRegistry(cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if registry.Len() == 0 {
				fmt.Fprintln(out, "No workflows registered.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "MODULE TYPE\tNAME\tSTAGES\tDEFAULT SLA\tSTAGE DAYS")
			for _, s := range registry.Stats() {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\n", s.ModuleType, s.Name, s.StagesCount, s.DefaultSLA, s.TotalWorkingDays)
			}
			return w.Flush()
		},
	}
}

func workflowsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "show <module-type>",
		Short:   "Show the stages of one workflow",
		Example: `  lifecyclectl workflows show CADASTRO_PRODUTOR`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			registry, err := loadRegistry(cfg)
			if err != nil {
				return err
			}

			def, ok := registry.GetWorkflow(args[0])
			if !ok {
				return fmt.Errorf("no workflow registered for module type %q", args[0])
			}
			displayWorkflow(cmd.OutOrStdout(), def)
			return nil
		},
	}
}

func displayWorkflow(out io.Writer, def *model.WorkflowDefinition) {
	headColor.Fprintf(out, "%s (%s)\n", def.Name, def.ModuleType)
	if def.Description != "" {
		fmt.Fprintf(out, "  %s\n", def.Description)
	}
	fmt.Fprintf(out, "  Default SLA: %s\n", plural(def.DefaultSLA, "working day"))
	if def.SourceFile != "" {
		fmt.Fprintf(out, "  Source: %s\n", def.SourceFile)
	}
	fmt.Fprintln(out)

	for _, st := range def.Stages {
		fmt.Fprintf(out, "%d. %s (%s)", st.Order, st.Name, plural(st.SLAWorkingDays, "working day"))
		if st.CanSkip {
			warnColor.Fprint(out, " [skippable]")
		}
		fmt.Fprintln(out)
		if len(st.RequiredDocuments) > 0 {
			fmt.Fprintf(out, "   documents: %s\n", strings.Join(st.RequiredDocuments, ", "))
		}
		for _, c := range st.CompletionConditions {
			fmt.Fprintf(out, "   condition: %s\n", describeCondition(c))
		}
	}
}

func describeCondition(c model.StageCondition) string {
	switch c.Kind {
	case model.ConditionDocumentApproved:
		return "document " + c.DocumentType + " approved"
	case model.ConditionFieldPresent:
		return "field " + c.Field + " present"
	case model.ConditionNoBlockingPendings:
		return "no blocking pendings"
	default:
		return c.Kind
	}
}

func workflowsValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file-or-dir>...",
		Short: "Validate workflow definition files",
		Long: `Parse and validate workflow definition files without starting the service.
Directories are scanned recursively for *.yaml and *.yml files.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			loader := definition.NewLoader()
			validator := definition.NewValidator()

			failed := 0
			for _, path := range args {
				defs, err := loadPath(loader, path)
				if err != nil {
					failed++
					fmt.Fprintf(out, "%s %s: %v\n", checkMark(false), path, err)
					continue
				}
				verrs := validator.Validate(defs)
				if len(verrs) > 0 {
					failed++
					fmt.Fprintf(out, "%s %s\n", checkMark(false), path)
					for _, ve := range verrs {
						failColor.Fprintf(out, "    %s\n", ve.Error())
					}
					continue
				}
				fmt.Fprintf(out, "%s %s (%s)\n", checkMark(true), path, plural(len(defs), "workflow"))
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d paths invalid", failed, len(args))
			}
			return nil
		},
	}
}

func loadPath(loader *definition.Loader, path string) ([]model.WorkflowDefinition, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return loader.LoadAll([]string{path})
	}
	return loader.LoadFile(path)
}
