package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"photoline/internal/api"
	"photoline/internal/faults"
)

func newErrorsCommand() *cobra.Command {
	var (
		category string
		jsonFlag bool
	)
	cmd := &cobra.Command{
		Use:         "errors [code]",
		Short:       "Browse the error code catalogue",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				code := faults.Code(strings.ToUpper(strings.TrimSpace(args[0])))
				def, ok := faults.Lookup(code)
				if !ok {
					return fmt.Errorf("unknown error code %q", args[0])
				}
				if jsonFlag {
					return writeJSON(cmd, def)
				}
				renderDefinition(cmd, def)
				return nil
			}

			defs := faults.All()
			if c := strings.TrimSpace(category); c != "" {
				defs = faults.ByCategory(faults.Category(strings.ToLower(c)))
			}
			if jsonFlag {
				return writeJSON(cmd, api.ErrorListResponse{Errors: defs})
			}
			rows := make([][]string, 0, len(defs))
			for _, def := range defs {
				status := "-"
				if def.HTTPStatus > 0 {
					status = fmt.Sprint(def.HTTPStatus)
				}
				rows = append(rows, []string{string(def.Code), def.Name, string(def.Category), string(def.Severity), status})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Code", "Name", "Category", "Severity", "HTTP"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "Only list codes in this category")
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "Output as JSON")
	return cmd
}

func renderDefinition(cmd *cobra.Command, def faults.Definition) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s  %s\n", def.Code, def.Name)
	fmt.Fprintf(out, "Category: %s   Severity: %s   HTTP: %d\n\n", def.Category, def.Severity, def.HTTPStatus)
	fmt.Fprintf(out, "%s\n", def.Message)
	if def.Description != "" {
		fmt.Fprintf(out, "%s\n", def.Description)
	}
	if len(def.TypicalCauses) > 0 {
		fmt.Fprintln(out, "\nTypical causes:")
		for _, cause := range def.TypicalCauses {
			fmt.Fprintf(out, "  - %s\n", cause)
		}
	}
	if len(def.Troubleshooting) > 0 {
		fmt.Fprintln(out, "\nTroubleshooting:")
		for i, step := range def.Troubleshooting {
			fmt.Fprintf(out, "  %d. %s\n", i+1, step)
		}
	}
}
