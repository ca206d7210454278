package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/notifykit/pkg/renderer"
	"github.com/dmitrymomot/notifykit/pkg/templates"
)

var errInvalidTemplate = errors.New("template is invalid")

var templatesCmd = newTemplatesCmd()

func newTemplatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Validate and preview notification templates",
	}
	cmd.PersistentFlags().String("schemas", "", "YAML event schema file (overrides TEMPLATE_SCHEMA_FILE)")
	cmd.PersistentFlags().String("event", "", "event key the template belongs to")

	cmd.AddCommand(newValidateCmd(), newPreviewCmd(), newSchemasCmd())
	return cmd
}

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Check template syntax and variables against the event schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := templateManager(cmd)
			if err != nil {
				return err
			}
			content, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			event, _ := cmd.Flags().GetString("event")

			res := m.Validate(event, string(content))
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
			} else {
				printValidation(cmd.OutOrStdout(), args[0], res)
			}
			if !res.Valid {
				return errInvalidTemplate
			}
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "print the result as JSON")
	return cmd
}

func newPreviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preview <file>",
		Short: "Render a template with sample values for missing variables",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := templateManager(cmd)
			if err != nil {
				return err
			}
			content, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			data, err := previewData(cmd)
			if err != nil {
				return err
			}
			event, _ := cmd.Flags().GetString("event")

			out, err := m.Preview(event, string(content), data)
			if err != nil {
				return err
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return writeJSON(cmd.OutOrStdout(), out)
			}
			w := cmd.OutOrStdout()
			if out.Title != "" {
				fmt.Fprintf(w, "Title: %s\n\n", out.Title)
			}
			fmt.Fprintln(w, out.Body)
			return nil
		},
	}
	cmd.Flags().String("data", "", "JSON file with template variables")
	cmd.Flags().Bool("json", false, "print the result as JSON")
	return cmd
}

func newSchemasCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schemas",
		Short: "List the known event schemas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := schemaRegistry(cmd)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, key := range reg.Events() {
				s, _ := reg.Lookup(key)
				fmt.Fprintf(w, "%s\t%s\n", key, strings.Join(s.Variables, ", "))
			}
			return nil
		},
	}
}

func schemaRegistry(cmd *cobra.Command) (*templates.SchemaRegistry, error) {
	path, _ := cmd.Flags().GetString("schemas")
	if path == "" {
		path = os.Getenv("TEMPLATE_SCHEMA_FILE")
	}
	if path == "" {
		return templates.NewSchemaRegistry(), nil
	}
	schemas, err := templates.LoadSchemas(path)
	if err != nil {
		return nil, err
	}
	return templates.NewSchemaRegistry(schemas...), nil
}

func templateManager(cmd *cobra.Command) (*templates.Manager, error) {
	reg, err := schemaRegistry(cmd)
	if err != nil {
		return nil, err
	}
	return templates.NewManager(templates.NewMemoryStorage(), templates.WithSchemaRegistry(reg)), nil
}

func previewData(cmd *cobra.Command) (map[string]any, error) {
	path, _ := cmd.Flags().GetString("data")
	if path == "" {
		return map[string]any{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return data, nil
}

func printValidation(w io.Writer, name string, res renderer.ValidationResult) {
	if res.Valid {
		fmt.Fprintf(w, "%s: ok\n", name)
	} else {
		fmt.Fprintf(w, "%s: %d issue(s)\n", name, len(res.Issues))
	}
	for _, is := range res.Issues {
		switch {
		case is.Line > 0:
			fmt.Fprintf(w, "  line %d: %s\n", is.Line, is.Message)
		default:
			fmt.Fprintf(w, "  %s\n", is.Message)
		}
	}
	if len(res.Variables) > 0 {
		fmt.Fprintf(w, "variables: %s\n", strings.Join(res.Variables, ", "))
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
