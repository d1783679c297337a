package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/i2y/restbridge/configs"
	"github.com/i2y/restbridge/internal/adapter/inbound/mcptools"
	"github.com/i2y/restbridge/internal/domain"
)

func newCommandApp(cmd *cobra.Command, flags *globalFlags) (*App, error) {
	cfg, err := flags.loadConfig(cmd.Context())
	if err != nil {
		return nil, err
	}
	if flags.logLevel == "" && cfg.LogLevel == "info" {
		cfg.LogLevel = "warn"
	}
	app, err := NewApp(cfg, newLogger(cmd.ErrOrStderr(), cfg))
	if err != nil {
		return nil, err
	}
	app.ImportSources(cmd.Context(), cfg.SchemaSources)
	return app, nil
}

func newInvokeCmd(flags *globalFlags) *cobra.Command {
	var data, dataFile string
	cmd := &cobra.Command{
		Use:   "invoke <operation>",
		Short: "Invoke one operation and print its result as JSON",
		Long: "Invoke one operation. The input is a JSON object with the sections " +
			"transactionId, endpoint, path, query, header, content, authentication, apiHeaderKey and apiQueryKey.",
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd.InOrStdin(), data, dataFile)
			if err != nil {
				return err
			}
			input := map[string]any{}
			if len(raw) > 0 {
				if err := json.Unmarshal(raw, &input); err != nil {
					return newUsageError(fmt.Sprintf("input must be a JSON object: %v", err))
				}
			}
			in, err := domain.InputFromMap(input)
			if err != nil {
				return newUsageError(err.Error())
			}

			app, err := newCommandApp(cmd, flags)
			if err != nil {
				return err
			}
			out, err := app.Invoke.Execute(cmd.Context(), args[0], in)
			if err != nil {
				return err
			}
			text, err := mcptools.RenderOutput(out)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), text)
			return err
		},
	}
	cmd.Flags().StringVarP(&data, "data", "d", "", "Input as an inline JSON object")
	cmd.Flags().StringVarP(&dataFile, "data-file", "f", "", "Read the input JSON from a file, or - for stdin")
	cmd.MarkFlagsMutuallyExclusive("data", "data-file")
	return cmd
}

func readInput(stdin io.Reader, data, dataFile string) ([]byte, error) {
	switch {
	case data != "":
		return []byte(data), nil
	case dataFile == "-":
		return io.ReadAll(stdin)
	case dataFile != "":
		b, err := os.ReadFile(dataFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read input file: %w", err)
		}
		return b, nil
	default:
		return nil, nil
	}
}

func newSchemaCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "schema <operation>",
		Short: "Print the derived input and output JSON schema of an operation",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newCommandApp(cmd, flags)
			if err != nil {
				return err
			}
			s, err := app.List.Describe(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(s.Tool)
		},
	}
}

func newListCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the configured operations",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newCommandApp(cmd, flags)
			if err != nil {
				return err
			}
			summaries, err := app.List.Execute(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "OPERATION\tMETHOD\tENDPOINT\tPATH")
			for _, s := range summaries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.Config.ID, s.Config.EffectiveMethod(), s.Config.Endpoint, s.Config.Path)
			}
			return w.Flush()
		},
	}
}

func newImportCmd(flags *globalFlags) *cobra.Command {
	var endpoint string
	var headers map[string]string
	cmd := &cobra.Command{
		Use:   "import <source>",
		Short: "Generate endpoint and operation definitions from an OpenAPI document",
		Long: "Fetch an OpenAPI document from a URL, a local path or github://owner/repo/path[@ref] " +
			"and print the generated definitions as YAML, ready for the definitions file.",
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newCommandApp(cmd, flags)
			if err != nil {
				return err
			}
			res, err := app.importer(headers).Execute(cmd.Context(), args[0], endpoint)
			if err != nil {
				return err
			}
			file := configs.FileConfig{
				Endpoints:  map[string]domain.EndpointConfig{res.Endpoint.Name: res.Endpoint},
				Operations: make(map[string]domain.OperationConfig, len(res.Operations)),
			}
			for _, op := range res.Operations {
				file.Operations[op.ID] = op
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(file); err != nil {
				return err
			}
			return enc.Close()
		},
	}
	cmd.Flags().StringVarP(&endpoint, "endpoint", "e", "", "Endpoint name (defaults to the document title)")
	cmd.Flags().StringToStringVarP(&headers, "header", "H", nil, "Header sent when fetching the document (name=value), repeatable")
	return cmd
}
