package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/lattice/internal/ir"
	"github.com/roach88/lattice/internal/schema"
	"github.com/roach88/lattice/internal/schemacodec"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output  string // output file path
	Triples bool   // emit schema triples instead of the definition
	Origin  string // origin stamped on emitted triples
}

// CollectionStats summarizes one compiled collection.
type CollectionStats struct {
	Name       string `json:"name"`
	Attributes int    `json:"attributes"`
	Sets       int    `json:"sets"`
	Records    int    `json:"records"`
}

// CompilationResult holds the compiled definition and its summary.
type CompilationResult struct {
	Version     int64              `json:"version"`
	Hash        string             `json:"hash"`
	Definition  *schema.Definition `json:"definition,omitempty"`
	Triples     []ir.Triple        `json:"triples,omitempty"`
	Collections []CollectionStats  `json:"collections"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <schema>",
		Short: "Compile a CUE schema to its canonical definition",
		Long: `Compile a CUE schema file or directory to a schema definition.

The definition is written as JSON. With --triples the schema is emitted
as the triples a replica stores under the reserved schema entity.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")
	cmd.Flags().BoolVar(&opts.Triples, "triples", false, "emit schema triples")
	cmd.Flags().StringVar(&opts.Origin, "origin", "compiler", "origin of emitted triple timestamps")

	return cmd
}

func runCompile(opts *CompileOptions, schemaPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	loadResult, loadErrors := LoadSchema(schemaPath, LoadModeCollectAll)
	if loadResult == nil && len(loadErrors) > 0 {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return outputCompileError(formatter, loadErr.Code, loadErr.Message, nil)
		}
		return outputCompileError(formatter, ErrCodeGeneric, loadErrors[0].Error(), nil)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, schemaPath)
	for _, name := range loadResult.Definition.CollectionNames() {
		formatter.VerboseLog("Compiled collection: %s", name)
	}

	if len(loadErrors) > 0 {
		return outputCompileErrors(formatter, loadErrors)
	}

	def := loadResult.Definition
	if err := def.Validate(); err != nil {
		return outputCompileError(formatter, ErrCodeGeneric, err.Error(), nil)
	}

	result, err := buildCompilationResult(def, opts)
	if err != nil {
		return outputCompileError(formatter, ErrCodeGeneric, err.Error(), nil)
	}

	if opts.Output != "" {
		if err := writeResultToFile(result, opts.Output); err != nil {
			return outputCompileError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
		}
	}

	return outputCompileSuccess(formatter, result, opts.Output)
}

func buildCompilationResult(def *schema.Definition, opts *CompileOptions) (*CompilationResult, error) {
	hash, err := def.Hash()
	if err != nil {
		return nil, fmt.Errorf("hashing definition: %w", err)
	}

	result := &CompilationResult{
		Version:     def.Version,
		Hash:        hash,
		Collections: make([]CollectionStats, 0, len(def.Collections)),
	}
	for _, name := range def.CollectionNames() {
		result.Collections = append(result.Collections, collectionStats(def.Collections[name]))
	}

	if opts.Triples {
		triples, err := schemacodec.ToTriples(def, ir.NewTimestamp(1, opts.Origin))
		if err != nil {
			return nil, fmt.Errorf("encoding schema triples: %w", err)
		}
		result.Triples = triples
	} else {
		result.Definition = def
	}
	return result, nil
}

func collectionStats(col *schema.Collection) CollectionStats {
	stats := CollectionStats{Name: col.Name}
	var walk func(rt *schema.RecordType)
	walk = func(rt *schema.RecordType) {
		for _, f := range rt.Fields {
			stats.Attributes++
			switch t := f.Type.(type) {
			case *schema.SetType:
				stats.Sets++
			case *schema.RecordType:
				stats.Records++
				walk(t)
			}
		}
	}
	if col.Schema != nil {
		walk(col.Schema)
	}
	return stats
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ Compiled %d collection(s), version %d\n\n",
		len(result.Collections), result.Version)

	if len(result.Collections) > 0 {
		fmt.Fprintln(formatter.Writer, "Collections:")
		for _, c := range result.Collections {
			fmt.Fprintf(formatter.Writer, "  %s: %d attribute(s), %d set(s), %d record(s)\n",
				c.Name, c.Attributes, c.Sets, c.Records)
		}
		fmt.Fprintln(formatter.Writer)
	}

	fmt.Fprintf(formatter.Writer, "Hash: %s\n", result.Hash)
	if result.Triples != nil {
		fmt.Fprintf(formatter.Writer, "Schema triples: %d\n", len(result.Triples))
	}
	if outputFile != "" {
		fmt.Fprintf(formatter.Writer, "Wrote output to %s\n", outputFile)
	}

	return nil
}

// outputCompileError outputs a single compilation error.
func outputCompileError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	// Compilation errors are command-level errors (exit code 2)
	return WrapExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message), nil)
}

// outputCompileErrors outputs multiple compilation errors.
func outputCompileErrors(formatter *OutputFormatter, errs []error) error {
	if formatter.Format == "json" {
		cliErrors := make([]CLIError, len(errs))
		for i, err := range errs {
			code, message := parseCompileError(err)
			cliErrors[i] = CLIError{Code: code, Message: message}
		}

		response := CLIResponse{
			Status: "error",
			Error:  &cliErrors[0],
			Data:   cliErrors, // Include all errors in data
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		code, message := parseCompileError(err)
		var loadErr *LoadError
		if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n",
				loadErr.Pos.Filename(),
				loadErr.Pos.Line(),
				loadErr.Pos.Column())
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", code, message)
	}

	return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
}

// parseCompileError extracts error code and message from an error.
func parseCompileError(err error) (string, string) {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Message
	}
	return ErrCodeGeneric, err.Error()
}

// writeResultToFile writes the definition, or the triples with --triples,
// as indented JSON.
func writeResultToFile(result *CompilationResult, filename string) error {
	var payload any = result.Definition
	if result.Triples != nil {
		payload = result.Triples
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling output: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	return nil
}
