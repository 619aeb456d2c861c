package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/lattice/internal/engine"
	"github.com/roach88/lattice/internal/ir"
	"github.com/roach88/lattice/internal/store"
	"github.com/roach88/lattice/internal/store/boltdb"
)

// Store kinds accepted by --store.
const (
	StoreSQLite = "sqlite"
	StoreBolt   = "bolt"
)

// DumpOptions holds flags for the dump command.
type DumpOptions struct {
	*RootOptions
	Store      string // sqlite | bolt
	Collection string // restrict output to one collection
	Triples    bool   // print raw triples instead of documents
}

// DumpResult holds the documents of a replica database.
type DumpResult struct {
	SchemaVersion int64                       `json:"schema_version"`
	Clock         string                      `json:"clock"`
	TripleCount   int                         `json:"triple_count"`
	Collections   map[string][]map[string]any `json:"collections,omitempty"`
	Triples       []ir.Triple                 `json:"triples,omitempty"`
}

// NewDumpCommand creates the dump command.
func NewDumpCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DumpOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dump <db>",
		Short: "Print the documents of a replica database",
		Long: `Print the live documents of every collection in a replica database,
read through the schema stored in the database itself.

With --triples the stored triples are printed as they are, schema
triples included, in timestamp order.

Examples:
  lattice dump ./replica.db
  lattice dump ./replica.bolt --store bolt --collection users
  lattice dump ./replica.db --triples --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Store, "store", StoreSQLite, "store kind (sqlite|bolt)")
	cmd.Flags().StringVar(&opts.Collection, "collection", "", "only dump this collection")
	cmd.Flags().BoolVar(&opts.Triples, "triples", false, "print raw triples")

	return cmd
}

// replicaStore is a store the dump command can open, count and close.
type replicaStore interface {
	engine.Store
	io.Closer
	Count(ctx context.Context) (int, error)
}

func openStore(ctx context.Context, kind, path string) (replicaStore, error) {
	switch kind {
	case StoreSQLite:
		return store.Open(path)
	case StoreBolt:
		return boltdb.New(ctx, path)
	default:
		return nil, fmt.Errorf("unknown store %q: must be %s or %s", kind, StoreSQLite, StoreBolt)
	}
}

func runDump(ctx context.Context, opts *DumpOptions, dbPath string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	// Opening creates missing databases, so check first.
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return outputCompileError(formatter, ErrCodeNotFound, fmt.Sprintf("database not found: %s", dbPath), nil)
	}

	st, err := openStore(ctx, opts.Store, dbPath)
	if err != nil {
		return outputCompileError(formatter, ErrCodeStoreFailed, err.Error(), nil)
	}
	defer st.Close()

	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(formatter.GetErrWriter(), &slog.HandlerOptions{Level: level}))

	// Read-only use: the origin never stamps a write.
	eng, err := engine.Open(ctx, st, "dump", engine.WithLogger(logger))
	if err != nil {
		return outputCompileError(formatter, ErrCodeStoreFailed, err.Error(), nil)
	}

	count, err := st.Count(ctx)
	if err != nil {
		return outputCompileError(formatter, ErrCodeStoreFailed, err.Error(), nil)
	}

	def := eng.Schema()
	result := &DumpResult{Clock: eng.Clock().Current().String(), TripleCount: count}
	if def != nil {
		result.SchemaVersion = def.Version
	}

	if opts.Triples {
		triples, err := eng.TriplesAfter(ctx, ir.Timestamp{})
		if err != nil {
			return outputCompileError(formatter, ErrCodeStoreFailed, err.Error(), nil)
		}
		result.Triples = triples
		return outputDump(formatter, result)
	}

	if def == nil {
		return outputCompileError(formatter, ErrCodeNoCollections, "database holds no schema", nil)
	}

	names := def.CollectionNames()
	if opts.Collection != "" {
		names = []string{opts.Collection}
	}
	result.Collections = make(map[string][]map[string]any, len(names))
	for _, name := range names {
		docs, err := eng.FetchAll(ctx, name)
		if err != nil {
			if engine.IsUnknownCollection(err) {
				return outputCompileError(formatter, ErrCodeNoCollections, err.Error(), nil)
			}
			return outputCompileError(formatter, ErrCodeStoreFailed, err.Error(), nil)
		}
		formatter.VerboseLog("Read %d document(s) from %s", len(docs), name)
		result.Collections[name] = docs
	}

	return outputDump(formatter, result)
}

func outputDump(formatter *OutputFormatter, result *DumpResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "Schema version %d, clock %s, %d triple(s)\n", result.SchemaVersion, result.Clock, result.TripleCount)

	if result.Triples != nil {
		fmt.Fprintf(w, "\n%d triple(s):\n", len(result.Triples))
		for _, tr := range result.Triples {
			fmt.Fprintf(w, "  %s\n", tr)
		}
		return nil
	}

	for _, name := range slices.Sorted(maps.Keys(result.Collections)) {
		docs := result.Collections[name]
		fmt.Fprintf(w, "\n%s (%d):\n", name, len(docs))
		for _, doc := range docs {
			data, err := ir.MarshalCanonical(doc)
			if err != nil {
				return fmt.Errorf("render %s document: %w", name, err)
			}
			fmt.Fprintf(w, "  %s\n", data)
		}
	}
	return nil
}
