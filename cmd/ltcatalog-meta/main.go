// Package main is the entry point for ltcatalog-meta, the product
// export/import tool.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ltcatalog/ltcatalog/internal/config"
	"github.com/ltcatalog/ltcatalog/internal/logging"
	"github.com/ltcatalog/ltcatalog/internal/serialization"
	"github.com/ltcatalog/ltcatalog/internal/storage"
	"github.com/ltcatalog/ltcatalog/internal/store"
)

const usage = "Usage: ltcatalog-meta <export|import> [flags]"

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, usage)
		return 1
	}

	switch args[0] {
	case "export":
		return runExport(args[1:], stdout, stderr)
	case "import":
		return runImport(args[1:], stdin, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n%s\n", args[0], usage)
		return 1
	}
}

// storeFlags are shared by export and import.
type storeFlags struct {
	configPath *string
	engine     *string
	dbPath     *string
}

func addStoreFlags(fs *flag.FlagSet) storeFlags {
	return storeFlags{
		configPath: fs.String("config", "ltcatalog.yaml", "Config file path"),
		engine:     fs.String("engine", "", "Product store engine (overrides config)"),
		dbPath:     fs.String("db", "", "SQLite database path (overrides config)"),
	}
}

func (f storeFlags) open(ctx context.Context) (*config.Config, store.ProductStore, error) {
	cfg, err := config.Load(*f.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("reading config: %w", err)
	}
	if *f.engine != "" {
		cfg.Metadata.Engine = *f.engine
	}
	if *f.dbPath != "" {
		cfg.Metadata.SQLite.Path = *f.dbPath
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	// Keep stdout clean for the export document.
	logging.Setup("warn", cfg.Logging.Format, os.Stderr)

	st, err := store.Open(ctx, &cfg.Metadata)
	if err != nil {
		return nil, nil, fmt.Errorf("opening product store: %w", err)
	}
	return cfg, st, nil
}

func runExport(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(stderr)
	sf := addStoreFlags(fs)
	format := fs.String("format", "json", "Output format")
	output := fs.String("output", "-", "Destination: - for stdout, a file path, or s3://, gs://, azblob:// URL")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	if *format != "json" {
		fmt.Fprintf(stderr, "Error: unsupported format: %s\n", *format)
		return 1
	}

	ctx := context.Background()
	cfg, st, err := sf.open(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer st.Close()

	result, err := serialization.ExportProducts(ctx, st, &serialization.ExportOptions{Engine: cfg.Metadata.Engine})
	if err != nil {
		fmt.Fprintf(stderr, "Error exporting: %v\n", err)
		return 1
	}

	if *output == "-" {
		fmt.Fprintln(stdout, result)
		return 0
	}

	sink, key, err := storage.Open(ctx, *output)
	if err != nil {
		fmt.Fprintf(stderr, "Error opening destination: %v\n", err)
		return 1
	}
	if err := sink.Put(ctx, key, strings.NewReader(result+"\n")); err != nil {
		fmt.Fprintf(stderr, "Error writing output: %v\n", err)
		return 1
	}
	fmt.Fprintf(stderr, "Exported to %s\n", *output)
	return 0
}

func runImport(args []string, stdin io.Reader, stderr io.Writer) int {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	fs.SetOutput(stderr)
	sf := addStoreFlags(fs)
	input := fs.String("input", "-", "Source: - for stdin, a file path, or s3://, gs://, azblob:// URL")
	replace := fs.Bool("replace", false, "Delete every existing product before importing")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	ctx := context.Background()
	data, err := readInput(ctx, *input, stdin)
	if err != nil {
		fmt.Fprintf(stderr, "Error reading input: %v\n", err)
		return 1
	}

	_, st, err := sf.open(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer st.Close()

	result, err := serialization.ImportProducts(ctx, st, string(data), &serialization.ImportOptions{Replace: *replace})
	if err != nil {
		fmt.Fprintf(stderr, "Error importing: %v\n", err)
		return 1
	}

	msg := fmt.Sprintf("  products: %d imported", result.Imported)
	if result.Skipped > 0 {
		msg += fmt.Sprintf(", %d skipped", result.Skipped)
	}
	if result.Deleted > 0 {
		msg += fmt.Sprintf(", %d deleted", result.Deleted)
	}
	fmt.Fprintln(stderr, msg)

	for _, w := range result.Warnings {
		fmt.Fprintf(stderr, "  WARNING: %s\n", w)
	}
	return 0
}

func readInput(ctx context.Context, src string, stdin io.Reader) ([]byte, error) {
	if src == "-" {
		return io.ReadAll(stdin)
	}
	sink, key, err := storage.Open(ctx, src)
	if err != nil {
		return nil, err
	}
	rc, err := sink.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
