package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/spf13/cobra"

	"github.com/TFMV/rawlayer/pkg/core"
	"github.com/TFMV/rawlayer/pkg/readers"
	"github.com/TFMV/rawlayer/pkg/schema"
)

var errEnough = errors.New("enough rows")

func newInspectCommand() *cobra.Command {
	var (
		typ   string
		table string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "inspect FILE",
		Short: "Print the schema and first rows of a generated table file",
		Long: `Inspect a Parquet, Arrow IPC or NDJSON table file.

NDJSON files carry no schema, so the declared schema of the table named by the
file (or --table) is used to read them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if table == "" {
				table = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			}
			config := core.ReaderConfig{Type: typ, Path: path, BatchSize: int64(max(limit, 1))}
			if t, err := schema.Lookup(table); err == nil {
				config.Schema = t.Schema
			}
			r, err := readers.DefaultFactory.Create(config)
			if err != nil {
				return err
			}
			defer r.Close()
			return inspect(cmd, r, path, limit)
		},
	}

	cmd.Flags().StringVarP(&typ, "type", "t", "", "File type (parquet, arrow, json), inferred from the extension by default")
	cmd.Flags().StringVar(&table, "table", "", "Table whose declared schema reads the file, inferred from the file name by default")
	cmd.Flags().IntVarP(&limit, "limit", "n", 5, "Number of rows to print")
	return cmd
}

func inspect(cmd *cobra.Command, r core.DatasetReader, path string, limit int) error {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "File: %s\n", path)
	if n := r.NumRows(); n >= 0 {
		fmt.Fprintf(w, "Number of rows: %d\n", n)
	}
	fmt.Fprintln(w, schema.SchemaToString(r.Schema()))

	if limit <= 0 {
		return nil
	}
	fmt.Fprintf(w, "First %d rows:\n", limit)
	printed := 0
	err := readers.Each(cmd.Context(), r, func(rec arrow.Record) error {
		printed += printRows(w, rec, limit-printed)
		if printed >= limit {
			return errEnough
		}
		return nil
	})
	if errors.Is(err, errEnough) {
		return nil
	}
	return err
}

// printRows prints up to n rows of rec and returns how many it printed.
func printRows(w io.Writer, rec arrow.Record, n int) int {
	rows := min(int(rec.NumRows()), n)
	fields := rec.Schema().Fields()
	for i := 0; i < rows; i++ {
		cells := make([]string, len(fields))
		for j, f := range fields {
			cells[j] = f.Name + "=" + rec.Column(j).ValueStr(i)
		}
		fmt.Fprintf(w, "  %s\n", strings.Join(cells, " "))
	}
	return rows
}
