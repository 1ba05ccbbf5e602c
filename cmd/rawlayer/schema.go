package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/TFMV/rawlayer/pkg/schema"
)

// SchemaOptions represents the options for the schema command.
type SchemaOptions struct {
	DDL      bool
	Dataset  string
	Contract string
}

func newSchemaCommand() *cobra.Command {
	options := &SchemaOptions{Dataset: "raw"}

	cmd := &cobra.Command{
		Use:   "schema [TABLE]",
		Short: "Print the declared schema of the raw tables",
		Long: `Print the declared Arrow schema of one or all raw tables.

--ddl renders the warehouse DDL with day partitioning and clustering instead.
--contract checks the declared schema of the contract's table against a
consumer contract and fails when it does not satisfy it.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchema(cmd.OutOrStdout(), args, options)
		},
	}

	cmd.Flags().BoolVar(&options.DDL, "ddl", false, "Print warehouse DDL")
	cmd.Flags().StringVar(&options.Dataset, "dataset", options.Dataset, "Dataset qualifying the DDL table names")
	cmd.Flags().StringVar(&options.Contract, "contract", "", "Validate against a consumer contract file")
	return cmd
}

func runSchema(w io.Writer, args []string, options *SchemaOptions) error {
	if options.Contract != "" {
		c, err := schema.LoadContract(options.Contract)
		if err != nil {
			return err
		}
		result, err := c.Check()
		if err != nil {
			return err
		}
		fmt.Fprintln(w, schema.PrintValidationResult(result))
		if !result.Valid {
			return fmt.Errorf("declared schema of %s does not satisfy %s", c.Table, options.Contract)
		}
		return nil
	}

	tables := schema.Tables()
	if len(args) == 1 {
		t, err := schema.Lookup(args[0])
		if err != nil {
			return err
		}
		tables = []schema.Table{t}
	}

	for i, t := range tables {
		if i > 0 {
			fmt.Fprintln(w)
		}
		if options.DDL {
			fmt.Fprint(w, schema.DDL(options.Dataset, t))
			continue
		}
		fmt.Fprintf(w, "Table: %s\n", t.Name)
		fmt.Fprint(w, schema.SchemaToString(t.Schema))
	}
	return nil
}
