package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/bottledcode/atlas-db/atlas/storage"
	"github.com/bottledcode/atlas-db/atlas/tables"
	"github.com/bottledcode/atlas-db/atlas/tablestore"
)

var (
	waitTimeout time.Duration
	verifyCopy  bool
	dumpPage    int
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap the data directory",
	Long:  `Create the schema in the data directory (unless memory-only) and activate the backend engine.`,
	Args:  cobra.NoArgs,
	RunE: withStorage(func(cmd *cobra.Command, args []string, h *storage.Handle) error {
		cfg := h.Config()
		rt := h.Runtime()
		fmt.Printf("Data Directory: %s\n", cfg.DataDir)
		fmt.Printf("Schema: %s\n", rt.Location())
		backend := rt.Backend()
		if backend == "" {
			backend = "none"
		}
		fmt.Printf("Backend: %s\n", backend)
		fmt.Printf("Tables: %d\n", len(rt.Tables()))
		return printSizes(rt)
	}),
}

var createCmd = &cobra.Command{
	Use:   "create NODE TABLE:ATTR[,ATTR...]...",
	Short: "Create a node's tables",
	Long: `Create tables for a node and wait for them to be ready. Each table is
given as its logical name followed by its attributes, the first being the key:

  atlas-tables create node1 accounts:id,owner,balance audit:seq,entry`,
	Args: cobra.MinimumNArgs(2),
	RunE: withStorage(func(cmd *cobra.Command, args []string, h *storage.Handle) error {
		specs := make([]tables.TableSpec, 0, len(args)-1)
		for _, arg := range args[1:] {
			spec, err := parseTableSpec(arg)
			if err != nil {
				return err
			}
			specs = append(specs, spec)
		}

		names, err := tables.NewManager(h).EnsureNodeTables(cmd.Context(), args[0], specs, waitTimeout)
		for _, name := range names {
			fmt.Println(name)
		}
		return err
	}),
}

var tablesCmd = &cobra.Command{
	Use:   "tables [NODE]",
	Short: "List tables",
	Args:  cobra.MaximumNArgs(1),
	RunE: withStorage(func(cmd *cobra.Command, args []string, h *storage.Handle) error {
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TABLE\tNODE\tLOGICAL")

		if len(args) == 1 {
			for _, key := range tables.NewManager(h).NodeTables(args[0]) {
				fmt.Fprintf(w, "%s\t%s\t%s\n", key, key.Node, key.Logical)
			}
			return w.Flush()
		}

		for _, name := range h.Runtime().Tables() {
			key, ok := tables.ParseConcreteName(name)
			if !ok {
				fmt.Fprintf(w, "%s\t-\t-\n", name)
				continue
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", name, key.Node, key.Logical)
		}
		return w.Flush()
	}),
}

var infoCmd = &cobra.Command{
	Use:   "info TABLE",
	Short: "Show a table's definition and size",
	Args:  cobra.ExactArgs(1),
	RunE: withStorage(func(cmd *cobra.Command, args []string, h *storage.Handle) error {
		rt := h.Runtime()
		def, err := rt.TableInfo(args[0])
		if err != nil {
			return err
		}
		rows, err := rt.Count(cmd.Context(), def.Name)
		if err != nil {
			return err
		}

		fmt.Printf("Table: %s\n", def.Name)
		fmt.Printf("Attributes: %s\n", strings.Join(def.Attributes, ", "))
		fmt.Printf("Storage: %s\n", def.Storage)
		fmt.Printf("Created: %s\n", def.CreatedAt.Format(time.RFC3339))
		fmt.Printf("Rows: %d\n", rows)
		return printSizes(rt)
	}),
}

// printSizes reports how much disk the runtime's stores take
func printSizes(rt *tablestore.Runtime) error {
	rows, catalog, err := rt.Size()
	if err != nil {
		return err
	}
	if rt.Backend() == "" {
		fmt.Printf("Size: %s\n", humanize.Bytes(uint64(catalog)))
		return nil
	}
	fmt.Printf("Size: %s (rows) + %s (catalog)\n", humanize.Bytes(uint64(rows)), humanize.Bytes(uint64(catalog)))
	return nil
}

var putCmd = &cobra.Command{
	Use:   "put TABLE FIELD...",
	Short: "Write one row",
	Long:  `Write one row of string fields, in attribute order. The first field is the key.`,
	Args:  cobra.MinimumNArgs(2),
	RunE: withStorage(func(cmd *cobra.Command, args []string, h *storage.Handle) error {
		fields := make([]any, 0, len(args)-1)
		for _, f := range args[1:] {
			fields = append(fields, f)
		}
		return h.Runtime().Write(cmd.Context(), tablestore.Record{Table: args[0], Fields: fields})
	}),
}

var dumpCmd = &cobra.Command{
	Use:   "dump TABLE",
	Short: "Print every row of a table",
	Args:  cobra.ExactArgs(1),
	RunE: withStorage(func(cmd *cobra.Command, args []string, h *storage.Handle) error {
		tx, err := h.Runtime().Begin(false)
		if err != nil {
			return err
		}
		defer tx.Discard()

		pages := tx.Pages(args[0], dumpPage)
		for pages.Next(cmd.Context()) {
			for _, rec := range pages.Page() {
				parts := make([]string, len(rec.Fields))
				for i, f := range rec.Fields {
					parts[i] = fmt.Sprint(f)
				}
				fmt.Println(strings.Join(parts, "\t"))
			}
		}
		return pages.Err()
	}),
}

var clearCmd = &cobra.Command{
	Use:   "clear NODE TABLE",
	Short: "Remove every row of a node's table",
	Args:  cobra.ExactArgs(2),
	RunE: withStorage(func(cmd *cobra.Command, args []string, h *storage.Handle) error {
		return tables.NewManager(h).ClearTable(cmd.Context(), args[0], args[1])
	}),
}

var copyCmd = &cobra.Command{
	Use:   "copy SOURCE TARGET",
	Short: "Duplicate a table",
	Long:  `Copy every row of SOURCE into TARGET, creating TARGET with SOURCE's attributes if needed.`,
	Args:  cobra.ExactArgs(2),
	RunE: withStorage(func(cmd *cobra.Command, args []string, h *storage.Handle) error {
		if err := tables.NewCopier(h).Duplicate(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		if verifyCopy {
			return verifyDigests(cmd, h, args[0], args[1])
		}
		return nil
	}),
}

var cloneCmd = &cobra.Command{
	Use:   "clone FROM_NODE TO_NODE",
	Short: "Duplicate every table of a node to another node",
	Args:  cobra.ExactArgs(2),
	RunE: withStorage(func(cmd *cobra.Command, args []string, h *storage.Handle) error {
		cloned, err := tables.NewCopier(h).CloneNode(cmd.Context(), args[0], args[1])
		for _, name := range cloned {
			fmt.Println(name)
		}
		return err
	}),
}

var digestCmd = &cobra.Command{
	Use:   "digest TABLE...",
	Short: "Print the content digest of tables",
	Args:  cobra.MinimumNArgs(1),
	RunE: withStorage(func(cmd *cobra.Command, args []string, h *storage.Handle) error {
		for _, name := range args {
			sum, err := h.Runtime().Digest(cmd.Context(), name)
			if err != nil {
				return err
			}
			fmt.Printf("%s  %s\n", sum, name)
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(initCmd, createCmd, tablesCmd, infoCmd, putCmd, dumpCmd, clearCmd, copyCmd, cloneCmd, digestCmd)

	createCmd.Flags().DurationVar(&waitTimeout, "timeout", 10*time.Second, "How long to wait for the tables to be ready")
	copyCmd.Flags().BoolVar(&verifyCopy, "verify", false, "Compare source and target digests after copying")
	dumpCmd.Flags().IntVar(&dumpPage, "page-size", tables.PageSize, "Rows read per page")
}

// parseTableSpec parses "name:attr1,attr2"
func parseTableSpec(arg string) (tables.TableSpec, error) {
	name, attrs, ok := strings.Cut(arg, ":")
	if !ok || name == "" || attrs == "" {
		return tables.TableSpec{}, fmt.Errorf("invalid table %q, expected NAME:ATTR[,ATTR...]", arg)
	}
	return tables.TableSpec{Name: name, Attributes: strings.Split(attrs, ",")}, nil
}

func verifyDigests(cmd *cobra.Command, h *storage.Handle, source, target string) error {
	rt := h.Runtime()
	want, err := rt.Digest(cmd.Context(), source)
	if err != nil {
		return err
	}
	got, err := rt.Digest(cmd.Context(), target)
	if err != nil {
		return err
	}
	if want != got {
		return fmt.Errorf("digest mismatch: %s has %s, %s has %s", source, want, target, got)
	}
	fmt.Printf("%s  %s\n", got, target)
	return nil
}
