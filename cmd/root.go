package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/fusiondata/datakit/internal"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "datakit",
	Short: "Load and save tabular data across pipeline backends",
	Long:  "Load and save tabular data across pipeline backends defined in a dataset catalog",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		verbose, _ := cmd.Flags().GetBool("verbose")
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

func loadCatalog(cmd *cobra.Command) (*internal.Catalog, error) {
	path, err := cmd.Flags().GetString("catalog")
	if err != nil {
		return nil, err
	}
	return internal.LoadCatalog(path)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the datasets defined in the catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, err := loadCatalog(cmd)
		if err != nil {
			return err
		}
		for _, name := range catalog.Names() {
			fmt.Println(name)
		}
		return nil
	},
}

var describeCmd = &cobra.Command{
	Use:   "describe [dataset]",
	Short: "Show a dataset's configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, err := loadCatalog(cmd)
		if err != nil {
			return err
		}
		ds, err := catalog.Get(args[0])
		if err != nil {
			return err
		}
		desc := ds.Describe()
		keys := make([]string, 0, len(desc))
		for k := range desc {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("%s: %s\n", k, desc[k])
		}
		return nil
	},
}

var existsCmd = &cobra.Command{
	Use:   "exists [dataset]",
	Short: "Check whether a dataset's data exists",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, err := loadCatalog(cmd)
		if err != nil {
			return err
		}
		ds, err := catalog.Get(args[0])
		if err != nil {
			return err
		}
		ok, err := ds.Exists(cmd.Context())
		if err != nil {
			return err
		}
		if ok {
			color.Green("%s exists", args[0])
		} else {
			color.Yellow("%s does not exist", args[0])
		}
		return nil
	},
}

var headCmd = &cobra.Command{
	Use:   "head [dataset]",
	Short: "Preview the first rows of a dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rows, err := cmd.Flags().GetInt("rows")
		if err != nil {
			return err
		}
		catalog, err := loadCatalog(cmd)
		if err != nil {
			return err
		}
		ds, err := catalog.Get(args[0])
		if err != nil {
			return err
		}
		data, err := ds.Load(cmd.Context())
		if err != nil {
			return err
		}

		for _, frame := range data.Frames() {
			printFrame("", frame, rows)
		}
		tables := data.Tables()
		names := make([]string, 0, len(tables))
		for name := range tables {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			for _, frame := range tables[name] {
				printFrame(name, frame, rows)
			}
		}
		return nil
	},
}

var copyCmd = &cobra.Command{
	Use:   "copy [source] [destination]",
	Short: "Load a dataset and save it into another",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, err := loadCatalog(cmd)
		if err != nil {
			return err
		}
		src, err := catalog.Get(args[0])
		if err != nil {
			return err
		}
		dst, err := catalog.Get(args[1])
		if err != nil {
			return err
		}

		data, err := src.Load(cmd.Context())
		if err != nil {
			return fmt.Errorf("load %s: %w", args[0], err)
		}
		if err := dst.Save(cmd.Context(), data); err != nil {
			return fmt.Errorf("save %s: %w", args[1], err)
		}
		copied := internal.Pluralize(len(data.Frames()), "frame")
		if tables := data.Tables(); tables != nil {
			copied = internal.Pluralize(len(tables), "table")
		}
		color.Green("copied %s from %s to %s", copied, args[0], args[1])
		return nil
	},
}

func printFrame(name string, frame *internal.Frame, limit int) {
	if name != "" {
		fmt.Println(name)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)

	header := table.Row{}
	for _, col := range frame.Columns() {
		header = append(header, col)
	}
	t.AppendHeader(header)

	n := frame.NumRows()
	if limit > 0 && limit < n {
		n = limit
	}
	for i := 0; i < n; i++ {
		row := table.Row{}
		for _, v := range frame.Row(i) {
			row = append(row, v)
		}
		t.AppendRow(row)
	}
	t.Render()
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	rootCmd.PersistentFlags().String("catalog", "catalog.yaml", "Dataset catalog file")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable debug logging")
	headCmd.Flags().Int("rows", 10, "Rows to preview")

	rootCmd.AddCommand(listCmd, describeCmd, existsCmd, headCmd, copyCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
