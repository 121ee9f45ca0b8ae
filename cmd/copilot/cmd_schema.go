package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"retailcopilot/internal/store"
)

// schemaCmd inspects the structured data source.
var schemaCmd = &cobra.Command{
	Use:   "schema [table]",
	Short: "Show database tables, or the columns of one table",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSchema,
}

func runSchema(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := store.Open(resolvePath(cfg.DatabasePath))
	if err != nil {
		return err
	}
	defer db.Close()

	if len(args) == 0 {
		tables, err := db.ListTables()
		if err != nil {
			return err
		}
		for _, t := range tables {
			fmt.Println(t)
		}
		return nil
	}

	cols, err := db.TableInfo(args[0])
	if err != nil {
		return err
	}
	if len(cols) == 0 {
		return fmt.Errorf("no such table: %s", args[0])
	}
	for _, c := range cols {
		var attrs []string
		if c.PK {
			attrs = append(attrs, "PK")
		}
		if c.NotNull {
			attrs = append(attrs, "NOT NULL")
		}
		suffix := ""
		if len(attrs) > 0 {
			suffix = "  [" + strings.Join(attrs, ", ") + "]"
		}
		fmt.Printf("%-24s %s%s\n", c.Name, c.Type, suffix)
	}
	return nil
}
