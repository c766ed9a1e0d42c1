// airdata-db administers the measurements database: schema setup, status,
// CSV import and destructive maintenance.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lzajac/airdata/internal/config"
	"github.com/lzajac/airdata/internal/store"
)

var (
	csvPath string
	force   bool
)

var rootCmd = &cobra.Command{
	Use:   "airdata-db",
	Short: "Air-quality measurements database administration",
	Long: `Manages the measurements table used by the collector and the REST API:
schema creation, status reporting, CSV audit-file import and table clearing.`,
	SilenceUsage: true,
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Create the schema and show status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, st *store.Store) error {
			if err := st.EnsureSchema(ctx); err != nil {
				return fmt.Errorf("create schema: %w", err)
			}
			fmt.Println("schema ready")
			return printStatus(ctx, st)
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show row count and datetime range",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(printStatus)
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify database connectivity",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, st *store.Store) error {
			if err := st.Ping(ctx); err != nil {
				return fmt.Errorf("database unreachable: %w", err)
			}
			fmt.Println("database connection successful")
			return nil
		})
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Import measurements from a CSV audit file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		path := csvPath
		if path == "" {
			path = cfg.CSVFile
		}
		return withStore(func(ctx context.Context, st *store.Store) error {
			result, err := st.MigrateCSVFile(ctx, path, cfg.InstallationID, true)
			if err != nil {
				return fmt.Errorf("migrate %s: %w", path, err)
			}
			fmt.Printf("imported %d rows (%d duplicates skipped, %d errors skipped)\n",
				result.Imported, result.Duplicates, result.Skipped)
			return nil
		})
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all measurements",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !force && !confirm("Are you sure you want to clear all data? (yes/no): ") {
			fmt.Println("clear operation cancelled")
			return nil
		}
		return withStore(func(ctx context.Context, st *store.Store) error {
			if err := st.Truncate(ctx); err != nil {
				return fmt.Errorf("clear table: %w", err)
			}
			fmt.Println("table cleared")
			return nil
		})
	},
}

func withStore(fn func(ctx context.Context, st *store.Store) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	st, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer st.Close()

	return fn(ctx, st)
}

func printStatus(ctx context.Context, st *store.Store) error {
	info, err := st.Info(ctx)
	if err != nil {
		return fmt.Errorf("table info: %w", err)
	}
	fmt.Printf("total records: %d\n", info.RowCount)
	if info.FirstRecord != nil {
		fmt.Printf("first record:  %s\n", info.FirstRecord.Format(time.RFC3339))
		fmt.Printf("last record:   %s\n", info.LastRecord.Format(time.RFC3339))
	}
	return nil
}

func confirm(prompt string) bool {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(answer), "yes")
}

func main() {
	migrateCmd.Flags().StringVar(&csvPath, "csv", "", "CSV file path (defaults to CSV_FILE)")
	clearCmd.Flags().BoolVar(&force, "force", false, "skip the confirmation prompt")

	rootCmd.AddCommand(setupCmd, statusCmd, checkCmd, migrateCmd, clearCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
