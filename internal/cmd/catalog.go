package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/astro-gateway/internal/catalog"
	"github.com/Sternrassler/astro-gateway/pkg/client"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply catalog schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			store, err := catalog.Open(cmd.Context(), cfg.Catalog.Driver, cfg.Catalog.DSN, client.Options{MaxAttempts: 1}, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			fmt.Fprintln(cmd.OutOrStdout(), "catalog schema is up to date")
			return nil
		},
	}
}

func newImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.json|->",
		Short: "Load bodies into the catalog",
		Long: `Load a JSON array of bodies into the catalog. Existing bodies with the
same id are replaced. Use - to read from stdin.

  [{"id":"2000001","name":"Ceres","kind":"dwarf","distance_au":2.77,
    "diameter_km":939.4,"discovered_at":"1801-01-01T00:00:00Z"}]`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			var in io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			var bodies []catalog.Body
			if err := json.NewDecoder(in).Decode(&bodies); err != nil {
				return fmt.Errorf("decode bodies: %w", err)
			}

			store, err := catalog.Open(cmd.Context(), cfg.Catalog.Driver, cfg.Catalog.DSN, client.Options{MaxAttempts: 1}, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Insert(cmd.Context(), bodies...); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d bodies\n", len(bodies))
			return nil
		},
	}
}
