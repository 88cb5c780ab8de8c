package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/posterintel/poster-research/internal/model"
	"github.com/posterintel/poster-research/internal/registry"
	"github.com/posterintel/poster-research/internal/store"
)

var sellersCmd = &cobra.Command{
	Use:   "sellers",
	Short: "Manage the seller registry",
	Long:  "Commands for importing and inspecting the known-seller registry that backs result ranking.",
}

// -- sellers import --

var sellersImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import sellers into the store from a JSON or CSV file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("sellers"); err != nil {
			return err
		}

		jsonPath, _ := cmd.Flags().GetString("file")
		csvPath, _ := cmd.Flags().GetString("csv")
		if (jsonPath == "") == (csvPath == "") {
			return eris.New("exactly one of --file or --csv is required")
		}

		var (
			sellers []model.Seller
			err     error
		)
		if jsonPath != "" {
			sellers, err = registry.LoadSellersFromFile(jsonPath)
		} else {
			sellers, err = registry.LoadSellersFromCSV(csvPath)
		}
		if err != nil {
			return eris.Wrap(err, "sellers import")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		count, err := st.ImportSellers(ctx, sellers)
		if err != nil {
			return eris.Wrap(err, "sellers import")
		}

		zap.L().Info("sellers imported",
			zap.Int("count", count),
			zap.String("driver", cfg.Store.Driver))
		fmt.Printf("Imported %d sellers.\n", count)
		return nil
	},
}

// -- sellers list --

var sellersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sellers in the registry",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("sellers"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		category, _ := cmd.Flags().GetString("category")
		maxTier, _ := cmd.Flags().GetInt("max-tier")
		activeOnly, _ := cmd.Flags().GetBool("active")
		limit, _ := cmd.Flags().GetInt("limit")

		sellers, err := st.ListSellers(ctx, store.SellerFilter{
			Category:   model.SellerCategory(category),
			MaxTier:    maxTier,
			ActiveOnly: activeOnly,
			Limit:      limit,
		})
		if err != nil {
			return eris.Wrap(err, "sellers list")
		}

		if len(sellers) == 0 {
			fmt.Fprintln(os.Stderr, "No sellers found.")
			return nil
		}

		formatSellersList(os.Stdout, sellers)
		return nil
	},
}

func init() {
	sellersImportCmd.Flags().String("file", "", "path to a JSON seller registry file")
	sellersImportCmd.Flags().String("csv", "", "path to a CSV seller registry file")

	sellersListCmd.Flags().String("category", "", "filter by seller category")
	sellersListCmd.Flags().Int("max-tier", 0, "only show sellers at or below this tier (0 = all)")
	sellersListCmd.Flags().Bool("active", false, "only show active sellers")
	sellersListCmd.Flags().Int("limit", 0, "max number of sellers to display (0 = all)")

	sellersCmd.AddCommand(sellersImportCmd)
	sellersCmd.AddCommand(sellersListCmd)
	rootCmd.AddCommand(sellersCmd)
}

// formatSellersList writes a tabular seller listing to out.
func formatSellersList(out io.Writer, sellers []model.Seller) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SLUG\tNAME\tCATEGORY\tDOMAIN\tTIER\tACTIVE")
	_, _ = fmt.Fprintln(w, "----\t----\t--------\t------\t----\t------")

	for _, s := range sellers {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%t\n",
			s.Slug, s.Name, s.Category, s.Domain, s.Tier, s.Active)
	}
	_ = w.Flush()
}
