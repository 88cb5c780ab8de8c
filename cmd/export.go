package main

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/posterintel/poster-research/internal/model"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export <session-id>",
	Short: "Export a session to an Excel workbook",
	Long:  "Writes the results, price analysis, and accounting of one research session to an .xlsx file.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("export"); err != nil {
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

		sess, err := st.GetSession(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "export")
		}
		if sess == nil {
			return eris.Errorf("session not found: %s", args[0])
		}

		file, err := buildWorkbook(sess)
		if err != nil {
			return eris.Wrap(err, "export")
		}

		out := exportOut
		if out == "" {
			out = truncateID(sess.ID) + ".xlsx"
		}
		if !strings.HasSuffix(out, ".xlsx") {
			out += ".xlsx"
		}

		if err := file.Save(out); err != nil {
			return eris.Wrapf(err, "export: write %s", out)
		}

		zap.L().Info("session exported",
			zap.String("session_id", sess.ID),
			zap.String("path", out))
		fmt.Printf("Exported session %s to %s.\n", truncateID(sess.ID), out)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output path (default <session-id>.xlsx)")
	rootCmd.AddCommand(exportCmd)
}

// buildWorkbook renders a session into a three-sheet workbook: ranked
// results, price analysis, and session accounting. The Prices sheet is
// only added when the session carried a price analysis.
func buildWorkbook(sess *model.Session) (*xlsx.File, error) {
	if sess.Response == nil {
		return nil, eris.New("session has no response to export")
	}
	resp := sess.Response

	file := xlsx.NewFile()

	results, err := file.AddSheet("Results")
	if err != nil {
		return nil, eris.Wrap(err, "add sheet")
	}
	writeResultsSheet(results, resp.Results)

	if resp.Analysis != nil {
		prices, err := file.AddSheet("Prices")
		if err != nil {
			return nil, eris.Wrap(err, "add sheet")
		}
		writePricesSheet(prices, resp.Analysis)
	}

	session, err := file.AddSheet("Session")
	if err != nil {
		return nil, eris.Wrap(err, "add sheet")
	}
	writeSessionSheet(session, sess)

	return file, nil
}

func writeResultsSheet(sheet *xlsx.Sheet, results []model.SearchResult) {
	header := sheet.AddRow()
	for _, h := range []string{
		"Title", "URL", "Domain", "Seller", "Tier",
		"Price", "Currency", "Match Score", "Verified", "Source",
	} {
		header.AddCell().Value = h
	}

	for _, r := range results {
		row := sheet.AddRow()
		row.AddCell().Value = r.Title
		row.AddCell().Value = r.URL
		row.AddCell().Value = r.Domain
		row.AddCell().Value = r.SellerName
		if r.KnownSeller {
			row.AddCell().SetInt(r.SellerTier)
		} else {
			row.AddCell().Value = ""
		}
		if r.HasPrice() {
			row.AddCell().SetFloat(r.Price.Value)
			row.AddCell().Value = r.Price.Currency
		} else {
			row.AddCell().Value = r.PriceText
			row.AddCell().Value = ""
		}
		if r.Verification.MatchScore > 0 {
			row.AddCell().SetFloat(r.Verification.MatchScore)
		} else {
			row.AddCell().Value = ""
		}
		row.AddCell().SetBool(r.Verification.Verified)
		row.AddCell().Value = string(r.Source)
	}
}

func writePricesSheet(sheet *xlsx.Sheet, analysis *model.Analysis) {
	p := message.NewPrinter(language.English)

	addBand := func(label string, band *model.PriceBand) {
		if band == nil {
			return
		}
		row := sheet.AddRow()
		row.AddCell().Value = label
		row.AddCell().Value = p.Sprintf("%.2f", band.Low)
		row.AddCell().Value = p.Sprintf("%.2f", band.High)
		row.AddCell().Value = p.Sprintf("%.2f", band.Average)
		row.AddCell().SetInt(band.Count)
		row.AddCell().Value = strings.Join(band.Currencies, ", ")
	}

	bandHeader := sheet.AddRow()
	for _, h := range []string{"Band", "Low", "High", "Average", "Count", "Currencies"} {
		bandHeader.AddCell().Value = h
	}
	addBand("Current listings", analysis.PriceSummary.CurrentListings)
	addBand("Sold prices", analysis.PriceSummary.SoldPrices)

	sheet.AddRow()

	pointHeader := sheet.AddRow()
	for _, h := range []string{"Value", "Currency", "Status", "Source", "URL"} {
		pointHeader.AddCell().Value = h
	}
	for _, pt := range analysis.PriceSummary.AllPrices {
		row := sheet.AddRow()
		row.AddCell().SetFloat(pt.Value)
		row.AddCell().Value = pt.Currency
		row.AddCell().Value = string(pt.Status)
		row.AddCell().Value = pt.Source
		row.AddCell().Value = pt.URL
	}
}

func writeSessionSheet(sheet *xlsx.Sheet, sess *model.Session) {
	resp := sess.Response

	addPair := func(key, value string) {
		row := sheet.AddRow()
		row.AddCell().Value = key
		row.AddCell().Value = value
	}

	addPair("Session ID", sess.ID)
	addPair("Status", string(sess.Status))
	addPair("Created", sess.CreatedAt.Format("2006-01-02 15:04:05"))
	addPair("Image URL", resp.ImageURL)
	addPair("Results", fmt.Sprintf("%d", resp.Stats.ResultCount))
	addPair("Credits used", fmt.Sprintf("%d", resp.Stats.CreditsUsed))
	addPair("Cost (USD)", fmt.Sprintf("%.4f", resp.Stats.CostUSD))
	addPair("Elapsed (s)", fmt.Sprintf("%.1f", resp.Stats.ElapsedSeconds))

	if c := consensusLine(resp); c != "" {
		addPair("Consensus", c)
	}
	if v := resp.Verification; v != nil {
		addPair("Verification", fmt.Sprintf("%d attempted, %d verified, %d same image",
			v.Attempted, v.Verified, v.SameImage))
	}

	if len(resp.Stages) == 0 {
		return
	}

	sheet.AddRow()
	stageHeader := sheet.AddRow()
	for _, h := range []string{"Stage", "Status", "Duration (ms)", "Error"} {
		stageHeader.AddCell().Value = h
	}
	for _, st := range resp.Stages {
		row := sheet.AddRow()
		row.AddCell().Value = st.Name
		row.AddCell().Value = string(st.Status)
		row.AddCell().SetInt(int(st.DurationMS))
		row.AddCell().Value = st.Error
	}
}

// consensusLine flattens the consensus fields into one display string.
func consensusLine(resp *model.SearchResponse) string {
	if resp.Analysis == nil || resp.Analysis.Consensus.Empty() {
		return ""
	}
	var parts []string
	if f := resp.Analysis.Consensus.Artist; f != nil {
		parts = append(parts, "artist: "+f.Value)
	}
	if f := resp.Analysis.Consensus.Date; f != nil {
		parts = append(parts, "date: "+f.Value)
	}
	if f := resp.Analysis.Consensus.Technique; f != nil {
		parts = append(parts, "technique: "+f.Value)
	}
	return strings.Join(parts, "; ")
}
