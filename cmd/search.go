package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/posterintel/poster-research/internal/model"
)

var (
	searchImage      string
	searchQueries    []string
	searchMaxResults int
	searchParse      bool
	searchVerify     bool
	searchTitle      string
	searchArtist     string
	searchNotes      string
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Run one research session and print the result JSON",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("search"); err != nil {
			return err
		}

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		req := model.SearchRequest{
			ImageURL:   searchImage,
			Queries:    searchQueries,
			MaxResults: searchMaxResults,
			Parse:      searchParse,
			Verify:     searchVerify,
			Item: model.ItemContext{
				Title:  searchTitle,
				Artist: searchArtist,
				Notes:  searchNotes,
			},
		}

		resp, err := env.Engine.Run(ctx, req)
		if err != nil {
			return eris.Wrap(err, "research run")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchImage, "image", "", "poster image URL for visual search")
	searchCmd.Flags().StringArrayVar(&searchQueries, "query", nil, "text query (repeatable)")
	searchCmd.Flags().IntVar(&searchMaxResults, "max-results", 0, "max merged results (default from config)")
	searchCmd.Flags().BoolVar(&searchParse, "parse", false, "parse listings and build a price summary")
	searchCmd.Flags().BoolVar(&searchVerify, "verify", false, "visually re-verify top matches against the image")
	searchCmd.Flags().StringVar(&searchTitle, "title", "", "known poster title")
	searchCmd.Flags().StringVar(&searchArtist, "artist", "", "known artist")
	searchCmd.Flags().StringVar(&searchNotes, "notes", "", "free-form item notes")
	rootCmd.AddCommand(searchCmd)
}
