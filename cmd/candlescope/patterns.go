package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"text/tabwriter"

	"github.com/newthinker/candlescope/internal/app"
	"github.com/newthinker/candlescope/internal/browse"
	"github.com/newthinker/candlescope/internal/classify"
	"github.com/newthinker/candlescope/internal/core"
	"github.com/newthinker/candlescope/internal/logger"
	"github.com/newthinker/candlescope/internal/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var patternsOpts struct {
	output  string
	filter  browse.Filter
	sort    string
	dir     string
	page    int
	size    int
	refresh bool
}

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "List detected patterns across the configured symbols",
	RunE:  runPatterns,
}

func init() {
	f := patternsCmd.Flags()
	f.StringVarP(&patternsOpts.output, "output", "o", "table", "output format: table, json or yaml")
	f.StringVar(&patternsOpts.filter.Symbol, "symbol", "", "only this symbol")
	f.StringVar(&patternsOpts.filter.Pattern, "pattern", "", "only this pattern name")
	f.StringVar(&patternsOpts.filter.Timeframe, "timeframe", "", "only this timeframe")
	f.StringVar(&patternsOpts.sort, "sort", string(table.SortTimestamp), "sort column: timestamp, confidence or pattern")
	f.StringVar(&patternsOpts.dir, "dir", string(table.Desc), "sort direction: asc or desc")
	f.IntVar(&patternsOpts.page, "page", 1, "page number")
	f.IntVar(&patternsOpts.size, "page-size", 0, "rows per page (default from config)")
	f.BoolVar(&patternsOpts.refresh, "refresh", false, "bypass cached results")
	rootCmd.AddCommand(patternsCmd)
}

// patternRow is the printed form of a pattern.
type patternRow struct {
	Symbol     string `json:"symbol" yaml:"symbol"`
	Pattern    string `json:"pattern" yaml:"pattern"`
	Sentiment  string `json:"sentiment" yaml:"sentiment"`
	Timeframe  string `json:"timeframe" yaml:"timeframe"`
	Detected   string `json:"detected" yaml:"detected"`
	Confidence string `json:"confidence" yaml:"confidence"`
}

type patternListing struct {
	Rows       []patternRow `json:"patterns" yaml:"patterns"`
	Page       int          `json:"page" yaml:"page"`
	TotalPages int          `json:"total_pages" yaml:"total_pages"`
	Total      int          `json:"total" yaml:"total"`
	Stats      browse.Stats `json:"stats" yaml:"stats"`
}

func runPatterns(cmd *cobra.Command, args []string) error {
	log := logger.Must(debug)
	defer log.Sync()

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}
	if patternsOpts.size == 0 {
		patternsOpts.size = cfg.Server.PageSize
	}

	a, err := app.New(cfg, log, app.Options{})
	if err != nil {
		return fmt.Errorf("creating app: %w", err)
	}
	defer a.Close()

	ctx := cmd.Context()
	var all []core.Pattern
	if patternsOpts.refresh {
		all, err = a.Browser().Refresh(ctx)
	} else {
		all, err = a.Browser().Patterns(ctx)
	}
	if err != nil {
		return fmt.Errorf("loading patterns: %w", err)
	}

	state := table.FromQuery(url.Values{
		"sort": {patternsOpts.sort},
		"dir":  {patternsOpts.dir},
		"page": {strconv.Itoa(patternsOpts.page)},
	}, patternsOpts.size)

	return writePatterns(cmd.OutOrStdout(), patternsOpts.output, buildListing(all, patternsOpts.filter, state))
}

func buildListing(all []core.Pattern, filter browse.Filter, state table.State) patternListing {
	filtered := filter.Apply(all)
	page := state.Apply(filtered)

	rows := make([]patternRow, 0, len(page.Items))
	for _, p := range page.Items {
		rows = append(rows, patternRow{
			Symbol:     p.Symbol,
			Pattern:    p.Pattern,
			Sentiment:  string(classify.SentimentOf(p.Pattern)),
			Timeframe:  p.Timeframe,
			Detected:   classify.FormatTimestamp(p.Timestamp),
			Confidence: classify.Percent(p.Confidence),
		})
	}
	return patternListing{
		Rows:       rows,
		Page:       page.Number,
		TotalPages: page.TotalPages,
		Total:      page.Total,
		Stats:      browse.StatsOf(filtered),
	}
}

func writePatterns(w io.Writer, format string, l patternListing) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(l)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(l); err != nil {
			return err
		}
		return enc.Close()
	case "table", "":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "SYMBOL\tPATTERN\tSENTIMENT\tTIMEFRAME\tDETECTED\tCONFIDENCE")
		for _, r := range l.Rows {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				r.Symbol, r.Pattern, r.Sentiment, r.Timeframe, r.Detected, r.Confidence)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		_, err := fmt.Fprintf(w, "\npage %d of %d (%d patterns)\n", l.Page, l.TotalPages, l.Total)
		return err
	default:
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown output format %q", format))
	}
}
