// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/pdiddy/pdf2md/internal/history"
	"github.com/pdiddy/pdf2md/pkg/types"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent conversions",
	Long: `History lists recorded conversions, newest first: file name, conversion
time, status and image counts. Use --prune to delete old entries.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	f := historyCmd.Flags()
	f.IntP("limit", "n", 20, "maximum number of entries to show")
	f.String("status", "", "only show entries with this status: converted or failed")
	f.String("document", "", "only show documents whose name contains this text")
	f.Duration("since", 0, "only show entries newer than this duration, e.g. 72h")
	f.Bool("totals", false, "print totals over the whole history")
	f.Duration("prune", 0, "delete entries older than this duration (0 keeps everything)")
	f.Bool("clear", false, "delete all entries")

	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := history.NewStore(cfg.History)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	f := cmd.Flags()

	clearAll, _ := f.GetBool("clear")
	prune, _ := f.GetDuration("prune")
	if clearAll || prune > 0 {
		var cutoff time.Time
		if !clearAll {
			cutoff = time.Now().Add(-prune)
		}
		n, err := store.Prune(ctx, cutoff)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Deleted %d history entries\n", n)
		return nil
	}

	if totals, _ := f.GetBool("totals"); totals {
		t, err := store.Totals(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s batches, %s documents: %s converted, %s failed, %s images\n",
			humanize.Comma(int64(t.Batches)), humanize.Comma(int64(t.Documents)),
			humanize.Comma(int64(t.Converted)), humanize.Comma(int64(t.Failed)),
			humanize.Comma(int64(t.Images)))
		return nil
	}

	q := history.Query{}
	q.Limit, _ = f.GetInt("limit")
	status, _ := f.GetString("status")
	q.Status = types.ConversionStatus(status)
	q.Document, _ = f.GetString("document")
	if since, _ := f.GetDuration("since"); since > 0 {
		q.Since = time.Now().Add(-since)
	}

	entries, err := store.Recent(ctx, q)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "No conversions recorded")
		return nil
	}
	fmt.Fprintln(out, historyTable(entries, time.Now(), shouldColorize(out)))
	return nil
}

func historyTable(entries []history.Entry, now time.Time, colorize bool) string {
	headers := []string{"Document", "Converted", "Status", "Pages", "Images", "Source", "Error"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		imageSource := string(e.ImageSource)
		if e.ImageSource == types.ImagesNone {
			imageSource = "-"
		}
		rows = append(rows, []string{
			e.ID,
			humanize.RelTime(e.ConvertedAt, now, "ago", "from now"),
			statusLabel(e.Status, colorize),
			humanize.Comma(int64(e.Pages)),
			fmt.Sprintf("%d (%d appended)", e.Images, e.Appended),
			imageSource,
			truncate(e.Error, 48),
		})
	}
	return renderTable(headers, rows, aligns)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
