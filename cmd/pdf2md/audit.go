// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/pdf2md/internal/audit"
)

var auditCmd = &cobra.Command{
	Use:   "audit [markdown files or directories...]",
	Short: "Check converted Markdown for broken or duplicated images",
	Long: `Audit parses converted Markdown files and checks their images: every local
image must exist on disk, appear once, and every file in <stem>_images/ must
be referenced. Without arguments the configured output directory is audited.`,
	RunE: runAudit,
}

func init() {
	auditCmd.Flags().BoolP("verbose", "v", false, "list every problem image")
	rootCmd.AddCommand(auditCmd)
}

func runAudit(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		args = []string{cfg.Conversion.OutputDir}
	}

	var reports []audit.Report
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return fmt.Errorf("checking %s: %w", arg, err)
		}
		if info.IsDir() {
			rs, err := audit.Dir(arg)
			if err != nil {
				return err
			}
			reports = append(reports, rs...)
			continue
		}
		r, err := audit.File(arg)
		if err != nil {
			return err
		}
		reports = append(reports, r)
	}

	out := cmd.OutOrStdout()
	if len(reports) == 0 {
		fmt.Fprintln(out, "No Markdown files found")
		return nil
	}
	fmt.Fprintln(out, auditTable(reports))

	verbose, _ := cmd.Flags().GetBool("verbose")
	bad := 0
	for _, r := range reports {
		if r.OK() {
			continue
		}
		bad++
		if verbose {
			for _, d := range r.Missing {
				fmt.Fprintf(out, "%s: missing %s\n", r.Path, d)
			}
			for _, d := range r.Duplicates {
				fmt.Fprintf(out, "%s: duplicate %s\n", r.Path, d)
			}
			for _, d := range r.Orphans {
				fmt.Fprintf(out, "%s: unreferenced %s\n", r.Path, d)
			}
		}
	}
	if bad > 0 {
		return fmt.Errorf("%d of %d documents have image problems", bad, len(reports))
	}
	return nil
}

func auditTable(reports []audit.Report) string {
	headers := []string{"Document", "Pages", "Images", "Missing", "Duplicates", "Unreferenced"}
	aligns := []columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight}
	rows := make([][]string, 0, len(reports))
	for _, r := range reports {
		rows = append(rows, []string{
			strings.TrimSuffix(filepath.Base(r.Path), filepath.Ext(r.Path)),
			strconv.Itoa(r.Meta.Pages),
			strconv.Itoa(len(r.Images)),
			strconv.Itoa(len(r.Missing)),
			strconv.Itoa(len(r.Duplicates)),
			strconv.Itoa(len(r.Orphans)),
		})
	}
	return renderTable(headers, rows, aligns)
}
