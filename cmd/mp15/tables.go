package main

import (
	"fmt"
	"os"
	"time"

	"github.com/docalist/migration-prisme-2015/internal/migrate"
	"github.com/docalist/migration-prisme-2015/internal/remote"
	"github.com/docalist/migration-prisme-2015/internal/report"
	"github.com/docalist/migration-prisme-2015/internal/tables"
	"github.com/docalist/migration-prisme-2015/internal/util"
	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "Download the custom Prisme tables and register them",
	Long: `Download the master table of the Prisme site, then download every table
that is not read-only into the tables directory and register it in the table
manager, replacing any previous registration of the same name.

A table that cannot be downloaded keeps its previous registration; the other
tables are still processed. Without --confirm, lists the tables that would be
downloaded.`,
	Args: cobra.NoArgs,
	RunE: runTables,
}

func init() {
	rootCmd.AddCommand(tablesCmd)
	tablesCmd.Flags().Bool("confirm", false, "download and register the tables")
	tablesCmd.Flags().Duration("timeout", 30*time.Second, "timeout of each download")
}

func runTables(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	confirm, _ := cmd.Flags().GetBool("confirm")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	var journal *report.EventLogger
	if confirm {
		journal = openJournal("tables")
	}
	defer journal.Close()

	client := remote.NewClient(&remote.Config{
		BaseURL: GetConfigString("remote-url", remote.DefaultBaseURL),
		Timeout: timeout,
	})
	tool, err := migrate.NewCustomTables(client, tables.NewRegistry(db), GetConfigString("tables-dir", "tables"), journal)
	if err != nil {
		return err
	}

	util.InfoLog("=== Download Prisme custom tables ===")

	list, err := tool.List(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		util.SuccessLog("No custom table to download")
		return nil
	}

	if !confirm {
		for _, p := range tool.Preview(list) {
			note := ""
			if p.Exists {
				note = " (will be overwritten)"
			}
			util.InfoLog("  %-30s %s -> %s%s", p.Table.Name, client.URL(p.Table.Path), p.LocalPath, note)
		}
		util.InfoLog("%d tables will be downloaded", len(list))
		confirmHint("tables")
		return nil
	}

	var bar *progressbar.ProgressBar
	if util.IsTerminal(os.Stdout.Fd()) && !util.IsQuiet() {
		bar = progressbar.NewOptions(len(list),
			progressbar.OptionSetDescription("Downloading"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	result, err := tool.Execute(ctx, list, func(o migrate.TableOutcome) {
		if bar != nil {
			bar.Add(1)
		}
	})
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return err
	}

	util.InfoLog("")
	for _, o := range result.Outcomes {
		if o.Err != nil {
			util.ErrorLog("  ✗ %s: %v", o.Table.Name, o.Err)
			continue
		}
		status := "new"
		if o.Replaced {
			status = "replaced"
		}
		util.SuccessLog("  ✓ %s (%s, %s)", o.Table.Name, humanize.Bytes(uint64(o.Bytes)), status)
	}

	installed := len(result.Outcomes) - result.Failed()
	util.InfoLog("%d/%d tables installed, %s written", installed, len(result.Outcomes), humanize.Bytes(uint64(result.Bytes())))
	if failed := result.Failed(); failed > 0 {
		return fmt.Errorf("%d tables could not be installed", failed)
	}
	return nil
}
