package main

import (
	"github.com/docalist/migration-prisme-2015/internal/migrate"
	"github.com/docalist/migration-prisme-2015/internal/report"
	"github.com/docalist/migration-prisme-2015/internal/util"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete the posts of the experimental docalist databases",
	Long: `Delete all the posts whose post_type starts with the probe prefix (dcl)
but not with the legacy prefix (dclref).

These posts were created by experimental versions of docalist and are not
migrated. Without --confirm, lists the post types and counts that would be
deleted.`,
	Args: cobra.NoArgs,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().Bool("confirm", false, "delete the posts")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	confirm, _ := cmd.Flags().GetBool("confirm")
	probe := GetConfigString("probe-prefix", "dcl")
	legacy := GetConfigString("legacy-prefix", "dclref")

	var journal *report.EventLogger
	if confirm {
		journal = openJournal("cleanup")
	}
	defer journal.Close()

	tool, err := migrate.NewCleanup(db, probe, legacy, journal)
	if err != nil {
		return err
	}

	util.InfoLog("=== Delete old dcl posts ===")

	if !confirm {
		types, err := tool.Preview(ctx)
		if err != nil {
			return err
		}
		if len(types) == 0 {
			util.SuccessLog("No post to delete")
			return nil
		}
		total := 0
		for _, tc := range types {
			util.InfoLog("  %-30s %s posts", tc.PostType, humanize.Comma(int64(tc.Count)))
			total += tc.Count
		}
		util.WarnLog("%s posts of %d post types will be deleted", humanize.Comma(int64(total)), len(types))
		confirmHint("cleanup")
		return nil
	}

	result, err := tool.Execute(ctx)
	if err != nil {
		return err
	}
	if result.Nothing() {
		util.SuccessLog("No post to delete")
		return nil
	}
	util.SuccessLog("%s posts deleted", humanize.Comma(result.Deleted))
	return nil
}
