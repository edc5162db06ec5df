package main

import (
	"os"
	"time"

	"github.com/docalist/migration-prisme-2015/internal/migrate"
	"github.com/docalist/migration-prisme-2015/internal/report"
	"github.com/docalist/migration-prisme-2015/internal/schema"
	"github.com/docalist/migration-prisme-2015/internal/util"
	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var convertCmd = &cobra.Command{
	Use:   "convert [post_type]",
	Short: "Convert the records of a legacy dclref* database",
	Long: `Convert all the posts of a legacy post type (dclrefxxx) to the new
docalist-data format and post type (dbxxx).

Without argument, lists the legacy post types that can be converted. With a
post type, checks that it can be converted: it must start with the legacy
prefix, have posts, and the destination post type must be empty.

With --confirm, posts are loaded by batches in id order, upgraded, and only
the changed columns are written back along with the new post type.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConvert,
}

func init() {
	rootCmd.AddCommand(convertCmd)
	convertCmd.Flags().Bool("confirm", false, "convert the posts")
}

func runConvert(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	catalog, err := schema.DefaultCatalog()
	if err != nil {
		return err
	}

	confirm, _ := cmd.Flags().GetBool("confirm")
	cfg := migrate.ConversionConfig{
		LegacyPrefix:  GetConfigString("legacy-prefix", "dclref"),
		CurrentPrefix: GetConfigString("current-prefix", "db"),
		BatchSize:     GetConfigInt("batch-size", migrate.DefaultBatchSize),
		ProgressEvery: GetConfigInt("progress-every", migrate.DefaultProgressEvery),
	}

	var journal *report.EventLogger
	if confirm && len(args) == 1 {
		journal = openJournal("convert")
	}
	defer journal.Close()

	tool, err := migrate.NewConversion(db, catalog, cfg, journal)
	if err != nil {
		return err
	}

	util.InfoLog("=== Migration Prisme 2015 ===")

	if len(args) == 0 {
		choices, err := tool.Choices(ctx)
		if err != nil {
			return err
		}
		if len(choices) == 0 {
			util.SuccessLog("No %s* post type, nothing to convert", cfg.LegacyPrefix)
			return nil
		}
		util.InfoLog("Legacy databases:")
		for _, c := range choices {
			util.InfoLog("  %-25s %10s posts -> %s", c.PostType, humanize.Comma(int64(c.Count)), tool.Destination(c.PostType))
		}
		util.InfoLog("")
		util.InfoLog("To convert one of them: mp15 convert <post_type> --confirm")
		return nil
	}

	postType := args[0]
	count, err := tool.Validate(ctx, postType)
	if err != nil {
		return err
	}

	if !confirm {
		util.InfoLog("%s posts of type %s will be converted to %s (batches of %d)",
			humanize.Comma(int64(count)), postType, tool.Destination(postType), cfg.BatchSize)
		confirmHint("convert " + postType)
		return nil
	}

	var bar *progressbar.ProgressBar
	if util.IsTerminal(os.Stdout.Fd()) && !util.IsQuiet() {
		bar = progressbar.NewOptions(count,
			progressbar.OptionSetDescription("Converting"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("posts"),
			progressbar.OptionThrottle(200*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
	}

	result, err := tool.Convert(ctx, postType, func(done int) {
		if bar != nil {
			bar.Set(done)
		} else {
			util.InfoLog("Converting: %d/%d", done, count)
		}
	})
	if bar != nil {
		bar.Finish()
	}

	util.InfoLog("")
	util.InfoLog("Converted: %s/%s posts to %s in %s", humanize.Comma(int64(result.Converted)),
		humanize.Comma(int64(result.Expected)), result.Destination, result.Duration.Round(time.Millisecond))
	if result.Failed > 0 {
		util.WarnLog("Skipped: %d posts could not be decoded and keep the type %s", result.Failed, postType)
	}
	if result.Anomalies > 0 {
		util.WarnLog("Anomalies: %d updates did not affect exactly one row", result.Anomalies)
	}
	if err != nil {
		return err
	}
	util.SuccessLog("Done")
	return nil
}
