package main

import (
	"github.com/docalist/migration-prisme-2015/internal/migrate"
	"github.com/docalist/migration-prisme-2015/internal/report"
	"github.com/docalist/migration-prisme-2015/internal/schema"
	"github.com/docalist/migration-prisme-2015/internal/util"
	"github.com/spf13/cobra"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Import the docalist-biblio settings into docalist-data",
	Long: `Rebuild the docalist-data settings from the old docalist-biblio settings.

For each old database, a new database is created with all the registered
record types; the table and capability customizations of the old grids are
carried over to the new default grids.

The existing docalist-data settings are replaced. Without --confirm, lists
the databases that would be imported.`,
	Args: cobra.NoArgs,
	RunE: runSettings,
}

func init() {
	rootCmd.AddCommand(settingsCmd)
	settingsCmd.Flags().Bool("confirm", false, "replace the docalist-data settings")
}

func runSettings(cmd *cobra.Command, args []string) error {
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

	var journal *report.EventLogger
	if confirm {
		journal = openJournal("settings")
	}
	defer journal.Close()

	tool := migrate.NewSettingsImport(db, catalog, currentUser(), journal)

	util.InfoLog("=== Import docalist-biblio settings ===")

	legacy, err := tool.LoadLegacySettings(ctx)
	if err != nil {
		return err
	}
	if legacy == nil {
		util.SuccessLog("No docalist-biblio settings, nothing to import")
		return nil
	}

	if !confirm {
		for _, old := range legacy.Databases {
			util.InfoLog("  %-20s %s (%d types)", old.Name, old.Label, len(old.Types))
		}
		if ok, err := db.HasOption(ctx, schema.SettingsOption); err == nil && ok {
			util.WarnLog("The existing %s settings will be replaced", schema.SettingsOption)
		}
		confirmHint("settings")
		return nil
	}

	result, err := tool.Execute(ctx, legacy)
	if err != nil {
		return err
	}

	for _, d := range result.Diagnostics {
		switch d.Code {
		case migrate.DiagError:
			util.WarnLog("  %s", d)
		case migrate.DiagInfo:
			util.DebugLog("  %s", d)
		default:
			util.InfoLog("  %s", d)
		}
	}
	for _, d := range result.Settings.Databases {
		util.SuccessLog("Database %s imported (%d types)", d.Name, len(d.Types))
	}
	return nil
}
