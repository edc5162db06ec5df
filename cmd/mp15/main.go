package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/docalist/migration-prisme-2015/internal/remote"
	"github.com/docalist/migration-prisme-2015/internal/store"
	"github.com/docalist/migration-prisme-2015/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version is set at build time
	Version = "dev"

	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "mp15",
		Short: "Migration Prisme 2015 - migrate docalist-biblio data to docalist-data",
		Long: `mp15 migrates a WordPress site from the docalist-biblio plugin to docalist-data.

Run the tools in order:
  1. cleanup   delete the posts of experimental dcl* databases
  2. tables    download the custom Prisme tables
  3. settings  import the old docalist-biblio settings
  4. convert   convert the records of each dclref* database

Without --confirm a tool only shows what it would do.`,
		Version: Version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			util.SetupLogging(util.LogOptions{
				Verbose: viper.GetBool("verbose"),
				Quiet:   viper.GetBool("quiet"),
				Format:  viper.GetString("log-format"),
				File:    viper.GetString("log-file"),
			})
		},
		SilenceUsage: true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./configs/mp15.yaml)")
	flags.String("driver", store.DriverSQLite, "database driver (sqlite or mysql)")
	flags.String("dsn", "wordpress.db", "sqlite file or mysql DSN of the WordPress database")
	flags.String("table-prefix", store.DefaultTablePrefix, "WordPress table prefix")
	flags.BoolP("verbose", "v", false, "verbose output")
	flags.BoolP("quiet", "q", false, "quiet output (errors only)")
	flags.String("log-file", "", "also write logs to this file (rotated)")
	flags.String("log-format", "text", "console log format (text or json)")
	flags.String("tables-dir", "tables", "directory where downloaded tables are stored")
	flags.String("remote-url", remote.DefaultBaseURL, "site the custom tables are downloaded from")
	flags.String("legacy-prefix", "dclref", "post type prefix of the legacy databases")
	flags.String("current-prefix", "db", "post type prefix of the docalist-data databases")
	flags.String("probe-prefix", "dcl", "post type prefix of the experimental databases")
	flags.Int("batch-size", 1000, "number of posts loaded per batch")
	flags.Int("progress-every", 100, "report progress every n converted posts")
	flags.String("user", "", "name written in the import notes (default is the OS user)")
	flags.String("journal-dir", "artifacts", "directory of the run journals")
	flags.Bool("no-journal", false, "do not write a run journal")

	// Bind flags to viper
	for _, name := range []string{
		"driver", "dsn", "table-prefix", "verbose", "quiet", "log-file", "log-format",
		"tables-dir", "remote-url", "legacy-prefix", "current-prefix", "probe-prefix",
		"batch-size", "progress-every", "user", "journal-dir", "no-journal",
	} {
		viper.BindPFlag(name, flags.Lookup(name))
	}
}

func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in common locations
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
		viper.SetConfigName("mp15")
		viper.SetConfigType("yaml")
	}

	// MP15_TABLES_DIR, MP15_BATCH_SIZE...
	viper.SetEnvPrefix("MP15")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil && !viper.GetBool("quiet") {
		util.InfoLog("Using config file: %s", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
