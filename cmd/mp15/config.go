package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"os/user"
	"syscall"

	"github.com/docalist/migration-prisme-2015/internal/report"
	"github.com/docalist/migration-prisme-2015/internal/store"
	"github.com/docalist/migration-prisme-2015/internal/util"
	"github.com/spf13/viper"
)

// GetConfigString retrieves a string config value with proper precedence:
// 1. Command-line flag (if set)
// 2. Environment variable (MP15_*)
// 3. Config file
// 4. Default value
func GetConfigString(key string, defaultValue string) string {
	val := viper.GetString(key)
	if val == "" {
		return defaultValue
	}
	return val
}

// GetConfigInt retrieves an int config value with proper precedence
func GetConfigInt(key string, defaultValue int) int {
	val := viper.GetInt(key)
	if val <= 0 {
		return defaultValue
	}
	return val
}

// GetConfigBool retrieves a bool config value
func GetConfigBool(key string) bool {
	return viper.GetBool(key)
}

// currentUser is the name written in audit notes.
func currentUser() string {
	if name := viper.GetString("user"); name != "" {
		return name
	}
	if u, err := user.Current(); err == nil {
		if u.Name != "" {
			return u.Name
		}
		return u.Username
	}
	return "admin"
}

// openStore opens the WordPress database configured by --driver and --dsn.
func openStore() (*store.Store, error) {
	opts := &store.OpenOptions{
		Driver:      GetConfigString("driver", store.DriverSQLite),
		DSN:         GetConfigString("dsn", "wordpress.db"),
		TablePrefix: GetConfigString("table-prefix", store.DefaultTablePrefix),
	}
	util.DebugLog("Opening %s database (prefix %s)", opts.Driver, opts.TablePrefix)

	db, err := store.OpenWithOptions(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// openJournal creates the run journal of tool. A journal that cannot be
// created is replaced by a null journal.
func openJournal(tool string) *report.EventLogger {
	if GetConfigBool("no-journal") {
		return report.NullLogger()
	}

	level := report.LevelInfo
	if GetConfigBool("quiet") {
		level = report.LevelWarning
	} else if GetConfigBool("verbose") {
		level = report.LevelDebug
	}

	journal, err := report.NewEventLogger(GetConfigString("journal-dir", "artifacts"), tool, level)
	if err != nil {
		util.WarnLog("Failed to create run journal: %v", err)
		return report.NullLogger()
	}
	util.InfoLog("Run journal: %s", journal.Path())
	return journal
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// confirmHint tells the user how to run the tool for real.
func confirmHint(command string) {
	util.InfoLog("")
	util.InfoLog("Nothing was changed. To run it: mp15 %s --confirm", command)
}
