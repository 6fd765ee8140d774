package util

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/overengineeringstudio/fsema/lib/backing"
	"github.com/overengineeringstudio/fsema/lib/backing/fsbacking"
	"github.com/overengineeringstudio/fsema/lib/watcher"
	"github.com/overengineeringstudio/fsema/lib/watcher/fswatcher"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// DefaultLockDir is where lock files live unless configured otherwise.
func DefaultLockDir() string {
	return filepath.Join(os.TempDir(), "fsema")
}

// SetupBackingFlags adds the common backing flags to a command
func SetupBackingFlags(cmd *cobra.Command) {
	key := "lock-dir"
	cmd.PersistentFlags().String(key, DefaultLockDir(), WrapString("Base directory for lock files. All coordinating processes must use the same directory"))

	key = "strict"
	cmd.PersistentFlags().Bool(key, false, WrapString("Serialize admission checks with an advisory file lock per key (Unix only). Closes the best-effort admission race at the cost of extra filesystem locking"))

	key = "ttl"
	cmd.PersistentFlags().Int(key, 30, WrapString("Lease length in seconds. A reservation not refreshed within this window lapses and its permits return to the pool"))

	key = "limit"
	cmd.PersistentFlags().Uint32(key, 1, WrapString("Maximum total permits admitted per key"))

	key = "poll-interval"
	cmd.PersistentFlags().Int(key, 250, WrapString("Retry interval in milliseconds for blocking waits"))

	key = "debounce"
	cmd.PersistentFlags().Int(key, 50, WrapString("Coalescing window in milliseconds for filesystem change notifications"))
}

// InitConfig initializes configuration from environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("fsema")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetBacking creates the filesystem backing from configuration
func GetBacking() (backing.IBacking, error) {
	return fsbacking.New(&fsbacking.Options{
		LockDir: viper.GetString("lock-dir"),
		Strict:  viper.GetBool("strict"),
	})
}

// GetWatcher creates the filesystem watcher from configuration
func GetWatcher() (watcher.IWatcher, error) {
	return fswatcher.New(&fswatcher.Options{
		LockDir:  viper.GetString("lock-dir"),
		Debounce: time.Duration(viper.GetInt("debounce")) * time.Millisecond,
	})
}

// GetTTL retrieves the configured lease length
func GetTTL() time.Duration {
	return time.Duration(viper.GetInt("ttl")) * time.Second
}

// GetLimit retrieves the configured per-key permit limit
func GetLimit() uint32 {
	return viper.GetUint32("limit")
}

// GetPollInterval retrieves the configured blocking-wait retry interval
func GetPollInterval() time.Duration {
	return time.Duration(viper.GetInt("poll-interval")) * time.Millisecond
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}
