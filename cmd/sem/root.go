package sem

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/overengineeringstudio/fsema/cmd/util"
	"github.com/overengineeringstudio/fsema/lib/backing"
	"github.com/overengineeringstudio/fsema/lib/semaphore"
)

var (
	cliBacking backing.IBacking
	permits    uint32
	waitSecs   int

	// SemCommands represents the semaphore command group
	SemCommands = &cobra.Command{
		Use:               "sem",
		Short:             "Perform semaphore operations",
		PersistentPreRunE: setupBacking,
	}

	// acquireCmd represents the acquire command
	acquireCmd = &cobra.Command{
		Use:   "acquire [key] [holder]",
		Short: "Try to acquire permits without blocking",
		Long:  "Attempt a single non-blocking acquisition of permits on a key for the given holder. The same holder name must be used to refresh or release the permits later, possibly from a different process.",
		Args:  cobra.ExactArgs(2),
		RunE:  runAcquire,
	}

	// releaseCmd represents the release command
	releaseCmd = &cobra.Command{
		Use:   "release [key] [holder]",
		Short: "Release previously acquired permits",
		Args:  cobra.ExactArgs(2),
		RunE:  runRelease,
	}

	// refreshCmd represents the refresh command
	refreshCmd = &cobra.Command{
		Use:   "refresh [key] [holder]",
		Short: "Renew the lease on previously acquired permits",
		Args:  cobra.ExactArgs(2),
		RunE:  runRefresh,
	}

	// countCmd represents the count command
	countCmd = &cobra.Command{
		Use:   "count [key]",
		Short: "Show the total valid permits outstanding on a key",
		Args:  cobra.ExactArgs(1),
		RunE:  runCount,
	}

	// waitCmd represents the wait command
	waitCmd = &cobra.Command{
		Use:   "wait [key]",
		Short: "Block until permits are acquired",
		Long:  "Block until the requested permits are acquired under a generated holder identity, then print that identity. Waiters poll on the configured interval and are woken early by filesystem change notifications.",
		Args:  cobra.ExactArgs(1),
		RunE:  runWait,
	}

	// watchCmd represents the watch command
	watchCmd = &cobra.Command{
		Use:   "watch [key]",
		Short: "Print a line whenever a key's state changes",
		Args:  cobra.ExactArgs(1),
		RunE:  runWatch,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add subcommands to sem command
	SemCommands.AddCommand(acquireCmd)
	SemCommands.AddCommand(releaseCmd)
	SemCommands.AddCommand(refreshCmd)
	SemCommands.AddCommand(countCmd)
	SemCommands.AddCommand(waitCmd)
	SemCommands.AddCommand(watchCmd)

	// Add common backing flags to the sem command
	util.SetupBackingFlags(SemCommands)

	// Add operation-specific flags
	SemCommands.PersistentFlags().Uint32Var(&permits, "permits", 1, "Number of permits for the operation")
	waitCmd.Flags().IntVar(&waitSecs, "timeout", 0, util.WrapString("Give up waiting after this many seconds (0 = wait forever)"))
}

// setupBacking initializes the filesystem backing from configuration
func setupBacking(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	var err error
	cliBacking, err = util.GetBacking()
	return err
}

// runAcquire handles the acquire command
func runAcquire(_ *cobra.Command, args []string) error {
	key, holder := args[0], args[1]

	acquired, err := cliBacking.TryAcquire(key, holder, util.GetTTL(), util.GetLimit(), permits)
	if err != nil {
		return fmt.Errorf("failed to acquire permits: %v", err)
	}

	fmt.Printf("acquired=%v\n", acquired)
	return nil
}

// runRelease handles the release command
func runRelease(_ *cobra.Command, args []string) error {
	key, holder := args[0], args[1]

	released, err := cliBacking.Release(key, holder, permits)
	if err != nil {
		return fmt.Errorf("failed to release permits: %v", err)
	}

	fmt.Printf("released=%d\n", released)
	return nil
}

// runRefresh handles the refresh command
func runRefresh(_ *cobra.Command, args []string) error {
	key, holder := args[0], args[1]

	refreshed, err := cliBacking.Refresh(key, holder, util.GetTTL(), util.GetLimit(), permits)
	if err != nil {
		return fmt.Errorf("failed to refresh permits: %v", err)
	}

	fmt.Printf("refreshed=%v\n", refreshed)
	return nil
}

// runCount handles the count command
func runCount(_ *cobra.Command, args []string) error {
	count, err := cliBacking.GetCount(args[0], util.GetTTL())
	if err != nil {
		return fmt.Errorf("failed to count permits: %v", err)
	}

	fmt.Printf("count=%d\n", count)
	return nil
}

// runWait handles the wait command
func runWait(_ *cobra.Command, args []string) error {
	key := args[0]

	w, err := util.GetWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %v", err)
	}

	sem, err := semaphore.New(cliBacking, &semaphore.Options{
		TTL:          util.GetTTL(),
		Limit:        util.GetLimit(),
		PollInterval: util.GetPollInterval(),
		Watcher:      w,
	})
	if err != nil {
		return fmt.Errorf("failed to create semaphore: %v", err)
	}
	defer sem.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if waitSecs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(waitSecs)*time.Second)
		defer cancel()
	}

	if err := sem.Acquire(ctx, key, permits); err != nil {
		return fmt.Errorf("failed to acquire permits: %v", err)
	}

	// Print the generated holder so the caller can refresh/release it later.
	fmt.Printf("acquired=true, holder=%s\n", sem.Holder())
	return nil
}

// runWatch handles the watch command
func runWatch(_ *cobra.Command, args []string) error {
	key := args[0]

	w, err := util.GetWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %v", err)
	}
	defer w.Close()

	ch, cancel, err := w.Watch(key)
	if err != nil {
		return fmt.Errorf("failed to watch key: %v", err)
	}
	defer cancel()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ch:
			count, err := cliBacking.GetCount(key, util.GetTTL())
			if err != nil {
				return fmt.Errorf("failed to count permits: %v", err)
			}
			fmt.Printf("changed key=%s count=%d\n", key, count)
		}
	}
}
