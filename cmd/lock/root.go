package lock

import (
	"fmt"
	"os"
	"time"

	"github.com/ValentinKolb/davlock/cmd/util"
	"github.com/ValentinKolb/davlock/lib/lock"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	davClientInstance *davClient

	// LockCommands represents the lock command group
	LockCommands = &cobra.Command{
		Use:               "lock",
		Short:             "Manage WebDAV locks on any server",
		PersistentPreRunE: setupDavClient,
	}

	acquireCmd = &cobra.Command{
		Use:   "acquire [url]",
		Short: "Acquire a lock",
		Args:  cobra.ExactArgs(1),
		RunE:  runAcquire,
	}

	refreshCmd = &cobra.Command{
		Use:   "refresh [url] [token]",
		Short: "Refresh the timeout of a lock",
		Args:  cobra.ExactArgs(2),
		RunE:  runRefresh,
	}

	releaseCmd = &cobra.Command{
		Use:   "release [url] [token]",
		Short: "Release a previously acquired lock",
		Long:  "Release a lock using the resource url and the token printed by the acquire command.",
		Args:  cobra.ExactArgs(2),
		RunE:  runRelease,
	}

	discoverCmd = &cobra.Command{
		Use:   "discover [url]",
		Short: "List the active locks of a resource",
		Args:  cobra.ExactArgs(1),
		RunE:  runDiscover,
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)

	LockCommands.AddCommand(acquireCmd)
	LockCommands.AddCommand(refreshCmd)
	LockCommands.AddCommand(releaseCmd)
	LockCommands.AddCommand(discoverCmd)

	LockCommands.PersistentFlags().Int("request-timeout", 10, util.WrapString("The timeout in seconds of a single request"))

	for _, cmd := range []*cobra.Command{acquireCmd, refreshCmd} {
		cmd.Flags().Int64("timeout", 0, util.WrapString("Lock timeout in seconds (0 for the server default, -1 for no expiry)"))
	}
	acquireCmd.Flags().String("scope", "exclusive", util.WrapString("Lock scope (exclusive, shared)"))
	acquireCmd.Flags().String("depth", "infinity", util.WrapString("Lock depth (0, infinity)"))
	acquireCmd.Flags().String("owner", "", util.WrapString("Owner written into the lock, usually a URL or user name"))
}

func setupDavClient(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	davClientInstance = newDavClient(time.Duration(viper.GetInt("request-timeout"))*time.Second, os.Stdout)
	return nil
}

func lockTimeout() (int64, error) {
	timeout := viper.GetInt64("timeout")
	if timeout < lock.TimeoutInfinite {
		return 0, fmt.Errorf("invalid timeout %d", timeout)
	}
	return timeout, nil
}

func runAcquire(_ *cobra.Command, args []string) error {
	scope, err := lock.ParseScope(viper.GetString("scope"))
	if err != nil {
		return err
	}
	timeout, err := lockTimeout()
	if err != nil {
		return err
	}
	return davClientInstance.Acquire(args[0], acquireOptions{
		Scope:   scope,
		Depth:   lock.ParseDepth(viper.GetString("depth")),
		Owner:   viper.GetString("owner"),
		Timeout: timeout,
	})
}

func runRefresh(_ *cobra.Command, args []string) error {
	timeout, err := lockTimeout()
	if err != nil {
		return err
	}
	return davClientInstance.Refresh(args[0], args[1], timeout)
}

func runRelease(_ *cobra.Command, args []string) error {
	return davClientInstance.Release(args[0], args[1])
}

func runDiscover(_ *cobra.Command, args []string) error {
	return davClientInstance.Discover(args[0])
}
