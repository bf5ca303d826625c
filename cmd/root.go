package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/davlock/cmd/lock"
	"github.com/ValentinKolb/davlock/cmd/serve"
	"github.com/ValentinKolb/davlock/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (
	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "davlock",
		Short: "WebDAV server with a shared lock service",
		Long: fmt.Sprintf(`davlock (v%s)

A WebDAV server implementing class 2 locking. Locks are kept in a lock
store that can be local, replicated with RAFT or shared over rpc by
several WebDAV frontends.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of davlock",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("davlock v%s\n", Version)
		},
	}
)

func init() {
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(lock.LockCommands)
	RootCmd.AddCommand(versionCmd)

	key := "serializer"
	RootCmd.PersistentFlags().String(key, "binary", util.WrapString("serializer of the rpc lock service (json, gob, binary)"))
	key = "log-level"
	RootCmd.PersistentFlags().String(key, "info", util.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
