// Package cmd implements the davlock command-line interface.
//
// The package is organized into several subpackages:
//
//   - serve: starts the WebDAV server and optionally the rpc lock service
//   - lock: a small WebDAV client to acquire, refresh, release and discover locks on any server
//   - util: shared utilities for command-line processing and configuration (internal use)
//
// See davlock -help for a list of all commands.
package cmd
