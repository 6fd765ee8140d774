// Package cmd implements the command-line interface for fsema, the
// filesystem-backed semaphore. It provides a hierarchical command structure
// for acquiring, releasing, refreshing, counting and waiting on permits.
//
// The package is organized into several subpackages:
//
//   - sem: Commands for semaphore operations (acquire, release, refresh, count, wait, watch)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Configuration flows through flags, environment variables (FSEMA_<flag>,
// e.g. FSEMA_LOCK_DIR) and .env / .env.local files, in that order of
// precedence.
//
// See fsema -help for a list of all commands.
package cmd
