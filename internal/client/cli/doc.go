// Package cli is the interactive FinanceHub client.
//
// App opens the local ledger database and starts the background workers:
// the sync scheduler, periodic backups, an optional metrics endpoint and a
// status watcher. The REPL reads commands from stdin until the user exits.
// Every ledger change is committed locally first and then offered to the
// scheduler, which syncs only on a trusted, reachable network.
package cli
