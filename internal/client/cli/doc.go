// Package cli provides the interactive cyclesync command-line client.
//
// It wires configuration, the local store, the remote document service, the
// connectivity monitor and the sync coordinator behind a small REPL. Every
// write lands in the local store first; the prompt shows whether the
// session is ONLINE or OFFLINE.
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
// See NewApp and runREPL for details.
package cli
