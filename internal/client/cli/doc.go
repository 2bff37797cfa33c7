// Package cli provides the interactive cloudvault command-line client.
//
// The REPL signs in with a one-time code (otp, then verify) and then manages
// files over the REST API: upload, list, share and delete.
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
