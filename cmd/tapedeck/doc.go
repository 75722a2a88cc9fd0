// Package main hosts the tapedeck CLI entrypoint and command graph.
//
// The Cobra command tree covers device login and token refresh, browsing the
// Audible library, fetching books into decrypted M4B files, transcribing
// windows of a fetched book, and configuration scaffolding. commandContext
// resolves configuration, logging, the state store, and the authenticated
// client once per invocation so subcommands only describe user experience.
//
// Heavy lifting lives in internal packages; add behavior there first and
// surface it here through a command or flag.
package main
