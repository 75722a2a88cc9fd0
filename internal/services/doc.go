// Package services defines shared utilities consumed by the pipeline stages
// and the external integrations under it.
//
// Key responsibilities:
//   - Context helpers that stamp asset IDs, stage names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper that let the CLI turn
//     failures into actionable hints.
package services
