// Package language normalizes the language names accepted in configuration
// and picks a default transcription language for each marketplace.
package language
