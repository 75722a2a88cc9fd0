// Package whisperx runs WhisperX through uvx to transcribe WAV audio.
//
// The service builds the uvx command line from Config, streams WhisperX's
// progress output to a callback, and loads the JSON segments WhisperX writes
// next to its other outputs. It knows nothing about chunking or caching;
// internal/transcribe layers those on top.
package whisperx
