package preflight

import (
	"context"
	"time"

	"tapedeck/internal/config"
	"tapedeck/internal/services/audible"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every applicable check. store may be nil, in which case the
// registration check is skipped.
func RunAll(ctx context.Context, cfg *config.Config, store audible.KeyValueStore) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Downloads directory", cfg.Paths.DownloadsDir),
		CheckDirectoryAccess("Audio directory", cfg.Paths.AudioDir),
		CheckDirectoryAccess("Cache directory", cfg.Paths.CacheDir),
	}
	for _, status := range CheckSystemDeps(cfg) {
		result := Result{Name: status.Name, Passed: status.Satisfied(), Detail: status.Command}
		if status.Detail != "" {
			result.Detail = status.Detail
		}
		results = append(results, result)
	}
	if store != nil {
		results = append(results, CheckRegistration(ctx, store, time.Now()))
	}
	return results
}
