// Package preflight verifies the runtime environment before the daemon
// starts taking work: directories writable, external tools on PATH, and
// the model endpoint configured.
package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"storycut/internal/config"
	"storycut/internal/deps"
)

// Result reports the outcome of a single check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every applicable check for the given config.
func RunAll(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Blob root", cfg.Paths.BlobRoot),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDirectoryAccess("Registry directory", filepath.Dir(cfg.Paths.DBPath)),
	}
	for _, status := range deps.CheckBinaries(deps.Requirements(cfg)) {
		results = append(results, Result{
			Name:   status.Name,
			Passed: status.Available || status.Optional,
			Detail: binaryDetail(status),
		})
	}
	results = append(results, CheckLLM(cfg))
	return results
}

// Failures filters the results down to failed checks.
func Failures(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

// CheckDirectoryAccess verifies the directory exists (creating it when
// absent) and is writable.
func CheckDirectoryAccess(name, dir string) Result {
	result := Result{Name: name}
	if strings.TrimSpace(dir) == "" {
		result.Detail = "not configured"
		return result
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		result.Detail = fmt.Sprintf("create %s: %v", dir, err)
		return result
	}
	probe, err := os.CreateTemp(dir, ".preflight-*")
	if err != nil {
		result.Detail = fmt.Sprintf("%s is not writable: %v", dir, err)
		return result
	}
	probePath := probe.Name()
	probe.Close()
	_ = os.Remove(probePath)
	result.Passed = true
	result.Detail = dir
	return result
}

// CheckLLM verifies the planner's model endpoint is usable: key present
// and base URL set. It does not spend tokens on a live call.
func CheckLLM(cfg *config.Config) Result {
	result := Result{Name: "LLM endpoint"}
	if strings.TrimSpace(cfg.LLM.APIKey) == "" {
		result.Detail = "llm.api_key is empty; story planning and frame description will fail"
		return result
	}
	if strings.TrimSpace(cfg.LLM.BaseURL) == "" {
		result.Detail = "llm.base_url is empty"
		return result
	}
	result.Passed = true
	result.Detail = cfg.LLM.Model
	return result
}

func binaryDetail(status deps.Status) string {
	if status.Available {
		return status.Command
	}
	detail := status.Detail
	if status.Optional {
		detail += " (optional)"
	}
	return detail
}
