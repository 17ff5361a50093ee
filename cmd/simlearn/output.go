package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/matsen/simlearn/internal/semantic"
	"github.com/matsen/simlearn/internal/storage"
)

// Output defaults.
const (
	DefaultSimilarLimit = 10 // Neighbours returned by similar
	HumanPreviewLimit   = 20 // Rows printed by pairs/triplets in --human mode
	MaxReportedIDs      = 10 // IDs listed by index check before eliding
)

// outputJSON writes a value as formatted JSON to stdout.
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputHuman writes a human-readable string to stdout.
func outputHuman(format string, args ...interface{}) {
	fmt.Printf(format, args...)
}

// outputError writes an error message to stderr and returns the exit code.
func outputError(code int, format string, args ...interface{}) int {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	return code
}

// exitWithError outputs an error in the appropriate format (human or JSON) and exits.
func exitWithError(code int, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if humanOutput {
		fmt.Fprintf(os.Stderr, "error: %s\n", msg)
	} else {
		outputJSON(ErrorResponse{Error: msg})
	}
	os.Exit(code)
}

// UpdateResponse is the response for config set commands.
type UpdateResponse struct {
	Status string `json:"status"`
	Key    string `json:"key"`
	Value  string `json:"value"`
}

// ErrorResponse is a JSON error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ItemSearchResult is one neighbour in similar output.
type ItemSearchResult struct {
	ID           string  `json:"id"`
	Identity     string  `json:"identity"`
	Score        float32 `json:"score"`
	SameIdentity bool    `json:"same_identity"`
}

// buildSearchResults attaches identities to raw search results.
// Items indexed but since removed from the dataset are skipped.
func buildSearchResults(results []semantic.SearchResult, db *storage.DB, queryIdentity string) []ItemSearchResult {
	out := make([]ItemSearchResult, 0, len(results))
	for _, r := range results {
		item, err := db.GetByID(r.ItemID)
		if err != nil || item == nil {
			continue
		}
		out = append(out, ItemSearchResult{
			ID:           item.ID,
			Identity:     item.Identity,
			Score:        r.Score,
			SameIdentity: queryIdentity != "" && item.Identity == queryIdentity,
		})
	}
	return out
}

// printSearchResultsHuman prints neighbours, marking same-identity hits.
func printSearchResultsHuman(results []ItemSearchResult, metric semantic.Metric) {
	label := "sim"
	if metric == semantic.Euclidean {
		label = "dist"
	}
	for i, r := range results {
		mark := " "
		if r.SameIdentity {
			mark = "*"
		}
		fmt.Printf("%3d. %s [%s %.4f] %s\n", i+1, mark, label, r.Score, r.ID)
	}
}

// printProgress prints a progress bar to stderr.
func printProgress(current, total int) {
	if total == 0 {
		return
	}
	pct := float64(current) / float64(total) * 100
	barWidth := 30
	filled := int(float64(barWidth) * float64(current) / float64(total))
	var bar strings.Builder
	for i := 0; i < barWidth; i++ {
		switch {
		case i < filled:
			bar.WriteByte('=')
		case i == filled:
			bar.WriteByte('>')
		default:
			bar.WriteByte(' ')
		}
	}
	fmt.Fprintf(os.Stderr, "\r[%s] %d/%d (%.0f%%)", bar.String(), current, total, pct)
}

// clearProgress erases the progress line.
func clearProgress() {
	fmt.Fprintf(os.Stderr, "\r%s\r", strings.Repeat(" ", 50))
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}

// formatBytes formats bytes in a human-readable way.
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// formatIDList formats a list of IDs as a comma-separated string.
func formatIDList(ids []string) string {
	return strings.Join(ids, ", ")
}
