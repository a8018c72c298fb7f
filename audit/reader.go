package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// ListRecent returns up to limit events from category's current month
// log, newest first. A corrupt line is skipped rather than aborting
// the whole read, per spec's "corruption in one line must not prevent
// subsequent lines from being read".
func ListRecent(root string, category Category, limit int) ([]Event, error) {
	path := filepath.Join(root, string(category), time.Now().UTC().Format("2006-01"), string(category)+".log")
	events, err := readEvents(path)
	if err != nil {
		return nil, err
	}
	if len(events) > limit {
		events = events[len(events)-limit:]
	}
	// newest first
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}

func readEvents(path string) ([]Event, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var evt Event
		if err := json.Unmarshal(scanner.Bytes(), &evt); err != nil {
			continue
		}
		events = append(events, evt)
	}
	return events, scanner.Err()
}

// DailySummary tallies per-category counts and the top error kinds
// seen in the failure category, for a single calendar day.
type DailySummary struct {
	Date          string           `json:"date"`
	CategoryCount map[Category]int `json:"category_count"`
	TopErrors     []ErrorFrequency `json:"top_errors"`
}

// ErrorFrequency is one entry of a pattern-mining tally.
type ErrorFrequency struct {
	ErrorType string `json:"error_type"`
	Count     int     `json:"count"`
}

// BuildDailySummary produces a DailySummary for date (YYYY-MM-DD) from
// every category's log for the month containing date, filtering events
// to that date.
func BuildDailySummary(root string, date time.Time) (DailySummary, error) {
	dateStr := date.Format("2006-01-02")
	summary := DailySummary{Date: dateStr, CategoryCount: make(map[Category]int)}

	categories := []Category{CategoryTaskLifecycle, CategoryAgentDecision, CategoryMCPCall, CategoryFailure, CategoryRetry, CategorySystem}
	errorCounts := make(map[string]int)

	for _, category := range categories {
		path := filepath.Join(root, string(category), date.Format("2006-01"), string(category)+".log")
		events, err := readEvents(path)
		if err != nil {
			return summary, err
		}
		for _, evt := range events {
			if evt.Timestamp.Format("2006-01-02") != dateStr {
				continue
			}
			summary.CategoryCount[category]++
			if category == CategoryFailure {
				errorType := stringField(evt.Details, "error_type")
				if errorType == "" {
					errorType = evt.EventName
				}
				errorCounts[errorType]++
			}
		}
	}

	summary.TopErrors = topN(errorCounts, 5)
	return summary, nil
}

func topN(counts map[string]int, n int) []ErrorFrequency {
	freqs := make([]ErrorFrequency, 0, len(counts))
	for k, v := range counts {
		freqs = append(freqs, ErrorFrequency{ErrorType: k, Count: v})
	}
	sort.Slice(freqs, func(i, j int) bool {
		if freqs[i].Count != freqs[j].Count {
			return freqs[i].Count > freqs[j].Count
		}
		return freqs[i].ErrorType < freqs[j].ErrorType
	})
	if len(freqs) > n {
		freqs = freqs[:n]
	}
	return freqs
}

// WriteSummaryFile renders summary as a human-readable markdown file.
func WriteSummaryFile(root string, summary DailySummary) (string, error) {
	path := filepath.Join(root, "summaries", summary.Date+".md")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("audit: create summaries directory: %w", err)
	}

	content := fmt.Sprintf("# Audit Summary: %s\n\n## Event Counts\n\n", summary.Date)
	for _, category := range []Category{CategoryTaskLifecycle, CategoryAgentDecision, CategoryMCPCall, CategoryFailure, CategoryRetry, CategorySystem} {
		content += fmt.Sprintf("- %s: %d\n", category, summary.CategoryCount[category])
	}
	content += "\n## Top Error Kinds\n\n"
	for _, e := range summary.TopErrors {
		content += fmt.Sprintf("- %s: %d\n", e.ErrorType, e.Count)
	}

	return path, os.WriteFile(path, []byte(content), 0o644)
}
