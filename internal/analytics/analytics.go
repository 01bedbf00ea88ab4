package analytics

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"finadvisor/internal/storage"
)

// DailyStats aggregates one day of advisory turns.
type DailyStats struct {
	Date               string               `json:"date"`
	TotalTurns         int                  `json:"total_turns"`
	UniqueUsers        int                  `json:"unique_users"`
	DegradedTurns      int                  `json:"degraded_turns"`
	LowConfidenceTurns int                  `json:"low_confidence_turns"`
	AverageTrustScore  float64              `json:"average_trust_score"`
	ByIntent           map[string]int       `json:"by_intent"`
	ByProvider         map[string]int       `json:"by_provider"`
	UserStats          map[string]UserStats `json:"user_stats"`
}

type UserStats struct {
	UserID   string `json:"user_id"`
	Turns    int    `json:"turns"`
	Degraded int    `json:"degraded"`
}

// AnalyzeDailyLogs counts the events of targetDate's calendar day.
func AnalyzeDailyLogs(events []storage.Event, targetDate time.Time) *DailyStats {
	startOfDay := time.Date(targetDate.Year(), targetDate.Month(), targetDate.Day(), 0, 0, 0, 0, targetDate.Location())
	endOfDay := startOfDay.AddDate(0, 0, 1)

	stats := &DailyStats{
		Date:       startOfDay.Format("2006-01-02"),
		ByIntent:   make(map[string]int),
		ByProvider: make(map[string]int),
		UserStats:  make(map[string]UserStats),
	}

	var scored, trustTotal int
	for _, event := range events {
		if event.Timestamp.Before(startOfDay) || !event.Timestamp.Before(endOfDay) {
			continue
		}
		// Only turns that carry a user message count
		if event.UserMessage == "" {
			continue
		}
		stats.TotalTurns++

		userStat := stats.UserStats[event.UserID]
		userStat.UserID = event.UserID
		userStat.Turns++

		if event.Intent != "" {
			stats.ByIntent[event.Intent]++
		}
		if event.Degraded {
			stats.DegradedTurns++
			userStat.Degraded++
		} else {
			if event.Provider != "" {
				stats.ByProvider[event.Provider]++
			}
			scored++
			trustTotal += event.TrustScore
		}
		for _, w := range event.Warnings {
			if w == "low_confidence" {
				stats.LowConfidenceTurns++
				break
			}
		}
		stats.UserStats[event.UserID] = userStat
	}

	stats.UniqueUsers = len(stats.UserStats)
	if scored > 0 {
		stats.AverageTrustScore = float64(trustTotal) / float64(scored)
	}
	return stats
}

// GenerateReportSummary renders a plain-text report.
func (ds *DailyStats) GenerateReportSummary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Advisor usage for %s\n\n", ds.Date)
	fmt.Fprintf(&b, "- Turns: %d\n", ds.TotalTurns)
	fmt.Fprintf(&b, "- Unique users: %d\n", ds.UniqueUsers)
	fmt.Fprintf(&b, "- Degraded responses: %d\n", ds.DegradedTurns)
	fmt.Fprintf(&b, "- Low confidence responses: %d\n", ds.LowConfidenceTurns)
	fmt.Fprintf(&b, "- Average trust score: %.1f\n", ds.AverageTrustScore)

	writeCounts(&b, "Intents", ds.ByIntent)
	writeCounts(&b, "Providers", ds.ByProvider)
	return b.String()
}

func writeCounts(b *strings.Builder, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(b, "\n%s:\n", title)
	for _, k := range keys {
		fmt.Fprintf(b, "- %s: %d\n", k, counts[k])
	}
}

func (ds *DailyStats) ToJSON() (string, error) {
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
