package models

// ReadingStats aggregates reading activity across sessions. Buckets
// are combined across devices with max(), never summed, so the same
// session synced from two devices is not counted twice.
type ReadingStats struct {
	Daily          map[string]StatBucket `json:"daily,omitempty"`      // "2026-08-26"
	Weekly         map[string]StatBucket `json:"weekly,omitempty"`     // "2026-W35"
	WPMHistory     map[string]WPMEntry   `json:"wpmHistory,omitempty"` // per date
	PersonalBest   PersonalBest          `json:"personalBest"`
	HourlyActivity [24]int               `json:"hourlyActivity"`
}

// NewReadingStats creates empty stats.
func NewReadingStats() *ReadingStats {
	return &ReadingStats{
		Daily:      make(map[string]StatBucket),
		Weekly:     make(map[string]StatBucket),
		WPMHistory: make(map[string]WPMEntry),
	}
}

// StatBucket is one day's or week's totals.
type StatBucket struct {
	WordsRead   int `json:"wordsRead"`
	MinutesRead int `json:"minutesRead"`
	Sessions    int `json:"sessions"`
}

// WPMEntry records average reading speed for one date.
type WPMEntry struct {
	AverageWPM int `json:"averageWpm"`
	Sessions   int `json:"sessions"`
}

// PersonalBest holds the user's records.
type PersonalBest struct {
	FastestWPM            int `json:"fastestWpm"`
	LongestSessionMinutes int `json:"longestSessionMinutes"`
	MostWordsInDay        int `json:"mostWordsInDay"`
}
