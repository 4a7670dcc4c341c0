package merge

import "github.com/skimapp/skimsync/internal/models"

// mergeReadingStats combines activity buckets with max(), never sums.
// The same session synced from two devices shows up in both documents
// with identical totals; summing would double-count it.
func mergeReadingStats(a, b *models.ReadingStats) *models.ReadingStats {
	merged := models.NewReadingStats()

	mergeBuckets(merged.Daily, a.Daily)
	mergeBuckets(merged.Daily, b.Daily)
	mergeBuckets(merged.Weekly, a.Weekly)
	mergeBuckets(merged.Weekly, b.Weekly)

	mergeWPM(merged.WPMHistory, a.WPMHistory)
	mergeWPM(merged.WPMHistory, b.WPMHistory)

	merged.PersonalBest = models.PersonalBest{
		FastestWPM:            maxInt(a.PersonalBest.FastestWPM, b.PersonalBest.FastestWPM),
		LongestSessionMinutes: maxInt(a.PersonalBest.LongestSessionMinutes, b.PersonalBest.LongestSessionMinutes),
		MostWordsInDay:        maxInt(a.PersonalBest.MostWordsInDay, b.PersonalBest.MostWordsInDay),
	}

	for hour := range merged.HourlyActivity {
		merged.HourlyActivity[hour] = maxInt(a.HourlyActivity[hour], b.HourlyActivity[hour])
	}

	return merged
}

func mergeBuckets(dst, src map[string]models.StatBucket) {
	for key, bucket := range src {
		existing, ok := dst[key]
		if !ok {
			dst[key] = bucket
			continue
		}
		dst[key] = models.StatBucket{
			WordsRead:   maxInt(existing.WordsRead, bucket.WordsRead),
			MinutesRead: maxInt(existing.MinutesRead, bucket.MinutesRead),
			Sessions:    maxInt(existing.Sessions, bucket.Sessions),
		}
	}
}

// mergeWPM keeps, per date, the entry with the higher session count:
// more sessions means a more complete record of that day.
func mergeWPM(dst, src map[string]models.WPMEntry) {
	for date, entry := range src {
		existing, ok := dst[date]
		if !ok || entry.Sessions > existing.Sessions {
			dst[date] = entry
		}
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
