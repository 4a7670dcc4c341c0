package merge

import (
	"sort"

	"github.com/skimapp/skimsync/internal/models"
)

// mergeArchiveItems unions both archives, deduplicates in three passes
// of decreasing specificity (file hash, normalized URL, raw id), drops
// anything matching a tombstone, and sorts by last-opened descending.
// Each pass builds a new map; nothing mutates shared state, so the
// passes stay testable in isolation.
func mergeArchiveItems(local, remote []models.ArchiveItem, tombstones map[string]int64) []models.ArchiveItem {
	union := make([]models.ArchiveItem, 0, len(local)+len(remote))
	union = append(union, local...)
	union = append(union, remote...)

	items := foldByKey(union, func(it models.ArchiveItem) string {
		return it.FileHash
	})
	items = foldByKey(items, func(it models.ArchiveItem) string {
		if it.URL == "" {
			return ""
		}
		return NormalizeURL(it.URL)
	})
	items = foldByKey(items, func(it models.ArchiveItem) string {
		return it.ID
	})

	merged := make([]models.ArchiveItem, 0, len(items))
	for _, it := range items {
		if hasTombstone(it, tombstones) {
			continue
		}
		merged = append(merged, it)
	}

	sortArchiveItems(merged)
	return merged
}

func sortArchiveItems(items []models.ArchiveItem) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].LastOpenedAt != items[j].LastOpenedAt {
			return items[i].LastOpenedAt > items[j].LastOpenedAt
		}
		return items[i].ID < items[j].ID
	})
}

// foldByKey collapses items sharing a key into one item each. Items
// whose key is empty pass through untouched.
func foldByKey(items []models.ArchiveItem, key func(models.ArchiveItem) string) []models.ArchiveItem {
	byKey := make(map[string]models.ArchiveItem)
	order := make([]string, 0, len(items))
	var keyless []models.ArchiveItem

	for _, it := range items {
		k := key(it)
		if k == "" {
			keyless = append(keyless, it)
			continue
		}
		if existing, ok := byKey[k]; ok {
			byKey[k] = foldPair(existing, it)
		} else {
			byKey[k] = it
			order = append(order, k)
		}
	}

	out := make([]models.ArchiveItem, 0, len(order)+len(keyless))
	for _, k := range order {
		out = append(out, byKey[k])
	}
	out = append(out, keyless...)
	return out
}

// foldPair merges two records of the same underlying document. The
// item whose position is further along is primary and keeps its id
// and progress, so reading continuity survives the device switch.
func foldPair(a, b models.ArchiveItem) models.ArchiveItem {
	primary, secondary := pickPrimary(a, b)
	merged := primary

	// Metadata follows whichever record was opened more recently.
	metaSrc := a
	if b.LastOpenedAt > a.LastOpenedAt {
		metaSrc = b
	}
	merged.Title = metaSrc.Title
	merged.Type = metaSrc.Type
	if metaSrc.Author != "" {
		merged.Author = metaSrc.Author
	} else if secondary.Author != "" && merged.Author == "" {
		merged.Author = secondary.Author
	}
	if metaSrc.SourceLabel != "" {
		merged.SourceLabel = metaSrc.SourceLabel
	}

	merged.CreatedAt = minNonZero(a.CreatedAt, b.CreatedAt)
	if a.LastOpenedAt > b.LastOpenedAt {
		merged.LastOpenedAt = a.LastOpenedAt
	} else {
		merged.LastOpenedAt = b.LastOpenedAt
	}

	// Backfill identity keys from whichever side has them.
	if merged.FileHash == "" {
		merged.FileHash = secondary.FileHash
	}
	if merged.URL == "" {
		merged.URL = secondary.URL
	}

	merged.LastPosition = furthestPosition(a.LastPosition, b.LastPosition)
	merged.Progress = furthestProgress(a.Progress, b.Progress)
	return merged
}

// pickPrimary decides which record keeps its identity: the further
// position wins, then the higher progress percentage, then the more
// recently opened record.
func pickPrimary(a, b models.ArchiveItem) (primary, secondary models.ArchiveItem) {
	switch {
	case positionFurther(a.LastPosition, b.LastPosition):
		return a, b
	case positionFurther(b.LastPosition, a.LastPosition):
		return b, a
	}
	ap, bp := progressPercent(a.Progress), progressPercent(b.Progress)
	switch {
	case ap > bp:
		return a, b
	case bp > ap:
		return b, a
	}
	if b.LastOpenedAt > a.LastOpenedAt {
		return b, a
	}
	return a, b
}

func positionFurther(a, b *models.ReadingPosition) bool {
	if a == nil {
		return false
	}
	if b == nil {
		return true
	}
	return a.IsFurtherThan(*b)
}

func furthestPosition(a, b *models.ReadingPosition) *models.ReadingPosition {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	further := models.FurtherPosition(*a, *b)
	return &further
}

func furthestProgress(a, b *models.ReadingProgress) *models.ReadingProgress {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if b.Percent > a.Percent {
		return b
	}
	return a
}

func progressPercent(p *models.ReadingProgress) float64 {
	if p == nil {
		return 0
	}
	return p.Percent
}

// hasTombstone reports whether any of the item's identity keys has a
// recorded deletion. Tombstones always win, however recent the item:
// a deletion on one device must not resurrect via another.
func hasTombstone(it models.ArchiveItem, tombstones map[string]int64) bool {
	if _, ok := tombstones[it.ID]; ok {
		return true
	}
	if it.FileHash != "" {
		if _, ok := tombstones[models.TombstoneHashKey(it.FileHash)]; ok {
			return true
		}
	}
	if it.URL != "" {
		if _, ok := tombstones[models.TombstoneURLKey(NormalizeURL(it.URL))]; ok {
			return true
		}
	}
	return false
}

func minNonZero(a, b int64) int64 {
	if a == 0 {
		return b
	}
	if b == 0 {
		return a
	}
	if a < b {
		return a
	}
	return b
}
