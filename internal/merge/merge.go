// Package merge reconciles two divergent sync state documents into
// one. MergeStates is a pure function: it never touches I/O, never
// mutates its inputs, and produces the same output for the same
// inputs regardless of which device runs it.
package merge

import (
	"bytes"
	"encoding/json"
	"sort"
	"time"

	"github.com/skimapp/skimsync/internal/models"
)

// Resolution values for conflict records.
const (
	ResolutionLocal  = "local"
	ResolutionRemote = "remote"
	ResolutionMerged = "merged"
)

// Conflict records a divergence the merge had to resolve.
type Conflict struct {
	Field      string      `json:"field"`
	Local      interface{} `json:"local,omitempty"`
	Remote     interface{} `json:"remote,omitempty"`
	Resolution string      `json:"resolution"`
}

// Result is the outcome of merging two state documents.
type Result struct {
	Merged     *models.SyncStateDocument
	Conflicts  []Conflict
	HasChanges bool
}

// MergeStates combines a local and a remote snapshot. The merged
// document is stamped with the merging device's id and the current
// wall clock.
//
// "Remote is newer" is decided from device wall-clock updatedAt
// values and is therefore subject to clock skew between devices; the
// furthest-position and max-merge rules keep most outcomes
// insensitive to it. A logical clock would fix the residue at the
// cost of a wire format change.
func MergeStates(local, remote *models.SyncStateDocument, localDeviceID string) *Result {
	// Work on shallow copies so Normalize cannot leak empty maps
	// into the caller's documents.
	l := *local
	r := *remote
	l.Normalize()
	r.Normalize()

	var conflicts []Conflict
	remoteNewer := r.UpdatedAt > l.UpdatedAt

	merged := models.NewSyncStateDocument(localDeviceID, time.Now().UnixMilli())
	merged.ContentManifest = mergeManifests(l.ContentManifest, r.ContentManifest)

	// Scalar fields: last writer wins by updatedAt.
	merged.Settings = l.Settings
	if !jsonEqual(l.Settings, r.Settings) {
		resolution := ResolutionLocal
		if remoteNewer {
			merged.Settings = r.Settings
			resolution = ResolutionRemote
		}
		conflicts = append(conflicts, Conflict{
			Field:      "settings",
			Local:      l.Settings,
			Remote:     r.Settings,
			Resolution: resolution,
		})
	}
	merged.OnboardingDone = mergeFlag(l.OnboardingDone, r.OnboardingDone, remoteNewer, "onboardingDone", &conflicts)
	merged.WelcomeSeen = mergeFlag(l.WelcomeSeen, r.WelcomeSeen, remoteNewer, "welcomeSeen", &conflicts)

	// Tombstones: union, newest deletion timestamp per key.
	merged.DeletedItems = mergeTombstones(l.DeletedItems, r.DeletedItems)

	merged.ArchiveItems = mergeArchiveItems(l.ArchiveItems, r.ArchiveItems, merged.DeletedItems)

	merged.Positions = mergePositions(l.Positions, r.Positions, &conflicts)

	merged.Presets = mergePresets(l.Presets, r.Presets)
	merged.CustomThemes = mergeThemes(l.CustomThemes, r.CustomThemes)

	merged.Collections = mergeCollections(l.Collections, r.Collections, remoteNewer)
	merged.Annotations = mergeAnnotations(l.Annotations, r.Annotations, remoteNewer)

	merged.ReadingStats = mergeReadingStats(l.ReadingStats, r.ReadingStats)

	hasChanges := len(conflicts) > 0 || !equalIgnoringStamp(&l, merged)

	return &Result{
		Merged:     merged,
		Conflicts:  conflicts,
		HasChanges: hasChanges,
	}
}

func mergeFlag(local, remote, remoteNewer bool, field string, conflicts *[]Conflict) bool {
	if local == remote {
		return local
	}
	winner := local
	resolution := ResolutionLocal
	if remoteNewer {
		winner = remote
		resolution = ResolutionRemote
	}
	*conflicts = append(*conflicts, Conflict{
		Field:      field,
		Local:      local,
		Remote:     remote,
		Resolution: resolution,
	})
	return winner
}

func mergeTombstones(local, remote map[string]int64) map[string]int64 {
	merged := make(map[string]int64, len(local)+len(remote))
	for key, ts := range local {
		merged[key] = ts
	}
	for key, ts := range remote {
		if existing, ok := merged[key]; !ok || ts > existing {
			merged[key] = ts
		}
	}
	return merged
}

// mergePositions keeps, per document, whichever side read further. A
// conflict is recorded whenever the chosen value differs from what
// the local device had.
func mergePositions(local, remote map[string]models.ReadingPosition, conflicts *[]Conflict) map[string]models.ReadingPosition {
	merged := make(map[string]models.ReadingPosition, len(local)+len(remote))
	for key, pos := range local {
		merged[key] = pos
	}
	for key, remotePos := range remote {
		localPos, exists := merged[key]
		if !exists {
			merged[key] = remotePos
			continue
		}
		chosen := models.FurtherPosition(localPos, remotePos)
		merged[key] = chosen
		if !positionsEqual(chosen, localPos) {
			*conflicts = append(*conflicts, Conflict{
				Field:      "position:" + key,
				Local:      localPos,
				Remote:     remotePos,
				Resolution: ResolutionRemote,
			})
		}
	}
	return merged
}

// positionsEqual compares positions by value. ChapterIndex is a
// pointer, so plain struct equality would compare identity.
func positionsEqual(a, b models.ReadingPosition) bool {
	return a.Chapter() == b.Chapter() &&
		a.BlockIndex == b.BlockIndex &&
		a.CharOffset == b.CharOffset &&
		a.Timestamp == b.Timestamp
}

// mergePresets unions by name; remote wins when both define the same
// preset.
func mergePresets(local, remote []models.Preset) []models.Preset {
	byName := make(map[string]models.Preset, len(local)+len(remote))
	for _, p := range local {
		byName[p.Name] = p
	}
	for _, p := range remote {
		byName[p.Name] = p
	}
	out := make([]models.Preset, 0, len(byName))
	for _, p := range byName {
		out = append(out, p)
	}
	sortPresets(out)
	return out
}

func mergeThemes(local, remote []models.Theme) []models.Theme {
	byName := make(map[string]models.Theme, len(local)+len(remote))
	for _, t := range local {
		byName[t.Name] = t
	}
	for _, t := range remote {
		byName[t.Name] = t
	}
	out := make([]models.Theme, 0, len(byName))
	for _, t := range byName {
		out = append(out, t)
	}
	sortThemes(out)
	return out
}

func sortPresets(presets []models.Preset) {
	sort.Slice(presets, func(i, j int) bool { return presets[i].Name < presets[j].Name })
}

func sortThemes(themes []models.Theme) {
	sort.Slice(themes, func(i, j int) bool { return themes[i].Name < themes[j].Name })
}

// mergeCollections unions by id with per-entry last-writer-wins.
// Remote-is-globally-newer only breaks exact timestamp ties.
func mergeCollections(local, remote []models.Collection, remoteNewer bool) []models.Collection {
	byID := make(map[string]models.Collection, len(local)+len(remote))
	for _, c := range local {
		byID[c.ID] = c
	}
	for _, c := range remote {
		existing, ok := byID[c.ID]
		if !ok || c.UpdatedAt > existing.UpdatedAt ||
			(c.UpdatedAt == existing.UpdatedAt && remoteNewer) {
			byID[c.ID] = c
		}
	}
	out := make([]models.Collection, 0, len(byID))
	for _, c := range byID {
		out = append(out, c)
	}
	sortCollections(out)
	return out
}

func sortCollections(collections []models.Collection) {
	sort.Slice(collections, func(i, j int) bool {
		if collections[i].UpdatedAt != collections[j].UpdatedAt {
			return collections[i].UpdatedAt > collections[j].UpdatedAt
		}
		return collections[i].ID < collections[j].ID
	})
}

func mergeAnnotations(local, remote map[string][]models.Annotation, remoteNewer bool) map[string][]models.Annotation {
	merged := make(map[string][]models.Annotation, len(local)+len(remote))
	docKeys := make(map[string]struct{}, len(local)+len(remote))
	for key := range local {
		docKeys[key] = struct{}{}
	}
	for key := range remote {
		docKeys[key] = struct{}{}
	}

	for docKey := range docKeys {
		byID := make(map[string]models.Annotation)
		for _, a := range local[docKey] {
			byID[a.ID] = a
		}
		for _, a := range remote[docKey] {
			existing, ok := byID[a.ID]
			if !ok || a.UpdatedAt > existing.UpdatedAt ||
				(a.UpdatedAt == existing.UpdatedAt && remoteNewer) {
				byID[a.ID] = a
			}
		}
		list := make([]models.Annotation, 0, len(byID))
		for _, a := range byID {
			list = append(list, a)
		}
		sortAnnotations(list)
		merged[docKey] = list
	}
	return merged
}

func sortAnnotations(list []models.Annotation) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt != list[j].CreatedAt {
			return list[i].CreatedAt < list[j].CreatedAt
		}
		return list[i].ID < list[j].ID
	})
}

// mergeManifests unions manifest entries, keeping the newer sync
// record per content key. The content manager reconciles the result
// against what is actually present after the state merge.
func mergeManifests(local, remote *models.ContentManifest) *models.ContentManifest {
	merged := models.NewContentManifest()
	for key, item := range local.Items {
		merged.Items[key] = item
	}
	for key, item := range remote.Items {
		if existing, ok := merged.Items[key]; !ok || item.SyncedAt > existing.SyncedAt {
			merged.Items[key] = item
		}
	}
	return merged
}

// equalIgnoringStamp compares two documents minus the device id and
// updatedAt stamp, with every order-carrying slice put into merge
// order first: a document whose archive happens to be stored in a
// different order than the merge emits is not a change of substance.
func equalIgnoringStamp(a, b *models.SyncStateDocument) bool {
	return jsonEqual(canonical(a), canonical(b))
}

// canonical returns a sorted, stamp-free copy. The original's slices
// are cloned before sorting so callers never see them reordered.
func canonical(doc *models.SyncStateDocument) *models.SyncStateDocument {
	c := *doc
	c.UpdatedAt = 0
	c.DeviceID = ""

	c.ArchiveItems = append([]models.ArchiveItem(nil), doc.ArchiveItems...)
	sortArchiveItems(c.ArchiveItems)
	c.Presets = append([]models.Preset(nil), doc.Presets...)
	sortPresets(c.Presets)
	c.CustomThemes = append([]models.Theme(nil), doc.CustomThemes...)
	sortThemes(c.CustomThemes)
	c.Collections = append([]models.Collection(nil), doc.Collections...)
	sortCollections(c.Collections)

	if len(doc.Annotations) > 0 {
		c.Annotations = make(map[string][]models.Annotation, len(doc.Annotations))
		for key, list := range doc.Annotations {
			sorted := append([]models.Annotation(nil), list...)
			sortAnnotations(sorted)
			c.Annotations[key] = sorted
		}
	}
	return &c
}

// jsonEqual compares two values by canonical JSON encoding. Go's
// encoder emits map keys sorted, so equal maps encode identically.
func jsonEqual(a, b interface{}) bool {
	aj, errA := json.Marshal(a)
	bj, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(aj, bj)
}
