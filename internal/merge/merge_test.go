package merge_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skimapp/skimsync/internal/merge"
	"github.com/skimapp/skimsync/internal/models"
)

func intPtr(v int) *int { return &v }

func baseDoc(deviceID string, updatedAt int64) *models.SyncStateDocument {
	doc := models.NewSyncStateDocument(deviceID, updatedAt)
	return doc
}

func TestMergeStates_SelfMergeIsIdentity(t *testing.T) {
	doc := baseDoc("device-a", 1000)
	doc.ArchiveItems = []models.ArchiveItem{
		{ID: "item-1", Title: "Dune", FileHash: "h1", LastOpenedAt: 900},
		{ID: "item-2", Title: "Walden", URL: "https://example.com/walden", LastOpenedAt: 800},
	}
	doc.Positions = map[string]models.ReadingPosition{
		"item-1": {ChapterIndex: intPtr(2), BlockIndex: 14, Timestamp: 900},
	}
	doc.Settings = map[string]interface{}{"fontSize": float64(18)}
	doc.DeletedItems = map[string]int64{"hash:gone": 500}

	result := merge.MergeStates(doc, doc, "device-a")

	assert.Empty(t, result.Conflicts)
	assert.False(t, result.HasChanges)
	assert.Len(t, result.Merged.ArchiveItems, 2)
	assert.Equal(t, doc.Positions, result.Merged.Positions)
	assert.Equal(t, doc.Settings, result.Merged.Settings)
	assert.Equal(t, doc.DeletedItems, result.Merged.DeletedItems)
}

func TestMergeStates_SelfMergeIgnoresStoredOrder(t *testing.T) {
	// A store may hand the archive out in any order; the merge sorts
	// by last opened. Reordering alone is not a change of substance.
	doc := baseDoc("device-a", 1000)
	doc.ArchiveItems = []models.ArchiveItem{
		{ID: "item-1", Title: "Walden", FileHash: "h1", LastOpenedAt: 100},
		{ID: "item-2", Title: "Dune", FileHash: "h2", LastOpenedAt: 900},
	}
	doc.Presets = []models.Preset{
		{Name: "skim", WPM: 700, ChunkSize: 2},
		{Name: "focus", WPM: 450, ChunkSize: 1},
	}

	result := merge.MergeStates(doc, doc, "device-a")

	assert.Empty(t, result.Conflicts)
	assert.False(t, result.HasChanges)
	require.Len(t, result.Merged.ArchiveItems, 2)
	assert.Equal(t, "item-2", result.Merged.ArchiveItems[0].ID)

	// And the caller's slice keeps its own order.
	assert.Equal(t, "item-1", doc.ArchiveItems[0].ID)
	assert.Equal(t, "skim", doc.Presets[0].Name)
}

func TestMergeStates_StampsMergingDevice(t *testing.T) {
	local := baseDoc("device-a", 1000)
	remote := baseDoc("device-b", 2000)

	result := merge.MergeStates(local, remote, "device-a")

	assert.Equal(t, "device-a", result.Merged.DeviceID)
	assert.Equal(t, models.CurrentSchemaVersion, result.Merged.SchemaVersion)
	assert.GreaterOrEqual(t, result.Merged.UpdatedAt, local.UpdatedAt)
}

func TestMergeStates_DoesNotMutateInputs(t *testing.T) {
	local := &models.SyncStateDocument{SchemaVersion: 1, DeviceID: "device-a", UpdatedAt: 1000}
	remote := &models.SyncStateDocument{SchemaVersion: 1, DeviceID: "device-b", UpdatedAt: 2000}

	merge.MergeStates(local, remote, "device-a")

	// Normalize must not leak allocated maps back into the callers.
	assert.Nil(t, local.Settings)
	assert.Nil(t, local.Positions)
	assert.Nil(t, remote.DeletedItems)
	assert.Nil(t, remote.ContentManifest)
}

func TestMergeStates_FurthestPositionWins(t *testing.T) {
	local := baseDoc("device-a", 1000)
	local.Positions = map[string]models.ReadingPosition{
		"doc-1": {ChapterIndex: intPtr(1), BlockIndex: 5, Timestamp: 500},
	}
	remote := baseDoc("device-b", 900)
	remote.Positions = map[string]models.ReadingPosition{
		"doc-1": {ChapterIndex: intPtr(3), BlockIndex: 0, Timestamp: 400},
	}

	result := merge.MergeStates(local, remote, "device-a")

	// The remote side read further even though its snapshot and
	// position timestamps are older.
	got := result.Merged.Positions["doc-1"]
	assert.Equal(t, 3, got.Chapter())
	assert.Equal(t, 0, got.BlockIndex)

	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, "position:doc-1", result.Conflicts[0].Field)
	assert.Equal(t, merge.ResolutionRemote, result.Conflicts[0].Resolution)
	assert.True(t, result.HasChanges)
}

func TestMergeStates_LocalFurtherPositionNoConflict(t *testing.T) {
	local := baseDoc("device-a", 1000)
	local.Positions = map[string]models.ReadingPosition{
		"doc-1": {BlockIndex: 20, Timestamp: 500},
	}
	remote := baseDoc("device-b", 2000)
	remote.Positions = map[string]models.ReadingPosition{
		"doc-1": {BlockIndex: 3, Timestamp: 999},
	}

	result := merge.MergeStates(local, remote, "device-a")

	assert.Equal(t, 20, result.Merged.Positions["doc-1"].BlockIndex)
	assert.Empty(t, result.Conflicts)
}

func TestMergeStates_MergeIsSymmetric(t *testing.T) {
	docA := baseDoc("device-a", 1000)
	docA.ArchiveItems = []models.ArchiveItem{
		{ID: "a-1", FileHash: "h1", Title: "Dune", LastOpenedAt: 700,
			Progress: &models.ReadingProgress{Percent: 30}},
	}
	docA.Positions = map[string]models.ReadingPosition{
		"doc-1": {BlockIndex: 8, Timestamp: 100},
	}
	docB := baseDoc("device-b", 2000)
	docB.ArchiveItems = []models.ArchiveItem{
		{ID: "b-1", FileHash: "h1", Title: "Dune (annotated)", LastOpenedAt: 900,
			Progress: &models.ReadingProgress{Percent: 70}},
	}
	docB.Positions = map[string]models.ReadingPosition{
		"doc-1": {BlockIndex: 2, Timestamp: 300},
	}

	ab := merge.MergeStates(docA, docB, "device-x")
	ba := merge.MergeStates(docB, docA, "device-x")

	assert.Equal(t, ab.Merged.ArchiveItems, ba.Merged.ArchiveItems)
	assert.Equal(t, ab.Merged.Positions, ba.Merged.Positions)
	assert.Equal(t, ab.Merged.DeletedItems, ba.Merged.DeletedItems)
}

func TestMergeStates_ArchiveDedupeByFileHash(t *testing.T) {
	local := baseDoc("device-a", 1000)
	local.ArchiveItems = []models.ArchiveItem{
		{ID: "a-1", FileHash: "h1", Title: "Dune", CreatedAt: 100, LastOpenedAt: 700,
			Progress: &models.ReadingProgress{Percent: 30}},
	}
	remote := baseDoc("device-b", 2000)
	remote.ArchiveItems = []models.ArchiveItem{
		{ID: "b-1", FileHash: "h1", Title: "Dune", CreatedAt: 200, LastOpenedAt: 900,
			Progress: &models.ReadingProgress{Percent: 70}},
	}

	result := merge.MergeStates(local, remote, "device-a")

	require.Len(t, result.Merged.ArchiveItems, 1)
	got := result.Merged.ArchiveItems[0]
	// The record that read further keeps its identity and progress.
	assert.Equal(t, "b-1", got.ID)
	assert.Equal(t, float64(70), got.Progress.Percent)
	// Earliest creation, latest open.
	assert.Equal(t, int64(100), got.CreatedAt)
	assert.Equal(t, int64(900), got.LastOpenedAt)
	assert.True(t, result.HasChanges)
}

func TestMergeStates_ArchiveDedupeByNormalizedURL(t *testing.T) {
	local := baseDoc("device-a", 1000)
	local.ArchiveItems = []models.ArchiveItem{
		{ID: "a-1", Title: "Article", URL: "https://www.example.com/post?utm_source=x", LastOpenedAt: 500},
	}
	remote := baseDoc("device-b", 2000)
	remote.ArchiveItems = []models.ArchiveItem{
		{ID: "b-1", Title: "Article", URL: "https://example.com/post/", LastOpenedAt: 600},
	}

	result := merge.MergeStates(local, remote, "device-a")

	require.Len(t, result.Merged.ArchiveItems, 1)
}

func TestMergeStates_ArchiveBackfillsIdentityKeys(t *testing.T) {
	local := baseDoc("device-a", 1000)
	local.ArchiveItems = []models.ArchiveItem{
		{ID: "shared", Title: "Essay", FileHash: "h9", LastOpenedAt: 500},
	}
	remote := baseDoc("device-b", 2000)
	remote.ArchiveItems = []models.ArchiveItem{
		{ID: "shared", Title: "Essay", URL: "https://example.com/essay", LastOpenedAt: 400},
	}

	result := merge.MergeStates(local, remote, "device-a")

	require.Len(t, result.Merged.ArchiveItems, 1)
	got := result.Merged.ArchiveItems[0]
	assert.Equal(t, "h9", got.FileHash)
	assert.Equal(t, "https://example.com/essay", got.URL)
}

func TestMergeStates_TombstoneAlwaysExcludes(t *testing.T) {
	local := baseDoc("device-a", 1000)
	local.DeletedItems = map[string]int64{models.TombstoneHashKey("h1"): 5000}
	remote := baseDoc("device-b", 2000)
	// Opened after the deletion on the other device: the tombstone
	// still wins, the item must not resurrect.
	remote.ArchiveItems = []models.ArchiveItem{
		{ID: "b-1", FileHash: "h1", Title: "Deleted elsewhere", LastOpenedAt: 9000},
	}

	result := merge.MergeStates(local, remote, "device-a")

	assert.Empty(t, result.Merged.ArchiveItems)
	assert.Equal(t, int64(5000), result.Merged.DeletedItems[models.TombstoneHashKey("h1")])
}

func TestMergeStates_TombstoneByNormalizedURL(t *testing.T) {
	local := baseDoc("device-a", 1000)
	local.DeletedItems = map[string]int64{
		models.TombstoneURLKey("https://example.com/post"): 5000,
	}
	remote := baseDoc("device-b", 2000)
	remote.ArchiveItems = []models.ArchiveItem{
		{ID: "b-1", Title: "Post", URL: "https://www.Example.com/post/", LastOpenedAt: 100},
	}

	result := merge.MergeStates(local, remote, "device-a")

	assert.Empty(t, result.Merged.ArchiveItems)
}

func TestMergeStates_TombstonesUnionNewestTimestamp(t *testing.T) {
	local := baseDoc("device-a", 1000)
	local.DeletedItems = map[string]int64{"item-x": 100, "item-y": 900}
	remote := baseDoc("device-b", 2000)
	remote.DeletedItems = map[string]int64{"item-x": 300, "item-z": 50}

	result := merge.MergeStates(local, remote, "device-a")

	assert.Equal(t, map[string]int64{
		"item-x": 300,
		"item-y": 900,
		"item-z": 50,
	}, result.Merged.DeletedItems)
}

func TestMergeStates_SettingsLastWriterWins(t *testing.T) {
	local := baseDoc("device-a", 1000)
	local.Settings = map[string]interface{}{"theme": "dark"}
	remote := baseDoc("device-b", 2000)
	remote.Settings = map[string]interface{}{"theme": "sepia"}

	result := merge.MergeStates(local, remote, "device-a")

	assert.Equal(t, "sepia", result.Merged.Settings["theme"])
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, "settings", result.Conflicts[0].Field)
	assert.Equal(t, merge.ResolutionRemote, result.Conflicts[0].Resolution)

	// Reverse recency keeps local and flips the resolution.
	local.UpdatedAt = 3000
	result = merge.MergeStates(local, remote, "device-a")
	assert.Equal(t, "dark", result.Merged.Settings["theme"])
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, merge.ResolutionLocal, result.Conflicts[0].Resolution)
}

func TestMergeStates_EqualSettingsNoConflict(t *testing.T) {
	local := baseDoc("device-a", 1000)
	local.Settings = map[string]interface{}{"wpm": float64(350), "theme": "dark"}
	remote := baseDoc("device-b", 2000)
	remote.Settings = map[string]interface{}{"theme": "dark", "wpm": float64(350)}

	result := merge.MergeStates(local, remote, "device-a")
	assert.Empty(t, result.Conflicts)
}

func TestMergeStates_FlagsLastWriterWins(t *testing.T) {
	local := baseDoc("device-a", 1000)
	local.OnboardingDone = true
	remote := baseDoc("device-b", 2000)
	remote.WelcomeSeen = true

	result := merge.MergeStates(local, remote, "device-a")

	// Remote is newer, so its values win both disputes.
	assert.False(t, result.Merged.OnboardingDone)
	assert.True(t, result.Merged.WelcomeSeen)
	assert.Len(t, result.Conflicts, 2)
}

func TestMergeStates_PresetsAndThemesUnion(t *testing.T) {
	local := baseDoc("device-a", 1000)
	local.Presets = []models.Preset{
		{Name: "commute", WPM: 300, ChunkSize: 2},
		{Name: "focus", WPM: 450, ChunkSize: 1},
	}
	local.CustomThemes = []models.Theme{
		{Name: "night", Colors: map[string]string{"bg": "#000"}},
	}
	remote := baseDoc("device-b", 2000)
	remote.Presets = []models.Preset{
		{Name: "focus", WPM: 500, ChunkSize: 3},
		{Name: "skim", WPM: 700, ChunkSize: 4},
	}
	remote.CustomThemes = []models.Theme{
		{Name: "night", Colors: map[string]string{"bg": "#111"}},
		{Name: "paper", Colors: map[string]string{"bg": "#fdf6e3"}},
	}

	result := merge.MergeStates(local, remote, "device-a")

	require.Len(t, result.Merged.Presets, 3)
	assert.Equal(t, "commute", result.Merged.Presets[0].Name)
	assert.Equal(t, "focus", result.Merged.Presets[1].Name)
	assert.Equal(t, 500, result.Merged.Presets[1].WPM, "remote wins the shared name")
	assert.Equal(t, "skim", result.Merged.Presets[2].Name)

	require.Len(t, result.Merged.CustomThemes, 2)
	assert.Equal(t, "#111", result.Merged.CustomThemes[0].Colors["bg"])
}

func TestMergeStates_CollectionsPerEntryLWW(t *testing.T) {
	local := baseDoc("device-a", 5000)
	local.Collections = []models.Collection{
		{ID: "c1", Name: "To Read", ItemIDs: []string{"a"}, UpdatedAt: 400},
		{ID: "c2", Name: "Favorites", ItemIDs: []string{"b"}, UpdatedAt: 100},
	}
	remote := baseDoc("device-b", 1000)
	remote.Collections = []models.Collection{
		{ID: "c1", Name: "Reading List", ItemIDs: []string{"a", "c"}, UpdatedAt: 300},
		{ID: "c3", Name: "Archive", UpdatedAt: 200},
	}

	result := merge.MergeStates(local, remote, "device-a")

	require.Len(t, result.Merged.Collections, 3)
	byID := make(map[string]models.Collection)
	for _, c := range result.Merged.Collections {
		byID[c.ID] = c
	}
	// c1: local entry is newer even though the remote snapshot is not.
	assert.Equal(t, "To Read", byID["c1"].Name)
	assert.Equal(t, "Favorites", byID["c2"].Name)
	assert.Equal(t, "Archive", byID["c3"].Name)
}

func TestMergeStates_AnnotationsPerEntryLWW(t *testing.T) {
	local := baseDoc("device-a", 1000)
	local.Annotations = map[string][]models.Annotation{
		"doc-1": {
			{ID: "n1", Text: "original", CreatedAt: 10, UpdatedAt: 100},
			{ID: "n2", Text: "only local", CreatedAt: 20, UpdatedAt: 50},
		},
	}
	remote := baseDoc("device-b", 2000)
	remote.Annotations = map[string][]models.Annotation{
		"doc-1": {
			{ID: "n1", Text: "edited elsewhere", CreatedAt: 10, UpdatedAt: 300},
		},
		"doc-2": {
			{ID: "n3", Text: "only remote", CreatedAt: 5, UpdatedAt: 5},
		},
	}

	result := merge.MergeStates(local, remote, "device-a")

	require.Len(t, result.Merged.Annotations["doc-1"], 2)
	assert.Equal(t, "edited elsewhere", result.Merged.Annotations["doc-1"][0].Text)
	assert.Equal(t, "only local", result.Merged.Annotations["doc-1"][1].Text)
	require.Len(t, result.Merged.Annotations["doc-2"], 1)
}

func TestMergeStates_StatsTakeMaximumNeverSum(t *testing.T) {
	local := baseDoc("device-a", 1000)
	local.ReadingStats = models.NewReadingStats()
	local.ReadingStats.Daily["2026-08-25"] = models.StatBucket{WordsRead: 4000, MinutesRead: 30}
	local.ReadingStats.PersonalBest.FastestWPM = 620
	local.ReadingStats.HourlyActivity[9] = 12

	remote := baseDoc("device-b", 2000)
	remote.ReadingStats = models.NewReadingStats()
	remote.ReadingStats.Daily["2026-08-25"] = models.StatBucket{WordsRead: 2500, MinutesRead: 45}
	remote.ReadingStats.Daily["2026-08-24"] = models.StatBucket{WordsRead: 800, MinutesRead: 6}
	remote.ReadingStats.PersonalBest.FastestWPM = 580
	remote.ReadingStats.HourlyActivity[9] = 20

	result := merge.MergeStates(local, remote, "device-a")

	stats := result.Merged.ReadingStats
	require.NotNil(t, stats)
	// Per-field max, never addition: 4000+2500 would double-count.
	assert.Equal(t, 4000, stats.Daily["2026-08-25"].WordsRead)
	assert.Equal(t, 45, stats.Daily["2026-08-25"].MinutesRead)
	assert.Equal(t, 800, stats.Daily["2026-08-24"].WordsRead)
	assert.Equal(t, 620, stats.PersonalBest.FastestWPM)
	assert.Equal(t, 20, stats.HourlyActivity[9])
}

func TestMergeStates_ManifestUnionNewerSyncWins(t *testing.T) {
	local := baseDoc("device-a", 1000)
	local.ContentManifest = models.NewContentManifest()
	local.ContentManifest.Items["k1"] = models.ContentManifestItem{
		ContentKey: "k1", ArchiveItemID: "a-1", SyncedAt: 100,
	}
	remote := baseDoc("device-b", 2000)
	remote.ContentManifest = models.NewContentManifest()
	remote.ContentManifest.Items["k1"] = models.ContentManifestItem{
		ContentKey: "k1", ArchiveItemID: "b-1", SyncedAt: 300,
	}
	remote.ContentManifest.Items["k2"] = models.ContentManifestItem{
		ContentKey: "k2", ArchiveItemID: "b-2", SyncedAt: 50,
	}

	result := merge.MergeStates(local, remote, "device-a")

	manifest := result.Merged.ContentManifest
	require.Len(t, manifest.Items, 2)
	assert.Equal(t, "b-1", manifest.Items["k1"].ArchiveItemID)
}

func TestMergeStates_RemoteOnlyItemsAdopted(t *testing.T) {
	local := baseDoc("device-a", 1000)
	remote := baseDoc("device-b", 2000)
	remote.ArchiveItems = []models.ArchiveItem{
		{ID: "b-1", Title: "New on the other device", LastOpenedAt: 100},
	}
	remote.Positions = map[string]models.ReadingPosition{
		"b-1": {BlockIndex: 2, Timestamp: 100},
	}

	result := merge.MergeStates(local, remote, "device-a")

	require.Len(t, result.Merged.ArchiveItems, 1)
	assert.Contains(t, result.Merged.Positions, "b-1")
	assert.True(t, result.HasChanges)
	// Adopting remote content is not a conflict.
	assert.Empty(t, result.Conflicts)
}

func TestMergeStates_ArchiveSortedByLastOpened(t *testing.T) {
	local := baseDoc("device-a", 1000)
	local.ArchiveItems = []models.ArchiveItem{
		{ID: "old", Title: "Old", LastOpenedAt: 100},
		{ID: "newer", Title: "Newer", LastOpenedAt: 900},
	}
	remote := baseDoc("device-b", 2000)
	remote.ArchiveItems = []models.ArchiveItem{
		{ID: "mid", Title: "Middle", LastOpenedAt: 500},
	}

	result := merge.MergeStates(local, remote, "device-a")

	require.Len(t, result.Merged.ArchiveItems, 3)
	assert.Equal(t, "newer", result.Merged.ArchiveItems[0].ID)
	assert.Equal(t, "mid", result.Merged.ArchiveItems[1].ID)
	assert.Equal(t, "old", result.Merged.ArchiveItems[2].ID)
}
