package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/skimapp/skimsync/internal/content"
	"github.com/skimapp/skimsync/internal/events"
	"github.com/skimapp/skimsync/internal/merge"
	"github.com/skimapp/skimsync/internal/models"
	"github.com/skimapp/skimsync/internal/remote"
)

// runSync executes one cycle: local snapshot out, remote blob down,
// merge, apply, blob up, content reconciliation. Any returned error
// aborts the attempt; per-item content failures do not.
func (s *Service) runSync(ctx context.Context, store remote.Store, mgr *content.Manager) (*Result, error) {
	local, err := s.snapshot.StateForSync()
	if err != nil {
		return nil, &models.SyncError{Code: models.ErrCodeState, Phase: string(PhaseConnecting), Err: err}
	}
	deviceID, err := s.snapshot.DeviceID()
	if err != nil {
		return nil, &models.SyncError{Code: models.ErrCodeState, Phase: string(PhaseConnecting), Err: err}
	}

	meta, err := store.GetMetadata(ctx)
	if err != nil {
		return nil, &models.SyncError{Code: models.ErrCodeDownload, Phase: string(PhaseConnecting), Err: err}
	}

	// First sync against an empty remote: push the state, then let
	// content reconciliation move the blobs it references.
	if !meta.Exists {
		s.setPhase(PhaseUploading)
		if err := s.uploadState(ctx, store, local); err != nil {
			return nil, err
		}
		s.logger.Info("Initial state uploaded")
		result := &Result{Success: true, Action: ActionUploaded}
		s.setPhase(PhaseSyncingContent)
		if err := s.syncContent(ctx, store, mgr, local, result); err != nil {
			return nil, err
		}
		return result, nil
	}

	s.setPhase(PhaseDownloading)
	remoteDoc, err := s.downloadState(ctx, store)
	if err != nil {
		return nil, err
	}

	// Same device, same timestamp: the remote is our own last upload.
	// The state needs no merge, but content cached since then may
	// still be waiting for its blob to move either way.
	if remoteDoc.DeviceID == local.DeviceID && remoteDoc.UpdatedAt == local.UpdatedAt {
		s.logger.Debug("Remote matches local snapshot, nothing to merge")
		result := &Result{Success: true, Action: ActionNoChange}
		s.setPhase(PhaseSyncingContent)
		if err := s.syncContent(ctx, store, mgr, local, result); err != nil {
			return nil, err
		}
		return result, nil
	}

	s.setPhase(PhaseMerging)
	res := merge.MergeStates(local, remoteDoc, deviceID)
	if len(res.Conflicts) > 0 {
		s.emitter.Emit(events.EventConflictDetected, map[string]interface{}{
			"count":     len(res.Conflicts),
			"conflicts": res.Conflicts,
		})
	}

	if err := s.snapshot.ApplyRemoteState(res.Merged); err != nil {
		return nil, &models.SyncError{Code: models.ErrCodeState, Phase: string(PhaseMerging), Err: err}
	}

	if res.HasChanges || local.UpdatedAt > remoteDoc.UpdatedAt {
		s.setPhase(PhaseUploading)
		if err := s.uploadState(ctx, store, res.Merged); err != nil {
			return nil, err
		}
	}

	s.setPhase(PhaseSyncingContent)
	result := &Result{Success: true, Action: ActionMerged, Conflicts: len(res.Conflicts)}
	if err := s.syncContent(ctx, store, mgr, res.Merged, result); err != nil {
		return nil, err
	}
	return result, nil
}

// syncContent reconciles content blobs against the merged manifest
// and, when the manifest changed, patches and re-uploads the state.
func (s *Service) syncContent(ctx context.Context, store remote.Store, mgr *content.Manager, merged *models.SyncStateDocument, result *Result) error {
	items, err := s.snapshot.ItemsWithCachedContent()
	if err != nil {
		return &models.SyncError{Code: models.ErrCodeState, Phase: string(PhaseSyncingContent), Err: err}
	}

	// Prune first: a manifest entry whose item the merge removed
	// would otherwise be downloaded, and applying it fails on the
	// missing item.
	live := make(map[string]bool, len(merged.ArchiveItems))
	for _, item := range merged.ArchiveItems {
		live[item.ID] = true
	}
	pruned, removed := mgr.PruneOrphanedContent(ctx, merged.ContentManifest, live)
	result.ContentPruned = removed

	csRes := mgr.SyncContent(ctx, items, pruned)
	result.ContentUploaded = len(csRes.Uploaded)
	result.ContentDownloaded = len(csRes.Downloaded)
	result.ContentErrors = csRes.Errors

	for _, dl := range csRes.Downloaded {
		if err := s.snapshot.UpdateCachedDocument(dl.ArchiveItemID, dl.Document); err != nil {
			s.logger.WithError(err).WithField("item_id", dl.ArchiveItemID).Warn("Could not apply downloaded content")
			result.ContentErrors = append(result.ContentErrors, models.ContentItemError{
				ItemID:    dl.ArchiveItemID,
				Operation: "download",
				Message:   err.Error(),
			})
		}
	}

	if csRes.Changed() || removed > 0 {
		merged.ContentManifest = csRes.Manifest
		if err := s.uploadState(ctx, store, merged); err != nil {
			return err
		}
		if err := s.snapshot.ApplyRemoteState(merged); err != nil {
			return &models.SyncError{Code: models.ErrCodeState, Phase: string(PhaseSyncingContent), Err: err}
		}
	}
	return nil
}

// uploadState wraps the document per the encryption mode and pushes
// it as the remote state file.
func (s *Service) uploadState(ctx context.Context, store remote.Store, doc *models.SyncStateDocument) error {
	if err := doc.Validate(); err != nil {
		return &models.SyncError{Code: models.ErrCodeState, Phase: string(PhaseUploading), Err: err}
	}

	s.mu.Lock()
	passphrase, salt, encrypt := s.passphrase, s.salt, s.encryption
	s.mu.Unlock()

	var blob *models.EncryptedBlob
	var err error
	if encrypt {
		blob, err = s.codec.Encrypt(doc, passphrase, salt)
	} else {
		blob, err = s.codec.EncryptPlaintext(doc)
	}
	if err != nil {
		return &models.SyncError{Code: models.ErrCodeState, Phase: string(PhaseUploading), Err: err}
	}

	data, err := blob.Marshal()
	if err != nil {
		return &models.SyncError{Code: models.ErrCodeState, Phase: string(PhaseUploading), Err: err}
	}

	if _, err := store.Upload(ctx, data); err != nil {
		return &models.SyncError{Code: models.ErrCodeUpload, Phase: string(PhaseUploading), Err: fmt.Errorf("upload state file: %w", err)}
	}
	return nil
}

// downloadState fetches and opens the remote state document.
func (s *Service) downloadState(ctx context.Context, store remote.Store) (*models.SyncStateDocument, error) {
	data, err := store.Download(ctx)
	if errors.Is(err, models.ErrNoRemoteData) {
		return nil, &models.SyncError{Code: models.ErrCodeDownload, Phase: string(PhaseDownloading), Err: err}
	}
	if err != nil {
		return nil, &models.SyncError{Code: models.ErrCodeDownload, Phase: string(PhaseDownloading), Err: fmt.Errorf("download state file: %w", err)}
	}

	blob, err := models.ParseBlob(data)
	if err != nil {
		return nil, &models.SyncError{Code: models.ErrCodeDownload, Phase: string(PhaseDownloading), Err: err}
	}

	s.mu.Lock()
	passphrase := s.passphrase
	s.mu.Unlock()

	var doc models.SyncStateDocument
	if err := s.codec.Decrypt(blob, passphrase, &doc); err != nil {
		return nil, &models.SyncError{Code: models.ErrCodeDecryption, Phase: string(PhaseDownloading), Err: err}
	}
	doc.Normalize()
	return &doc, nil
}
