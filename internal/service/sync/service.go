// Package sync drives the whole sync cycle: snapshot in, remote blob
// down, merge, apply, blob up, content reconciliation.
package sync

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/skimapp/skimsync/internal/content"
	"github.com/skimapp/skimsync/internal/crypto"
	"github.com/skimapp/skimsync/internal/events"
	"github.com/skimapp/skimsync/internal/models"
	"github.com/skimapp/skimsync/internal/remote"
	"github.com/skimapp/skimsync/internal/snapshot"
)

// MinPassphraseLength accepted by Configure.
const MinPassphraseLength = 8

// State of the orchestrator.
type State string

const (
	StateDisabled State = "disabled"
	StateIdle     State = "idle"
	StateSyncing  State = "syncing"
	StateError    State = "error"
)

// Phase within a running sync.
type Phase string

const (
	PhaseConnecting     Phase = "connecting"
	PhaseDownloading    Phase = "downloading"
	PhaseMerging        Phase = "merging"
	PhaseUploading      Phase = "uploading"
	PhaseSyncingContent Phase = "syncing-content"
)

// Sync result actions.
const (
	ActionUploaded = "uploaded"
	ActionMerged   = "merged"
	ActionNoChange = "no-change"
	ActionError    = "error"
)

// Status is a point-in-time view of the orchestrator.
type Status struct {
	State             State  `json:"state"`
	Phase             Phase  `json:"phase,omitempty"`
	Provider          string `json:"provider,omitempty"`
	EncryptionEnabled bool   `json:"encryptionEnabled"`
	LastSyncTime      int64  `json:"lastSyncTime,omitempty"`
	LastSyncError     string `json:"lastSyncError,omitempty"`
}

// Result summarizes one SyncNow call.
type Result struct {
	Success           bool                      `json:"success"`
	Action            string                    `json:"action"`
	Conflicts         int                       `json:"conflicts,omitempty"`
	ContentUploaded   int                       `json:"contentUploaded,omitempty"`
	ContentDownloaded int                       `json:"contentDownloaded,omitempty"`
	ContentErrors     []models.ContentItemError `json:"contentErrors,omitempty"`
	ContentPruned     int                       `json:"contentPruned,omitempty"`
	Error             string                    `json:"error,omitempty"`
	Duration          time.Duration             `json:"-"`
}

// Service is the sync orchestrator. It is an explicit instance owned
// by the embedding application; all mutable session state (provider,
// passphrase, status, listeners) lives here and nowhere else. The
// passphrase is held only in memory and never persisted.
type Service struct {
	snapshot snapshot.Store
	codec    *crypto.Codec
	emitter  *events.Emitter
	logger   *events.Logger

	mu         sync.Mutex
	store      remote.Store
	contentMgr *content.Manager
	syncing    bool
	status     Status
	passphrase string
	salt       []byte
	encryption bool
}

// NewService creates an orchestrator in the disabled state.
func NewService(snap snapshot.Store, codec *crypto.Codec, emitter *events.Emitter, logger *events.Logger) *Service {
	return &Service{
		snapshot: snap,
		codec:    codec,
		emitter:  emitter,
		logger:   logger.WithField("component", "sync_service"),
		status:   Status{State: StateDisabled},
	}
}

// Subscribe registers an event listener; returns its unsubscribe.
func (s *Service) Subscribe(fn events.Listener) func() {
	return s.emitter.Subscribe(fn)
}

// Status returns the current orchestrator status.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Configure validates the passphrase against any existing remote
// data, persists the configuration (salt only, never the passphrase)
// and arms the service.
func (s *Service) Configure(ctx context.Context, store remote.Store, passphrase string) error {
	if len(passphrase) < MinPassphraseLength {
		return &models.ConfigError{Reason: "passphrase", Err: models.ErrPassphraseTooShort}
	}

	salt, err := s.validateAgainstRemote(ctx, store, passphrase)
	if err != nil {
		return err
	}

	cfg := &snapshot.SyncConfig{
		Provider:          store.Name(),
		EncryptionEnabled: true,
		Salt:              base64.StdEncoding.EncodeToString(salt),
	}
	if err := s.snapshot.SaveSyncConfig(cfg); err != nil {
		return &models.ConfigError{Reason: "provider", Err: err}
	}

	s.mu.Lock()
	s.store = store
	s.contentMgr = content.NewManager(store, s.codec, s.logger)
	s.contentMgr.SetCredentials(passphrase, salt)
	s.passphrase = passphrase
	s.salt = salt
	s.encryption = true
	s.status = Status{State: StateIdle, Provider: store.Name(), EncryptionEnabled: true}
	s.mu.Unlock()

	s.emitter.Emit(events.EventProviderConnected, map[string]interface{}{
		"provider":   store.Name(),
		"encryption": true,
	})
	s.logger.WithField("provider", store.Name()).Info("Sync configured")
	return nil
}

// ConfigureWithoutEncryption arms the service in plaintext mode, for
// transports trusted at a lower layer.
func (s *Service) ConfigureWithoutEncryption(ctx context.Context, store remote.Store) error {
	if !store.IsConnected() {
		return &models.ConfigError{Reason: "provider", Err: models.ErrNotConnected}
	}

	cfg := &snapshot.SyncConfig{
		Provider:          store.Name(),
		EncryptionEnabled: false,
	}
	if err := s.snapshot.SaveSyncConfig(cfg); err != nil {
		return &models.ConfigError{Reason: "provider", Err: err}
	}

	s.mu.Lock()
	s.store = store
	s.contentMgr = content.NewManager(store, s.codec, s.logger)
	s.passphrase = ""
	s.salt = nil
	s.encryption = false
	s.status = Status{State: StateIdle, Provider: store.Name()}
	s.mu.Unlock()

	s.emitter.Emit(events.EventProviderConnected, map[string]interface{}{
		"provider":   store.Name(),
		"encryption": false,
	})
	s.logger.WithField("provider", store.Name()).Info("Sync configured without encryption")
	return nil
}

// Restore re-arms the service from persisted configuration, for a
// new process. The passphrase cannot be restored (it is never written
// anywhere); encrypted setups must supply it again before SyncNow
// will run. An empty passphrase still attaches the provider.
func (s *Service) Restore(store remote.Store, passphrase string) error {
	cfg, err := s.snapshot.LoadSyncConfig()
	if err != nil {
		return fmt.Errorf("load sync config: %w", err)
	}
	if cfg == nil {
		return models.ErrNotConfigured
	}

	var salt []byte
	if cfg.EncryptionEnabled {
		if salt, err = base64.StdEncoding.DecodeString(cfg.Salt); err != nil {
			return fmt.Errorf("decode stored salt: %w", err)
		}
	}

	s.mu.Lock()
	s.store = store
	s.contentMgr = content.NewManager(store, s.codec, s.logger)
	if cfg.EncryptionEnabled && passphrase != "" {
		s.contentMgr.SetCredentials(passphrase, salt)
	}
	s.passphrase = passphrase
	s.salt = salt
	s.encryption = cfg.EncryptionEnabled
	s.status = Status{
		State:             StateIdle,
		Provider:          store.Name(),
		EncryptionEnabled: cfg.EncryptionEnabled,
		LastSyncTime:      cfg.LastSyncTime,
	}
	s.mu.Unlock()
	return nil
}

// SyncNow runs one full sync cycle. A call while another sync is in
// flight fails fast without touching the network.
func (s *Service) SyncNow(ctx context.Context) *Result {
	s.mu.Lock()
	if s.syncing {
		s.mu.Unlock()
		return &Result{Success: false, Action: ActionError, Error: models.ErrSyncInProgress.Error()}
	}
	if s.store == nil {
		s.mu.Unlock()
		return &Result{Success: false, Action: ActionError, Error: models.ErrNotConfigured.Error()}
	}
	if s.encryption && s.passphrase == "" {
		s.mu.Unlock()
		return &Result{Success: false, Action: ActionError, Error: models.ErrPassphraseRequired.Error()}
	}
	s.syncing = true
	s.setPhaseLocked(PhaseConnecting)
	store := s.store
	mgr := s.contentMgr
	s.mu.Unlock()

	started := time.Now()
	s.emitter.Emit(events.EventSyncStarted, nil)

	result, err := s.runSync(ctx, store, mgr)
	duration := time.Since(started)

	s.mu.Lock()
	s.syncing = false
	if err != nil {
		s.status.State = StateError
		s.status.Phase = ""
		s.status.LastSyncError = err.Error()
	} else {
		s.status.State = StateIdle
		s.status.Phase = ""
		s.status.LastSyncError = ""
		s.status.LastSyncTime = time.Now().UnixMilli()
	}
	lastSync := s.status.LastSyncTime
	s.mu.Unlock()

	if err != nil {
		s.logger.WithError(err).Error("Sync failed")
		s.emitter.Emit(events.EventSyncFailed, map[string]interface{}{
			"error": err.Error(),
		})
		return &Result{Success: false, Action: ActionError, Error: err.Error(), Duration: duration}
	}
	result.Duration = duration

	if cfg, cfgErr := s.snapshot.LoadSyncConfig(); cfgErr == nil && cfg != nil {
		cfg.LastSyncTime = lastSync
		if saveErr := s.snapshot.SaveSyncConfig(cfg); saveErr != nil {
			s.logger.WithError(saveErr).Warn("Could not persist last sync time")
		}
	}

	s.emitter.Emit(events.EventSyncCompleted, map[string]interface{}{
		"action":    result.Action,
		"conflicts": result.Conflicts,
	})
	s.logger.WithFields(map[string]interface{}{
		"action":   result.Action,
		"duration": result.Duration.String(),
	}).Info("Sync completed")
	return result
}

// Disconnect revokes the provider session (best effort), clears all
// in-memory credentials and disables the service.
func (s *Service) Disconnect(ctx context.Context) {
	s.mu.Lock()
	store := s.store
	mgr := s.contentMgr
	s.store = nil
	s.contentMgr = nil
	s.passphrase = ""
	s.salt = nil
	s.encryption = false
	s.status = Status{State: StateDisabled}
	s.mu.Unlock()

	if mgr != nil {
		mgr.ClearCredentials()
	}
	if err := s.snapshot.DeleteSyncConfig(); err != nil {
		s.logger.WithError(err).Warn("Could not remove persisted sync config")
	}
	if store != nil {
		if err := store.Disconnect(ctx); err != nil {
			s.logger.WithError(err).Warn("Provider disconnect failed")
		}
		s.emitter.Emit(events.EventProviderDisconnected, map[string]interface{}{
			"provider": store.Name(),
		})
	}
	s.logger.Info("Sync disconnected")
}

func (s *Service) setPhase(phase Phase) {
	s.mu.Lock()
	s.setPhaseLocked(phase)
	s.mu.Unlock()
}

func (s *Service) setPhaseLocked(phase Phase) {
	s.status.State = StateSyncing
	s.status.Phase = phase
}

// validateAgainstRemote checks the passphrase against existing remote
// data, or generates a fresh salt when the remote is empty.
func (s *Service) validateAgainstRemote(ctx context.Context, store remote.Store, passphrase string) ([]byte, error) {
	meta, err := store.GetMetadata(ctx)
	if err != nil {
		return nil, &models.ConfigError{Reason: "provider", Err: err}
	}

	if meta.Exists {
		data, err := store.Download(ctx)
		if err != nil {
			return nil, &models.ConfigError{Reason: "provider", Err: err}
		}
		blob, err := models.ParseBlob(data)
		if err != nil {
			return nil, &models.ConfigError{Reason: "provider", Err: err}
		}
		if !blob.IsPlaintext() {
			ok, err := s.codec.VerifyPassphrase(blob, passphrase)
			if err != nil {
				return nil, &models.ConfigError{Reason: "provider", Err: err}
			}
			if !ok {
				return nil, &models.ConfigError{Reason: "decrypt", Err: models.ErrDecryptionFailed}
			}
			salt, err := base64.StdEncoding.DecodeString(blob.Salt)
			if err != nil {
				return nil, &models.ConfigError{Reason: "provider", Err: err}
			}
			return salt, nil
		}
	}

	salt, err := s.codec.GenerateSalt()
	if err != nil {
		return nil, &models.ConfigError{Reason: "provider", Err: err}
	}
	return salt, nil
}
