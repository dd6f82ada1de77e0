// Package modelstore manages the lifecycle of on-device model files: download, verification,
// selection and deletion.
package modelstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/Veraticus/spice-import/internal/common"
	"github.com/Veraticus/spice-import/internal/model"
	"github.com/Veraticus/spice-import/internal/service"
	"github.com/Veraticus/spice-import/internal/stream"
)

// Errors returned by the manager.
var (
	ErrDownloadInProgress = errors.New("download already in progress")
	ErrModelCorrupted     = errors.New("model file is corrupted")
	ErrInvalidModelID     = errors.New("invalid model id")
)

var validID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// CatalogEntry describes a downloadable model.
type CatalogEntry struct {
	ID        string
	Name      string
	URL       string
	SHA256    string
	SizeBytes int64
}

// Progress reports the state of one download.
type Progress struct {
	Err        error
	ModelID    string
	Downloaded int64
	Total      int64
	Done       bool
}

// Fraction is the completed share in [0,1], or 0 when the size is unknown.
func (p Progress) Fraction() float64 {
	if p.Total <= 0 {
		return 0
	}
	return min(float64(p.Downloaded)/float64(p.Total), 1)
}

// Manager implements the model lifecycle on top of a model store and a directory.
type Manager struct {
	store      service.ModelStore
	httpClient *http.Client
	logger     *slog.Logger
	progress   *stream.Latest[Progress]
	downloads  map[string]context.CancelFunc
	dir        string
	mu         sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithHTTPClient replaces the download client.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) { m.httpClient = c }
}

// WithLogger sets the manager logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a manager storing model files under dir.
func NewManager(store service.ModelStore, dir string, opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		dir:       dir,
		downloads: make(map[string]context.CancelFunc),
		progress:  stream.NewLatest(Progress{}),
		httpClient: &http.Client{
			Transport: &http.Transport{
				IdleConnTimeout:       90 * time.Second,
				ResponseHeaderTimeout: 30 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = common.LoggerOrDefault(m.logger)
	return m
}

// Progress exposes download progress. Only the newest value is retained.
func (m *Manager) Progress() *stream.Latest[Progress] {
	return m.progress
}

// InstalledModels lists every known model.
func (m *Manager) InstalledModels(ctx context.Context) ([]model.InstalledModel, error) {
	return m.store.ListInstalledModels(ctx)
}

// SelectedModel returns the model used for on-device inference.
func (m *Manager) SelectedModel(ctx context.Context) (*model.InstalledModel, error) {
	return m.store.GetSelectedModel(ctx)
}

// SelectModel makes id the on-device model. Corrupted or incomplete models cannot be selected.
func (m *Manager) SelectModel(ctx context.Context, id string) error {
	installed, err := m.store.GetInstalledModel(ctx, id)
	if err != nil {
		return err
	}
	if installed.Status == model.ModelStatusCorrupted {
		return fmt.Errorf("model %s: %w", id, ErrModelCorrupted)
	}
	if installed.Status != model.ModelStatusReady {
		return fmt.Errorf("model %s is %s", id, installed.Status)
	}
	if err := m.store.SelectModel(ctx, id); err != nil {
		return err
	}
	m.logger.Info("selected model", "model", id)
	return nil
}

// DeleteModel removes the model file and its record.
func (m *Manager) DeleteModel(ctx context.Context, id string) error {
	installed, err := m.store.GetInstalledModel(ctx, id)
	if err != nil {
		return err
	}
	if m.isDownloading(id) {
		return fmt.Errorf("model %s: %w", id, ErrDownloadInProgress)
	}
	if err := os.Remove(installed.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove model file: %w", err)
	}
	if err := m.store.DeleteInstalledModel(ctx, id); err != nil {
		return err
	}
	m.logger.Info("deleted model", "model", id)
	return nil
}

func (m *Manager) isDownloading(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.downloads[id]
	return ok
}

// CancelDownload stops an active download. It is safe to call from any goroutine and
// reports whether a download was running.
func (m *Manager) CancelDownload(id string) bool {
	m.mu.Lock()
	cancel, ok := m.downloads[id]
	m.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// DiscardIncomplete cancels a download of id running in this process, or removes the record and
// partial file a download in an exited process left behind. It returns ErrNotFound when id is
// neither downloading nor recorded as downloading.
func (m *Manager) DiscardIncomplete(ctx context.Context, id string) error {
	if m.CancelDownload(id) {
		return nil
	}
	installed, err := m.store.GetInstalledModel(ctx, id)
	if err != nil {
		return err
	}
	if installed.Status != model.ModelStatusDownloading {
		return fmt.Errorf("model %s is %s: %w", id, installed.Status, common.ErrNotFound)
	}
	if err := os.Remove(installed.Path + ".part"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove partial download: %w", err)
	}
	if err := m.store.DeleteInstalledModel(ctx, id); err != nil {
		return err
	}
	m.logger.Info("discarded incomplete download", "model", id)
	return nil
}

// DownloadModel fetches entry into the model directory and verifies its checksum. A checksum
// mismatch leaves the model recorded as corrupted. A failed or cancelled download leaves nothing
// behind, and a failed re-download of an installed model leaves that model as it was. The first
// ready model is selected automatically.
func (m *Manager) DownloadModel(ctx context.Context, entry CatalogEntry) (*model.InstalledModel, error) {
	if !validID.MatchString(entry.ID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidModelID, entry.ID)
	}
	if entry.URL == "" {
		return nil, fmt.Errorf("model %s has no download URL: %w", entry.ID, common.ErrMissingConfig)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := m.register(entry.ID, cancel); err != nil {
		return nil, err
	}
	defer m.unregister(entry.ID)

	if err := os.MkdirAll(m.dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create model directory: %w", err)
	}

	installed := &model.InstalledModel{
		ID:     entry.ID,
		Name:   entry.Name,
		Path:   filepath.Join(m.dir, entry.ID+".gguf"),
		SHA256: strings.ToLower(entry.SHA256),
		Status: model.ModelStatusDownloading,
	}
	if installed.Name == "" {
		installed.Name = entry.ID
	}
	// A re-download keeps the existing record so a failure can put it back.
	previous, err := m.store.GetInstalledModel(ctx, entry.ID)
	switch {
	case errors.Is(err, common.ErrNotFound):
		previous = nil
	case err != nil:
		return nil, err
	case previous.Status == model.ModelStatusDownloading:
		previous = nil
	}
	if err := m.store.SaveInstalledModel(ctx, installed); err != nil {
		return nil, err
	}

	m.logger.Info("downloading model", "model", entry.ID, "url", entry.URL)
	sum, size, err := m.fetch(ctx, entry, installed.Path)
	if err != nil {
		m.progress.Publish(Progress{ModelID: entry.ID, Done: true, Err: err})
		m.rollback(context.WithoutCancel(ctx), entry.ID, previous)
		return nil, err
	}

	installed.SizeBytes = size
	installed.Status = model.ModelStatusReady
	switch {
	case installed.SHA256 == "":
		installed.SHA256 = sum
		m.logger.Warn("no checksum to verify against, recording computed digest", "model", entry.ID)
	case installed.SHA256 != sum:
		installed.Status = model.ModelStatusCorrupted
		m.logger.Error("model checksum mismatch", "model", entry.ID, "expected", installed.SHA256, "actual", sum)
	}
	if err := m.store.SaveInstalledModel(ctx, installed); err != nil {
		return nil, err
	}

	if installed.Status == model.ModelStatusCorrupted {
		err := fmt.Errorf("model %s: %w", entry.ID, ErrModelCorrupted)
		m.progress.Publish(Progress{ModelID: entry.ID, Downloaded: size, Total: size, Done: true, Err: err})
		return installed, err
	}

	if _, err := m.store.GetSelectedModel(ctx); errors.Is(err, common.ErrNotFound) {
		if err := m.store.SelectModel(ctx, installed.ID); err != nil {
			return nil, err
		}
		installed.Selected = true
	}

	m.progress.Publish(Progress{ModelID: entry.ID, Downloaded: size, Total: size, Done: true})
	m.logger.Info("model ready", "model", entry.ID, "bytes", size)
	return installed, nil
}

// rollback undoes the downloading record: a model that was installed before gets its old row
// back, anything else is removed. ctx must not be the cancelled download context.
func (m *Manager) rollback(ctx context.Context, id string, previous *model.InstalledModel) {
	if previous != nil {
		if err := m.store.SaveInstalledModel(ctx, previous); err != nil {
			m.logger.Warn("failed to restore model record", "model", id, "error", err)
		}
		return
	}
	if err := m.store.DeleteInstalledModel(ctx, id); err != nil {
		m.logger.Warn("failed to remove incomplete model record", "model", id, "error", err)
	}
}

func (m *Manager) register(id string, cancel context.CancelFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.downloads[id]; ok {
		return fmt.Errorf("model %s: %w", id, ErrDownloadInProgress)
	}
	m.downloads[id] = cancel
	return nil
}

func (m *Manager) unregister(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.downloads, id)
}

// fetch streams the model into a .part file, renaming it into place only when complete.
func (m *Manager) fetch(ctx context.Context, entry CatalogEntry, dest string) (string, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, entry.URL, nil)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("download failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("download failed: status %d", resp.StatusCode)
	}

	total := resp.ContentLength
	if total <= 0 {
		total = entry.SizeBytes
	}

	part := dest + ".part"
	f, err := os.OpenFile(part, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o640)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create model file: %w", err)
	}
	cleanup := func() {
		_ = f.Close()
		_ = os.Remove(part)
	}

	hash := sha256.New()
	counter := &progressWriter{id: entry.ID, total: total, stream: m.progress}
	m.progress.Publish(Progress{ModelID: entry.ID, Total: total})

	written, err := io.Copy(io.MultiWriter(f, hash, counter), resp.Body)
	if err != nil {
		cleanup()
		if ctx.Err() != nil {
			return "", 0, fmt.Errorf("download of %s cancelled: %w", entry.ID, ctx.Err())
		}
		return "", 0, fmt.Errorf("download interrupted: %w", err)
	}
	if total > 0 && written != total {
		cleanup()
		return "", 0, fmt.Errorf("download truncated: got %d of %d bytes", written, total)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(part)
		return "", 0, fmt.Errorf("failed to write model file: %w", err)
	}
	if err := os.Rename(part, dest); err != nil {
		_ = os.Remove(part)
		return "", 0, fmt.Errorf("failed to move model into place: %w", err)
	}
	return hex.EncodeToString(hash.Sum(nil)), written, nil
}

// progressWriter publishes the running byte count.
type progressWriter struct {
	stream     *stream.Latest[Progress]
	id         string
	downloaded int64
	total      int64
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.downloaded += int64(len(p))
	w.stream.Publish(Progress{ModelID: w.id, Downloaded: w.downloaded, Total: w.total})
	return len(p), nil
}
