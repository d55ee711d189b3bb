package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"
)

// Workspace owns the uploads, temp and output directories shared by all jobs.
// Every file a job creates is namespaced by its job id.
type Workspace struct {
	Root    string
	Uploads string
	Temp    string
	Output  string

	lockPath string
	lock     *flock.Flock
	logger   *zap.Logger
}

// NewWorkspace creates the working directories under root
func NewWorkspace(root string, logger *zap.Logger) (*Workspace, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}
	w := &Workspace{
		Root:     abs,
		Uploads:  filepath.Join(abs, "uploads"),
		Temp:     filepath.Join(abs, "temp"),
		Output:   filepath.Join(abs, "output"),
		lockPath: filepath.Join(abs, "narrator.lock"),
		logger:   logger.With(zap.String("component", "workspace")),
	}
	for _, dir := range []string{w.Uploads, w.Temp, w.Output} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	w.lock = flock.New(w.lockPath)
	return w, nil
}

// Lock takes an exclusive advisory lock so one process owns the directories.
func (w *Workspace) Lock() error {
	ok, err := w.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire workspace lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("workspace %s is in use by another process", w.Root)
	}
	w.logger.Debug("workspace locked", zap.String("lock", w.lockPath))
	return nil
}

// Unlock releases the workspace lock.
func (w *Workspace) Unlock() error {
	return w.lock.Unlock()
}

// UploadPath returns where an incoming upload named name is stored.
func (w *Workspace) UploadPath(name string) string {
	return filepath.Join(w.Uploads, filepath.Base(name))
}

// TempPath returns a job-scoped stage file path, e.g. <temp>/<id>_audio.wav.
func (w *Workspace) TempPath(jobID, suffix string) string {
	return filepath.Join(w.Temp, jobID+"_"+suffix)
}

// OutputPath returns a job-scoped output path, e.g. <output>/<id>_final.mp4.
func (w *Workspace) OutputPath(jobID, suffix string) string {
	return filepath.Join(w.Output, jobID+suffix)
}

// DirectoryStatus reports whether each working directory exists.
func (w *Workspace) DirectoryStatus() map[string]bool {
	status := make(map[string]bool, 3)
	for name, dir := range map[string]string{"uploads": w.Uploads, "temp": w.Temp, "output": w.Output} {
		info, err := os.Stat(dir)
		status[name] = err == nil && info.IsDir()
	}
	return status
}

// FileInfo describes one file found for a job.
type FileInfo struct {
	Name     string    `json:"name"`
	Path     string    `json:"-"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"created"`
}

// JobFiles lists regular files in the output directory whose name contains jobID,
// ordered by name.
func (w *Workspace) JobFiles(jobID string) ([]FileInfo, error) {
	if jobID == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(w.Output)
	if err != nil {
		return nil, fmt.Errorf("read output dir: %w", err)
	}
	var files []FileInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.Contains(entry.Name(), jobID) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{
			Name:     entry.Name(),
			Path:     filepath.Join(w.Output, entry.Name()),
			Size:     info.Size(),
			Modified: info.ModTime(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// Remove deletes paths, logging and swallowing failures. It returns how many
// files were actually removed.
func (w *Workspace) Remove(paths ...string) int {
	removed := 0
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				w.logger.Warn("cleanup failed", zap.String("path", p), zap.Error(err))
			}
			continue
		}
		removed++
	}
	return removed
}
