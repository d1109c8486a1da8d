package indexer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/coherence-index/pkg/errors"
)

const (
	// ManifestFile is written last by a successful build; a directory
	// without it holds an incomplete index.
	ManifestFile = "index.json"
	// LockFile marks a build in progress.
	LockFile        = "write.lock"
	manifestVersion = 1
)

// Manifest describes a completed index.
type Manifest struct {
	Version        int       `json:"version"`
	BuildID        string    `json:"build_id"`
	TextField      string    `json:"text_field"`
	LengthField    string    `json:"length_field"`
	DocCount       uint32    `json:"doc_count"`
	TermCount      uint32    `json:"term_count"`
	TokenCount     int64     `json:"token_count"`
	EmptyDocuments string    `json:"empty_documents"`
	CreatedAt      time.Time `json:"created_at"`
}

func writeManifest(dir string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	path := filepath.Join(dir, ManifestFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return apperrors.IO("writing manifest", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return apperrors.IO("renaming manifest", err)
	}
	return nil
}

// ReadManifest loads the manifest of the index in dir.
func ReadManifest(dir string) (Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Manifest{}, apperrors.Newf(apperrors.ErrIncomplete, "%s has no %s", dir, ManifestFile)
		}
		return Manifest{}, apperrors.IO("reading manifest", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, apperrors.Newf(apperrors.ErrFormat, "parsing manifest: %v", err)
	}
	if m.Version != manifestVersion {
		return Manifest{}, apperrors.Newf(apperrors.ErrFormat, "unsupported manifest version %d", m.Version)
	}
	return m, nil
}

// writeLock is an exclusive marker held for the duration of a build.
type writeLock struct {
	path string
}

func acquireLock(dir string) (*writeLock, error) {
	path := filepath.Join(dir, LockFile)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, apperrors.Newf(apperrors.ErrLocked, "%s exists", path)
		}
		return nil, apperrors.IO("creating lock file", err)
	}
	_, werr := f.WriteString(strconv.Itoa(os.Getpid()) + "\n")
	cerr := f.Close()
	if werr != nil || cerr != nil {
		os.Remove(path)
		return nil, apperrors.IO("writing lock file", errors.Join(werr, cerr))
	}
	return &writeLock{path: path}, nil
}

func (l *writeLock) release() error {
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return apperrors.IO("removing lock file", err)
	}
	return nil
}

func isLocked(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, LockFile))
	return err == nil
}
