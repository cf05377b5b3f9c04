package review

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

var ErrCaptureNotFound = errors.New("capture not found")

// ArtifactStore saves accepted-question captures as
// <dir>/question_<history id>.png.
type ArtifactStore struct {
	dir string
}

func NewArtifactStore(dir string) *ArtifactStore {
	return &ArtifactStore{dir: dir}
}

// Path is where the capture for historyID lives.
func (a *ArtifactStore) Path(historyID int64) string {
	return filepath.Join(a.dir, fmt.Sprintf("question_%d.png", historyID))
}

// Save writes data through a temp file and rename so readers never see a
// partial image. An existing capture is replaced.
func (a *ArtifactStore) Save(historyID int64, data []byte) (string, error) {
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return "", fmt.Errorf("create capture dir: %w", err)
	}
	tmp, err := os.CreateTemp(a.dir, ".capture-*")
	if err != nil {
		return "", fmt.Errorf("create capture: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write capture: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close capture: %w", err)
	}

	path := a.Path(historyID)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("store capture: %w", err)
	}
	return path, nil
}

// Open returns the capture file for historyID.
func (a *ArtifactStore) Open(historyID int64) (*os.File, error) {
	f, err := os.Open(a.Path(historyID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrCaptureNotFound
	}
	return f, err
}
