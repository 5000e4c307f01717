package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var validHash = regexp.MustCompile(`^[0-9a-f]+$`)

type diskFile struct {
	DocHash   string    `json:"doc_hash"`
	Dimension int       `json:"dimension"`
	CreatedAt time.Time `json:"created_at"`
	Entries   []Entry   `json:"entries"`
}

// DiskStore keeps one <hash>.json file per document in a flat directory.
type DiskStore struct {
	dir string
}

func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &DiskStore{dir: dir}, nil
}

func (s *DiskStore) path(docHash string) (string, error) {
	if !validHash.MatchString(docHash) {
		return "", fmt.Errorf("invalid document hash %q", docHash)
	}
	return filepath.Join(s.dir, docHash+".json"), nil
}

func (s *DiskStore) Exists(_ context.Context, docHash string) (bool, error) {
	p, err := s.path(docHash)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Save writes the index to a temp file and renames it into place, so readers
// never see a partial file. Concurrent saves of one hash end with the last rename.
func (s *DiskStore) Save(_ context.Context, docHash string, entries []Entry) error {
	p, err := s.path(docHash)
	if err != nil {
		return err
	}

	dim := 0
	if len(entries) > 0 {
		dim = len(entries[0].Vector)
	}
	data, err := json.Marshal(diskFile{DocHash: docHash, Dimension: dim, CreatedAt: time.Now().UTC(), Entries: entries})
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, docHash+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp index: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp index: %w", err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename index: %w", err)
	}
	return nil
}

// Load reads a saved index. A missing file returns ErrNotFound.
func (s *DiskStore) Load(_ context.Context, docHash string) (*Flat, error) {
	p, err := s.path(docHash)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p) // #nosec G304 -- path is the cache dir plus a validated hex hash
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, docHash)
	}
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}

	var f diskFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode index %s: %w", docHash, err)
	}
	return NewFlat(f.Entries), nil
}

func (s *DiskStore) Search(ctx context.Context, docHash string, vector []float32, k int) ([]Result, error) {
	flat, err := s.Load(ctx, docHash)
	if err != nil {
		return nil, err
	}
	return flat.Search(vector, k), nil
}

// CountChunks returns the number of chunks in the saved index of docHash.
func (s *DiskStore) CountChunks(ctx context.Context, docHash string) (int, error) {
	flat, err := s.Load(ctx, docHash)
	if err != nil {
		return 0, err
	}
	return flat.Len(), nil
}

func (s *DiskStore) Count(_ context.Context) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			n++
		}
	}
	return n, nil
}
