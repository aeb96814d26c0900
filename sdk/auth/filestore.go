package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Infomaniak/infomaniak-login-go/internal/misc"
	log "github.com/sirupsen/logrus"
)

// FileTokenStore persists token records as JSON files with 0600 permissions.
type FileTokenStore struct {
	mu      sync.Mutex
	dirLock sync.RWMutex
	baseDir string
}

// NewFileTokenStore creates a token store rooted at dir. dir may be empty when
// callers only use absolute paths.
func NewFileTokenStore(dir string) *FileTokenStore {
	return &FileTokenStore{baseDir: strings.TrimSpace(dir)}
}

// SetBaseDir updates the directory used for ids that are not absolute paths.
func (s *FileTokenStore) SetBaseDir(dir string) {
	s.dirLock.Lock()
	s.baseDir = strings.TrimSpace(dir)
	s.dirLock.Unlock()
}

// Save writes record to its path. An unchanged file is left untouched.
func (s *FileTokenStore) Save(ctx context.Context, record *Record) (string, error) {
	if record == nil {
		return "", fmt.Errorf("auth filestore: record is nil")
	}
	path, err := s.resolveRecordPath(record)
	if err != nil {
		return "", err
	}
	raw, err := MarshalRecord(record)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err = os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("auth filestore: create dir failed: %w", err)
	}

	if existing, errRead := os.ReadFile(path); errRead == nil {
		if jsonEqual(existing, raw) {
			record.Path = path
			return path, nil
		}
	} else if !os.IsNotExist(errRead) {
		return "", fmt.Errorf("auth filestore: read existing failed: %w", errRead)
	}

	misc.LogSavingCredentials(path)
	if err = writeFileAtomic(path, raw); err != nil {
		return "", err
	}
	record.Path = path
	return path, nil
}

// Load reads the record stored under id, a file name below the base directory
// or an absolute path.
func (s *FileTokenStore) Load(ctx context.Context, id string) (*Record, error) {
	path, err := s.resolveIDPath(id)
	if err != nil {
		return nil, err
	}
	record, err := s.readRecordFile(path, s.baseDirSnapshot())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	return record, err
}

// List returns every readable token file in the base directory, sorted by id.
func (s *FileTokenStore) List(ctx context.Context) ([]*Record, error) {
	dir := s.baseDirSnapshot()
	if dir == "" {
		return nil, ErrStoreNotConfigured
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("auth filestore: read dir failed: %w", err)
	}

	records := make([]*Record, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".json") {
			continue
		}
		record, errRead := s.readRecordFile(filepath.Join(dir, entry.Name()), dir)
		if errRead != nil {
			log.Debugf("auth filestore: skipping %s: %v", entry.Name(), errRead)
			continue
		}
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

// Delete removes the token file of id. A missing file is not an error.
func (s *FileTokenStore) Delete(ctx context.Context, id string) error {
	path, err := s.resolveIDPath(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err = os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("auth filestore: delete failed: %w", err)
	}
	return nil
}

func (s *FileTokenStore) readRecordFile(path, baseDir string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("auth filestore: %s is empty", path)
	}
	record, err := UnmarshalRecord(data)
	if err != nil {
		return nil, fmt.Errorf("auth filestore: %s: %w", path, err)
	}
	record.ID = s.idFor(path, baseDir)
	record.Path = path
	return record, nil
}

func (s *FileTokenStore) resolveIDPath(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("auth filestore: id is empty")
	}
	if strings.ContainsRune(id, os.PathSeparator) || filepath.IsAbs(id) {
		return id, nil
	}
	dir := s.baseDirSnapshot()
	if dir == "" {
		return "", ErrStoreNotConfigured
	}
	return filepath.Join(dir, id), nil
}

func (s *FileTokenStore) resolveRecordPath(record *Record) (string, error) {
	if p := strings.TrimSpace(record.Path); p != "" {
		return p, nil
	}
	if strings.TrimSpace(record.ID) == "" {
		record.ID = DefaultRecordID(record.Token)
	}
	return s.resolveIDPath(record.ID)
}

func (s *FileTokenStore) idFor(path, baseDir string) string {
	if baseDir == "" {
		return path
	}
	rel, err := filepath.Rel(baseDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}

func (s *FileTokenStore) baseDirSnapshot() string {
	s.dirLock.RLock()
	defer s.dirLock.RUnlock()
	return s.baseDir
}

// writeFileAtomic replaces path through a temporary file in the same directory.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*.json")
	if err != nil {
		return fmt.Errorf("auth filestore: create temp file failed: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err = tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("auth filestore: chmod failed: %w", err)
	}
	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("auth filestore: write failed: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("auth filestore: close failed: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("auth filestore: rename failed: %w", err)
	}
	return nil
}

// jsonEqual compares two JSON blobs by parsing them into Go objects and deep comparing.
func jsonEqual(a, b []byte) bool {
	var objA any
	var objB any
	if err := json.Unmarshal(a, &objA); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &objB); err != nil {
		return false
	}
	return deepEqualJSON(objA, objB)
}

func deepEqualJSON(a, b any) bool {
	switch valA := a.(type) {
	case map[string]any:
		valB, ok := b.(map[string]any)
		if !ok || len(valA) != len(valB) {
			return false
		}
		for key, subA := range valA {
			subB, ok1 := valB[key]
			if !ok1 || !deepEqualJSON(subA, subB) {
				return false
			}
		}
		return true
	case []any:
		sliceB, ok := b.([]any)
		if !ok || len(valA) != len(sliceB) {
			return false
		}
		for i := range valA {
			if !deepEqualJSON(valA[i], sliceB[i]) {
				return false
			}
		}
		return true
	case float64:
		valB, ok := b.(float64)
		if !ok {
			return false
		}
		return valA == valB
	case string:
		valB, ok := b.(string)
		if !ok {
			return false
		}
		return valA == valB
	case bool:
		valB, ok := b.(bool)
		if !ok {
			return false
		}
		return valA == valB
	case nil:
		return b == nil
	default:
		return false
	}
}
