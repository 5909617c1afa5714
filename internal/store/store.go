package store

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"lukechampine.com/blake3"

	"meetscribe/internal/logger"
)

// Artifact categories, each mapped to its own subdirectory.
const (
	Uploads        = "uploads"
	Transcriptions = "transcriptions"
	Summaries      = "summaries"
	KeyPoints      = "key_points"
	ActionItems    = "action_items"
	Participants   = "participants"
)

// Categories lists every artifact category the store manages.
var Categories = []string{Uploads, Transcriptions, Summaries, KeyPoints, ActionItems, Participants}

// hashIndexFile maps blake3 upload hashes to transcript ids so identical
// uploads skip the transcription pipeline.
const hashIndexFile = "upload_hashes.json"

// uploadExtension matches the audio format the front end accepts.
const uploadExtension = ".mp3"

// Store is a flat-file artifact store. Every artifact is a single file
// keyed by id inside its category directory; nothing else is persisted.
type Store struct {
	baseDir string
	logger  logger.Logger

	// mu guards the hash index, the only mutable shared state.
	mu     sync.Mutex
	hashes map[string]string
}

// New creates the category directories under baseDir and loads the upload
// hash index if one exists.
func New(log logger.Logger, baseDir string) (*Store, error) {
	for _, category := range Categories {
		if err := os.MkdirAll(filepath.Join(baseDir, category), 0o755); err != nil {
			return nil, fmt.Errorf("creating %s directory: %w", category, err)
		}
	}

	s := &Store{
		baseDir: baseDir,
		logger:  log,
		hashes:  make(map[string]string),
	}

	data, err := os.ReadFile(filepath.Join(baseDir, hashIndexFile))
	if err == nil {
		if err := json.Unmarshal(data, &s.hashes); err != nil {
			log.Warnf("Ignoring unreadable upload hash index: %v", err)
			s.hashes = make(map[string]string)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading upload hash index: %w", err)
	}

	return s, nil
}

// SaveUpload persists the uploaded audio under a fresh id and returns the
// id, the saved path, and the blake3 hash of the content. The hash is
// computed while writing, so the upload is read exactly once.
func (s *Store) SaveUpload(r io.Reader) (id, path, hash string, err error) {
	id = uuid.NewString()
	path = filepath.Join(s.baseDir, Uploads, id+uploadExtension)

	file, err := os.Create(path)
	if err != nil {
		return "", "", "", fmt.Errorf("creating upload file: %w", err)
	}
	defer file.Close()

	hasher := blake3.New(32, nil)
	if _, err := io.Copy(file, io.TeeReader(r, hasher)); err != nil {
		os.Remove(path)
		return "", "", "", fmt.Errorf("writing upload file: %w", err)
	}

	hash = hex.EncodeToString(hasher.Sum(nil))
	s.logger.Debugf("Saved upload %s (%s)", id, hash)
	return id, path, hash, nil
}

// SaveText persists a text artifact under the given category and id,
// returning the stored file name.
func (s *Store) SaveText(category, id, content string) (string, error) {
	if err := validCategory(category); err != nil {
		return "", err
	}
	cleanID, err := sanitizeID(id)
	if err != nil {
		return "", err
	}

	fileName := cleanID + ".txt"
	path := filepath.Join(s.baseDir, category, fileName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("writing %s artifact: %w", category, err)
	}

	s.logger.Debugf("Saved %s/%s (%d bytes)", category, fileName, len(content))
	return fileName, nil
}

// ReadText reads a text artifact. A trailing .txt in the id is tolerated.
func (s *Store) ReadText(category, id string) (string, error) {
	if err := validCategory(category); err != nil {
		return "", err
	}
	cleanID, err := sanitizeID(id)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(filepath.Join(s.baseDir, category, cleanID+".txt"))
	if err != nil {
		return "", fmt.Errorf("reading %s artifact %s: %w", category, cleanID, err)
	}
	return string(data), nil
}

// ReadFile reads a raw artifact file by its stored file name.
func (s *Store) ReadFile(category, fileName string) ([]byte, error) {
	if err := validCategory(category); err != nil {
		return nil, err
	}
	if fileName != filepath.Base(fileName) || fileName == "." || fileName == ".." {
		return nil, fmt.Errorf("invalid artifact file name %q", fileName)
	}

	data, err := os.ReadFile(filepath.Join(s.baseDir, category, fileName))
	if err != nil {
		return nil, fmt.Errorf("reading %s/%s: %w", category, fileName, err)
	}
	return data, nil
}

// TranscriptForHash returns the transcript id recorded for an upload
// hash, if any.
func (s *Store) TranscriptForHash(hash string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, found := s.hashes[hash]
	return id, found
}

// RecordTranscript maps an upload hash to its transcript id and persists
// the index.
func (s *Store) RecordTranscript(hash, transcriptID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.hashes[hash] = transcriptID
	data, err := json.MarshalIndent(s.hashes, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding upload hash index: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.baseDir, hashIndexFile), data, 0o644); err != nil {
		return fmt.Errorf("writing upload hash index: %w", err)
	}
	return nil
}

// IsCategory reports whether name is a known artifact category.
func IsCategory(name string) bool {
	return validCategory(name) == nil
}

func validCategory(name string) error {
	for _, category := range Categories {
		if name == category {
			return nil
		}
	}
	return fmt.Errorf("unknown artifact category %q", name)
}

// sanitizeID normalizes an artifact id, rejecting anything that could
// escape the category directory.
func sanitizeID(id string) (string, error) {
	id = strings.TrimSuffix(id, ".txt")
	if id == "" || id == "." || id == ".." ||
		strings.ContainsAny(id, `/\`) || id != filepath.Base(id) {
		return "", fmt.Errorf("invalid artifact id %q", id)
	}
	return id, nil
}
