package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	yaml "go.yaml.in/yaml/v3"

	logx "showbot/pkg/logx"
)

// fileStore persists the subscription document as a single YAML file.
// Writes go through a temp file + rename so a crash mid-write never
// leaves a truncated document behind.
type fileStore struct {
	log  logx.Logger
	path string

	mu sync.Mutex
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &fileStore{log: log, path: path}, nil
}

func (s *fileStore) Close() error { return nil }

// Load reads the document from disk. A missing file yields an empty
// document; a corrupt file is logged and also yields an empty document
// so the bot starts clean instead of crash-looping.
func (s *fileStore) Load(ctx context.Context) (*Document, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return EmptyDocument(), nil
		}
		return nil, err
	}

	var doc Document
	if err := yaml.Unmarshal(b, &doc); err != nil {
		s.log.Warn("subscription file corrupt; starting empty",
			logx.String("path", s.path), logx.Err(err))
		return EmptyDocument(), nil
	}
	if doc.Contexts == nil {
		doc.Contexts = map[string]Record{}
	}
	return &doc, nil
}

func (s *fileStore) Save(ctx context.Context, doc *Document) error {
	_ = ctx
	if doc == nil {
		doc = EmptyDocument()
	}

	b, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
