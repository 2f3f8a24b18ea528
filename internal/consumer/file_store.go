package consumer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"gadgethost/internal/oauth"
	"gadgethost/pkg/logging"
)

const reloadDebounce = 250 * time.Millisecond

// fileDocument is the on-disk layout of the consumers file.
type fileDocument struct {
	Consumers []Registration `yaml:"consumers"`
}

// FileStore serves registrations from a YAML file. With Watch it reloads
// the file when it changes; a reload that fails keeps the previous contents.
type FileStore struct {
	path string

	mu   sync.RWMutex
	regs []Registration
	idx  index

	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
	stopOnce sync.Once
	timer    *time.Timer
}

// NewFileStore loads path. A missing file yields an empty store.
func NewFileStore(path string, watch bool) (*FileStore, error) {
	s := &FileStore{path: filepath.Clean(path), stopCh: make(chan struct{})}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	if watch {
		if err := s.startWatch(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Reload re-reads the file.
func (s *FileStore) Reload() error {
	regs, err := readFile(s.path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.regs = regs
	s.idx = buildIndex(regs)
	s.mu.Unlock()

	logging.Info("Consumer", "Loaded %d consumer registrations from %s", len(regs), s.path)
	return nil
}

func readFile(path string) ([]Registration, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		logging.Warn("Consumer", "Consumer file %s not found, starting with no registrations", path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read consumer file %s: %w", path, err)
	}

	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse consumer file %s: %w", path, err)
	}
	for i, r := range doc.Consumers {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("consumer file %s entry %d: %w", path, i, err)
		}
	}
	return doc.Consumers, nil
}

// Consumer implements oauth.ConsumerStore.
func (s *FileStore) Consumer(_ context.Context, appURL, service string) (oauth.ConsumerCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, err := s.idx.find(appURL, service, oauth.ProtocolOAuth1)
	if err != nil {
		return oauth.ConsumerCredential{}, err
	}
	return r.credential(), nil
}

// Consumer2 implements oauth.ConsumerStore.
func (s *FileStore) Consumer2(_ context.Context, appURL, service string) (oauth.Consumer2Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, err := s.idx.find(appURL, service, oauth.ProtocolOAuth2)
	if err != nil {
		return oauth.Consumer2Credential{}, err
	}
	return r.credential2(), nil
}

// List returns a copy of all registrations in file order.
func (s *FileStore) List(_ context.Context) ([]Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Registration(nil), s.regs...), nil
}

// Close stops watching the file.
func (s *FileStore) Close() error {
	if s == nil {
		return nil
	}
	var err error
	s.stopOnce.Do(func() {
		close(s.stopCh)
		if s.watcher != nil {
			err = s.watcher.Close()
		}
	})
	return err
}

// startWatch watches the parent directory so that editors which replace the
// file by rename are seen too.
func (s *FileStore) startWatch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	s.watcher = watcher

	go s.processEvents()
	logging.Debug("Consumer", "Watching %s for consumer changes", s.path)
	return nil
}

func (s *FileStore) processEvents() {
	for {
		select {
		case <-s.stopCh:
			s.mu.Lock()
			if s.timer != nil {
				s.timer.Stop()
			}
			s.mu.Unlock()
			return

		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			s.scheduleReload()

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			logging.Error("Consumer", err, "Consumer file watcher error")
		}
	}
}

func (s *FileStore) scheduleReload() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(reloadDebounce, func() {
		if err := s.Reload(); err != nil {
			logging.Error("Consumer", err, "Keeping previous consumer registrations")
		}
	})
}
