package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	errs "review-insights/pkg/errors"
	"review-insights/pkg/logging"
)

// ServiceTokens maps static operator tokens to user ids. The file is YAML:
//
//	tokens:
//	  "s3cr3t-ops-token": "3f1c...user uuid"
//
// A missing or unreadable file leaves the resolver empty; it rejects every
// token until a valid file appears.
type ServiceTokens struct {
	mu     sync.RWMutex
	tokens map[string]string
	loaded bool
	path   string
	log    *logging.ComponentLogger
}

type serviceTokensFile struct {
	Tokens map[string]string `yaml:"tokens"`
}

func NewServiceTokens(path string, log *logging.Logger) *ServiceTokens {
	if log == nil {
		log = logging.NewNop()
	}
	s := &ServiceTokens{tokens: map[string]string{}, path: path, log: log.WithComponent("auth")}
	if path == "" {
		return s
	}
	if err := s.load(); err != nil {
		s.log.Warn("service tokens not loaded", logging.String("path", path), logging.Error(err))
	} else {
		s.log.Info("service tokens loaded", logging.String("path", path), logging.Int("entries", s.Len()))
	}
	return s
}

func (s *ServiceTokens) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var f serviceTokensFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return err
	}
	for tok, user := range f.Tokens {
		if tok == "" || user == "" {
			return fmt.Errorf("empty token or user id in %s", s.path)
		}
	}
	if f.Tokens == nil {
		f.Tokens = map[string]string{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = f.Tokens
	s.loaded = true
	return nil
}

// Reload re-reads the file. On error the previous tokens stay active.
func (s *ServiceTokens) Reload() error {
	if s.path == "" {
		return nil
	}
	return s.load()
}

func (s *ServiceTokens) IsLoaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

func (s *ServiceTokens) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}

func (s *ServiceTokens) Resolve(_ context.Context, token string) (*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for tok, user := range s.tokens {
		if subtle.ConstantTimeCompare([]byte(tok), []byte(token)) == 1 {
			return &Identity{UserID: user, Service: true}, nil
		}
	}
	return nil, errs.NewUnauthorized("auth.ServiceTokens", "unknown service token")
}

// Watch reloads the file whenever it changes until ctx is done.
func (s *ServiceTokens) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(filepath.Dir(s.path)); err != nil {
		fsw.Close()
		return err
	}
	target := filepath.Clean(s.path)
	go func() {
		defer fsw.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
					continue
				}
				if err := s.Reload(); err != nil {
					s.log.Warn("service tokens reload failed", logging.Error(err))
					continue
				}
				s.log.Info("service tokens reloaded", logging.Int("entries", s.Len()))
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				s.log.Warn("service tokens watcher error", logging.Error(err))
			}
		}
	}()
	return nil
}
