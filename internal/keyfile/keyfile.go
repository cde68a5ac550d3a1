// Package keyfile loads the voucher signing key from a secret file and reloads it when the
// file changes, so a mounted secret can be swapped without a restart.
package keyfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/layer-3/palette/core"
	"github.com/layer-3/palette/internal/eth"
)

const debounceDelay = 500 * time.Millisecond

// Signer is a voucher signer whose key can be replaced at runtime.
type Signer struct {
	path    string
	current atomic.Pointer[eth.KeySigner]
	logger  zerolog.Logger
}

// NewStatic wraps a fixed signer. Watch is a no-op on it.
func NewStatic(signer *eth.KeySigner) *Signer {
	s := &Signer{logger: zerolog.Nop()}
	s.current.Store(signer)
	return s
}

// Load reads the hex key at path.
func Load(path string, logger zerolog.Logger) (*Signer, error) {
	s := &Signer{path: path, logger: logger.With().Str("component", "keyfile").Logger()}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Address returns the address of the active key, or the zero address when none is loaded.
func (s *Signer) Address() common.Address {
	if signer := s.current.Load(); signer != nil {
		return signer.Address()
	}
	return common.Address{}
}

// SignHash personal-signs hash with the active key.
func (s *Signer) SignHash(hash common.Hash) (string, error) {
	signer := s.current.Load()
	if signer == nil {
		return "", core.ErrSignerUnavailable
	}
	return signer.SignHash(hash)
}

func (s *Signer) reload() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read signer key: %w", err)
	}

	signer, err := eth.KeySignerFromHex(string(raw))
	if err != nil {
		return err
	}

	previous := s.current.Swap(signer)
	if previous == nil || previous.Address() != signer.Address() {
		s.logger.Info().Str("signer", signer.Address().Hex()).Msg("voucher signer loaded")
	}
	return nil
}

// Watch reloads the key whenever its file is written, created or renamed into place.
// A failed reload keeps the previous key. Watch returns once the watcher is running.
func (s *Signer) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Watch the directory: secret mounts and editors replace the file rather than write it.
	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch key directory: %w", err)
	}

	name := filepath.Clean(s.path)
	go func() {
		defer func() { _ = watcher.Close() }()

		var debounce *time.Timer
		for {
			select {
			case <-ctx.Done():
				if debounce != nil {
					debounce.Stop()
				}
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != name {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}

				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(debounceDelay, func() {
					if err := s.reload(); err != nil {
						s.logger.Warn().Err(err).Msg("voucher signer reload failed, keeping previous key")
					}
				})

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn().Err(err).Msg("key file watcher error")
			}
		}
	}()

	return nil
}
