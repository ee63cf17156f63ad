package server

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceTime coalesces the burst of filesystem events a single git
// operation produces into one invalidation.
const debounceTime = 100 * time.Millisecond

// startWatcher watches the .git directory and the refs subtrees for
// changes, invalidating the repository's caches and broadcasting the new
// ref state to connected clients.
func (s *Server) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	gitDir := s.repo.GitDir()
	if err := watcher.Add(gitDir); err != nil {
		watcher.Close() //nolint:errcheck // already failing
		return err
	}

	// fsnotify does not recurse. refs/heads, refs/tags, and refs/remotes
	// must be watched explicitly so branch and tag churn inside them is
	// seen, including hierarchical names (refs/heads/feature/login).
	for _, sub := range []string{"refs", "refs/heads", "refs/tags", "refs/remotes"} {
		watchSubtree(watcher, filepath.Join(gitDir, filepath.FromSlash(sub)), s.logger)
	}

	s.wg.Add(1)
	go s.watchLoop(watcher)

	s.logger.Info("Watching repository for changes", "gitDir", gitDir)
	return nil
}

// watchSubtree adds watches for dir and every directory below it.
// Missing directories are skipped; they appear later via events on the
// parent.
func watchSubtree(watcher *fsnotify.Watcher, dir string, logger *slog.Logger) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return
	}

	err = filepath.Walk(dir, func(path string, fi os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return nil //nolint:nilerr // skip unreadable entries
		}
		if fi.IsDir() {
			if addErr := watcher.Add(path); addErr != nil {
				logger.Warn("Failed to watch directory", "dir", path, "err", addErr)
			}
		}
		return nil
	})
	if err != nil {
		logger.Warn("Failed to walk watch subtree", "dir", dir, "err", err)
	}
}

func (s *Server) watchLoop(watcher *fsnotify.Watcher) {
	defer s.wg.Done()
	defer func() {
		if err := watcher.Close(); err != nil {
			s.logger.Error("Failed to close watcher", "err", err)
		}
	}()

	var debounce *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-s.ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ignoreEvent(event) {
				continue
			}

			// Newly created ref directories must themselves be watched.
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					watchSubtree(watcher, event.Name, s.logger)
				}
			}

			if debounce == nil {
				debounce = time.NewTimer(debounceTime)
			} else {
				if !debounce.Stop() {
					select {
					case <-debounce.C:
					default:
					}
				}
				debounce.Reset(debounceTime)
			}
			fire = debounce.C

		case <-fire:
			fire = nil
			s.refresh()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("Watcher error", "err", err)
		}
	}
}

// ignoreEvent filters the noise git writes on every operation: lock
// files, the index file, and chmod-only events.
func ignoreEvent(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return true
	}
	base := filepath.Base(event.Name)
	return strings.HasSuffix(base, ".lock") || base == "index"
}

// refresh drops the repository caches, recomputes the ref state, and
// broadcasts it if anything visible changed.
func (s *Server) refresh() {
	s.repo.Invalidate()
	s.diffCache.Clear()

	state, err := s.currentState(s.ctx)
	if err != nil {
		s.logger.Warn("Failed to compute ref state", "err", err)
		return
	}

	payload, err := json.Marshal(state)
	if err != nil {
		s.logger.Error("Failed to marshal ref state", "err", err)
		return
	}

	s.mu.Lock()
	changed := !bytes.Equal(payload, s.lastState)
	if changed {
		s.lastState = payload
	}
	s.mu.Unlock()

	if changed {
		s.logger.Debug("Repository changed; broadcasting", "clients", s.clientCount())
		s.broadcast(payload)
	}
}
