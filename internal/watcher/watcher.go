// Package watcher watches an inbox directory and reports files that have
// settled after being created, written or moved in.
package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// DefaultDebounce is how long a file must stay quiet before it is reported.
const DefaultDebounce = 500 * time.Millisecond

// Options tunes a Watcher.
type Options struct {
	// Accept filters paths; nil accepts every file.
	Accept func(path string) bool
	// Debounce defaults to DefaultDebounce.
	Debounce time.Duration
	// ScanExisting reports files already present when Start is called.
	ScanExisting bool
}

type pendingFile struct {
	timer *time.Timer
	gen   uint64
}

// Watcher reports settled files in one directory. Subdirectories are not
// watched.
type Watcher struct {
	ctx     context.Context
	onFile  func(path string)
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	pending map[string]pendingFile
	dir     string
	gen     uint64
	opts    Options
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// New creates a Watcher for dir. onFile is called once per settled file
// event, from a watcher goroutine.
func New(dir string, onFile func(path string), opts Options) (*Watcher, error) {
	if dir == "" {
		return nil, errors.New("watcher: directory is required")
	}
	if onFile == nil {
		return nil, errors.New("watcher: callback is required")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		dir:     filepath.Clean(dir),
		onFile:  onFile,
		opts:    opts,
		watcher: fsw,
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[string]pendingFile),
	}, nil
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string { return w.dir }

// Start creates the directory if needed and begins watching.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}
	w.running = true

	w.wg.Add(1)
	go w.watchLoop()

	if w.opts.ScanExisting {
		entries, err := os.ReadDir(w.dir)
		if err != nil {
			log.Warn().Err(err).Str("dir", w.dir).Msg("Failed to scan inbox")
		}
		for _, e := range entries {
			if e.Type().IsRegular() {
				w.scheduleLocked(filepath.Join(w.dir, e.Name()))
			}
		}
	}

	log.Info().Str("dir", w.dir).Dur("debounce", w.opts.Debounce).Msg("Inbox watcher started")
	return nil
}

// Stop stops watching and waits for in-flight callbacks. Pending files that
// have not settled are dropped.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.cancel()
	for path, p := range w.pending {
		if p.timer.Stop() {
			w.wg.Done()
		}
		delete(w.pending, path)
	}
	w.mu.Unlock()

	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) watchLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Str("dir", w.dir).Msg("Watcher error")
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	path := filepath.Clean(event.Name)
	if filepath.Dir(path) != w.dir || strings.HasPrefix(filepath.Base(path), ".") {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}

	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		// moved out or deleted before it settled
		if p, ok := w.pending[path]; ok {
			if p.timer.Stop() {
				w.wg.Done()
			}
			delete(w.pending, path)
		}
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		w.scheduleLocked(path)
	}
}

// scheduleLocked (re)arms the debounce timer for path. w.mu must be held.
func (w *Watcher) scheduleLocked(path string) {
	if w.opts.Accept != nil && !w.opts.Accept(path) {
		return
	}
	if p, ok := w.pending[path]; ok && p.timer.Stop() {
		// the stopped timer will never call fire
		w.wg.Done()
	}

	w.gen++
	gen := w.gen
	w.wg.Add(1)
	w.pending[path] = pendingFile{
		timer: time.AfterFunc(w.opts.Debounce, func() { w.fire(path, gen) }),
		gen:   gen,
	}
}

func (w *Watcher) fire(path string, gen uint64) {
	defer w.wg.Done()

	w.mu.Lock()
	current, ok := w.pending[path]
	if !ok || current.gen != gen || !w.running {
		w.mu.Unlock()
		return
	}
	delete(w.pending, path)
	w.mu.Unlock()

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() || info.Size() == 0 {
		return
	}
	log.Debug().Str("path", path).Int64("size", info.Size()).Msg("Inbox file settled")
	w.onFile(path)
}
