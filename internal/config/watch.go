// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Watcher re-reads and re-validates the configuration file whenever it
// changes on disk. A reload that fails to parse or validate is logged and
// discarded rather than propagated, so a typo in a running node's config
// file never tears down an otherwise-healthy agent; only a config that
// loads cleanly ever reaches Reloaded.
type Watcher struct {
	path    string
	fsw     *fsnotify.Watcher
	current *Config
	reload  chan *Config
}

// NewWatcher performs an initial Load of path and starts watching it for
// writes.
func NewWatcher(path string) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(path); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	return &Watcher{path: path, fsw: fsw, current: cfg, reload: make(chan *Config, 1)}, nil
}

// Current returns the most recently, successfully loaded Config.
func (w *Watcher) Current() *Config { return w.current }

// Reloaded delivers a freshly loaded Config every time the watched file
// changes and parses cleanly. The channel is buffered to one entry, so a
// consumer that's slow to drain it sees only the latest version.
func (w *Watcher) Reloaded() <-chan *Config { return w.reload }

// Run drives the fsnotify event loop until stop is closed; call it in its
// own goroutine.
func (w *Watcher) Run(stop <-chan struct{}) {
	defer w.fsw.Close()

	for {
		select {
		case <-stop:
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			cfg, err := Load(w.path)
			if err != nil {
				log.WithError(err).WithField("path", w.path).
					Warn("config: reload failed, keeping previous configuration")
				continue
			}
			w.current = cfg

			select {
			case w.reload <- cfg:
			default:
				select {
				case <-w.reload:
				default:
				}
				w.reload <- cfg
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.WithError(err).Warn("config: fsnotify watch error")
		}
	}
}
