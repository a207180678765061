package taskmon

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce is the default debounce interval for file watch events.
const DefaultWatchDebounce = 500 * time.Millisecond

// configWatcher reloads the configuration when its file changes.
type configWatcher struct {
	watcher  *fsnotify.Watcher
	path     string
	debounce time.Duration
	onReload func() error
	onError  func(error)
	stop     chan struct{}
	stopped  chan struct{}
	once     sync.Once
}

// newConfigWatcher watches path. onReload runs once per burst of changes,
// after debounce has passed without another event.
func newConfigWatcher(path string, debounce time.Duration, onReload func() error, onError func(error)) (*configWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}

	// Editors that save by renaming replace the file, so the directory is
	// watched instead of the file.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}

	cw := &configWatcher{
		watcher:  watcher,
		path:     path,
		debounce: debounce,
		onReload: onReload,
		onError:  onError,
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go cw.loop()
	return cw, nil
}

// Close stops the watcher and waits for its goroutine. It is idempotent.
func (cw *configWatcher) Close() {
	cw.once.Do(func() { close(cw.stop) })
	<-cw.stopped
}

func (cw *configWatcher) matches(name string) bool {
	if filepath.Base(name) != filepath.Base(cw.path) {
		return false
	}
	want, err1 := filepath.Abs(cw.path)
	got, err2 := filepath.Abs(name)
	return err1 != nil || err2 != nil || want == got
}

func (cw *configWatcher) loop() {
	defer close(cw.stopped)
	defer cw.watcher.Close()

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-cw.stop:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if !cw.matches(event.Name) || event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(cw.debounce)
			fire = timer.C

		case <-fire:
			timer, fire = nil, nil
			if cw.onReload == nil {
				continue
			}
			if err := cw.onReload(); err != nil && cw.onError != nil {
				cw.onError(err)
			}

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			if cw.onError != nil {
				cw.onError(err)
			}
		}
	}
}
