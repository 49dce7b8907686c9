package app

import (
	"os"
	"sync"
	"time"
)

// FileWatcher polls a file and calls back when its modification time moves
// past the baseline. It is used to notice edits made to the working
// annotations by other tools while a project is open.
type FileWatcher struct {
	path          string
	checkInterval time.Duration

	mu        sync.Mutex
	baseline  time.Time
	suspended int
	stopCh    chan struct{}
	done      sync.WaitGroup
	onChange  func()
}

// NewFileWatcher creates a watcher for path. A missing file has a zero
// baseline, so its creation counts as a change.
func NewFileWatcher(path string, checkInterval time.Duration) *FileWatcher {
	w := &FileWatcher{
		path:          path,
		checkInterval: checkInterval,
	}
	w.ResetBaseline()
	return w
}

// OnChange sets the callback. It runs on the watcher goroutine, so any state
// it shares with other goroutines needs its own synchronization.
func (w *FileWatcher) OnChange(callback func()) {
	w.mu.Lock()
	w.onChange = callback
	w.mu.Unlock()
}

// Path returns the watched file.
func (w *FileWatcher) Path() string {
	return w.path
}

// Start begins polling in a background goroutine.
func (w *FileWatcher) Start() {
	w.mu.Lock()
	if w.stopCh != nil {
		w.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	w.stopCh = stop
	w.done.Add(1)
	w.mu.Unlock()
	go w.watchLoop(stop)
}

// Stop ends polling and waits for the goroutine to exit. Calling Stop on a
// stopped watcher is a no-op. Do not call it from the OnChange callback.
func (w *FileWatcher) Stop() {
	w.mu.Lock()
	if w.stopCh != nil {
		close(w.stopCh)
		w.stopCh = nil
	}
	w.mu.Unlock()
	w.done.Wait()
}

func (w *FileWatcher) watchLoop(stop <-chan struct{}) {
	defer w.done.Done()
	ticker := time.NewTicker(w.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !w.Check() {
				continue
			}
			w.mu.Lock()
			fn := w.onChange
			w.mu.Unlock()
			if fn != nil {
				fn()
			}
		}
	}
}

// Check reports whether the file changed since the baseline and, if so,
// moves the baseline forward so each change is reported once. It reports
// nothing while the watcher is suspended.
func (w *FileWatcher) Check() bool {
	info, err := os.Stat(w.path)
	if err != nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.suspended > 0 || !info.ModTime().After(w.baseline) {
		return false
	}
	w.baseline = info.ModTime()
	return true
}

// ResetBaseline takes the file's current modification time as the baseline.
// Call it after writing the file ourselves.
func (w *FileWatcher) ResetBaseline() {
	mt := w.modTime()
	w.mu.Lock()
	w.baseline = mt
	w.mu.Unlock()
}

// Suspend stops change reports until the matching Resume. Wrap our own
// writes in Suspend and Resume so a tick in the middle of a write is not
// taken for an outside edit. Calls nest.
func (w *FileWatcher) Suspend() {
	w.mu.Lock()
	w.suspended++
	w.mu.Unlock()
}

// Resume undoes one Suspend. When the last one is undone the baseline moves
// to the file's current modification time.
func (w *FileWatcher) Resume() {
	mt := w.modTime()
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.suspended == 0 {
		return
	}
	w.suspended--
	if w.suspended == 0 {
		w.baseline = mt
	}
}

func (w *FileWatcher) modTime() time.Time {
	info, err := os.Stat(w.path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
