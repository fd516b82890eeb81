package watch

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const DefaultDebounce = 100 * time.Millisecond

// FSNotify watches the file's directory, so editors that save by renaming a
// temp file over the target are still seen. A burst of writes only produces
// an Event once the file has been quiet for Debounce.
//
// Quiet is not closed: fsnotify does not export a portable close-write op, so
// a writer that stalls for longer than Debounce mid-save triggers a reload of
// partial content. That reload fails and the previous table stays installed;
// the final write then produces another Event.
type FSNotify struct {
	Path     string
	Debounce time.Duration
}

func NewFSNotify(path string, debounce time.Duration) *FSNotify {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &FSNotify{Path: path, Debounce: debounce}
}

func (s *FSNotify) Events(ctx context.Context) (<-chan Event, <-chan error, error) {
	target, err := filepath.Abs(s.Path)
	if err != nil {
		return nil, nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, err
	}
	if err := fw.Add(filepath.Dir(target)); err != nil {
		_ = fw.Close()
		return nil, nil, err
	}

	out := make(chan Event)
	errs := make(chan error, 1)
	go s.loop(ctx, fw, target, out, errs)
	return out, errs, nil
}

func (s *FSNotify) loop(ctx context.Context, fw *fsnotify.Watcher, target string, out chan<- Event, errs chan<- error) {
	defer close(errs)
	defer close(out)
	defer fw.Close()

	var settle <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			// Remove/Rename leave no content to load; the following Create does.
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			settle = time.After(s.Debounce)

		case <-settle:
			settle = nil
			select {
			case out <- Event{Path: target, At: time.Now()}:
			case <-ctx.Done():
				return
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			select {
			case errs <- err:
			default:
			}
		}
	}
}
