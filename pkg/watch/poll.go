package watch

import (
	"context"
	"os"
	"time"
)

const DefaultPollInterval = 200 * time.Millisecond

// Poll is a stat based Source for filesystems without change notification.
// A change is reported once size and mtime have held still for one interval.
type Poll struct {
	Path     string
	Interval time.Duration
}

func NewPoll(path string, interval time.Duration) *Poll {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poll{Path: path, Interval: interval}
}

type fileStamp struct {
	size    int64
	modTime time.Time
}

func (a fileStamp) same(b fileStamp) bool {
	return a.size == b.size && a.modTime.Equal(b.modTime)
}

func stamp(path string) (fileStamp, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return fileStamp{}, err
	}
	return fileStamp{size: fi.Size(), modTime: fi.ModTime()}, nil
}

func (s *Poll) Events(ctx context.Context) (<-chan Event, <-chan error, error) {
	base, err := stamp(s.Path)
	if err != nil {
		return nil, nil, err
	}
	out := make(chan Event)
	errs := make(chan error, 1)
	go s.loop(ctx, base, out, errs)
	return out, errs, nil
}

func (s *Poll) loop(ctx context.Context, base fileStamp, out chan<- Event, errs chan<- error) {
	defer close(errs)
	defer close(out)

	t := time.NewTicker(s.Interval)
	defer t.Stop()

	seen := base
	pending := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		cur, err := stamp(s.Path)
		if err != nil {
			select {
			case errs <- err:
			default:
			}
			continue
		}
		if !cur.same(seen) {
			seen = cur
			pending = !cur.same(base)
			continue
		}
		if !pending {
			continue
		}

		select {
		case out <- Event{Path: s.Path, At: time.Now()}:
		case <-ctx.Done():
			return
		}
		base = cur
		pending = false
	}
}
