package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count   int64
	resetAt time.Time
}

// MemoryLimiterは単一プロセス用。掃除用のgoroutineはStartで起動しCloseで止める
type MemoryLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*window

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func NewMemoryLimiter(limit int, win time.Duration, now func() time.Time) *MemoryLimiter {
	if now == nil {
		now = time.Now
	}
	return &MemoryLimiter{
		limit:   limit,
		window:  win,
		now:     now,
		entries: map[string]*window{},
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.entries[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(l.window)}
		l.entries[key] = w
	}
	w.count++

	return result(w.count, l.limit, w.resetAt.Sub(now)), nil
}

// Startはinterval毎に期限切れのウィンドウを消す
func (l *MemoryLimiter) Start(interval time.Duration) {
	l.mu.Lock()
	if l.stop != nil {
		l.mu.Unlock()
		return
	}
	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	l.mu.Unlock()

	go func() {
		defer close(l.done)
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-l.stop:
				return
			case <-t.C:
				l.Sweep()
			}
		}
	}()
}

// Sweepは期限切れのエントリを消して件数を返す
func (l *MemoryLimiter) Sweep() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for k, w := range l.entries {
		if !now.Before(w.resetAt) {
			delete(l.entries, k)
			n++
		}
	}
	return n
}

// Closeは掃除goroutineを止める。Startしていなければ何もしない
func (l *MemoryLimiter) Close() error {
	l.once.Do(func() {
		l.mu.Lock()
		stop, done := l.stop, l.done
		l.mu.Unlock()

		if stop == nil {
			return
		}
		close(stop)
		<-done
	})
	return nil
}

func (l *MemoryLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
