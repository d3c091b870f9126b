package auditlog

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Logger records audit entries asynchronously. Log never blocks the caller
// and never fails it; write errors are logged and dropped.
type Logger struct {
	repo    Repository
	log     zerolog.Logger
	entries chan *Entry
	once    sync.Once
	done    chan struct{}
	mu      sync.RWMutex
	closed  bool
	now     func() time.Time
}

func NewLogger(repo Repository, log zerolog.Logger, buffer int) *Logger {
	if buffer <= 0 {
		buffer = 1
	}
	return &Logger{
		repo:    repo,
		log:     log.With().Str("component", "auditlog").Logger(),
		entries: make(chan *Entry, buffer),
		done:    make(chan struct{}),
		now:     time.Now,
	}
}

// Start launches the single writer goroutine.
func (l *Logger) Start() {
	l.once.Do(func() {
		go l.run()
	})
}

func (l *Logger) run() {
	defer close(l.done)
	for e := range l.entries {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := l.repo.Create(ctx, e); err != nil {
			l.log.Error().Err(err).Str("action", e.Action).Msg("failed to write audit entry")
		}
		cancel()
	}
}

// Log enqueues e. Entries missing action, performer or target are dropped.
func (l *Logger) Log(e Entry) {
	if !e.Valid() {
		l.log.Warn().Str("action", e.Action).Msg("dropping incomplete audit entry")
		return
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now().UTC()
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		l.log.Warn().Str("action", e.Action).Msg("audit logger closed, dropping entry")
		return
	}
	select {
	case l.entries <- &e:
	default:
		l.log.Warn().Str("action", e.Action).Msg("audit buffer full, dropping entry")
	}
}

// Close stops accepting entries and waits for queued ones to be written,
// or for ctx to end.
func (l *Logger) Close(ctx context.Context) error {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.entries)
	}
	l.mu.Unlock()

	l.Start()
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
