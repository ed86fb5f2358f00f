package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/ledgerbridge/internal/models"
)

// Batcher buffers entries and writes them to a Sink when batchSize entries
// are pending or flushInterval elapses, whichever comes first.
type Batcher struct {
	sink          Sink
	entries       chan models.AuditLog
	batchSize     int
	flushInterval time.Duration
	now           func() time.Time

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func NewBatcher(sink Sink, queueSize, batchSize int, flushInterval time.Duration) *Batcher {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	b := &Batcher{
		sink:          sink,
		entries:       make(chan models.AuditLog, queueSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		now:           time.Now,
		done:          make(chan struct{}),
	}
	b.wg.Add(1)
	go b.loop()
	return b
}

func (b *Batcher) Record(_ context.Context, entry models.AuditLog) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = b.now().UTC()
	}
	select {
	case <-b.done:
		slog.Warn("audit batcher closed, dropping entry", "action", entry.Action)
		return
	default:
	}
	select {
	case b.entries <- entry:
	default:
		slog.Warn("audit queue full, dropping entry", "action", entry.Action)
	}
}

// Close flushes pending entries and stops the background loop.
func (b *Batcher) Close() {
	b.once.Do(func() { close(b.done) })
	b.wg.Wait()
}

func (b *Batcher) loop() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	batch := make([]models.AuditLog, 0, b.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := b.sink.Write(ctx, batch); err != nil {
			slog.Error("audit flush failed", "entries", len(batch), "error", err)
		}
		cancel()
		batch = make([]models.AuditLog, 0, b.batchSize)
	}

	for {
		select {
		case e := <-b.entries:
			batch = append(batch, e)
			if len(batch) >= b.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-b.done:
			for {
				select {
				case e := <-b.entries:
					batch = append(batch, e)
				default:
					flush()
					return
				}
			}
		}
	}
}
