package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultFlushInterval = time.Minute
	defaultFlushSize     = 500
)

// BufferedArchiveSink tees every event to a primary sink and buffers a copy
// for cold archival. Buffered events flush to the archiver on a timer or
// when the buffer fills, whichever comes first. Archival is best-effort: a
// failed upload keeps the batch for the next flush, the primary sink remains
// the durable record.
type BufferedArchiveSink struct {
	primary  Sink
	archiver *Archiver

	mu     sync.Mutex
	buffer []Event

	done chan struct{}
	wg   sync.WaitGroup
}

func NewBufferedArchiveSink(primary Sink, archiver *Archiver) *BufferedArchiveSink {
	s := &BufferedArchiveSink{
		primary:  primary,
		archiver: archiver,
		done:     make(chan struct{}),
	}

	s.wg.Add(1)
	go s.runFlusher()

	return s
}

func (s *BufferedArchiveSink) Write(ctx context.Context, event Event) error {
	err := s.primary.Write(ctx, event)

	s.mu.Lock()
	s.buffer = append(s.buffer, event)
	flush := len(s.buffer) >= defaultFlushSize
	s.mu.Unlock()

	if flush {
		s.flush()
	}
	return err
}

func (s *BufferedArchiveSink) runFlusher() {
	defer s.wg.Done()

	ticker := time.NewTicker(defaultFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.flush()
		case <-s.done:
			s.flush()
			return
		}
	}
}

func (s *BufferedArchiveSink) flush() {
	s.mu.Lock()
	batch := s.buffer
	s.buffer = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.archiver.ArchiveBatch(ctx, batch); err != nil {
		slog.Error("Failed to archive audit batch",
			slog.String("type", "audit"),
			slog.Int("events", len(batch)),
			slog.Any("error", err))

		s.mu.Lock()
		s.buffer = append(batch, s.buffer...)
		s.mu.Unlock()
	}
}

// Close flushes the remaining buffer and stops the background flusher.
func (s *BufferedArchiveSink) Close() {
	close(s.done)
	s.wg.Wait()
}
