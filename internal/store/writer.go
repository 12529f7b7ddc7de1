package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

type writeReq struct {
	table  string
	record PredictionRecord
}

// Writer is the single background owner of the store handle for realtime
// inserts. Enqueues never block: when the bounded queue is full the record
// is dropped and counted, and the stream listener carries on. Natural-key
// conflicts make later re-enqueues of the same segment idempotent.
type Writer struct {
	store  *Store
	logger zerolog.Logger

	mu     sync.Mutex
	closed bool
	ch     chan writeReq
	stop   chan struct{}
	done   chan struct{}

	dropped  atomic.Int64
	written  atomic.Int64
	failures atomic.Int64
}

// NewWriter starts the writer goroutine over an opened store. The writer
// takes ownership of the store handle and closes it when the loop exits.
func NewWriter(s *Store, queueSize int, logger zerolog.Logger) *Writer {
	if queueSize < 1 {
		queueSize = 1
	}
	w := &Writer{
		store:  s,
		logger: logger.With().Str("component", "writer").Logger(),
		ch:     make(chan writeReq, queueSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *Writer) loop() {
	defer close(w.done)
	defer func() {
		if err := w.store.Close(); err != nil {
			w.logger.Warn().Err(err).Msg("failed to close store")
		}
	}()

	for {
		select {
		case <-w.stop:
			// fast shutdown: drop whatever is still queued
			return
		case req, ok := <-w.ch:
			if !ok {
				return
			}
			w.write(req)
		}
	}
}

func (w *Writer) write(req writeReq) {
	sql := "INSERT OR IGNORE INTO " + req.table + insertPredictionSQL
	if _, err := w.store.Conn().ExecContext(context.Background(), sql, req.record.args()...); err != nil {
		w.failures.Add(1)
		w.logger.Error().Err(err).
			Str("table", req.table).
			Str("rid", req.record.RID).
			Msg("insert failed")
		return
	}
	w.written.Add(1)
}

// InsertAll enqueues a snapshot for predictions_all. Returns false when the
// record was dropped (queue full or writer closed).
func (w *Writer) InsertAll(rec PredictionRecord) bool {
	return w.enqueue(TablePredictionsAll, rec)
}

// InsertActual enqueues a confirmed-departure row for predictions_actual.
func (w *Writer) InsertActual(rec PredictionRecord) bool {
	return w.enqueue(TablePredictionsActual, rec)
}

func (w *Writer) enqueue(table string, rec PredictionRecord) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false
	}
	select {
	case w.ch <- writeReq{table: table, record: rec}:
		return true
	default:
		w.dropped.Add(1)
		return false
	}
}

// Dropped returns how many records were rejected by the full queue.
func (w *Writer) Dropped() int64 { return w.dropped.Load() }

// Written returns how many inserts were executed (conflicts included).
func (w *Writer) Written() int64 { return w.written.Load() }

// Close stops the writer. With drain set, queued records are written first;
// otherwise they are discarded. Returns false if the writer did not finish
// within joinTimeout (the store handle is then closed by the exiting loop
// whenever it does finish).
func (w *Writer) Close(drain bool, joinTimeout time.Duration) bool {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		if !drain {
			close(w.stop)
		}
		close(w.ch)
	}
	w.mu.Unlock()

	if joinTimeout <= 0 {
		<-w.done
		return true
	}
	select {
	case <-w.done:
		return true
	case <-time.After(joinTimeout):
		w.logger.Warn().Dur("timeout", joinTimeout).Msg("writer did not drain in time")
		return false
	}
}
