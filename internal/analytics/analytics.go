package analytics

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event types
const (
	EvtJoin   = "join"
	EvtLeave  = "leave"
	EvtDeath  = "death"
	EvtFood   = "food"
	EvtResume = "resume"
)

const (
	queueSize     = 1024
	batchSize     = 50
	flushInterval = 5 * time.Second
)

// Event is a single gameplay occurrence
type Event struct {
	Type      string
	PlayerID  string
	Username  string
	Tick      uint64
	Score     int
	Timestamp time.Time
}

// Recorder batches events in the background and writes them to the DB
type Recorder struct {
	db        *DB
	sessionID string
	log       *zap.SugaredLogger
	events    chan Event
	stop      chan struct{}
	wg        sync.WaitGroup
	once      sync.Once
}

// NewRecorder creates and starts the background writer
func NewRecorder(db *DB, sessionID string, log *zap.SugaredLogger) *Recorder {
	r := &Recorder{
		db:        db,
		sessionID: sessionID,
		log:       log,
		events:    make(chan Event, queueSize),
		stop:      make(chan struct{}),
	}
	r.wg.Add(1)
	go r.writer()
	return r
}

// Track enqueues an event without blocking. A full queue drops the event.
func (r *Recorder) Track(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	select {
	case r.events <- evt:
	default:
		r.log.Warnw("analytics queue full, dropping event", "type", evt.Type, "player", evt.PlayerID)
	}
}

// Stop flushes whatever is queued and shuts the writer down
func (r *Recorder) Stop() {
	r.once.Do(func() {
		close(r.stop)
		r.wg.Wait()
	})
}

func (r *Recorder) writer() {
	defer r.wg.Done()

	batch := make([]Event, 0, batchSize)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case evt := <-r.events:
			batch = append(batch, evt)
			if len(batch) >= batchSize {
				r.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				r.flush(batch)
				batch = batch[:0]
			}
		case <-r.stop:
			// Track never closes events, so drain without closing
			for {
				select {
				case evt := <-r.events:
					batch = append(batch, evt)
				default:
					r.flush(batch)
					return
				}
			}
		}
	}
}

func (r *Recorder) flush(events []Event) {
	if r.db == nil || len(events) == 0 {
		return
	}
	tx, err := r.db.conn.Begin()
	if err != nil {
		r.log.Errorw("analytics: begin tx", "error", err)
		return
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO events (event_type, session_id, player_id, username, tick, score, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		r.log.Errorw("analytics: prepare", "error", err)
		return
	}
	defer stmt.Close()

	for _, evt := range events {
		if _, err := stmt.Exec(evt.Type, r.sessionID, evt.PlayerID, evt.Username, int64(evt.Tick), evt.Score, evt.Timestamp.Format(time.RFC3339Nano)); err != nil {
			r.log.Errorw("analytics: insert", "type", evt.Type, "error", err)
		}
	}
	if err := tx.Commit(); err != nil {
		r.log.Errorw("analytics: commit", "error", err)
	}
}
