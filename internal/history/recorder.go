package history

import (
	"context"
	"encoding/json"
	"time"

	"github.com/charmbracelet/log"
	"gorm.io/gorm"
)

const (
	recordBufferSize = 1024
	batchWindow      = 100 * time.Millisecond
	batchMaxItems    = 256
)

// Recorder accepts fire-and-forget history events over a buffered channel
// and flushes them to the database in batches, grounded on the
// batch-collect-and-flush shape of the teacher's
// internal/jobs/checker/ownership_verifier.go (there used for a
// request/response RPC-style batch; here a pure one-way sink).
type Recorder struct {
	db     *gorm.DB
	events chan Event
}

// NewRecorder constructs a Recorder over db. Call Run in its own goroutine
// to start draining.
func NewRecorder(db *gorm.DB) *Recorder {
	return &Recorder{
		db:     db,
		events: make(chan Event, recordBufferSize),
	}
}

// Record enqueues an event without blocking the caller on database I/O. If
// the buffer is full the event is dropped and logged — history is an
// observability aid, never load-bearing for the scheduler's correctness.
func (r *Recorder) Record(steamID, check, kind string, passed bool, details map[string]any) {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		detailsJSON = []byte("{}")
	}

	event := Event{
		SteamID:    steamID,
		Check:      check,
		Kind:       kind,
		Passed:     passed,
		Details:    string(detailsJSON),
		RecordedAt: time.Now().UnixMilli(),
	}

	select {
	case r.events <- event:
	default:
		log.Warn("history: buffer full, dropping event", "steam_id", steamID, "kind", kind)
	}
}

// Run drains the event channel, flushing batches on a window timer or when
// a batch reaches batchMaxItems, until ctx is cancelled.
func (r *Recorder) Run(ctx context.Context) {
	batch := make([]Event, 0, batchMaxItems)
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if len(batch) == 0 {
			return
		}
		toWrite := make([]Event, len(batch))
		copy(toWrite, batch)
		batch = batch[:0]
		if err := r.db.Create(&toWrite).Error; err != nil {
			log.Error("history: batch insert failed", "count", len(toWrite), "error", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case event := <-r.events:
			batch = append(batch, event)
			if len(batch) >= batchMaxItems {
				if timer != nil {
					if !timer.Stop() {
						<-timer.C
					}
					timer = nil
					timerC = nil
				}
				flush()
				continue
			}
			if timer == nil {
				timer = time.NewTimer(batchWindow)
				timerC = timer.C
			}
		case <-timerC:
			flush()
			timer = nil
			timerC = nil
		}
	}
}
