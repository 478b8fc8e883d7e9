package orchestrator

import (
	"sync"
	"time"
)

// maxErrorRecords bounds the trailing error log.
const maxErrorRecords = 100

// ErrorRecord is one timestamped entry in the trailing error log.
type ErrorRecord struct {
	Time    time.Time `json:"time"`
	Context string    `json:"context"`
	Message string    `json:"message"`
}

// errorRing keeps the last maxErrorRecords entries.
type errorRing struct {
	mu      sync.Mutex
	records []ErrorRecord
}

func (r *errorRing) add(context string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, ErrorRecord{
		Time:    time.Now(),
		Context: context,
		Message: err.Error(),
	})
	if len(r.records) > maxErrorRecords {
		r.records = r.records[len(r.records)-maxErrorRecords:]
	}
}

func (r *errorRing) snapshot() []ErrorRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ErrorRecord, len(r.records))
	copy(out, r.records)
	return out
}
