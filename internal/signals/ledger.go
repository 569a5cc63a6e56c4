// Package signals maintains the attachment ledger: the map from source
// record id to the detection signals derived from that record. The
// ledger is persisted independently of the forest and joined to it by id
// at read time; it performs no locking of its own and is serialized by
// the owning store.
package signals

import (
	"casetree/pkg/models"
)

// Ledger holds the in-memory signal map.
type Ledger struct {
	byRecord models.SignalMap
}

// NewLedger builds a ledger from a loaded signal map. A nil map starts
// the ledger empty.
func NewLedger(m models.SignalMap) *Ledger {
	if m == nil {
		m = make(models.SignalMap)
	}
	return &Ledger{byRecord: m}
}

// Attach appends the signal to its source record's list. Re-attaching a
// signal whose id already exists replaces that entry in place, keeping
// its position; other signals keep their order.
func (l *Ledger) Attach(recordID string, sig *models.Signal) {
	clone := sig.Clone()
	clone.SourceRecordID = recordID
	existing := l.byRecord[recordID]
	for i, s := range existing {
		if s.ID == clone.ID {
			existing[i] = clone
			return
		}
	}
	l.byRecord[recordID] = append(existing, clone)
}

// For returns the ordered signals attached to the record. The result is
// a copy; mutating it does not touch the ledger.
func (l *Ledger) For(recordID string) []*models.Signal {
	sigs := l.byRecord[recordID]
	if len(sigs) == 0 {
		return nil
	}
	out := make([]*models.Signal, len(sigs))
	for i, s := range sigs {
		out[i] = s.Clone()
	}
	return out
}

// Remove drops every signal attached to the record. Reports whether
// anything was removed.
func (l *Ledger) Remove(recordID string) bool {
	if _, ok := l.byRecord[recordID]; !ok {
		return false
	}
	delete(l.byRecord, recordID)
	return true
}

// Records returns the ids of every record with at least one attached
// signal.
func (l *Ledger) Records() []string {
	out := make([]string, 0, len(l.byRecord))
	for id := range l.byRecord {
		out = append(out, id)
	}
	return out
}

// Len returns the total number of attached signals.
func (l *Ledger) Len() int {
	total := 0
	for _, sigs := range l.byRecord {
		total += len(sigs)
	}
	return total
}

// Snapshot returns a deep copy of the full map for persistence.
func (l *Ledger) Snapshot() models.SignalMap {
	return l.byRecord.Clone()
}

// Replace swaps the ledger contents for an externally loaded map.
func (l *Ledger) Replace(m models.SignalMap) {
	if m == nil {
		m = make(models.SignalMap)
	}
	l.byRecord = m
}
