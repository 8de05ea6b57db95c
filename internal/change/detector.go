// Package change decides whether a candidate is a new round result by
// comparing its fingerprint with the last confirmed one for its game type.
package change

import (
	"sync"

	"github.com/JakeFAU/gameresult-crawler/internal/game"
)

// Detector holds the last confirmed fingerprint per game type. The zero
// value is not usable; call New.
type Detector struct {
	mu       sync.Mutex
	lastSeen map[game.Type]string
}

// New returns a Detector with empty state, so the first observation of
// every game type is new.
func New() *Detector {
	return &Detector{lastSeen: make(map[game.Type]string)}
}

// IsNew reports whether c differs from the last confirmed result for gt and,
// if so, records c's fingerprint before returning. Only the fingerprint is
// compared.
func (d *Detector) IsNew(gt game.Type, c game.Candidate) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if last, ok := d.lastSeen[gt]; ok && last == c.Fingerprint {
		return false
	}
	d.lastSeen[gt] = c.Fingerprint
	return true
}

// LastSeen returns the last confirmed fingerprint for gt.
func (d *Detector) LastSeen(gt game.Type) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fp, ok := d.lastSeen[gt]
	return fp, ok
}

// Revert undoes the confirmation of fingerprint for gt, restoring previous
// (or clearing the entry when there was none). It only acts if fingerprint
// is still the recorded value and reports whether it did.
func (d *Detector) Revert(gt game.Type, fingerprint, previous string, hadPrevious bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if current, ok := d.lastSeen[gt]; !ok || current != fingerprint {
		return false
	}
	if hadPrevious {
		d.lastSeen[gt] = previous
	} else {
		delete(d.lastSeen, gt)
	}
	return true
}

// Seed primes the detector, typically from the most recent stored record so
// a restart does not re-announce it.
func (d *Detector) Seed(gt game.Type, fingerprint string) {
	if fingerprint == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastSeen[gt] = fingerprint
}
