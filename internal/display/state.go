package display

import (
	"fmt"
	"sync"
	"time"

	"github.com/rotelhex/rotelhex/internal/protocol"
)

// PowerState is the receiver's power state as inferred from the display
type PowerState int

const (
	PowerUnknown PowerState = iota
	PowerOn
	PowerStandby
)

// String returns the power state name
func (p PowerState) String() string {
	switch p {
	case PowerOn:
		return "on"
	case PowerStandby:
		return "standby"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler
func (p PowerState) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// BasicFunctions are the canonical function names the panel shows for a
// selected source or record output
var BasicFunctions = []protocol.Segment{
	protocol.SegmentOf("PHONO"),
	protocol.SegmentOf(" CD  "),
	protocol.SegmentOf("TUNER"),
	protocol.SegmentOf("VIDEO"),
	protocol.SegmentOf(" AUX1"),
	protocol.SegmentOf(" AUX2"),
	protocol.SegmentOf("TAPE1"),
	protocol.SegmentOf("TAPE2"),
	protocol.SegmentOf(" OFF "),
}

// Standby is what both segments read while the receiver is in standby
var Standby = protocol.Segment{0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// IsBasicFunction reports whether seg is one of BasicFunctions
func IsBasicFunction(seg protocol.Segment) bool {
	for _, f := range BasicFunctions {
		if seg == f {
			return true
		}
	}
	return false
}

// Update describes one state transition. It is a value; observers may keep it.
type Update struct {
	PrevSource      protocol.Segment
	PrevRecord      protocol.Segment
	PrevBasicSource protocol.Segment
	PrevBasicRecord protocol.Segment
	PrevPowerState  PowerState

	Source      protocol.Segment
	Record      protocol.Segment
	BasicSource protocol.Segment
	BasicRecord protocol.Segment
	PowerState  PowerState

	BadChecksum bool // The frame behind this update failed its checksum
	At          time.Time
}

// Changed reports whether anything visible changed
func (u Update) Changed() bool {
	return u.PrevSource != u.Source ||
		u.PrevRecord != u.Record ||
		u.PrevBasicSource != u.BasicSource ||
		u.PrevBasicRecord != u.BasicRecord ||
		u.PrevPowerState != u.PowerState
}

// Observer is notified after every display update
type Observer interface {
	Notify(u Update)
}

// ObserverFunc adapts a plain function to Observer
type ObserverFunc func(u Update)

// Notify calls f(u)
func (f ObserverFunc) Notify(u Update) { f(u) }

type observerEntry struct {
	id       uint64
	observer Observer
}

// Snapshot is a consistent copy of the whole state
type Snapshot struct {
	Source      protocol.Segment
	Record      protocol.Segment
	BasicSource protocol.Segment
	BasicRecord protocol.Segment
	PowerState  PowerState
	LabelChange bool
	CharIndex   int  // -1 when no character position is known
	Char        byte // valid when CharIndex >= 0
}

// State is the live front panel model for one receiver
type State struct {
	mu          sync.RWMutex
	source      protocol.Segment
	record      protocol.Segment
	basicSource protocol.Segment
	basicRecord protocol.Segment
	power       PowerState
	labelChange bool
	charIdx     int
	char        byte

	obsMu     sync.Mutex
	observers []observerEntry
	nextID    uint64
}

// New creates a State showing a blank panel with unknown power
func New(observers ...Observer) *State {
	s := &State{
		source:      protocol.Blank,
		record:      protocol.Blank,
		basicSource: protocol.Blank,
		basicRecord: protocol.Blank,
		charIdx:     -1,
	}
	for _, o := range observers {
		s.Subscribe(o)
	}
	return s
}

// Subscribe registers an observer and returns a function that removes it
func (s *State) Subscribe(o Observer) (unsubscribe func()) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()

	s.nextID++
	id := s.nextID
	s.observers = append(s.observers, observerEntry{id: id, observer: o})

	return func() {
		s.obsMu.Lock()
		defer s.obsMu.Unlock()
		for i, e := range s.observers {
			if e.id == id {
				s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
				return
			}
		}
	}
}

// Update folds a decoded response into the state and notifies observers.
// It returns the transition that observers saw.
func (s *State) Update(resp *protocol.Response) Update {
	s.mu.Lock()
	u := Update{
		PrevSource:      s.source,
		PrevRecord:      s.record,
		PrevBasicSource: s.basicSource,
		PrevBasicRecord: s.basicRecord,
		PrevPowerState:  s.power,
		Source:          resp.DisplaySource,
		Record:          resp.DisplayRecord,
		BasicSource:     s.basicSource,
		BasicRecord:     s.basicRecord,
		BadChecksum:     resp.BadChecksum,
		At:              time.Now(),
	}

	if u.Source == Standby && u.Record == Standby {
		u.PowerState = PowerStandby
		u.BasicSource = Standby
		u.BasicRecord = Standby
	} else {
		u.PowerState = PowerOn
		if IsBasicFunction(u.Source) {
			u.BasicSource = u.Source
		}
		if IsBasicFunction(u.Record) {
			u.BasicRecord = u.Record
		}
	}

	s.source = u.Source
	s.record = u.Record
	s.basicSource = u.BasicSource
	s.basicRecord = u.BasicRecord
	s.power = u.PowerState
	s.mu.Unlock()

	for _, o := range s.observerList() {
		o.Notify(u)
	}

	s.trackEditedChar(u)
	return u
}

// trackEditedChar records the edited position while in label change mode.
// Only a single space to character transition counts; anything else is
// treated as unrelated display churn and leaves the position alone.
func (s *State) trackEditedChar(u Update) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.labelChange {
		return
	}
	diff := u.PrevSource.Diff(u.Source)
	if len(diff) != 1 || u.PrevSource[diff[0]] != ' ' {
		return
	}
	s.charIdx = diff[0]
	s.char = u.Source[diff[0]]
}

func (s *State) observerList() []Observer {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()

	list := make([]Observer, len(s.observers))
	for i, e := range s.observers {
		list[i] = e.observer
	}
	return list
}

// SetLabelChange enters or leaves label change mode. Leaving it clears the
// edited character position.
func (s *State) SetLabelChange(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.labelChange = on
	if !on {
		s.charIdx = -1
		s.char = 0
	}
}

// LabelChange reports whether label change mode is active
func (s *State) LabelChange() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.labelChange
}

// CurrentChar returns the position and character being edited, if known
func (s *State) CurrentChar() (idx int, ch byte, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.charIdx < 0 {
		return -1, 0, false
	}
	return s.charIdx, s.char, true
}

// Source returns the raw source segment
func (s *State) Source() protocol.Segment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.source
}

// Record returns the raw record segment
func (s *State) Record() protocol.Segment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.record
}

// BasicSource returns the last canonical source name seen
func (s *State) BasicSource() protocol.Segment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.basicSource
}

// BasicRecord returns the last canonical record name seen
func (s *State) BasicRecord() protocol.Segment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.basicRecord
}

// PowerState returns the inferred power state
func (s *State) PowerState() PowerState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.power
}

// Snapshot returns a consistent copy of the state
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Source:      s.source,
		Record:      s.record,
		BasicSource: s.basicSource,
		BasicRecord: s.basicRecord,
		PowerState:  s.power,
		LabelChange: s.labelChange,
		CharIndex:   s.charIdx,
		Char:        s.char,
	}
}

// String renders the panel as "source record", plus the edit position while
// a label is being changed
func (s *State) String() string {
	snap := s.Snapshot()
	out := fmt.Sprintf("%s %s", snap.Source, snap.Record)
	if snap.LabelChange {
		if snap.CharIndex >= 0 {
			out += fmt.Sprintf(" current_char: %q, idx: %d", protocol.DecodeChar(snap.Char), snap.CharIndex)
		} else {
			out += " current_char: none"
		}
	}
	return out
}
