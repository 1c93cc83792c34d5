package display

import (
	"strings"
	"sync"
	"testing"

	"github.com/rotelhex/rotelhex/internal/protocol"
)

func response(source, record string) *protocol.Response {
	return &protocol.Response{
		DisplaySource: protocol.SegmentOf(source),
		DisplayRecord: protocol.SegmentOf(record),
	}
}

func standbyResponse() *protocol.Response {
	return &protocol.Response{DisplaySource: Standby, DisplayRecord: Standby}
}

func TestNewState(t *testing.T) {
	s := New()

	if s.Source() != protocol.Blank || s.Record() != protocol.Blank {
		t.Errorf("new state should be blank, got %q %q", s.Source().String(), s.Record().String())
	}
	if s.PowerState() != PowerUnknown {
		t.Errorf("PowerState() = %v, want unknown", s.PowerState())
	}
	if _, _, ok := s.CurrentChar(); ok {
		t.Error("CurrentChar() should not be set on a new state")
	}
}

func TestUpdateStickyLatch(t *testing.T) {
	tests := []struct {
		name            string
		steps           []*protocol.Response
		wantBasicSource string
		wantBasicRecord string
	}{
		{
			name:            "canonical values are adopted",
			steps:           []*protocol.Response{response(" CD  ", "TAPE1")},
			wantBasicSource: " CD  ",
			wantBasicRecord: "TAPE1",
		},
		{
			name:            "non canonical source keeps previous basic",
			steps:           []*protocol.Response{response("TUNER", " OFF "), response("TUN  ", " OFF ")},
			wantBasicSource: "TUNER",
			wantBasicRecord: " OFF ",
		},
		{
			name:            "non canonical record keeps previous basic",
			steps:           []*protocol.Response{response("PHONO", " AUX2"), response("PHONO", "XYZ  ")},
			wantBasicSource: "PHONO",
			wantBasicRecord: " AUX2",
		},
		{
			name:            "non canonical from the start stays blank",
			steps:           []*protocol.Response{response("HELLO", "WORLD")},
			wantBasicSource: "     ",
			wantBasicRecord: "     ",
		},
		{
			name:            "canonical value replaces earlier canonical",
			steps:           []*protocol.Response{response("VIDEO", "TAPE2"), response(" AUX1", "TAPE2")},
			wantBasicSource: " AUX1",
			wantBasicRecord: "TAPE2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			for _, r := range tt.steps {
				s.Update(r)
			}
			if got := s.BasicSource(); got != protocol.SegmentOf(tt.wantBasicSource) {
				t.Errorf("BasicSource() = %q, want %q", got.String(), tt.wantBasicSource)
			}
			if got := s.BasicRecord(); got != protocol.SegmentOf(tt.wantBasicRecord) {
				t.Errorf("BasicRecord() = %q, want %q", got.String(), tt.wantBasicRecord)
			}
		})
	}
}

func TestEveryBasicFunctionIsLatched(t *testing.T) {
	for _, f := range BasicFunctions {
		s := New()
		s.Update(response("TUNER", "TUNER"))
		s.Update(&protocol.Response{DisplaySource: f, DisplayRecord: f})

		if s.BasicSource() != f {
			t.Errorf("BasicSource() = %q, want %q", s.BasicSource().String(), f.String())
		}
		if s.BasicRecord() != f {
			t.Errorf("BasicRecord() = %q, want %q", s.BasicRecord().String(), f.String())
		}
	}
}

func TestUpdatePowerState(t *testing.T) {
	s := New()

	s.Update(standbyResponse())
	if s.PowerState() != PowerStandby {
		t.Fatalf("PowerState() = %v, want standby", s.PowerState())
	}
	if s.BasicSource() != Standby || s.BasicRecord() != Standby {
		t.Error("basic fields should freeze to the standby sentinel")
	}

	s.Update(response("TUNER", " OFF "))
	if s.PowerState() != PowerOn {
		t.Errorf("PowerState() = %v, want on", s.PowerState())
	}

	// Only one segment at 0xFF is not standby
	s.Update(&protocol.Response{DisplaySource: Standby, DisplayRecord: protocol.SegmentOf(" OFF ")})
	if s.PowerState() != PowerOn {
		t.Errorf("PowerState() = %v, want on for a half-standby panel", s.PowerState())
	}
}

func TestUpdateReturnsTransition(t *testing.T) {
	s := New()
	s.Update(response(" CD  ", " OFF "))
	u := s.Update(response("TUNER", " OFF "))

	if u.PrevSource != protocol.SegmentOf(" CD  ") || u.Source != protocol.SegmentOf("TUNER") {
		t.Errorf("source transition = %q -> %q", u.PrevSource.String(), u.Source.String())
	}
	if u.PrevBasicSource != protocol.SegmentOf(" CD  ") || u.BasicSource != protocol.SegmentOf("TUNER") {
		t.Errorf("basic source transition = %q -> %q", u.PrevBasicSource.String(), u.BasicSource.String())
	}
	if u.PrevPowerState != PowerOn || u.PowerState != PowerOn {
		t.Errorf("power transition = %v -> %v", u.PrevPowerState, u.PowerState)
	}
	if !u.Changed() {
		t.Error("Changed() should be true")
	}

	same := s.Update(response("TUNER", " OFF "))
	if same.Changed() {
		t.Error("Changed() should be false for an identical frame")
	}
}

func TestLabelChangeSingleCharDetection(t *testing.T) {
	tests := []struct {
		name    string
		prev    string
		next    string
		wantOK  bool
		wantIdx int
		wantCh  byte
	}{
		{name: "space to char at index 1", prev: "A    ", next: "AB   ", wantOK: true, wantIdx: 1, wantCh: 'B'},
		{name: "space to char at index 0", prev: "     ", next: "C    ", wantOK: true, wantIdx: 0, wantCh: 'C'},
		{name: "two positions changed", prev: "AAAAA", next: "BBAAA"},
		{name: "no change", prev: "AB   ", next: "AB   "},
		{name: "single change from non-space", prev: "AB   ", next: "AC   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			s.Update(response(tt.prev, " OFF "))
			s.SetLabelChange(true)
			s.Update(response(tt.next, " OFF "))

			idx, ch, ok := s.CurrentChar()
			if ok != tt.wantOK {
				t.Fatalf("CurrentChar() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && (idx != tt.wantIdx || ch != tt.wantCh) {
				t.Errorf("CurrentChar() = (%d, %q), want (%d, %q)", idx, ch, tt.wantIdx, tt.wantCh)
			}
		})
	}
}

func TestLabelChangeKeepsPositionOnChurn(t *testing.T) {
	s := New()
	s.SetLabelChange(true)
	s.Update(response("A    ", " OFF "))
	s.Update(response("AB   ", " OFF "))
	s.Update(response("BBAAA", " OFF "))

	idx, ch, ok := s.CurrentChar()
	if !ok || idx != 1 || ch != 'B' {
		t.Errorf("CurrentChar() = (%d, %q, %v), want (1, 'B', true)", idx, ch, ok)
	}
}

func TestLabelChangeOffClearsChar(t *testing.T) {
	s := New()
	s.SetLabelChange(true)
	s.Update(response("A    ", " OFF "))

	if _, _, ok := s.CurrentChar(); !ok {
		t.Fatal("CurrentChar() should be set")
	}

	s.SetLabelChange(false)
	if _, _, ok := s.CurrentChar(); ok {
		t.Error("CurrentChar() should be cleared when label change mode ends")
	}
	if s.LabelChange() {
		t.Error("LabelChange() should be false")
	}
}

func TestNoCharTrackingOutsideLabelChange(t *testing.T) {
	s := New()
	s.Update(response("A    ", " OFF "))
	s.Update(response("AB   ", " OFF "))

	if _, _, ok := s.CurrentChar(); ok {
		t.Error("CurrentChar() should not be tracked outside label change mode")
	}
}

func TestObserversRunInOrder(t *testing.T) {
	var calls []string
	s := New(
		ObserverFunc(func(u Update) { calls = append(calls, "first:"+u.Source.String()) }),
		ObserverFunc(func(u Update) { calls = append(calls, "second:"+u.Source.String()) }),
	)

	s.Update(response("PHONO", " OFF "))

	want := "first:PHONO,second:PHONO"
	if got := strings.Join(calls, ","); got != want {
		t.Errorf("observer calls = %s, want %s", got, want)
	}
}

func TestObserverCanReadStateWithoutDeadlock(t *testing.T) {
	s := New()
	var seen protocol.Segment
	s.Subscribe(ObserverFunc(func(u Update) {
		seen = s.Source()
	}))

	s.Update(response("TAPE1", " OFF "))

	if seen != protocol.SegmentOf("TAPE1") {
		t.Errorf("observer saw %q, want committed state", seen.String())
	}
}

func TestUnsubscribe(t *testing.T) {
	s := New()
	calls := 0
	unsubscribe := s.Subscribe(ObserverFunc(func(Update) { calls++ }))

	s.Update(response("PHONO", " OFF "))
	unsubscribe()
	s.Update(response("TUNER", " OFF "))

	if calls != 1 {
		t.Errorf("observer called %d times, want 1", calls)
	}
}

func TestConcurrentReadersAndUpdates(t *testing.T) {
	s := New()
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if i%2 == 0 {
				s.Update(response("PHONO", " OFF "))
			} else {
				s.Update(standbyResponse())
			}
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				snap := s.Snapshot()
				if snap.PowerState == PowerStandby && snap.BasicSource != Standby {
					t.Error("inconsistent snapshot: standby without standby basic source")
					return
				}
				_ = s.String()
			}
		}()
	}

	wg.Wait()
}

func TestString(t *testing.T) {
	s := New()
	s.Update(response(" CD  ", "TAPE1"))

	if got := s.String(); got != " CD   TAPE1" {
		t.Errorf("String() = %q", got)
	}

	s.SetLabelChange(true)
	s.Update(response("     ", "TAPE1"))
	s.Update(response("X    ", "TAPE1"))
	if got := s.String(); !strings.Contains(got, "idx: 0") {
		t.Errorf("String() = %q, should include edit position", got)
	}
}

func TestPowerStateString(t *testing.T) {
	tests := map[PowerState]string{
		PowerUnknown: "unknown",
		PowerOn:      "on",
		PowerStandby: "standby",
	}
	for p, want := range tests {
		if p.String() != want {
			t.Errorf("%d.String() = %q, want %q", p, p.String(), want)
		}
	}
}
