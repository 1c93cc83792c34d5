package rotel

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rotelhex/rotelhex/internal/charset"
	"github.com/rotelhex/rotelhex/internal/display"
	"github.com/rotelhex/rotelhex/internal/model"
	"github.com/rotelhex/rotelhex/internal/protocol"
)

// frames concatenates the wire bytes of the named commands
func frames(t *testing.T, names ...string) []byte {
	t.Helper()
	var out []byte
	for _, name := range names {
		code, ok := model.Standard.Lookup(name)
		require.True(t, ok, "unknown command %s", name)
		out = append(out, protocol.NewCommand([]byte{code}).Raw...)
	}
	return out
}

func newConnectedClient(t *testing.T, chars charset.Map, opts ...Option) (*Client, *fakePort) {
	t.Helper()
	port := newFakePort()
	opts = append([]Option{WithTransportOptions(WithBackOff(ConstantBackOff(5 * time.Millisecond)))}, opts...)
	c := NewClient(model.Standard, chars, newFakeOpener(port), opts...)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { _ = c.Close() })
	return c, port
}

func TestSetSource(t *testing.T) {
	c, port := newConnectedClient(t, nil)
	require.NoError(t, c.SetSource(context.Background(), "cd"))
	assert.Equal(t, []byte{0xFE, 0x03, 0x04, 0x10, 0x04, 0x1B}, port.Written())
}

func TestSetRecord(t *testing.T) {
	c, port := newConnectedClient(t, nil)
	require.NoError(t, c.SetRecord(context.Background(), "tape1"))
	assert.Equal(t, frames(t, "record_tape1"), port.Written())
}

func TestSetSourceUnknownSendsNothing(t *testing.T) {
	c, port := newConnectedClient(t, nil)

	err := c.SetSource(context.Background(), "laserdisc")
	require.Error(t, err)
	assert.True(t, IsInvalidArgument(err))

	err = c.SetRecord(context.Background(), "laserdisc")
	assert.True(t, IsInvalidArgument(err))

	assert.Empty(t, port.Written())
}

func TestSendNamed(t *testing.T) {
	rec := newCountingRecorder()
	c, port := newConnectedClient(t, nil, WithClientRecorder(rec))

	require.NoError(t, c.SendNamed(context.Background(), "volume_up"))
	assert.Equal(t, frames(t, "volume_up"), port.Written())
	assert.Equal(t, []string{"volume_up"}, rec.Sent())

	err := c.SendNamed(context.Background(), "self_destruct")
	assert.True(t, IsInvalidArgument(err))
}

func TestSetLabelSequence(t *testing.T) {
	chars := charset.MustParse(" HIJ")
	c, port := newConnectedClient(t, chars)

	require.NoError(t, c.SetLabel(context.Background(), "cd", "HI"))

	want := frames(t,
		"source_cd",
		"label_change",
		"char_next", "char_enter",
		"char_next", "char_next", "char_enter",
		"label_change",
	)
	assert.Equal(t, want, port.Written())
	assert.False(t, c.Display().LabelChange(), "label change mode should be cleared")
}

func TestSetLabelFullLengthHasNoClosingToggle(t *testing.T) {
	chars := charset.MustParse(" AB")
	c := NewClient(model.Standard, chars, newFakeOpener())

	seq, err := c.labelSequence("tuner", "ABABA")
	require.NoError(t, err)

	// A five character label leaves label change mode on the device by
	// itself, so the sequence ends on the last char_enter
	assert.Equal(t, []string{
		"source_tuner", "label_change",
		"char_next", "char_enter",
		"char_next", "char_next", "char_enter",
		"char_next", "char_enter",
		"char_next", "char_next", "char_enter",
		"char_next", "char_enter",
	}, seq)
}

func TestSetLabelEmpty(t *testing.T) {
	c := NewClient(model.Standard, nil, newFakeOpener())
	seq, err := c.labelSequence("cd", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"source_cd", "label_change", "label_change"}, seq)
}

func TestSetLabelSpaceNeedsNoPresses(t *testing.T) {
	c := NewClient(model.Standard, nil, newFakeOpener())
	seq, err := c.labelSequence("cd", " ")
	require.NoError(t, err)
	assert.Equal(t, []string{"source_cd", "label_change", "char_enter", "label_change"}, seq)
}

func TestSetLabelRejectsBeforeSending(t *testing.T) {
	tests := []struct {
		name  string
		fn    string
		label string
	}{
		{"too long", "cd", "ABCDEF"},
		{"unmapped character", "cd", "A-B"},
		{"unknown function", "laserdisc", "AB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, port := newConnectedClient(t, nil)
			err := c.SetLabel(context.Background(), tt.fn, tt.label)
			require.Error(t, err)
			assert.True(t, IsInvalidArgument(err), "got %v", err)
			assert.Empty(t, port.Written(), "nothing may be sent for an invalid label")
			assert.False(t, c.Display().LabelChange())
		})
	}
}

func TestSetLabelModelWithoutLabelCommands(t *testing.T) {
	m := &model.Model{Name: "tiny", Codes: map[string]byte{"source_cd": 0x04}}
	c := NewClient(m, nil, newFakeOpener())
	_, err := c.labelSequence("cd", "A")
	assert.True(t, IsInvalidArgument(err))
}

func TestConcurrentSetLabelsStayWhole(t *testing.T) {
	chars := charset.MustParse(" AB")
	c, port := newConnectedClient(t, chars)

	ctx := context.Background()
	errs := make(chan error, 2)
	for _, fn := range []string{"cd", "tuner"} {
		go func(fn string) { errs <- c.SetLabel(ctx, fn, "BB") }(fn)
	}
	require.NoError(t, <-errs)
	require.NoError(t, <-errs)

	label := func(fn string) []byte {
		return frames(t,
			"source_"+fn, "label_change",
			"char_next", "char_next", "char_enter",
			"char_next", "char_next", "char_enter",
			"label_change",
		)
	}
	cd, tuner := label("cd"), label("tuner")
	written := port.Written()

	cdFirst := append(append([]byte(nil), cd...), tuner...)
	tunerFirst := append(append([]byte(nil), tuner...), cd...)
	assert.True(t, bytes.Equal(written, cdFirst) || bytes.Equal(written, tunerFirst),
		"label sequences interleaved on the wire: % x", written)
	assert.False(t, c.Display().LabelChange())
}

func TestSendNamedWaitsForLabelSequence(t *testing.T) {
	chars := charset.MustParse(" A")
	c, port := newConnectedClient(t, chars)

	ctx := context.Background()
	done := make(chan error, 1)
	go func() { done <- c.SetLabel(ctx, "cd", "AA") }()

	require.Eventually(t, func() bool { return len(port.Written()) > 0 }, 2*time.Second, time.Millisecond)
	require.NoError(t, c.SendNamed(ctx, "volume_up"))
	require.NoError(t, <-done)

	want := frames(t,
		"source_cd", "label_change",
		"char_next", "char_enter",
		"char_next", "char_enter",
		"label_change",
		"volume_up",
	)
	assert.Equal(t, want, port.Written())
}

func TestApplyLabelsValidatesAllFirst(t *testing.T) {
	c, port := newConnectedClient(t, nil)

	err := c.ApplyLabels(context.Background(), map[string]string{
		"cd":    "CD",
		"tuner": "RADIO1",
	})
	require.Error(t, err)
	assert.True(t, IsInvalidArgument(err))
	assert.Empty(t, port.Written())
}

func TestApplyLabelsInFunctionOrder(t *testing.T) {
	chars := charset.MustParse(" A")
	c, port := newConnectedClient(t, chars)

	require.NoError(t, c.ApplyLabels(context.Background(), map[string]string{
		"tuner": "A",
		"cd":    "A",
	}))

	want := frames(t,
		"source_cd", "label_change", "char_next", "char_enter", "label_change",
		"source_tuner", "label_change", "char_next", "char_enter", "label_change",
	)
	assert.Equal(t, want, port.Written())
}

func TestToggleLabelChange(t *testing.T) {
	c, port := newConnectedClient(t, nil)

	require.NoError(t, c.ToggleLabelChange(context.Background()))
	assert.True(t, c.Display().LabelChange())
	require.NoError(t, c.ToggleLabelChange(context.Background()))
	assert.False(t, c.Display().LabelChange())
	assert.Equal(t, frames(t, "label_change", "label_change"), port.Written())
}

func TestRestart(t *testing.T) {
	c, port := newConnectedClient(t, nil, WithRestartDelay(5*time.Millisecond))
	require.NoError(t, c.Restart(context.Background()))
	assert.Equal(t, frames(t, "power_toggle", "power_toggle"), port.Written())
}

func TestRestartCancelled(t *testing.T) {
	c, _ := newConnectedClient(t, nil, WithRestartDelay(time.Hour))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := c.Restart(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRestartOnConnect(t *testing.T) {
	_, port := newConnectedClient(t, nil,
		WithRestartOnConnect(true),
		WithRestartDelay(time.Millisecond),
	)
	assert.Equal(t, frames(t, "power_toggle", "power_toggle"), port.Written())
}

func TestMonitorUpdatesDisplay(t *testing.T) {
	updates := make(chan display.Update, 8)
	c, port := newConnectedClient(t, nil, WithObservers(display.ObserverFunc(func(u display.Update) {
		updates <- u
	})))

	port.feed(displayFrame(" CD  ", "TAPE1"))

	select {
	case u := <-updates:
		assert.Equal(t, display.PowerOn, u.PowerState)
	case <-time.After(2 * time.Second):
		t.Fatal("observer not notified")
	}
	assert.Equal(t, protocol.SegmentOf(" CD  "), c.Display().BasicSource())
	assert.Equal(t, protocol.SegmentOf("TAPE1"), c.Display().BasicRecord())

	port.feed(displayFrame("\xff\xff\xff\xff\xff", "\xff\xff\xff\xff\xff"))
	require.Eventually(t, func() bool {
		return c.Display().PowerState() == display.PowerStandby
	}, 2*time.Second, 5*time.Millisecond)
}

func TestClientReadWithoutMonitor(t *testing.T) {
	port := newFakePort()
	c := NewClient(model.Standard, nil, newFakeOpener(port))
	t.Cleanup(func() { _ = c.Close() })

	port.feed(displayFrame("TUNER", " OFF "))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resps, err := c.Read(ctx, 1)
	require.NoError(t, err)
	require.Len(t, resps, 1)
	assert.Equal(t, protocol.SegmentOf("TUNER"), c.Display().BasicSource())
}

func TestCloseThenSend(t *testing.T) {
	c, _ := newConnectedClient(t, nil)
	require.NoError(t, c.Close())

	err := c.SetSource(context.Background(), "cd")
	assert.True(t, IsClosed(err))
}

func TestValidCommandsAndBasicSources(t *testing.T) {
	c := NewClient(model.Standard, nil, newFakeOpener())
	assert.Contains(t, c.ValidCommands(), "label_change")
	assert.Equal(t, []string{"aux1", "aux2", "cd", "phono", "tape1", "tape2", "tuner", "video"}, c.BasicSources())
}
