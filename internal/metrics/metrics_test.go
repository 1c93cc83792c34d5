package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rotelhex/rotelhex/internal/display"
	"github.com/rotelhex/rotelhex/internal/protocol"
)

func TestRecorderCounters(t *testing.T) {
	m := New(NewRegistry())

	m.FrameReceived(&protocol.Response{})
	m.FrameReceived(&protocol.Response{BadChecksum: true})
	m.FrameReceived(&protocol.Response{})
	m.FrameDropped("truncated")
	m.CommandSent("source_cd")
	m.CommandSent("source_cd")
	m.ChannelReopened()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FramesReceived.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesReceived.WithLabelValues("bad")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesDropped.WithLabelValues("truncated")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CommandsSent.WithLabelValues("source_cd")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChannelReopens))
}

func TestObserverTracksPower(t *testing.T) {
	m := New(NewRegistry())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PowerState.WithLabelValues("unknown")))

	state := display.New(m)
	state.Update(&protocol.Response{
		DisplaySource: protocol.SegmentOf(" CD  "),
		DisplayRecord: protocol.SegmentOf("TAPE1"),
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.DisplayUpdates))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PowerState.WithLabelValues("on")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.PowerState.WithLabelValues("unknown")))

	// Same panel again is not a change
	state.Update(&protocol.Response{
		DisplaySource: protocol.SegmentOf(" CD  "),
		DisplayRecord: protocol.SegmentOf("TAPE1"),
	})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DisplayUpdates))

	state.Update(&protocol.Response{DisplaySource: display.Standby, DisplayRecord: display.Standby})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PowerState.WithLabelValues("standby")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.PowerState.WithLabelValues("on")))
}

func TestHandler(t *testing.T) {
	reg := NewRegistry()
	m := New(reg)
	m.CommandSent("power_toggle")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `rotelhex_commands_sent_total{command="power_toggle"} 1`), body)
	assert.Contains(t, body, "go_goroutines")
}
