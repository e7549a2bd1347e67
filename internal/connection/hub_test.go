package connection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/proximity-voice/internal/model"
	"github.com/rickgao/proximity-voice/internal/protocol"
	"github.com/rickgao/proximity-voice/internal/registry"
	"github.com/rickgao/proximity-voice/internal/router"
)

type hubFixture struct {
	hub      *Hub
	server   *httptest.Server
	observer *countingObserver
	sink     *recordingSink
}

func newHubFixture(t *testing.T, debounce time.Duration) *hubFixture {
	t.Helper()
	return newHubFixtureWith(t, func(cfg *HubConfig) { cfg.RosterDebounce = debounce })
}

func newHubFixtureWith(t *testing.T, configure func(*HubConfig)) *hubFixture {
	t.Helper()

	reg := registry.New(registry.DefaultConfig())
	rt := router.NewRouter(router.DefaultRouterConfig(), reg, nil, nil)

	cfg := DefaultHubConfig()
	cfg.Session.PingInterval = 0
	configure(&cfg)

	f := &hubFixture{observer: &countingObserver{}, sink: &recordingSink{}}
	f.hub = NewHub(cfg, reg, rt, f.observer, f.sink, nil)
	require.NoError(t, f.hub.Start(context.Background()))

	f.server = httptest.NewServer(f.hub)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		f.hub.Stop(ctx)
		f.server.Close()
	})
	return f
}

func (f *hubFixture) dial(t *testing.T, nick string) *websocket.Conn {
	t.Helper()
	endpoint, err := DialURL(wsURL(f.server), nick)
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(endpoint, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads frames until match returns true.
func readUntil(t *testing.T, conn *websocket.Conn, match func(protocol.Outbound) bool) protocol.Outbound {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	defer conn.SetReadDeadline(time.Time{})

	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		out, err := protocol.DecodeOutbound(data)
		require.NoError(t, err)
		if match(out) {
			return out
		}
	}
}

func rosterWith(nicks ...string) func(protocol.Outbound) bool {
	return func(out protocol.Outbound) bool {
		if out.Roster == nil || len(out.Roster.Players) != len(nicks) {
			return false
		}
		for i, p := range out.Roster.Players {
			if p.Nick != nicks[i] {
				return false
			}
		}
		return true
	}
}

func isAudio(out protocol.Outbound) bool { return out.Audio != nil }

func sendJSON(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func TestHub_EndToEndProximityAudio(t *testing.T) {
	f := newHubFixture(t, 0)

	a := f.dial(t, "A")
	readUntil(t, a, rosterWith("A"))

	b := f.dial(t, "B")
	readUntil(t, b, rosterWith("A", "B"))
	readUntil(t, a, rosterWith("A", "B"))

	sendJSON(t, b, `{"type":"position","x":10,"y":64,"z":0}`)
	require.Eventually(t, func() bool {
		st, err := f.hub.Registry().Get("B")
		return err == nil && st.Position.X == 10
	}, time.Second, 5*time.Millisecond)

	sendJSON(t, a, `{"type":"audio_chunk","audioData":"AAEC"}`)

	out := readUntil(t, b, isAudio)
	assert.Equal(t, "A", out.Audio.PlayerNick)
	assert.Equal(t, []byte{0, 1, 2}, out.Audio.AudioData)
	assert.Equal(t, 0.0, out.Audio.X)
	assert.Equal(t, 0.0, out.Audio.Z)
	assert.InDelta(t, 0.25, out.Audio.Gain, 1e-9)
	assert.InDelta(t, -1, out.Audio.Pan, 1e-9)
	assert.InDelta(t, 10, out.Audio.Distance, 1e-9)

	assert.Equal(t, 2, f.hub.Stats().ActiveSessions)
}

func TestHub_OutOfRangeGetsNothing(t *testing.T) {
	f := newHubFixture(t, 0)

	a := f.dial(t, "A")
	c := f.dial(t, "C")
	readUntil(t, c, rosterWith("A", "C"))

	sendJSON(t, c, `{"x":30,"z":0}`)
	require.Eventually(t, func() bool {
		st, err := f.hub.Registry().Get("C")
		return err == nil && st.Position.X == 30
	}, time.Second, 5*time.Millisecond)

	sendJSON(t, a, `{"type":"audio_chunk","audioData":"AAEC"}`)
	require.Eventually(t, func() bool {
		return f.hub.Stats().Router.PacketsReceived == 1
	}, time.Second, 5*time.Millisecond)

	c.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			break
		}
		out, err := protocol.DecodeOutbound(data)
		require.NoError(t, err)
		assert.Nil(t, out.Audio)
	}
}

func TestHub_RosterOnDisconnect(t *testing.T) {
	f := newHubFixture(t, 0)

	a := f.dial(t, "A")
	b := f.dial(t, "B")
	readUntil(t, a, rosterWith("A", "B"))

	b.Close()

	readUntil(t, a, rosterWith("A"))
	require.Eventually(t, func() bool { return f.hub.Registry().Len() == 1 }, time.Second, 5*time.Millisecond)
}

func TestHub_DebouncedRoster(t *testing.T) {
	f := newHubFixture(t, 30*time.Millisecond)

	a := f.dial(t, "A")
	f.dial(t, "B")
	f.dial(t, "C")

	out := readUntil(t, a, rosterWith("A", "B", "C"))
	assert.Len(t, out.Roster.Players, 3)
}

func TestHub_ScheduleRosterCoalesces(t *testing.T) {
	f := newHubFixture(t, 30*time.Millisecond)

	for i := 0; i < 10; i++ {
		f.hub.scheduleRoster()
	}

	require.Eventually(t, func() bool { return f.observer.rosters.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int64(1), f.observer.rosters.Load())
	assert.Equal(t, int64(1), f.hub.Stats().RosterBroadcasts)
}

func TestHub_ContinuousChurnStillBroadcasts(t *testing.T) {
	f := newHubFixture(t, 50*time.Millisecond)

	// Changes every 10ms never leave a quiet 50ms gap.
	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) {
		f.hub.scheduleRoster()
		time.Sleep(10 * time.Millisecond)
	}

	assert.GreaterOrEqual(t, f.observer.rosters.Load(), int64(3))
}

func TestHub_MovementReachesRoster(t *testing.T) {
	f := newHubFixture(t, 30*time.Millisecond)

	a := f.dial(t, "A")
	b := f.dial(t, "B")
	readUntil(t, b, rosterWith("A", "B"))

	sendJSON(t, a, `{"x":7,"z":3}`)

	out := readUntil(t, b, func(out protocol.Outbound) bool {
		return rosterWith("A", "B")(out) && out.Roster.Players[0].X == 7
	})
	assert.Equal(t, protocol.RosterEntry{Nick: "A", X: 7, Y: 64, Z: 3}, out.Roster.Players[0])
}

func TestHub_MovingPlayerSeenWhileChurning(t *testing.T) {
	f := newHubFixture(t, 50*time.Millisecond)

	a := f.dial(t, "A")
	b := f.dial(t, "B")
	readUntil(t, b, rosterWith("A", "B"))

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 1; ; i++ {
			select {
			case <-stop:
				return
			case <-time.After(10 * time.Millisecond):
				if err := a.WriteMessage(websocket.TextMessage, []byte(fmt.Sprintf(`{"x":%d,"z":0}`, i))); err != nil {
					return
				}
			}
		}
	}()
	defer func() {
		close(stop)
		<-done
	}()

	// A never stops moving, yet B still sees it move.
	readUntil(t, b, func(out protocol.Outbound) bool {
		return rosterWith("A", "B")(out) && out.Roster.Players[0].X > 0
	})
}

func TestHub_PeriodicRoster(t *testing.T) {
	f := newHubFixtureWith(t, func(cfg *HubConfig) {
		cfg.RosterDebounce = 0
		cfg.RosterInterval = 40 * time.Millisecond
	})

	a := f.dial(t, "A")
	readUntil(t, a, rosterWith("A"))
	before := f.observer.rosters.Load()

	// No changes happen; the interval alone keeps rosters coming.
	readUntil(t, a, rosterWith("A"))
	readUntil(t, a, rosterWith("A"))
	assert.Greater(t, f.observer.rosters.Load(), before)
}

func TestHub_MissingNick(t *testing.T) {
	f := newHubFixture(t, 0)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(f.server), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "Nick required")
	assert.Equal(t, []string{"missing_nick"}, f.observer.rejections())
}

func TestHub_DuplicateNickRejected(t *testing.T) {
	f := newHubFixture(t, 0)

	a := f.dial(t, "A")
	readUntil(t, a, rosterWith("A"))

	endpoint, _ := DialURL(wsURL(f.server), "A")
	_, resp, err := websocket.DefaultDialer.Dial(endpoint, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// The first session is untouched.
	sendJSON(t, a, `{"x":4,"z":4}`)
	require.Eventually(t, func() bool {
		st, err := f.hub.Registry().Get("A")
		return err == nil && st.Position.X == 4
	}, time.Second, 5*time.Millisecond)
	assert.Contains(t, f.sink.kinds(), model.PresenceRejected)
}

func TestHub_NonUpgradeRequest(t *testing.T) {
	f := newHubFixture(t, 0)

	resp, err := http.Get(f.server.URL + "?nick=A")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHub_MalformedFrameKeepsSession(t *testing.T) {
	f := newHubFixture(t, 0)

	a := f.dial(t, "A")
	readUntil(t, a, rosterWith("A"))

	sendJSON(t, a, `{{{`)
	sendJSON(t, a, `{"x":7,"z":1}`)

	require.Eventually(t, func() bool {
		st, err := f.hub.Registry().Get("A")
		return err == nil && st.Position.X == 7
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), f.observer.malformed.Load())
}

func TestHub_UpdatePositionAndKick(t *testing.T) {
	f := newHubFixture(t, 0)

	a := f.dial(t, "A")
	readUntil(t, a, rosterWith("A"))

	assert.True(t, f.hub.UpdatePosition("A", model.Position{X: 1, Y: 2, Z: 3}))
	assert.False(t, f.hub.UpdatePosition("ghost", model.Position{}))

	st, err := f.hub.Registry().Get("A")
	require.NoError(t, err)
	assert.Equal(t, model.Position{X: 1, Y: 2, Z: 3}, st.Position)

	assert.True(t, f.hub.Kick("A", errors.New("idle")))

	a.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := a.ReadMessage(); err != nil {
			break
		}
	}
	require.Eventually(t, func() bool { return f.hub.Registry().Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHub_StopClosesSessions(t *testing.T) {
	f := newHubFixture(t, 0)

	a := f.dial(t, "A")
	readUntil(t, a, rosterWith("A"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.hub.Stop(ctx))

	a.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := a.ReadMessage(); err != nil {
			break
		}
	}
	assert.Equal(t, 0, f.hub.Registry().Len())
	assert.Equal(t, 0, f.hub.Stats().ActiveSessions)

	endpoint, _ := DialURL(wsURL(f.server), "B")
	_, resp, err := websocket.DefaultDialer.Dial(endpoint, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
