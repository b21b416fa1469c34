package datafeed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/polysignal/signal-engine/pkg/bus"
	"github.com/polysignal/signal-engine/pkg/fetcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixtureServer struct {
	mu   sync.Mutex
	body string
}

func (s *fixtureServer) set(body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.body = body
}

func (s *fixtureServer) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		body := s.body
		s.mu.Unlock()
		w.Header().Set("x-ratelimit-requests-remaining", "88")
		_, _ = w.Write([]byte(body))
	})
}

func fixtureJSON(id int, home, away string, homeGoals, awayGoals, minute int, events string) string {
	return fmt.Sprintf(`{
		"fixture": {"id": %d, "status": {"elapsed": %d}},
		"teams": {"home": {"name": %q}, "away": {"name": %q}},
		"goals": {"home": %d, "away": %d},
		"events": [%s]
	}`, id, minute, home, away, homeGoals, awayGoals, events)
}

func newTestFootballFeed(t *testing.T, srv *fixtureServer) *FootballFeed {
	t.Helper()
	server := httptest.NewServer(srv.handler())
	t.Cleanup(server.Close)

	f := fetcher.New(fetcher.Config{
		Timeout:   2 * time.Second,
		BaseDelay: time.Millisecond,
		Logger:    zap.NewNop(),
	})

	return NewFootballFeed(server.URL, "test-key", f, bus.New(50, zap.NewNop()), zap.NewNop())
}

func TestFootballFirstPollEmitsMatchStarts(t *testing.T) {
	srv := &fixtureServer{body: `{"response": [` +
		fixtureJSON(1, "Arsenal", "Chelsea", 0, 0, 5, "") + `,` +
		fixtureJSON(2, "Bayern", "Dortmund", 1, 0, 30, "") + `]}`}
	feed := newTestFootballFeed(t, srv)

	events, err := feed.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 2)
	for _, evt := range events {
		assert.Equal(t, EventMatchStart, evt.EventType)
		assert.Equal(t, SourceAPIFootball, evt.Source)
	}
}

func TestFootballGoalDetection(t *testing.T) {
	srv := &fixtureServer{body: `{"response": [` +
		fixtureJSON(1, "Arsenal", "Chelsea", 0, 0, 5, "") + `]}`}
	feed := newTestFootballFeed(t, srv)

	_, err := feed.Poll(context.Background())
	require.NoError(t, err)

	srv.set(`{"response": [` + fixtureJSON(1, "Arsenal", "Chelsea", 1, 0, 23, "") + `]}`)
	events, err := feed.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventGoal, events[0].EventType)
	assert.Equal(t, 1, events[0].HomeScore)
	assert.Equal(t, 23, events[0].Minute)
}

func TestFootballRedCardDetection(t *testing.T) {
	srv := &fixtureServer{body: `{"response": [` +
		fixtureJSON(1, "Arsenal", "Chelsea", 1, 0, 30, "") + `]}`}
	feed := newTestFootballFeed(t, srv)

	_, err := feed.Poll(context.Background())
	require.NoError(t, err)

	srv.set(`{"response": [` +
		fixtureJSON(1, "Arsenal", "Chelsea", 1, 0, 44,
			`{"type": "Card", "detail": "Red Card"}`) + `]}`)
	events, err := feed.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventRedCard, events[0].EventType)
}

func TestFootballMatchEndOnDisappearance(t *testing.T) {
	srv := &fixtureServer{body: `{"response": [` +
		fixtureJSON(1, "Arsenal", "Chelsea", 2, 1, 90, "") + `]}`}
	feed := newTestFootballFeed(t, srv)

	_, err := feed.Poll(context.Background())
	require.NoError(t, err)

	srv.set(`{"response": []}`)
	events, err := feed.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventMatchEnd, events[0].EventType)
	assert.Equal(t, 2, events[0].HomeScore)
}

func TestSportradarDiffSoccer(t *testing.T) {
	f := NewSportradarFeed("", "key", false, nil, bus.New(10, zap.NewNop()), zap.NewNop())

	first := []sportradarSummary{srSummary("sr:match:100", "live", "Milan", "Inter", 0, 0, "12:30")}
	events := f.diffSoccer(first)
	require.Len(t, events, 1)
	assert.Equal(t, EventMatchStart, events[0].EventType)
	assert.Equal(t, int64(100), events[0].FixtureID)
	assert.Equal(t, 12, events[0].Minute)

	second := []sportradarSummary{srSummary("sr:match:100", "live", "Milan", "Inter", 1, 0, "27:05")}
	events = f.diffSoccer(second)
	require.Len(t, events, 1)
	assert.Equal(t, EventGoal, events[0].EventType)

	events = f.diffSoccer(nil)
	require.Len(t, events, 1)
	assert.Equal(t, EventMatchEnd, events[0].EventType)
}

func srSummary(id, status, home, away string, homeScore, awayScore int, clock string) sportradarSummary {
	var s sportradarSummary
	s.SportEvent.ID = id
	s.SportEvent.Competitors = []struct {
		Name      string `json:"name"`
		Qualifier string `json:"qualifier"`
	}{
		{Name: home, Qualifier: "home"},
		{Name: away, Qualifier: "away"},
	}
	s.Status.Status = status
	s.Status.HomeScore = homeScore
	s.Status.AwayScore = awayScore
	s.Status.Clock.Played = clock
	return s
}
