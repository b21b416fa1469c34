package datafeed

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/polysignal/signal-engine/pkg/bus"
	"github.com/polysignal/signal-engine/pkg/fetcher"
	"go.uber.org/zap"
)

// DefaultFootballHost is the API-Football v3 base URL.
const DefaultFootballHost = "https://v3.football.api-sports.io"

// Feed polls one sports data source and returns only NEW events since the
// previous poll.
type Feed interface {
	Poll(ctx context.Context) ([]LiveEvent, error)
	Name() string
}

// FootballFeed polls API-Football's live fixtures and diffs them by fixture
// ID: a new ID is a match start, a score increase a goal, a trailing
// red-card entry a red card, a disappearance a match end.
type FootballFeed struct {
	host   string
	http   *fetcher.Fetcher
	bus    *bus.Bus
	logger *zap.Logger

	lastFixtures   map[int64]footballFixture
	callsRemaining int
}

// NewFootballFeed creates the feed. The API key rides on every request via
// the x-apisports-key header.
func NewFootballFeed(host, apiKey string, httpFetcher *fetcher.Fetcher, eventBus *bus.Bus, logger *zap.Logger) *FootballFeed {
	if host == "" {
		host = DefaultFootballHost
	}

	return &FootballFeed{
		host:           host,
		http:           httpFetcher.WithHeaders(map[string]string{"x-apisports-key": apiKey}),
		bus:            eventBus,
		logger:         logger,
		lastFixtures:   make(map[int64]footballFixture),
		callsRemaining: 100,
	}
}

// Name identifies the feed source.
func (f *FootballFeed) Name() string { return SourceAPIFootball }

type footballFixture struct {
	Fixture struct {
		ID     int64 `json:"id"`
		Status struct {
			Elapsed *int `json:"elapsed"`
		} `json:"status"`
	} `json:"fixture"`
	Teams struct {
		Home footballTeam `json:"home"`
		Away footballTeam `json:"away"`
	} `json:"teams"`
	Goals struct {
		Home *int `json:"home"`
		Away *int `json:"away"`
	} `json:"goals"`
	Events []footballMatchEvent `json:"events"`
}

type footballTeam struct {
	Name string `json:"name"`
}

type footballMatchEvent struct {
	Type   string `json:"type"`
	Detail string `json:"detail"`
}

type footballResponse struct {
	Response []footballFixture `json:"response"`
}

// Poll fetches live fixtures and returns the diff against the previous
// snapshot.
func (f *FootballFeed) Poll(ctx context.Context) ([]LiveEvent, error) {
	var resp footballResponse
	header, err := f.http.GetJSONHeaders(ctx, f.host+"/fixtures", url.Values{"live": {"all"}}, &resp)
	if header != nil {
		if remaining, parseErr := strconv.Atoi(header.Get("x-ratelimit-requests-remaining")); parseErr == nil {
			f.callsRemaining = remaining
		}
	}
	f.emitAPIStatus()
	if err != nil {
		return nil, err
	}

	events := f.diff(resp.Response)
	f.logger.Info("football-poll-complete",
		zap.Int("live-fixtures", len(resp.Response)),
		zap.Int("new-events", len(events)))
	FeedEventsTotal.WithLabelValues(SourceAPIFootball).Add(float64(len(events)))

	return events, nil
}

func (f *FootballFeed) diff(fixtures []footballFixture) []LiveEvent {
	var newEvents []LiveEvent
	current := make(map[int64]footballFixture, len(fixtures))

	for _, fx := range fixtures {
		fid := fx.Fixture.ID
		current[fid] = fx
		prev, known := f.lastFixtures[fid]

		if !known {
			newEvents = append(newEvents, f.makeEvent(&fx, EventMatchStart))
			continue
		}

		ph, pa := intOrZero(prev.Goals.Home), intOrZero(prev.Goals.Away)
		ch, ca := intOrZero(fx.Goals.Home), intOrZero(fx.Goals.Away)

		if ch > ph || ca > pa {
			newEvents = append(newEvents, f.makeEvent(&fx, EventGoal))
			continue
		}

		// New event entries with a red card at the tail.
		if len(fx.Events) > len(prev.Events) {
			latest := fx.Events[len(fx.Events)-1]
			if latest.Type == "Card" && latest.Detail == "Red Card" {
				newEvents = append(newEvents, f.makeEvent(&fx, EventRedCard))
			}
		}
	}

	// Fixtures that disappeared from the live feed have ended.
	for fid, prev := range f.lastFixtures {
		if _, stillLive := current[fid]; !stillLive {
			newEvents = append(newEvents, f.makeEvent(&prev, EventMatchEnd))
		}
	}

	f.lastFixtures = current

	return newEvents
}

func (f *FootballFeed) makeEvent(fx *footballFixture, eventType string) LiveEvent {
	minute := 0
	if fx.Fixture.Status.Elapsed != nil {
		minute = *fx.Fixture.Status.Elapsed
	}

	return LiveEvent{
		FixtureID:  fx.Fixture.ID,
		HomeTeam:   teamName(fx.Teams.Home.Name, "Home"),
		AwayTeam:   teamName(fx.Teams.Away.Name, "Away"),
		HomeScore:  intOrZero(fx.Goals.Home),
		AwayScore:  intOrZero(fx.Goals.Away),
		Minute:     minute,
		EventType:  eventType,
		DetectedAt: time.Now(),
		Source:     SourceAPIFootball,
		Raw:        fx,
	}
}

func (f *FootballFeed) emitAPIStatus() {
	health := "red"
	switch {
	case f.callsRemaining > 20:
		health = "green"
	case f.callsRemaining > 5:
		health = "yellow"
	}

	f.bus.Publish("datafeed_api_status", map[string]interface{}{
		"source":          SourceAPIFootball,
		"calls_remaining": f.callsRemaining,
		"health":          health,
	})
}

func intOrZero(v *int) int {
	if v == nil {
		return 0
	}

	return *v
}

func teamName(name, fallback string) string {
	if name == "" {
		return fallback
	}

	return name
}
