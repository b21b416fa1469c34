package datafeed

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/polysignal/signal-engine/pkg/bus"
	"github.com/polysignal/signal-engine/pkg/fetcher"
	"github.com/polysignal/signal-engine/pkg/types"
	"go.uber.org/zap"
)

// DefaultSportradarHost is the trial API base URL.
const DefaultSportradarHost = "https://api.sportradar.us"

const (
	sportradarSoccerPath = "/soccer/trial/v4/en/schedules/live/summaries.json"
	sportradarNBAPath    = "/nba/trial/v8/en/games/%s/schedule.json"
)

// SportradarFeed polls the Sportradar trial endpoints: live soccer summaries
// and, when enabled, the day's NBA schedule. Key normalization differs from
// API-Football; a stable numeric fixture ID is derived from the trailing
// segment of the string event ID.
type SportradarFeed struct {
	host       string
	apiKey     string
	http       *fetcher.Fetcher
	bus        *bus.Bus
	logger     *zap.Logger
	basketball bool

	lastSoccer map[string]sportradarSummary
	lastNBA    map[string]sportradarGame

	callsRemaining int
}

// NewSportradarFeed creates the feed. basketball enables the NBA schedule
// poll alongside soccer.
func NewSportradarFeed(host, apiKey string, basketball bool, httpFetcher *fetcher.Fetcher, eventBus *bus.Bus, logger *zap.Logger) *SportradarFeed {
	if host == "" {
		host = DefaultSportradarHost
	}

	return &SportradarFeed{
		host:           host,
		apiKey:         apiKey,
		http:           httpFetcher,
		bus:            eventBus,
		logger:         logger,
		basketball:     basketball,
		lastSoccer:     make(map[string]sportradarSummary),
		lastNBA:        make(map[string]sportradarGame),
		callsRemaining: 1000,
	}
}

// Name identifies the feed source.
func (f *SportradarFeed) Name() string { return SourceSportradar }

type sportradarSummary struct {
	SportEvent struct {
		ID          string `json:"id"`
		Competitors []struct {
			Name      string `json:"name"`
			Qualifier string `json:"qualifier"`
		} `json:"competitors"`
	} `json:"sport_event"`
	Status sportradarStatus `json:"sport_event_status"`
}

type sportradarStatus struct {
	Status    string `json:"status"`
	HomeScore int    `json:"home_score"`
	AwayScore int    `json:"away_score"`
	Clock     struct {
		Played string `json:"played"`
	} `json:"clock"`
}

type sportradarGame struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Home   struct {
		Name string `json:"name"`
	} `json:"home"`
	Away struct {
		Name string `json:"name"`
	} `json:"away"`
	HomePoints int `json:"home_points"`
	AwayPoints int `json:"away_points"`
}

// Poll fetches soccer (and optionally NBA) and returns new events.
func (f *SportradarFeed) Poll(ctx context.Context) ([]LiveEvent, error) {
	if f.apiKey == "" {
		return nil, nil
	}

	events := f.pollSoccer(ctx)
	if f.basketball {
		events = append(events, f.pollNBA(ctx)...)
	}

	FeedEventsTotal.WithLabelValues(SourceSportradar).Add(float64(len(events)))

	return events, nil
}

func (f *SportradarFeed) pollSoccer(ctx context.Context) []LiveEvent {
	var resp struct {
		Summaries []sportradarSummary `json:"summaries"`
	}
	header, err := f.http.GetJSONHeaders(ctx, f.host+sportradarSoccerPath, url.Values{
		"api_key": {f.apiKey},
	}, &resp)
	f.trackRateLimit(header)
	if err != nil {
		if types.IsRateLimited(err) {
			f.emitAPIStatus("yellow")
			return nil
		}
		f.logger.Warn("sportradar-soccer-poll-failed", zap.Error(err))
		return nil
	}

	events := f.diffSoccer(resp.Summaries)
	f.logger.Info("sportradar-poll-complete",
		zap.Int("fixtures", len(resp.Summaries)),
		zap.Int("new-events", len(events)))

	return events
}

func (f *SportradarFeed) diffSoccer(summaries []sportradarSummary) []LiveEvent {
	var newEvents []LiveEvent
	current := make(map[string]sportradarSummary, len(summaries))

	for _, s := range summaries {
		matchID := s.SportEvent.ID
		if matchID == "" {
			continue
		}
		current[matchID] = s

		home, away := sportradarTeams(&s)
		minute := parseClockMinute(s.Status.Clock.Played)

		prev, known := f.lastSoccer[matchID]
		if !known {
			if s.Status.Status == "live" || s.Status.Status == "inprogress" {
				newEvents = append(newEvents, f.makeSoccerEvent(matchID, home, away,
					s.Status.HomeScore, s.Status.AwayScore, minute, EventMatchStart, s))
			}
			continue
		}

		if s.Status.HomeScore > prev.Status.HomeScore || s.Status.AwayScore > prev.Status.AwayScore {
			newEvents = append(newEvents, f.makeSoccerEvent(matchID, home, away,
				s.Status.HomeScore, s.Status.AwayScore, minute, EventGoal, s))
		}
	}

	for matchID, prev := range f.lastSoccer {
		if _, stillLive := current[matchID]; !stillLive {
			home, away := sportradarTeams(&prev)
			newEvents = append(newEvents, f.makeSoccerEvent(matchID, home, away,
				prev.Status.HomeScore, prev.Status.AwayScore, matchLengthMinutes, EventMatchEnd, prev))
		}
	}

	f.lastSoccer = current

	return newEvents
}

func (f *SportradarFeed) pollNBA(ctx context.Context) []LiveEvent {
	path := f.host + fmt.Sprintf(sportradarNBAPath, time.Now().UTC().Format("2006/01/02"))

	var resp struct {
		Games []sportradarGame `json:"games"`
	}
	header, err := f.http.GetJSONHeaders(ctx, path, url.Values{"api_key": {f.apiKey}}, &resp)
	f.trackRateLimit(header)
	if err != nil {
		f.logger.Warn("sportradar-nba-poll-failed", zap.Error(err))
		return nil
	}

	return f.diffNBA(resp.Games)
}

func (f *SportradarFeed) diffNBA(games []sportradarGame) []LiveEvent {
	var newEvents []LiveEvent
	current := make(map[string]sportradarGame, len(games))

	for _, g := range games {
		if g.ID == "" {
			continue
		}
		current[g.ID] = g

		prev, known := f.lastNBA[g.ID]
		if !known {
			if g.Status == "inprogress" || g.Status == "halftime" {
				newEvents = append(newEvents, f.makeNBAEvent(&g, EventGameStart))
			}
			continue
		}

		// Any score change is a scoring event, the basketball analogue of a
		// goal.
		if g.HomePoints != prev.HomePoints || g.AwayPoints != prev.AwayPoints {
			newEvents = append(newEvents, f.makeNBAEvent(&g, EventGoal))
		}
	}

	for gid, prev := range f.lastNBA {
		if _, still := current[gid]; !still {
			newEvents = append(newEvents, f.makeNBAEvent(&prev, EventGameEnd))
		}
	}

	f.lastNBA = current

	return newEvents
}

func (f *SportradarFeed) makeSoccerEvent(matchID, home, away string, homeScore, awayScore, minute int, eventType string, raw sportradarSummary) LiveEvent {
	return LiveEvent{
		FixtureID:  stableFixtureID(matchID),
		HomeTeam:   home,
		AwayTeam:   away,
		HomeScore:  homeScore,
		AwayScore:  awayScore,
		Minute:     minute,
		EventType:  eventType,
		DetectedAt: time.Now(),
		Source:     SourceSportradar,
		Raw:        raw,
	}
}

func (f *SportradarFeed) makeNBAEvent(g *sportradarGame, eventType string) LiveEvent {
	return LiveEvent{
		FixtureID:  stableFixtureID(g.ID),
		HomeTeam:   teamName(g.Home.Name, "Home"),
		AwayTeam:   teamName(g.Away.Name, "Away"),
		HomeScore:  g.HomePoints,
		AwayScore:  g.AwayPoints,
		Minute:     0,
		EventType:  eventType,
		DetectedAt: time.Now(),
		Source:     SourceSportradar,
		Raw:        g,
	}
}

func (f *SportradarFeed) trackRateLimit(header http.Header) {
	if header == nil {
		return
	}
	remaining, err := strconv.Atoi(header.Get("x-ratelimit-remaining"))
	if err != nil {
		return
	}
	f.callsRemaining = remaining

	health := "red"
	switch {
	case remaining > 50:
		health = "green"
	case remaining > 10:
		health = "yellow"
	}
	f.emitAPIStatus(health)
}

func (f *SportradarFeed) emitAPIStatus(health string) {
	f.bus.Publish("datafeed_api_status", map[string]interface{}{
		"source":          SourceSportradar,
		"calls_remaining": f.callsRemaining,
		"health":          health,
	})
}

func sportradarTeams(s *sportradarSummary) (home, away string) {
	home, away = "Home", "Away"
	for _, c := range s.SportEvent.Competitors {
		switch c.Qualifier {
		case "home":
			home = teamName(c.Name, "Home")
		case "away":
			away = teamName(c.Name, "Away")
		}
	}

	return home, away
}

// stableFixtureID derives a numeric fixture ID from a Sportradar string ID
// ("sr:sport_event:12345" → 12345), hashing when the tail is not numeric.
func stableFixtureID(id string) int64 {
	parts := strings.Split(id, ":")
	tail := parts[len(parts)-1]
	if n, err := strconv.ParseInt(tail, 10, 64); err == nil {
		return n
	}

	var h int64
	for _, c := range id {
		h = h*31 + int64(c)
	}

	return h & 0xFFFFFF
}

// parseClockMinute extracts the minute from a "MM:SS" clock string.
func parseClockMinute(played string) int {
	if played == "" {
		return 0
	}
	minute, err := strconv.Atoi(strings.SplitN(played, ":", 2)[0])
	if err != nil {
		return 0
	}

	return minute
}
