package datafeed

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/polysignal/signal-engine/internal/arbitrage"
	"github.com/polysignal/signal-engine/internal/polymarket"
	"github.com/polysignal/signal-engine/pkg/cache"
	"github.com/polysignal/signal-engine/pkg/types"
	"go.uber.org/zap"
)

const (
	// catalogueTTL caches the active soccer market list.
	catalogueTTL = 300 * time.Second

	catalogueCacheKey = "datafeed:markets"
	catalogueTag      = "Soccer"
	catalogueLimit    = 200

	// matchThreshold accepts a catalogue market; refMatchThreshold applies
	// to reference-portfolio positions and to catalogue markets naming a
	// team already held there.
	matchThreshold    = 0.50
	refMatchThreshold = 0.35
)

// Common abbreviations expanded during normalization.
var teamAbbreviations = map[string]string{
	"man utd":  "manchester united",
	"man city": "manchester city",
	"psg":      "paris saint-germain",
	"inter":    "inter milan",
	"atletico": "atletico madrid",
	"ac milan": "milan",
	"spurs":    "tottenham",
	"bvb":      "borussia dortmund",
}

var (
	overUnderRe = regexp.MustCompile(`(?i)o/?u\s*([0-9]+(?:\.[0-9]+)?)`)
	bttsRe      = regexp.MustCompile(`(?i)both teams (to )?score`)
)

// RefPosition is an already-held position used to bias matching toward
// markets the engine is exposed to.
type RefPosition struct {
	Question string
	TokenID  string
	Price    float64
}

// Matcher pairs live events with prediction markets by title similarity.
type Matcher struct {
	client *polymarket.Client
	cache  cache.Cache
	logger *zap.Logger
}

// NewMatcher creates a matcher with a cached market catalogue.
func NewMatcher(client *polymarket.Client, c cache.Cache, logger *zap.Logger) *Matcher {
	return &Matcher{
		client: client,
		cache:  c,
		logger: logger,
	}
}

// FindMarket matches a live event, first against reference-portfolio
// positions, then against the cached global catalogue.
func (m *Matcher) FindMarket(ctx context.Context, evt *LiveEvent, refs []RefPosition) (*MatchedMarket, bool) {
	home := normalizeTeam(evt.HomeTeam)
	away := normalizeTeam(evt.AwayTeam)

	// Reference positions first: a lower bar avoids losing track of markets
	// the engine already holds.
	var bestRef *RefPosition
	bestRefScore := 0.0
	for i := range refs {
		score := titleScore(normalizeTeam(refs[i].Question), home, away)
		if score > bestRefScore {
			bestRefScore = score
			bestRef = &refs[i]
		}
	}
	if bestRef != nil && bestRefScore >= refMatchThreshold {
		return &MatchedMarket{
			MarketID:     "",
			Question:     bestRef.Question,
			Kind:         ClassifyMarket(bestRef.Question),
			TokenID:      bestRef.TokenID,
			CurrentPrice: bestRef.Price,
			OULine:       parseOULine(bestRef.Question),
		}, true
	}

	markets := m.catalogue(ctx)
	if len(markets) == 0 {
		return nil, false
	}

	refTeams := buildRefTeamSet(refs)
	threshold := matchThreshold
	if teamInSet(refTeams, home) || teamInSet(refTeams, away) {
		threshold = refMatchThreshold
	}

	var best *types.Market
	bestScore := 0.0
	for i := range markets {
		title := normalizeTeam(markets[i].Question)
		score := titleScore(title, home, away)
		if score > bestScore {
			bestScore = score
			best = &markets[i]
		}
	}

	if best == nil || bestScore < threshold {
		return nil, false
	}

	price, ok := marketPrice(best)
	if !ok {
		return nil, false
	}
	yesID, noID := arbitrage.ExtractTokenIDs(best)
	if yesID == "" {
		return nil, false
	}

	m.logger.Debug("matcher-market-matched",
		zap.String("home", evt.HomeTeam),
		zap.String("away", evt.AwayTeam),
		zap.String("question", best.Question),
		zap.Float64("score", bestScore))

	return &MatchedMarket{
		MarketID:     best.ConditionID,
		Question:     best.Question,
		Kind:         ClassifyMarket(best.Question),
		TokenID:      yesID,
		TokenIDNo:    noID,
		CurrentPrice: price,
		OULine:       parseOULine(best.Question),
	}, true
}

func (m *Matcher) catalogue(ctx context.Context) []types.Market {
	if cached, ok := m.cache.Get(catalogueCacheKey); ok {
		if markets, ok := cached.([]types.Market); ok {
			return markets
		}
	}

	markets, err := m.client.GetMarketsByTag(ctx, catalogueTag, catalogueLimit)
	if err != nil {
		m.logger.Warn("matcher-catalogue-fetch-failed", zap.Error(err))
		return nil
	}

	m.cache.Set(catalogueCacheKey, markets, catalogueTTL)

	return markets
}

// ClassifyMarket buckets a market by its title: an o/u line, a
// both-teams-score phrase, else game-winner.
func ClassifyMarket(question string) MarketKind {
	if overUnderRe.MatchString(question) {
		return KindOverUnder
	}
	if bttsRe.MatchString(question) {
		return KindBothScore
	}

	return KindGameWinner
}

// parseOULine extracts the over/under line from a title, 0 when absent.
func parseOULine(question string) float64 {
	match := overUnderRe.FindStringSubmatch(question)
	if len(match) < 2 {
		return 0
	}
	line, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0
	}

	return line
}

// titleScore combines sequence similarity of the title to each team with
// word overlap of title tokens against both teams' tokens.
func titleScore(title, home, away string) float64 {
	seqScore := sequenceRatio(title, home)
	if r := sequenceRatio(title, away); r > seqScore {
		seqScore = r
	}

	titleWords := wordSet(title)
	teamWords := wordSet(home)
	for w := range wordSet(away) {
		teamWords[w] = true
	}

	overlap := 0
	for w := range teamWords {
		if titleWords[w] {
			overlap++
		}
	}
	wordScore := 0.0
	if len(teamWords) > 0 {
		wordScore = float64(overlap) / float64(len(teamWords))
	}

	return seqScore*0.5 + wordScore*0.5
}

// sequenceRatio is the Ratcliff-Obershelp similarity of two strings:
// 2*matches/(len(a)+len(b)) with matches counted over recursive longest
// common substrings.
func sequenceRatio(a, b string) float64 {
	if len(a)+len(b) == 0 {
		return 0
	}

	return 2.0 * float64(matchingChars(a, b)) / float64(len(a)+len(b))
}

func matchingChars(a, b string) int {
	ai, bi, size := longestCommonSubstring(a, b)
	if size == 0 {
		return 0
	}

	return size +
		matchingChars(a[:ai], b[:bi]) +
		matchingChars(a[ai+size:], b[bi+size:])
}

func longestCommonSubstring(a, b string) (ai, bi, size int) {
	if len(a) == 0 || len(b) == 0 {
		return 0, 0, 0
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
				if curr[j] > size {
					size = curr[j]
					ai = i - size
					bi = j - size
				}
			} else {
				curr[j] = 0
			}
		}
		prev, curr = curr, prev
	}

	return ai, bi, size
}

func normalizeTeam(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	if full, ok := teamAbbreviations[n]; ok {
		return full
	}

	return n
}

// wordSet splits on whitespace and trims punctuation from each token, so
// "chelsea?" in a title counts as "chelsea".
func wordSet(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(s) {
		w = strings.TrimFunc(w, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if w != "" {
			out[w] = true
		}
	}

	return out
}

// buildRefTeamSet collects significant title tokens from held positions so
// catalogue matches involving those teams clear a lower bar.
func buildRefTeamSet(refs []RefPosition) map[string]bool {
	out := make(map[string]bool)
	for _, ref := range refs {
		for w := range wordSet(normalizeTeam(ref.Question)) {
			if len(w) > 3 {
				out[w] = true
			}
		}
	}

	return out
}

// teamInSet reports whether any token of the team name is in the reference
// team set.
func teamInSet(set map[string]bool, team string) bool {
	for w := range wordSet(team) {
		if set[w] {
			return true
		}
	}

	return false
}

func marketPrice(mkt *types.Market) (float64, bool) {
	if mkt.BestAsk != nil && *mkt.BestAsk > 0 {
		return *mkt.BestAsk, true
	}
	if mkt.BestBid != nil && *mkt.BestBid > 0 {
		return *mkt.BestBid, true
	}

	return 0, false
}
