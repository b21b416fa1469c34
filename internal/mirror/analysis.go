package mirror

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/polysignal/signal-engine/internal/polymarket"
	"github.com/polysignal/signal-engine/pkg/cache"
	"go.uber.org/zap"
)

// analysisCacheTTL caps how often a wallet's trade history is recomputed.
const analysisCacheTTL = 5 * time.Minute

const activityFetchLimit = 500

// marketCategories maps a category name to title keywords. First hit wins;
// unmatched titles fall into "Other".
var marketCategories = []struct {
	name     string
	keywords []string
}{
	{"Soccer", []string{
		"soccer", "la liga", "premier league", "champions league", "bundesliga",
		"serie a", "ligue 1", "copa", "fifa", "o/u", "over/under", "btts",
		"both teams", "barcelona", "real madrid", "chelsea", "arsenal",
		"liverpool", "manchester", "psg", "juventus", "inter", "milan",
		"atletico", "dortmund",
	}},
	{"Basketball", []string{
		"nba", "basketball", "lakers", "celtics", "warriors", "bulls", "nets",
		"heat", "bucks", "76ers", "knicks",
	}},
	{"American Football", []string{
		"nfl", "super bowl", "touchdown", "quarterback", "patriots", "chiefs",
		"cowboys", "eagles",
	}},
	{"Baseball", []string{"mlb", "baseball", "world series", "yankees", "dodgers"}},
	{"MMA/Boxing", []string{"ufc", "boxing", "mma", "knockout"}},
	{"Politics", []string{
		"election", "president", "congress", "senate", "vote", "governor",
		"mayor", "primary", "referendum", "ballot",
	}},
	{"Crypto", []string{
		"bitcoin", "btc", "ethereum", "eth", "crypto", "token", "market cap",
	}},
}

// SizingStats summarizes trade sizes in USDC.
type SizingStats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	P25    float64 `json:"p25"`
	P75    float64 `json:"p75"`
	P95    float64 `json:"p95"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Analysis is a wallet's derived trading profile.
type Analysis struct {
	Address         string         `json:"address"`
	GeneratedAt     time.Time      `json:"generated_at"`
	TradeCount      int            `json:"trade_count"`
	ActivePositions int            `json:"active_positions"`
	Sizing          SizingStats    `json:"sizing"`
	EntryPrices     map[string]int `json:"entry_prices"`
	Categories      map[string]int `json:"categories"`
	BuyCount        int            `json:"buy_count"`
	SellCount       int            `json:"sell_count"`
	HourlyActivity  [24]int        `json:"hourly_activity"`
}

// Analyzer computes wallet-analysis snapshots with a 5-minute cache, both
// in-process and as a JSON file on disk.
type Analyzer struct {
	client    *polymarket.Client
	cache     cache.Cache
	logger    *zap.Logger
	cachePath string
}

// NewAnalyzer creates an analyzer caching to logDir/rn1_analysis.json.
func NewAnalyzer(client *polymarket.Client, c cache.Cache, logDir string, logger *zap.Logger) *Analyzer {
	return &Analyzer{
		client:    client,
		cache:     c,
		logger:    logger,
		cachePath: filepath.Join(logDir, "rn1_analysis.json"),
	}
}

// Analyze returns the wallet's trading profile, serving cached results while
// fresh.
func (a *Analyzer) Analyze(ctx context.Context, address string) (*Analysis, error) {
	key := "analysis:" + strings.ToLower(address)

	if cached, ok := a.cache.Get(key); ok {
		if analysis, ok := cached.(*Analysis); ok {
			return analysis, nil
		}
	}

	if analysis := a.loadDiskCache(address); analysis != nil {
		a.cache.Set(key, analysis, analysisCacheTTL)
		return analysis, nil
	}

	analysis := a.compute(ctx, address)
	a.cache.Set(key, analysis, analysisCacheTTL)
	a.saveDiskCache(analysis)

	return analysis, nil
}

func (a *Analyzer) compute(ctx context.Context, address string) *Analysis {
	activity := a.client.GetActivity(ctx, address, activityFetchLimit)
	positions, err := a.client.GetPositions(ctx, address)
	if err != nil {
		a.logger.Debug("analysis-positions-fetch-failed", zap.Error(err))
	}

	analysis := &Analysis{
		Address:         strings.ToLower(address),
		GeneratedAt:     time.Now(),
		TradeCount:      len(activity),
		ActivePositions: len(positions),
		EntryPrices:     make(map[string]int),
		Categories:      make(map[string]int),
	}

	sizes := make([]float64, 0, len(activity))
	for _, act := range activity {
		if act.USDCSize > 0 {
			sizes = append(sizes, act.USDCSize)
		}
		analysis.EntryPrices[priceBucket(act.Price)]++
		analysis.Categories[categorize(act.Title)]++

		switch strings.ToUpper(act.Side) {
		case "BUY":
			analysis.BuyCount++
		case "SELL":
			analysis.SellCount++
		}

		if act.Timestamp > 0 {
			analysis.HourlyActivity[time.Unix(act.Timestamp, 0).UTC().Hour()]++
		}
	}

	analysis.Sizing = sizingStats(sizes)

	return analysis
}

func (a *Analyzer) loadDiskCache(address string) *Analysis {
	data, err := os.ReadFile(a.cachePath)
	if err != nil {
		return nil
	}

	var analysis Analysis
	if err := json.Unmarshal(data, &analysis); err != nil {
		return nil
	}
	if !strings.EqualFold(analysis.Address, address) {
		return nil
	}
	if time.Since(analysis.GeneratedAt) > analysisCacheTTL {
		return nil
	}

	return &analysis
}

func (a *Analyzer) saveDiskCache(analysis *Analysis) {
	data, err := json.MarshalIndent(analysis, "", "  ")
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(a.cachePath), 0o755); err != nil {
		return
	}
	if err := os.WriteFile(a.cachePath, data, 0o644); err != nil {
		a.logger.Warn("analysis-cache-write-failed", zap.Error(err))
	}
}

func sizingStats(sizes []float64) SizingStats {
	if len(sizes) == 0 {
		return SizingStats{}
	}

	sorted := make([]float64, len(sizes))
	copy(sorted, sizes)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}

	return SizingStats{
		Count:  len(sorted),
		Mean:   sum / float64(len(sorted)),
		Median: percentile(sorted, 50),
		P25:    percentile(sorted, 25),
		P75:    percentile(sorted, 75),
		P95:    percentile(sorted, 95),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
	}
}

func percentile(sorted []float64, pct float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(float64(len(sorted))*pct/100)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}

	return sorted[idx]
}

func priceBucket(price float64) string {
	switch {
	case price < 0.2:
		return "<0.20"
	case price < 0.4:
		return "0.20-0.40"
	case price < 0.6:
		return "0.40-0.60"
	case price < 0.8:
		return "0.60-0.80"
	default:
		return ">0.80"
	}
}

func categorize(title string) string {
	t := strings.ToLower(title)
	for _, cat := range marketCategories {
		for _, kw := range cat.keywords {
			if strings.Contains(t, kw) {
				return cat.name
			}
		}
	}

	return "Other"
}
