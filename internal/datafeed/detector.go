package datafeed

import (
	"fmt"
	"math"
	"time"
)

// Fair home-win probabilities keyed by clipped goal difference and half.
// Values are (home win, draw, away win); only the home-win column drives
// detection.
var winProbTable = map[winProbKey][3]float64{
	{-2, "first_half"}:  {0.08, 0.14, 0.78},
	{-2, "second_half"}: {0.04, 0.08, 0.88},
	{-1, "first_half"}:  {0.20, 0.28, 0.52},
	{-1, "second_half"}: {0.12, 0.20, 0.68},
	{0, "first_half"}:   {0.40, 0.30, 0.30},
	{0, "second_half"}:  {0.35, 0.38, 0.27},
	{1, "first_half"}:   {0.62, 0.24, 0.14},
	{1, "second_half"}:  {0.72, 0.20, 0.08},
	{2, "first_half"}:   {0.80, 0.12, 0.08},
	{2, "second_half"}:  {0.90, 0.06, 0.04},
}

type winProbKey struct {
	goalDiff int
	timeBand string
}

// redCardAdjustment shifts the home-win probability by 12 percentage points
// on a red card: down when the home side is trailing or level (it most
// likely received the card), up otherwise.
const redCardAdjustment = 0.12

// goalsPerMinute is the league-average scoring rate behind the Poisson
// over/under model: 2.6 goals per 90 minutes.
const goalsPerMinute = 2.6 / 90.0

const matchLengthMinutes = 90

// POver returns the probability that total goals exceed line given the
// current total and minutes remaining. "Over 2.5" settles true at 3+ goals.
func POver(line float64, currentGoals int, minutesRemaining float64) float64 {
	needed := int(math.Floor(line)) + 1 - currentGoals
	if needed <= 0 {
		return 1.0
	}
	if minutesRemaining <= 0 {
		return 0.0
	}

	lambda := goalsPerMinute * minutesRemaining
	probFewer := 0.0
	for k := 0; k < needed; k++ {
		probFewer += poissonPMF(k, lambda)
	}

	p := 1.0 - probFewer
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}

	return p
}

func poissonPMF(k int, lambda float64) float64 {
	if lambda <= 0 {
		if k == 0 {
			return 1.0
		}
		return 0.0
	}

	logP := -lambda + float64(k)*math.Log(lambda)
	for i := 2; i <= k; i++ {
		logP -= math.Log(float64(i))
	}

	return math.Exp(logP)
}

// Detector maps live events and matched markets to opportunities.
type Detector struct {
	minEdge     float64 // fraction, e.g. 0.03
	entryWindow time.Duration
}

// NewDetector creates a detector. minEdgePct is a percentage (3.0 = 3%).
func NewDetector(minEdgePct float64, entryWindow time.Duration) *Detector {
	return &Detector{
		minEdge:     minEdgePct / 100.0,
		entryWindow: entryWindow,
	}
}

// Evaluate prices a live event against one matched market. Only goal and
// red-card events within the entry window are actionable; BTTS markets have
// no model yet.
func (d *Detector) Evaluate(evt *LiveEvent, market *MatchedMarket) (*Opportunity, bool) {
	if evt.EventType != EventGoal && evt.EventType != EventRedCard {
		return nil, false
	}
	if time.Since(evt.DetectedAt) > d.entryWindow {
		return nil, false
	}

	switch market.Kind {
	case KindGameWinner:
		return d.evaluateWinner(evt, market)
	case KindOverUnder:
		return d.evaluateOverUnder(evt, market)
	default:
		return nil, false
	}
}

func (d *Detector) evaluateWinner(evt *LiveEvent, market *MatchedMarket) (*Opportunity, bool) {
	fairHomeWin, ok := fairValueWinner(evt)
	if !ok {
		return nil, false
	}

	return d.build(evt, market, fairHomeWin)
}

func (d *Detector) evaluateOverUnder(evt *LiveEvent, market *MatchedMarket) (*Opportunity, bool) {
	if market.OULine <= 0 {
		return nil, false
	}

	currentGoals := evt.HomeScore + evt.AwayScore
	minutesRemaining := float64(matchLengthMinutes - evt.Minute)
	if minutesRemaining < 0 {
		minutesRemaining = 0
	}
	fairOver := POver(market.OULine, currentGoals, minutesRemaining)

	return d.build(evt, market, fairOver)
}

// build applies the edge threshold and direction: a positive edge buys YES
// at the fair value, a negative edge buys NO at 1-fair.
func (d *Detector) build(evt *LiveEvent, market *MatchedMarket, fair float64) (*Opportunity, bool) {
	edge := fair - market.CurrentPrice
	if math.Abs(edge) < d.minEdge {
		return nil, false
	}

	outcome := "Yes"
	effectiveFair := fair
	if edge < 0 {
		outcome = "No"
		effectiveFair = 1.0 - fair
	}

	return &Opportunity{
		FixtureID:      evt.FixtureID,
		MarketID:       market.MarketID,
		MarketQuestion: market.Question,
		TokenID:        market.TokenID,
		Outcome:        outcome,
		FairValue:      effectiveFair,
		MarketPrice:    market.CurrentPrice,
		EdgePct:        math.Abs(edge) * 100,
		SourceEvent:    describeEvent(evt),
		DetectedAt:     evt.DetectedAt,
		Kind:           market.Kind,
		OULine:         market.OULine,
		FeedSource:     evt.Source,
	}, true
}

// fairValueWinner looks up the fair home-win probability and applies the
// red-card adjustment.
func fairValueWinner(evt *LiveEvent) (float64, bool) {
	goalDiff := evt.HomeScore - evt.AwayScore
	if goalDiff < -2 {
		goalDiff = -2
	}
	if goalDiff > 2 {
		goalDiff = 2
	}

	timeBand := "second_half"
	if evt.Minute <= 45 {
		timeBand = "first_half"
	}

	probs, ok := winProbTable[winProbKey{goalDiff, timeBand}]
	if !ok {
		return 0, false
	}
	homeWin := probs[0]

	if evt.EventType == EventRedCard {
		if evt.HomeScore <= evt.AwayScore {
			homeWin = math.Max(0.01, homeWin-redCardAdjustment)
		} else {
			homeWin = math.Min(0.99, homeWin+redCardAdjustment)
		}
	}

	return homeWin, true
}

func describeEvent(evt *LiveEvent) string {
	switch evt.EventType {
	case EventGoal:
		return fmt.Sprintf("goal %d-%d min %d", evt.HomeScore, evt.AwayScore, evt.Minute)
	case EventRedCard:
		return fmt.Sprintf("red card min %d (%d-%d)", evt.Minute, evt.HomeScore, evt.AwayScore)
	default:
		return fmt.Sprintf("%s min %d", evt.EventType, evt.Minute)
	}
}
