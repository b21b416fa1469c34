package mirror

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/polysignal/signal-engine/internal/polymarket"
	"github.com/polysignal/signal-engine/pkg/bus"
	"github.com/polysignal/signal-engine/pkg/types"
	"go.uber.org/zap"
)

// maxJitter is added to each address's poll interval so a fleet of addresses
// on the same interval does not fire in lockstep.
const maxJitter = 5 * time.Second

// pollTick is the scheduler resolution of the poll loop.
const pollTick = 1 * time.Second

// PositionCallback receives the watched address and the raw wallet position
// that opened or closed.
type PositionCallback func(cfg *WatchedAddress, pos polymarket.Position)

// AddressMonitor polls many wallets' active-position sets and emits
// opened/closed callbacks on change.
//
// The first successful poll per address establishes a baseline and emits no
// callbacks, preventing a flood of synthetic opens on startup. Subsequent
// polls diff by token ID; opens are delivered before closes.
type AddressMonitor struct {
	client   *polymarket.Client
	bus      *bus.Bus
	logger   *zap.Logger
	onOpened PositionCallback
	onClosed PositionCallback

	defaultInterval time.Duration
	persistPath     string

	mu        sync.Mutex
	addresses map[string]*WatchedAddress
}

// MonitorConfig holds address monitor configuration.
type MonitorConfig struct {
	DefaultInterval time.Duration
	LogDir          string
	Logger          *zap.Logger
}

// NewAddressMonitor creates a monitor, loading the persisted roster when
// present.
func NewAddressMonitor(cfg MonitorConfig, client *polymarket.Client, eventBus *bus.Bus, onOpened, onClosed PositionCallback) *AddressMonitor {
	m := &AddressMonitor{
		client:          client,
		bus:             eventBus,
		logger:          cfg.Logger,
		onOpened:        onOpened,
		onClosed:        onClosed,
		defaultInterval: cfg.DefaultInterval,
		persistPath:     filepath.Join(cfg.LogDir, "mirror_addresses.json"),
		addresses:       make(map[string]*WatchedAddress),
	}
	m.loadPersisted()

	return m
}

// Run blocks, scheduling address polls until the context is cancelled.
func (m *AddressMonitor) Run(ctx context.Context) error {
	m.logger.Info("address-monitor-started",
		zap.Duration("default-interval", m.defaultInterval))

	ticker := time.NewTicker(pollTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("address-monitor-stopping")
			return ctx.Err()
		case <-ticker.C:
			m.pollDue(ctx)
		}
	}
}

// pollDue polls every enabled, non-rate-limited address whose interval (plus
// jitter) has elapsed. Polls run sequentially so per-address state is only
// ever touched by one step at a time.
func (m *AddressMonitor) pollDue(ctx context.Context) {
	m.mu.Lock()
	due := make([]*WatchedAddress, 0, len(m.addresses))
	now := time.Now()
	for _, cfg := range m.addresses {
		if !cfg.Enabled || cfg.IsRateLimited(now) {
			continue
		}
		jitter := time.Duration(rand.Int63n(int64(maxJitter)))
		if now.Before(cfg.LastPollTS.Add(cfg.PollInterval + jitter)) {
			continue
		}
		due = append(due, cfg)
	}
	m.mu.Unlock()

	for _, cfg := range due {
		if ctx.Err() != nil {
			return
		}
		m.pollAddress(ctx, cfg)
	}
}

func (m *AddressMonitor) pollAddress(ctx context.Context, cfg *WatchedAddress) {
	cfg.LastPollTS = time.Now()

	positions, err := m.client.GetPositions(ctx, cfg.Address)
	if err != nil {
		m.handlePollError(cfg, err)
		return
	}

	m.processPositions(cfg, positions)
	cfg.LastSuccessTS = time.Now()
	cfg.ConsecutiveFails = 0
	PollsTotal.WithLabelValues("ok").Inc()
	m.emitAddressStatus(cfg)
}

func (m *AddressMonitor) handlePollError(cfg *WatchedAddress, err error) {
	if types.IsRateLimited(err) {
		cfg.RateLimitedUntil = time.Now().Add(rateLimitPause)
		PollsTotal.WithLabelValues("rate_limited").Inc()

		m.logger.Warn("address-rate-limited",
			zap.String("address", shortAddr(cfg.Address)),
			zap.String("nickname", cfg.Nickname),
			zap.Duration("pause", rateLimitPause))

		m.bus.Publish("mirror_api_event", map[string]interface{}{
			"kind":      "rate_limited",
			"address":   cfg.Address,
			"nickname":  cfg.Nickname,
			"resume_at": cfg.RateLimitedUntil.Unix(),
		})
		m.emitAddressStatus(cfg)
		return
	}

	cfg.ConsecutiveFails++
	PollsTotal.WithLabelValues("error").Inc()

	m.logger.Error("address-poll-failed",
		zap.String("address", shortAddr(cfg.Address)),
		zap.String("nickname", cfg.Nickname),
		zap.Int("consecutive-failures", cfg.ConsecutiveFails),
		zap.Error(err))

	m.bus.Publish("mirror_api_event", map[string]interface{}{
		"kind":                 "poll_error",
		"address":              cfg.Address,
		"nickname":             cfg.Nickname,
		"consecutive_failures": cfg.ConsecutiveFails,
		"error":                err.Error(),
		"stale":                cfg.IsStale(),
	})
	m.emitAddressStatus(cfg)
}

// processPositions diffs the fetched position set against the last snapshot
// and invokes callbacks. The first successful poll only records the baseline.
func (m *AddressMonitor) processPositions(cfg *WatchedAddress, positions []polymarket.Position) {
	newMap := make(map[string]polymarket.Position, len(positions))
	for _, pos := range positions {
		if pos.Asset == "" {
			continue
		}
		newMap[pos.Asset] = pos
	}
	cfg.LastPollCount = len(newMap)

	if !cfg.IsInitialized {
		cfg.LastPositions = newMap
		cfg.IsInitialized = true
		cfg.LastPollNew = 0
		cfg.LastPollClosed = 0
		m.logger.Info("address-baseline-snapshot",
			zap.String("nickname", cfg.Nickname),
			zap.Int("positions", len(newMap)))
		m.emitPollDebug(cfg, newMap, nil, nil)
		return
	}

	oldMap := cfg.LastPositions
	var openedIDs, closedIDs []string
	for tid := range newMap {
		if _, ok := oldMap[tid]; !ok {
			openedIDs = append(openedIDs, tid)
		}
	}
	for tid := range oldMap {
		if _, ok := newMap[tid]; !ok {
			closedIDs = append(closedIDs, tid)
		}
	}
	sort.Strings(openedIDs)
	sort.Strings(closedIDs)

	cfg.LastPollNew = len(openedIDs)
	cfg.LastPollClosed = len(closedIDs)

	if len(openedIDs) > 0 || len(closedIDs) > 0 {
		m.logger.Info("address-positions-diff",
			zap.String("nickname", cfg.Nickname),
			zap.Int("opened", len(openedIDs)),
			zap.Int("closed", len(closedIDs)),
			zap.Int("prev", len(oldMap)),
			zap.Int("curr", len(newMap)))
	}

	// Opens before closes, deterministic order within each.
	for _, tid := range openedIDs {
		m.invokeCallback(cfg, newMap[tid], m.onOpened, "opened")
	}
	for _, tid := range closedIDs {
		m.invokeCallback(cfg, oldMap[tid], m.onClosed, "closed")
	}

	cfg.LastPositions = newMap

	opened := make([]polymarket.Position, 0, len(openedIDs))
	for _, tid := range openedIDs {
		opened = append(opened, newMap[tid])
	}
	closed := make([]polymarket.Position, 0, len(closedIDs))
	for _, tid := range closedIDs {
		closed = append(closed, oldMap[tid])
	}
	m.emitPollDebug(cfg, newMap, opened, closed)
}

// invokeCallback shields the poll loop from panicking callbacks.
func (m *AddressMonitor) invokeCallback(cfg *WatchedAddress, pos polymarket.Position, cb PositionCallback, kind string) {
	if cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("address-callback-panicked",
				zap.String("kind", kind),
				zap.String("nickname", cfg.Nickname),
				zap.Any("panic", r))
		}
	}()

	cb(cfg, pos)
}

// AddAddress adds or renames a watched address and persists the roster.
func (m *AddressMonitor) AddAddress(address, nickname string, pollInterval time.Duration) *WatchedAddress {
	key := strings.ToLower(address)
	if pollInterval <= 0 {
		pollInterval = m.defaultInterval
	}

	m.mu.Lock()
	cfg, ok := m.addresses[key]
	if ok {
		cfg.Nickname = nickname
	} else {
		cfg = &WatchedAddress{
			Address:      key,
			Nickname:     nickname,
			Enabled:      true,
			PollInterval: pollInterval,
		}
		m.addresses[key] = cfg
	}
	m.mu.Unlock()

	m.persist()
	m.emitAddressList()
	m.logger.Info("address-watching",
		zap.String("address", shortAddr(address)),
		zap.String("nickname", nickname))

	return cfg
}

// RemoveAddress removes an address from the roster. Returns whether it
// existed.
func (m *AddressMonitor) RemoveAddress(address string) bool {
	key := strings.ToLower(address)

	m.mu.Lock()
	_, existed := m.addresses[key]
	delete(m.addresses, key)
	m.mu.Unlock()

	if existed {
		m.persist()
		m.emitAddressList()
		m.logger.Info("address-removed", zap.String("address", shortAddr(address)))
	}

	return existed
}

// UpdateAddress renames or toggles an address. Returns false when unknown.
func (m *AddressMonitor) UpdateAddress(address string, nickname *string, enabled *bool) bool {
	key := strings.ToLower(address)

	m.mu.Lock()
	cfg, ok := m.addresses[key]
	if !ok {
		m.mu.Unlock()
		return false
	}
	if nickname != nil {
		cfg.Nickname = *nickname
	}
	if enabled != nil {
		cfg.Enabled = *enabled
	}
	m.mu.Unlock()

	m.persist()
	m.emitAddressList()

	return true
}

// AddressStatus is the serialized view of one watched address.
type AddressStatus struct {
	Address          string       `json:"address"`
	Nickname         string       `json:"nickname"`
	Enabled          bool         `json:"enabled"`
	Health           string       `json:"health"`
	ConsecutiveFails int          `json:"consecutive_failures"`
	IsStale          bool         `json:"is_stale"`
	IsRateLimited    bool         `json:"is_rate_limited"`
	RateLimitedUntil int64        `json:"rate_limited_until,omitempty"`
	LastPollTS       int64        `json:"last_poll_ts,omitempty"`
	LastSuccessTS    int64        `json:"last_successful_poll_ts,omitempty"`
	LastPollCount    int          `json:"last_poll_count"`
	LastPollNew      int          `json:"last_poll_new"`
	LastPollClosed   int          `json:"last_poll_closed"`
	Stats            AddressStats `json:"stats"`
	WinRate          float64      `json:"win_rate"`
}

// GetAddresses returns the status of every watched address, sorted by
// address.
func (m *AddressMonitor) GetAddresses() []AddressStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]AddressStatus, 0, len(m.addresses))
	for _, cfg := range m.addresses {
		out = append(out, m.statusLocked(cfg))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })

	return out
}

// ResetAll clears every address's baseline so the next poll re-snapshots.
func (m *AddressMonitor) ResetAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, cfg := range m.addresses {
		cfg.IsInitialized = false
		cfg.LastPositions = nil
	}
}

func (m *AddressMonitor) statusLocked(cfg *WatchedAddress) AddressStatus {
	now := time.Now()
	status := AddressStatus{
		Address:          cfg.Address,
		Nickname:         cfg.Nickname,
		Enabled:          cfg.Enabled,
		Health:           cfg.Health(now),
		ConsecutiveFails: cfg.ConsecutiveFails,
		IsStale:          cfg.IsStale(),
		IsRateLimited:    cfg.IsRateLimited(now),
		LastPollCount:    cfg.LastPollCount,
		LastPollNew:      cfg.LastPollNew,
		LastPollClosed:   cfg.LastPollClosed,
		Stats:            cfg.Stats,
		WinRate:          cfg.Stats.WinRate(),
	}
	if !cfg.RateLimitedUntil.IsZero() {
		status.RateLimitedUntil = cfg.RateLimitedUntil.Unix()
	}
	if !cfg.LastPollTS.IsZero() {
		status.LastPollTS = cfg.LastPollTS.Unix()
	}
	if !cfg.LastSuccessTS.IsZero() {
		status.LastSuccessTS = cfg.LastSuccessTS.Unix()
	}

	return status
}

// persistedAddress is the on-disk roster entry.
type persistedAddress struct {
	Address  string `json:"address"`
	Nickname string `json:"nickname"`
	Enabled  bool   `json:"enabled"`
}

func (m *AddressMonitor) persist() {
	m.mu.Lock()
	entries := make([]persistedAddress, 0, len(m.addresses))
	for _, cfg := range m.addresses {
		entries = append(entries, persistedAddress{
			Address:  cfg.Address,
			Nickname: cfg.Nickname,
			Enabled:  cfg.Enabled,
		})
	}
	m.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].Address < entries[j].Address })

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		m.logger.Error("address-roster-encode-failed", zap.Error(err))
		return
	}
	if err := os.MkdirAll(filepath.Dir(m.persistPath), 0o755); err != nil {
		m.logger.Error("address-roster-mkdir-failed", zap.Error(err))
		return
	}
	if err := os.WriteFile(m.persistPath, data, 0o644); err != nil {
		m.logger.Error("address-roster-write-failed", zap.Error(err))
	}
}

func (m *AddressMonitor) loadPersisted() {
	data, err := os.ReadFile(m.persistPath)
	if err != nil {
		if !os.IsNotExist(err) {
			m.logger.Warn("address-roster-read-failed", zap.Error(err))
		}
		return
	}

	var entries []persistedAddress
	if err := json.Unmarshal(data, &entries); err != nil {
		m.logger.Warn("address-roster-decode-failed", zap.Error(err))
		return
	}

	for _, entry := range entries {
		key := strings.ToLower(entry.Address)
		nickname := entry.Nickname
		if nickname == "" {
			nickname = shortAddr(key)
		}
		m.addresses[key] = &WatchedAddress{
			Address:      key,
			Nickname:     nickname,
			Enabled:      entry.Enabled,
			PollInterval: m.defaultInterval,
		}
	}

	m.logger.Info("address-roster-loaded", zap.Int("count", len(m.addresses)))
}

func (m *AddressMonitor) emitPollDebug(cfg *WatchedAddress, current map[string]polymarket.Position, opened, closed []polymarket.Position) {
	m.bus.Publish("mirror_poll_debug", map[string]interface{}{
		"address":       cfg.Address,
		"nickname":      cfg.Nickname,
		"initialized":   cfg.IsInitialized,
		"fetched":       len(current),
		"baseline_size": len(cfg.LastPositions),
		"new_count":     len(opened),
		"closed_count":  len(closed),
		"opened":        positionSummaries(opened),
		"closed":        positionSummaries(closed),
	})
}

func (m *AddressMonitor) emitAddressStatus(cfg *WatchedAddress) {
	m.mu.Lock()
	status := m.statusLocked(cfg)
	m.mu.Unlock()

	m.bus.Publish("mirror_address_status", status)
}

func (m *AddressMonitor) emitAddressList() {
	m.bus.Publish("mirror_addresses", map[string]interface{}{
		"addresses": m.GetAddresses(),
	})
}

func positionSummaries(positions []polymarket.Position) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(positions))
	for _, pos := range positions {
		out = append(out, map[string]interface{}{
			"title": truncate(pos.Title, 60),
			"asset": clip(pos.Asset, 20),
			"price": pos.CurPrice,
		})
	}

	return out
}

func clip(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}

	return s
}

func shortAddr(address string) string {
	return clip(address, 12)
}
