// Package monitor drives the per-team margin watch loop.
//
// Each tracked (chat, team) pair is a task that walks
// awaiting spread -> active -> finished. The scheduler re-evaluates every
// live task on a fixed interval, fanning tasks out as goroutines and
// joining them before the next cycle. A task that is behind by more than
// its pre-game spread plus the alert margin notifies its chat exactly once.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/courtside/marginbot/internal/odds"
	"github.com/courtside/marginbot/internal/scores"
)

// OddsSource supplies pre-game spreads
type OddsSource interface {
	FetchSpreads(ctx context.Context) ([]odds.Game, error)
	SpreadFor(games []odds.Game, team string) (decimal.Decimal, bool)
}

// ScoreSource supplies team ids and live scores
type ScoreSource interface {
	ResolveTeam(ctx context.Context, name string) (int, error)
	GameOn(ctx context.Context, teamID int, date string) (*scores.Game, error)
}

// Notifier delivers alert text to a chat
type Notifier interface {
	Notify(chatID int64, text string) error
}

// AlertStore records sent alerts. Write-only from the monitor's side.
type AlertStore interface {
	RecordAlert(chatID int64, team string, threshold, margin decimal.Decimal) error
}

// State is a task's position in its lifecycle
type State int

const (
	StateAwaitingSpread State = iota
	StateActive
	StateFinished
)

type taskKey struct {
	chatID int64
	team   string // lowercased
}

type task struct {
	chatID int64
	team   string // canonical name as tracked
	margin decimal.Decimal

	state     State
	teamID    int // scores provider id, 0 until resolved
	spread    decimal.Decimal
	threshold decimal.Decimal
	alertSent bool
}

// Monitor owns the task table and the polling scheduler
type Monitor struct {
	odds     OddsSource
	scores   ScoreSource
	notifier Notifier
	store    AlertStore

	interval    time.Duration
	callTimeout time.Duration
	now         func() time.Time

	mu      sync.Mutex
	tasks   map[taskKey]*task
	running bool
	stopCh  chan struct{}
}

// New creates a monitor. interval is the polling cadence, callTimeout
// bounds every outbound provider call.
func New(oddsSrc OddsSource, scoreSrc ScoreSource, interval, callTimeout time.Duration) *Monitor {
	return &Monitor{
		odds:        oddsSrc,
		scores:      scoreSrc,
		interval:    interval,
		callTimeout: callTimeout,
		now:         time.Now,
		tasks:       make(map[taskKey]*task),
		stopCh:      make(chan struct{}),
	}
}

// SetNotifier sets the alert delivery channel. The notifier and the
// monitor reference each other, so it is wired after construction.
func (m *Monitor) SetNotifier(notifier Notifier) {
	m.notifier = notifier
}

// SetAlertStore sets the optional sink for sent-alert records
func (m *Monitor) SetAlertStore(store AlertStore) {
	m.store = store
}

// Track starts monitoring a team for a chat. margin is how many points
// past the pre-game spread the team must trail before the alert fires;
// the threshold is fixed once the spread is captured. Returns false if
// the pair is already tracked.
func (m *Monitor) Track(chatID int64, team string, margin decimal.Decimal) bool {
	key := taskKey{chatID: chatID, team: strings.ToLower(team)}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tasks[key]; exists {
		return false
	}
	m.tasks[key] = &task{
		chatID: chatID,
		team:   team,
		margin: margin,
		state:  StateAwaitingSpread,
	}

	log.Info().Int64("chat_id", chatID).Str("team", team).Str("margin", margin.String()).Msg("👀 Tracking team")
	return true
}

// Untrack stops monitoring one team for a chat
func (m *Monitor) Untrack(chatID int64, team string) {
	key := taskKey{chatID: chatID, team: strings.ToLower(team)}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, key)
}

// UntrackAll stops monitoring every team for a chat
func (m *Monitor) UntrackAll(chatID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key := range m.tasks {
		if key.chatID == chatID {
			delete(m.tasks, key)
		}
	}
}

// TaskCount returns the number of live tasks
func (m *Monitor) TaskCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// Start begins the polling loop
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	go m.loop()
	log.Info().Str("interval", m.interval.String()).Msg("⏱️ Margin monitor started")
}

// Stop stops the polling loop
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	m.running = false
	close(m.stopCh)
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.RunCycle()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.RunCycle()
		}
	}
}

// RunCycle evaluates every live task once. The task set is snapshotted
// up front so concurrent Track/Untrack calls land on the next cycle, and
// the lock is never held across a provider call.
func (m *Monitor) RunCycle() {
	m.mu.Lock()
	snapshot := make([]task, 0, len(m.tasks))
	needOdds := false
	for _, t := range m.tasks {
		snapshot = append(snapshot, *t)
		if t.state == StateAwaitingSpread {
			needOdds = true
		}
	}
	m.mu.Unlock()

	if len(snapshot) == 0 {
		return
	}

	// One odds fetch covers every task still waiting on a spread
	var games []odds.Game
	if needOdds {
		ctx, cancel := context.WithTimeout(context.Background(), m.callTimeout)
		fetched, err := m.odds.FetchSpreads(ctx)
		cancel()
		if err != nil {
			log.Warn().Err(err).Msg("Odds fetch failed, spreads retry next cycle")
		} else {
			games = fetched
		}
	}

	var wg sync.WaitGroup
	for _, t := range snapshot {
		wg.Add(1)
		go func(t task) {
			defer wg.Done()
			m.evalTask(t, games)
		}(t)
	}
	wg.Wait()
}

func (m *Monitor) evalTask(t task, games []odds.Game) {
	switch t.state {
	case StateAwaitingSpread:
		m.captureSpread(t, games)
	case StateActive:
		m.checkScore(t)
	}
}

// captureSpread arms a waiting task once its game shows up in the odds
// feed. No match this cycle just means the game isn't listed yet.
func (m *Monitor) captureSpread(t task, games []odds.Game) {
	if games == nil {
		return
	}

	point, ok := m.odds.SpreadFor(games, t.team)
	if !ok {
		log.Debug().Str("team", t.team).Msg("No spread listed yet")
		return
	}

	threshold := point.Add(t.margin)

	key := taskKey{chatID: t.chatID, team: strings.ToLower(t.team)}
	m.mu.Lock()
	live, exists := m.tasks[key]
	if exists && live.state == StateAwaitingSpread {
		live.spread = point
		live.threshold = threshold
		live.state = StateActive
	}
	m.mu.Unlock()

	if exists {
		log.Info().
			Int64("chat_id", t.chatID).
			Str("team", t.team).
			Str("spread", point.String()).
			Str("threshold", threshold.String()).
			Msg("📋 Spread captured, monitoring live score")
	}
}

// checkScore polls the live score for an armed task, alerting on the
// first threshold breach and finishing when the game goes final.
func (m *Monitor) checkScore(t task) {
	ctx, cancel := context.WithTimeout(context.Background(), m.callTimeout)
	defer cancel()

	teamID := t.teamID
	if teamID == 0 {
		id, err := m.scores.ResolveTeam(ctx, t.team)
		if err != nil {
			if errors.Is(err, scores.ErrTeamNotFound) {
				log.Debug().Str("team", t.team).Msg("Team name did not resolve, skipping cycle")
			} else {
				log.Warn().Err(err).Str("team", t.team).Msg("Team lookup failed, skipping cycle")
			}
			return
		}
		teamID = id

		key := taskKey{chatID: t.chatID, team: strings.ToLower(t.team)}
		m.mu.Lock()
		if live, exists := m.tasks[key]; exists {
			live.teamID = id
		}
		m.mu.Unlock()
	}

	date := m.now().Format("2006-01-02")
	game, err := m.scores.GameOn(ctx, teamID, date)
	if err != nil {
		if errors.Is(err, scores.ErrNoGameToday) {
			log.Debug().Str("team", t.team).Msg("No game today")
		} else {
			log.Warn().Err(err).Str("team", t.team).Msg("Score fetch failed, skipping cycle")
		}
		return
	}

	trailing, ok := trailingMargin(game, t.team)
	if !ok {
		log.Debug().Str("team", t.team).Msg("Team not in fetched game, skipping cycle")
		return
	}

	if trailing.GreaterThan(t.threshold) && !t.alertSent {
		m.sendAlert(t, trailing)
	}

	if game.Status == scores.StatusFinal {
		m.finish(t)
	}
}

// trailingMargin is how many points behind the monitored team currently
// is, negative when ahead. ok is false when the team is in neither slot.
func trailingMargin(game *scores.Game, team string) (margin decimal.Decimal, ok bool) {
	switch {
	case strings.EqualFold(game.HomeTeam, team):
		return decimal.NewFromInt(int64(game.AwayScore - game.HomeScore)), true
	case strings.EqualFold(game.AwayTeam, team):
		return decimal.NewFromInt(int64(game.HomeScore - game.AwayScore)), true
	}
	return decimal.Decimal{}, false
}

// sendAlert fires the task's one alert. alertSent is flipped under the
// lock before delivery, and only if the task is still tracked, so an
// unsubscribe with this cycle's call in flight stays silent. A failed
// delivery is logged but not retried.
func (m *Monitor) sendAlert(t task, trailing decimal.Decimal) {
	key := taskKey{chatID: t.chatID, team: strings.ToLower(t.team)}

	m.mu.Lock()
	live, exists := m.tasks[key]
	if !exists || live.alertSent || live.state != StateActive {
		m.mu.Unlock()
		return
	}
	live.alertSent = true
	threshold := live.threshold
	spread := live.spread
	m.mu.Unlock()

	text := fmt.Sprintf(`🚨 *Margin Alert*

*%s* is trailing by %s points, past your alert threshold of %s.

_Pre-game spread: %s, alert margin: %s_`,
		t.team,
		trailing.String(),
		threshold.String(),
		spread.String(),
		t.margin.String(),
	)

	if m.notifier == nil {
		log.Warn().Str("team", t.team).Msg("No notifier wired, dropping alert")
		return
	}

	if err := m.notifier.Notify(t.chatID, text); err != nil {
		log.Error().Err(err).Int64("chat_id", t.chatID).Str("team", t.team).Msg("Alert delivery failed")
	} else {
		log.Info().
			Int64("chat_id", t.chatID).
			Str("team", t.team).
			Str("trailing", trailing.String()).
			Str("threshold", threshold.String()).
			Msg("🚨 Alert sent")
	}

	if m.store != nil {
		if err := m.store.RecordAlert(t.chatID, t.team, threshold, trailing); err != nil {
			log.Warn().Err(err).Msg("Failed to record alert")
		}
	}
}

// finish removes a task whose game went final
func (m *Monitor) finish(t task) {
	key := taskKey{chatID: t.chatID, team: strings.ToLower(t.team)}

	m.mu.Lock()
	delete(m.tasks, key)
	m.mu.Unlock()

	log.Info().Int64("chat_id", t.chatID).Str("team", t.team).Msg("🏁 Game final, task finished")
}
