package monitor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/courtside/marginbot/internal/odds"
	"github.com/courtside/marginbot/internal/scores"
)

// fakes

type fakeOdds struct {
	*odds.Client // real SpreadFor extraction

	mu    sync.Mutex
	games []odds.Game
	err   error
	calls int
}

func newFakeOdds() *fakeOdds {
	return &fakeOdds{Client: odds.NewClient("http://unused", "key", "draftkings", time.Second)}
}

func (f *fakeOdds) FetchSpreads(ctx context.Context) ([]odds.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.games, f.err
}

func (f *fakeOdds) set(games []odds.Game, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.games, f.err = games, err
}

type fakeScores struct {
	mu         sync.Mutex
	teamID     int
	resolveErr error
	game       *scores.Game
	gameErr    error
	gameCalls  int
}

func (f *fakeScores) ResolveTeam(ctx context.Context, name string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolveErr != nil {
		return 0, f.resolveErr
	}
	return f.teamID, nil
}

func (f *fakeScores) GameOn(ctx context.Context, teamID int, date string) (*scores.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gameCalls++
	if f.gameErr != nil {
		return nil, f.gameErr
	}
	game := *f.game
	return &game, nil
}

func (f *fakeScores) set(game *scores.Game, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.game, f.gameErr = game, err
}

func (f *fakeScores) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gameCalls
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeNotifier) Notify(chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return f.err
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// helpers

// hawksOdds lists the Hawks as a +4 underdog at draftkings
func hawksOdds() []odds.Game {
	return []odds.Game{{
		HomeTeam: "Boston Celtics",
		AwayTeam: "Atlanta Hawks",
		Bookmakers: []odds.Bookmaker{{
			Key: "draftkings",
			Markets: []odds.Market{{
				Key: "spreads",
				Outcomes: []odds.Outcome{
					{Name: "Boston Celtics", Point: decimal.NewFromFloat(-4.0)},
					{Name: "Atlanta Hawks", Point: decimal.NewFromFloat(4.0)},
				},
			}},
		}},
	}}
}

func liveGame(homeScore, awayScore int, status scores.Status) *scores.Game {
	return &scores.Game{
		HomeTeam:  "Boston Celtics",
		AwayTeam:  "Atlanta Hawks",
		HomeScore: homeScore,
		AwayScore: awayScore,
		Status:    status,
	}
}

func newTestMonitor(fo *fakeOdds, fs *fakeScores, fn *fakeNotifier) *Monitor {
	m := New(fo, fs, time.Hour, time.Second)
	m.SetNotifier(fn)
	return m
}

func taskState(m *Monitor, chatID int64, team string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskKey{chatID: chatID, team: strings.ToLower(team)}]
	if !ok {
		return StateFinished
	}
	return t.state
}

// tests

func TestTrailingMargin(t *testing.T) {
	game := &scores.Game{HomeTeam: "Boston Celtics", AwayTeam: "Atlanta Hawks", HomeScore: 100, AwayScore: 80}

	home, ok := trailingMargin(game, "Boston Celtics")
	if !ok || home.String() != "-20" {
		t.Errorf("home margin = %s, want -20", home.String())
	}
	away, ok := trailingMargin(game, "atlanta hawks")
	if !ok || away.String() != "20" {
		t.Errorf("away margin = %s, want 20", away.String())
	}

	// Swapping roles negates the margin
	swapped := &scores.Game{HomeTeam: game.AwayTeam, AwayTeam: game.HomeTeam, HomeScore: game.AwayScore, AwayScore: game.HomeScore}
	swappedMargin, _ := trailingMargin(swapped, "Atlanta Hawks")
	if !swappedMargin.Equal(away.Neg()) {
		t.Errorf("swapped margin = %s, want %s", swappedMargin.String(), away.Neg().String())
	}

	if _, ok := trailingMargin(game, "Miami Heat"); ok {
		t.Error("trailingMargin() matched a team not in the game")
	}
}

func TestSpreadCaptureArmsTask(t *testing.T) {
	fo, fs, fn := newFakeOdds(), &fakeScores{teamID: 1}, &fakeNotifier{}
	m := newTestMonitor(fo, fs, fn)

	m.Track(7, "Atlanta Hawks", decimal.NewFromInt(10))
	if got := taskState(m, 7, "Atlanta Hawks"); got != StateAwaitingSpread {
		t.Fatalf("state after Track = %v, want %v", got, StateAwaitingSpread)
	}

	// No odds listed yet: stays waiting, score never polled
	fo.set(nil, errors.New("quota exceeded"))
	m.RunCycle()
	if got := taskState(m, 7, "Atlanta Hawks"); got != StateAwaitingSpread {
		t.Fatalf("state after failed odds cycle = %v, want %v", got, StateAwaitingSpread)
	}
	if fs.calls() != 0 {
		t.Error("score polled while still awaiting spread")
	}

	fo.set(hawksOdds(), nil)
	m.RunCycle()
	if got := taskState(m, 7, "Atlanta Hawks"); got != StateActive {
		t.Fatalf("state after spread capture = %v, want %v", got, StateActive)
	}

	m.mu.Lock()
	task := m.tasks[taskKey{chatID: 7, team: "atlanta hawks"}]
	threshold := task.threshold
	m.mu.Unlock()
	if threshold.String() != "14" {
		t.Errorf("threshold = %s, want 14", threshold.String())
	}
	if fn.count() != 0 {
		t.Error("alert fired while awaiting spread")
	}
}

func TestAlertFiresExactlyOnce(t *testing.T) {
	fo, fs, fn := newFakeOdds(), &fakeScores{teamID: 1}, &fakeNotifier{}
	m := newTestMonitor(fo, fs, fn)

	m.Track(7, "Atlanta Hawks", decimal.NewFromInt(10))
	fo.set(hawksOdds(), nil)
	m.RunCycle() // capture spread, threshold 14

	// Trailing by 10: under threshold
	fs.set(liveGame(90, 80, scores.StatusInProgress), nil)
	m.RunCycle()
	if fn.count() != 0 {
		t.Fatalf("alert fired at margin 10 with threshold 14")
	}

	// Trailing by 15: breach
	fs.set(liveGame(95, 80, scores.StatusInProgress), nil)
	m.RunCycle()
	if fn.count() != 1 {
		t.Fatalf("got %d alerts, want 1", fn.count())
	}
	if !strings.Contains(fn.sent[0], "14") {
		t.Errorf("alert text %q does not mention threshold 14", fn.sent[0])
	}
	if !strings.Contains(fn.sent[0], "Atlanta Hawks") {
		t.Errorf("alert text %q does not mention the team", fn.sent[0])
	}

	// Trailing by 25: no second alert
	fs.set(liveGame(105, 80, scores.StatusInProgress), nil)
	m.RunCycle()
	if fn.count() != 1 {
		t.Errorf("got %d alerts after repeat breach, want 1", fn.count())
	}
}

func TestScenarioUnderdogBlowout(t *testing.T) {
	// End-to-end walk-through: Hawks quoted +4, margin 10, down 80-100 on the
	// road. Threshold 14, trailing 20, exactly one alert.
	fo, fs, fn := newFakeOdds(), &fakeScores{teamID: 1}, &fakeNotifier{}
	m := newTestMonitor(fo, fs, fn)

	m.Track(7, "Atlanta Hawks", decimal.NewFromInt(10))
	fo.set(hawksOdds(), nil)
	m.RunCycle()

	fs.set(liveGame(100, 80, scores.StatusInProgress), nil)
	m.RunCycle()

	if fn.count() != 1 {
		t.Fatalf("got %d alerts, want 1", fn.count())
	}
	if !strings.Contains(fn.sent[0], "14") {
		t.Errorf("alert text %q does not carry threshold 14", fn.sent[0])
	}
}

func TestFinishOnFinal(t *testing.T) {
	fo, fs, fn := newFakeOdds(), &fakeScores{teamID: 1}, &fakeNotifier{}
	m := newTestMonitor(fo, fs, fn)

	m.Track(7, "Atlanta Hawks", decimal.NewFromInt(10))
	fo.set(hawksOdds(), nil)
	m.RunCycle()

	fs.set(liveGame(110, 102, scores.StatusFinal), nil)
	m.RunCycle()

	if got := taskState(m, 7, "Atlanta Hawks"); got != StateFinished {
		t.Fatalf("state after final = %v, want %v", got, StateFinished)
	}
	if m.TaskCount() != 0 {
		t.Errorf("TaskCount() = %d, want 0", m.TaskCount())
	}

	// No further polling for the finished pair
	before := fs.calls()
	m.RunCycle()
	if fs.calls() != before {
		t.Error("finished task still polled")
	}
}

func TestNoGameTodayKeepsState(t *testing.T) {
	fo, fs, fn := newFakeOdds(), &fakeScores{teamID: 1}, &fakeNotifier{}
	m := newTestMonitor(fo, fs, fn)

	m.Track(7, "Atlanta Hawks", decimal.NewFromInt(10))
	fo.set(hawksOdds(), nil)
	m.RunCycle()

	fs.set(nil, scores.ErrNoGameToday)
	for i := 0; i < 3; i++ {
		m.RunCycle()
	}
	if got := taskState(m, 7, "Atlanta Hawks"); got != StateActive {
		t.Fatalf("state across no-game cycles = %v, want %v", got, StateActive)
	}
	if fn.count() != 0 {
		t.Error("alert fired during no-game cycles")
	}

	// Game shows up again: monitoring resumes where it was
	fs.set(liveGame(100, 80, scores.StatusInProgress), nil)
	m.RunCycle()
	if fn.count() != 1 {
		t.Errorf("got %d alerts after game resumed, want 1", fn.count())
	}
}

func TestProviderErrorSkipsCycle(t *testing.T) {
	fo, fs, fn := newFakeOdds(), &fakeScores{teamID: 1}, &fakeNotifier{}
	m := newTestMonitor(fo, fs, fn)

	m.Track(7, "Atlanta Hawks", decimal.NewFromInt(10))
	fo.set(hawksOdds(), nil)
	m.RunCycle()

	fs.set(nil, errors.New("connection reset"))
	m.RunCycle()
	if got := taskState(m, 7, "Atlanta Hawks"); got != StateActive {
		t.Fatalf("state after provider error = %v, want %v", got, StateActive)
	}
	if fn.count() != 0 {
		t.Error("alert fired on a failed cycle")
	}
}

func TestUnresolvedTeamSkipsCycle(t *testing.T) {
	fo, fs, fn := newFakeOdds(), &fakeScores{resolveErr: scores.ErrTeamNotFound}, &fakeNotifier{}
	m := newTestMonitor(fo, fs, fn)

	m.Track(7, "Atlanta Hawks", decimal.NewFromInt(10))
	fo.set(hawksOdds(), nil)
	m.RunCycle()
	m.RunCycle()

	if got := taskState(m, 7, "Atlanta Hawks"); got != StateActive {
		t.Fatalf("state with unresolved team = %v, want %v", got, StateActive)
	}
	if fs.calls() != 0 {
		t.Error("score fetched without a resolved team id")
	}
}

func TestTrackIsIdempotentPerPair(t *testing.T) {
	fo, fs, fn := newFakeOdds(), &fakeScores{teamID: 1}, &fakeNotifier{}
	m := newTestMonitor(fo, fs, fn)

	if !m.Track(7, "Atlanta Hawks", decimal.NewFromInt(10)) {
		t.Error("first Track() should return true")
	}
	if m.Track(7, "atlanta hawks", decimal.NewFromInt(10)) {
		t.Error("second Track() for the same pair should return false")
	}
	if m.TaskCount() != 1 {
		t.Errorf("TaskCount() = %d, want 1", m.TaskCount())
	}

	// Same team for another chat is a separate task
	if !m.Track(8, "Atlanta Hawks", decimal.NewFromInt(10)) {
		t.Error("Track() for a different chat should return true")
	}
}

func TestUntrackSuppressesInflightAlert(t *testing.T) {
	fo, fs, fn := newFakeOdds(), &fakeScores{teamID: 1}, &fakeNotifier{}
	m := newTestMonitor(fo, fs, fn)

	m.Track(7, "Atlanta Hawks", decimal.NewFromInt(10))
	fo.set(hawksOdds(), nil)
	m.RunCycle()

	// Grab the snapshot a cycle would have taken, then unsubscribe
	// before its alert lands.
	m.mu.Lock()
	snapshot := *m.tasks[taskKey{chatID: 7, team: "atlanta hawks"}]
	m.mu.Unlock()

	m.UntrackAll(7)
	m.sendAlert(snapshot, decimal.NewFromInt(20))

	if fn.count() != 0 {
		t.Errorf("got %d alerts for an untracked task, want 0", fn.count())
	}
}

func TestNotifyFailureIsNotRetried(t *testing.T) {
	fo, fs := newFakeOdds(), &fakeScores{teamID: 1}
	fn := &fakeNotifier{err: errors.New("chat unreachable")}
	m := newTestMonitor(fo, fs, fn)

	m.Track(7, "Atlanta Hawks", decimal.NewFromInt(10))
	fo.set(hawksOdds(), nil)
	m.RunCycle()

	fs.set(liveGame(100, 80, scores.StatusInProgress), nil)
	m.RunCycle()
	m.RunCycle()

	if fn.count() != 1 {
		t.Errorf("got %d delivery attempts, want 1", fn.count())
	}
}

func TestOddsFetchedOncePerCycle(t *testing.T) {
	fo, fs, fn := newFakeOdds(), &fakeScores{teamID: 1}, &fakeNotifier{}
	m := newTestMonitor(fo, fs, fn)

	m.Track(7, "Atlanta Hawks", decimal.NewFromInt(10))
	m.Track(7, "Boston Celtics", decimal.NewFromInt(10))
	m.Track(8, "Atlanta Hawks", decimal.NewFromInt(10))

	fo.set(hawksOdds(), nil)
	m.RunCycle()

	fo.mu.Lock()
	calls := fo.calls
	fo.mu.Unlock()
	if calls != 1 {
		t.Errorf("odds fetched %d times in one cycle, want 1", calls)
	}

	// All active now: no odds fetch needed next cycle
	fs.set(liveGame(90, 88, scores.StatusInProgress), nil)
	m.RunCycle()
	fo.mu.Lock()
	calls = fo.calls
	fo.mu.Unlock()
	if calls != 1 {
		t.Errorf("odds fetched %d times with no waiting tasks, want 1", calls)
	}
}
