// Package scores fetches NBA team ids and live game scores from balldontlie.
package scores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

var (
	// ErrTeamNotFound means the team name does not match any provider team
	ErrTeamNotFound = errors.New("team not found")
	// ErrNoGameToday means the team has no game on the requested date
	ErrNoGameToday = errors.New("no game today")
)

// Status is the lifecycle of a game
type Status int

const (
	StatusScheduled Status = iota
	StatusInProgress
	StatusFinal
)

func (s Status) String() string {
	switch s {
	case StatusInProgress:
		return "in_progress"
	case StatusFinal:
		return "final"
	default:
		return "scheduled"
	}
}

// Team is a provider-side NBA franchise
type Team struct {
	ID       int    `json:"id"`
	FullName string `json:"full_name"`
}

// Game is a live score snapshot for one game
type Game struct {
	HomeTeam  string
	AwayTeam  string
	HomeScore int
	AwayScore int
	Status    Status
}

// raw provider payloads

type teamsResponse struct {
	Data []Team `json:"data"`
}

type gamesResponse struct {
	Data []struct {
		HomeTeam struct {
			FullName string `json:"full_name"`
		} `json:"home_team"`
		VisitorTeam struct {
			FullName string `json:"full_name"`
		} `json:"visitor_team"`
		HomeTeamScore    int    `json:"home_team_score"`
		VisitorTeamScore int    `json:"visitor_team_score"`
		Status           string `json:"status"`
		Period           int    `json:"period"`
	} `json:"data"`
}

// Client fetches live NBA scores from balldontlie
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	mu    sync.RWMutex
	teams map[string]int // lowercased full name -> provider id
}

// NewClient creates a scores client
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ResolveTeam maps a full franchise name to the provider's team id.
// Matching is a case-insensitive exact match on the full name. The team
// list is fetched once and cached; franchises don't change mid-season.
func (c *Client) ResolveTeam(ctx context.Context, name string) (int, error) {
	c.mu.RLock()
	cached := c.teams
	c.mu.RUnlock()

	if cached == nil {
		var resp teamsResponse
		if err := c.getJSON(ctx, c.baseURL+"/teams", &resp); err != nil {
			return 0, fmt.Errorf("fetch teams: %w", err)
		}

		teams := make(map[string]int, len(resp.Data))
		for _, t := range resp.Data {
			teams[strings.ToLower(t.FullName)] = t.ID
		}

		c.mu.Lock()
		c.teams = teams
		c.mu.Unlock()
		cached = teams

		log.Debug().Int("teams", len(teams)).Msg("Cached NBA team ids")
	}

	id, ok := cached[strings.ToLower(name)]
	if !ok {
		return 0, ErrTeamNotFound
	}
	return id, nil
}

// GameOn returns the team's game on the given date (YYYY-MM-DD), or
// ErrNoGameToday when none is scheduled.
func (c *Client) GameOn(ctx context.Context, teamID int, date string) (*Game, error) {
	url := fmt.Sprintf("%s/games?start_date=%s&end_date=%s&team_ids[]=%d&postseason=false", c.baseURL, date, date, teamID)

	var resp gamesResponse
	if err := c.getJSON(ctx, url, &resp); err != nil {
		return nil, fmt.Errorf("fetch games: %w", err)
	}

	if len(resp.Data) == 0 {
		return nil, ErrNoGameToday
	}

	g := resp.Data[0]
	return &Game{
		HomeTeam:  g.HomeTeam.FullName,
		AwayTeam:  g.VisitorTeam.FullName,
		HomeScore: g.HomeTeamScore,
		AwayScore: g.VisitorTeamScore,
		Status:    parseStatus(g.Status, g.Period),
	}, nil
}

// parseStatus maps the provider's status string to the game lifecycle.
// The provider reports "Final" when done, quarter labels while live, and
// a tip-off timestamp before the game starts (period 0).
func parseStatus(status string, period int) Status {
	if strings.EqualFold(status, "Final") {
		return StatusFinal
	}
	if period > 0 {
		return StatusInProgress
	}
	return StatusScheduled
}

func (c *Client) getJSON(ctx context.Context, url string, v interface{}) error {
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("scores provider returned status %d", resp.StatusCode)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return backoff.Permanent(err)
			}
			return err
		}

		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			return backoff.Permanent(fmt.Errorf("decode scores response: %w", err))
		}
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	return backoff.Retry(op, b)
}
