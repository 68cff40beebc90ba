// Package odds fetches pre-game NBA point spreads from the-odds-api.
package odds

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Outcome is one side of a market
type Outcome struct {
	Name  string          `json:"name"`
	Point decimal.Decimal `json:"point"`
}

// Market groups outcomes under a market key ("spreads", "h2h", ...)
type Market struct {
	Key      string    `json:"key"`
	Outcomes []Outcome `json:"outcomes"`
}

// Bookmaker is one book's markets for a game
type Bookmaker struct {
	Key     string   `json:"key"`
	Title   string   `json:"title"`
	Markets []Market `json:"markets"`
}

// Game is one NBA game with its quoted spreads
type Game struct {
	ID         string      `json:"id"`
	HomeTeam   string      `json:"home_team"`
	AwayTeam   string      `json:"away_team"`
	Bookmakers []Bookmaker `json:"bookmakers"`
}

// Client fetches NBA spreads from the-odds-api
type Client struct {
	baseURL    string
	apiKey     string
	bookmaker  string
	httpClient *http.Client
}

// NewClient creates an odds client. bookmaker is the preferred book key
// for spread extraction; the first listed book is used when it is absent.
func NewClient(baseURL, apiKey, bookmaker string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		bookmaker:  bookmaker,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// FetchSpreads returns current spread quotes for all NBA games
func (c *Client) FetchSpreads(ctx context.Context) ([]Game, error) {
	url := fmt.Sprintf("%s/sports/basketball_nba/odds?apiKey=%s&regions=us&markets=spreads", c.baseURL, c.apiKey)

	var games []Game
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("odds provider returned status %d", resp.StatusCode)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				// Bad key or quota exhausted, retrying won't help
				return backoff.Permanent(err)
			}
			return err
		}

		games = games[:0]
		if err := json.NewDecoder(resp.Body).Decode(&games); err != nil {
			return backoff.Permanent(fmt.Errorf("decode odds response: %w", err))
		}
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return nil, fmt.Errorf("fetch spreads: %w", err)
	}

	log.Debug().Int("games", len(games)).Msg("Fetched NBA spreads")
	return games, nil
}

// SpreadFor extracts team's pre-game spread from the fetched games.
// The preferred bookmaker wins when present, otherwise the first one
// listed, so the quote stays stable if the provider reorders books.
func (c *Client) SpreadFor(games []Game, team string) (decimal.Decimal, bool) {
	for _, game := range games {
		if !strings.EqualFold(game.HomeTeam, team) && !strings.EqualFold(game.AwayTeam, team) {
			continue
		}
		if len(game.Bookmakers) == 0 {
			continue
		}

		book := game.Bookmakers[0]
		for _, bm := range game.Bookmakers {
			if strings.EqualFold(bm.Key, c.bookmaker) {
				book = bm
				break
			}
		}

		for _, market := range book.Markets {
			if market.Key != "spreads" {
				continue
			}
			for _, outcome := range market.Outcomes {
				if strings.EqualFold(outcome.Name, team) {
					return outcome.Point, true
				}
			}
		}
	}
	return decimal.Zero, false
}
