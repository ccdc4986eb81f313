package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/lox/nothanks/protocol"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().Padding(0, 1)

	leaderStyle = cellStyle.
			Foreground(lipgloss.Color("10"))

	borderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))
)

// LeaderboardCmd prints the bot ratings of a running server.
type LeaderboardCmd struct {
	Server  string        `default:"http://localhost:3000" env:"NOTHANKS_SERVER" help:"Server base URL"`
	Timeout time.Duration `default:"5s" help:"Request timeout"`
	JSON    bool          `help:"Print raw JSON instead of a table"`
}

func (c *LeaderboardCmd) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()

	entries, err := fetchLeaderboard(ctx, http.DefaultClient, c.Server)
	if err != nil {
		return err
	}
	if c.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	fmt.Fprintln(os.Stdout, renderLeaderboard(entries))
	return nil
}

func fetchLeaderboard(ctx context.Context, client *http.Client, base string) ([]protocol.LeaderboardEntry, error) {
	url := strings.TrimRight(base, "/") + "/api/bots/ratings"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching leaderboard: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching leaderboard: %s", resp.Status)
	}
	var entries []protocol.LeaderboardEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decoding leaderboard: %w", err)
	}
	return entries, nil
}

func renderLeaderboard(entries []protocol.LeaderboardEntry) string {
	if len(entries) == 0 {
		return "No bots have registered yet."
	}

	rows := make([][]string, len(entries))
	for i, e := range entries {
		rows[i] = []string{
			strconv.Itoa(i + 1),
			e.Name,
			strconv.Itoa(e.Rating),
			strconv.Itoa(e.Games),
			fmt.Sprintf("%d/%d/%d", e.Wins, e.Draws, e.Losses),
			fmt.Sprintf("%.1f%%", e.WinRate*100),
		}
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers("#", "Bot", "Rating", "Games", "W/D/L", "Win rate").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row == 0:
				return leaderStyle
			}
			return cellStyle
		})
	return t.String()
}
