package game

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// RoundReport is a snapshot of one finished round for the text export.
type RoundReport struct {
	GameID    string
	Round     int
	Target    *Target
	Players   []ReportPlayer
	FinalGame bool
	At        time.Time
}

type ReportPlayer struct {
	Name       string
	Team       Team
	Prompts    int
	Selected   string
	Votes      int
	VotedFor   string
	RoundScore int
	TotalScore int
}

// Exporter writes finished rounds somewhere a human can read them.
type Exporter interface {
	ExportRound(r RoundReport) error
}

// FileExporter appends round reports to a text file.
type FileExporter struct {
	Path string
	mu   sync.Mutex
}

func (e *FileExporter) ExportRound(r RoundReport) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	dir := filepath.Dir(e.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	fileExists := false
	if _, err := os.Stat(e.Path); err == nil {
		fileExists = true
	}

	file, err := os.OpenFile(e.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteString(formatReport(r, fileExists)); err != nil {
		return fmt.Errorf("failed to write to file: %w", err)
	}
	return nil
}

func formatReport(r RoundReport, appending bool) string {
	var sb strings.Builder

	// header once per game
	if r.Round == 1 {
		if appending {
			sb.WriteString("\n\n")
		}
		sb.WriteString(fmt.Sprintf("Promptcraft Game Results - Game %s\n", r.GameID))
		sb.WriteString(fmt.Sprintf("Started: %s\n", r.At.Format("2006-01-02 15:04:05")))
		sb.WriteString(strings.Repeat("=", 50) + "\n\n")

		sb.WriteString("Players:\n")
		for _, p := range r.Players {
			team := string(p.Team)
			if team == "" {
				team = "-"
			}
			sb.WriteString(fmt.Sprintf("- %s (team %s)\n", p.Name, team))
		}
		sb.WriteString("\n")
	}

	target := ""
	if r.Target != nil {
		target = r.Target.URL
	}
	sb.WriteString(fmt.Sprintf("Round %d: target %s\n", r.Round, target))
	sb.WriteString(strings.Repeat("-", 40) + "\n")

	for _, p := range r.Players {
		sel := p.Selected
		if sel == "" {
			sel = "(no image)"
		}
		sb.WriteString(fmt.Sprintf("- %s: %d prompt(s), submitted \"%s\"\n", p.Name, p.Prompts, sel))
	}

	sb.WriteString("\nVotes:\n")
	for _, p := range r.Players {
		if p.VotedFor != "" {
			sb.WriteString(fmt.Sprintf("- %s voted for %s\n", p.Name, p.VotedFor))
		}
	}

	ranked := append([]ReportPlayer(nil), r.Players...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].TotalScore > ranked[j].TotalScore })
	sb.WriteString("\nScores after this round:\n")
	for _, p := range ranked {
		sb.WriteString(fmt.Sprintf("- %s: +%d, %d points\n", p.Name, p.RoundScore, p.TotalScore))
	}
	sb.WriteString("\n")

	if r.FinalGame {
		sb.WriteString(fmt.Sprintf("Game ended at %s\n", r.At.Format("2006-01-02 15:04:05")))
		sb.WriteString(strings.Repeat("=", 50) + "\n")
	}
	return sb.String()
}
