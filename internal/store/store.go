// Package store holds the best-effort persistence boundary. Nothing in the game
// reads back from it; every record carries a caller-supplied id so writes can be
// issued without waiting for the database.
package store

import (
	"context"
	"time"
)

type Game struct {
	ID           string
	StartedAt    time.Time
	TotalPlayers int
}

type Round struct {
	ID          string
	GameID      string
	RoundNumber int
	StartedAt   time.Time
}

type Player struct {
	ID        string
	GameID    string
	Name      string
	Team      string
	Character string
}

type SafetyRating struct {
	Category    string `json:"category"`
	Probability string `json:"probability"`
}

type Prompt struct {
	ID            string
	GameID        string
	RoundID       string
	PlayerID      string
	PromptIndex   int
	Text          string
	AIResponse    string
	SubmittedAt   time.Time
	ErrorType     string
	ErrorMessage  string
	FinishReason  string
	FileSizeKB    *float64
	SafetyRatings []SafetyRating
}

type Selection struct {
	GameID   string
	RoundID  string
	PlayerID string
	PromptID string
}

type Vote struct {
	GameID           string
	RoundID          string
	VoterID          string
	VotedForPlayerID string
	VotedForPromptID string
}

// Image describes where an attempt's bytes should be uploaded.
type Image struct {
	Data        []byte
	GameID      string
	PlayerID    string
	PlayerName  string
	RoundNumber int
	PromptID    string
	PromptIndex int
}

// Recorder writes analytics records. Implementations should treat repeated
// calls with the same id as updates.
type Recorder interface {
	CreateGame(ctx context.Context, g Game) error
	EndGame(ctx context.Context, gameID string, roundsCompleted int, at time.Time) error
	CreateRound(ctx context.Context, r Round) error
	EndRound(ctx context.Context, roundID string, at time.Time) error
	UpsertPlayer(ctx context.Context, p Player) error
	SavePrompt(ctx context.Context, p Prompt) error
	SetPromptImageURL(ctx context.Context, promptID, url string) error
	SaveSelection(ctx context.Context, s Selection) error
	SaveVote(ctx context.Context, v Vote) error
}

// MediaStore persists image bytes under path and returns a public URL.
type MediaStore interface {
	Put(ctx context.Context, path string, data []byte) (string, error)
}

type Noop struct{}

func (Noop) CreateGame(context.Context, Game) error                  { return nil }
func (Noop) EndGame(context.Context, string, int, time.Time) error   { return nil }
func (Noop) CreateRound(context.Context, Round) error                { return nil }
func (Noop) EndRound(context.Context, string, time.Time) error       { return nil }
func (Noop) UpsertPlayer(context.Context, Player) error              { return nil }
func (Noop) SavePrompt(context.Context, Prompt) error                { return nil }
func (Noop) SetPromptImageURL(context.Context, string, string) error { return nil }
func (Noop) SaveSelection(context.Context, Selection) error          { return nil }
func (Noop) SaveVote(context.Context, Vote) error                    { return nil }
func (Noop) Put(context.Context, string, []byte) (string, error)     { return "", nil }
