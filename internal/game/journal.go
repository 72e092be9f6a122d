package game

import (
	"time"

	"github.com/kiliankoe/promptcraft/internal/store"
)

// Journal receives best-effort records of a game's progress. Calls are made
// while the session lock is held and must return immediately.
type Journal interface {
	GameStarted(g store.Game)
	GameEnded(gameID string, rounds int, at time.Time)
	RoundStarted(r store.Round)
	RoundEnded(roundID string, at time.Time)
	PlayerRecorded(p store.Player)
	PromptRecorded(p store.Prompt)
	ImageProduced(img store.Image, onStored func(url string))
	SelectionRecorded(s store.Selection)
	VoteRecorded(v store.Vote)
}

var _ Journal = (*store.Async)(nil)

type nopJournal struct{}

func (nopJournal) GameStarted(store.Game)                  {}
func (nopJournal) GameEnded(string, int, time.Time)        {}
func (nopJournal) RoundStarted(store.Round)                {}
func (nopJournal) RoundEnded(string, time.Time)            {}
func (nopJournal) PlayerRecorded(store.Player)             {}
func (nopJournal) PromptRecorded(store.Prompt)             {}
func (nopJournal) ImageProduced(store.Image, func(string)) {}
func (nopJournal) SelectionRecorded(store.Selection)       {}
func (nopJournal) VoteRecorded(store.Vote)                 {}

func playerRecord(gameID string, p *Player) store.Player {
	return store.Player{
		ID:        p.Identity,
		GameID:    gameID,
		Name:      p.DisplayName,
		Team:      string(p.Team),
		Character: string(p.Character),
	}
}
