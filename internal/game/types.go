package game

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/kiliankoe/promptcraft/internal/ai"
)

// Rounds is the fixed number of rounds in a game, one per target image.
const Rounds = 3

type Phase string

const (
	PhaseLobby         Phase = "lobby"
	PhasePlaying       Phase = "playing"
	PhaseTransitioning Phase = "transitioning"
	// PhaseSelecting is the own-image selection window. Clients know it as "voting".
	PhaseSelecting    Phase = "voting"
	PhaseVotingImages Phase = "voting_images"
	PhaseRoundResults Phase = "round_results"
	PhaseGameOver     Phase = "game_over"
)

var phaseEdges = map[Phase][]Phase{
	PhaseLobby:         {PhasePlaying},
	PhasePlaying:       {PhaseTransitioning},
	PhaseTransitioning: {PhaseSelecting},
	PhaseSelecting:     {PhaseVotingImages},
	PhaseVotingImages:  {PhaseRoundResults},
	PhaseRoundResults:  {PhasePlaying, PhaseGameOver},
	PhaseGameOver:      {PhaseLobby},
}

// CanTransitionTo reports whether next is a legal successor of p. Restart is
// a reset, not a transition, and bypasses this table.
func (p Phase) CanTransitionTo(next Phase) bool {
	for _, e := range phaseEdges[p] {
		if e == next {
			return true
		}
	}
	return false
}

type Team string

const (
	TeamNone Team = ""
	TeamA    Team = "A"
	TeamB    Team = "B"
)

func (t Team) MarshalJSON() ([]byte, error) {
	if t == TeamNone {
		return []byte("null"), nil
	}
	return json.Marshal(string(t))
}

type Character string

const (
	CharacterNone Character = ""
	CharacterBud  Character = "Bud"
	CharacterSpud Character = "Spud"
)

func (c Character) MarshalJSON() ([]byte, error) {
	if c == CharacterNone {
		return []byte("null"), nil
	}
	return json.Marshal(string(c))
}

func CharacterForTeam(t Team) Character {
	switch t {
	case TeamA:
		return CharacterBud
	case TeamB:
		return CharacterSpud
	}
	return CharacterNone
}

type Target struct {
	ID  int    `json:"id"`
	URL string `json:"url"`
}

type Settings struct {
	AdminCode         string
	RoundDuration     time.Duration
	PromptGrace       time.Duration
	TransitionMin     time.Duration
	TransitionMax     time.Duration
	SelectionDuration time.Duration
	GenerationTimeout time.Duration
	VoteQuorum        float64
	SmallImageKB      float64
	Targets           [Rounds]Target
}

func DefaultSettings() Settings {
	return Settings{
		RoundDuration:     5 * time.Minute,
		PromptGrace:       5 * time.Second,
		TransitionMin:     5 * time.Second,
		TransitionMax:     10 * time.Second,
		SelectionDuration: 30 * time.Second,
		GenerationTimeout: 90 * time.Second,
		VoteQuorum:        0.66,
		SmallImageKB:      50,
		Targets: [Rounds]Target{
			{ID: 1, URL: "/static/images/target1.png"},
			{ID: 2, URL: "/static/images/target2.png"},
			{ID: 3, URL: "/static/images/target3.png"},
		},
	}
}

// TargetFor returns the target image of round, or nil outside 1..Rounds.
func (s Settings) TargetFor(round int) *Target {
	if round < 1 || round > Rounds {
		return nil
	}
	t := s.Targets[round-1]
	return &t
}

// Attempt is one prompt and its generated (or placeholder) image.
type Attempt struct {
	ID          string
	Index       int // 1-based within the round
	Prompt      string
	Image       []byte
	AIResponse  string
	SubmittedAt time.Time
	Failure     ai.FailureKind
	SizeKB      *float64
	ImageURL    string
}

func (a Attempt) Failed() bool { return a.Failure != ai.FailureNone }

func (a Attempt) DataURL() string {
	if len(a.Image) == 0 {
		return ""
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(a.Image)
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RoundState is a player's sub-state for one round.
type RoundState struct {
	Attempts []Attempt
	// Selected is the Index of the chosen attempt, 0 when none.
	Selected      int
	Confirmed     bool
	VotesReceived int
	HasVoted      bool
	VotedFor      string
	Successful    bool
	Conversation  []ChatMessage
	Refinement    []byte
}

func (r *RoundState) selection() *Attempt {
	if r.Selected < 1 || r.Selected > len(r.Attempts) {
		return nil
	}
	return &r.Attempts[r.Selected-1]
}

type GenerationError struct {
	Round        int            `json:"round"`
	Timestamp    time.Time      `json:"timestamp"`
	ErrorType    ai.FailureKind `json:"error_type"`
	Prompt       string         `json:"prompt"`
	ErrorMessage string         `json:"error_message"`
	FinishReason string         `json:"finish_reason,omitempty"`
	FileSizeKB   *float64       `json:"file_size_kb,omitempty"`
}

type Player struct {
	Identity string
	// ConnID is empty while the player is disconnected.
	ConnID       string
	DisplayName  string
	InternalName string
	Team         Team
	Character    Character
	IsAdmin      bool
	Score        int
	RoundScores  [Rounds]int
	PromptCount  int
	Rounds       [Rounds]RoundState
	Errors       []GenerationError
	JoinedAt     time.Time
}

func (p *Player) Connected() bool { return p.ConnID != "" }

// round returns the sub-state of round r (1-based), or nil when out of range.
func (p *Player) round(r int) *RoundState {
	if r < 1 || r > Rounds {
		return nil
	}
	return &p.Rounds[r-1]
}

func (p *Player) setTeam(t Team) {
	p.Team = t
	p.Character = CharacterForTeam(t)
}

func (p *Player) resetProgress() {
	p.Score = 0
	p.RoundScores = [Rounds]int{}
	p.PromptCount = 0
	p.Rounds = [Rounds]RoundState{}
	p.Errors = nil
}
