package game

import (
	"time"

	"github.com/kiliankoe/promptcraft/internal/ai"
)

// Outbound event names.
const (
	EvtGameJoined          = "game_joined"
	EvtAdminJoined         = "admin_joined"
	EvtLobbyPlayers        = "lobby_players_update"
	EvtPlayerStatus        = "player_status_update"
	EvtPlayerLeft          = "player_left"
	EvtGameStarted         = "game_started"
	EvtAdminGameStarted    = "admin_game_started"
	EvtPromptSent          = "prompt_sent"
	EvtCharacterMessage    = "character_message"
	EvtImageGenerated      = "image_generated"
	EvtImageGenError       = "image_generation_error"
	EvtPlayerPromptUpdated = "player_prompt_updated"
	EvtTimerUpdate         = "timer_update"
	EvtTransitionScreen    = "show_transition_screen"
	EvtAdminStatusUpdate   = "admin_status_update"
	EvtVotingStarted       = "voting_started"
	EvtAdminVotingStarted  = "admin_voting_started"
	EvtAdminStatus         = "admin_status"
	EvtImageSelected       = "image_selected"
	EvtSelectionWaiting    = "selection_waiting"
	EvtVoteOnImages        = "vote_on_images"
	EvtVoteCast            = "vote_cast"
	EvtRoundResults        = "round_results"
	EvtAdminRoundResults   = "admin_round_results"
	EvtGameOver            = "game_over"
	EvtAdminGameOver       = "admin_game_over"
	EvtGameRestarted       = "game_restarted"
	EvtReturnToLobby       = "return_to_lobby"
	EvtError               = "error"
	EvtSelfVoteError       = "self_vote_error"
)

const transitionMessage = "Now you'll get to choose the best image that you created."

// Notifier delivers events to one connection or to every connection.
// Implementations must not call back into the Session.
type Notifier interface {
	Emit(connID, event string, payload any)
	Broadcast(event string, payload any)
}

type envelope struct {
	connID    string
	broadcast bool
	event     string
	payload   any
}

// outbox collects the notifications produced while the session lock is held.
// They are delivered in order after the state change is complete.
type outbox struct {
	msgs []envelope
}

func (o *outbox) to(p *Player, event string, payload any) {
	if p == nil || !p.Connected() {
		return
	}
	o.msgs = append(o.msgs, envelope{connID: p.ConnID, event: event, payload: payload})
}

func (o *outbox) all(event string, payload any) {
	o.msgs = append(o.msgs, envelope{broadcast: true, event: event, payload: payload})
}

func (o *outbox) flush(n Notifier) {
	if n == nil {
		return
	}
	for _, m := range o.msgs {
		if m.broadcast {
			n.Broadcast(m.event, m.payload)
		} else {
			n.Emit(m.connID, m.event, m.payload)
		}
	}
}

// unixSeconds renders t the way the client countdowns expect it.
func unixSeconds(t time.Time) float64 {
	return float64(t.UnixMilli()) / 1000
}

type Message struct {
	Message string `json:"message"`
}

type Success struct {
	Success bool `json:"success"`
}

type LobbyPlayer struct {
	Name        string `json:"name"`
	Team        Team   `json:"team"`
	IsAdmin     bool   `json:"is_admin"`
	IsConnected bool   `json:"is_connected"`
}

type LobbyPlayers struct {
	Players []LobbyPlayer `json:"players"`
}

// PlayerStatus is one row of the admin dashboard.
type PlayerStatus struct {
	Name             string `json:"name"`
	Team             Team   `json:"team"`
	IsAdmin          bool   `json:"is_admin"`
	IsConnected      bool   `json:"is_connected"`
	SessionID        string `json:"session_id"`
	PromptsSubmitted int    `json:"prompts_submitted"`
	HasSelected      *bool  `json:"has_selected"`
	HasVoted         *bool  `json:"has_voted"`
	Score            int    `json:"score"`
}

type PlayerStatuses struct {
	Players []PlayerStatus `json:"players"`
}

type JoinedPlayer struct {
	Name      string    `json:"name"`
	Team      Team      `json:"team"`
	Character Character `json:"character"`
	Score     int       `json:"score"`
	IsAdmin   bool      `json:"is_admin"`
}

type GameStateView struct {
	Status        Phase   `json:"status"`
	CurrentRound  int     `json:"current_round"`
	CurrentTarget *Target `json:"current_target"`
	PlayersCount  int     `json:"players_count"`
}

type GameJoined struct {
	Player       JoinedPlayer  `json:"player"`
	GameState    GameStateView `json:"game_state"`
	LobbyPlayers []LobbyPlayer `json:"lobby_players"`
}

type AdminJoined struct {
	IsAdmin bool           `json:"is_admin"`
	Players []PlayerStatus `json:"players"`
}

type PlayerLeft struct {
	PlayerName string `json:"player_name"`
	SessionID  string `json:"session_id"`
}

type GameStarted struct {
	Round     int            `json:"round"`
	Target    *Target        `json:"target"`
	EndTime   float64        `json:"end_time"`
	Character CharacterState `json:"character"`
}

type AdminGameStarted struct {
	Round         int            `json:"round"`
	Target        *Target        `json:"target"`
	TimeRemaining *float64       `json:"time_remaining"`
	Players       []PlayerStatus `json:"players"`
}

type PromptSent struct {
	Prompt string `json:"prompt"`
}

// AttemptView is an attempt as the client renders it.
type AttemptView struct {
	ImageData  string         `json:"image_data"`
	AIResponse string         `json:"ai_response"`
	Prompt     string         `json:"prompt"`
	ImageIndex int            `json:"image_index"`
	PromptID   string         `json:"prompt_id"`
	ErrorType  ai.FailureKind `json:"error_type,omitempty"`
	FileSizeKB *float64       `json:"file_size_kb"`
	ImageURL   string         `json:"image_url,omitempty"`
}

func viewOf(a Attempt) AttemptView {
	return AttemptView{
		ImageData:  a.DataURL(),
		AIResponse: a.AIResponse,
		Prompt:     a.Prompt,
		ImageIndex: a.Index - 1,
		PromptID:   a.ID,
		ErrorType:  a.Failure,
		FileSizeKB: a.SizeKB,
		ImageURL:   a.ImageURL,
	}
}

type ImageGenerationError struct {
	Message      string         `json:"message"`
	ErrorType    ai.FailureKind `json:"error_type"`
	SuggestRetry bool           `json:"suggest_retry"`
}

type PlayerPromptUpdated struct {
	SessionID        string `json:"session_id"`
	PlayerName       string `json:"player_name"`
	PromptsSubmitted int    `json:"prompts_submitted"`
}

type TimerUpdate struct {
	TimeRemaining float64 `json:"time_remaining"`
}

type TransitionScreen struct {
	Message string `json:"message"`
	MaxWait int    `json:"max_wait"`
}

type AdminStatusUpdate struct {
	Status Phase `json:"status"`
	Round  int   `json:"round"`
}

type VotingStarted struct {
	Round           int     `json:"round"`
	Duration        int     `json:"duration"`
	StartTime       float64 `json:"start_time"`
	DefaultSelected bool    `json:"default_selected"`
}

type AdminVotingStarted struct {
	Round   int            `json:"round"`
	Players []PlayerStatus `json:"players"`
}

type AdminStatus struct {
	Status        Phase          `json:"status"`
	Round         int            `json:"round"`
	TimeRemaining *float64       `json:"time_remaining"`
	Players       []PlayerStatus `json:"players"`
	Target        *Target        `json:"target"`
}

type SelectionWaiting struct {
	WaitingCount int `json:"waiting_count"`
	TotalPlayers int `json:"total_players"`
}

type VoteCandidate struct {
	SessionID  string      `json:"session_id"`
	PlayerName string      `json:"player_name"`
	Image      AttemptView `json:"image"`
	PromptID   string      `json:"prompt_id"`
}

type TargetImage struct {
	URL string `json:"url"`
}

type VoteOnImages struct {
	Images      []VoteCandidate `json:"images"`
	Round       int             `json:"round"`
	MySessionID string          `json:"my_session_id"`
	TargetImage TargetImage     `json:"target_image"`
}

type RoundResult struct {
	PlayerName string `json:"player_name"`
	Votes      int    `json:"votes"`
	TotalScore int    `json:"total_score"`
	Image      string `json:"image"`
}

type RoundResults struct {
	Round   int           `json:"round"`
	Results []RoundResult `json:"results"`
}

type AdminRoundResults struct {
	Round   int            `json:"round"`
	Results []RoundResult  `json:"results"`
	Players []PlayerStatus `json:"players"`
}

type FinalResult struct {
	PlayerName  string      `json:"player_name"`
	TotalScore  int         `json:"total_score"`
	RoundScores [Rounds]int `json:"round_scores"`
	Team        Team        `json:"team"`
	Character   Character   `json:"character"`
	PromptCount int         `json:"prompt_count"`
}

type GameOver struct {
	Results []FinalResult `json:"results"`
}

type AdminGameOver struct {
	Results []FinalResult  `json:"results"`
	Players []PlayerStatus `json:"players"`
}
