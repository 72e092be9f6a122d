package game

import "errors"

var (
	ErrUnknownPlayer     = errors.New("unknown player")
	ErrNotAdmin          = errors.New("not admin")
	ErrAdminExists       = errors.New("admin already exists")
	ErrAdminCannotPlay   = errors.New("admin cannot play")
	ErrInvalidPhase      = errors.New("invalid phase for action")
	ErrRoundEnded        = errors.New("round has ended")
	ErrNotEnoughPlayers  = errors.New("not enough players")
	ErrTeamsUnassigned   = errors.New("teams not assigned")
	ErrSelfVote          = errors.New("self vote")
	ErrAlreadyVoted      = errors.New("already voted")
	ErrInvalidIndex      = errors.New("invalid image index")
	ErrInvalidTarget     = errors.New("invalid vote target")
	ErrCannotRemoveAdmin = errors.New("cannot remove admin")
	ErrPlayerNotFound    = errors.New("player not found")
	ErrNoPlayers         = errors.New("no players")
)

var userMessages = map[error]string{
	ErrUnknownPlayer:     "Please join the game first",
	ErrNotAdmin:          "Only admin can do that",
	ErrAdminExists:       "Admin already exists. Please use a different name.",
	ErrAdminCannotPlay:   "Admin cannot play - you are the gamemaster",
	ErrInvalidPhase:      "That action is not available right now",
	ErrRoundEnded:        "Round has ended",
	ErrNotEnoughPlayers:  "Need at least 2 connected players (excluding admin) to assign teams",
	ErrTeamsUnassigned:   "Please assign teams first",
	ErrSelfVote:          "You can't vote for yourself!",
	ErrAlreadyVoted:      "You have already voted this round",
	ErrInvalidIndex:      "That image does not exist",
	ErrInvalidTarget:     "That image is not up for voting",
	ErrCannotRemoveAdmin: "Cannot remove admin",
	ErrPlayerNotFound:    "Player not found",
	ErrNoPlayers:         "No players have joined yet",
}

// rejection pairs a sentinel with the message shown for one specific action.
type rejection struct {
	err error
	msg string
}

func (r *rejection) Error() string { return r.err.Error() + ": " + r.msg }
func (r *rejection) Unwrap() error { return r.err }

func reject(err error, msg string) error { return &rejection{err: err, msg: msg} }

// UserMessage returns the text shown to the player whose action failed.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var r *rejection
	if errors.As(err, &r) {
		return r.msg
	}
	for sentinel, msg := range userMessages {
		if errors.Is(err, sentinel) {
			return msg
		}
	}
	return "Something went wrong"
}
