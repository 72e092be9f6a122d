package game

import "github.com/kiliankoe/promptcraft/internal/ai"

type ErrorReport struct {
	Summary ErrorSummary    `json:"summary"`
	Errors  []ReportedError `json:"all_errors"`
}

type ErrorSummary struct {
	TotalErrors   int                    `json:"total_errors"`
	ErrorsByRound map[int]int            `json:"errors_by_round"`
	ErrorsByType  map[ai.FailureKind]int `json:"errors_by_type"`
}

// ReportedError is a GenerationError tagged with the player it happened to.
type ReportedError struct {
	GenerationError
	PlayerName string `json:"player_name"`
	SessionID  string `json:"session_id"`
}

// ErrorReport aggregates every player's generation failures of the current
// game.
func (s *Session) ErrorReport() ErrorReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := ErrorReport{
		Summary: ErrorSummary{
			ErrorsByRound: map[int]int{},
			ErrorsByType:  map[ai.FailureKind]int{},
		},
		Errors: []ReportedError{},
	}
	for round := 1; round <= Rounds; round++ {
		r.Summary.ErrorsByRound[round] = 0
	}
	for _, p := range s.playersInOrder() {
		for _, e := range p.Errors {
			r.Errors = append(r.Errors, ReportedError{GenerationError: e, PlayerName: p.DisplayName, SessionID: p.Identity})
			r.Summary.ErrorsByRound[e.Round]++
			r.Summary.ErrorsByType[e.ErrorType]++
		}
	}
	r.Summary.TotalErrors = len(r.Errors)
	return r
}
