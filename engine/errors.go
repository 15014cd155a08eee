package engine

import "errors"

// Rule failures. Every failure returned by an engine operation wraps exactly one
// of these, and the game state is left unchanged.
var (
	ErrInvalidMarbleState  = errors.New("invalid marble state")
	ErrPathBlocked         = errors.New("path blocked")
	ErrDestinationOccupied = errors.New("destination occupied")
	ErrIllegalSplit        = errors.New("illegal split")
	ErrNotController       = errors.New("not controller")
	ErrNoLegalDiscard      = errors.New("discard not allowed while a legal play exists")
	ErrHomeChoiceRequired  = errors.New("home choice required")
)

// Turn and card bookkeeping failures.
var (
	ErrGameOver       = errors.New("game is over")
	ErrNotYourTurn    = errors.New("not your turn")
	ErrCardMismatch   = errors.New("card does not allow that play")
	ErrNoPendingSplit = errors.New("no pending split move")
	ErrGameNotStarted = errors.New("game not started")
)

// ErrInvalidReference is returned for caller contract violations (unknown seat,
// marble id or card index). It is not a game-rule failure.
var ErrInvalidReference = errors.New("invalid reference")

// ErrorCode returns a stable machine-readable code for err, or "internal" if err
// wraps none of the engine's sentinels.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidMarbleState):
		return "invalid_marble_state"
	case errors.Is(err, ErrPathBlocked):
		return "path_blocked"
	case errors.Is(err, ErrDestinationOccupied):
		return "destination_occupied"
	case errors.Is(err, ErrIllegalSplit):
		return "illegal_split"
	case errors.Is(err, ErrNotController):
		return "not_controller"
	case errors.Is(err, ErrNoLegalDiscard):
		return "no_legal_discard"
	case errors.Is(err, ErrHomeChoiceRequired):
		return "home_choice_required"
	case errors.Is(err, ErrGameOver):
		return "game_over"
	case errors.Is(err, ErrNotYourTurn):
		return "not_your_turn"
	case errors.Is(err, ErrCardMismatch):
		return "card_mismatch"
	case errors.Is(err, ErrNoPendingSplit):
		return "no_pending_split"
	case errors.Is(err, ErrGameNotStarted):
		return "game_not_started"
	case errors.Is(err, ErrInvalidReference):
		return "invalid_reference"
	}
	return "internal"
}
