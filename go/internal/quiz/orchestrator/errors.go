package orchestrator

import (
	"errors"

	"github.com/mcdev12/quizarena/go/internal/quiz/repository"
)

var (
	ErrNotHost            = errors.New("only the host can do that")
	ErrNotInRoom          = errors.New("you are not in this room")
	ErrPlayerNotFound     = errors.New("player not found")
	ErrPlayerLeft         = errors.New("you have left this room")
	ErrCannotKickSelf     = errors.New("you cannot kick yourself")
	ErrRoomFull           = errors.New("room is full")
	ErrGameAlreadyStarted = errors.New("game already started")
	ErrNotEnoughPlayers   = errors.New("not enough players to start")
	ErrNoQuestions        = errors.New("no questions selected")
	ErrGameNotInProgress  = errors.New("game is not in progress")
	ErrWrongPhase         = errors.New("answer type does not match the current phase")
	ErrNoActiveQuestion   = errors.New("no question is open for answers")
	ErrStaleAnswer        = errors.New("answer is for a different question")
	ErrAlreadyAnswered    = errors.New("you already answered this question")
	ErrShuttingDown       = errors.New("server is shutting down")
)

var clientErrors = []error{
	ErrNotHost,
	ErrNotInRoom,
	ErrPlayerNotFound,
	ErrPlayerLeft,
	ErrCannotKickSelf,
	ErrRoomFull,
	ErrGameAlreadyStarted,
	ErrNotEnoughPlayers,
	ErrNoQuestions,
	ErrGameNotInProgress,
	ErrWrongPhase,
	ErrNoActiveQuestion,
	ErrStaleAnswer,
	ErrAlreadyAnswered,
	ErrShuttingDown,
	repository.ErrRoomNotFound,
	repository.ErrNotEnoughQuestions,
}

// clientMessage returns the text sent to a client for err. Anything that is
// not one of the known sentinels is reported as a generic failure.
func clientMessage(err error) string {
	for _, known := range clientErrors {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "internal error"
}

// isRejection reports whether err is an expected refusal rather than a failure.
func isRejection(err error) bool {
	return clientMessage(err) != "internal error"
}
