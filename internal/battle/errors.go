package battle

import (
	"errors"
	"fmt"
)

// Code is a machine-readable rejection reason.
type Code string

const (
	CodeBattleNotFound Code = "BATTLE_NOT_FOUND"
	CodeBattleFinished Code = "BATTLE_FINISHED"
	CodeWrongTurn      Code = "WRONG_TURN"
)

// Error is returned when an action is rejected. A rejected action never
// mutates the battle.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string { return e.Message }

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Sentinels for errors.Is.
var (
	ErrBattleNotFound = &Error{Code: CodeBattleNotFound, Message: "battle not found"}
	ErrBattleFinished = &Error{Code: CodeBattleFinished, Message: "battle already finished"}
	ErrWrongTurn      = &Error{Code: CodeWrongTurn, Message: "not this side's turn"}
)

func notFound(id string) error {
	return &Error{Code: CodeBattleNotFound, Message: fmt.Sprintf("battle %q not found", id)}
}

// CodeOf extracts the rejection code from err, or "" if err is not a battle error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
