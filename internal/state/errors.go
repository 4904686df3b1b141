package state

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a rejected command so transports can map it to a
// status code without knowing every individual failure.
type ErrorKind int32

const (
	KindInternal ErrorKind = iota
	KindAuthorization
	KindState
	KindValidation
	KindTiming
	KindArithmetic
	KindConflict
	KindInsufficientVault
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuthorization:
		return "Authorization"
	case KindState:
		return "State"
	case KindValidation:
		return "Validation"
	case KindTiming:
		return "Timing"
	case KindArithmetic:
		return "Arithmetic"
	case KindConflict:
		return "Conflict"
	case KindInsufficientVault:
		return "InsufficientVault"
	default:
		return "Internal"
	}
}

// Error is a domain rejection. Two errors are equal under errors.Is when
// their codes match, so the sentinels below can be compared against
// errors that carry a more specific message.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Code)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Code, e.Message)
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Withf returns a copy of e carrying a formatted detail message.
func (e *Error) Withf(format string, args ...any) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal when there is none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func newErr(kind ErrorKind, code string) *Error {
	return &Error{Kind: kind, Code: code}
}

// Authorization
var (
	ErrUnauthorized       = newErr(KindAuthorization, "Unauthorized")
	ErrOracleUnauthorized = newErr(KindAuthorization, "OracleUnauthorized")
	ErrNotBettor          = newErr(KindAuthorization, "NotBettor")
)

// State
var (
	ErrMatchNotOpen           = newErr(KindState, "MatchNotOpen")
	ErrMatchNotLocked         = newErr(KindState, "MatchNotLocked")
	ErrMatchNotResolved       = newErr(KindState, "MatchNotResolved")
	ErrMatchNotCancelled      = newErr(KindState, "MatchNotCancelled")
	ErrInvalidMatchStatus     = newErr(KindState, "InvalidMatchStatus")
	ErrBetCountNotZero        = newErr(KindState, "BetCountNotZero")
	ErrWinningBetCountNotZero = newErr(KindState, "WinningBetCountNotZero")
	ErrWinnersExist           = newErr(KindState, "WinnersExist")
	ErrNoWinningStake         = newErr(KindState, "NoWinningStake")
	ErrPlatformPaused         = newErr(KindState, "PlatformPaused")
	ErrNotInitialized         = newErr(KindState, "NotInitialized")
	ErrMatchNotFound          = newErr(KindState, "MatchNotFound")
	ErrBetNotFound            = newErr(KindState, "BetNotFound")
)

// Validation
var (
	ErrZeroBetAmount        = newErr(KindValidation, "ZeroBetAmount")
	ErrBetBelowMinimum      = newErr(KindValidation, "BetBelowMinimum")
	ErrInvalidSide          = newErr(KindValidation, "InvalidSide")
	ErrInvalidFeeBps        = newErr(KindValidation, "InvalidFeeBps")
	ErrInvalidTimeout       = newErr(KindValidation, "InvalidTimeout")
	ErrInvalidBettingWindow = newErr(KindValidation, "InvalidBettingWindow")
	ErrBetOnLosingSide      = newErr(KindValidation, "BetOnLosingSide")
)

// Timing
var (
	ErrBettingWindowClosed   = newErr(KindTiming, "BettingWindowClosed")
	ErrTimeoutNotElapsed     = newErr(KindTiming, "TimeoutNotElapsed")
	ErrClaimWindowNotElapsed = newErr(KindTiming, "ClaimWindowNotElapsed")
)

// Arithmetic
var ErrOverflow = newErr(KindArithmetic, "Overflow")

// Conflict
var (
	ErrAlreadyClaimed       = newErr(KindConflict, "AlreadyClaimed")
	ErrNotYetClaimed        = newErr(KindConflict, "NotYetClaimed")
	ErrFeesAlreadyWithdrawn = newErr(KindConflict, "FeesAlreadyWithdrawn")
	ErrDuplicateBet         = newErr(KindConflict, "DuplicateBet")
	ErrMatchExists          = newErr(KindConflict, "MatchExists")
	ErrAlreadyInitialized   = newErr(KindConflict, "AlreadyInitialized")
)

// Funds
var ErrInsufficientVault = newErr(KindInsufficientVault, "InsufficientVault")
