package rules

import (
	"fmt"
	"strings"
)

// Severity grades a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Code identifies a validation issue. Codes are stable and part of the wire
// contract with clients.
type Code string

const (
	CodeGameNotActive            Code = "GAME_NOT_ACTIVE"
	CodeGameOver                 Code = "GAME_OVER"
	CodeNotYourTurn              Code = "NOT_YOUR_TURN"
	CodeInvalidPhase             Code = "INVALID_PHASE"
	CodeUnknownAction            Code = "UNKNOWN_ACTION"
	CodeInvalidPayload           Code = "INVALID_PAYLOAD"
	CodePlayerNotFound           Code = "PLAYER_NOT_FOUND"
	CodeInvalidPosition          Code = "INVALID_POSITION"
	CodeInvalidFormationPosition Code = "INVALID_FORMATION_POSITION"
	CodePositionOccupied         Code = "POSITION_OCCUPIED"
	CodeInsufficientResources    Code = "INSUFFICIENT_RESOURCES"
	CodeCardNotInHand            Code = "CARD_NOT_IN_HAND"
	CodeNotUnitCard              Code = "NOT_UNIT_CARD"
	CodeNotSpellCard             Code = "NOT_SPELL_CARD"
	CodeAttackerNotFound         Code = "ATTACKER_NOT_FOUND"
	CodeTargetNotFound           Code = "TARGET_NOT_FOUND"
	CodeSummoningSickness        Code = "SUMMONING_SICKNESS"
	CodeAlreadyAttacked          Code = "ALREADY_ATTACKED"
	CodeCannotAttack             Code = "CANNOT_ATTACK"
	CodeAlreadyReady             Code = "ALREADY_READY"

	CodeTurnTimerLow Code = "TURN_TIMER_LOW"
	CodeHandFull     Code = "HAND_FULL"
)

// Issue is a single structured validation finding.
type Issue struct {
	Code     Code     `json:"code"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Errorf builds an error-severity issue.
func Errorf(code Code, format string, args ...any) Issue {
	return Issue{Code: code, Message: fmt.Sprintf(format, args...), Severity: SeverityError}
}

// Warnf builds a warning-severity issue.
func Warnf(code Code, format string, args ...any) Issue {
	return Issue{Code: code, Message: fmt.Sprintf(format, args...), Severity: SeverityWarning}
}

// ValidationResult collects every issue found for a request.
type ValidationResult struct {
	IsValid  bool    `json:"is_valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Add files each issue under errors or warnings by severity.
func (r *ValidationResult) Add(issues ...Issue) {
	for _, is := range issues {
		if is.Severity == SeverityWarning {
			r.Warnings = append(r.Warnings, is)
			continue
		}
		r.Errors = append(r.Errors, is)
	}
	r.IsValid = len(r.Errors) == 0
}

// HasCode reports whether an error with the given code was recorded.
func (r ValidationResult) HasCode(code Code) bool {
	for _, is := range r.Errors {
		if is.Code == code {
			return true
		}
	}
	return false
}

// Codes returns the error codes in the order they were found.
func (r ValidationResult) Codes() []Code {
	out := make([]Code, len(r.Errors))
	for i, is := range r.Errors {
		out[i] = is.Code
	}
	return out
}

func newResult(issues []Issue) ValidationResult {
	r := ValidationResult{IsValid: true}
	r.Add(Dedupe(issues)...)
	return r
}

// Dedupe drops issues whose code was already reported, keeping the first.
func Dedupe(issues []Issue) []Issue {
	seen := make(map[Code]bool, len(issues))
	out := issues[:0:0]
	for _, is := range issues {
		if seen[is.Code] {
			continue
		}
		seen[is.Code] = true
		out = append(out, is)
	}
	return out
}

// RejectionError carries a failed validation through a store diff so the
// mutated copy is discarded. Callers unwrap it with errors.As.
type RejectionError struct {
	Result ValidationResult
}

func (e *RejectionError) Error() string {
	codes := make([]string, len(e.Result.Errors))
	for i, is := range e.Result.Errors {
		codes[i] = string(is.Code)
	}
	return "action rejected: " + strings.Join(codes, ",")
}

// Reject wraps an invalid result, or returns nil when r is valid.
func Reject(r ValidationResult) error {
	if r.IsValid {
		return nil
	}
	return &RejectionError{Result: r}
}
