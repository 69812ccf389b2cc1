package research

import (
	"context"
	"errors"
	"fmt"
)

type ErrorCode string

const (
	CodeNone                 ErrorCode = ""
	CodeClassificationFailed ErrorCode = "classification_failed"
	CodePlanningFailed       ErrorCode = "planning_failed"
	CodeSearchFailed         ErrorCode = "search_failed"
	CodeSynthesisFailed      ErrorCode = "synthesis_failed"
	CodeTimeout              ErrorCode = "timeout"
	CodeCostLimitExceeded    ErrorCode = "cost_limit_exceeded"
	CodeRateLimited          ErrorCode = "rate_limited"
	CodeUnknown              ErrorCode = "unknown"
)

var messages = map[ErrorCode]string{
	CodeNone:                 "Research complete.",
	CodeClassificationFailed: "We couldn't understand this research request. Try rephrasing the question.",
	CodePlanningFailed:       "We couldn't break this question into research steps, so we searched for it directly.",
	CodeSearchFailed:         "Some searches failed, so the answer may be missing sources.",
	CodeSynthesisFailed:      "We found sources but couldn't put together a reliable answer. Please try again.",
	CodeTimeout:              "Research hit its time limit. Here is what we found so far.",
	CodeCostLimitExceeded:    "Research hit its budget limit. Here is what we found so far.",
	CodeRateLimited:          "The research services are busy right now. Please try again in a moment.",
	CodeUnknown:              "Something went wrong during research. Please try again.",
}

const insufficientBudgetAnswer = "There wasn't enough time or budget left to finish researching this question, so no answer could be put together."

// Message returns the user-facing text for a terminal session code.
func Message(code ErrorCode) string {
	if message, ok := messages[code]; ok {
		return message
	}
	return messages[CodeUnknown]
}

var ErrEmptyQuery = errors.New("query is empty")

type Error struct {
	Code ErrorCode
	Op   string
	Err  error
}

func newError(code ErrorCode, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("research %s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("research %s: %s: %v", e.Op, e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf classifies any error into the research taxonomy.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return CodeNone
	}
	var researchErr *Error
	if errors.As(err, &researchErr) {
		return researchErr.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}
	var limited interface{ RateLimited() bool }
	if errors.As(err, &limited) && limited.RateLimited() {
		return CodeRateLimited
	}
	return CodeUnknown
}
