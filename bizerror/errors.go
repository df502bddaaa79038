package bizerror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/fundwit/go-commons/types"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
)

type BizError interface {
	Respond() *BizErrorDetail
}

type BizErrorDetail struct {
	Status  int
	Code    string
	Message string

	Data  interface{}
	Cause error
}

type ErrBadParam struct {
	Cause error
}

func (e *ErrBadParam) Unwrap() error {
	return e.Cause
}
func (e *ErrBadParam) Error() string {
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return "common.bad_param"
}
func (e *ErrBadParam) Respond() *BizErrorDetail {
	return &BizErrorDetail{Status: http.StatusBadRequest, Code: "common.bad_param", Message: e.Error()}
}

type Reason string

const (
	ReasonInvalidState      = Reason("invalid_state")
	ReasonInvalidOwnership  = Reason("invalid_ownership")
	ReasonStepNotOptional   = Reason("step_not_optional")
	ReasonNoStepsDefined    = Reason("no_steps_defined")
	ReasonTemplateInactive  = Reason("template_inactive")
	ReasonInvalidDefinition = Reason("invalid_definition")
)

// ValidationError is raised when the requested operation does not fit the current state of
// the addressed records. It is never retried automatically.
type ValidationError struct {
	Reason  Reason
	Message string
}

var (
	ErrInvalidState      = &ValidationError{Reason: ReasonInvalidState}
	ErrInvalidOwnership  = &ValidationError{Reason: ReasonInvalidOwnership}
	ErrStepNotOptional   = &ValidationError{Reason: ReasonStepNotOptional}
	ErrNoStepsDefined    = &ValidationError{Reason: ReasonNoStepsDefined}
	ErrTemplateInactive  = &ValidationError{Reason: ReasonTemplateInactive}
	ErrInvalidDefinition = &ValidationError{Reason: ReasonInvalidDefinition}
)

func NewValidationError(reason Reason, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Message == "" {
		return string(e.Reason)
	}
	return string(e.Reason) + ": " + e.Message
}

// Is matches any ValidationError with the same reason, or any ValidationError when target has
// no reason.
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	if !ok {
		return false
	}
	return t.Reason == "" || t.Reason == e.Reason
}

func (e *ValidationError) Respond() *BizErrorDetail {
	message := e.Message
	if message == "" {
		message = string(e.Reason)
	}
	return &BizErrorDetail{Status: http.StatusBadRequest, Code: "workflow." + string(e.Reason), Message: message}
}

type NotFoundError struct {
	Resource string
	ID       types.ID
}

var ErrNotFound = &NotFoundError{}

func NewNotFoundError(resource string, id types.ID) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

func (e *NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID.String())
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}

func (e *NotFoundError) Respond() *BizErrorDetail {
	return &BizErrorDetail{Status: http.StatusNotFound, Code: "common.record_not_found", Message: e.Error()}
}

// ConcurrencyError signals lock contention. The failed attempt did not change any stored
// state and the whole operation may be retried.
type ConcurrencyError struct {
	Cause error
}

var ErrConcurrency = &ConcurrencyError{}

func (e *ConcurrencyError) Error() string {
	if e.Cause == nil {
		return "concurrent modification"
	}
	return "concurrent modification: " + e.Cause.Error()
}

func (e *ConcurrencyError) Unwrap() error {
	return e.Cause
}

func (e *ConcurrencyError) Is(target error) bool {
	_, ok := target.(*ConcurrencyError)
	return ok
}

func (e *ConcurrencyError) Respond() *BizErrorDetail {
	return &BizErrorDetail{Status: http.StatusConflict, Code: "common.concurrent_modification", Message: e.Error()}
}

// IntegrityError indicates a broken storage invariant, e.g. a duplicated case number.
type IntegrityError struct {
	Cause error
}

var ErrIntegrity = &IntegrityError{}

func (e *IntegrityError) Error() string {
	if e.Cause == nil {
		return "integrity violation"
	}
	return "integrity violation: " + e.Cause.Error()
}

func (e *IntegrityError) Unwrap() error {
	return e.Cause
}

func (e *IntegrityError) Is(target error) bool {
	_, ok := target.(*IntegrityError)
	return ok
}

func (e *IntegrityError) Respond() *BizErrorDetail {
	return &BizErrorDetail{Status: http.StatusInternalServerError, Code: "common.integrity_violation", Message: e.Error()}
}
