package gerror

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	ErrCodeInternal              Code = "Internal"
	ErrCodeValidationFailed      Code = "ValidationFailed"
	ErrCodeInvalidQueryParameter Code = "InvalidQueryParameter"
	ErrCodeNotFound              Code = "NotFound"
	ErrCodeUnauthorized          Code = "Unauthorized"
	ErrCodeAlreadyExists         Code = "AlreadyExists"
	ErrCodeOptimisticLockFailed  Code = "OptimisticLockFailed"
	ErrCodeTimeout               Code = "Timeout"
	ErrHttpOperationFailed       Code = "HttpOperationFailed"

	// ErrCodePermissionDenied: the user has no grant path to the requested node key (Q1 case c
	// with no granted ancestor).
	ErrCodePermissionDenied Code = "PermissionDenied"
	// ErrCodeAdminIsModifyingPerm: the user's lock is held in DOING phase by a rebuild in
	// progress; reads fail with this until the holder commits or its TTL expires.
	ErrCodeAdminIsModifyingPerm Code = "AdminIsModifyingPerm"
	// ErrCodeCannotRemovePermNow: permission deletion was attempted while a rebuild task exists
	// anywhere in the system.
	ErrCodeCannotRemovePermNow Code = "CannotRemovePermNow"
	// ErrCodeSomeoneIsDoingThis: lock contention observed by the task runner while attempting
	// to acquire a user's lock; never surfaced to a reader directly, only via AdminIsModifyingPerm.
	ErrCodeSomeoneIsDoingThis Code = "SomeoneIsDoingThis"
	// ErrCodeLockTimeout: the CAS from DOING to COMMITTING failed because the lock's TTL expired
	// and another holder took over.
	ErrCodeLockTimeout Code = "LockTimeout"
	// ErrCodeReverseNotAllowed: the write layer reported an m2m change via the reverse side of a
	// relation that the core does not accept reverse writes for.
	ErrCodeReverseNotAllowed Code = "ReverseNotAllowed"
	// ErrCodeIllegalBulkOp: a pre_clear m2m event was reported; pre_clear carries no primary key
	// set so the affected user set cannot be computed.
	ErrCodeIllegalBulkOp Code = "IllegalBulkOp"
	// ErrCodeMalformedKey: a node key failed validation (empty segment, leading/trailing colon).
	ErrCodeMalformedKey Code = "MalformedKey"
	// ErrCodeIntegrityViolation: a rebuild invariant check failed, e.g. the same node computed
	// granted=true twice for one user.
	ErrCodeIntegrityViolation Code = "IntegrityViolation"
)

// ToError locates an Error in the provided error chain and returns it if it
// matches the provided code. Otherwise, returns nil.
func ToError(err error, code Code) *Error {
	if err == nil {
		return nil
	}
	var gErr Error
	if errors.As(err, &gErr) && gErr.Code() == code {
		return &gErr
	}
	return nil
}

func NewErrInternal() Error {
	return NewError(
		"An internal server error occurred",
		AudienceExternal,
		ErrCodeInternal,
		http.StatusInternalServerError,
		nil,
	)
}

func ToInternal(err error) *Error {
	return ToError(err, ErrCodeInternal)
}

func IsInternal(err error) bool {
	return ToInternal(err) != nil
}

func NewErrValidationFailed(message string) Error {
	return NewError(message, AudienceExternal, ErrCodeValidationFailed, http.StatusBadRequest, nil)
}

func ToValidationFailed(err error) *Error {
	return ToError(err, ErrCodeValidationFailed)
}

func IsValidationFailed(err error) bool {
	return ToValidationFailed(err) != nil
}

func NewErrInvalidQueryParameter(message string) Error {
	return NewError(message, AudienceExternal, ErrCodeInvalidQueryParameter, http.StatusBadRequest, nil)
}

func ToInvalidQueryParameter(err error) *Error {
	return ToError(err, ErrCodeInvalidQueryParameter)
}

func IsInvalidQueryParameter(err error) bool {
	return ToInvalidQueryParameter(err) != nil
}

func NewErrNotFound(message string) Error {
	return NewError(message, AudienceExternal, ErrCodeNotFound, http.StatusNotFound, nil)
}

func ToNotFound(err error) *Error {
	return ToError(err, ErrCodeNotFound)
}

func IsNotFound(err error) bool {
	return ToNotFound(err) != nil
}

func NewErrUnauthorized(message string) Error {
	return NewError(message, AudienceExternal, ErrCodeUnauthorized, http.StatusUnauthorized, nil)
}

func ToUnauthorized(err error) *Error {
	return ToError(err, ErrCodeUnauthorized)
}

func IsUnauthorized(err error) bool {
	return ToUnauthorized(err) != nil
}

func NewErrAlreadyExists(message string) Error {
	return NewError(message, AudienceExternal, ErrCodeAlreadyExists, http.StatusBadRequest, nil)
}

func ToAlreadyExists(err error) *Error {
	return ToError(err, ErrCodeAlreadyExists)
}

func IsAlreadyExists(err error) bool {
	return ToAlreadyExists(err) != nil
}

func NewErrOptimisticLockFailed(message string) Error {
	return NewError(message, AudienceExternal, ErrCodeOptimisticLockFailed, http.StatusPreconditionFailed, nil)
}
func ToOptimisticLockFailed(err error) *Error {
	return ToError(err, ErrCodeOptimisticLockFailed)
}

func IsOptimisticLockFailed(err error) bool {
	return ToOptimisticLockFailed(err) != nil
}

func NewErrTimeout(description string) Error {
	return NewError("Timeout: "+description, AudienceInternal, ErrCodeTimeout, http.StatusInternalServerError, nil)
}
func ToTimeout(err error) *Error {
	return ToError(err, ErrCodeTimeout)
}

func IsTimeout(err error) bool {
	return ToTimeout(err) != nil
}

func NewErrPermissionDenied(message string) Error {
	return NewError(message, AudienceExternal, ErrCodePermissionDenied, http.StatusForbidden, nil)
}

func ToPermissionDenied(err error) *Error {
	return ToError(err, ErrCodePermissionDenied)
}

func IsPermissionDenied(err error) bool {
	return ToPermissionDenied(err) != nil
}

func NewErrAdminIsModifyingPerm(userID fmt.Stringer) Error {
	return NewError(
		fmt.Sprintf("Administrator is updating permissions for user %s, please try again shortly", userID),
		AudienceExternal,
		ErrCodeAdminIsModifyingPerm,
		http.StatusConflict,
		nil,
	)
}

func ToAdminIsModifyingPerm(err error) *Error {
	return ToError(err, ErrCodeAdminIsModifyingPerm)
}

func IsAdminIsModifyingPerm(err error) bool {
	return ToAdminIsModifyingPerm(err) != nil
}

func NewErrCannotRemovePermNow(message string) Error {
	return NewError(message, AudienceExternal, ErrCodeCannotRemovePermNow, http.StatusConflict, nil)
}

func ToCannotRemovePermNow(err error) *Error {
	return ToError(err, ErrCodeCannotRemovePermNow)
}

func IsCannotRemovePermNow(err error) bool {
	return ToCannotRemovePermNow(err) != nil
}

func NewErrSomeoneIsDoingThis(message string) Error {
	return NewError(message, AudienceInternal, ErrCodeSomeoneIsDoingThis, http.StatusConflict, nil)
}

func ToSomeoneIsDoingThis(err error) *Error {
	return ToError(err, ErrCodeSomeoneIsDoingThis)
}

func IsSomeoneIsDoingThis(err error) bool {
	return ToSomeoneIsDoingThis(err) != nil
}

func NewErrLockTimeout(message string) Error {
	return NewError(message, AudienceInternal, ErrCodeLockTimeout, http.StatusInternalServerError, nil)
}

func ToLockTimeout(err error) *Error {
	return ToError(err, ErrCodeLockTimeout)
}

func IsLockTimeout(err error) bool {
	return ToLockTimeout(err) != nil
}

func NewErrReverseNotAllowed(message string) Error {
	return NewError(message, AudienceExternal, ErrCodeReverseNotAllowed, http.StatusBadRequest, nil)
}

func ToReverseNotAllowed(err error) *Error {
	return ToError(err, ErrCodeReverseNotAllowed)
}

func IsReverseNotAllowed(err error) bool {
	return ToReverseNotAllowed(err) != nil
}

func NewErrIllegalBulkOp(message string) Error {
	return NewError(message, AudienceExternal, ErrCodeIllegalBulkOp, http.StatusBadRequest, nil)
}

func ToIllegalBulkOp(err error) *Error {
	return ToError(err, ErrCodeIllegalBulkOp)
}

func IsIllegalBulkOp(err error) bool {
	return ToIllegalBulkOp(err) != nil
}

func NewErrMalformedKey(message string) Error {
	return NewError(message, AudienceExternal, ErrCodeMalformedKey, http.StatusBadRequest, nil)
}

func ToMalformedKey(err error) *Error {
	return ToError(err, ErrCodeMalformedKey)
}

func IsMalformedKey(err error) bool {
	return ToMalformedKey(err) != nil
}

func NewErrIntegrityViolation(message string) Error {
	return NewError(message, AudienceInternal, ErrCodeIntegrityViolation, http.StatusInternalServerError, nil)
}

func ToIntegrityViolation(err error) *Error {
	return ToError(err, ErrCodeIntegrityViolation)
}

func IsIntegrityViolation(err error) bool {
	return ToIntegrityViolation(err) != nil
}
