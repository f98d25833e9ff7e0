// Package apperr описывает ошибки ядра: вид (Kind) для маппинга в HTTP-статус,
// стабильный код для клиентов и человекочитаемое сообщение.
package apperr

import (
	"errors"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindForbidden
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// HTTPStatus возвращает код ответа для вида ошибки.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error — ошибка, которую ядро возвращает наружу.
// Fields заполняется только для ошибок валидации (поле -> сообщение).
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is сравнивает по коду, поэтому errors.Is(err, apperr.ErrAlreadyMember) работает
// и для копий с другим сообщением.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithMessage возвращает копию с другим сообщением и тем же кодом.
func (e *Error) WithMessage(msg string) *Error {
	c := *e
	c.Message = msg
	return &c
}

const internalMessage = "An error occurred while processing your request. Please try again."

var (
	ErrForbidden = &Error{Kind: KindForbidden, Code: "forbidden", Message: "This action is unauthorized."}

	ErrUserNotFound    = &Error{Kind: KindNotFound, Code: "user_not_found", Message: "User not found."}
	ErrChatNotFound    = &Error{Kind: KindNotFound, Code: "chat_not_found", Message: "Chat not found."}
	ErrGroupNotFound   = &Error{Kind: KindNotFound, Code: "group_not_found", Message: "Group not found."}
	ErrMessageNotFound = &Error{Kind: KindNotFound, Code: "message_not_found", Message: "Message not found."}
	ErrContactNotFound = &Error{Kind: KindNotFound, Code: "contact_not_found", Message: "Contact not found."}

	ErrAlreadyBlocked       = &Error{Kind: KindConflict, Code: "already_blocked", Message: "User is already blocked."}
	ErrNotBlocked           = &Error{Kind: KindConflict, Code: "not_blocked", Message: "User is not blocked."}
	ErrBlockedByYou         = &Error{Kind: KindConflict, Code: "blocked_by_you", Message: "You have blocked this user."}
	ErrBlockedYou           = &Error{Kind: KindConflict, Code: "blocked_you", Message: "This user has blocked you."}
	ErrAlreadyMember        = &Error{Kind: KindConflict, Code: "already_member", Message: "User is already a member of this group."}
	ErrNotAMember           = &Error{Kind: KindConflict, Code: "not_a_member", Message: "You are not a member of this group."}
	ErrNotMember            = &Error{Kind: KindConflict, Code: "not_member", Message: "User is not a member of this group."}
	ErrOwnerCannotLeave     = &Error{Kind: KindConflict, Code: "owner_cannot_leave", Message: "The owner cannot leave the group. Transfer ownership first."}
	ErrTargetNotMember      = &Error{Kind: KindConflict, Code: "target_not_member", Message: "You cannot transfer ownership to non existent member."}
	ErrCannotTransferToSelf = &Error{Kind: KindConflict, Code: "cannot_transfer_to_self", Message: "You are already the owner of this group."}
	ErrAlreadyAdmin         = &Error{Kind: KindConflict, Code: "already_admin", Message: "User is already an admin of this group."}
	ErrCannotRemoveOwner    = &Error{Kind: KindConflict, Code: "cannot_remove_owner", Message: "You cannot remove the owner of the group."}
	ErrCannotPromoteOwner   = &Error{Kind: KindConflict, Code: "cannot_promote_owner", Message: "The owner cannot be promoted to admin."}
	ErrCannotRemoveAdmin    = &Error{Kind: KindConflict, Code: "cannot_remove_admin", Message: "You cannot remove the admin of the group."}
	ErrNotEditable          = &Error{Kind: KindConflict, Code: "message_not_editable", Message: "This message is not editable."}
	ErrGroupSlugTaken       = &Error{Kind: KindConflict, Code: "group_slug_taken", Message: "The group id has already been taken."}
	ErrContactExists        = &Error{Kind: KindConflict, Code: "contact_exists", Message: "Contact already exists."}

	ErrInternal = &Error{Kind: KindInternal, Code: "internal", Message: internalMessage}
)

// Validation возвращает ошибку валидации по полям.
func Validation(fields map[string]string) *Error {
	msg := "The given data was invalid."
	if len(fields) == 1 {
		for _, m := range fields {
			msg = m
		}
	}
	return &Error{Kind: KindValidation, Code: "validation_failed", Message: msg, Fields: fields}
}

// Field — ошибка валидации одного поля.
func Field(name, msg string) *Error {
	return Validation(map[string]string{name: msg})
}

// Internal оборачивает неожиданную ошибку хранилища. Причина доступна через errors.Unwrap,
// но в ответ клиенту уходит только общий текст.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Code: ErrInternal.Code, Message: internalMessage, Err: err}
}

// As извлекает *Error; любая другая ошибка считается внутренней.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

// KindOf возвращает вид ошибки (KindInternal для всего, что не *Error).
func KindOf(err error) Kind {
	if e := As(err); e != nil {
		return e.Kind
	}
	return KindInternal
}
