package service

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/convo/internal/apperr"
)

// fields собирает ошибки валидации по полям; первая ошибка поля побеждает.
type fields map[string]string

func (f fields) add(field, msg string) {
	if _, ok := f[field]; !ok {
		f[field] = msg
	}
}

func label(field string) string {
	return strings.ReplaceAll(field, "_", " ")
}

func (f fields) required(field, val string) bool {
	if strings.TrimSpace(val) == "" {
		f.add(field, fmt.Sprintf("The %s field is required.", label(field)))
		return false
	}
	return true
}

func (f fields) max(field, val string, n int) {
	if utf8.RuneCountInString(val) > n {
		f.add(field, fmt.Sprintf("The %s field must not be greater than %d characters.", label(field), n))
	}
}

func (f fields) between(field, val string, lo, hi int) {
	n := utf8.RuneCountInString(val)
	if n < lo || n > hi {
		f.add(field, fmt.Sprintf("The %s field must be between %d and %d characters.", label(field), lo, hi))
	}
}

func (f fields) err() error {
	if len(f) == 0 {
		return nil
	}
	return apperr.Validation(f)
}

const (
	maxNameLength        = 255
	maxDescriptionLength = 1000
	maxPictureLength     = 2048
	minPhoneLength       = 10
	maxPhoneLength       = 15
)
