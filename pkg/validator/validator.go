package validator

import (
	"net/url"
	"strings"

	"link-tracker/internal/domain"
)

// ValidateURL checks that a destination is present and parseable.
// Any scheme is accepted.
func ValidateURL(urlStr string) error {
	if strings.TrimSpace(urlStr) == "" {
		return ErrEmptyURL
	}

	if _, err := url.Parse(urlStr); err != nil {
		return ErrInvalidURL
	}

	return nil
}

// ParsePrefer normalises the caller's mode preference.
// Empty means auto; any unrecognised value falls through to redirect.
func ParsePrefer(prefer string) domain.Prefer {
	switch p := domain.Prefer(strings.ToLower(strings.TrimSpace(prefer))); p {
	case "":
		return domain.PreferAuto
	case domain.PreferAuto, domain.PreferAppend, domain.PreferRedirect:
		return p
	default:
		return domain.PreferRedirect
	}
}
