// Package login matches a typed username and ID-as-password against the
// directory listing. Usernames are not guaranteed unique upstream, so the
// matcher picks the best candidate deterministically instead of failing
// on duplicates.
package login

import (
	"errors"

	"asistencia/internal/directory"
	"asistencia/internal/ident"
)

// ErrNotAuthorized means no directory entry carries the typed username.
var ErrNotAuthorized = errors.New("user not authorized")

// ErrIncorrectPassword means a username matched but its ID does not equal
// the submitted password.
var ErrIncorrectPassword = errors.New("incorrect password")

// ValidationError flags malformed input caught before any network call.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// ValidateInput normalizes the typed credentials and rejects shapes that
// can never match: an empty username, an empty password, or a password
// whose digit-only form is not exactly ten characters. It returns the
// normalized username and digit-only password for Match.
func ValidateInput(username, password string) (string, string, error) {
	userNorm := ident.Normalize(username)
	if userNorm == "" {
		return "", "", &ValidationError{Reason: "username is required"}
	}
	pass := ident.DigitsOnly(password)
	if pass == "" {
		return "", "", &ValidationError{Reason: "national ID is required as password"}
	}
	if len(pass) != 10 {
		return "", "", &ValidationError{Reason: "national ID must be 10 digits"}
	}
	return userNorm, pass, nil
}

// Match finds the authoritative user for normalized credentials among a
// fresh directory listing. Entries missing a username or ID are dropped.
// Among same-username candidates the cascade prefers an exact ID match,
// then any well-formed ten-digit ID, then listing order; access is only
// granted when the chosen candidate's ID equals the password exactly.
func Match(userNorm, pass string, listing []directory.User) (directory.User, error) {
	var candidates []directory.User
	for _, u := range listing {
		if u.Username == "" || u.NationalID == "" {
			continue
		}
		if ident.Normalize(u.Username) == userNorm {
			candidates = append(candidates, u)
		}
	}
	if len(candidates) == 0 {
		return directory.User{}, ErrNotAuthorized
	}

	picked := candidates[0]
	found := false
	for _, u := range candidates {
		if ident.DigitsOnly(u.NationalID.String()) == pass {
			picked = u
			found = true
			break
		}
	}
	if !found {
		for _, u := range candidates {
			if ident.IsTenDigitID(u.NationalID.String()) {
				picked = u
				break
			}
		}
	}

	if ident.DigitsOnly(picked.NationalID.String()) != pass {
		return directory.User{}, ErrIncorrectPassword
	}
	return picked, nil
}
