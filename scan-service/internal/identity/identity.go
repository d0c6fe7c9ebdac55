// Package identity turns verified sessions and sign-in failures into
// presentation-ready state.
package identity

import (
	"net/url"
	"strings"

	"github.com/sortit/sortit-services/shared-libs/auth"
)

// DefaultName is shown for users without a display name.
const DefaultName = "Explorer"

const avatarBaseURL = "https://api.dicebear.com/7.x/initials/svg"

// AuthState is the session as the client renders it.
type AuthState struct {
	SignedIn  bool   `json:"signedIn"`
	UserID    string `json:"userId,omitempty"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// StateOf builds the AuthState for an optional authenticated user.
func StateOf(user auth.AuthenticatedUser, ok bool) AuthState {
	if !ok || user.UserID == "" {
		return AuthState{SignedIn: false}
	}
	name := strings.TrimSpace(user.Name)
	if name == "" {
		name = DefaultName
	}
	avatar := strings.TrimSpace(user.Picture)
	if avatar == "" {
		avatar = AvatarURL(name)
	}
	return AuthState{
		SignedIn:  true,
		UserID:    user.UserID,
		Name:      name,
		Email:     user.Email,
		AvatarURL: avatar,
	}
}

// AvatarURL returns the generated initials avatar for name.
func AvatarURL(name string) string {
	return avatarBaseURL + "?seed=" + url.QueryEscape(name)
}

// ErrorCategory groups sign-in failures by how the client should react.
type ErrorCategory string

const (
	CategoryDomainNotAuthorized ErrorCategory = "domain_not_authorized"
	CategoryPopupBlocked        ErrorCategory = "popup_blocked"
	CategoryUserCancelled       ErrorCategory = "user_cancelled"
	CategoryOther               ErrorCategory = "other"
)

// SignInError is the categorized form of a sign-in failure code.
type SignInError struct {
	Code     string        `json:"code"`
	Category ErrorCategory `json:"category"`
	Message  string        `json:"message,omitempty"`
	// Silent failures are not shown to the user.
	Silent bool `json:"silent"`
}

// Categorize maps a provider error code onto an ErrorCategory.
func Categorize(code string) ErrorCategory {
	switch strings.TrimSpace(code) {
	case "auth/unauthorized-domain":
		return CategoryDomainNotAuthorized
	case "auth/popup-blocked":
		return CategoryPopupBlocked
	case "auth/popup-closed-by-user", "auth/cancelled-popup-request":
		return CategoryUserCancelled
	default:
		return CategoryOther
	}
}

// Describe categorizes code and attaches the user-facing message.
func Describe(code string) SignInError {
	category := Categorize(code)
	out := SignInError{Code: code, Category: category}
	switch category {
	case CategoryDomainNotAuthorized:
		out.Message = "This domain is not authorized for sign-in. Add it to the authorized domains of the auth project."
	case CategoryPopupBlocked:
		out.Message = "The sign-in popup was blocked. Please allow popups for this site."
	case CategoryUserCancelled:
		out.Silent = true
	default:
		out.Message = "Sign-in failed. Please try again."
	}
	return out
}
