package models

import "strings"

const (
	botUsernameSuffixConstant           = "_bot"
	blockedPendingApprovalStateConstant = "blocked_pending_approval"
	emailSeparatorConstant              = "@"
	rootUsernameConstant                = "root"
	ghostUsernameConstant               = "ghost"
	supportBotUsernameConstant          = "support-bot"
	alertBotUsernameConstant            = "alert-bot"
)

var reservedSystemUsernames = map[string]struct{}{
	rootUsernameConstant:       {},
	ghostUsernameConstant:      {},
	supportBotUsernameConstant: {},
	alertBotUsernameConstant:   {},
}

// User is a GitLab account on either instance.
type User struct {
	Identifier    int64  `json:"id"`
	Username      string `json:"username"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	State         string `json:"state"`
	Administrator bool   `json:"is_admin"`
}

// IsSystem reports whether the account is instance-internal and must never be
// migrated: the root account, ghost and service-bot accounts, project access
// token bots, accounts blocked pending approval, and accounts without a
// routable email address.
func (user User) IsSystem() bool {
	normalizedUsername := strings.ToLower(user.Username)
	if _, reserved := reservedSystemUsernames[normalizedUsername]; reserved {
		return true
	}
	if strings.Contains(normalizedUsername, botUsernameSuffixConstant) {
		return true
	}
	if user.State == blockedPendingApprovalStateConstant {
		return true
	}
	return !strings.Contains(user.Email, emailSeparatorConstant)
}

// CreationPayload builds the request body that recreates the user on the
// destination. Confirmation is skipped so migrated accounts are immediately
// usable, and a password reset is forced instead of copying credentials.
func (user User) CreationPayload() map[string]any {
	return map[string]any{
		"email":             user.Email,
		"username":          user.Username,
		"name":              user.Name,
		"reset_password":    true,
		"skip_confirmation": true,
		"admin":             user.Administrator,
	}
}
