package models

// Group is a GitLab group, possibly nested under a parent group.
type Group struct {
	Identifier       int64  `json:"id"`
	Name             string `json:"name"`
	Path             string `json:"path"`
	FullPath         string `json:"full_path"`
	Description      string `json:"description"`
	Visibility       string `json:"visibility"`
	ParentIdentifier int64  `json:"parent_id"`
}

// IsNested reports whether the group lives under a parent group.
func (group Group) IsNested() bool {
	return group.ParentIdentifier != 0
}

// CreationPayload builds the request body that recreates the group on the
// destination. The parent identifier must already be translated to the
// destination's identifier space by the caller.
func (group Group) CreationPayload(destinationParentIdentifier int64) map[string]any {
	creationPayload := map[string]any{
		"name":        group.Name,
		"path":        group.Path,
		"description": group.Description,
		"visibility":  group.Visibility,
	}
	if destinationParentIdentifier != 0 {
		creationPayload["parent_id"] = destinationParentIdentifier
	}
	return creationPayload
}

// MemberBinding attaches a user to a group or project at an access level.
type MemberBinding struct {
	UserIdentifier int64       `json:"id"`
	Username       string      `json:"username"`
	AccessLevel    AccessLevel `json:"access_level"`
	ExpiresAt      string      `json:"expires_at,omitempty"`
}

// CreationPayload builds the membership request body for the destination,
// addressing the user by their destination identifier.
func (memberBinding MemberBinding) CreationPayload(destinationUserIdentifier int64) map[string]any {
	creationPayload := map[string]any{
		"user_id":      destinationUserIdentifier,
		"access_level": int(memberBinding.AccessLevel),
	}
	if len(memberBinding.ExpiresAt) > 0 {
		creationPayload["expires_at"] = memberBinding.ExpiresAt
	}
	return creationPayload
}
