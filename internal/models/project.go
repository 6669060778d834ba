package models

const (
	// NamespaceKindGroup marks a namespace backed by a group.
	NamespaceKindGroup = "group"
	// NamespaceKindUser marks a personal namespace backed by a user account.
	NamespaceKindUser = "user"
)

// Namespace is the group or user a project belongs to.
type Namespace struct {
	Identifier int64  `json:"id"`
	Kind       string `json:"kind"`
	Path       string `json:"path"`
	FullPath   string `json:"full_path"`
}

// IsPersonal reports whether the namespace is a user's personal namespace.
func (namespace Namespace) IsPersonal() bool {
	return namespace.Kind == NamespaceKindUser
}

// Project is a GitLab project together with the repository coordinates needed
// to mirror its contents.
type Project struct {
	Identifier        int64     `json:"id"`
	Name              string    `json:"name"`
	Path              string    `json:"path"`
	PathWithNamespace string    `json:"path_with_namespace"`
	Description       string    `json:"description"`
	Visibility        string    `json:"visibility"`
	DefaultBranch     string    `json:"default_branch"`
	Archived          bool      `json:"archived"`
	LFSEnabled        bool      `json:"lfs_enabled"`
	HTTPCloneURL      string    `json:"http_url_to_repo"`
	SSHCloneURL       string    `json:"ssh_url_to_repo"`
	Namespace         Namespace `json:"namespace"`
	EmptyRepository   bool      `json:"empty_repo"`
}

// CreationPayload builds the request body that recreates the project on the
// destination inside the translated namespace.
func (project Project) CreationPayload(destinationNamespaceIdentifier int64) map[string]any {
	creationPayload := map[string]any{
		"name":        project.Name,
		"path":        project.Path,
		"description": project.Description,
		"visibility":  project.Visibility,
		"lfs_enabled": project.LFSEnabled,
	}
	if destinationNamespaceIdentifier != 0 {
		creationPayload["namespace_id"] = destinationNamespaceIdentifier
	}
	return creationPayload
}

// WithPath returns a copy of the project renamed to the provided path. Both
// the display name and the URL path take the new value.
func (project Project) WithPath(replacementPath string) Project {
	renamedProject := project
	renamedProject.Path = replacementPath
	renamedProject.Name = replacementPath
	return renamedProject
}

// ProtectedBranch is a branch protection rule carried to the destination.
type ProtectedBranch struct {
	Name             string      `json:"name"`
	PushAccessLevel  AccessLevel `json:"push_access_level"`
	MergeAccessLevel AccessLevel `json:"merge_access_level"`
}

// CreationPayload builds the branch protection request body.
func (protectedBranch ProtectedBranch) CreationPayload() map[string]any {
	return map[string]any{
		"name":               protectedBranch.Name,
		"push_access_level":  int(protectedBranch.PushAccessLevel),
		"merge_access_level": int(protectedBranch.MergeAccessLevel),
	}
}

// ProjectHook is a project webhook carried to the destination.
type ProjectHook struct {
	URL                 string `json:"url"`
	PushEvents          bool   `json:"push_events"`
	MergeRequestsEvents bool   `json:"merge_requests_events"`
	TagPushEvents       bool   `json:"tag_push_events"`
	IssuesEvents        bool   `json:"issues_events"`
	EnableSSLVerify     bool   `json:"enable_ssl_verification"`
}

// CreationPayload builds the webhook request body.
func (projectHook ProjectHook) CreationPayload() map[string]any {
	return map[string]any{
		"url":                     projectHook.URL,
		"push_events":             projectHook.PushEvents,
		"merge_requests_events":   projectHook.MergeRequestsEvents,
		"tag_push_events":         projectHook.TagPushEvents,
		"issues_events":           projectHook.IssuesEvents,
		"enable_ssl_verification": projectHook.EnableSSLVerify,
	}
}
