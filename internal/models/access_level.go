package models

// AccessLevel is a GitLab membership access level. Higher values grant
// strictly more permissions.
type AccessLevel int

// GitLab access levels, ordered by increasing permission.
const (
	AccessLevelGuest      AccessLevel = 10
	AccessLevelReporter   AccessLevel = 20
	AccessLevelDeveloper  AccessLevel = 30
	AccessLevelMaintainer AccessLevel = 40
	AccessLevelOwner      AccessLevel = 50
)

const unknownAccessLevelNameConstant = "unknown"

var accessLevelNames = map[AccessLevel]string{
	AccessLevelGuest:      "guest",
	AccessLevelReporter:   "reporter",
	AccessLevelDeveloper:  "developer",
	AccessLevelMaintainer: "maintainer",
	AccessLevelOwner:      "owner",
}

// String names the access level for logs and reports.
func (accessLevel AccessLevel) String() string {
	if accessLevelName, nameKnown := accessLevelNames[accessLevel]; nameKnown {
		return accessLevelName
	}
	return unknownAccessLevelNameConstant
}

// AtLeast reports whether the level grants the permissions of the other level.
func (accessLevel AccessLevel) AtLeast(otherLevel AccessLevel) bool {
	return accessLevel >= otherLevel
}
