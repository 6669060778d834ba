package models

import (
	"fmt"
	"net/url"
)

const (
	cloneCredentialUsernameConstant = "oauth2"
	cloneURLParseErrorTemplate      = "unable to parse clone URL %s: %w"
)

// Repository describes the git contents of one project pair: where the bits
// live on the source and where they must be pushed on the destination.
type Repository struct {
	ProjectIdentifier            int64
	DestinationProjectIdentifier int64
	PathWithNamespace            string
	SourceCloneURL               string
	DestinationCloneURL          string
	DefaultBranch                string
	LFSEnabled                   bool
	Empty                        bool
}

// AuthenticatedCloneURL embeds the access token into an HTTP clone URL so git
// can authenticate without prompting. The returned URL must never be logged.
func AuthenticatedCloneURL(cloneURL string, accessToken string) (string, error) {
	parsedURL, parseError := url.Parse(cloneURL)
	if parseError != nil {
		return "", fmt.Errorf(cloneURLParseErrorTemplate, cloneURL, parseError)
	}
	parsedURL.User = url.UserPassword(cloneCredentialUsernameConstant, accessToken)
	return parsedURL.String(), nil
}
