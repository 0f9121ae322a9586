// Package secrets reads secret values from Google Secret Manager.
package secrets

import (
	"context"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	smpb "cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// Loader accesses secret versions in one project.
type Loader struct {
	client    *secretmanager.Client
	projectID string
}

// NewLoader creates a Secret Manager client for projectID.
func NewLoader(ctx context.Context, projectID string) (*Loader, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create secret manager client: %w", err)
	}
	return &Loader{client: client, projectID: projectID}, nil
}

// Load returns the payload of secretID. A bare ID resolves to its latest
// version; a full resource name is used as is.
func (l *Loader) Load(ctx context.Context, secretID string) (string, error) {
	name, err := VersionName(l.projectID, secretID)
	if err != nil {
		return "", err
	}
	resp, err := l.client.AccessSecretVersion(ctx, &smpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", fmt.Errorf("access secret %s: %w", secretID, err)
	}
	return strings.TrimSpace(string(resp.GetPayload().GetData())), nil
}

// Close closes the client.
func (l *Loader) Close() error {
	return l.client.Close()
}

// VersionName builds the resource name of a secret version.
func VersionName(projectID, secretID string) (string, error) {
	secretID = strings.TrimSpace(secretID)
	switch {
	case secretID == "":
		return "", fmt.Errorf("secret id is empty")
	case strings.HasPrefix(secretID, "projects/"):
		if !strings.Contains(secretID, "/versions/") {
			return secretID + "/versions/latest", nil
		}
		return secretID, nil
	case projectID == "":
		return "", fmt.Errorf("project id is required for secret %q", secretID)
	default:
		return fmt.Sprintf("projects/%s/secrets/%s/versions/latest", projectID, secretID), nil
	}
}
