// Package gcp builds Google API client options shared by the speech and
// text-to-speech providers.
package gcp

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
)

// CloudPlatformScope covers both Speech-to-Text and Text-to-Speech.
const CloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// ClientOptions picks credentials in order: API key, service-account JSON
// file, then application default credentials.
func ClientOptions(apiKey, credentialsFile string) ([]option.ClientOption, error) {
	if apiKey != "" {
		return []option.ClientOption{option.WithAPIKey(apiKey)}, nil
	}
	creds, err := Credentials(credentialsFile)
	if err != nil {
		return nil, err
	}
	return []option.ClientOption{option.WithCredentials(creds)}, nil
}

// Credentials loads credentialsFile, or the application default credentials
// when it is empty. The token source keeps the context it was built with
// for every refresh, so it is always built on context.Background.
func Credentials(credentialsFile string) (*google.Credentials, error) {
	ctx := context.Background()
	if credentialsFile == "" {
		creds, err := google.FindDefaultCredentials(ctx, CloudPlatformScope)
		if err != nil {
			return nil, fmt.Errorf("find default google credentials: %w", err)
		}
		return creds, nil
	}

	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read google credentials: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, CloudPlatformScope)
	if err != nil {
		return nil, fmt.Errorf("parse google credentials: %w", err)
	}
	return creds, nil
}
