package iotlab

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoCredentials means neither the environment nor the rc file had any.
var ErrNoCredentials = errors.New("no testbed credentials")

// DefaultRCPath is the credentials file written by the testbed CLI tools.
func DefaultRCPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".iotlabrc"
	}
	return filepath.Join(home, ".iotlabrc")
}

// ReadRC parses a `user:base64(password)` credentials file.
func ReadRC(path string) (user, password string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", "", ErrNoCredentials
		}
		return "", "", fmt.Errorf("read %s: %w", path, err)
	}
	line := strings.TrimSpace(string(data))
	user, encoded, ok := strings.Cut(line, ":")
	if !ok || user == "" {
		return "", "", fmt.Errorf("%s: malformed credentials", path)
	}
	pw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", "", fmt.Errorf("%s: decode password: %w", path, err)
	}
	return user, string(pw), nil
}
