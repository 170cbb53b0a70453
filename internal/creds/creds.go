package creds

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrKeyNotFound means no credential exists for the requested provider. It
// is fatal to the session that needed it, not to the daemon.
var ErrKeyNotFound = errors.New("api key not found")

// Provider resolves an API key for a named provider.
type Provider interface {
	APIKey(provider string) (string, error)
}

// Chain tries each provider in order and returns the first hit.
type Chain []Provider

func (c Chain) APIKey(provider string) (string, error) {
	for _, p := range c {
		key, err := p.APIKey(provider)
		if err == nil && key != "" {
			return key, nil
		}
	}
	return "", fmt.Errorf("%w for provider %q", ErrKeyNotFound, provider)
}

// Static serves keys from an in-memory map, typically filled from the
// config file's providers table.
type Static map[string]string

func (s Static) APIKey(provider string) (string, error) {
	if key := s[provider]; key != "" {
		return key, nil
	}
	return "", fmt.Errorf("%w for provider %q", ErrKeyNotFound, provider)
}

// Env reads OPENAI_API_KEY-style environment variables.
type Env struct{}

func (Env) APIKey(provider string) (string, error) {
	name := strings.ToUpper(strings.ReplaceAll(provider, "-", "_")) + "_API_KEY"
	if key := os.Getenv(name); key != "" {
		return key, nil
	}
	return "", fmt.Errorf("%w in environment (%s)", ErrKeyNotFound, name)
}

// File reads provider=key lines from a credentials file, by default
// ~/.config/voxd/credentials.
type File struct {
	Path string
}

func (f File) APIKey(provider string) (string, error) {
	path := f.Path
	if path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(dir, "voxd", "credentials")
	}

	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrKeyNotFound, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		if strings.TrimSpace(name) == provider {
			if key := strings.TrimSpace(value); key != "" {
				return key, nil
			}
		}
	}
	return "", fmt.Errorf("%w in %s", ErrKeyNotFound, path)
}

// Default is the daemon's resolution order: config-provided keys, then the
// environment, then the credentials file.
func Default(static map[string]string) Provider {
	return Chain{Static(static), Env{}, File{}}
}
