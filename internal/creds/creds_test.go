package creds

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestStatic(t *testing.T) {
	s := Static{"openai": "sk-123"}

	key, err := s.APIKey("openai")
	if err != nil || key != "sk-123" {
		t.Errorf("got %q, %v", key, err)
	}

	if _, err := s.APIKey("missing"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("err = %v, want ErrKeyNotFound", err)
	}
}

func TestEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")

	key, err := Env{}.APIKey("openai")
	if err != nil || key != "sk-env" {
		t.Errorf("got %q, %v", key, err)
	}

	if _, err := (Env{}).APIKey("definitely-unset"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("err = %v, want ErrKeyNotFound", err)
	}
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials")
	content := "# comment line\n\nopenai = sk-file\nother=abc\nmalformed-line\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	f := File{Path: path}

	key, err := f.APIKey("openai")
	if err != nil || key != "sk-file" {
		t.Errorf("got %q, %v", key, err)
	}

	key, err = f.APIKey("other")
	if err != nil || key != "abc" {
		t.Errorf("got %q, %v", key, err)
	}

	if _, err := f.APIKey("absent"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("err = %v, want ErrKeyNotFound", err)
	}
}

func TestFileMissing(t *testing.T) {
	f := File{Path: filepath.Join(t.TempDir(), "nope")}
	if _, err := f.APIKey("openai"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("err = %v, want ErrKeyNotFound", err)
	}
}

func TestChainOrder(t *testing.T) {
	chain := Chain{
		Static{},
		Static{"openai": "second"},
		Static{"openai": "third"},
	}

	key, err := chain.APIKey("openai")
	if err != nil || key != "second" {
		t.Errorf("got %q, %v, want first hit in chain order", key, err)
	}

	if _, err := chain.APIKey("absent"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("err = %v, want ErrKeyNotFound", err)
	}
}

func TestDefaultPrefersConfigKeys(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")

	key, err := Default(map[string]string{"openai": "sk-config"}).APIKey("openai")
	if err != nil || key != "sk-config" {
		t.Errorf("got %q, %v, want the config key to win", key, err)
	}

	key, err = Default(nil).APIKey("openai")
	if err != nil || key != "sk-env" {
		t.Errorf("got %q, %v, want fallback to environment", key, err)
	}
}
