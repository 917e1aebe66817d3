package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

var (
	ErrSettingsFailedToRead  = errors.New("failed to read the settings file")
	ErrSettingsFailedToParse = errors.New("failed to parse the settings file")
)

// Source is a local configuration lookup. An empty string means the
// source has nothing for the key.
type Source interface {
	Lookup(key string) string
}

// Sources queries its sources in priority order. The first non-empty
// value wins; presence of a key with an empty value does not count.
type Sources []Source

func (s Sources) Lookup(key string) string {
	for _, source := range s {
		if v := source.Lookup(key); len(v) > 0 {
			return v
		}
	}
	return ""
}

// EnvSource looks settings up in the process environment, keyed by the
// setting name as-is.
type EnvSource struct{}

func (EnvSource) Lookup(key string) string {
	return os.Getenv(key)
}

// FileSource serves settings from a flat YAML file. A missing file is
// not an error, it is an empty source.
type FileSource struct {
	values map[string]string
}

func NewFileSource(path string) (*FileSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &FileSource{}, nil
		}
		return nil, fmt.Errorf("%w: %s: %w",
			ErrSettingsFailedToRead, path, err,
		)
	}

	values := map[string]string{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("%w: %s: %w",
			ErrSettingsFailedToParse, path, err,
		)
	}

	return &FileSource{values: values}, nil
}

func (f *FileSource) Lookup(key string) string {
	return f.values[key]
}
