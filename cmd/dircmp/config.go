package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// fileConfig carries defaults for the command-line flags. Flags the user
// sets explicitly win over the file.
type fileConfig struct {
	// Recursive compares subdirectories found on both sides.
	Recursive bool `yaml:"recursive"`

	// IgnoreFileNameCase matches file names case-insensitively.
	IgnoreFileNameCase bool `yaml:"ignore_file_name_case"`

	// NoDereference compares symbolic links themselves.
	NoDereference bool `yaml:"no_dereference"`

	// NewFile treats absent files and directories as empty.
	NewFile bool `yaml:"new_file"`

	// ReportIdenticalFiles reports matching file pairs too.
	ReportIdenticalFiles bool `yaml:"report_identical_files"`

	// Color is auto, always or never.
	Color string `yaml:"color"`

	// Exclude lists glob patterns applied to every directory read.
	Exclude []string `yaml:"exclude"`
}

func defaultFileConfig() *fileConfig {
	return &fileConfig{
		Color: "auto",
	}
}

// loadFileConfig reads the YAML config at path, or the default location when
// path is empty. A missing file yields defaults, not an error.
func loadFileConfig(path string) (*fileConfig, error) {
	cfg := defaultFileConfig()

	explicit := path != ""
	if !explicit {
		path = defaultConfigPath()
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

func defaultConfigPath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "dircmp", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "dircmp", "config.yaml")
}
