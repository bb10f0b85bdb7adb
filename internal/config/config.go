package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	// StagingDir holds decrypted files until the organizer moves them.
	StagingDir string `toml:"staging_dir"`
	// LibraryDir is the destination root for converted and copied audio.
	LibraryDir string `toml:"library_dir"`
	// LogDir holds the log file, the queue database, and the run lock.
	LogDir string `toml:"log_dir"`
}

// Conversion contains settings for the NCM decode pipeline.
type Conversion struct {
	// Workers is the number of parallel conversion workers. Each worker owns
	// its own file handles and cipher state; zero or negative means one
	// worker per CPU.
	Workers int `toml:"workers"`
	// EmbedMetadata controls whether tags and cover art are written into
	// converted files.
	EmbedMetadata bool `toml:"embed_metadata"`
	// CopyAudio mirrors recognized non-NCM audio files into the library.
	CopyAudio bool `toml:"copy_audio"`
	// OverwriteExisting replaces files already present in the library.
	OverwriteExisting bool `toml:"overwrite_existing"`
	// AudioExtensions lists the non-NCM extensions treated as copyable audio.
	AudioExtensions []string `toml:"audio_extensions"`
}

// Artwork contains settings for cover-art retrieval.
type Artwork struct {
	// Download fetches cover art over HTTPS when a container carries only an
	// album-art URL and no embedded image.
	Download bool `toml:"download"`
	// RequestTimeout bounds a single artwork download, in seconds.
	RequestTimeout int `toml:"request_timeout"`
	// FallbackURL is used when metadata is missing its album-art URL.
	FallbackURL string `toml:"fallback_url"`
}

// Workflow contains queue processing intervals.
type Workflow struct {
	// QueuePollInterval is the idle wait between queue polls, in seconds.
	QueuePollInterval int `toml:"queue_poll_interval"`
	// ErrorRetryInterval is the wait after a queue access failure, in seconds.
	ErrorRetryInterval int `toml:"error_retry_interval"`
}

// Logging contains log output configuration.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for melt.
type Config struct {
	Paths      Paths      `toml:"paths"`
	Conversion Conversion `toml:"conversion"`
	Artwork    Artwork    `toml:"artwork"`
	Workflow   Workflow   `toml:"workflow"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/melt/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. A missing file is not
// an error; defaults apply.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return err
	}
	if c.Paths.LibraryDir, err = expandPath(c.Paths.LibraryDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}

	normalized := make([]string, 0, len(c.Conversion.AudioExtensions))
	for _, ext := range c.Conversion.AudioExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized = append(normalized, ext)
	}
	c.Conversion.AudioExtensions = normalized
	return nil
}

// EnsureDirectories creates the directories required for queue processing.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.LibraryDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// AudioExtensionSet returns the copyable extensions as a lookup set.
func (c *Config) AudioExtensionSet() map[string]struct{} {
	set := make(map[string]struct{}, len(c.Conversion.AudioExtensions))
	for _, ext := range c.Conversion.AudioExtensions {
		set[ext] = struct{}{}
	}
	return set
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
