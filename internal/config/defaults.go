package config

const (
	defaultStagingDir         = "~/.local/share/melt/staging"
	defaultLibraryDir         = "~/music"
	defaultLogDir             = "~/.local/share/melt/logs"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultQueuePollInterval  = 2
	defaultErrorRetryInterval = 10
	defaultArtworkTimeout     = 15

	// defaultArtworkFallbackURL stands in when metadata lost its album-art
	// URL; the catalog serves a generic cover at this address.
	defaultArtworkFallbackURL = "https://p4.music.126.net/nSsje95JU5hVylFPzLqWHw==/109951163542280093.jpg"
)

var defaultAudioExtensions = []string{".mp3", ".flac", ".wav", ".aac", ".ogg", ".wma", ".m4a"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			LibraryDir: defaultLibraryDir,
			LogDir:     defaultLogDir,
		},
		Conversion: Conversion{
			Workers:           1,
			EmbedMetadata:     true,
			CopyAudio:         true,
			AudioExtensions:   append([]string(nil), defaultAudioExtensions...),
			OverwriteExisting: false,
		},
		Artwork: Artwork{
			Download:       true,
			RequestTimeout: defaultArtworkTimeout,
			FallbackURL:    defaultArtworkFallbackURL,
		},
		Workflow: Workflow{
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
