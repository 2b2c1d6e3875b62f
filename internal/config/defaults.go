package config

const (
	defaultInputDir         = "~/slowmo/input"
	defaultOutputDir        = "~/slowmo/output"
	defaultStateDir         = "~/.local/share/slowmo"
	defaultTimeStretch      = 300
	defaultCheckIntervalMS  = 2000
	defaultMarker           = "_processed"
	defaultFFmpegBinary     = "ffmpeg"
	defaultFFprobeBinary    = "ffprobe"
	defaultMaxAttempts      = 3
	defaultVideoCodec       = "libx264"
	defaultCRF              = 18
	defaultPreset           = "medium"
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultLogRetentionDays = 30
	defaultNotifyTimeout    = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			InputDir:  defaultInputDir,
			OutputDir: defaultOutputDir,
			StateDir:  defaultStateDir,
		},
		Processing: Processing{
			TimeStretch:     defaultTimeStretch,
			ApplyBulletTime: true,
			CheckIntervalMS: defaultCheckIntervalMS,
			Marker:          defaultMarker,
		},
		Engine: Engine{
			FFmpegBinary:  defaultFFmpegBinary,
			FFprobeBinary: defaultFFprobeBinary,
			MaxAttempts:   defaultMaxAttempts,
			VideoCodec:    defaultVideoCodec,
			CRF:           defaultCRF,
			Preset:        defaultPreset,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
		},
	}
}
