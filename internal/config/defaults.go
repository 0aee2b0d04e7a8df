package config

import (
	"avatarmig/internal/eligibility"
	"avatarmig/internal/profile"
	"avatarmig/internal/signing"
)

const (
	defaultConfigPath            = "~/.config/avatarmig/config.toml"
	projectConfigName            = "avatarmig.toml"
	defaultInputDir              = "~/.local/share/avatarmig/input"
	defaultOutputDir             = "~/.local/share/avatarmig/avatars"
	defaultStateDir              = "~/.local/share/avatarmig/state"
	defaultLogDir                = "~/.local/share/avatarmig/logs"
	defaultTokenURL              = "https://auth.mozilla.auth0.com/oauth/token"
	defaultAudience              = "api.dev.sso.allizom.org"
	defaultPersonAPIBaseURL      = "https://person.api.dev.sso.allizom.org"
	defaultChangeAPIBaseURL      = "https://change.api.dev.sso.allizom.org"
	defaultRequestTimeoutSeconds = 30
	defaultAvatarPathPrefix      = "/avatar/get/id/"
	defaultWorkers               = 4
	defaultSource                = "dir"
	defaultSourceExtension       = ".jpg"
	defaultS3Region              = "us-west-2"
	defaultS3MaxRetries          = 5
	defaultNotifyTimeoutSeconds  = 10
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

var defaultScopes = []string{"read:fullprofile", "display:all"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			InputDir:  defaultInputDir,
			OutputDir: defaultOutputDir,
			StateDir:  defaultStateDir,
			LogDir:    defaultLogDir,
		},
		Auth: Auth{
			TokenURL: defaultTokenURL,
			Audience: defaultAudience,
			Scopes:   append([]string(nil), defaultScopes...),
		},
		PersonAPI: API{BaseURL: defaultPersonAPIBaseURL},
		ChangeAPI: API{BaseURL: defaultChangeAPIBaseURL},
		HTTP: HTTP{
			RequestTimeoutSeconds: defaultRequestTimeoutSeconds,
		},
		Migration: Migration{
			LegacyPrefixes:   []string{eligibility.DefaultLegacyPrefix},
			Display:          string(profile.DisplayStaff),
			Publisher:        string(profile.PublisherMozilliansorg),
			AvatarPathPrefix: defaultAvatarPathPrefix,
			Workers:          defaultWorkers,
			Source:           defaultSource,
			SourceExtension:  defaultSourceExtension,
		},
		S3: S3{
			Region:     defaultS3Region,
			MaxRetries: defaultS3MaxRetries,
		},
		Signing: Signing{
			Backend: string(signing.BackendFile),
			Keys:    map[string]string{},
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNotifyTimeoutSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
