package config

import "time"

type OAuthConfig interface {
	GetAuthCodeTTL() time.Duration
	GetPendingAuthTTL() time.Duration
	GetCodeGenerationLength() int
	GetRefreshTokenLength() int
	GetAccessTokenExpiry() time.Duration
	GetRefreshTokenExpiry() time.Duration
	GetSessionTTL() time.Duration
}

type OAuth struct{}

var _ OAuthConfig = OAuth{}

func (OAuth) GetAuthCodeTTL() time.Duration {
	return GetEnvDuration("AUTH_CODE_TTL", 10*time.Minute)
}

// GetPendingAuthTTL bounds the window between /authorize and the upstream
// provider calling back.
func (OAuth) GetPendingAuthTTL() time.Duration {
	return GetEnvDuration("PENDING_AUTH_TTL", 10*time.Minute)
}

func (OAuth) GetCodeGenerationLength() int {
	return 32
}

func (OAuth) GetRefreshTokenLength() int {
	return 32 // 32 bytes = 256 bits
}

func (OAuth) GetAccessTokenExpiry() time.Duration {
	return GetEnvDuration("ACCESS_TOKEN_TTL", 1*time.Hour)
}

func (OAuth) GetRefreshTokenExpiry() time.Duration {
	return GetEnvDuration("REFRESH_TOKEN_TTL", 14*24*time.Hour)
}

func (OAuth) GetSessionTTL() time.Duration {
	return GetEnvDuration("SESSION_TTL", 30*24*time.Hour)
}

func GetEnvDuration(envVar string, defaultValue time.Duration) time.Duration {
	if raw := GetEnv(envVar, ""); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil {
			return parsed
		}
	}
	return defaultValue
}
