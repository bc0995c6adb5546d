package config

import "strings"

type UpstreamConfig interface {
	GetUpstreamClientID() string
	GetUpstreamClientSecret() string
	GetUpstreamTenant() string
	GetUpstreamScopes() []string
}

type Upstream struct{}

var _ UpstreamConfig = Upstream{}

func (Upstream) GetUpstreamClientID() string {
	return GetEnv("MS_CLIENT_ID", "")
}

func (Upstream) GetUpstreamClientSecret() string {
	return GetEnv("MS_CLIENT_SECRET", "")
}

// GetUpstreamTenant returns the Microsoft Entra tenant segment of the
// authority URL ("common", "organizations", or a tenant GUID).
func (Upstream) GetUpstreamTenant() string {
	return GetEnv("MS_TENANT_ID", "common")
}

func (Upstream) GetUpstreamScopes() []string {
	raw := GetEnv("MS_SCOPES", "openid profile email offline_access User.Read Mail.Read Calendars.Read Files.Read")
	return strings.Fields(raw)
}
