// Package tenant resolves the tenant slug the client operates on.
// Resolution order (first non-empty value wins):
//  1. CLI flag --tenant
//  2. Environment variable BISTRO_TENANT
//  3. tenant field in config.json
//  4. Subdomain of the configured base URL (acme.api.bistrohq.io → acme)
package tenant

import (
	"net/url"
	"strings"
)

// EnvTenant is the environment variable consulted during resolution.
const EnvTenant = "BISTRO_TENANT"

// Resolver yields the current tenant slug. Slug is synchronous and
// side-effect-free; all sources are captured at construction time.
type Resolver struct {
	flag    string
	env     string
	cfg     string
	baseURL string
}

// NewResolver captures the resolution sources. envValue is the value of
// EnvTenant at startup (passed in so the resolver itself stays pure).
func NewResolver(flagValue, envValue, cfgValue, baseURL string) *Resolver {
	return &Resolver{flag: flagValue, env: envValue, cfg: cfgValue, baseURL: baseURL}
}

// Slug returns the resolved tenant slug, or "" when no source provides one.
// A missing tenant never blocks a request; header injection is best-effort.
func (r *Resolver) Slug() string {
	if r.flag != "" {
		return r.flag
	}
	if r.env != "" {
		return r.env
	}
	if r.cfg != "" {
		return r.cfg
	}
	return slugFromBaseURL(r.baseURL)
}

// slugFromBaseURL extracts a tenant slug from a tenant-scoped base URL
// subdomain. Bare hosts ("api.bistrohq.io", "localhost") yield "".
func slugFromBaseURL(base string) string {
	if base == "" {
		return ""
	}
	u, err := url.Parse(base)
	if err != nil {
		return ""
	}
	host := u.Hostname()
	parts := strings.Split(host, ".")
	// A tenant subdomain needs at least slug + api + domain + tld.
	if len(parts) < 4 {
		return ""
	}
	if parts[1] != "api" {
		return ""
	}
	return parts[0]
}
