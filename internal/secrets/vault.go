package secrets

import (
	"strings"

	"github.com/phrazzld/apply-orchestrator/internal/domain"
)

// platformDomains maps a known platform name to the registrable domain its
// login pages live on.
var platformDomains = map[string]string{
	"linkedin":     "linkedin.com",
	"indeed":       "indeed.com",
	"glassdoor":    "glassdoor.com",
	"workday":      "myworkdayjobs.com",
	"greenhouse":   "greenhouse.io",
	"lever":        "lever.co",
	"ziprecruiter": "ziprecruiter.com",
}

// DomainFor returns the domain for a credential: its explicit Domain, else the
// platform table entry. ok is false when neither is known.
func DomainFor(cred domain.PlatformCredential) (string, bool) {
	if d := normalizeDomain(cred.Domain); d != "" {
		return d, true
	}
	d, ok := platformDomains[strings.ToLower(strings.TrimSpace(cred.Platform))]
	return d, ok
}

// BuildSecrets maps complete credential pairs into origin-keyed secrets. The
// username is stored under the exact domain and the password under the
// wildcard-subdomain pattern of the same domain. Partial pairs and platforms
// with no known domain are skipped. The result is never nil.
func BuildSecrets(creds []domain.PlatformCredential) domain.SecretMap {
	out := make(domain.SecretMap)
	for _, cred := range creds {
		username := strings.TrimSpace(cred.Username)
		if username == "" || strings.TrimSpace(cred.Password) == "" {
			continue
		}
		host, ok := DomainFor(cred)
		if !ok {
			continue
		}
		out[ExactOrigin(host)] = username
		out[WildcardOrigin(host)] = cred.Password
	}
	return out
}

// ExactOrigin is the key holding the username for host.
func ExactOrigin(host string) string {
	return host
}

// WildcardOrigin is the key holding the password for host.
func WildcardOrigin(host string) string {
	return "*." + host
}

// Values returns the secret values, used to scrub them from log lines.
func Values(m domain.SecretMap) []string {
	out := make([]string, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}

func normalizeDomain(d string) string {
	d = strings.ToLower(strings.TrimSpace(d))
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	d = strings.TrimPrefix(d, "*.")
	d = strings.TrimPrefix(d, "www.")
	if i := strings.IndexAny(d, "/:"); i >= 0 {
		d = d[:i]
	}
	return d
}
