package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// Confidence is how much an identity can be trusted to name one client.
type Confidence string

const (
	ConfidenceAddress     Confidence = "network-address"
	ConfidenceFingerprint Confidence = "behavioral-fingerprint"
	ConfidenceUnknown     Confidence = "unknown"
)

// Divisor returns the factor a nominal limit is divided by for identities
// of this confidence.
func (c Confidence) Divisor() int {
	switch c {
	case ConfidenceAddress:
		return 1
	case ConfidenceFingerprint:
		return 2
	default:
		return 4
	}
}

// Identity ID prefixes.
const (
	addressPrefix     = "ip:"
	fingerprintPrefix = "fp:"
	UnknownID         = "unknown"
)

// DefaultProviderHeader is the client address header set by Cloudflare.
const DefaultProviderHeader = "CF-Connecting-IP"

// fingerprintHeaders contribute to the behavioral fingerprint, in order.
var fingerprintHeaders = []string{
	"User-Agent",
	"Accept-Language",
	"Sec-CH-UA",
	"Sec-CH-UA-Platform",
	"Sec-CH-UA-Mobile",
}

// ClientIdentity is a rate limit bucket owner. It is derived per request and
// must not be used as a user identity.
type ClientIdentity struct {
	ID         string
	Confidence Confidence

	// Source names the trust policy that produced the identity.
	Source string
}

// IdentityConfig controls which request metadata is trusted.
type IdentityConfig struct {
	// TrustProviderHeader enables ProviderHeader. It is never enabled by
	// the header merely being present.
	TrustProviderHeader bool
	ProviderHeader      string

	// TrustPeerAddress uses the TCP peer address when no forwarding
	// header yields an address. Only safe when the service is reachable
	// directly rather than through a proxy.
	TrustPeerAddress bool
}

// TrustPolicy is one step of identity extraction.
type TrustPolicy struct {
	Name string

	// Enabled reports whether the policy applies under cfg.
	Enabled func(cfg IdentityConfig) bool

	// Extract returns an identity, or false when the request carries
	// nothing usable for this policy.
	Extract func(r *http.Request, cfg IdentityConfig) (ClientIdentity, bool)
}

func always(IdentityConfig) bool { return true }

// DefaultTrustPolicies returns the trust policies in priority order: provider
// header, X-Forwarded-For, X-Real-IP, peer address, behavioral fingerprint.
func DefaultTrustPolicies() []TrustPolicy {
	return []TrustPolicy{
		{
			Name:    "provider",
			Enabled: func(cfg IdentityConfig) bool { return cfg.TrustProviderHeader },
			Extract: func(r *http.Request, cfg IdentityConfig) (ClientIdentity, bool) {
				return addressIdentity(r.Header.Get(cfg.providerHeader()), "provider")
			},
		},
		{
			Name:    "forwarded",
			Enabled: always,
			Extract: func(r *http.Request, _ IdentityConfig) (ClientIdentity, bool) {
				first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ",")
				return addressIdentity(first, "forwarded")
			},
		},
		{
			Name:    "real-ip",
			Enabled: always,
			Extract: func(r *http.Request, _ IdentityConfig) (ClientIdentity, bool) {
				return addressIdentity(r.Header.Get("X-Real-IP"), "real-ip")
			},
		},
		{
			Name:    "peer",
			Enabled: func(cfg IdentityConfig) bool { return cfg.TrustPeerAddress },
			Extract: func(r *http.Request, _ IdentityConfig) (ClientIdentity, bool) {
				return addressIdentity(r.RemoteAddr, "peer")
			},
		},
		{
			Name:    "fingerprint",
			Enabled: always,
			Extract: func(r *http.Request, _ IdentityConfig) (ClientIdentity, bool) {
				return fingerprintIdentity(r.Header)
			},
		},
	}
}

func (cfg IdentityConfig) providerHeader() string {
	if cfg.ProviderHeader == "" {
		return DefaultProviderHeader
	}
	return cfg.ProviderHeader
}

// Identifier derives client identities.
type Identifier struct {
	config   IdentityConfig
	policies []TrustPolicy
}

// NewIdentifier creates an identifier using the default policies.
func NewIdentifier(cfg IdentityConfig) *Identifier {
	return NewIdentifierWithPolicies(cfg, DefaultTrustPolicies())
}

// NewIdentifierWithPolicies creates an identifier with a custom policy list.
func NewIdentifierWithPolicies(cfg IdentityConfig, policies []TrustPolicy) *Identifier {
	return &Identifier{config: cfg, policies: policies}
}

// Identify returns the identity produced by the first enabled policy that
// can extract one, or the unknown identity.
func (i *Identifier) Identify(r *http.Request) ClientIdentity {
	for _, p := range i.policies {
		if p.Enabled != nil && !p.Enabled(i.config) {
			continue
		}
		if id, ok := p.Extract(r, i.config); ok {
			return id
		}
	}
	return ClientIdentity{ID: UnknownID, Confidence: ConfidenceUnknown, Source: "unknown"}
}

// addressIdentity validates raw as an IP address, optionally with a port.
func addressIdentity(raw, source string) (ClientIdentity, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ClientIdentity{}, false
	}

	addr, err := netip.ParseAddr(raw)
	if err != nil {
		host, _, splitErr := net.SplitHostPort(raw)
		if splitErr != nil {
			return ClientIdentity{}, false
		}
		if addr, err = netip.ParseAddr(host); err != nil {
			return ClientIdentity{}, false
		}
	}

	return ClientIdentity{
		ID:         addressPrefix + addr.Unmap().WithZone("").String(),
		Confidence: ConfidenceAddress,
		Source:     source,
	}, true
}

func fingerprintIdentity(h http.Header) (ClientIdentity, bool) {
	var (
		b       strings.Builder
		present bool
	)
	for _, name := range fingerprintHeaders {
		v := strings.TrimSpace(h.Get(name))
		if v != "" {
			present = true
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(v)
		b.WriteByte('\n')
	}
	if !present {
		return ClientIdentity{}, false
	}

	sum := sha256.Sum256([]byte(b.String()))
	return ClientIdentity{
		ID:         fingerprintPrefix + hex.EncodeToString(sum[:8]),
		Confidence: ConfidenceFingerprint,
		Source:     "fingerprint",
	}, true
}
