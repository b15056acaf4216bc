package enrichment

import (
	"math"
	"strings"

	"link-tracker/internal/domain"
)

// Hosting and VPN provider names that show up in ISP/ASN strings
var suspiciousProviders = []string{
	"mullvad", "nordvpn", "expressvpn", "surfshark", "vpn", "virtual",
	"digitalocean", "amazon", "google cloud", "hetzner", "linode", "ovh",
	"cloudflare", "aws",
}

// EvaluateVPN scores how likely the address is a VPN or proxy exit, from 0 to 1.
// It only looks at what the geolocator reported; no extra lookups are made.
func EvaluateVPN(geo domain.GeoInfo) domain.VPNSignal {
	signal := domain.VPNSignal{Reasons: []string{}}
	if geo.Error != "" && geo.Provider == "" && geo.ASN == "" {
		return signal
	}

	if geo.Proxy {
		signal.Score = math.Max(signal.Score, 0.7)
		signal.IsProxy = true
		signal.Reasons = append(signal.Reasons, "geo.proxy")
	}

	if geo.Mobile {
		signal.Score = math.Max(signal.Score, 0.2)
		signal.Reasons = append(signal.Reasons, "geo.mobile")
	}

	provider := strings.ToLower(geo.Provider)
	asn := strings.ToLower(geo.ASN)
	for _, name := range suspiciousProviders {
		if strings.Contains(provider, name) || strings.Contains(asn, name) {
			signal.Score = math.Max(signal.Score, 0.75)
			signal.IsVPN = true
			signal.IsProxy = true
			signal.Reasons = append(signal.Reasons, "asn_provider:"+name)
			break
		}
	}

	signal.Score = math.Min(signal.Score, 1)
	return signal
}
