// Package notify forwards captured visits to a webhook sink, falling back to
// JSON files on disk whenever the sink is absent or unhappy.
package notify

import (
	"fmt"
	"strings"
	"time"

	"link-tracker/internal/domain"
	"link-tracker/internal/enrichment"
)

const (
	embedTitle    = "Link Tracker: visit captured"
	embedColor    = 0x2ECC71
	embedUsername = "Link-Tracker"
	maxUALength   = 1500
)

// WebhookPayload is a Discord-compatible webhook body
type WebhookPayload struct {
	Username string  `json:"username"`
	Embeds   []Embed `json:"embeds"`
}

type Embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Color       int          `json:"color"`
	Fields      []EmbedField `json:"fields"`
	Timestamp   string       `json:"timestamp"`
}

type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// Details is everything derived from one capture before it is sent
type Details struct {
	Capture domain.Capture
	Geo     domain.GeoInfo
	UA      domain.UAInfo
	VPN     *domain.VPNSignal
}

// BuildPayload renders the embed for a capture
func BuildPayload(d Details) WebhookPayload {
	fields := []EmbedField{{Name: "IP Info", Value: ipInfoValue(d.Geo, d.Capture.Hit.IP)}}

	if d.VPN != nil {
		reasons := strings.Join(d.VPN.Reasons, ", ")
		if reasons == "" {
			reasons = "none"
		}
		fields = append(fields, EmbedField{
			Name: "VPN/Proxy check",
			Value: fmt.Sprintf("Score: %.2f | VPN: %t | Proxy: %t\nReasons: %s",
				d.VPN.Score, d.VPN.IsVPN, d.VPN.IsProxy, reasons),
		})
	}

	fields = append(fields,
		EmbedField{
			Name: "Client",
			Value: fmt.Sprintf("**OS:** %s\n**Browser:** %s\n**Mobile:** %t\n**Bot:** %t",
				na(d.UA.OS), na(d.UA.Browser), d.UA.IsMobile, d.UA.IsBot),
		},
		EmbedField{Name: "User Agent", Value: "```" + truncate(d.UA.UAString, maxUALength) + "```"},
	)

	c := d.Capture
	description := fmt.Sprintf("Endpoint: %s | Captured: %s\nResource: %s\nOriginal: %s\nSource: %s",
		c.Endpoint,
		c.Hit.At.UTC().Format(time.RFC3339),
		c.ResourceName,
		c.OriginalURL,
		enrichment.ClassifyReferer(c.Hit.Referer),
	)

	return WebhookPayload{
		Username: embedUsername,
		Embeds: []Embed{{
			Title:       embedTitle,
			Description: description,
			Color:       embedColor,
			Fields:      fields,
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
		}},
	}
}

func ipInfoValue(geo domain.GeoInfo, ip string) string {
	coords := "N/A"
	if geo.Lat != nil && geo.Lon != nil {
		coords = fmt.Sprintf("%.4f,%.4f", *geo.Lat, *geo.Lon)
	}
	value := fmt.Sprintf("**IP:** %s\n**Provider:** %s\n**ASN:** %s\n**Country:** %s\n**Region:** %s\n**City:** %s\n**Coords:** %s\n**Timezone:** %s",
		na(orElse(geo.IP, ip)), na(geo.Provider), na(geo.ASN), na(geo.Country),
		na(geo.Region), na(geo.City), coords, na(geo.Timezone))
	if geo.Error != "" {
		value += "\n**Lookup error:** " + geo.Error
	}
	return value
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

func na(s string) string {
	return orElse(s, "N/A")
}

func orElse(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
