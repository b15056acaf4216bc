package domain

import "time"

// JobContext describes the visit that triggered an enrichment job
type JobContext struct {
	IP      string `json:"ip"`
	UA      string `json:"ua"`
	Referer string `json:"referer"`
	Slug    string `json:"slug"`
}

// EnrichmentJob is the transient message carried by the job queue
type EnrichmentJob struct {
	Identifier string     `json:"identifier"`
	Context    JobContext `json:"context"`
}

// Artifacts are the values mined from the enrichment tool's text output
type Artifacts struct {
	URLs    []string `json:"urls"`
	Emails  []string `json:"emails"`
	Phones  []string `json:"phones"`
	Aliases []string `json:"aliases"`
}

// EnrichmentResult is persisted per identifier; a rerun replaces it
type EnrichmentResult struct {
	Identifier string     `json:"identifier"`
	Metadata   JobContext `json:"metadata"`
	FetchedAt  time.Time  `json:"fetched_at"`
	Artifacts
}

// EnrichmentError is persisted per identifier once the retry is exhausted
type EnrichmentError struct {
	Error      string    `json:"error"`
	At         time.Time `json:"at"`
	Identifier string    `json:"identifier"`
}

// GeoInfo is derived from a hit's address. Error is set when the lookup failed.
type GeoInfo struct {
	IP       string   `json:"ip"`
	Provider string   `json:"provider,omitempty"`
	ASN      string   `json:"asn,omitempty"`
	Country  string   `json:"country,omitempty"`
	Region   string   `json:"region,omitempty"`
	City     string   `json:"city,omitempty"`
	Lat      *float64 `json:"lat,omitempty"`
	Lon      *float64 `json:"lon,omitempty"`
	Timezone string   `json:"timezone,omitempty"`
	Mobile   bool     `json:"mobile,omitempty"`
	Proxy    bool     `json:"proxy,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// UAInfo is derived from a hit's user agent
type UAInfo struct {
	IsMobile bool   `json:"is_mobile"`
	IsBot    bool   `json:"is_bot"`
	Browser  string `json:"browser"`
	OS       string `json:"os"`
	UAString string `json:"ua_string"`
}

// VPNSignal is a heuristic verdict on whether the address is a VPN or proxy
type VPNSignal struct {
	IsVPN   bool     `json:"is_vpn"`
	IsProxy bool     `json:"is_proxy"`
	Score   float64  `json:"score"`
	Reasons []string `json:"reasons"`
}
