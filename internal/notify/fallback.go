package notify

import (
	"fmt"
	"path/filepath"
	"time"

	"link-tracker/internal/domain"
	"link-tracker/pkg/fsutil"
)

// Fallback file prefixes
const (
	KindNoSink   = "embed"
	KindRejected = "embed_fail"
	KindError    = "embed_exc"
	KindDropped  = "embed_dropped"
)

// NoSinkRecord is written when no sink is configured
type NoSinkRecord struct {
	Payload WebhookPayload    `json:"payload"`
	Geo     domain.GeoInfo    `json:"geo"`
	VPN     *domain.VPNSignal `json:"vpn"`
	UA      domain.UAInfo     `json:"ua"`
	Hit     HitRecord         `json:"hit"`
}

// RejectedRecord is written when the sink answered non-2xx
type RejectedRecord struct {
	StatusCode int            `json:"status_code"`
	RespText   string         `json:"resp_text"`
	Payload    WebhookPayload `json:"payload"`
}

// ErrorRecord is written when the sink could not be reached
type ErrorRecord struct {
	Error   string         `json:"error"`
	Payload WebhookPayload `json:"payload"`
}

// DroppedRecord is written when the dispatcher queue was full
type DroppedRecord struct {
	Reason string    `json:"reason"`
	Hit    HitRecord `json:"hit"`
}

// HitRecord is the capture as it appears in fallback files
type HitRecord struct {
	Slug         string    `json:"slug"`
	IP           string    `json:"ip"`
	UserAgent    string    `json:"user_agent"`
	Referer      string    `json:"referer"`
	ReceivedAt   time.Time `json:"received_at"`
	Endpoint     string    `json:"endpoint"`
	OriginalURL  string    `json:"original_url"`
	ResourceName string    `json:"resource_name"`
}

func hitRecord(c domain.Capture) HitRecord {
	return HitRecord{
		Slug:         c.Slug,
		IP:           c.Hit.IP,
		UserAgent:    c.Hit.UA,
		Referer:      c.Hit.Referer,
		ReceivedAt:   c.Hit.At,
		Endpoint:     c.Endpoint,
		OriginalURL:  c.OriginalURL,
		ResourceName: c.ResourceName,
	}
}

// FallbackWriter drops JSON documents into a directory
type FallbackWriter struct {
	dir string
	now func() time.Time
}

func NewFallbackWriter(dir string) *FallbackWriter {
	return &FallbackWriter{dir: dir, now: time.Now}
}

// Write stores doc as <kind>_<ip>_<unix nanos>.json and returns the path
func (w *FallbackWriter) Write(kind, ip string, doc any) (string, error) {
	name := fmt.Sprintf("%s_%s_%d.json", kind, fsutil.SafeName(ip), w.now().UnixNano())
	path := filepath.Join(w.dir, name)
	if err := fsutil.WriteJSONAtomic(path, doc); err != nil {
		return "", err
	}
	return path, nil
}
