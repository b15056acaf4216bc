package http

import (
	"bytes"
	_ "embed"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"link-tracker/internal/service"
)

//go:embed templates/holding.html
var holdingHTML string

var holdingTemplate = template.Must(template.New("holding").Parse(holdingHTML))

type holdingView struct {
	Destination  string
	Navigable    bool
	Delay        int
	Refresh      int
	Endpoint     string
	ReceivedAt   string
	ResourceName string
}

// renderHoldingPage writes the countdown page. Automatic navigation is only
// offered for http(s) destinations; anything else is shown as text with a link.
func renderHoldingPage(w http.ResponseWriter, page *service.HoldingPage, logger *slog.Logger) {
	view := holdingView{
		Destination:  page.DestinationURL,
		Navigable:    isWebURL(page.DestinationURL),
		Delay:        page.DelaySeconds,
		Refresh:      page.DelaySeconds + 1,
		Endpoint:     page.Endpoint,
		ReceivedAt:   page.ReceivedAt.Format(time.RFC3339),
		ResourceName: page.ResourceName,
	}

	var buf bytes.Buffer
	if err := holdingTemplate.Execute(&buf, view); err != nil {
		logger.Error("Failed to render holding page", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func isWebURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
