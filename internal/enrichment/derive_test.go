package enrichment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"link-tracker/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==================== GEO ====================

func TestHTTPGeolocator_IPAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/json/203.0.113.5", r.URL.Path)
		assert.Contains(t, r.URL.Query().Get("fields"), "proxy")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","query":"203.0.113.5","isp":"Hetzner Online GmbH",
			"as":"AS24940 Hetzner","country":"Germany","regionName":"Bavaria","city":"Nuremberg",
			"lat":49.45,"lon":11.07,"timezone":"Europe/Berlin","proxy":false,"mobile":false}`))
	}))
	defer srv.Close()
	g := NewHTTPGeolocator("", time.Second).WithBaseURLs(srv.URL, srv.URL)

	info := g.Lookup(context.Background(), "203.0.113.5")

	assert.Empty(t, info.Error)
	assert.Equal(t, "Hetzner Online GmbH", info.Provider)
	assert.Equal(t, "Germany", info.Country)
	assert.Equal(t, "Nuremberg", info.City)
	require.NotNil(t, info.Lat)
	assert.InDelta(t, 49.45, *info.Lat, 0.001)
}

func TestHTTPGeolocator_IPInfoWithToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/198.51.100.2/json", r.URL.Path)
		assert.Equal(t, "secret", r.URL.Query().Get("token"))
		_, _ = w.Write([]byte(`{"ip":"198.51.100.2","org":"AS13335 Cloudflare","country":"US",
			"region":"California","city":"San Francisco","loc":"37.77,-122.41","timezone":"America/Los_Angeles"}`))
	}))
	defer srv.Close()
	g := NewHTTPGeolocator("secret", time.Second).WithBaseURLs(srv.URL, "http://127.0.0.1:1")

	info := g.Lookup(context.Background(), "198.51.100.2")

	assert.Empty(t, info.Error)
	assert.Equal(t, "AS13335 Cloudflare", info.ASN)
	require.NotNil(t, info.Lon)
	assert.InDelta(t, -122.41, *info.Lon, 0.001)
}

func TestHTTPGeolocator_FailureIsReportedInline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"fail","message":"private range"}`))
	}))
	defer srv.Close()
	g := NewHTTPGeolocator("", time.Second).WithBaseURLs(srv.URL, srv.URL)

	info := g.Lookup(context.Background(), "10.0.0.1")

	assert.Equal(t, "10.0.0.1", info.IP)
	assert.Equal(t, "private range", info.Error)
}

func TestHTTPGeolocator_EmptyAddress(t *testing.T) {
	g := NewHTTPGeolocator("", time.Second)

	info := g.Lookup(context.Background(), "")

	assert.NotEmpty(t, info.Error)
}

// ==================== VPN ====================

func TestEvaluateVPN(t *testing.T) {
	tests := []struct {
		name      string
		geo       domain.GeoInfo
		wantScore float64
		wantVPN   bool
		wantProxy bool
	}{
		{"clean residential", domain.GeoInfo{Provider: "Deutsche Telekom AG"}, 0, false, false},
		{"proxy flag", domain.GeoInfo{Proxy: true}, 0.7, false, true},
		{"mobile only", domain.GeoInfo{Mobile: true}, 0.2, false, false},
		{"datacenter provider", domain.GeoInfo{Provider: "DigitalOcean, LLC"}, 0.75, true, true},
		{"vpn in asn", domain.GeoInfo{ASN: "AS9009 M247 NordVPN"}, 0.75, true, true},
		{"proxy and datacenter", domain.GeoInfo{Proxy: true, Provider: "Amazon.com"}, 0.75, true, true},
		{"failed lookup", domain.GeoInfo{Error: "timeout"}, 0, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EvaluateVPN(tt.geo)
			assert.InDelta(t, tt.wantScore, got.Score, 0.0001)
			assert.Equal(t, tt.wantVPN, got.IsVPN)
			assert.Equal(t, tt.wantProxy, got.IsProxy)
			assert.NotNil(t, got.Reasons)
		})
	}
}

// ==================== USER AGENT ====================

func TestParseUserAgent(t *testing.T) {
	desktop := "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	info := ParseUserAgent(desktop)
	assert.True(t, strings.HasPrefix(info.Browser, "Chrome"))
	assert.True(t, strings.HasPrefix(info.OS, "Windows"))
	assert.False(t, info.IsMobile)
	assert.False(t, info.IsBot)
	assert.Equal(t, desktop, info.UAString)

	bot := ParseUserAgent("Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)")
	assert.True(t, bot.IsBot)

	mobile := ParseUserAgent("Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1")
	assert.True(t, mobile.IsMobile)
}

func TestClassifyReferer(t *testing.T) {
	assert.Equal(t, "Direct", ClassifyReferer(""))
	assert.Equal(t, "Search", ClassifyReferer("https://www.google.com/search?q=x"))
	assert.Equal(t, "Social", ClassifyReferer("https://discord.com/channels/1/2"))
	assert.Equal(t, "Referral", ClassifyReferer("https://blog.example.org/post"))
}
