package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"link-tracker/internal/domain"

	geoip2 "github.com/oschwald/geoip2-golang"
)

// Geolocator resolves an address to location details. Failures are reported
// through GeoInfo.Error, never as a Go error.
type Geolocator interface {
	Lookup(ctx context.Context, ip string) domain.GeoInfo
}

// ==================== HTTP LOOKUP ====================

const (
	defaultIPInfoBase = "https://ipinfo.io"
	defaultIPAPIBase  = "http://ip-api.com"
	ipAPIFields       = "status,message,country,regionName,city,lat,lon,isp,as,timezone,proxy,mobile,query"
)

// HTTPGeolocator queries ipinfo.io when a token is configured, falling back
// to ip-api.com otherwise or when ipinfo does not answer.
type HTTPGeolocator struct {
	client     *http.Client
	token      string
	ipinfoBase string
	ipapiBase  string
}

func NewHTTPGeolocator(token string, timeout time.Duration) *HTTPGeolocator {
	return &HTTPGeolocator{
		client:     &http.Client{Timeout: timeout},
		token:      token,
		ipinfoBase: defaultIPInfoBase,
		ipapiBase:  defaultIPAPIBase,
	}
}

// WithBaseURLs points the lookups at other hosts
func (g *HTTPGeolocator) WithBaseURLs(ipinfo, ipapi string) *HTTPGeolocator {
	g.ipinfoBase = strings.TrimRight(ipinfo, "/")
	g.ipapiBase = strings.TrimRight(ipapi, "/")
	return g
}

type ipinfoResponse struct {
	IP       string `json:"ip"`
	Org      string `json:"org"`
	Country  string `json:"country"`
	Region   string `json:"region"`
	City     string `json:"city"`
	Loc      string `json:"loc"`
	Timezone string `json:"timezone"`
}

type ipapiResponse struct {
	Status     string   `json:"status"`
	Message    string   `json:"message"`
	Query      string   `json:"query"`
	ISP        string   `json:"isp"`
	AS         string   `json:"as"`
	Country    string   `json:"country"`
	RegionName string   `json:"regionName"`
	City       string   `json:"city"`
	Lat        *float64 `json:"lat"`
	Lon        *float64 `json:"lon"`
	Timezone   string   `json:"timezone"`
	Mobile     bool     `json:"mobile"`
	Proxy      bool     `json:"proxy"`
}

func (g *HTTPGeolocator) Lookup(ctx context.Context, ip string) domain.GeoInfo {
	if ip == "" {
		return domain.GeoInfo{Error: "no address"}
	}

	if g.token != "" {
		if info, err := g.lookupIPInfo(ctx, ip); err == nil {
			return info
		}
	}

	info, err := g.lookupIPAPI(ctx, ip)
	if err != nil {
		return domain.GeoInfo{IP: ip, Error: err.Error()}
	}
	return info
}

func (g *HTTPGeolocator) getJSON(ctx context.Context, endpoint string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("lookup returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (g *HTTPGeolocator) lookupIPInfo(ctx context.Context, ip string) (domain.GeoInfo, error) {
	endpoint := fmt.Sprintf("%s/%s/json?token=%s", g.ipinfoBase, url.PathEscape(ip), url.QueryEscape(g.token))

	var body ipinfoResponse
	if err := g.getJSON(ctx, endpoint, &body); err != nil {
		return domain.GeoInfo{}, err
	}

	info := domain.GeoInfo{
		IP:       orElse(body.IP, ip),
		Provider: body.Org,
		ASN:      body.Org,
		Country:  body.Country,
		Region:   body.Region,
		City:     body.City,
		Timezone: body.Timezone,
	}
	if lat, lon, ok := strings.Cut(body.Loc, ","); ok {
		info.Lat = parseCoord(lat)
		info.Lon = parseCoord(lon)
	}
	return info, nil
}

func (g *HTTPGeolocator) lookupIPAPI(ctx context.Context, ip string) (domain.GeoInfo, error) {
	endpoint := fmt.Sprintf("%s/json/%s?fields=%s", g.ipapiBase, url.PathEscape(ip), ipAPIFields)

	var body ipapiResponse
	if err := g.getJSON(ctx, endpoint, &body); err != nil {
		return domain.GeoInfo{}, err
	}
	if body.Status != "success" {
		return domain.GeoInfo{}, errors.New(orElse(body.Message, "lookup_failed"))
	}

	return domain.GeoInfo{
		IP:       orElse(body.Query, ip),
		Provider: body.ISP,
		ASN:      body.AS,
		Country:  body.Country,
		Region:   body.RegionName,
		City:     body.City,
		Lat:      body.Lat,
		Lon:      body.Lon,
		Timezone: body.Timezone,
		Mobile:   body.Mobile,
		Proxy:    body.Proxy,
	}, nil
}

// ==================== LOCAL DATABASE ====================

// MaxMindGeolocator reads a local GeoIP2/GeoLite2 City database
type MaxMindGeolocator struct {
	db *geoip2.Reader
}

// NewMaxMindGeolocator opens the database at path
func NewMaxMindGeolocator(path string) (*MaxMindGeolocator, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open GeoIP database: %w", err)
	}
	return &MaxMindGeolocator{db: db}, nil
}

func (g *MaxMindGeolocator) Close() error {
	return g.db.Close()
}

func (g *MaxMindGeolocator) Lookup(_ context.Context, ip string) domain.GeoInfo {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return domain.GeoInfo{IP: ip, Error: "invalid address"}
	}

	record, err := g.db.City(parsed)
	if err != nil {
		return domain.GeoInfo{IP: ip, Error: err.Error()}
	}

	info := domain.GeoInfo{
		IP:       ip,
		Provider: "maxmind",
		Country:  record.Country.IsoCode,
		City:     record.City.Names["en"],
		Timezone: record.Location.TimeZone,
		Proxy:    record.Traits.IsAnonymousProxy,
	}
	if len(record.Subdivisions) > 0 {
		info.Region = record.Subdivisions[0].Names["en"]
	}
	if record.Location.Latitude != 0 || record.Location.Longitude != 0 {
		lat, lon := record.Location.Latitude, record.Location.Longitude
		info.Lat, info.Lon = &lat, &lon
	}
	return info
}

func parseCoord(s string) *float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil
	}
	return &v
}

func orElse(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
