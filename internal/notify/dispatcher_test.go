package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"link-tracker/internal/domain"
	"link-tracker/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==================== HELPERS ====================

type stubGeo struct{}

func (stubGeo) Lookup(_ context.Context, ip string) domain.GeoInfo {
	return domain.GeoInfo{IP: ip, Provider: "Example ISP", Country: "NL"}
}

type panicGeo struct{}

func (panicGeo) Lookup(context.Context, string) domain.GeoInfo {
	panic("geo exploded")
}

// blockingSink holds every Send until release is closed
type blockingSink struct {
	entered chan struct{}
	release chan struct{}
}

func (s *blockingSink) Send(ctx context.Context, _ WebhookPayload) error {
	s.entered <- struct{}{}
	select {
	case <-s.release:
	case <-ctx.Done():
	}
	return nil
}

func testCapture(ip string) domain.Capture {
	return domain.Capture{
		Slug:         "0123456789",
		Endpoint:     "/r/0123456789",
		ResourceName: "report.pdf",
		OriginalURL:  "https://example.org/report.pdf",
		Hit:          domain.NewHit(ip, "Mozilla/5.0 (X11; Linux x86_64) Firefox/120.0", ""),
	}
}

func filesWithPrefix(t *testing.T, dir, prefix string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, prefix+"_*.json"))
	require.NoError(t, err)
	return matches
}

// ==================== SINK OUTCOMES ====================

func TestNotify_SinkAccepts(t *testing.T) {
	// Arrange
	var received WebhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()
	dir := t.TempDir()
	d := NewDispatcher(1, 4, NewWebhookSink(srv.URL, time.Second), stubGeo{}, NewFallbackWriter(dir), logger.Discard())
	defer d.Close(context.Background())

	// Act
	d.Notify(context.Background(), testCapture("203.0.113.1"))

	// Assert
	require.Len(t, received.Embeds, 1)
	assert.Equal(t, embedColor, received.Embeds[0].Color)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestNotify_SinkRejects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, "boom")
	}))
	defer srv.Close()
	dir := t.TempDir()
	d := NewDispatcher(1, 4, NewWebhookSink(srv.URL, time.Second), stubGeo{}, NewFallbackWriter(dir), logger.Discard())
	defer d.Close(context.Background())

	d.Notify(context.Background(), testCapture("203.0.113.2"))

	files := filesWithPrefix(t, dir, KindRejected)
	require.Len(t, files, 1)
	assert.Contains(t, filepath.Base(files[0]), "203.0.113.2")
	var record RejectedRecord
	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &record))
	assert.Equal(t, http.StatusInternalServerError, record.StatusCode)
	assert.Equal(t, "boom", record.RespText)
}

func TestNotify_SinkUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	dir := t.TempDir()
	d := NewDispatcher(1, 4, NewWebhookSink(url, time.Second), stubGeo{}, NewFallbackWriter(dir), logger.Discard())
	defer d.Close(context.Background())

	d.Notify(context.Background(), testCapture("203.0.113.3"))

	files := filesWithPrefix(t, dir, KindError)
	require.Len(t, files, 1)
	var record ErrorRecord
	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &record))
	assert.NotEmpty(t, record.Error)
}

func TestNotify_NoSinkWritesFullRecord(t *testing.T) {
	dir := t.TempDir()
	d := NewDispatcher(1, 4, nil, stubGeo{}, NewFallbackWriter(dir), logger.Discard())
	defer d.Close(context.Background())

	d.Notify(context.Background(), testCapture("203.0.113.4"))

	files, err := filepath.Glob(filepath.Join(dir, "embed_203.0.113.4_*.json"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	var record NoSinkRecord
	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &record))
	assert.Equal(t, "NL", record.Geo.Country)
	assert.Equal(t, "0123456789", record.Hit.Slug)
	assert.Equal(t, "https://example.org/report.pdf", record.Hit.OriginalURL)
	require.NotNil(t, record.VPN)
	assert.Len(t, record.Payload.Embeds, 1)
}

func TestNotify_UnsafeAddressInFileName(t *testing.T) {
	dir := t.TempDir()
	d := NewDispatcher(1, 4, nil, stubGeo{}, NewFallbackWriter(dir), logger.Discard())
	defer d.Close(context.Background())

	d.Notify(context.Background(), testCapture("../../etc/x"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, strings.Contains(entries[0].Name(), "/"))
}

// ==================== POOL ====================

func TestSubmit_DrainsOnClose(t *testing.T) {
	var sent atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sent.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	d := NewDispatcher(2, 16, NewWebhookSink(srv.URL, time.Second), stubGeo{}, NewFallbackWriter(t.TempDir()), logger.Discard())

	for i := 0; i < 10; i++ {
		assert.True(t, d.Submit(testCapture("198.51.100.1")))
	}
	require.NoError(t, d.Close(context.Background()))

	assert.EqualValues(t, 10, sent.Load())
}

func TestSubmit_FullQueueIsDeadLettered(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	sink := &blockingSink{entered: make(chan struct{}, 4), release: make(chan struct{})}
	d := NewDispatcher(1, 1, sink, stubGeo{}, NewFallbackWriter(dir), logger.Discard())

	// Act
	require.True(t, d.Submit(testCapture("192.0.2.1")))
	select {
	case <-sink.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("worker never picked up the first capture")
	}
	require.True(t, d.Submit(testCapture("192.0.2.2")))
	accepted := d.Submit(testCapture("192.0.2.3"))

	// Assert
	assert.False(t, accepted)
	files := filesWithPrefix(t, dir, KindDropped)
	require.Len(t, files, 1)
	assert.Contains(t, filepath.Base(files[0]), "192.0.2.3")

	close(sink.release)
	require.NoError(t, d.Close(context.Background()))
}

func TestSubmit_AfterCloseIsDeadLettered(t *testing.T) {
	dir := t.TempDir()
	d := NewDispatcher(1, 4, nil, stubGeo{}, NewFallbackWriter(dir), logger.Discard())
	require.NoError(t, d.Close(context.Background()))

	assert.False(t, d.Submit(testCapture("192.0.2.9")))
	assert.Len(t, filesWithPrefix(t, dir, KindDropped), 1)
}

func TestWorker_RecoversFromPanic(t *testing.T) {
	dir := t.TempDir()
	d := NewDispatcher(1, 4, nil, panicGeo{}, NewFallbackWriter(dir), logger.Discard())

	assert.True(t, d.Submit(testCapture("192.0.2.10")))
	assert.True(t, d.Submit(testCapture("192.0.2.11")))

	// Both captures were consumed without killing the worker
	assert.NoError(t, d.Close(context.Background()))
}

// ==================== PAYLOAD ====================

func TestBuildPayload_TruncatesUserAgent(t *testing.T) {
	c := testCapture("203.0.113.5")
	long := strings.Repeat("é", 1000)

	payload := BuildPayload(Details{Capture: c, UA: domain.UAInfo{UAString: long}})

	fields := payload.Embeds[0].Fields
	uaField := fields[len(fields)-1]
	assert.Equal(t, "User Agent", uaField.Name)
	block := strings.TrimSuffix(strings.TrimPrefix(uaField.Value, "```"), "```")
	assert.LessOrEqual(t, len(block), maxUALength)
	assert.True(t, strings.HasPrefix(long, block))
}

func TestBuildPayload_FieldsAndDescription(t *testing.T) {
	lat, lon := 52.37, 4.89
	vpn := domain.VPNSignal{Score: 0.75, IsVPN: true, IsProxy: true, Reasons: []string{"asn_provider:ovh"}}

	payload := BuildPayload(Details{
		Capture: testCapture("203.0.113.6"),
		Geo:     domain.GeoInfo{IP: "203.0.113.6", Country: "NL", Lat: &lat, Lon: &lon},
		UA:      domain.UAInfo{Browser: "Firefox 120.0", OS: "Linux"},
		VPN:     &vpn,
	})

	embed := payload.Embeds[0]
	assert.Equal(t, embedTitle, embed.Title)
	assert.Contains(t, embed.Description, "Endpoint: /r/0123456789")
	assert.Contains(t, embed.Description, "Resource: report.pdf")
	assert.Contains(t, embed.Description, "Original: https://example.org/report.pdf")
	require.Len(t, embed.Fields, 4)
	assert.Contains(t, embed.Fields[0].Value, "**Coords:** 52.3700,4.8900")
	assert.Contains(t, embed.Fields[1].Value, "Score: 0.75")
	assert.Contains(t, embed.Fields[1].Value, "asn_provider:ovh")
	assert.Contains(t, embed.Fields[2].Value, "Firefox 120.0")
}
