package enrichment

import (
	"strings"

	"link-tracker/internal/domain"

	ua "github.com/mileusna/useragent"
)

// ParseUserAgent derives client details from a User-Agent header
func ParseUserAgent(userAgent string) domain.UAInfo {
	parsed := ua.Parse(userAgent)
	return domain.UAInfo{
		IsMobile: parsed.Mobile || parsed.Tablet,
		IsBot:    parsed.Bot,
		Browser:  strings.TrimSpace(parsed.Name + " " + parsed.Version),
		OS:       strings.TrimSpace(parsed.OS + " " + parsed.OSVersion),
		UAString: userAgent,
	}
}

// ClassifyReferer buckets a Referer header into a traffic source
func ClassifyReferer(referer string) string {
	if referer == "" {
		return "Direct"
	}
	lower := strings.ToLower(referer)

	for _, engine := range []string{"google.", "bing.", "yahoo.", "duckduckgo.", "baidu.", "yandex."} {
		if strings.Contains(lower, engine) {
			return "Search"
		}
	}
	for _, social := range []string{"facebook.", "twitter.", "t.co", "linkedin.", "reddit.", "instagram.", "youtube.", "tiktok.", "discord."} {
		if strings.Contains(lower, social) {
			return "Social"
		}
	}
	return "Referral"
}
