package enrichment

import (
	"regexp"
	"strings"

	"link-tracker/internal/domain"

	"github.com/samber/lo"
)

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?\d{6,15}(?:[ \-\(\)]*\d{2,15})?`)
	urlPattern   = regexp.MustCompile(`https?://[^\s'"<>]+`)
	tokenPattern = regexp.MustCompile(`[\w.\-]{3,40}`)

	// A line mentioning one of these sites may carry a handle
	aliasSites = []string{"twitter", "instagram", "facebook", "tiktok", "github", "reddit"}
)

// Extract mines the tool output for URLs, emails, phone numbers and aliases.
// Every list is deduplicated and keeps first-seen order. It never fails;
// empty text yields empty lists.
func Extract(text, identifier string) domain.Artifacts {
	return domain.Artifacts{
		URLs:    uniq(urlPattern.FindAllString(text, -1)),
		Emails:  uniq(emailPattern.FindAllString(text, -1)),
		Phones:  uniq(phonePattern.FindAllString(text, -1)),
		Aliases: uniq(extractAliases(text, identifier)),
	}
}

func extractAliases(text, identifier string) []string {
	lowerIdentifier := strings.ToLower(identifier)
	var aliases []string

	for _, line := range strings.Split(text, "\n") {
		if !strings.Contains(line, ":") {
			continue
		}
		lowerLine := strings.ToLower(line)
		if !lo.SomeBy(aliasSites, func(site string) bool { return strings.Contains(lowerLine, site) }) {
			continue
		}

		for _, token := range tokenPattern.FindAllString(line, -1) {
			if strings.Contains(lowerIdentifier, strings.ToLower(token)) {
				continue
			}
			if startsWithEmail(token) {
				continue
			}
			aliases = append(aliases, token)
		}
	}
	return aliases
}

func startsWithEmail(token string) bool {
	loc := emailPattern.FindStringIndex(token)
	return loc != nil && loc[0] == 0
}

// uniq never returns nil so results always serialise as []
func uniq(values []string) []string {
	if len(values) == 0 {
		return []string{}
	}
	return lo.Uniq(values)
}
