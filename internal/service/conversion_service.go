package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"link-tracker/internal/domain"
	"link-tracker/internal/metrics"
	"link-tracker/internal/repository"
	"link-tracker/pkg/validator"
)

// maxCreateAttempts bounds retries when a freshly minted slug is taken
// between the existence check and the insert
const maxCreateAttempts = 3

// ConvertRequest is the input to Convert
type ConvertRequest struct {
	URL        string
	Prefer     domain.Prefer
	Identifier string
	Name       string
	Meta       map[string]any
}

// ConvertResult describes the converted link. Slug is empty in append mode.
type ConvertResult struct {
	Mode domain.ConversionMode
	URL  string
	Slug string
}

// ConversionService decides between append and redirect mode and mints
// redirect records
type ConversionService struct {
	repo       repository.RedirectRepository
	minter     *SlugMinter
	publicBase string
	allowlist  []string
	logger     *slog.Logger
}

func NewConversionService(repo repository.RedirectRepository, minter *SlugMinter, publicBase string, allowlist []string, logger *slog.Logger) *ConversionService {
	return &ConversionService{
		repo:       repo,
		minter:     minter,
		publicBase: strings.TrimRight(publicBase, "/"),
		allowlist:  allowlist,
		logger:     logger,
	}
}

// Convert applies the conversion policy.
//
//  1. Invite links are always redirected.
//  2. prefer=append, or prefer=auto on an allow-listed host, appends the
//     marker and persists nothing.
//  3. Everything else gets a new slug.
func (s *ConversionService) Convert(ctx context.Context, req ConvertRequest) (*ConvertResult, error) {
	if err := validator.ValidateURL(req.URL); err != nil {
		if errors.Is(err, validator.ErrEmptyURL) {
			return nil, domain.ErrMissingURL
		}
		return nil, err
	}
	parsed, _ := url.Parse(req.URL)

	prefer := req.Prefer
	if prefer == "" {
		prefer = domain.PreferAuto
	}
	if IsInviteLink(parsed) {
		prefer = domain.PreferRedirect
	}

	if prefer == domain.PreferAppend || (prefer == domain.PreferAuto && IsAllowlisted(parsed, s.allowlist)) {
		metrics.RecordConversion(string(domain.ModeAppend))
		return &ConvertResult{Mode: domain.ModeAppend, URL: AppendMarker(req.URL)}, nil
	}

	redirect, err := s.createRedirect(ctx, req)
	if err != nil {
		return nil, err
	}

	metrics.RecordConversion(string(domain.ModeRedirect))
	s.logger.Info("Redirect created", "slug", redirect.Slug, "has_identifier", redirect.HasIdentifier())
	return &ConvertResult{
		Mode: domain.ModeRedirect,
		URL:  s.publicBase + "/r/" + redirect.Slug,
		Slug: redirect.Slug,
	}, nil
}

func (s *ConversionService) createRedirect(ctx context.Context, req ConvertRequest) (*domain.Redirect, error) {
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		slug, err := s.minter.Mint(ctx)
		if err != nil {
			return nil, err
		}

		redirect := domain.NewRedirect(slug, req.URL, req.Identifier, req.Name, req.Meta)
		err = s.repo.Create(ctx, redirect)
		if errors.Is(err, domain.ErrSlugConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create redirect: %w", err)
		}
		return redirect, nil
	}
	return nil, domain.ErrSlugExhausted
}

// IsInviteLink reports chat invite links, which never survive a modified query
func IsInviteLink(u *url.URL) bool {
	host := strings.ToLower(u.Hostname())
	path := strings.ToLower(u.Path)
	if strings.HasSuffix(host, "discord.gg") {
		return true
	}
	return strings.Contains(host, "discord.com") && strings.Contains(path, "/invite")
}

// IsAllowlisted reports whether the host ends with one of the allow-list entries
func IsAllowlisted(u *url.URL, allowlist []string) bool {
	host := strings.ToLower(u.Hostname())
	for _, entry := range allowlist {
		if entry = strings.ToLower(strings.TrimSpace(entry)); entry != "" && strings.HasSuffix(host, entry) {
			return true
		}
	}
	return false
}

// AppendMarker adds orig=1 to the query, keeping everything else as is
func AppendMarker(raw string) string {
	sep := "?"
	if strings.Contains(raw, "?") {
		sep = "&"
	}
	return raw + sep + domain.AppendMarker
}
