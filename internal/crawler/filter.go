package crawler

import (
	"fmt"
	"net/url"
	"strings"

	"prop-crawler/pkg/models"
)

type URLFilter interface {
	Filter(kind models.WorkKind, link string) bool
}

// DetailFilter accepts property detail pages, which live under a sale or
// rent section of the listing site.
type DetailFilter struct {
	Sections []string
}

func (filter DetailFilter) Filter(kind models.WorkKind, link string) bool {
	if kind != models.DetailPage {
		return false
	}
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	for _, section := range filter.Sections {
		if strings.HasPrefix(u.Path, section) {
			return true
		}
	}
	return false
}

type InDomainFilter struct {
	Domain string
}

func NewInDomainFilter(startURL string) (*InDomainFilter, error) {
	u, err := url.Parse(startURL)
	if err != nil {
		return nil, fmt.Errorf("invalid start URL: %w", err)
	}

	// Strip "www." to allow subdomains
	host := u.Hostname()
	domain := strings.TrimPrefix(host, "www.")

	if domain == "" {
		return nil, fmt.Errorf("could not extract domain from %s", startURL)
	}

	return &InDomainFilter{Domain: domain}, nil
}

func (filter InDomainFilter) Filter(kind models.WorkKind, link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}

	return strings.Contains(strings.ToLower(u.Host), strings.ToLower(filter.Domain))
}

// All passes a link only if every filter does.
type All []URLFilter

func (filters All) Filter(kind models.WorkKind, link string) bool {
	for _, f := range filters {
		if !f.Filter(kind, link) {
			return false
		}
	}
	return true
}

// ResolveURL resolves href against base ("/about" -> "https://site.com/about").
func ResolveURL(base, href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ""
	}
	return baseURL.ResolveReference(u).String()
}
