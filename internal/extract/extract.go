// Package extract turns scraped markdown into candidate lead records.
// It handles two page shapes: a single business page, and a directory
// page listing many businesses under headings.
package extract

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/vendmatch/leadgen-cli/internal/model"
)

const (
	// minContentLength rejects pages too short to describe a business.
	minContentLength = 20

	// directoryHeadingThreshold: more headings than this and the page is
	// treated as a directory of businesses rather than a single one.
	directoryHeadingThreshold = 3

	// maxNameLength matches the business_name column width.
	maxNameLength = 255

	// maxFollowLinks caps contact/about links returned per page.
	maxFollowLinks = 3
)

var (
	phoneRe   = regexp.MustCompile(`(?:\+?1[-.\s]?)?(?:\(?\d{3}\)?[-.\s]?)?\d{3}[-.\s]?\d{4}`)
	addressRe = regexp.MustCompile(`(\d+\s+[A-Za-z0-9\s.#,]+?),\s*([A-Za-z\s]+),\s*([A-Z]{2})\s*(\d{5}(?:-\d{4})?)`)
	// websiteRe finds explicit "Website: ..." style labels; bare source
	// URLs are only used as a fallback on single-business pages.
	websiteRe     = regexp.MustCompile(`(?i)(?:website|url|visit|homepage)[:\s]+\[?([^\]\s]+)`)
	headingRe     = regexp.MustCompile(`^#{1,4}\s+`)
	firstHeadRe   = regexp.MustCompile(`^#{1,3}\s+`)
	markdownLink  = regexp.MustCompile(`\[([^\]]*)\]\(([^)]+)\)`)
	followAnchors = []string{"contact", "about", "team", "leadership"}
)

// skipPrefixes are heading texts that never name a business. Matched
// case-insensitively against the start of the heading.
var skipPrefixes = []string{
	"home", "menu", "about", "contact", "search", "login", "sign",
	"privacy", "terms", "cookie", "faq", "help",
	"filter", "sort", "show", "page", "next", "prev",
}

// Leads extracts zero or more candidates from scraped markdown. The
// fallback city/state fill in when the page does not state a location.
func Leads(markdown, sourceURL, fallbackCity, fallbackState string) []model.Candidate {
	if len(markdown) < minContentLength {
		return nil
	}

	lines := strings.Split(markdown, "\n")

	headingCount := 0
	for _, l := range lines {
		if strings.HasPrefix(l, "##") || strings.HasPrefix(l, "###") {
			headingCount++
		}
	}

	if headingCount > directoryHeadingThreshold {
		return directoryLeads(lines, sourceURL, fallbackCity, fallbackState)
	}
	return singlePageLead(lines, markdown, sourceURL, fallbackCity, fallbackState)
}

// directoryLeads splits the page into heading-delimited blocks and
// extracts each block independently.
func directoryLeads(lines []string, sourceURL, fallbackCity, fallbackState string) []model.Candidate {
	var candidates []model.Candidate
	var currentName string
	var block strings.Builder

	flush := func() {
		if currentName == "" || block.Len() == 0 {
			return
		}
		if c, ok := extractOne(currentName, block.String(), sourceURL, fallbackCity, fallbackState, true); ok {
			candidates = append(candidates, c)
		}
	}

	for _, line := range lines {
		if headingRe.MatchString(line) {
			flush()
			currentName = strings.TrimSpace(headingRe.ReplaceAllString(line, ""))
			block.Reset()
			continue
		}
		block.WriteString(line)
		block.WriteString("\n")
	}
	flush()

	return candidates
}

// singlePageLead treats the whole document as one business, named by the
// first heading when present.
func singlePageLead(lines []string, markdown, sourceURL, fallbackCity, fallbackState string) []model.Candidate {
	var name string
	for _, l := range lines {
		if firstHeadRe.MatchString(l) {
			name = strings.TrimSpace(firstHeadRe.ReplaceAllString(l, ""))
			break
		}
	}
	if name == "" {
		return nil
	}
	if c, ok := extractOne(name, markdown, sourceURL, fallbackCity, fallbackState, false); ok {
		return []model.Candidate{c}
	}
	return nil
}

// extractOne scans a block of text for phone, address, and website
// signals and assembles a candidate. Returns false when the heading
// matches the non-business skip-list.
func extractOne(name, text, sourceURL, fallbackCity, fallbackState string, isDirectory bool) (model.Candidate, bool) {
	lowered := strings.ToLower(name)
	for _, prefix := range skipPrefixes {
		if strings.HasPrefix(lowered, prefix) {
			return model.Candidate{}, false
		}
	}

	c := model.Candidate{
		BusinessName: truncate(name, maxNameLength),
		City:         fallbackCity,
		State:        fallbackState,
		SourceURL:    sourceURL,
		IsDirectory:  isDirectory,
	}

	if phone := phoneRe.FindString(text); phone != "" {
		c.Phone = strings.TrimSpace(phone)
	}

	// Only the full "street, city, ST zip" shape counts as an address;
	// partial matches are not extracted.
	if m := addressRe.FindStringSubmatch(text); m != nil {
		c.Address = strings.TrimSpace(m[1])
		c.City = strings.TrimSpace(m[2])
		c.State = strings.TrimSpace(m[3])
		c.Zip = strings.TrimSpace(m[4])
	}

	if m := websiteRe.FindStringSubmatch(text); m != nil {
		if u, err := url.Parse(m[1]); err == nil && u.Scheme != "" && u.Host != "" {
			c.Website = u.String()
		}
	}

	// Directory blocks without an explicit website stay empty: defaulting
	// to the directory's own URL would attribute the listing page as
	// every business's site.
	if c.Website == "" && !isDirectory {
		c.Website = sourceURL
	}

	return c, true
}

// FollowLinks returns up to three same-host links whose anchor text
// suggests a contact or about page, resolved against the base URL.
func FollowLinks(markdown, baseURL string) []string {
	base, err := url.Parse(baseURL)
	if err != nil || base.Host == "" {
		return nil
	}

	var links []string
	for _, m := range markdownLink.FindAllStringSubmatch(markdown, -1) {
		anchor := strings.ToLower(m[1])
		matched := false
		for _, kw := range followAnchors {
			if strings.Contains(anchor, kw) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}

		ref, err := url.Parse(m[2])
		if err != nil {
			continue
		}
		resolved := base.ResolveReference(ref)
		if resolved.Host != base.Host {
			continue
		}
		links = append(links, resolved.String())
		if len(links) >= maxFollowLinks {
			break
		}
	}
	return links
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
