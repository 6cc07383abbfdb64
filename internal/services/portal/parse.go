package portal

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/tcsync/internal/common"
	"github.com/ternarybob/tcsync/internal/models"
)

// ParseResultLinks returns the absolute hrefs of anchors matching selector.
// When text is non-empty only anchors whose text contains it are kept.
func ParseResultLinks(html, pageURL, selector, text string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	base, _ := url.Parse(pageURL)
	seen := make(map[string]bool)
	var links []string

	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if text != "" && !strings.Contains(s.Text(), text) {
			return
		}
		href, ok := s.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		link := resolve(base, strings.TrimSpace(href))
		if seen[link] {
			return
		}
		seen[link] = true
		links = append(links, link)
	})

	return links, nil
}

// ParseProfile reads the identity fields from a rendered profile page
func ParseProfile(html, pageURL string, selectors common.PortalSelectors, indexes common.ProfileFieldIndexes) (*models.ProfileFields, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	base, _ := url.Parse(pageURL)
	profile := &models.ProfileFields{URL: pageURL}

	if src, ok := doc.Find(selectors.ProfilePhoto).First().Attr("src"); ok {
		src = strings.TrimSpace(src)
		if src != "" && !strings.Contains(src, selectors.MissingPhotoMarker) {
			profile.PhotoURL = resolve(base, src)
		}
	}

	var values []string
	doc.Find(selectors.ProfileField).Each(func(_ int, s *goquery.Selection) {
		values = append(values, strings.Join(strings.Fields(s.Text()), " "))
	})
	if len(values) == 0 {
		return nil, fmt.Errorf("no profile fields matched %q", selectors.ProfileField)
	}

	at := func(i int) string {
		if i < 0 || i >= len(values) {
			return ""
		}
		return values[i]
	}
	profile.PhotoID = at(indexes.PhotoID)
	profile.EyeColor = at(indexes.EyeColor)
	profile.Height = at(indexes.Height)
	profile.Gender = at(indexes.Gender)
	profile.Phone = at(indexes.Phone)
	profile.Email = at(indexes.Email)
	profile.BirthDate = at(indexes.BirthDate)
	profile.Address = at(indexes.Address)

	doc.Find(selectors.AddToProvider).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !strings.Contains(s.Text(), selectors.AddToProviderText) {
			return true
		}
		if href, ok := s.Attr("href"); ok && href != "" {
			profile.AddToProviderURL = resolve(base, href)
			return false
		}
		return true
	})

	return profile, nil
}

func resolve(base *url.URL, href string) string {
	if base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

func urlQuery(s string) string {
	return url.QueryEscape(strings.TrimSpace(s))
}
