package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/claimlens/backend/pkg/logger"
)

// ErrSearchUnavailable means the web search backend could not produce any
// results for operational reasons. Zero matching results is not this error.
var ErrSearchUnavailable = errors.New("web search unavailable")

type Client struct {
	serpAPIKey string
	httpClient *http.Client
}

type Result struct {
	Title       string
	URL         string
	Snippet     string
	Content     string
	PublishedAt *time.Time
}

func NewClient(serpAPIKey string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		serpAPIKey: serpAPIKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Search runs the query against SerpAPI when a key is configured, otherwise
// falls back to scraping Google results directly.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	logger.Info("Performing web search", zap.String("query", query))

	if c.serpAPIKey != "" {
		return c.searchWithSerpAPI(ctx, query, maxResults)
	}

	return c.searchWithGoogle(ctx, query, maxResults)
}

func (c *Client) searchWithSerpAPI(ctx context.Context, query string, maxResults int) ([]Result, error) {
	params := url.Values{}
	params.Add("q", query)
	params.Add("api_key", c.serpAPIKey)
	params.Add("num", fmt.Sprintf("%d", maxResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("https://serpapi.com/search?%s", params.Encode()), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchUnavailable, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrSearchUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: search returned status %d", ErrSearchUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchUnavailable, err)
	}

	var searchResp struct {
		OrganicResults []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
			Date    string `json:"date"`
		} `json:"organic_results"`
	}

	if err := json.Unmarshal(body, &searchResp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchUnavailable, err)
	}

	results := make([]Result, 0, len(searchResp.OrganicResults))
	for _, r := range searchResp.OrganicResults {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		content, err := c.scrapeContent(ctx, r.Link)
		if err != nil {
			logger.Warn("Failed to scrape content", zap.String("url", r.Link), zap.Error(err))
			content = r.Snippet
		}

		results = append(results, Result{
			Title:       r.Title,
			URL:         r.Link,
			Snippet:     r.Snippet,
			Content:     content,
			PublishedAt: parseResultDate(r.Date),
		})
	}

	logger.Info("Web search completed", zap.Int("results", len(results)))

	return results, nil
}

func (c *Client) searchWithGoogle(ctx context.Context, query string, maxResults int) ([]Result, error) {
	searchURL := fmt.Sprintf("https://www.google.com/search?q=%s&num=%d",
		url.QueryEscape(query), maxResults)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchUnavailable, err)
	}

	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrSearchUnavailable, err)
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse HTML: %v", ErrSearchUnavailable, err)
	}

	results := make([]Result, 0)
	doc.Find("div.g").Each(func(i int, s *goquery.Selection) {
		if i >= maxResults || ctx.Err() != nil {
			return
		}

		title := s.Find("h3").Text()
		link, _ := s.Find("a").Attr("href")
		snippet := s.Find("div.VwiC3b").Text()

		if title != "" && link != "" {
			content, err := c.scrapeContent(ctx, link)
			if err != nil {
				content = snippet
			}

			results = append(results, Result{
				Title:   title,
				URL:     link,
				Snippet: snippet,
				Content: content,
			})
		}
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger.Info("Google search completed", zap.Int("results", len(results)))

	return results, nil
}

func (c *Client) scrapeContent(ctx context.Context, urlStr string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", err
	}

	doc.Find("script, style, nav, footer, header").Remove()
	text := strings.TrimSpace(doc.Find("body").Text())

	return truncateText(text, 5000), nil
}

// truncateText caps the byte length without splitting a rune.
func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

var dateLayouts = []string{
	"Jan 2, 2006",
	"2006-01-02",
	time.RFC3339,
}

func parseResultDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
