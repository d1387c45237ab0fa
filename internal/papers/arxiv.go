// Package papers searches external paper indexes for ingestion candidates.
package papers

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Paper is one search hit from the external index.
type Paper struct {
	Title   string   `json:"title"`
	Authors []string `json:"authors"`
	Summary string   `json:"summary"`
	Year    int      `json:"year"`
	PDFURL  string   `json:"pdfUrl"`
}

// SearchClient finds candidate papers for a topic.
type SearchClient interface {
	Search(ctx context.Context, query string, maxResults int) ([]Paper, error)
}

// ArxivClient queries the arXiv Atom API.
type ArxivClient struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
}

// NewArxivClient constructs an ArxivClient. baseURL defaults to the public
// arXiv query endpoint.
func NewArxivClient(baseURL string) *ArxivClient {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "https://export.arxiv.org/api/query"
	}
	return &ArxivClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		maxRetries: 3,
	}
}

type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title     string       `xml:"title"`
	Summary   string       `xml:"summary"`
	Published string       `xml:"published"`
	Authors   []atomAuthor `xml:"author"`
	Links     []atomLink   `xml:"link"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

type atomLink struct {
	Href  string `xml:"href,attr"`
	Title string `xml:"title,attr"`
	Type  string `xml:"type,attr"`
}

// Search queries arXiv sorted by relevance. Transient failures are retried
// with backoff; a response that parses but has no entries is a valid empty
// result, not an error.
func (c *ArxivClient) Search(ctx context.Context, query string, maxResults int) ([]Paper, error) {
	if maxResults <= 0 {
		maxResults = 10
	}
	params := url.Values{}
	params.Set("search_query", "all:"+query)
	params.Set("max_results", fmt.Sprintf("%d", maxResults))
	params.Set("sortBy", "relevance")
	endpoint := c.baseURL + "?" + params.Encode()

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff(attempt - 1)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		results, retryable, err := c.searchOnce(ctx, endpoint)
		if err == nil {
			return results, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}
	return nil, fmt.Errorf("arxiv search: %w", lastErr)
}

func (c *ArxivClient) searchOnce(ctx context.Context, endpoint string) ([]Paper, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		io.Copy(io.Discard, resp.Body)
		return nil, true, fmt.Errorf("arxiv status %s", resp.Status)
	}
	if resp.StatusCode >= 300 {
		return nil, false, fmt.Errorf("arxiv status %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, err
	}

	var feed atomFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, false, fmt.Errorf("arxiv feed parse: %w", err)
	}

	papers := make([]Paper, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		paper := Paper{
			Title:   collapseWhitespace(entry.Title),
			Summary: collapseWhitespace(entry.Summary),
			Year:    publishedYear(entry.Published),
		}
		for _, a := range entry.Authors {
			if name := strings.TrimSpace(a.Name); name != "" {
				paper.Authors = append(paper.Authors, name)
			}
		}
		paper.PDFURL = pdfLink(entry.Links)
		if paper.Title == "" || paper.PDFURL == "" {
			continue
		}
		papers = append(papers, paper)
	}
	return papers, false, nil
}

func pdfLink(links []atomLink) string {
	for _, l := range links {
		if l.Title == "pdf" || l.Type == "application/pdf" {
			return l.Href
		}
	}
	return ""
}

func publishedYear(published string) int {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(published))
	if err != nil {
		return 0
	}
	return t.Year()
}

// collapseWhitespace flattens the newline-indented text arXiv returns in
// title and summary fields.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func backoff(attempt int) time.Duration {
	base := 500 * time.Millisecond
	d := base << attempt
	if d > 10*time.Second {
		d = 10 * time.Second
	}
	return d
}

var _ SearchClient = (*ArxivClient)(nil)
