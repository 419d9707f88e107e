package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/jobradar/lmi/internal/job"
)

const (
	userAgent    = "lmi-agent/1.0 (career research tool)"
	fetchTimeout = 30 * time.Second
)

// Fetcher retrieves job postings from one external board.
type Fetcher interface {
	// Name identifies the source platform.
	Name() string

	// Fetch returns postings matching the search term. location may be
	// empty. Fetchers return partial results with a nil error when
	// individual records are malformed.
	Fetch(ctx context.Context, term, location string) ([]job.Posting, error)
}

// RemoteOK fetches from the public RemoteOK API. The API returns the full
// board; filtering by term happens client-side via skill/title matching at
// the caller.
type RemoteOK struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewRemoteOK creates a RemoteOK fetcher. baseURL may be empty for the
// production endpoint.
func NewRemoteOK(baseURL string, client *http.Client, logger *slog.Logger) *RemoteOK {
	if baseURL == "" {
		baseURL = "https://remoteok.com/api"
	}
	if client == nil {
		client = &http.Client{Timeout: fetchTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RemoteOK{baseURL: baseURL, client: client, logger: logger}
}

// Name implements Fetcher.
func (r *RemoteOK) Name() string { return "RemoteOK" }

type remoteOKListing struct {
	Position    string `json:"position"`
	Company     string `json:"company"`
	Location    string `json:"location"`
	Description string `json:"description"`
	Salary      string `json:"salary"`
	URL         string `json:"url"`
	Epoch       int64  `json:"epoch"`
	Type        string `json:"type"`
}

// Fetch implements Fetcher.
func (r *RemoteOK) Fetch(ctx context.Context, term, _ string) ([]job.Posting, error) {
	r.logger.Info("fetching remoteok listings", "term", term)

	data, err := getJSON(ctx, r.client, r.baseURL)
	if err != nil {
		return nil, fmt.Errorf("fetching remoteok: %w", err)
	}

	// First array element is API metadata, not a listing.
	var listings []remoteOKListing
	if err := json.Unmarshal(data, &listings); err != nil {
		return nil, fmt.Errorf("decoding remoteok response: %w", err)
	}
	if len(listings) > 0 {
		listings = listings[1:]
	}

	now := time.Now().UTC()
	postings := make([]job.Posting, 0, len(listings))
	for _, l := range listings {
		if l.Position == "" || l.Company == "" {
			continue
		}
		description := CleanText(l.Description)
		fullText := l.Position + " " + description

		posted := now
		if l.Epoch > 0 {
			posted = time.Unix(l.Epoch, 0).UTC()
		}
		location := l.Location
		if location == "" {
			location = "Remote"
		}
		jobType := l.Type
		if jobType == "" {
			jobType = "Full-time"
		}

		postings = append(postings, job.Posting{
			JobID:           GenerateJobID(l.Position, l.Company, "remoteok"),
			Title:           l.Position,
			Company:         l.Company,
			Location:        location,
			Description:     description,
			Skills:          ExtractSkills(fullText),
			SalaryRange:     l.Salary,
			SourceURL:       l.URL,
			SourcePlatform:  "RemoteOK",
			PostedDate:      &posted,
			ScrapedDate:     now,
			JobType:         jobType,
			ExperienceLevel: InferExperienceLevel(l.Position),
			RemoteOption:    InferRemoteOption(description),
		})
	}

	r.logger.Info("fetched remoteok listings", "count", len(postings))
	return postings, nil
}

// Adzuna fetches from the Adzuna search API, which requires app
// credentials.
type Adzuna struct {
	appID   string
	appKey  string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewAdzuna creates an Adzuna fetcher. baseURL may be empty for the
// production endpoint.
func NewAdzuna(appID, appKey, baseURL string, client *http.Client, logger *slog.Logger) *Adzuna {
	if baseURL == "" {
		baseURL = "https://api.adzuna.com/v1/api/jobs"
	}
	if client == nil {
		client = &http.Client{Timeout: fetchTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adzuna{appID: appID, appKey: appKey, baseURL: baseURL, client: client, logger: logger}
}

// Name implements Fetcher.
func (a *Adzuna) Name() string { return "Adzuna" }

type adzunaResponse struct {
	Results []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Company     struct {
			DisplayName string `json:"display_name"`
		} `json:"company"`
		Location struct {
			DisplayName string `json:"display_name"`
		} `json:"location"`
		SalaryMin    float64 `json:"salary_min"`
		SalaryMax    float64 `json:"salary_max"`
		RedirectURL  string  `json:"redirect_url"`
		Created      string  `json:"created"`
		ContractType string  `json:"contract_type"`
	} `json:"results"`
}

// Fetch implements Fetcher. location is an Adzuna country code; empty
// defaults to "us".
func (a *Adzuna) Fetch(ctx context.Context, term, location string) ([]job.Posting, error) {
	if location == "" {
		location = "us"
	}
	a.logger.Info("fetching adzuna listings", "term", term, "country", location)

	endpoint := fmt.Sprintf("%s/%s/search/1", a.baseURL, url.PathEscape(location))
	params := url.Values{
		"app_id":           {a.appID},
		"app_key":          {a.appKey},
		"what":             {term},
		"results_per_page": {"50"},
		"sort_by":          {"date"},
	}

	data, err := getJSON(ctx, a.client, endpoint+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("fetching adzuna: %w", err)
	}

	var resp adzunaResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decoding adzuna response: %w", err)
	}

	now := time.Now().UTC()
	postings := make([]job.Posting, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.Title == "" {
			continue
		}
		company := r.Company.DisplayName
		if company == "" {
			company = "Unknown"
		}
		description := CleanText(r.Description)
		fullText := r.Title + " " + description

		var salaryRange string
		if r.SalaryMin > 0 && r.SalaryMax > 0 {
			salaryRange = fmt.Sprintf("$%d - $%d", int(r.SalaryMin), int(r.SalaryMax))
		}

		posted := now
		if r.Created != "" {
			if t, err := time.Parse(time.RFC3339, r.Created); err == nil {
				posted = t.UTC()
			}
		}
		jobType := r.ContractType
		if jobType == "" {
			jobType = "Full-time"
		}

		postings = append(postings, job.Posting{
			JobID:           GenerateJobID(r.Title, company, "adzuna"),
			Title:           r.Title,
			Company:         company,
			Location:        r.Location.DisplayName,
			Description:     description,
			Skills:          ExtractSkills(fullText),
			SalaryRange:     salaryRange,
			SourceURL:       r.RedirectURL,
			SourcePlatform:  "Adzuna",
			PostedDate:      &posted,
			ScrapedDate:     now,
			JobType:         jobType,
			ExperienceLevel: InferExperienceLevel(r.Title),
			RemoteOption:    InferRemoteOption(description),
		})
	}

	a.logger.Info("fetched adzuna listings", "count", len(postings))
	return postings, nil
}

func getJSON(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 64<<20))
}
