package fhirclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/ehr/triage/internal/domain/vitals"
)

const (
	DefaultTimeout  = 10 * time.Second
	DefaultPageSize = 100
	// DefaultMaxPages bounds how many searchset pages are followed per subject.
	DefaultMaxPages = 5
)

// Config controls the FHIR search client.
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	PageSize int
	MaxPages int
	// Category restricts the search; empty searches every category.
	Category string
	Headers  map[string]string
}

// Client fetches a subject's vital-sign Observations from a FHIR server.
type Client struct {
	http     *resty.Client
	pageSize int
	maxPages int
	category string
	logger   zerolog.Logger
}

func New(cfg Config, logger zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/fhir+json")
	for k, v := range cfg.Headers {
		client.SetHeader(k, v)
	}

	return &Client{
		http:     client,
		pageSize: cfg.PageSize,
		maxPages: cfg.MaxPages,
		category: cfg.Category,
		logger:   logger,
	}
}

// FetchObservations runs an Observation search for the subject and returns
// every Observation in the result pages.
func (c *Client) FetchObservations(ctx context.Context, subjectID string) ([]vitals.RawObservation, error) {
	params := url.Values{}
	params.Set("subject", "Patient/"+subjectID)
	params.Set("_sort", "-date")
	params.Set("_count", strconv.Itoa(c.pageSize))
	if c.category != "" {
		params.Set("category", c.category)
	}

	var (
		out  []vitals.RawObservation
		next = "/Observation?" + params.Encode()
	)
	for page := 0; next != "" && page < c.maxPages; page++ {
		resp, err := c.http.R().SetContext(ctx).Get(next)
		if err != nil {
			return nil, fmt.Errorf("observation search for %s: %w", subjectID, err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("observation search for %s: status %d", subjectID, resp.StatusCode())
		}

		bundle, err := decode(resp.Body())
		if err != nil {
			return nil, fmt.Errorf("observation search for %s: %w", subjectID, err)
		}
		obs, err := ObservationsFromResource(bundle)
		if err != nil {
			return nil, fmt.Errorf("observation search for %s: %w", subjectID, err)
		}
		out = append(out, obs...)
		next = nextLink(bundle)
	}

	c.logger.Debug().Str("subject_id", subjectID).Int("observations", len(out)).Msg("fetched observations")
	return out, nil
}

func decode(body []byte) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var m map[string]interface{}
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return m, nil
}

// ObservationsFromResource unwraps a searchset Bundle or a single
// Observation. An OperationOutcome is reported as an error.
func ObservationsFromResource(res map[string]interface{}) ([]vitals.RawObservation, error) {
	rt, _ := res["resourceType"].(string)
	switch rt {
	case "Observation":
		return []vitals.RawObservation{res}, nil
	case "OperationOutcome":
		return nil, fmt.Errorf("server returned OperationOutcome: %s", outcomeText(res))
	case "Bundle":
	default:
		return nil, fmt.Errorf("unexpected resourceType %q", rt)
	}

	entries, _ := res["entry"].([]interface{})
	out := make([]vitals.RawObservation, 0, len(entries))
	for _, e := range entries {
		entry, _ := e.(map[string]interface{})
		r, _ := entry["resource"].(map[string]interface{})
		if t, _ := r["resourceType"].(string); t == "Observation" {
			out = append(out, r)
		}
	}
	return out, nil
}

func nextLink(bundle map[string]interface{}) string {
	links, _ := bundle["link"].([]interface{})
	for _, l := range links {
		link, _ := l.(map[string]interface{})
		if rel, _ := link["relation"].(string); rel == "next" {
			u, _ := link["url"].(string)
			return u
		}
	}
	return ""
}

func outcomeText(outcome map[string]interface{}) string {
	issues, _ := outcome["issue"].([]interface{})
	var parts []string
	for _, i := range issues {
		issue, _ := i.(map[string]interface{})
		if d, _ := issue["diagnostics"].(string); d != "" {
			parts = append(parts, d)
		}
	}
	if len(parts) == 0 {
		return "no diagnostics"
	}
	return strings.Join(parts, "; ")
}
