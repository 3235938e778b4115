// Package models holds the monitored website and its ticks.
package models

import (
	"net/url"
	"strings"
	"time"

	dErrors "uptime/pkg/domain-errors"
)

// Website is a URL a user asked the network to watch.
//
// Disabled websites are never dispatched and never returned to their owner,
// but their ticks are kept.
type Website struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	UserID    string    `json:"userId"`
	Disabled  bool      `json:"disabled"`
	CreatedAt time.Time `json:"createdAt"`
	Ticks     []Tick    `json:"ticks"`
}

// Tick is one verified validation result.
type Tick struct {
	ID          string    `json:"id"`
	WebsiteID   string    `json:"websiteId"`
	ValidatorID string    `json:"validatorId"`
	Status      string    `json:"status"`
	Latency     int64     `json:"latency"`
	CreatedAt   time.Time `json:"createdAt"`
}

type CreateWebsiteRequest struct {
	URL string `json:"url"`
}

type CreateWebsiteResponse struct {
	ID string `json:"id"`
}

type DisableWebsiteRequest struct {
	WebsiteID string `json:"websiteId"`
}

type ListWebsitesResponse struct {
	Websites []*Website `json:"websites"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

// ValidateURL accepts only absolute http(s) URLs with a host.
func ValidateURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", dErrors.New(dErrors.CodeBadRequest, "URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", dErrors.New(dErrors.CodeValidation, "URL must be an absolute http or https URL")
	}
	return u.String(), nil
}
