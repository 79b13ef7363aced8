package compliance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/ignite/outreach-dispatch/internal/config"
	"github.com/ignite/outreach-dispatch/internal/pkg/logger"
)

// Registry answers whether a number is on a do-not-call registry.
type Registry interface {
	Registered(ctx context.Context, e164 string) (bool, error)
}

// DNCRClient queries a registry over HTTP:
//
//	GET {base}/v1/numbers/{e164} -> 200 {"registered": bool}, 404 = not registered
type DNCRClient struct {
	client *resty.Client
	log    *logger.Scoped
}

type dncrResponse struct {
	Number     string `json:"number"`
	Registered bool   `json:"registered"`
}

// NewDNCRClient creates a registry client.
func NewDNCRClient(cfg config.DNCRConfig) (*DNCRClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("dncr base_url is required")
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout()).
		SetRetryCount(2).
		SetRetryWaitTime(200*time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("x-api-key", cfg.APIKey)
	}
	return &DNCRClient{client: client, log: logger.Component("dncr")}, nil
}

func (c *DNCRClient) Registered(ctx context.Context, e164 string) (bool, error) {
	var out dncrResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/v1/numbers/" + url.PathEscape(e164))
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrDNCRUnavailable, err)
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return false, nil
	case resp.IsSuccess():
		return out.Registered, nil
	}
	c.log.Warn("dncr lookup failed", "status", resp.StatusCode(), "phone", e164)
	return false, fmt.Errorf("%w: status %d", ErrDNCRUnavailable, resp.StatusCode())
}
