// Package gateway talks to the durable backend and, through it, to the
// messaging provider's pending-update queue. It holds no domain state.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"wedding-sync/internal/errs"
	"wedding-sync/internal/models"
	"wedding-sync/internal/seating"
)

// Gateway is the narrow remote API the engine depends on.
type Gateway interface {
	FetchEvents(ctx context.Context) (models.EventSet, error)
	PushEvent(ctx context.Context, event models.Event) error
	CreateGuest(ctx context.Context, eventID string, guest models.Guest) (models.Guest, error)
	PatchGuest(ctx context.Context, eventID, guestID string, update models.GuestUpdate) error
	DeleteGuest(ctx context.Context, eventID, guestID string) error
	AssignTable(ctx context.Context, eventID string, change seating.Change) error
	RecreateCampaigns(ctx context.Context, eventID string, campaigns []models.Campaign) ([]models.Campaign, error)
	SendCampaign(ctx context.Context, eventID, campaignID string) (models.SendResult, error)
	PendingCount(ctx context.Context) (int, error)
	ProcessAllUpdates(ctx context.Context) (models.DrainResult, error)
	SyncUpdates(ctx context.Context, onlyToday bool) (models.DrainResult, error)
}

type Config struct {
	BaseURL      string
	MaxAttempts  int
	RetryInitial time.Duration
	RetryMax     time.Duration
	HTTPClient   *http.Client
}

// Client is the HTTP implementation of Gateway.
type Client struct {
	cfg  Config
	base *url.URL
	http *http.Client
	log  zerolog.Logger
}

var _ Gateway = (*Client)(nil)

// NewClient creates a backend client
func NewClient(cfg Config, logger zerolog.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse backend url: %w", err)
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryInitial <= 0 {
		cfg.RetryInitial = 200 * time.Millisecond
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 2 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		cfg:  cfg,
		base: base,
		http: httpClient,
		log:  logger.With().Str("component", "Gateway").Logger(),
	}, nil
}

func (c *Client) FetchEvents(ctx context.Context) (models.EventSet, error) {
	var events models.EventSet
	if err := c.do(ctx, http.MethodGet, "/api/events", nil, nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (c *Client) PushEvent(ctx context.Context, event models.Event) error {
	return c.do(ctx, http.MethodPut, eventPath(event.ID), nil, event, nil)
}

func (c *Client) CreateGuest(ctx context.Context, eventID string, guest models.Guest) (models.Guest, error) {
	var created models.Guest
	if err := c.do(ctx, http.MethodPost, eventPath(eventID, "guests"), nil, guest, &created); err != nil {
		return models.Guest{}, err
	}
	return created, nil
}

func (c *Client) PatchGuest(ctx context.Context, eventID, guestID string, update models.GuestUpdate) error {
	return c.do(ctx, http.MethodPatch, eventPath(eventID, "guests", guestID), nil, update, nil)
}

func (c *Client) DeleteGuest(ctx context.Context, eventID, guestID string) error {
	return c.do(ctx, http.MethodDelete, eventPath(eventID, "guests", guestID), nil, nil, nil)
}

func (c *Client) AssignTable(ctx context.Context, eventID string, change seating.Change) error {
	body := models.TableAssignment{GuestID: change.GuestID, TableID: change.To, Action: string(change.Action)}
	return c.do(ctx, http.MethodPost, eventPath(eventID, "table-assignment"), nil, body, nil)
}

func (c *Client) RecreateCampaigns(ctx context.Context, eventID string, campaigns []models.Campaign) ([]models.Campaign, error) {
	var out models.CampaignSet
	body := models.CampaignSet{Campaigns: campaigns}
	if err := c.do(ctx, http.MethodPost, eventPath(eventID, "campaigns", "recreate"), nil, body, &out); err != nil {
		return nil, err
	}
	return out.Campaigns, nil
}

func (c *Client) SendCampaign(ctx context.Context, eventID, campaignID string) (models.SendResult, error) {
	var out models.SendResult
	err := c.do(ctx, http.MethodPost, eventPath(eventID, "campaigns", campaignID, "send"), nil, nil, &out)
	return out, err
}

func (c *Client) PendingCount(ctx context.Context) (int, error) {
	var out models.PendingCount
	if err := c.do(ctx, http.MethodGet, "/api/whatsapp/pending-updates-count", nil, nil, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

func (c *Client) ProcessAllUpdates(ctx context.Context) (models.DrainResult, error) {
	var out models.DrainResult
	err := c.do(ctx, http.MethodPost, "/api/whatsapp/process-all-updates", nil, nil, &out)
	return out, err
}

func (c *Client) SyncUpdates(ctx context.Context, onlyToday bool) (models.DrainResult, error) {
	var out models.DrainResult
	q := url.Values{"onlyToday": []string{strconv.FormatBool(onlyToday)}}
	err := c.do(ctx, http.MethodPost, "/api/whatsapp/sync-updates", q, nil, &out)
	return out, err
}

func eventPath(eventID string, parts ...string) string {
	segments := append([]string{"/api/events", eventID}, parts...)
	return strings.Join(segments, "/")
}

// do sends one request, retrying transient failures with exponential
// backoff up to MaxAttempts.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	op := method + " " + path

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.RetryInitial
	b.MaxInterval = c.cfg.RetryMax

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := c.once(ctx, op, method, path, query, body, out)
		if err != nil && !errs.IsTransient(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.cfg.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.log.Warn().Err(err).Str("op", op).Dur("retry_in", next).Msg("Backend call failed, retrying")
		}),
	)
	if err != nil && errs.KindOf(err) == "" {
		return errs.Transient(op, err)
	}
	return err
}

func (c *Client) once(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	u := *c.base
	u.Path = c.base.Path + path
	u.RawQuery = query.Encode()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errs.Transient(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return statusError(op, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return errs.Transient(op, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

func statusError(op string, resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var apiErr models.APIError
	msg := strings.TrimSpace(string(data))
	if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
		msg = apiErr.Error
	}
	if msg == "" {
		msg = resp.Status
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return errs.NotFound(op, "%s", msg)
	case http.StatusBadRequest, http.StatusUnprocessableEntity, http.StatusConflict:
		return errs.Validation(op, "%s", msg)
	}
	return errs.Transient(op, fmt.Errorf("backend returned %d: %s", resp.StatusCode, msg))
}
