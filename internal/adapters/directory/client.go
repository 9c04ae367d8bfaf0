// Package directory is the REST client for the stage directory and
// auth backend.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/stagekit/stagecast/internal/config"
	"github.com/stagekit/stagecast/internal/core"
	"github.com/stagekit/stagecast/internal/domain"
)

// Client talks to the tenant-scoped directory endpoint. All methods
// honor the passed context on top of the client-wide timeout.
type Client struct {
	baseURL      string
	customerCode string
	apiKey       string
	http         *http.Client

	// listGroup collapses concurrent identical listing requests into
	// one round trip.
	listGroup singleflight.Group
}

func New(cfg *config.Config) *Client {
	return NewWithBaseURL(
		fmt.Sprintf("https://%s.%s", cfg.CustomerCode, cfg.APIHost),
		cfg.CustomerCode,
		cfg.APIKey,
		cfg.RequestTimeout,
	)
}

// NewWithBaseURL wires an explicit endpoint; used against local test
// servers.
func NewWithBaseURL(baseURL, customerCode, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL:      baseURL,
		customerCode: customerCode,
		apiKey:       apiKey,
		http:         &http.Client{Timeout: timeout},
	}
}

var _ core.Directory = (*Client)(nil)

func (c *Client) Verify(ctx context.Context) error {
	return c.send(ctx, http.MethodGet, "/verify", "", nil, nil)
}

type stagesEnvelope struct {
	Stages []core.StageDetails `json:"stages"`
}

func (c *Client) ListStages(ctx context.Context, onlyActive bool) ([]core.StageDetails, error) {
	key := "all"
	query := ""
	if onlyActive {
		key = "active"
		query = "status=active"
	}
	v, err, shared := c.listGroup.Do(key, func() (interface{}, error) {
		var env stagesEnvelope
		if err := c.send(ctx, http.MethodGet, "/", query, nil, &env); err != nil {
			return nil, err
		}
		return env.Stages, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		log.Debug().Str("module", "adapters.directory").Msg("listing shared with concurrent caller")
	}
	return v.([]core.StageDetails), nil
}

func (c *Client) CreateStage(ctx context.Context, req core.CreateStageRequest) (*domain.HostToken, error) {
	body := map[string]interface{}{
		"cid":            c.customerCode,
		"hostId":         req.HostID,
		"hostAttributes": req.Attributes,
		"type":           req.Type,
	}
	var tok domain.HostToken
	if err := c.send(ctx, http.MethodPost, "/create", "", body, &tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

func (c *Client) Join(ctx context.Context, hostID domain.HostID, req core.JoinRequest) (*domain.ParticipantToken, error) {
	body := map[string]interface{}{
		"hostId":     hostID,
		"userId":     req.UserID,
		"attributes": req.Attributes,
	}
	var tok domain.ParticipantToken
	if err := c.send(ctx, http.MethodPost, "/join", "", body, &tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

func (c *Client) UpdateMode(ctx context.Context, hostID domain.HostID, userID domain.UserID, mode domain.StageMode) error {
	body := map[string]interface{}{
		"hostId": hostID,
		"userId": userID,
		"mode":   mode,
	}
	return c.send(ctx, http.MethodPut, "/update/mode", "", body, nil)
}

func (c *Client) UpdateSeats(ctx context.Context, hostID domain.HostID, userID domain.UserID, seats []string) error {
	body := map[string]interface{}{
		"hostId": hostID,
		"userId": userID,
		"seats":  seats,
	}
	return c.send(ctx, http.MethodPut, "/update/seats", "", body, nil)
}

func (c *Client) CastVote(ctx context.Context, hostID domain.HostID, vote domain.UserID) error {
	body := map[string]interface{}{
		"hostId": hostID,
		"vote":   vote,
	}
	return c.send(ctx, http.MethodPost, "/castVote", "", body, nil)
}

func (c *Client) DeleteStage(ctx context.Context, hostID domain.HostID) error {
	body := map[string]interface{}{"hostId": hostID}
	return c.send(ctx, http.MethodDelete, "/", "", body, nil)
}

func (c *Client) DisconnectParticipant(ctx context.Context, hostID domain.HostID, userID domain.UserID, participantID domain.ParticipantID) error {
	body := map[string]interface{}{
		"hostId":        hostID,
		"userId":        userID,
		"participantId": participantID,
	}
	return c.send(ctx, http.MethodPut, "/disconnect", "", body, nil)
}

func (c *Client) CreateChatToken(ctx context.Context, req core.ChatTokenRequest) (*domain.ChatToken, error) {
	body := map[string]interface{}{
		"hostId":     req.StageHostID,
		"userId":     req.UserID,
		"attributes": req.Attributes,
	}
	var tok domain.ChatToken
	if err := c.send(ctx, http.MethodPost, "/chatToken/create", "", body, &tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

func (c *Client) send(ctx context.Context, method, path, query string, body interface{}, out interface{}) error {
	url := c.baseURL + path
	if query != "" {
		url += "?" + query
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		log.Error().Str("module", "adapters.directory").Str("method", method).Str("path", path).Int("status", resp.StatusCode).Msg("request rejected")
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(msg))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
