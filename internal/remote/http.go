package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/serenity-app/serenity/internal/models"
)

// Client is the REST implementation of the collaborator interfaces. One
// instance satisfies Connectivity, ContentAPI, JournalAPI, PreferenceAPI,
// AchievementAPI and EntitlementAPI.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// IsConnected probes the health endpoint with a short timeout.
func (c *Client) IsConnected(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

func (c *Client) FetchAll(ctx context.Context) ([]models.Meditation, error) {
	var result []models.Meditation
	if err := c.getJSON(ctx, "/v1/meditations", &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) FetchByID(ctx context.Context, id string) (*models.Meditation, error) {
	var result models.Meditation
	if err := c.getJSON(ctx, "/v1/meditations/"+id, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) ReportDownload(ctx context.Context, contentID string, downloaded bool) error {
	body := struct {
		Downloaded bool `json:"downloaded"`
	}{Downloaded: downloaded}
	return c.send(ctx, http.MethodPost, "/v1/meditations/"+contentID+"/download", body)
}

func (c *Client) Create(ctx context.Context, entry models.JournalEntry) error {
	return c.send(ctx, http.MethodPost, "/v1/journal", entry)
}

func (c *Client) Update(ctx context.Context, entry models.JournalEntry) error {
	return c.send(ctx, http.MethodPut, "/v1/journal/"+entry.ID, entry)
}

func (c *Client) Delete(ctx context.Context, id string) error {
	return c.send(ctx, http.MethodDelete, "/v1/journal/"+id, nil)
}

func (c *Client) Put(ctx context.Context, settings models.UserSettings) error {
	return c.send(ctx, http.MethodPut, "/v1/preferences", settings)
}

// CreateAchievement satisfies AchievementAPI via the achievements wrapper.
type achievementClient struct{ *Client }

// Achievements returns a view of the client implementing AchievementAPI.
func (c *Client) Achievements() AchievementAPI { return achievementClient{c} }

func (a achievementClient) Create(ctx context.Context, ach models.Achievement) error {
	return a.send(ctx, http.MethodPost, "/v1/achievements", ach)
}

func (c *Client) GetEntitlement(ctx context.Context) (string, error) {
	var result struct {
		Token string `json:"token"`
	}
	if err := c.getJSON(ctx, "/v1/entitlement", &result); err != nil {
		return "", err
	}
	return result.Token, nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s failed: %s; body: %s", path, resp.Status, string(b))
	}

	return json.NewDecoder(resp.Body).Decode(v)
}

func (c *Client) send(ctx context.Context, method, path string, body any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s failed: %s; body: %s", method, path, resp.Status, string(b))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}
