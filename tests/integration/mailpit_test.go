//go:build integration

package integration

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// MailpitClient reads the inbox of the Mailpit container.
type MailpitClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewMailpitClient creates a new Mailpit API client.
func NewMailpitClient(baseURL string) *MailpitClient {
	return &MailpitClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// MailpitMessage is a message as listed by Mailpit. Text is only filled by Message.
type MailpitMessage struct {
	ID      string `json:"ID"`
	Subject string `json:"Subject"`
	Text    string `json:"Text"`
}

type messagesResponse struct {
	Messages []MailpitMessage `json:"messages"`
}

func (c *MailpitClient) get(path string, v interface{}) error {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("get %s: status %d: %s", path, resp.StatusCode, body)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// SearchByRecipient lists messages sent to email.
func (c *MailpitClient) SearchByRecipient(email string) ([]MailpitMessage, error) {
	var result messagesResponse
	if err := c.get("/api/v1/search?query="+url.QueryEscape("to:"+email), &result); err != nil {
		return nil, err
	}
	return result.Messages, nil
}

// Message returns a single message with its plain text body.
func (c *MailpitClient) Message(id string) (*MailpitMessage, error) {
	var msg MailpitMessage
	if err := c.get("/api/v1/message/"+id, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// WaitForRecipient polls until a message for email arrives and returns the newest one.
func (c *MailpitClient) WaitForRecipient(email string, timeout time.Duration) (*MailpitMessage, error) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		messages, err := c.SearchByRecipient(email)
		if err == nil && len(messages) > 0 {
			return c.Message(messages[0].ID)
		}
		time.Sleep(100 * time.Millisecond)
	}
	return nil, fmt.Errorf("no message for %s within %s", email, timeout)
}
