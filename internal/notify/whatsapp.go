package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"pengajuan-service/internal/config"
	"pengajuan-service/internal/models"
)

// WhatsAppClient talks to the messaging provider's HTTP API. It backs
// both the OTP delivery path and the status notification channel.
type WhatsAppClient struct {
	config     config.WhatsAppConfig
	httpClient *http.Client
}

func NewWhatsAppClient(cfg *config.Config) *WhatsAppClient {
	return &WhatsAppClient{
		config: cfg.WhatsApp,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (c *WhatsAppClient) Configured() bool {
	return c.config.APIURL != "" && c.config.APIToken != ""
}

type whatsappPayload struct {
	To      string `json:"to"`
	Type    string `json:"type"`
	Message string `json:"message"`
	Sender  string `json:"sender,omitempty"`
}

// SendMessage posts one text message to the provider.
func (c *WhatsAppClient) SendMessage(ctx context.Context, phone, text string) error {
	body, err := json.Marshal(whatsappPayload{
		To:      phone,
		Type:    "text",
		Message: text,
		Sender:  c.config.SenderID,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.APIURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("whatsapp api returned %d: %s", resp.StatusCode, string(msg))
	}
	return nil
}

// Send delivers an OTP code, satisfying the gateway's sender contract.
func (c *WhatsAppClient) Send(ctx context.Context, phone, code string) error {
	text := fmt.Sprintf("Kode OTP Anda: %s. Berlaku 5 menit, jangan bagikan kepada siapa pun.", code)
	return c.SendMessage(ctx, phone, text)
}

// WhatsAppChannel adapts the client into a notification channel.
type WhatsAppChannel struct {
	client *WhatsAppClient
}

func NewWhatsAppChannel(client *WhatsAppClient) *WhatsAppChannel {
	return &WhatsAppChannel{client: client}
}

func (c *WhatsAppChannel) Name() string {
	return models.ChannelWhatsApp
}

func (c *WhatsAppChannel) Configured() bool {
	return c.client.Configured()
}

func (c *WhatsAppChannel) Send(ctx context.Context, record models.SubmissionRecord, customText string) error {
	if record.Form.Phone == "" {
		return fmt.Errorf("submission %s has no phone number", record.ID)
	}

	_, text := statusMessage(record, customText)
	return c.client.SendMessage(ctx, record.Form.Phone, text)
}
