package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/festreg/internal/config"
)

// EmailJS posts receipts to the EmailJS send endpoint.
type EmailJS struct {
	cfg    config.EmailJSConfig
	client *http.Client
	log    *zap.Logger
}

// NewEmailJS constructs the relay client. A zero timeout waits for as long as
// the caller's context allows.
func NewEmailJS(cfg config.EmailJSConfig, timeout time.Duration, log *zap.Logger) *EmailJS {
	if log == nil {
		log = zap.NewNop()
	}
	return &EmailJS{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		log:    log.Named("emailjs"),
	}
}

type emailJSRequest struct {
	ServiceID      string  `json:"service_id"`
	TemplateID     string  `json:"template_id"`
	UserID         string  `json:"user_id"`
	TemplateParams Receipt `json:"template_params"`
}

// Send posts the receipt and returns the relay's status code. Transport
// failures return status 0 and an error; non-2xx bodies are logged.
func (e *EmailJS) Send(ctx context.Context, r Receipt) (int, error) {
	body, err := json.Marshal(emailJSRequest{
		ServiceID:      e.cfg.ServiceID,
		TemplateID:     e.cfg.TemplateID,
		UserID:         e.cfg.UserID,
		TemplateParams: r,
	})
	if err != nil {
		return 0, fmt.Errorf("encode receipt: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	// the relay rejects requests without an origin
	req.Header.Set("Origin", e.cfg.Origin)

	resp, err := e.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("relay request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		e.log.Warn("relay rejected receipt",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(msg)),
			zap.String("email", r.Email),
		)
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return resp.StatusCode, nil
}
