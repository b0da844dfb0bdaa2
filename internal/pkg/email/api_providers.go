// internal/pkg/email/api_providers.go
package email

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

// The three HTTP providers share one delivery path; only the payload shape
// and the accepted status code differ.

type resendPayload struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	ReplyTo string   `json:"reply_to,omitempty"`
}

type namedAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridPayload struct {
	Personalizations []struct {
		To []namedAddress `json:"to"`
	} `json:"personalizations"`
	From    namedAddress `json:"from"`
	Subject string       `json:"subject"`
	Content []struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	} `json:"content"`
	ReplyTo *namedAddress `json:"reply_to,omitempty"`
}

type mailerSendPayload struct {
	From    namedAddress   `json:"from"`
	To      []namedAddress `json:"to"`
	Subject string         `json:"subject"`
	HTML    string         `json:"html"`
	ReplyTo *namedAddress  `json:"reply_to,omitempty"`
	Tags    []string       `json:"tags,omitempty"`
}

func (s *EmailService) sendResendEmail(email *Email) error {
	cfg := s.config.External.Email
	from := cfg.FromEmail
	if cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", cfg.FromName, cfg.FromEmail)
	}
	return s.postProvider("Resend", "https://api.resend.com/emails", http.StatusOK, resendPayload{
		From:    from,
		To:      email.To,
		Subject: email.Subject,
		HTML:    email.HTMLContent,
		ReplyTo: cfg.ReplyTo,
	})
}

func (s *EmailService) sendSendGridEmail(email *Email) error {
	cfg := s.config.External.Email
	payload := sendGridPayload{
		From:    namedAddress{Email: cfg.FromEmail, Name: cfg.FromName},
		Subject: email.Subject,
	}
	payload.Personalizations = make([]struct {
		To []namedAddress `json:"to"`
	}, 1)
	for _, recipient := range email.To {
		payload.Personalizations[0].To = append(payload.Personalizations[0].To, namedAddress{Email: recipient})
	}
	payload.Content = []struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	}{{Type: "text/html", Value: email.HTMLContent}}
	if cfg.ReplyTo != "" {
		payload.ReplyTo = &namedAddress{Email: cfg.ReplyTo}
	}
	return s.postProvider("SendGrid", "https://api.sendgrid.com/v3/mail/send", http.StatusAccepted, payload)
}

func (s *EmailService) sendMailerSendEmail(email *Email) error {
	cfg := s.config.External.Email
	payload := mailerSendPayload{
		From:    namedAddress{Email: cfg.FromEmail, Name: cfg.FromName},
		Subject: email.Subject,
		HTML:    email.HTMLContent,
		Tags:    []string{string(email.Type)},
	}
	for _, recipient := range email.To {
		payload.To = append(payload.To, namedAddress{Email: recipient})
	}
	if cfg.ReplyTo != "" {
		payload.ReplyTo = &namedAddress{Email: cfg.ReplyTo}
	}
	return s.postProvider("MailerSend", "https://api.mailersend.com/v1/email", http.StatusAccepted, payload)
}

// postProvider marshals the payload and posts it with the configured API key.
func (s *EmailService) postProvider(provider, url string, okStatus int, payload interface{}) error {
	apiKey := s.config.External.Email.APIKey
	if apiKey == "" {
		return fmt.Errorf("%s API key not configured", provider)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", provider, err)
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", provider, err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send %s request: %w", provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != okStatus {
		return fmt.Errorf("%s API returned status %d", provider, resp.StatusCode)
	}
	return nil
}
