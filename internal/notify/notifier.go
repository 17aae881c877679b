package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Notifier envia alertas de segurança para canais externos.
type Notifier interface {
	Notify(ctx context.Context, msg AlertMessage) error
}

// AlertMessage descreve um alerta.
type AlertMessage struct {
	Title    string
	Text     string
	Severity string
}

// New escolhe Slack quando há webhook; caso contrário apenas registra em log.
func New(webhookURL string, logger zerolog.Logger) Notifier {
	if webhookURL == "" {
		return LogNotifier{logger: logger}
	}
	return NewSlackNotifier(webhookURL)
}

// SlackNotifier publica alertas num incoming webhook do Slack.
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
}

func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 5 * time.Second},
	}
}

func (s *SlackNotifier) Notify(ctx context.Context, msg AlertMessage) error {
	if s == nil || s.webhookURL == "" {
		return errors.New("slack notifier não configurado")
	}

	body, err := json.Marshal(map[string]any{"text": FormatSlackMessage(msg)})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("slack respondeu %d", resp.StatusCode)
	}
	return nil
}

// LogNotifier registra o alerta via zerolog.
type LogNotifier struct {
	logger zerolog.Logger
}

func (l LogNotifier) Notify(_ context.Context, msg AlertMessage) error {
	l.logger.Warn().Str("severity", msg.Severity).Str("title", msg.Title).Msg(msg.Text)
	return nil
}

// FormatSlackMessage monta o texto com emoji por severidade.
func FormatSlackMessage(msg AlertMessage) string {
	emoji := ":information_source:"
	switch msg.Severity {
	case "warning":
		emoji = ":warning:"
	case "critical":
		emoji = ":rotating_light:"
	}
	if msg.Title != "" {
		return emoji + " *" + msg.Title + "*\n" + msg.Text
	}
	return emoji + " " + msg.Text
}
