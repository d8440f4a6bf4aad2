package notifications

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"github.com/skypath/nichebot/internal/config"
	"github.com/skypath/nichebot/internal/models"
	"gopkg.in/gomail.v2"
)

// Service sends niche alerts via the configured channels. Channels fail
// independently; one failing channel does not block the other.
type Service struct {
	config *config.Config
	client *resty.Client
}

// Ensure Service implements NotificationInterface
var _ NotificationInterface = (*Service)(nil)

// webhookMessage is a Teams-compatible message card
type webhookMessage struct {
	Type     string           `json:"@type"`
	Context  string           `json:"@context"`
	Title    string           `json:"title"`
	Text     string           `json:"text"`
	Sections []webhookSection `json:"sections,omitempty"`
}

type webhookSection struct {
	ActivityTitle string        `json:"activityTitle,omitempty"`
	Facts         []webhookFact `json:"facts,omitempty"`
	Markdown      bool          `json:"markdown,omitempty"`
}

type webhookFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// NewService creates a new notification service
func NewService(cfg *config.Config) *Service {
	return &Service{
		config: cfg,
		client: resty.New().SetTimeout(30 * time.Second),
	}
}

// SendAlert delivers an alert to every configured channel.
func (s *Service) SendAlert(alert *models.Alert) error {
	var errs []string

	if s.config.WebhookURL != "" {
		if err := s.sendWebhook(alert); err != nil {
			logrus.Errorf("Failed to send webhook alert: %v", err)
			errs = append(errs, fmt.Sprintf("webhook: %v", err))
		} else {
			logrus.Infof("Sent %s alert for niche %q to webhook", alert.Type, alert.Niche.Name)
		}
	}

	if s.config.AlertEmail != "" {
		if err := s.sendEmail(alert); err != nil {
			logrus.Errorf("Failed to send email alert: %v", err)
			errs = append(errs, fmt.Sprintf("email: %v", err))
		} else {
			logrus.Infof("Sent %s alert for niche %q via email", alert.Type, alert.Niche.Name)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notification failures: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (s *Service) sendWebhook(alert *models.Alert) error {
	n := alert.Niche
	message := webhookMessage{
		Type:    "MessageCard",
		Context: "http://schema.org/extensions",
		Title:   fmt.Sprintf("Niche alert: %s", n.Name),
		Text:    alert.Message,
		Sections: []webhookSection{{
			ActivityTitle: fmt.Sprintf("Discovered via %q", alert.Query),
			Markdown:      true,
			Facts: []webhookFact{
				{Name: "Opportunity", Value: fmt.Sprintf("%.0f", n.OpportunityScore)},
				{Name: "Demand", Value: fmt.Sprintf("%.0f", n.DemandScore)},
				{Name: "Growth", Value: fmt.Sprintf("%.0f", n.GrowthScore)},
				{Name: "Pain points", Value: fmt.Sprintf("%d", n.PainPointCount)},
				{Name: "Trend signals", Value: fmt.Sprintf("%d", n.TrendCount)},
			},
		}},
	}

	resp, err := s.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(message).
		Post(s.config.WebhookURL)

	if err != nil {
		return err
	}

	if resp.StatusCode() != 200 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}
	return nil
}

func (s *Service) sendEmail(alert *models.Alert) error {
	n := alert.Niche

	body := fmt.Sprintf(
		"%s\n\nNiche: %s\nOpportunity score: %.0f\nDemand score: %.0f\nGrowth score: %.0f\nPain points: %d\nTrend signals: %d\nVerified: %t\n\nGenerated at %s\n",
		alert.Message, n.Name, n.OpportunityScore, n.DemandScore, n.GrowthScore,
		n.PainPointCount, n.TrendCount, n.Verified,
		alert.CreatedAt.Format(time.RFC3339),
	)

	m := gomail.NewMessage()
	m.SetHeader("From", s.config.SMTPUsername)
	m.SetHeader("To", s.config.AlertEmail)
	m.SetHeader("Subject", fmt.Sprintf("[nichebot] %s alert: %s", alert.Type, n.Name))
	m.SetBody("text/plain", body)

	d := gomail.NewDialer(s.config.SMTPHost, s.config.SMTPPort, s.config.SMTPUsername, s.config.SMTPPassword)
	return d.DialAndSend(m)
}
