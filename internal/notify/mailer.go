package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kellerb/sam-watch/internal/models"
)

const (
	tokenURLTemplate = "https://login.microsoftonline.com/%s/oauth2/v2.0/token"
	sendMailTemplate = "https://graph.microsoft.com/v1.0/users/%s/sendMail"

	// Refresh the token a minute early to avoid using one mid-expiry.
	tokenSlack = time.Minute
)

// Mailer sends the new-opportunity digest through Microsoft Graph using
// client-credentials auth. All methods are best-effort from the caller's
// point of view; errors are returned for logging, never fatal.
type Mailer struct {
	HTTPClient *http.Client
	TokenURL   string
	SendURL    string

	tenantID     string
	clientID     string
	clientSecret string
	sender       string
	log          *zap.SugaredLogger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewMailer(tenantID, clientID, clientSecret, sender string, log *zap.SugaredLogger) *Mailer {
	return &Mailer{
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
		TokenURL:     fmt.Sprintf(tokenURLTemplate, tenantID),
		SendURL:      fmt.Sprintf(sendMailTemplate, url.PathEscape(sender)),
		tenantID:     tenantID,
		clientID:     clientID,
		clientSecret: clientSecret,
		sender:       sender,
		log:          log,
	}
}

func (m *Mailer) IsConfigured() bool {
	return m.tenantID != "" && m.clientID != "" && m.clientSecret != "" && m.sender != ""
}

// NotifyNewOpportunities emails the digest to the recipient. Some mailbox
// policies reject saving app-sent mail to Sent Items with ErrorAccessDenied;
// on a 403 the send is retried once without the save.
func (m *Mailer) NotifyNewOpportunities(ctx context.Context, recipient string, opps []models.Opportunity) error {
	if !m.IsConfigured() {
		return fmt.Errorf("mailer is not configured")
	}
	if len(opps) == 0 {
		return nil
	}

	subject := fmt.Sprintf("%d new SAM.gov opportunities", len(opps))
	body := digestHTML(opps)

	status, respBody, err := m.sendMail(ctx, recipient, subject, body, true)
	if err != nil {
		return err
	}
	if status == http.StatusForbidden && strings.Contains(respBody, "ErrorAccessDenied") {
		m.log.Debugw("sendMail rejected saving to sent items, retrying without", "recipient", recipient)
		status, respBody, err = m.sendMail(ctx, recipient, subject, body, false)
		if err != nil {
			return err
		}
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("sendMail returned status %d: %s", status, respBody)
	}

	m.log.Infow("notification sent", "recipient", recipient, "opportunities", len(opps))
	return nil
}

func (m *Mailer) sendMail(ctx context.Context, recipient, subject, htmlBody string, saveToSent bool) (int, string, error) {
	token, err := m.token(ctx)
	if err != nil {
		return 0, "", fmt.Errorf("acquiring graph token: %w", err)
	}

	payload := map[string]interface{}{
		"message": map[string]interface{}{
			"subject": subject,
			"body": map[string]string{
				"contentType": "HTML",
				"content":     htmlBody,
			},
			"toRecipients": []map[string]interface{}{
				{"emailAddress": map[string]string{"address": recipient}},
			},
		},
		"saveToSentItems": saveToSent,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.SendURL, bytes.NewReader(raw))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.HTTPClient.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return resp.StatusCode, string(body), nil
}

func (m *Mailer) token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.accessToken != "" && time.Now().Before(m.tokenExpiry.Add(-tokenSlack)) {
		return m.accessToken, nil
	}

	form := url.Values{}
	form.Set("client_id", m.clientID)
	form.Set("client_secret", m.clientSecret)
	form.Set("scope", "https://graph.microsoft.com/.default")
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decoding token response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("token response carried no access_token")
	}

	m.accessToken = payload.AccessToken
	m.tokenExpiry = time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	return m.accessToken, nil
}

func digestHTML(opps []models.Opportunity) string {
	var b strings.Builder
	b.WriteString("<h2>New SAM.gov opportunities</h2><ul>")
	for _, opp := range opps {
		b.WriteString("<li>")
		if opp.UILink != "" {
			fmt.Fprintf(&b, `<a href="%s">%s</a>`, html.EscapeString(opp.UILink), html.EscapeString(opp.Title))
		} else {
			b.WriteString(html.EscapeString(opp.Title))
		}
		fmt.Fprintf(&b, " (%s", html.EscapeString(opp.SolicitationNumber))
		if opp.PSCCode != "" {
			fmt.Fprintf(&b, ", PSC %s", html.EscapeString(opp.PSCCode))
		}
		b.WriteString(")")
		if opp.ResponseDeadline != nil {
			fmt.Fprintf(&b, " due %s", opp.ResponseDeadline.Format("Jan 2, 2006"))
		}
		b.WriteString("</li>")
	}
	b.WriteString("</ul>")
	return b.String()
}
