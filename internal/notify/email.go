package notify

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	"net/http"
	"strings"
	texttemplate "text/template"

	brevo "github.com/getbrevo/brevo-go/lib"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const welcomeSubject = "Welcome to Your AI Fluency Journey!"

var welcomeHTML = htmltemplate.Must(htmltemplate.New("welcome.html").Parse(`<h1>Welcome {{.Name}}!</h1>
<p>Thank you for joining the {{.Product}}.</p>
<p>Here's what happens next:</p>
<ul>
  <li>Within 24 hours, we'll reach out to schedule your first session</li>
  <li>You'll receive a brief questionnaire to help us tailor your experience</li>
  <li>We'll send calendar invitations for all your sessions</li>
</ul>
<p>If you have any immediate questions, reply to this email or reach out to {{.Support}}</p>
<p>Looking forward to partnering with you!</p>
<p>Michele &amp; Julie</p>
`))

var welcomeText = texttemplate.Must(texttemplate.New("welcome.txt").Parse(`Welcome {{.Name}}!

Thank you for joining the {{.Product}}.

Here's what happens next:
- Within 24 hours, we'll reach out to schedule your first session
- You'll receive a brief questionnaire to help us tailor your experience
- We'll send calendar invitations for all your sessions

If you have any immediate questions, reply to this email or reach out to {{.Support}}

Looking forward to partnering with you!
Michele & Julie
`))

type welcomeView struct {
	Name    string
	Product string
	Support string
}

// BrevoConfig groups transactional email settings.
type BrevoConfig struct {
	APIKey     string
	BaseURL    string
	From       string
	FromName   string
	ReplyTo    string
	Support    string
	HTTPClient *http.Client
}

// BrevoSender delivers the welcome email through Brevo's transactional API.
type BrevoSender struct {
	client   *brevo.APIClient
	from     string
	fromName string
	replyTo  string
	support  string
}

// NewBrevoSender configures a Brevo API client.
func NewBrevoSender(cfg BrevoConfig) *BrevoSender {
	apiCfg := brevo.NewConfiguration()
	apiCfg.AddDefaultHeader("api-key", strings.TrimSpace(cfg.APIKey))
	if base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
		apiCfg.BasePath = base
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	apiCfg.HTTPClient = httpClient

	support := cfg.Support
	if support == "" {
		support = cfg.ReplyTo
	}
	return &BrevoSender{
		client:   brevo.NewAPIClient(apiCfg),
		from:     cfg.From,
		fromName: cfg.FromName,
		replyTo:  cfg.ReplyTo,
		support:  support,
	}
}

// Channel implements Sender.
func (b *BrevoSender) Channel() string { return "email" }

// Send implements Sender.
func (b *BrevoSender) Send(ctx context.Context, n Notice) error {
	html, text, err := RenderWelcome(n, b.support)
	if err != nil {
		return err
	}
	email := brevo.SendSmtpEmail{
		Sender:      &brevo.SendSmtpEmailSender{Name: b.fromName, Email: b.from},
		To:          []brevo.SendSmtpEmailTo{{Email: n.Email, Name: n.Name}},
		Subject:     welcomeSubject,
		HtmlContent: html,
		TextContent: text,
		Tags:        []string{"welcome"},
	}
	if b.replyTo != "" {
		email.ReplyTo = &brevo.SendSmtpEmailReplyTo{Email: b.replyTo}
	}
	if n.ProductKey != "" {
		email.Tags = append(email.Tags, n.ProductKey)
	}
	_, resp, err := b.client.TransactionalEmailsApi.SendTransacEmail(ctx, email)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return fmt.Errorf("brevo: status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("brevo: %w", err)
	}
	return nil
}

// RenderWelcome renders the HTML and plain-text bodies of the welcome email.
func RenderWelcome(n Notice, support string) (string, string, error) {
	product := n.Product
	if product == "" {
		product = "Executive AI Fluency Sprint"
	}
	view := welcomeView{Name: n.Name, Product: product, Support: support}
	var html, text bytes.Buffer
	if err := welcomeHTML.Execute(&html, view); err != nil {
		return "", "", fmt.Errorf("render welcome html: %w", err)
	}
	if err := welcomeText.Execute(&text, view); err != nil {
		return "", "", fmt.Errorf("render welcome text: %w", err)
	}
	return html.String(), text.String(), nil
}
