package services

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
	"gopkg.in/gomail.v2"

	"taskhub/internal/config"
)

// EmailService delivers the links produced by the auth workflows.
type EmailService interface {
	SendVerificationEmail(ctx context.Context, to, name, link string, expiresIn time.Duration) error
	SendPasswordResetEmail(ctx context.Context, to, name, link string, expiresIn time.Duration) error
}

// mailSender is satisfied by *gomail.Dialer.
type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

type emailService struct {
	sender     mailSender
	from       string
	fromName   string
	maxRetries uint64
	retryBase  time.Duration
	dryRun     bool
	log        *slog.Logger
}

func NewEmailService(cfg config.EmailConfig, log *slog.Logger) EmailService {
	dialer := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword)
	return newEmailService(dialer, cfg, log)
}

func newEmailService(sender mailSender, cfg config.EmailConfig, log *slog.Logger) *emailService {
	base := cfg.RetryBase
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	return &emailService{
		sender:     sender,
		from:       cfg.FromEmail,
		fromName:   cfg.FromName,
		maxRetries: cfg.MaxRetries,
		retryBase:  base,
		dryRun:     cfg.DryRun,
		log:        log,
	}
}

var (
	verificationTemplate = template.Must(template.New("verification").Parse(`
		<h2>Welcome to {{.App}}, {{.Name}}!</h2>
		<p>Please confirm your email address to activate your account.</p>
		<p><a href="{{.Link}}">Verify email</a></p>
		<p>The link expires in {{.ExpiresIn}}. If you did not sign up, you can ignore this email.</p>
	`))
	resetTemplate = template.Must(template.New("reset").Parse(`
		<h3>Password reset requested</h3>
		<p>Hi {{.Name}}, we received a request to reset the password for your {{.App}} account.</p>
		<p><a href="{{.Link}}">Reset password</a></p>
		<p>The link expires in {{.ExpiresIn}}. If you did not request this change, you can ignore this email.</p>
	`))
)

type emailData struct {
	App       string
	Name      string
	Link      string
	ExpiresIn string
}

func (s *emailService) render(t *template.Template, name, link string, expiresIn time.Duration) (string, error) {
	var buf bytes.Buffer
	err := t.Execute(&buf, emailData{
		App:       s.fromName,
		Name:      name,
		Link:      link,
		ExpiresIn: humanDuration(expiresIn),
	})
	if err != nil {
		return "", fmt.Errorf("render %s email: %w", t.Name(), err)
	}
	return buf.String(), nil
}

// humanDuration formats d in the largest whole unit, e.g. "1 hour", "15 minutes".
func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d >= time.Minute:
		return plural(int(d/time.Minute), "minute")
	default:
		return plural(int(d/time.Second), "second")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

func (s *emailService) SendVerificationEmail(ctx context.Context, to, name, link string, expiresIn time.Duration) error {
	body, err := s.render(verificationTemplate, name, link, expiresIn)
	if err != nil {
		return err
	}
	if err := s.send(ctx, to, "Verify your email", body, link); err != nil {
		return fmt.Errorf("failed to send verification email: %w", err)
	}
	return nil
}

func (s *emailService) SendPasswordResetEmail(ctx context.Context, to, name, link string, expiresIn time.Duration) error {
	body, err := s.render(resetTemplate, name, link, expiresIn)
	if err != nil {
		return err
	}
	if err := s.send(ctx, to, "Reset your password", body, link); err != nil {
		return fmt.Errorf("failed to send password reset email: %w", err)
	}
	return nil
}

func (s *emailService) send(ctx context.Context, to, subject, body, link string) error {
	if s.dryRun {
		s.log.InfoContext(ctx, "email dry run", "to", to, "subject", subject, "link", link)
		return nil
	}

	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.from, s.fromName)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	backoff := retry.WithMaxRetries(s.maxRetries, retry.NewExponential(s.retryBase))
	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := s.sender.DialAndSend(m); err != nil {
			s.log.WarnContext(ctx, "smtp send failed", "to", to, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
}
