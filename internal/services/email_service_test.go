package services

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"taskhub/internal/config"
	"taskhub/internal/logging"
)

type flakySender struct {
	failures int
	calls    int
	last     *gomail.Message
}

func (f *flakySender) DialAndSend(m ...*gomail.Message) error {
	f.calls++
	f.last = m[0]
	if f.calls <= f.failures {
		return errors.New("421 try again later")
	}
	return nil
}

func testEmailConfig() config.EmailConfig {
	return config.EmailConfig{
		FromEmail:  "no-reply@taskhub.test",
		FromName:   "DockIt",
		MaxRetries: 2,
		RetryBase:  time.Millisecond,
	}
}

func TestEmailService_RetriesTransientFailures(t *testing.T) {
	sender := &flakySender{failures: 2}
	svc := newEmailService(sender, testEmailConfig(), logging.Discard())

	err := svc.SendVerificationEmail(context.Background(), "a@x.com", "A", "http://client.test/verify-email?token=t", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 3, sender.calls)

	assert.Equal(t, []string{"a@x.com"}, sender.last.GetHeader("To"))
	assert.Equal(t, []string{"Verify your email"}, sender.last.GetHeader("Subject"))
	require.Len(t, sender.last.GetHeader("From"), 1)
	assert.Contains(t, sender.last.GetHeader("From")[0], "DockIt")
}

func TestEmailService_GivesUpAfterMaxRetries(t *testing.T) {
	sender := &flakySender{failures: 10}
	svc := newEmailService(sender, testEmailConfig(), logging.Discard())

	err := svc.SendPasswordResetEmail(context.Background(), "a@x.com", "A", "http://client.test/reset-password?token=t", 15*time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password reset email")
	assert.Equal(t, 3, sender.calls)
}

func TestEmailService_DryRunSkipsSMTP(t *testing.T) {
	sender := &flakySender{failures: 10}
	cfg := testEmailConfig()
	cfg.DryRun = true
	var logs bytes.Buffer
	svc := newEmailService(sender, cfg, logging.New(&logs, "info"))

	require.NoError(t, svc.SendVerificationEmail(context.Background(), "a@x.com", "A", "http://link", time.Hour))
	assert.Zero(t, sender.calls)
	assert.Contains(t, logs.String(), "email dry run")
	assert.Contains(t, logs.String(), "http://link")
}

func TestEmailService_EscapesUserSuppliedName(t *testing.T) {
	svc := newEmailService(&flakySender{}, testEmailConfig(), logging.Discard())
	name := `<a href="http://evil.test">Click here</a>`

	body, err := svc.render(verificationTemplate, name, "http://client.test/verify-email?token=t", time.Hour)
	require.NoError(t, err)
	assert.NotContains(t, body, name)
	assert.Contains(t, body, "&lt;a href=&#34;http://evil.test&#34;&gt;Click here&lt;/a&gt;")
	assert.Contains(t, body, `href="http://client.test/verify-email?token=t"`)

	body, err = svc.render(resetTemplate, name, "http://client.test/reset-password?token=t", 15*time.Minute)
	require.NoError(t, err)
	assert.NotContains(t, body, name)
}

func TestEmailService_ExpiryFollowsTTL(t *testing.T) {
	svc := newEmailService(&flakySender{}, testEmailConfig(), logging.Discard())

	body, err := svc.render(verificationTemplate, "A", "http://link", 2*time.Hour)
	require.NoError(t, err)
	assert.Contains(t, body, "expires in 2 hours")

	body, err = svc.render(resetTemplate, "A", "http://link", 15*time.Minute)
	require.NoError(t, err)
	assert.Contains(t, body, "expires in 15 minutes")
}

func TestHumanDuration(t *testing.T) {
	assert.Equal(t, "1 hour", humanDuration(time.Hour))
	assert.Equal(t, "168 hours", humanDuration(7*24*time.Hour))
	assert.Equal(t, "90 minutes", humanDuration(90*time.Minute))
	assert.Equal(t, "1 minute", humanDuration(time.Minute))
	assert.Equal(t, "30 seconds", humanDuration(30*time.Second))
}
