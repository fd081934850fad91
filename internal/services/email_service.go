package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	pkglogger "github.com/censusconnect/gatekeeper/pkg/logger"
)

// EmailSender delivers lifecycle emails. Implementations must not block
// longer than the supplied context allows.
type EmailSender interface {
	SendActivationEmail(ctx context.Context, toEmail, token string, expiresAt time.Time) error
	SendPasswordResetEmail(ctx context.Context, toEmail, token string, expiresAt time.Time) error
}

// SESEmailSender sends lifecycle emails through AWS SES
type SESEmailSender struct {
	client      *ses.Client
	fromAddress string
	baseURL     string
	logger      *slog.Logger
}

// NewSESEmailSender creates an SES-backed sender using the default AWS
// credential chain.
func NewSESEmailSender(ctx context.Context, region, fromAddress, baseURL string, logger *slog.Logger) (*SESEmailSender, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &SESEmailSender{
		client:      ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		baseURL:     baseURL,
		logger:      logger,
	}, nil
}

func (s *SESEmailSender) send(ctx context.Context, toEmail, subject, body string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{toEmail},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data:    aws.String(body),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("sending email via SES: %w", err)
	}

	s.logger.Info("email sent",
		slog.String("to", pkglogger.SanitizedEmail(toEmail)),
		slog.String("subject", subject),
		slog.String("message_id", aws.ToString(result.MessageId)))

	return nil
}

func (s *SESEmailSender) SendActivationEmail(ctx context.Context, toEmail, token string, expiresAt time.Time) error {
	link := fmt.Sprintf("%s/activate/%s", s.baseURL, token)
	body := fmt.Sprintf(
		"Welcome!\n\nActivate your account by visiting:\n\n%s\n\nThis link expires at %s.\n\nIf you did not create an account, ignore this email.\n",
		link, expiresAt.UTC().Format(time.RFC1123))

	return s.send(ctx, toEmail, "Activate your account", body)
}

func (s *SESEmailSender) SendPasswordResetEmail(ctx context.Context, toEmail, token string, expiresAt time.Time) error {
	link := fmt.Sprintf("%s/reset_password/%s", s.baseURL, token)
	body := fmt.Sprintf(
		"A password reset was requested for your account.\n\nReset your password by visiting:\n\n%s\n\nThis link expires at %s.\n\nIf you did not request a reset, ignore this email.\n",
		link, expiresAt.UTC().Format(time.RFC1123))

	return s.send(ctx, toEmail, "Reset your password", body)
}

// LogEmailSender writes emails to the log instead of delivering them.
// Used in development and tests, and whenever no from-address is configured.
type LogEmailSender struct {
	logger *slog.Logger
}

// NewLogEmailSender creates a logging email sender
func NewLogEmailSender(logger *slog.Logger) *LogEmailSender {
	return &LogEmailSender{logger: logger}
}

func (s *LogEmailSender) SendActivationEmail(_ context.Context, toEmail, token string, expiresAt time.Time) error {
	s.logger.Info("activation email (log sender)",
		slog.String("to", pkglogger.SanitizedEmail(toEmail)),
		slog.String("token_prefix", pkglogger.TokenPrefix(token)),
		slog.Time("expires_at", expiresAt))
	return nil
}

func (s *LogEmailSender) SendPasswordResetEmail(_ context.Context, toEmail, token string, expiresAt time.Time) error {
	s.logger.Info("password reset email (log sender)",
		slog.String("to", pkglogger.SanitizedEmail(toEmail)),
		slog.String("token_prefix", pkglogger.TokenPrefix(token)),
		slog.Time("expires_at", expiresAt))
	return nil
}
