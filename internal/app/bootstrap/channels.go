package bootstrap

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/wolfman30/barbershop-booking/internal/config"
	"github.com/wolfman30/barbershop-booking/internal/notify"
	"github.com/wolfman30/barbershop-booking/pkg/logging"
)

// BuildEmailSender selects SendGrid, SES or the stub from EMAIL_PROVIDER.
// "auto" prefers SendGrid when a key is set. awsCfg is only read for SES.
func BuildEmailSender(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (notify.EmailSender, string) {
	if logger == nil {
		logger = logging.Default()
	}
	sendgrid := func() notify.EmailSender {
		if s := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); s != nil {
			return s
		}
		return nil
	}

	switch cfg.EmailProvider {
	case "ses":
		if awsCfg == nil || strings.TrimSpace(cfg.SESFromEmail) == "" {
			logger.Warn("ses email requested without aws config or sender; using stub")
			break
		}
		return notify.NewSESSender(sesv2.NewFromConfig(*awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger), "ses"
	case "stub":
	default:
		if s := sendgrid(); s != nil {
			return s, "sendgrid"
		}
		if cfg.EmailProvider == "sendgrid" {
			logger.Warn("sendgrid email requested without api key; using stub")
		}
	}
	return notify.NewStubEmailSender(logger), "stub"
}

// BuildSMSSender uses Twilio when credentials are present.
func BuildSMSSender(cfg *appconfig.Config, logger *logging.Logger) (notify.SMSSender, string) {
	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" && cfg.TwilioFromNumber != "" {
		return notify.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, logger), "twilio"
	}
	return notify.NewStubSMSSender(logger), "stub"
}

// BuildChannelOptions enables both notification channels on the dispatcher.
func BuildChannelOptions(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) []notify.DispatcherOption {
	if logger == nil {
		logger = logging.Default()
	}
	email, emailProvider := BuildEmailSender(cfg, awsCfg, logger)
	sms, smsProvider := BuildSMSSender(cfg, logger)
	logger.Info("notification channels configured", "email", emailProvider, "message", smsProvider)
	return []notify.DispatcherOption{
		notify.WithSender(notify.ChannelEmail, notify.NewEmailChannel(email)),
		notify.WithSender(notify.ChannelMessage, notify.NewMessageChannel(sms)),
	}
}
