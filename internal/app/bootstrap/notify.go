package bootstrap

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/hibiken/asynq"

	appconfig "github.com/wolfman30/autolead-ai-platform/internal/config"
	"github.com/wolfman30/autolead-ai-platform/internal/notify"
	"github.com/wolfman30/autolead-ai-platform/pkg/logging"
)

// BuildEmailSender selects the provider named by EMAIL_PROVIDER. A provider
// missing its credentials degrades to the stub sender.
func BuildEmailSender(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) notify.EmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	provider := strings.ToLower(strings.TrimSpace(cfg.EmailProvider))
	switch provider {
	case "sendgrid":
		if s := notify.NewSendGridSender(cfg.SendGridAPIKey, notify.Sender{Email: cfg.SendGridFromEmail, Name: cfg.SendGridFromName}, logger); s != nil {
			return s
		}
	case "ses":
		if strings.TrimSpace(cfg.SESFromEmail) != "" {
			return notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.Sender{Email: cfg.SESFromEmail}, logger)
		}
	case "smtp":
		smtpCfg := notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
		}
		if s := notify.NewSMTPSender(smtpCfg, notify.Sender{Email: cfg.SMTPFrom}, logger); s != nil {
			return s
		}
	case "", "stub":
		return notify.NewStubEmailSender(logger)
	}
	logger.Warn("email provider not configured, using stub", "provider", provider)
	return notify.NewStubEmailSender(logger)
}

// BuildNotifyService wires the manager-facing notification service.
func BuildNotifyService(cfg *appconfig.Config, email notify.EmailSender, leadsRepo notify.LeadReader, logger *logging.Logger) *notify.Service {
	return notify.NewService(email, notify.Sender{Email: cfg.ManagerEmail, Name: cfg.ManagerName}, leadsRepo, logger)
}

// BuildDispatcher returns the asynq dispatcher when Redis is configured and
// the in-process one otherwise. The returned func releases it on shutdown.
func BuildDispatcher(cfg *appconfig.Config, svc *notify.Service, logger *logging.Logger) (notify.Dispatcher, func()) {
	if logger == nil {
		logger = logging.Default()
	}
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		client := asynq.NewClient(notify.RedisOpt(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisTLS))
		logger.Info("notifications queued on redis", "queue", cfg.AsynqQueue)
		return notify.NewAsynqDispatcher(client, cfg.AsynqQueue), func() {
			if err := client.Close(); err != nil {
				logger.Warn("failed to close asynq client", "error", err)
			}
		}
	}
	logger.Warn("no redis configured; notifications run in-process")
	d := notify.NewInProcessDispatcher(svc, logger)
	return d, d.Close
}
