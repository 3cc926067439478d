package bootstrap

import (
	"strings"

	appconfig "github.com/wolfman30/barbershop-booking/internal/config"
	"github.com/wolfman30/barbershop-booking/internal/gateway"
	"github.com/wolfman30/barbershop-booking/internal/pix"
	"github.com/wolfman30/barbershop-booking/pkg/logging"
)

// PixTemplate is the merchant data for locally generated PIX codes.
func PixTemplate(cfg *appconfig.Config) pix.Payload {
	return pix.Payload{
		Key:          cfg.PixKey,
		MerchantName: cfg.PixMerchantName,
		City:         cfg.PixMerchantCity,
	}
}

// BuildGateway picks MercadoPago for PIX and MercadoPago or Stripe for cards.
// Whatever has no credentials falls back to the simulator, reported by the
// second return value so its checkout pages can be mounted.
func BuildGateway(cfg *appconfig.Config, logger *logging.Logger) (*gateway.Router, bool) {
	if logger == nil {
		logger = logging.Default()
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")

	var sim *gateway.Simulator
	simulator := func() gateway.Adapter {
		if sim == nil {
			sim = gateway.NewSimulator(base, PixTemplate(cfg), logger)
		}
		return sim
	}

	var instant, card gateway.Adapter
	if strings.TrimSpace(cfg.MercadoPagoAccessToken) != "" {
		mp := gateway.NewMercadoPago(cfg.MercadoPagoAccessToken, cfg.MercadoPagoWebhookSecret, cfg.MercadoPagoBaseURL, logger).
			WithNotificationURL(base + "/webhooks/" + gateway.MercadoPagoName)
		instant, card = mp, mp
	} else {
		instant, card = simulator(), simulator()
	}

	if strings.TrimSpace(cfg.StripeSecretKey) != "" {
		successURL := cfg.StripeSuccessURL
		if successURL == "" {
			successURL = base + "/payments/success"
		}
		cancelURL := cfg.StripeCancelURL
		if cancelURL == "" {
			cancelURL = base + "/payments/cancelled"
		}
		card = gateway.NewStripe(gateway.StripeConfig{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
			SuccessURL:    successURL,
			CancelURL:     cancelURL,
		}, logger)
	}

	logger.Info("payment gateways configured", "instant", instant.Name(), "card", card.Name())
	return gateway.NewRouter(instant, card), sim != nil
}
