package webhooks

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-webhook-intake/core"
)

// DeliveryIDExtractor pulls the provider's delivery identifier from an
// inbound event for deduplication.
type DeliveryIDExtractor func(event core.InboundEvent) (string, error)

// ProviderWebhookTemplate bundles the provider identity with its stock
// signature verifier and delivery-id extractor.
type ProviderWebhookTemplate struct {
	ProviderID string
	Verifier   core.SignatureVerifier
	Extractor  DeliveryIDExtractor
}

func HeaderDeliveryIDExtractor(headers ...string) DeliveryIDExtractor {
	keys := append([]string(nil), headers...)
	return func(event core.InboundEvent) (string, error) {
		for _, key := range keys {
			if value := strings.TrimSpace(headerValue(event.Headers, key)); value != "" {
				return value, nil
			}
		}
		return "", fmt.Errorf("webhooks: delivery id is required for dedupe")
	}
}

func ChainDeliveryIDExtractors(extractors ...DeliveryIDExtractor) DeliveryIDExtractor {
	list := append([]DeliveryIDExtractor(nil), extractors...)
	return func(event core.InboundEvent) (string, error) {
		var lastErr error
		for _, extractor := range list {
			if extractor == nil {
				continue
			}
			deliveryID, err := extractor(event)
			if err == nil && strings.TrimSpace(deliveryID) != "" {
				return strings.TrimSpace(deliveryID), nil
			}
			if err != nil {
				lastErr = err
			}
		}
		if lastErr != nil {
			return "", lastErr
		}
		return "", fmt.Errorf("webhooks: delivery id is required for dedupe")
	}
}

func NewSquareWebhookTemplate(secret string) ProviderWebhookTemplate {
	return ProviderWebhookTemplate{
		ProviderID: "square",
		Verifier: HeaderHMACVerifier{
			Header:   "X-Square-Hmacsha256-Signature",
			Secret:   strings.TrimSpace(secret),
			Encoding: "base64",
		},
		Extractor: HeaderDeliveryIDExtractor("Square-Event-Id", "X-Square-Request-Id"),
	}
}

func NewStripeWebhookTemplate(secret string) ProviderWebhookTemplate {
	return ProviderWebhookTemplate{
		ProviderID: "stripe",
		Verifier: HeaderHMACVerifier{
			Header:   "Stripe-Signature",
			Prefix:   "v1=",
			Secret:   strings.TrimSpace(secret),
			Encoding: "hex",
		},
		Extractor: HeaderDeliveryIDExtractor("Stripe-Event-Id", "Request-Id"),
	}
}

func NewCloverWebhookTemplate(secret string) ProviderWebhookTemplate {
	return ProviderWebhookTemplate{
		ProviderID: "clover",
		Verifier: HeaderHMACVerifier{
			Header:   "X-Clover-Auth",
			Secret:   strings.TrimSpace(secret),
			Encoding: "hex",
		},
		Extractor: HeaderDeliveryIDExtractor("X-Clover-Event-Id", "X-Request-Id"),
	}
}

func NewToastWebhookTemplate(secret string) ProviderWebhookTemplate {
	return ProviderWebhookTemplate{
		ProviderID: "toast",
		Verifier: HeaderHMACVerifier{
			Header:   "Toast-Signature",
			Secret:   strings.TrimSpace(secret),
			Encoding: "base64",
		},
		Extractor: HeaderDeliveryIDExtractor("Toast-Webhook-Id", "Toast-Request-Id"),
	}
}

func NewLightspeedWebhookTemplate(verificationToken string) ProviderWebhookTemplate {
	return ProviderWebhookTemplate{
		ProviderID: "lightspeed",
		Verifier: HeaderTokenVerifier{
			Header: "X-Lightspeed-Token",
			Token:  strings.TrimSpace(verificationToken),
		},
		Extractor: HeaderDeliveryIDExtractor("X-Lightspeed-Event-Id", "X-Request-Id"),
	}
}
