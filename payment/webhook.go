package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/warp/hub-engine/generic"
)

// SignatureHeader carries the gateway's HMAC of the raw request body.
const SignatureHeader = "X-Paystack-Signature"

const (
	EventChargeSuccess = "charge.success"
	EventChargeFailed  = "charge.failed"
)

// ErrInvalidSignature is returned for webhook bodies whose signature does
// not match.
var ErrInvalidSignature = fmt.Errorf("invalid webhook signature: %w", generic.ErrValidation)

// Sign returns the hex HMAC-SHA512 of body keyed by secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares signature with Sign(body, secret) in constant time.
func VerifySignature(body []byte, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected := Sign(body, secret)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}

type Event struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
	} `json:"data"`
}

// WebhookOutcome says what a webhook delivery led to.
type WebhookOutcome struct {
	Event     string
	Reference string
	Handled   bool
	Result    *Result
}

type WebhookHandler struct {
	Secret     string
	Reconciler *Reconciler
}

func NewWebhookHandler(secret string, r *Reconciler) *WebhookHandler {
	return &WebhookHandler{Secret: secret, Reconciler: r}
}

// Handle verifies and dispatches one webhook delivery. Events other than
// charge.success and charge.failed are acknowledged and ignored, as are
// references with no payment row, since the gateway retries anything it
// does not see acknowledged.
func (h *WebhookHandler) Handle(ctx context.Context, body []byte, signature string) (WebhookOutcome, error) {
	if !VerifySignature(body, signature, h.Secret) {
		log.Printf("[Payment] webhook rejected: bad signature")
		return WebhookOutcome{}, ErrInvalidSignature
	}

	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return WebhookOutcome{}, generic.Invalid("body", "malformed webhook payload")
	}
	out := WebhookOutcome{Event: ev.Event, Reference: ev.Data.Reference}

	switch ev.Event {
	case EventChargeSuccess:
		res, err := h.Reconciler.Reconcile(ctx, ev.Data.Reference)
		if generic.IsNotFound(err) {
			log.Printf("[Payment] webhook: no payment for reference %q, ignoring", ev.Data.Reference)
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out.Handled = true
		out.Result = res
		log.Printf("[Payment] webhook: payment successful %s", ev.Data.Reference)
	case EventChargeFailed:
		_, err := h.Reconciler.MarkFailed(ctx, ev.Data.Reference)
		if generic.IsNotFound(err) {
			log.Printf("[Payment] webhook: no payment for reference %q, ignoring", ev.Data.Reference)
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out.Handled = true
		log.Printf("[Payment] webhook: payment failed %s", ev.Data.Reference)
	default:
		log.Printf("[Payment] webhook: ignoring event %q", ev.Event)
	}
	return out, nil
}
