package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/hub-engine/generic"
)

const DefaultPaystackBaseURL = "https://api.paystack.co"

// Verification is the gateway's view of a transaction.
type Verification struct {
	Reference string
	Status    string
	// Amount in major units (the gateway reports kobo).
	Amount   decimal.Decimal
	PaidAt   *time.Time
	Metadata map[string]any
}

func (v Verification) Succeeded() bool { return v.Status == "success" }

// Verifier asks the gateway about a transaction.
type Verifier interface {
	Verify(ctx context.Context, reference string) (*Verification, error)
}

type PaystackClient struct {
	BaseURL   string
	SecretKey string
	HTTP      *http.Client
}

func NewPaystackClient(baseURL, secretKey string) *PaystackClient {
	if baseURL == "" {
		baseURL = DefaultPaystackBaseURL
	}
	return &PaystackClient{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		SecretKey: secretKey,
		HTTP:      &http.Client{Timeout: 15 * time.Second},
	}
}

type paystackVerifyResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Reference string          `json:"reference"`
		Status    string          `json:"status"`
		Amount    int64           `json:"amount"`
		PaidAt    *time.Time      `json:"paid_at"`
		Metadata  json.RawMessage `json:"metadata"`
	} `json:"data"`
}

var kobo = decimal.NewFromInt(100)

func (c *PaystackClient) Verify(ctx context.Context, reference string) (*Verification, error) {
	if strings.TrimSpace(reference) == "" {
		return nil, generic.Invalid("reference", "required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.BaseURL+"/transaction/verify/"+url.PathEscape(reference), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("paystack verify %s: %w", reference, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, &generic.NotFoundError{Entity: "transaction", ID: reference}
	}
	var body paystackVerifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("paystack verify %s: decode: %w", reference, err)
	}
	if resp.StatusCode != http.StatusOK || !body.Status {
		return nil, fmt.Errorf("paystack verify %s: %d %s", reference, resp.StatusCode, body.Message)
	}

	v := &Verification{
		Reference: body.Data.Reference,
		Status:    body.Data.Status,
		Amount:    decimal.NewFromInt(body.Data.Amount).Div(kobo),
		PaidAt:    body.Data.PaidAt,
	}
	// Metadata is an object, or "" when none was attached.
	if len(body.Data.Metadata) > 0 && body.Data.Metadata[0] == '{' {
		if err := json.Unmarshal(body.Data.Metadata, &v.Metadata); err != nil {
			return nil, fmt.Errorf("paystack verify %s: metadata: %w", reference, err)
		}
	}
	return v, nil
}

// VerifyAndReconcile asks the gateway about reference and reconciles it
// when the charge succeeded. A charge that did not succeed is marked failed
// only when the gateway says so explicitly.
func VerifyAndReconcile(ctx context.Context, v Verifier, r *Reconciler, reference string) (*Verification, *Result, error) {
	ver, err := v.Verify(ctx, reference)
	if err != nil {
		return nil, nil, err
	}
	switch ver.Status {
	case "success":
		res, err := r.Reconcile(ctx, reference)
		return ver, res, err
	case "failed":
		_, err := r.MarkFailed(ctx, reference)
		return ver, nil, err
	}
	return ver, nil, nil
}
