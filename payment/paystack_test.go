package payment_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/hub-engine/generic"
	"github.com/warp/hub-engine/payment"
)

// gateway serves canned verify responses keyed by reference.
func gateway(t *testing.T, responses map[string]string) *payment.PaystackClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		ref := r.URL.Path[len("/transaction/verify/"):]
		body, ok := responses[ref]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"status":false,"message":"Transaction reference not found"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return payment.NewPaystackClient(srv.URL+"/", "sk_test")
}

func TestPaystack_Verify(t *testing.T) {
	client := gateway(t, map[string]string{
		"ref-1": `{"status":true,"message":"Verification successful","data":{
			"reference":"ref-1","status":"success","amount":15000050,
			"paid_at":"2025-02-03T09:30:00Z","metadata":{"enrollment_id":42}}}`,
		"ref-2": `{"status":true,"message":"ok","data":{"reference":"ref-2","status":"abandoned","amount":100,"metadata":""}}`,
	})

	v, err := client.Verify(context.Background(), "ref-1")
	require.NoError(t, err)
	assert.True(t, v.Succeeded())
	assert.Equal(t, "150000.5", v.Amount.String(), "kobo converted to naira")
	require.NotNil(t, v.PaidAt)
	assert.Equal(t, 2025, v.PaidAt.Year())
	assert.Equal(t, float64(42), v.Metadata["enrollment_id"])

	v, err = client.Verify(context.Background(), "ref-2")
	require.NoError(t, err)
	assert.False(t, v.Succeeded())
	assert.Nil(t, v.Metadata)
}

func TestPaystack_VerifyNotFound(t *testing.T) {
	client := gateway(t, nil)

	_, err := client.Verify(context.Background(), "missing")

	assert.True(t, generic.IsNotFound(err))
}

func TestPaystack_VerifyEmptyReference(t *testing.T) {
	client := payment.NewPaystackClient("", "sk_test")
	assert.Equal(t, payment.DefaultPaystackBaseURL, client.BaseURL)

	_, err := client.Verify(context.Background(), " ")
	assert.ErrorIs(t, err, generic.ErrValidation)
}

// =============================================================================
// VERIFY AND RECONCILE
// =============================================================================

type stubVerifier struct {
	v   *payment.Verification
	err error
}

func (s stubVerifier) Verify(context.Context, string) (*payment.Verification, error) {
	return s.v, s.err
}

func TestVerifyAndReconcile(t *testing.T) {
	t.Run("success reconciles", func(t *testing.T) {
		f := newFixture(t)
		f.seed(t, "ref-1")

		ver, res, err := payment.VerifyAndReconcile(context.Background(),
			stubVerifier{v: &payment.Verification{Reference: "ref-1", Status: "success"}}, f.rec, "ref-1")

		require.NoError(t, err)
		assert.True(t, ver.Succeeded())
		require.NotNil(t, res)
		assert.True(t, res.EnrollmentCreated)
	})

	t.Run("failed marks failed", func(t *testing.T) {
		f := newFixture(t)
		f.seed(t, "ref-1")

		_, res, err := payment.VerifyAndReconcile(context.Background(),
			stubVerifier{v: &payment.Verification{Reference: "ref-1", Status: "failed"}}, f.rec, "ref-1")

		require.NoError(t, err)
		assert.Nil(t, res)
		p, err := f.pay.GetPayment(context.Background(), "ref-1")
		require.NoError(t, err)
		assert.Equal(t, payment.StatusFailed, p.Status)
	})

	t.Run("pending leaves payment alone", func(t *testing.T) {
		f := newFixture(t)
		f.seed(t, "ref-1")

		_, res, err := payment.VerifyAndReconcile(context.Background(),
			stubVerifier{v: &payment.Verification{Reference: "ref-1", Status: "ongoing"}}, f.rec, "ref-1")

		require.NoError(t, err)
		assert.Nil(t, res)
		p, err := f.pay.GetPayment(context.Background(), "ref-1")
		require.NoError(t, err)
		assert.Equal(t, payment.StatusPending, p.Status)
	})

	t.Run("gateway error", func(t *testing.T) {
		f := newFixture(t)
		boom := errors.New("gateway down")

		_, _, err := payment.VerifyAndReconcile(context.Background(), stubVerifier{err: boom}, f.rec, "ref-1")

		assert.ErrorIs(t, err, boom)
	})
}
