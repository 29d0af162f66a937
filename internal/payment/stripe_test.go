package payment

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syedhariswaseem/lazr/internal/domain"
)

var testCustomer = domain.CustomerInfo{
	FirstName: "Ada",
	LastName:  "Lovelace",
	Email:     "ada@example.com",
	Phone:     "555-0100",
	Company:   "Engines Ltd",
	Address:   "1 Analytical Way",
	City:      "London",
	State:     "LDN",
	ZipCode:   "N1",
	Country:   "gb",
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type capturedRequest struct {
	method string
	path   string
	query  url.Values
	form   url.Values
	header http.Header
}

// fakeStripe serves canned responses per path and records every request.
func fakeStripe(t *testing.T, routes map[string]func(w http.ResponseWriter)) (*StripeClient, *[]capturedRequest) {
	t.Helper()
	var captured []capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		captured = append(captured, capturedRequest{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.Query(),
			form:   r.PostForm,
			header: r.Header.Clone(),
		})
		handler, ok := routes[r.URL.Path]
		if !ok {
			writeJSON(w, http.StatusNotFound, `{"error":{"type":"invalid_request_error","code":"resource_missing","message":"No such payment_intent"}}`)
			return
		}
		handler(w)
	}))
	t.Cleanup(srv.Close)

	client, err := NewStripeClient(StripeConfig{SecretKey: "sk_test_123", APIBase: srv.URL}, discardLogger())
	require.NoError(t, err)
	return client, &captured
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestNewStripeClient_ValidatesKey(t *testing.T) {
	_, err := NewStripeClient(StripeConfig{}, discardLogger())
	assert.ErrorIs(t, err, ErrMissingCredentials)

	_, err = NewStripeClient(StripeConfig{SecretKey: "pk_test_123"}, discardLogger())
	assert.Error(t, err)

	_, err = NewStripeClient(StripeConfig{SecretKey: "rk_live_123"}, discardLogger())
	assert.NoError(t, err)
}

func TestCreateSession_SendsAmountMetadataAndItems(t *testing.T) {
	client, captured := fakeStripe(t, map[string]func(http.ResponseWriter){
		"/v1/payment_intents": func(w http.ResponseWriter) {
			writeJSON(w, http.StatusOK, `{"id":"pi_123","client_secret":"pi_123_secret_abc","amount":135000,"currency":"usd","status":"requires_payment_method"}`)
		},
	})

	sess, err := client.CreateSession(context.Background(), SessionRequest{
		Items:          []domain.OrderItem{{Name: "Product A", Quantity: 1, Price: 125000}},
		Customer:       testCustomer,
		Amount:         135000,
		Currency:       "USD",
		IdempotencyKey: "sid-1:abc",
		Metadata:       map[string]string{"session_id": "sid-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, &Session{ID: "pi_123", ClientSecret: "pi_123_secret_abc", Amount: 135000, Currency: "usd", Status: StatusRequiresPaymentMethod}, sess)

	require.Len(t, *captured, 1)
	req := (*captured)[0]
	assert.Equal(t, http.MethodPost, req.method)
	assert.Equal(t, "Bearer sk_test_123", req.header.Get("Authorization"))
	assert.Equal(t, "sid-1:abc", req.header.Get("Idempotency-Key"))
	assert.Equal(t, "135000", req.form.Get("amount"))
	assert.Equal(t, "usd", req.form.Get("currency"))
	assert.Equal(t, "card", req.form.Get("payment_method_types[]"))
	assert.Equal(t, "Ada Lovelace", req.form.Get("metadata[customer_name]"))
	assert.Equal(t, "ada@example.com", req.form.Get("metadata[customer_email]"))
	assert.Equal(t, "555-0100", req.form.Get("metadata[customer_phone]"))
	assert.Equal(t, "Engines Ltd", req.form.Get("metadata[customer_company]"))
	assert.Equal(t, "sid-1", req.form.Get("metadata[session_id]"))
	assert.JSONEq(t, `[{"name":"Product A","quantity":1,"price":125000}]`, req.form.Get("metadata[items]"))
}

func TestCreateSession_RejectedByProcessor(t *testing.T) {
	client, _ := fakeStripe(t, map[string]func(http.ResponseWriter){
		"/v1/payment_intents": func(w http.ResponseWriter) {
			writeJSON(w, http.StatusBadRequest, `{"error":{"type":"invalid_request_error","code":"amount_too_large","message":"Amount must be no more than $999,999.99"}}`)
		},
	})

	_, err := client.CreateSession(context.Background(), SessionRequest{Customer: testCustomer, Amount: 1e12})

	var gw *GatewayError
	require.ErrorAs(t, err, &gw)
	assert.Equal(t, KindRejected, gw.Kind)
	assert.Equal(t, "amount_too_large", gw.Code)
	assert.Equal(t, "Amount must be no more than $999,999.99", gw.Message)
}

func TestCreateSession_BadKeyIsMisconfiguration(t *testing.T) {
	client, _ := fakeStripe(t, map[string]func(http.ResponseWriter){
		"/v1/payment_intents": func(w http.ResponseWriter) {
			writeJSON(w, http.StatusUnauthorized, `{"error":{"type":"invalid_request_error","message":"Invalid API Key provided"}}`)
		},
	})

	_, err := client.CreateSession(context.Background(), SessionRequest{Customer: testCustomer, Amount: 100})

	var gw *GatewayError
	require.ErrorAs(t, err, &gw)
	assert.Equal(t, KindMisconfigured, gw.Kind)
}

func TestCreateSession_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()
	client, err := NewStripeClient(StripeConfig{SecretKey: "sk_test_123", APIBase: base}, discardLogger())
	require.NoError(t, err)

	_, err = client.CreateSession(context.Background(), SessionRequest{Customer: testCustomer, Amount: 100})

	var gw *GatewayError
	require.ErrorAs(t, err, &gw)
	assert.Equal(t, KindUnreachable, gw.Kind)
}

func TestCreateSession_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client, err := NewStripeClient(StripeConfig{SecretKey: "sk_test_123", APIBase: srv.URL, Timeout: 50 * time.Millisecond}, discardLogger())
	require.NoError(t, err)

	_, err = client.CreateSession(context.Background(), SessionRequest{Customer: testCustomer, Amount: 100})

	var gw *GatewayError
	require.ErrorAs(t, err, &gw)
	assert.Equal(t, KindUnreachable, gw.Kind)
}

func TestConfirmSession_Succeeded(t *testing.T) {
	client, captured := fakeStripe(t, map[string]func(http.ResponseWriter){
		"/v1/payment_intents/pi_123/confirm": func(w http.ResponseWriter) {
			writeJSON(w, http.StatusOK, `{"id":"pi_123","status":"succeeded","amount":135000,"currency":"usd"}`)
		},
	})

	conf, err := client.ConfirmSession(context.Background(), ConfirmRequest{SessionID: "pi_123", PaymentMethod: "pm_card_visa", Customer: testCustomer})
	require.NoError(t, err)
	assert.Equal(t, &Confirmation{PaymentID: "pi_123", Status: StatusSucceeded}, conf)

	form := (*captured)[0].form
	assert.Equal(t, "pm_card_visa", form.Get("payment_method"))
	assert.Equal(t, "Ada Lovelace", form.Get("shipping[name]"))
	assert.Equal(t, "N1", form.Get("shipping[address][postal_code]"))
	assert.Equal(t, "GB", form.Get("shipping[address][country]"))
}

func TestConfirmSession_CardDeclinedIsNotAnError(t *testing.T) {
	client, _ := fakeStripe(t, map[string]func(http.ResponseWriter){
		"/v1/payment_intents/pi_123/confirm": func(w http.ResponseWriter) {
			writeJSON(w, http.StatusPaymentRequired, `{"error":{"type":"card_error","code":"card_declined","decline_code":"insufficient_funds","message":"Your card has insufficient funds."}}`)
		},
	})

	conf, err := client.ConfirmSession(context.Background(), ConfirmRequest{SessionID: "pi_123", PaymentMethod: "pm_x"})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, conf.Status)
	assert.Equal(t, "insufficient_funds", conf.DeclineCode)
	assert.Equal(t, "Your card has insufficient funds.", conf.Message)
}

func TestConfirmSession_InvalidSession(t *testing.T) {
	client, _ := fakeStripe(t, map[string]func(http.ResponseWriter){
		"/v1/payment_intents/pi_123/confirm": func(w http.ResponseWriter) {
			writeJSON(w, http.StatusBadRequest, `{"error":{"type":"invalid_request_error","code":"payment_intent_unexpected_state","message":"This PaymentIntent's status is canceled"}}`)
		},
	})

	_, err := client.ConfirmSession(context.Background(), ConfirmRequest{SessionID: "pi_123"})

	var gw *GatewayError
	require.ErrorAs(t, err, &gw)
	assert.True(t, gw.UnexpectedState())
	assert.False(t, gw.SessionGone())

	_, err = client.ConfirmSession(context.Background(), ConfirmRequest{SessionID: "pi_gone"})
	require.ErrorAs(t, err, &gw)
	assert.True(t, gw.SessionGone(), "unknown session on confirm is resource_missing")
}

func TestConfirmSession_ProcessingPassesThrough(t *testing.T) {
	client, _ := fakeStripe(t, map[string]func(http.ResponseWriter){
		"/v1/payment_intents/pi_123/confirm": func(w http.ResponseWriter) {
			writeJSON(w, http.StatusOK, `{"id":"pi_123","status":"processing"}`)
		},
	})

	conf, err := client.ConfirmSession(context.Background(), ConfirmRequest{SessionID: "pi_123"})
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, conf.Status)
}

const paymentIntentBody = `{
	"id": "pi_3Pabcdefgh1234",
	"amount": 135000,
	"currency": "usd",
	"status": "succeeded",
	"receipt_email": "",
	"created": 1700000000,
	"metadata": {"customer_name": "Ada Lovelace", "items": "[{\"name\":\"Product A\",\"quantity\":1,\"price\":125000}]"},
	"latest_charge": {"id": "ch_1", "billing_details": {"name": "A. Lovelace", "email": "ada@example.com"}}
}`

func TestRetrieveOrderDetails_PaymentIntent(t *testing.T) {
	client, captured := fakeStripe(t, map[string]func(http.ResponseWriter){
		"/v1/payment_intents/pi_3Pabcdefgh1234": func(w http.ResponseWriter) {
			writeJSON(w, http.StatusOK, paymentIntentBody)
		},
	})

	details, err := client.RetrieveOrderDetails(context.Background(), "pi_3Pabcdefgh1234")
	require.NoError(t, err)

	assert.Equal(t, "ORD-EFGH1234", details.OrderID)
	assert.Equal(t, 1350.0, details.Total)
	assert.Equal(t, int64(135000), details.Amount)
	assert.Equal(t, "USD", details.Currency)
	assert.Equal(t, StatusSucceeded, details.Status)
	assert.Equal(t, "A. Lovelace", details.CustomerName)
	assert.Equal(t, "ada@example.com", details.Email)
	assert.Equal(t, []domain.OrderItem{{Name: "Product A", Quantity: 1, Price: 125000}}, details.Items)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), details.CreatedAt)

	assert.Equal(t, []string{"latest_charge", "payment_method"}, (*captured)[0].query["expand[]"])
}

func TestRetrieveOrderDetails_CheckoutSession(t *testing.T) {
	client, captured := fakeStripe(t, map[string]func(http.ResponseWriter){
		"/v1/checkout/sessions/cs_test_1": func(w http.ResponseWriter) {
			writeJSON(w, http.StatusOK, `{"id":"cs_test_1","payment_intent":{"id":"pi_3Pabcdefgh1234","object":"payment_intent"}}`)
		},
		"/v1/payment_intents/pi_3Pabcdefgh1234": func(w http.ResponseWriter) {
			writeJSON(w, http.StatusOK, paymentIntentBody)
		},
	})

	details, err := client.RetrieveOrderDetails(context.Background(), "cs_test_1")
	require.NoError(t, err)
	assert.Equal(t, "pi_3Pabcdefgh1234", details.PaymentID)
	assert.Len(t, *captured, 2)
}

func TestRetrieveOrderDetails_CheckoutSessionWithoutPayment(t *testing.T) {
	client, _ := fakeStripe(t, map[string]func(http.ResponseWriter){
		"/v1/checkout/sessions/cs_test_1": func(w http.ResponseWriter) {
			writeJSON(w, http.StatusOK, `{"id":"cs_test_1","payment_intent":null}`)
		},
	})

	_, err := client.RetrieveOrderDetails(context.Background(), "cs_test_1")
	assert.True(t, IsNotFound(err))
}

func TestRetrieveOrderDetails_NotFound(t *testing.T) {
	client, _ := fakeStripe(t, nil)

	_, err := client.RetrieveOrderDetails(context.Background(), "pi_missing")

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "pi_missing", nf.ID)
}

func TestRetrieveOrderDetails_BadManifestAndDefaults(t *testing.T) {
	client, _ := fakeStripe(t, map[string]func(http.ResponseWriter){
		"/v1/payment_intents/pi_1": func(w http.ResponseWriter) {
			body, _ := json.Marshal(map[string]any{
				"id":            "pi_1",
				"amount":        500,
				"currency":      "eur",
				"status":        "processing",
				"metadata":      map[string]string{"items": "{not json"},
				"latest_charge": "ch_unexpanded",
			})
			writeJSON(w, http.StatusOK, string(body))
		},
	})

	details, err := client.RetrieveOrderDetails(context.Background(), "pi_1")
	require.NoError(t, err)
	assert.Empty(t, details.Items)
	assert.NotNil(t, details.Items)
	assert.Equal(t, "Customer", details.CustomerName)
	assert.Equal(t, "", details.Email)
	assert.Equal(t, "EUR", details.Currency)
	assert.Equal(t, "ORD-PI_1", details.OrderID)
}

func TestCreateCheckoutSession_SendsLineItemsAndUrls(t *testing.T) {
	client, captured := fakeStripe(t, map[string]func(http.ResponseWriter){
		"/v1/checkout/sessions": func(w http.ResponseWriter) {
			writeJSON(w, http.StatusOK, `{"id":"cs_test_123","url":"https://checkout.stripe.com/c/pay/cs_test_123"}`)
		},
	})

	cs, err := client.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{
		Lines: []domain.CartLine{
			{ProductID: 1, Name: "Product A", Price: 125000, Quantity: 2, Category: "Industrial", ImageURL: "https://cdn.example.com/a.jpg"},
			{ProductID: 2, Name: "Product B", Price: 50000, Quantity: 1, ImageURL: "/images/b.jpg"},
		},
		Tax:            24000,
		Customer:       testCustomer,
		Currency:       "USD",
		SuccessURL:     "https://shop.example.com/checkout/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:      "https://shop.example.com/cart",
		IdempotencyKey: "sid-1:hosted",
		Metadata:       map[string]string{"session_id": "sid-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, &CheckoutSession{ID: "cs_test_123", URL: "https://checkout.stripe.com/c/pay/cs_test_123"}, cs)

	require.Len(t, *captured, 1)
	req := (*captured)[0]
	assert.Equal(t, http.MethodPost, req.method)
	assert.Equal(t, "sid-1:hosted", req.header.Get("Idempotency-Key"))

	form := req.form
	assert.Equal(t, "payment", form.Get("mode"))
	assert.Equal(t, "https://shop.example.com/checkout/success?session_id={CHECKOUT_SESSION_ID}", form.Get("success_url"))
	assert.Equal(t, "https://shop.example.com/cart", form.Get("cancel_url"))
	assert.Equal(t, "ada@example.com", form.Get("customer_email"))

	assert.Equal(t, "Product A", form.Get("line_items[0][price_data][product_data][name]"))
	assert.Equal(t, "Industrial", form.Get("line_items[0][price_data][product_data][description]"))
	assert.Equal(t, "https://cdn.example.com/a.jpg", form.Get("line_items[0][price_data][product_data][images][0]"))
	assert.Equal(t, "125000", form.Get("line_items[0][price_data][unit_amount]"))
	assert.Equal(t, "usd", form.Get("line_items[0][price_data][currency]"))
	assert.Equal(t, "2", form.Get("line_items[0][quantity]"))
	assert.Empty(t, form.Get("line_items[1][price_data][product_data][images][0]"), "relative image urls are not sent")
	assert.Equal(t, "Sales tax", form.Get("line_items[2][price_data][product_data][name]"))
	assert.Equal(t, "24000", form.Get("line_items[2][price_data][unit_amount]"))

	assert.Equal(t, "Ada Lovelace", form.Get("metadata[customer_name]"))
	assert.Equal(t, "London", form.Get("metadata[shipping_city]"))
	assert.Equal(t, "sid-1", form.Get("payment_intent_data[metadata][session_id]"))
	assert.JSONEq(t, `[{"name":"Product A","quantity":2,"price":125000},{"name":"Product B","quantity":1,"price":50000}]`,
		form.Get("payment_intent_data[metadata][items]"))
	assert.Equal(t, "Free shipping", form.Get("shipping_options[0][shipping_rate_data][display_name]"))
}

func TestCreateCheckoutSession_RequiresLinesAndUrls(t *testing.T) {
	client, captured := fakeStripe(t, nil)
	ctx := context.Background()

	_, err := client.CreateCheckoutSession(ctx, CheckoutSessionRequest{SuccessURL: "https://a", CancelURL: "https://b"})
	var gw *GatewayError
	require.ErrorAs(t, err, &gw)
	assert.Equal(t, KindRejected, gw.Kind)

	_, err = client.CreateCheckoutSession(ctx, CheckoutSessionRequest{Lines: []domain.CartLine{{Name: "A", Price: 1, Quantity: 1}}})
	require.ErrorAs(t, err, &gw)
	assert.Equal(t, KindMisconfigured, gw.Kind)
	assert.Empty(t, *captured)
}

func TestKeyPrefixes(t *testing.T) {
	assert.True(t, IsSecretKey("sk_test_123"))
	assert.True(t, IsSecretKey(" rk_live_123"))
	assert.False(t, IsSecretKey("pk_test_123"))
	assert.False(t, IsSecretKey(""))
	assert.True(t, IsWebhookSecret("whsec_abc"))
	assert.False(t, IsWebhookSecret("sk_test_123"))
}
