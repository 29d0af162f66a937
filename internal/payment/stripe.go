package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/syedhariswaseem/lazr/internal/domain"
)

const defaultAPIBase = "https://api.stripe.com"

type StripeConfig struct {
	SecretKey string
	APIBase   string
	Timeout   time.Duration
	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client
}

// StripeClient implements Gateway against the Stripe REST API using
// form-encoded requests.
type StripeClient struct {
	secretKey  string
	apiBaseURL string
	userAgent  string
	httpClient *http.Client
	log        *slog.Logger
}

func NewStripeClient(cfg StripeConfig, log *slog.Logger) (*StripeClient, error) {
	key := strings.TrimSpace(cfg.SecretKey)
	if key == "" {
		return nil, ErrMissingCredentials
	}
	if !IsSecretKey(key) {
		return nil, fmt.Errorf("stripe secret key must start with %s or %s", SecretKeyPrefixStandard, SecretKeyPrefixRestricted)
	}

	base := strings.TrimRight(strings.TrimSpace(cfg.APIBase), "/")
	if base == "" {
		base = defaultAPIBase
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	return &StripeClient{
		secretKey:  key,
		apiBaseURL: base,
		userAgent:  "lazr-storefront/payments",
		httpClient: client,
		log:        log,
	}, nil
}

type stripeError struct {
	Type        string `json:"type"`
	Code        string `json:"code"`
	DeclineCode string `json:"decline_code"`
	Message     string `json:"message"`
}

type stripePaymentIntent struct {
	ID               string            `json:"id"`
	Amount           int64             `json:"amount"`
	Currency         string            `json:"currency"`
	Status           Status            `json:"status"`
	ClientSecret     string            `json:"client_secret"`
	ReceiptEmail     string            `json:"receipt_email"`
	Created          int64             `json:"created"`
	Metadata         map[string]string `json:"metadata"`
	LatestCharge     json.RawMessage   `json:"latest_charge"`
	LastPaymentError *stripeError      `json:"last_payment_error"`
}

type stripeCharge struct {
	BillingDetails struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"billing_details"`
}

type stripeCheckoutSession struct {
	ID            string          `json:"id"`
	URL           string          `json:"url"`
	PaymentIntent json.RawMessage `json:"payment_intent"`
}

func normalizeCurrency(currency string) string {
	currency = strings.ToLower(strings.TrimSpace(currency))
	if currency == "" {
		return "usd"
	}
	return currency
}

func customerMetadata(cust domain.CustomerInfo) map[string]string {
	return map[string]string{
		"customer_name":    cust.FullName(),
		"customer_email":   cust.Email,
		"customer_phone":   cust.Phone,
		"customer_company": cust.Company,
	}
}

// setMetadata writes non-empty entries as prefix[key]=value form fields.
func setMetadata(form url.Values, prefix string, sources ...map[string]string) {
	for _, m := range sources {
		for key, value := range m {
			if key == "" || value == "" {
				continue
			}
			form.Set(prefix+"["+key+"]", value)
		}
	}
}

func (c *StripeClient) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	const op = "create session"
	if req.Amount <= 0 {
		return nil, &GatewayError{Op: op, Kind: KindRejected, Message: "amount must be positive"}
	}
	currency := normalizeCurrency(req.Currency)

	manifest, err := encodeManifest(req.Items)
	if err != nil {
		return nil, &GatewayError{Op: op, Kind: KindRejected, Message: "item manifest too large", Err: err}
	}

	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.Amount, 10))
	form.Set("currency", currency)
	form.Set("payment_method_types[]", "card")
	if email := strings.TrimSpace(req.Customer.Email); email != "" {
		form.Set("receipt_email", email)
	}

	setMetadata(form, "metadata", customerMetadata(req.Customer), req.Metadata, manifest)

	var pi stripePaymentIntent
	if err := c.do(ctx, op, http.MethodPost, "/v1/payment_intents", form, req.IdempotencyKey, &pi); err != nil {
		return nil, err
	}
	if pi.ID == "" || pi.ClientSecret == "" {
		return nil, &GatewayError{Op: op, Kind: KindRejected, Message: "stripe response missing payment intent details"}
	}

	return &Session{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       pi.Amount,
		Currency:     pi.Currency,
		Status:       pi.Status,
	}, nil
}

func (c *StripeClient) ConfirmSession(ctx context.Context, req ConfirmRequest) (*Confirmation, error) {
	const op = "confirm session"
	if req.SessionID == "" {
		return nil, &GatewayError{Op: op, Kind: KindRejected, Code: CodeResourceMissing, Message: "session id is required"}
	}

	form := url.Values{}
	if pm := strings.TrimSpace(req.PaymentMethod); pm != "" {
		form.Set("payment_method", pm)
	}
	cust := req.Customer
	if cust.Email != "" {
		form.Set("receipt_email", cust.Email)
	}
	if name := cust.FullName(); name != "" {
		form.Set("shipping[name]", name)
		form.Set("shipping[phone]", cust.Phone)
		form.Set("shipping[address][line1]", cust.Address)
		form.Set("shipping[address][city]", cust.City)
		form.Set("shipping[address][state]", cust.State)
		form.Set("shipping[address][postal_code]", cust.ZipCode)
		if len(cust.Country) == 2 {
			form.Set("shipping[address][country]", strings.ToUpper(cust.Country))
		}
	}

	path := "/v1/payment_intents/" + url.PathEscape(req.SessionID) + "/confirm"
	var pi stripePaymentIntent
	err := c.do(ctx, op, http.MethodPost, path, form, req.IdempotencyKey, &pi)

	var gwErr *GatewayError
	if errors.As(err, &gwErr) && gwErr.CardError() {
		return &Confirmation{
			PaymentID:   req.SessionID,
			Status:      StatusFailed,
			DeclineCode: gwErr.Code,
			Message:     gwErr.Message,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	conf := &Confirmation{PaymentID: pi.ID, Status: pi.Status}
	if pi.Status == StatusRequiresPaymentMethod && pi.LastPaymentError != nil {
		conf.Status = StatusFailed
		conf.DeclineCode = firstNonEmpty(pi.LastPaymentError.DeclineCode, pi.LastPaymentError.Code)
		conf.Message = pi.LastPaymentError.Message
	}
	return conf, nil
}

// CreateCheckoutSession opens a hosted payment page for the lines. The item
// manifest and metadata are copied onto the payment intent the page creates,
// so webhooks and order details see the same data as for CreateSession.
func (c *StripeClient) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutSession, error) {
	const op = "create checkout session"
	if len(req.Lines) == 0 {
		return nil, &GatewayError{Op: op, Kind: KindRejected, Message: "at least one line item is required"}
	}
	if req.SuccessURL == "" || req.CancelURL == "" {
		return nil, &GatewayError{Op: op, Kind: KindMisconfigured, Message: "success and cancel urls are required"}
	}
	currency := normalizeCurrency(req.Currency)

	manifest, err := encodeManifest(domain.OrderItemsFromLines(req.Lines))
	if err != nil {
		return nil, &GatewayError{Op: op, Kind: KindRejected, Message: "item manifest too large", Err: err}
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("payment_method_types[]", "card")
	form.Set("success_url", req.SuccessURL)
	form.Set("cancel_url", req.CancelURL)
	if email := strings.TrimSpace(req.Customer.Email); email != "" {
		form.Set("customer_email", email)
	}

	n := 0
	addLine := func(name, description, image string, unitAmount int64, quantity int) {
		p := "line_items[" + strconv.Itoa(n) + "]"
		form.Set(p+"[quantity]", strconv.Itoa(quantity))
		form.Set(p+"[price_data][currency]", currency)
		form.Set(p+"[price_data][unit_amount]", strconv.FormatInt(unitAmount, 10))
		form.Set(p+"[price_data][product_data][name]", name)
		if description != "" {
			form.Set(p+"[price_data][product_data][description]", description)
		}
		// the processor only accepts absolute image urls
		if strings.HasPrefix(image, "https://") || strings.HasPrefix(image, "http://") {
			form.Set(p+"[price_data][product_data][images][0]", image)
		}
		n++
	}
	for _, l := range req.Lines {
		addLine(l.Name, l.Category, l.ImageURL, l.Price, l.Quantity)
	}
	if req.Tax > 0 {
		addLine("Sales tax", "", "", req.Tax, 1)
	}

	shipping := map[string]string{
		"shipping_address": req.Customer.Address,
		"shipping_city":    req.Customer.City,
		"shipping_state":   req.Customer.State,
		"shipping_zip":     req.Customer.ZipCode,
		"shipping_country": req.Customer.Country,
	}
	setMetadata(form, "metadata", customerMetadata(req.Customer), shipping, req.Metadata)
	setMetadata(form, "payment_intent_data[metadata]", customerMetadata(req.Customer), req.Metadata, manifest)

	rate := "shipping_options[0][shipping_rate_data]"
	form.Set(rate+"[type]", "fixed_amount")
	form.Set(rate+"[fixed_amount][amount]", "0")
	form.Set(rate+"[fixed_amount][currency]", currency)
	form.Set(rate+"[display_name]", "Free shipping")
	form.Set(rate+"[delivery_estimate][minimum][unit]", "business_day")
	form.Set(rate+"[delivery_estimate][minimum][value]", "5")
	form.Set(rate+"[delivery_estimate][maximum][unit]", "business_day")
	form.Set(rate+"[delivery_estimate][maximum][value]", "7")

	var cs stripeCheckoutSession
	if err := c.do(ctx, op, http.MethodPost, "/v1/checkout/sessions", form, req.IdempotencyKey, &cs); err != nil {
		return nil, err
	}
	if cs.ID == "" || cs.URL == "" {
		return nil, &GatewayError{Op: op, Kind: KindRejected, Message: "stripe response missing checkout session details"}
	}
	return &CheckoutSession{ID: cs.ID, URL: cs.URL}, nil
}

// RetrieveOrderDetails accepts a payment intent id or a checkout session id.
func (c *StripeClient) RetrieveOrderDetails(ctx context.Context, id string) (*OrderDetails, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, &NotFoundError{ID: id, Reason: "empty id"}
	}

	piID := id
	if strings.HasPrefix(id, "cs_") {
		resolved, err := c.paymentIntentForCheckoutSession(ctx, id)
		if err != nil {
			return nil, err
		}
		piID = resolved
	}

	q := url.Values{}
	q.Add("expand[]", "latest_charge")
	q.Add("expand[]", "payment_method")
	var pi stripePaymentIntent
	path := "/v1/payment_intents/" + url.PathEscape(piID) + "?" + q.Encode()
	if err := c.do(ctx, "retrieve order", http.MethodGet, path, nil, "", &pi); err != nil {
		return nil, err
	}

	return c.orderDetails(ctx, &pi), nil
}

func (c *StripeClient) paymentIntentForCheckoutSession(ctx context.Context, sessionID string) (string, error) {
	q := url.Values{}
	q.Add("expand[]", "payment_intent")
	var cs stripeCheckoutSession
	path := "/v1/checkout/sessions/" + url.PathEscape(sessionID) + "?" + q.Encode()
	if err := c.do(ctx, "retrieve checkout session", http.MethodGet, path, nil, "", &cs); err != nil {
		return "", err
	}

	raw := bytes.TrimSpace(cs.PaymentIntent)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", &NotFoundError{ID: sessionID, Reason: "no payment intent found for session"}
	}
	if raw[0] == '"' {
		var id string
		if err := json.Unmarshal(raw, &id); err == nil && id != "" {
			return id, nil
		}
	}
	var pi struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &pi); err != nil || pi.ID == "" {
		return "", &NotFoundError{ID: sessionID, Reason: "no payment intent found for session"}
	}
	return pi.ID, nil
}

func (c *StripeClient) orderDetails(ctx context.Context, pi *stripePaymentIntent) *OrderDetails {
	var charge stripeCharge
	if raw := bytes.TrimSpace(pi.LatestCharge); len(raw) > 0 && raw[0] == '{' {
		if err := json.Unmarshal(raw, &charge); err != nil {
			c.log.WarnContext(ctx, "unreadable latest charge", "payment_id", pi.ID, "error", err)
		}
	}

	items, err := decodeManifest(pi.Metadata)
	if err != nil {
		c.log.WarnContext(ctx, "item manifest could not be decoded", "error", &DecodeError{PaymentID: pi.ID, Err: err})
	}

	created := time.Now().UTC()
	if pi.Created > 0 {
		created = time.Unix(pi.Created, 0).UTC()
	}
	currency := strings.ToUpper(pi.Currency)
	if currency == "" {
		currency = "USD"
	}

	return &OrderDetails{
		OrderID:      DisplayOrderID(pi.ID),
		PaymentID:    pi.ID,
		Total:        decimal.New(pi.Amount, -2).InexactFloat64(),
		Amount:       pi.Amount,
		Currency:     currency,
		Status:       pi.Status,
		CustomerName: firstNonEmpty(charge.BillingDetails.Name, pi.Metadata["customer_name"], "Customer"),
		Email:        firstNonEmpty(pi.ReceiptEmail, charge.BillingDetails.Email),
		Items:        items,
		CreatedAt:    created,
	}
}

func (c *StripeClient) do(ctx context.Context, op, method, path string, form url.Values, idempotencyKey string, out any) error {
	if c == nil || c.secretKey == "" {
		return &GatewayError{Op: op, Kind: KindMisconfigured, Err: ErrMissingCredentials}
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.apiBaseURL+path, body)
	if err != nil {
		return &GatewayError{Op: op, Kind: KindMisconfigured, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("User-Agent", c.userAgent)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &GatewayError{Op: op, Kind: KindUnreachable, Err: err}
	}
	defer resp.Body.Close()
	c.log.DebugContext(ctx, "stripe request", "op", op, "status", resp.StatusCode, "duration", time.Since(started))

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &GatewayError{Op: op, Kind: KindUnreachable, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode >= 400 {
		return c.responseError(op, path, resp.StatusCode, raw)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &GatewayError{Op: op, Kind: KindRejected, StatusCode: resp.StatusCode, Message: "stripe response decode failed", Err: err}
	}
	return nil
}

func (c *StripeClient) responseError(op, path string, status int, raw []byte) error {
	var payload struct {
		Error stripeError `json:"error"`
	}
	_ = json.Unmarshal(raw, &payload)

	message := strings.TrimSpace(payload.Error.Message)
	if message == "" {
		message = fmt.Sprintf("stripe returned status %d", status)
	}

	if status == http.StatusNotFound && op != "confirm session" {
		return &NotFoundError{ID: resourceID(path), Reason: message}
	}

	kind := KindRejected
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = KindMisconfigured
	case status >= 500 || status == http.StatusTooManyRequests:
		kind = KindUnreachable
	}

	code := payload.Error.Code
	if payload.Error.Type == "card_error" && payload.Error.DeclineCode != "" {
		code = payload.Error.DeclineCode
	}
	return &GatewayError{
		Op:         op,
		Kind:       kind,
		StatusCode: status,
		Type:       payload.Error.Type,
		Code:       code,
		Message:    message,
	}
}

func resourceID(path string) string {
	path, _, _ = strings.Cut(path, "?")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 0 {
		return ""
	}
	id, err := url.PathUnescape(parts[len(parts)-1])
	if err != nil {
		return parts[len(parts)-1]
	}
	return id
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

var _ Gateway = (*StripeClient)(nil)
