package web

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.viam.com/test"

	"github.com/isolatorcalc/isolator/logging"
	"github.com/isolatorcalc/isolator/modal"
	"github.com/isolatorcalc/isolator/subscription"
	"github.com/isolatorcalc/isolator/usage"
)

const (
	testJWTSecret     = "jwt-test-secret"
	testWebhookSecret = "whsec_test"
)

const defaultFormJSON = `{
	"mass": "1",
	"inertiaMatrix": [["1", "", ""], ["", "1", ""], ["", "", "1"]],
	"centerOfMass": {"x": "0", "y": "0", "z": "0"},
	"mountingLocations": [{"x": "0", "y": "0", "z": "0", "stiffness_x": "1", "stiffness_y": "1", "stiffness_z": "1"}]
}`

type testService struct {
	*Service
	handler http.Handler
	store   *subscription.Store
}

func newTestService(t *testing.T, mutate func(*Options)) *testService {
	t.Helper()
	store, err := subscription.Open(filepath.Join(t.TempDir(), "payments.db"))
	test.That(t, err, test.ShouldBeNil)
	t.Cleanup(func() {
		test.That(t, store.Close(), test.ShouldBeNil)
	})

	options := NewOptions()
	options.JWTSecret = testJWTSecret
	options.WebhookSecret = testWebhookSecret
	options.Subscriptions = store
	options.Payments = store
	options.Registry = prometheus.NewRegistry()
	options.RateLimiter = usage.NewClientRateLimiter(6000, 1000)
	if mutate != nil {
		mutate(&options)
	}
	svc := New(options, logging.NewTestLogger(t))
	return &testService{Service: svc, handler: svc.Handler(), store: store}
}

type request struct {
	method  string
	path    string
	body    string
	cookie  *http.Cookie
	headers map[string]string
}

func (ts *testService) do(req request) *httptest.ResponseRecorder {
	r := httptest.NewRequest(req.method, req.path, strings.NewReader(req.body))
	if req.cookie != nil {
		r.AddCookie(req.cookie)
	}
	for k, v := range req.headers {
		r.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, r)
	return w
}

func sessionCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == sessionCookieName {
			return c
		}
	}
	return nil
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	test.That(t, json.Unmarshal(w.Body.Bytes(), out), test.ShouldBeNil)
}

func bearer(t *testing.T, secret, subject string) map[string]string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: subject}).SignedString([]byte(secret))
	test.That(t, err, test.ShouldBeNil)
	return map[string]string{"Authorization": "Bearer " + token}
}

type modalBody struct {
	NaturalFrequencies []float64     `json:"naturalFrequencies"`
	ModeDescriptions   []string      `json:"modeDescriptions"`
	Modes              []modal.Mode  `json:"modes"`
	Usage              usageResponse `json:"usage"`
	Error              string        `json:"error"`
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestService(t, nil)
	w := ts.do(request{method: http.MethodGet, path: "/healthz"})
	test.That(t, w.Code, test.ShouldEqual, http.StatusOK)
	test.That(t, w.Body.String(), test.ShouldContainSubstring, `"ok"`)

	ts.do(request{method: http.MethodPost, path: "/api/v1/modal", body: defaultFormJSON})
	ts.do(request{method: http.MethodPost, path: "/api/v1/modal", body: "{"})
	w = ts.do(request{method: http.MethodGet, path: "/metrics"})
	test.That(t, w.Code, test.ShouldEqual, http.StatusOK)
	body := w.Body.String()
	test.That(t, body, test.ShouldContainSubstring, `isolator_calculations_total{outcome="ok"} 1`)
	test.That(t, body, test.ShouldContainSubstring, `isolator_requests_total{code="200",route="modal"} 1`)
	test.That(t, body, test.ShouldContainSubstring, `isolator_requests_total{code="400",route="modal"} 1`)
	test.That(t, body, test.ShouldContainSubstring, `isolator_request_duration_seconds_count{route="modal"} 2`)
}

func TestModalFreeTier(t *testing.T) {
	ts := newTestService(t, nil)

	w := ts.do(request{method: http.MethodPost, path: "/api/v1/modal", body: defaultFormJSON})
	test.That(t, w.Code, test.ShouldEqual, http.StatusOK)
	cookie := sessionCookie(w)
	test.That(t, cookie, test.ShouldNotBeNil)
	test.That(t, cookie.HttpOnly, test.ShouldBeTrue)

	var body modalBody
	decodeBody(t, w, &body)
	test.That(t, body.NaturalFrequencies, test.ShouldHaveLength, modal.DOF)
	for _, f := range body.NaturalFrequencies {
		test.That(t, f, test.ShouldAlmostEqual, 1/(2*3.141592653589793))
	}
	test.That(t, body.ModeDescriptions, test.ShouldResemble, modal.ModeDescriptions())
	test.That(t, body.Modes[5].Description, test.ShouldEqual, "Yaw")
	test.That(t, body.Usage, test.ShouldResemble, usageResponse{Used: 1, Limit: 3, Remaining: 2})

	for i := 2; i <= 3; i++ {
		w = ts.do(request{method: http.MethodPost, path: "/api/v1/modal", body: defaultFormJSON, cookie: cookie})
		test.That(t, w.Code, test.ShouldEqual, http.StatusOK)
		test.That(t, sessionCookie(w), test.ShouldBeNil)
	}

	w = ts.do(request{method: http.MethodPost, path: "/api/v1/modal", body: defaultFormJSON, cookie: cookie})
	test.That(t, w.Code, test.ShouldEqual, http.StatusPaymentRequired)
	body = modalBody{}
	decodeBody(t, w, &body)
	test.That(t, body.Error, test.ShouldContainSubstring, "free tier limit")
	test.That(t, body.Usage, test.ShouldResemble, usageResponse{Used: 3, Limit: 3, Remaining: 0})

	w = ts.do(request{method: http.MethodGet, path: "/api/v1/usage", cookie: cookie})
	test.That(t, w.Code, test.ShouldEqual, http.StatusOK)
	var u usageResponse
	decodeBody(t, w, &u)
	test.That(t, u, test.ShouldResemble, usageResponse{Used: 3, Limit: 3, Remaining: 0})

	t.Run("a new session starts fresh", func(t *testing.T) {
		w := ts.do(request{method: http.MethodPost, path: "/api/v1/modal", body: defaultFormJSON})
		test.That(t, w.Code, test.ShouldEqual, http.StatusOK)
		test.That(t, sessionCookie(w).Value, test.ShouldNotEqual, cookie.Value)
	})
}

func TestModalInvalidInputDoesNotConsume(t *testing.T) {
	ts := newTestService(t, nil)
	w := ts.do(request{method: http.MethodPost, path: "/api/v1/modal", body: defaultFormJSON})
	cookie := sessionCookie(w)

	for _, body := range []string{
		`not json`,
		`{"mass": "", "mountingLocations": []}`,
		strings.Replace(defaultFormJSON, `"mass": "1"`, `"mass": "-2"`, 1),
		strings.Replace(defaultFormJSON, `[["1", "", ""]`, `[["", "", ""]`, 1),
		strings.Replace(defaultFormJSON, `"stiffness_x": "1"`, `"stiffness_x": "-1"`, 1),
	} {
		w := ts.do(request{method: http.MethodPost, path: "/api/v1/modal", body: body, cookie: cookie})
		test.That(t, w.Code, test.ShouldEqual, http.StatusBadRequest)
		var resp errorResponse
		decodeBody(t, w, &resp)
		test.That(t, resp.Error, test.ShouldNotBeEmpty)
	}

	w = ts.do(request{method: http.MethodGet, path: "/api/v1/usage", cookie: cookie})
	var u usageResponse
	decodeBody(t, w, &u)
	test.That(t, u.Used, test.ShouldEqual, 1)
}

func TestModalComputationError(t *testing.T) {
	ts := newTestService(t, nil)
	body := `{
		"mass": "1e12",
		"inertiaMatrix": [["1e-12", "", ""], ["", "1e-12", ""], ["", "", "1e-12"]],
		"centerOfMass": {"x": "0", "y": "0", "z": "0"},
		"mountingLocations": [{"stiffness_x": "1", "stiffness_y": "1", "stiffness_z": "1"}]
	}`
	w := ts.do(request{method: http.MethodPost, path: "/api/v1/modal", body: body})
	test.That(t, w.Code, test.ShouldEqual, http.StatusUnprocessableEntity)
	var resp errorResponse
	decodeBody(t, w, &resp)
	test.That(t, resp.Error, test.ShouldContainSubstring, "error computing natural frequencies")
}

func TestModalCoupledModel(t *testing.T) {
	ts := newTestService(t, func(o *Options) { o.Model = modal.ModelCoupled })
	w := ts.do(request{method: http.MethodPost, path: "/api/v1/modal", body: defaultFormJSON})
	test.That(t, w.Code, test.ShouldEqual, http.StatusOK)
	var body modalBody
	decodeBody(t, w, &body)
	// a single mount at the center of mass has no rotational stiffness in the coupled model
	zeros := 0
	for _, f := range body.NaturalFrequencies {
		if f == 0 {
			zeros++
		}
	}
	test.That(t, zeros, test.ShouldEqual, 3)

	cookie := sessionCookie(w)
	indefinite := strings.Replace(defaultFormJSON,
		`[["1", "", ""], ["", "1", ""], ["", "", "1"]]`, `[["1", "5", ""], ["5", "1", ""], ["", "", "1"]]`, 1)
	w = ts.do(request{method: http.MethodPost, path: "/api/v1/modal", body: indefinite, cookie: cookie})
	test.That(t, w.Code, test.ShouldEqual, http.StatusBadRequest)
	decodeBody(t, w, &body)
	test.That(t, body.Error, test.ShouldContainSubstring, "positive-definite")

	w = ts.do(request{method: http.MethodGet, path: "/api/v1/usage", cookie: cookie})
	var u usageResponse
	decodeBody(t, w, &u)
	test.That(t, u.Used, test.ShouldEqual, 1)
}

func TestModalRateLimited(t *testing.T) {
	ts := newTestService(t, func(o *Options) { o.RateLimiter = usage.NewClientRateLimiter(1, 1) })
	w := ts.do(request{method: http.MethodPost, path: "/api/v1/modal", body: defaultFormJSON})
	test.That(t, w.Code, test.ShouldEqual, http.StatusOK)
	w = ts.do(request{method: http.MethodPost, path: "/api/v1/modal", body: defaultFormJSON})
	test.That(t, w.Code, test.ShouldEqual, http.StatusTooManyRequests)
}

func TestModalAuth(t *testing.T) {
	ts := newTestService(t, nil)
	ctx := context.Background()

	t.Run("bad token", func(t *testing.T) {
		w := ts.do(request{
			method: http.MethodPost, path: "/api/v1/modal", body: defaultFormJSON,
			headers: bearer(t, "wrong-secret", "user-1"),
		})
		test.That(t, w.Code, test.ShouldEqual, http.StatusUnauthorized)
	})

	t.Run("token without subject", func(t *testing.T) {
		w := ts.do(request{
			method: http.MethodPost, path: "/api/v1/modal", body: defaultFormJSON,
			headers: bearer(t, testJWTSecret, ""),
		})
		test.That(t, w.Code, test.ShouldEqual, http.StatusUnauthorized)
	})

	t.Run("unpaid user uses the free tier", func(t *testing.T) {
		w := ts.do(request{
			method: http.MethodPost, path: "/api/v1/modal", body: defaultFormJSON,
			headers: bearer(t, testJWTSecret, "user-1"),
		})
		test.That(t, w.Code, test.ShouldEqual, http.StatusOK)
		var body modalBody
		decodeBody(t, w, &body)
		test.That(t, body.Usage.Subscribed, test.ShouldBeFalse)
		test.That(t, body.Usage.Used, test.ShouldEqual, 1)
	})

	t.Run("paid user is unlimited", func(t *testing.T) {
		_, err := ts.store.RecordPayment(ctx, subscription.Payment{
			SessionID: "cs_paid", UserID: "user-2", Status: subscription.StatusPaid, AmountTotal: 999,
		})
		test.That(t, err, test.ShouldBeNil)

		var cookie *http.Cookie
		for i := 0; i < 5; i++ {
			w := ts.do(request{
				method: http.MethodPost, path: "/api/v1/modal", body: defaultFormJSON, cookie: cookie,
				headers: bearer(t, testJWTSecret, "user-2"),
			})
			test.That(t, w.Code, test.ShouldEqual, http.StatusOK)
			if cookie == nil {
				cookie = sessionCookie(w)
			}
			var body modalBody
			decodeBody(t, w, &body)
			test.That(t, body.Usage, test.ShouldResemble, usageResponse{Subscribed: true})
		}
	})

	t.Run("tokens without a configured secret", func(t *testing.T) {
		anon := newTestService(t, func(o *Options) { o.JWTSecret = "" })
		w := anon.do(request{
			method: http.MethodPost, path: "/api/v1/modal", body: defaultFormJSON,
			headers: bearer(t, testJWTSecret, "user-1"),
		})
		test.That(t, w.Code, test.ShouldEqual, http.StatusUnauthorized)
		test.That(t, w.Body.String(), test.ShouldContainSubstring, "not configured")

		w = anon.do(request{method: http.MethodPost, path: "/api/v1/modal", body: defaultFormJSON})
		test.That(t, w.Code, test.ShouldEqual, http.StatusOK)
	})
}

func TestSubscriptionEndpoint(t *testing.T) {
	ts := newTestService(t, nil)

	w := ts.do(request{method: http.MethodGet, path: "/api/v1/subscription"})
	test.That(t, w.Code, test.ShouldEqual, http.StatusUnauthorized)

	w = ts.do(request{method: http.MethodGet, path: "/api/v1/subscription", headers: bearer(t, testJWTSecret, "user-9")})
	test.That(t, w.Code, test.ShouldEqual, http.StatusOK)
	var resp subscriptionResponse
	decodeBody(t, w, &resp)
	test.That(t, resp, test.ShouldResemble, subscriptionResponse{UserID: "user-9", Subscribed: false})
}

func checkoutEvent(sessionID, userID, status, browserSession string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_1",
		"object": "event",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": %q,
			"object": "checkout.session",
			"payment_status": %q,
			"amount_total": 1999,
			"currency": "usd",
			"metadata": {"user_id": %q, "isolator_session": %q}
		}}
	}`, sessionID, status, userID, browserSession))
}

func signedHeader(payload []byte, secret string, at time.Time) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: payload, Secret: secret, Timestamp: at,
	}).Header
}

func (ts *testService) postWebhook(payload []byte, signature string) *httptest.ResponseRecorder {
	return ts.do(request{
		method: http.MethodPost, path: "/api/v1/webhooks/stripe", body: string(payload),
		headers: map[string]string{signatureHeader: signature},
	})
}

func TestWebhook(t *testing.T) {
	ts := newTestService(t, nil)

	t.Run("missing signature", func(t *testing.T) {
		w := ts.postWebhook(checkoutEvent("cs_1", "user-1", "paid", ""), "")
		test.That(t, w.Code, test.ShouldEqual, http.StatusBadRequest)
		test.That(t, w.Body.String(), test.ShouldContainSubstring, "Webhook Error")
	})

	t.Run("wrong secret", func(t *testing.T) {
		payload := checkoutEvent("cs_1", "user-1", "paid", "")
		w := ts.postWebhook(payload, signedHeader(payload, "whsec_other", time.Now()))
		test.That(t, w.Code, test.ShouldEqual, http.StatusBadRequest)
		test.That(t, w.Body.String(), test.ShouldContainSubstring, "no valid signature")
	})

	t.Run("tampered payload", func(t *testing.T) {
		payload := checkoutEvent("cs_1", "user-1", "paid", "")
		sig := signedHeader(payload, testWebhookSecret, time.Now())
		w := ts.postWebhook(checkoutEvent("cs_1", "user-evil", "paid", ""), sig)
		test.That(t, w.Code, test.ShouldEqual, http.StatusBadRequest)
	})

	t.Run("stale timestamp", func(t *testing.T) {
		payload := checkoutEvent("cs_1", "user-1", "paid", "")
		w := ts.postWebhook(payload, signedHeader(payload, testWebhookSecret, time.Now().Add(-time.Hour)))
		test.That(t, w.Code, test.ShouldEqual, http.StatusBadRequest)
		test.That(t, w.Body.String(), test.ShouldContainSubstring, "tolerance")
	})

	t.Run("rolled secret", func(t *testing.T) {
		payload := []byte(`{"id": "evt_2", "object": "event", "type": "invoice.paid", "data": {"object": {}}}`)
		now := time.Now()
		header := fmt.Sprintf("t=%d,v1=%s,v1=%s", now.Unix(),
			hex.EncodeToString(webhook.ComputeSignature(now, payload, "whsec_old")),
			hex.EncodeToString(webhook.ComputeSignature(now, payload, testWebhookSecret)))
		w := ts.postWebhook(payload, header)
		test.That(t, w.Code, test.ShouldEqual, http.StatusOK)
	})

	t.Run("other events are acknowledged", func(t *testing.T) {
		payload := []byte(`{"id": "evt_3", "object": "event", "type": "invoice.paid", "data": {"object": {}}}`)
		w := ts.postWebhook(payload, signedHeader(payload, testWebhookSecret, time.Now()))
		test.That(t, w.Code, test.ShouldEqual, http.StatusOK)
	})

	t.Run("checkout without user", func(t *testing.T) {
		payload := checkoutEvent("cs_2", "", "paid", "")
		w := ts.postWebhook(payload, signedHeader(payload, testWebhookSecret, time.Now()))
		test.That(t, w.Code, test.ShouldEqual, http.StatusBadRequest)
	})

	t.Run("checkout completed records payment", func(t *testing.T) {
		payload := checkoutEvent("cs_3", "user-3", "paid", "")
		w := ts.postWebhook(payload, signedHeader(payload, testWebhookSecret, time.Now()))
		test.That(t, w.Code, test.ShouldEqual, http.StatusOK)

		p, err := ts.store.LatestPayment(context.Background(), "user-3")
		test.That(t, err, test.ShouldBeNil)
		test.That(t, p.SessionID, test.ShouldEqual, "cs_3")
		test.That(t, p.AmountTotal, test.ShouldEqual, int64(1999))
		test.That(t, p.Currency, test.ShouldEqual, "usd")

		w = ts.do(request{method: http.MethodGet, path: "/api/v1/subscription", headers: bearer(t, testJWTSecret, "user-3")})
		var resp subscriptionResponse
		decodeBody(t, w, &resp)
		test.That(t, resp.Subscribed, test.ShouldBeTrue)
	})

	t.Run("disabled without a secret", func(t *testing.T) {
		disabled := newTestService(t, func(o *Options) { o.WebhookSecret = "" })
		payload := checkoutEvent("cs_4", "user-4", "paid", "")
		w := disabled.postWebhook(payload, signedHeader(payload, testWebhookSecret, time.Now()))
		test.That(t, w.Code, test.ShouldEqual, http.StatusServiceUnavailable)
	})
}

func TestPaidCheckoutResetsSessionUsage(t *testing.T) {
	ts := newTestService(t, nil)
	w := ts.do(request{method: http.MethodPost, path: "/api/v1/modal", body: defaultFormJSON})
	cookie := sessionCookie(w)
	for i := 0; i < usage.DefaultFreeCalculations-1; i++ {
		w = ts.do(request{method: http.MethodPost, path: "/api/v1/modal", body: defaultFormJSON, cookie: cookie})
		test.That(t, w.Code, test.ShouldEqual, http.StatusOK)
	}
	w = ts.do(request{method: http.MethodPost, path: "/api/v1/modal", body: defaultFormJSON, cookie: cookie})
	test.That(t, w.Code, test.ShouldEqual, http.StatusPaymentRequired)

	// an unpaid checkout leaves the usage alone
	payload := checkoutEvent("cs_5", "user-5", "unpaid", cookie.Value)
	w = ts.postWebhook(payload, signedHeader(payload, testWebhookSecret, time.Now()))
	test.That(t, w.Code, test.ShouldEqual, http.StatusOK)
	w = ts.do(request{method: http.MethodGet, path: "/api/v1/usage", cookie: cookie})
	var u usageResponse
	decodeBody(t, w, &u)
	test.That(t, u.Remaining, test.ShouldEqual, 0)

	payload = checkoutEvent("cs_6", "user-5", "paid", cookie.Value)
	w = ts.postWebhook(payload, signedHeader(payload, testWebhookSecret, time.Now()))
	test.That(t, w.Code, test.ShouldEqual, http.StatusOK)
	w = ts.do(request{method: http.MethodGet, path: "/api/v1/usage", cookie: cookie})
	decodeBody(t, w, &u)
	test.That(t, u.Used, test.ShouldEqual, 0)
	test.That(t, u.Remaining, test.ShouldEqual, usage.DefaultFreeCalculations)
}

// fakeStripe serves the checkout sessions endpoint and hands every submitted form to the test.
type fakeStripe struct {
	backend stripe.Backend
	forms   chan url.Values
}

func newFakeStripe(t *testing.T, status int, body string) *fakeStripe {
	t.Helper()
	fs := &fakeStripe{forms: make(chan url.Values, 1)}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/checkout/sessions" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseForm(); err == nil {
			fs.forms <- r.PostForm
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	fs.backend = stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		HTTPClient:        srv.Client(),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	return fs
}

func TestCheckout(t *testing.T) {
	const created = `{"id": "cs_test_1", "object": "checkout.session", "url": "https://checkout.stripe.com/c/pay/cs_test_1"}`
	newCheckoutService := func(t *testing.T, fs *fakeStripe) *testService {
		return newTestService(t, func(o *Options) {
			o.StripeKey = "sk_test_isolator"
			o.StripeBackend = fs.backend
			o.CheckoutSuccessURL = "https://isolator.example/?success=true"
			o.CheckoutCancelURL = "https://isolator.example/?canceled=true"
		})
	}
	checkout := func(ts *testService, body string, headers map[string]string, cookie *http.Cookie) *httptest.ResponseRecorder {
		return ts.do(request{method: http.MethodPost, path: "/api/v1/checkout", body: body, headers: headers, cookie: cookie})
	}

	t.Run("disabled without a key", func(t *testing.T) {
		ts := newTestService(t, nil)
		w := checkout(ts, `{"priceId": "price_1"}`, bearer(t, testJWTSecret, "user-1"), nil)
		test.That(t, w.Code, test.ShouldEqual, http.StatusServiceUnavailable)
	})

	t.Run("requires a user", func(t *testing.T) {
		ts := newCheckoutService(t, newFakeStripe(t, http.StatusOK, created))
		w := checkout(ts, `{"priceId": "price_1"}`, nil, nil)
		test.That(t, w.Code, test.ShouldEqual, http.StatusUnauthorized)
	})

	t.Run("bad requests", func(t *testing.T) {
		ts := newCheckoutService(t, newFakeStripe(t, http.StatusOK, created))
		for body, errStr := range map[string]string{
			`{"priceId":`:       "Invalid JSON",
			`{}`:                "Price ID is required",
			`{"priceId": "  "}`: "Price ID is required",
		} {
			w := checkout(ts, body, bearer(t, testJWTSecret, "user-1"), nil)
			test.That(t, w.Code, test.ShouldEqual, http.StatusBadRequest)
			var resp errorResponse
			decodeBody(t, w, &resp)
			test.That(t, resp.Error, test.ShouldContainSubstring, errStr)
		}
	})

	t.Run("creates a subscription session", func(t *testing.T) {
		fs := newFakeStripe(t, http.StatusOK, created)
		ts := newCheckoutService(t, fs)
		cookie := &http.Cookie{Name: sessionCookieName, Value: uuid.NewString()}
		w := checkout(ts, `{"priceId": "price_1"}`, bearer(t, testJWTSecret, "user-7"), cookie)
		test.That(t, w.Code, test.ShouldEqual, http.StatusOK)
		var resp checkoutResponse
		decodeBody(t, w, &resp)
		test.That(t, resp, test.ShouldResemble, checkoutResponse{
			SessionID: "cs_test_1",
			URL:       "https://checkout.stripe.com/c/pay/cs_test_1",
		})

		form := <-fs.forms
		test.That(t, form.Get("mode"), test.ShouldEqual, "subscription")
		test.That(t, form.Get("line_items[0][price]"), test.ShouldEqual, "price_1")
		test.That(t, form.Get("line_items[0][quantity]"), test.ShouldEqual, "1")
		test.That(t, form.Get("success_url"), test.ShouldEqual, "https://isolator.example/?success=true")
		test.That(t, form.Get("cancel_url"), test.ShouldEqual, "https://isolator.example/?canceled=true")
		test.That(t, form.Get("client_reference_id"), test.ShouldEqual, "user-7")
		test.That(t, form.Get("metadata[user_id]"), test.ShouldEqual, "user-7")
		test.That(t, form.Get("metadata[isolator_session]"), test.ShouldEqual, cookie.Value)
	})

	t.Run("stripe errors", func(t *testing.T) {
		fs := newFakeStripe(t, http.StatusBadRequest,
			`{"error": {"type": "invalid_request_error", "message": "No such price: 'price_gone'"}}`)
		ts := newCheckoutService(t, fs)
		w := checkout(ts, `{"priceId": "price_gone"}`, bearer(t, testJWTSecret, "user-1"), nil)
		test.That(t, w.Code, test.ShouldEqual, http.StatusBadGateway)
		test.That(t, (<-fs.forms).Get("line_items[0][price]"), test.ShouldEqual, "price_gone")
	})
}

func TestCORS(t *testing.T) {
	ts := newTestService(t, func(o *Options) { o.AllowedOrigins = []string{"https://isolator.example"} })
	w := ts.do(request{
		method: http.MethodOptions, path: "/api/v1/modal",
		headers: map[string]string{
			"Origin":                        "https://isolator.example",
			"Access-Control-Request-Method": http.MethodPost,
		},
	})
	test.That(t, w.Header().Get("Access-Control-Allow-Origin"), test.ShouldEqual, "https://isolator.example")

	w = ts.do(request{
		method: http.MethodOptions, path: "/api/v1/modal",
		headers: map[string]string{
			"Origin":                        "https://elsewhere.example",
			"Access-Control-Request-Method": http.MethodPost,
		},
	})
	test.That(t, w.Header().Get("Access-Control-Allow-Origin"), test.ShouldBeEmpty)
}

func TestStartStop(t *testing.T) {
	ts := newTestService(t, func(o *Options) { o.BindAddress = "localhost:0" })
	test.That(t, ts.Start(context.Background()), test.ShouldBeNil)
	test.That(t, ts.Start(context.Background()), test.ShouldNotBeNil)
	addr := ts.Address()
	test.That(t, addr, test.ShouldNotBeEmpty)

	resp, err := http.Post("http://"+addr+"/api/v1/modal", "application/json", bytes.NewBufferString(defaultFormJSON))
	test.That(t, err, test.ShouldBeNil)
	data, err := io.ReadAll(resp.Body)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, resp.Body.Close(), test.ShouldBeNil)
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)
	test.That(t, string(data), test.ShouldContainSubstring, "naturalFrequencies")

	ts.Stop()
	_, err = http.Get("http://" + addr + "/healthz")
	test.That(t, err, test.ShouldNotBeNil)
}
