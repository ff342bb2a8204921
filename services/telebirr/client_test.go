package telebirr

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKey(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	return key, string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}

func testConfig(baseURL, privateKey string) Config {
	return Config{
		BaseURL:       baseURL,
		WebBaseURL:    "https://checkout.example.com/payment/web/paygate?",
		FabricAppID:   "fabric-app",
		AppSecret:     "secret",
		MerchantAppID: "merchant-app",
		MerchantCode:  "123456",
		PrivateKey:    privateKey,
		NotifyURL:     "https://api.example.com/payments/telebirr/notify",
		RedirectURL:   "https://example.com/paid",
		Timeout:       2 * time.Second,
	}
}

// fakeTelebirr answers the token and preorder endpoints and records the
// preorder body it received.
type fakeTelebirr struct {
	t           *testing.T
	preOrder    func(w http.ResponseWriter)
	tokenStatus int
	lastBody    map[string]interface{}
	lastHeaders http.Header
}

func (f *fakeTelebirr) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case tokenPath:
		var body map[string]string
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
		if f.tokenStatus != 0 {
			w.WriteHeader(f.tokenStatus)
			_, _ = w.Write([]byte(`{"errorCode":"401","errorMsg":"bad app secret"}`))
			return
		}
		assert.Equal(f.t, "fabric-app", r.Header.Get("X-APP-Key"))
		assert.Equal(f.t, "secret", body["appSecret"])
		_, _ = w.Write([]byte(`{"token":"Bearer abc","effectiveDate":"20260101","expirationDate":"20260102"}`))
	case preOrderPath:
		f.lastHeaders = r.Header.Clone()
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&f.lastBody))
		if f.preOrder != nil {
			f.preOrder(w)
			return
		}
		_, _ = w.Write([]byte(`{"result":"SUCCESS","code":"0","msg":"success","biz_content":{"merch_order_id":"C1U2T3","prepay_id":"prepay-42"}}`))
	default:
		http.NotFound(w, r)
	}
}

func TestCanonical(t *testing.T) {
	got := Canonical(map[string]string{
		"timestamp":   "1700000000",
		"appid":       "app",
		"sign":        "xxx",
		"sign_type":   SignType,
		"biz_content": "{}",
		"empty":       "",
		"nonce_str":   "n",
	})
	assert.Equal(t, "appid=app&nonce_str=n&timestamp=1700000000", got)
}

func TestSignAndVerify(t *testing.T) {
	key, _ := newKey(t)
	fields := map[string]string{"appid": "app", "prepay_id": "p1"}

	sig, err := Sign(key, fields)
	require.NoError(t, err)
	require.NoError(t, Verify(&key.PublicKey, fields, sig))

	// the signature does not cover itself
	withSig := map[string]string{"appid": "app", "prepay_id": "p1", "sign": sig, "sign_type": SignType}
	assert.NoError(t, Verify(&key.PublicKey, withSig, sig))

	fields["prepay_id"] = "p2"
	assert.Error(t, Verify(&key.PublicKey, fields, sig))
	assert.Error(t, Verify(&key.PublicKey, fields, "not base64!"))
}

func TestParseKeys(t *testing.T) {
	key, pkcs8 := newKey(t)

	parsed, err := ParsePrivateKey(pkcs8)
	require.NoError(t, err)
	assert.True(t, key.Equal(parsed))

	pkcs1 := string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}))
	parsed, err = ParsePrivateKey(pkcs1)
	require.NoError(t, err)
	assert.True(t, key.Equal(parsed))

	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	parsed, err = ParsePrivateKey(base64.StdEncoding.EncodeToString(der))
	require.NoError(t, err)
	assert.True(t, key.Equal(parsed))

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pub, err := ParsePublicKey(string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})))
	require.NoError(t, err)
	assert.True(t, key.PublicKey.Equal(pub))

	_, err = ParsePrivateKey("")
	assert.Error(t, err)
	_, err = ParsePrivateKey("%%%")
	assert.Error(t, err)
}

func TestSanitizeTitle(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Go Basics", "Go Basics"},
		{"<b>Go</b> & \"Rust\"", "b Go /b Rust"},
		{"line\nbreak\ttab", "line break tab"},
		{"  \x00\x07 ", "Course purchase"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeTitle(tt.in), tt.in)
	}
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "300.00", FormatAmount(300))
	assert.Equal(t, "12.50", FormatAmount(12.5))
	assert.Equal(t, "0.10", FormatAmount(0.1))
}

func TestConfigured(t *testing.T) {
	_, pemKey := newKey(t)
	cfg := testConfig("https://api.example.com", pemKey)
	assert.True(t, cfg.Configured())

	cfg.AppSecret = " "
	assert.False(t, cfg.Configured())
	_, err := NewClient(cfg)
	assert.Error(t, err)
}

func TestCreatePreOrder(t *testing.T) {
	key, pemKey := newKey(t)
	fake := &fakeTelebirr{t: t}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	client, err := NewClient(testConfig(srv.URL, pemKey))
	require.NoError(t, err)
	client.now = func() time.Time { return time.Unix(1700000000, 0) }
	client.nonce = func() string { return "nonce1" }

	ctx := context.Background()
	token, err := client.ApplyFabricToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Bearer abc", token)

	prepayID, err := client.CreatePreOrder(ctx, token, PreOrder{MerchOrderID: "C1U2T3", Title: "Go <Basics>", Amount: 300})
	require.NoError(t, err)
	assert.Equal(t, "prepay-42", prepayID)

	assert.Equal(t, "Bearer abc", fake.lastHeaders.Get("Authorization"))
	assert.Equal(t, "fabric-app", fake.lastHeaders.Get("X-APP-Key"))

	body := fake.lastBody
	assert.Equal(t, "payment.preorder", body["method"])
	assert.Equal(t, "1.0", body["version"])
	assert.Equal(t, "1700000000", body["timestamp"])
	assert.Equal(t, "nonce1", body["nonce_str"])
	assert.Equal(t, SignType, body["sign_type"])

	biz, ok := body["biz_content"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "300.00", biz["total_amount"])
	assert.Equal(t, "ETB", biz["trans_currency"])
	assert.Equal(t, "Go Basics", biz["title"])
	assert.Equal(t, "C1U2T3", biz["merch_order_id"])
	assert.Equal(t, "120m", biz["timeout_express"])
	assert.Equal(t, "Checkout", biz["trade_type"])

	signed := map[string]string{}
	for k, v := range body {
		if s, ok := v.(string); ok {
			signed[k] = s
		}
	}
	for k, v := range biz {
		signed[k] = v.(string)
	}
	assert.NoError(t, Verify(&key.PublicKey, signed, body["sign"].(string)))
}

func TestCreatePreOrderFailures(t *testing.T) {
	_, pemKey := newKey(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		response func(w http.ResponseWriter)
		wantMsg  string
	}{
		{
			name: "rejected",
			response: func(w http.ResponseWriter) {
				_, _ = w.Write([]byte(`{"result":"FAIL","code":"E1001","msg":"merchant disabled"}`))
			},
			wantMsg: "merchant disabled",
		},
		{
			name: "no prepay id",
			response: func(w http.ResponseWriter) {
				_, _ = w.Write([]byte(`{"result":"SUCCESS","code":"0","biz_content":{}}`))
			},
			wantMsg: "no prepay_id",
		},
		{
			name: "server error",
			response: func(w http.ResponseWriter) {
				w.WriteHeader(http.StatusBadGateway)
				_, _ = w.Write([]byte(`<html>bad gateway</html>`))
			},
			wantMsg: "status 502",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(&fakeTelebirr{t: t, preOrder: tt.response})
			defer srv.Close()
			client, err := NewClient(testConfig(srv.URL, pemKey))
			require.NoError(t, err)

			_, err = client.CreatePreOrder(ctx, "Bearer abc", PreOrder{MerchOrderID: "X", Title: "T", Amount: 1})
			require.Error(t, err)
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestApplyFabricTokenRejected(t *testing.T) {
	_, pemKey := newKey(t)
	srv := httptest.NewServer(&fakeTelebirr{t: t, tokenStatus: http.StatusUnauthorized})
	defer srv.Close()
	client, err := NewClient(testConfig(srv.URL, pemKey))
	require.NoError(t, err)

	_, err = client.ApplyFabricToken(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad app secret")
}

func TestTimeout(t *testing.T) {
	_, pemKey := newKey(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL, pemKey)
	cfg.Timeout = 50 * time.Millisecond
	client, err := NewClient(cfg)
	require.NoError(t, err)

	start := time.Now()
	_, err = client.ApplyFabricToken(context.Background())
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 250*time.Millisecond)
}

func TestCheckoutURL(t *testing.T) {
	key, pemKey := newKey(t)
	client, err := NewClient(testConfig("https://api.example.com", pemKey))
	require.NoError(t, err)
	client.now = func() time.Time { return time.Unix(1700000000, 0) }
	client.nonce = func() string { return "nonce2" }

	raw, err := client.CheckoutURL("prepay-42")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(raw, "https://checkout.example.com/payment/web/paygate?appid=merchant-app&merch_code=123456&nonce_str=nonce2&prepay_id=prepay-42&timestamp=1700000000&sign="))
	assert.True(t, strings.HasSuffix(raw, "&sign_type=SHA256WithRSA&version=1.0&trade_type=Checkout"))

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	fields := map[string]string{
		"appid":      q.Get("appid"),
		"merch_code": q.Get("merch_code"),
		"nonce_str":  q.Get("nonce_str"),
		"prepay_id":  q.Get("prepay_id"),
		"timestamp":  q.Get("timestamp"),
	}
	assert.NoError(t, Verify(&key.PublicKey, fields, q.Get("sign")))

	_, err = client.CheckoutURL("")
	assert.Error(t, err)
}

func TestVerifyNotification(t *testing.T) {
	merchantKey, merchantPEM := newKey(t)
	providerKey, _ := newKey(t)
	pubDER, err := x509.MarshalPKIXPublicKey(&providerKey.PublicKey)
	require.NoError(t, err)

	cfg := testConfig("https://api.example.com", merchantPEM)
	unverified, err := NewClient(cfg)
	require.NoError(t, err)
	assert.NoError(t, unverified.VerifyNotification(map[string]string{"merch_order_id": "X"}))

	cfg.PublicKey = string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}))
	client, err := NewClient(cfg)
	require.NoError(t, err)

	fields := map[string]string{"merch_order_id": "X", "trade_status": "Completed"}
	sig, err := Sign(providerKey, fields)
	require.NoError(t, err)
	fields["sign"] = sig
	fields["sign_type"] = SignType
	assert.NoError(t, client.VerifyNotification(fields))

	forged, err := Sign(merchantKey, map[string]string{"merch_order_id": "X", "trade_status": "Completed"})
	require.NoError(t, err)
	fields["sign"] = forged
	assert.Error(t, client.VerifyNotification(fields))

	delete(fields, "sign")
	assert.Error(t, client.VerifyNotification(fields))
}
