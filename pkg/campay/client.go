package campay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/edukamer/edupay-backend/pkg/config"
	pkgerrors "github.com/edukamer/edupay-backend/pkg/errors"
)

const (
	demoBaseURL       = "https://demo.campay.net"
	productionBaseURL = "https://www.campay.net"

	responseBodyReadLimit int64 = 1 << 16

	// Tokens are refreshed early so an in-flight call never rides an
	// expiring one.
	tokenExpirySlack = 30 * time.Second
)

var (
	errCredentialsRequired = errors.New("campay app username and password are required")
)

// Client wraps the CamPay collection API used to mint hosted payment links.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	appUsername string
	appPassword string

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the environment-derived base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = strings.TrimRight(trimmed, "/")
		}
	}
}

// NewClient builds the CamPay client. The application environment selects the
// demo or live endpoint; an explicit base URL in config wins over both.
func NewClient(cfg config.CamPayConfig, appEnv string, opts ...Option) (*Client, error) {
	username := strings.TrimSpace(cfg.AppUsername)
	password := strings.TrimSpace(cfg.AppPassword)
	if username == "" || password == "" {
		return nil, errCredentialsRequired
	}

	baseURL := demoBaseURL
	if strings.EqualFold(appEnv, config.AppEnvProd) {
		baseURL = productionBaseURL
	}
	if trimmed := strings.TrimSpace(cfg.BaseURL); trimmed != "" {
		baseURL = strings.TrimRight(trimmed, "/")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := &Client{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     baseURL,
		appUsername: username,
		appPassword: password,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	return client, nil
}

// BaseURL reports the endpoint the client is bound to.
func (c *Client) BaseURL() string {
	if c == nil {
		return ""
	}
	return c.baseURL
}

// PaymentLinkRequest describes the payload sent to the hosted payment link API.
type PaymentLinkRequest struct {
	Amount             string `json:"amount"`
	Currency           string `json:"currency"`
	Description        string `json:"description,omitempty"`
	ExternalReference  string `json:"external_reference"`
	RedirectURL        string `json:"redirect_url,omitempty"`
	FailureRedirectURL string `json:"failure_redirect_url,omitempty"`
	PaymentOptions     string `json:"payment_options,omitempty"`
}

// PaymentLink is the hosted payment page minted by CamPay.
type PaymentLink struct {
	Link string
}

type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
}

type paymentLinkResponse struct {
	Link string `json:"link"`
}

type providerError struct {
	Message string `json:"message"`
	Detail  string `json:"detail"`
	Error   string `json:"error"`
}

// CreatePaymentLink mints a hosted payment page for the given collection.
func (c *Client) CreatePaymentLink(ctx context.Context, req PaymentLinkRequest) (*PaymentLink, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "campay client not configured")
	}
	if strings.TrimSpace(req.Amount) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount is required")
	}
	if strings.TrimSpace(req.ExternalReference) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "external reference is required")
	}
	if req.Currency == "" {
		req.Currency = "XAF"
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	var out paymentLinkResponse
	if err := c.post(ctx, "/api/get_payment_link/", token, req, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.Link) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeProvider, "campay returned no payment link")
	}
	return &PaymentLink{Link: out.Link}, nil
}

// TransactionStatus is the aggregator-side view of a collection.
type TransactionStatus struct {
	Reference         string `json:"reference"`
	ExternalReference string `json:"external_reference"`
	Status            string `json:"status"`
	Amount            string `json:"amount"`
	Currency          string `json:"currency"`
	Operator          string `json:"operator"`
	Code              string `json:"code"`
	OperatorReference string `json:"operator_reference"`
}

// GetTransactionStatus queries the aggregator for the current state of a
// collection by its CamPay reference.
func (c *Client) GetTransactionStatus(ctx context.Context, reference string) (*TransactionStatus, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "campay client not configured")
	}
	if strings.TrimSpace(reference) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference is required")
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	var out TransactionStatus
	if err := c.get(ctx, "/api/transaction/"+reference+"/", token, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// accessToken returns a cached token, fetching a fresh one if needed.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry.Add(-tokenExpirySlack)) {
		return c.token, nil
	}

	payload := map[string]string{
		"username": c.appUsername,
		"password": c.appPassword,
	}
	var out tokenResponse
	if err := c.post(ctx, "/api/token/", "", payload, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.Token) == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "campay token response missing token")
	}

	c.token = out.Token
	c.tokenExpiry = time.Now().Add(time.Duration(out.ExpiresIn) * time.Second)
	return c.token, nil
}

func (c *Client) get(ctx context.Context, path, token string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build campay request")
	}
	if token != "" {
		req.Header.Set("Authorization", "Token "+token)
	}
	return c.do(req, dest)
}

func (c *Client) post(ctx context.Context, path, token string, payload, dest any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode campay request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build campay request")
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Token "+token)
	}
	return c.do(req, dest)
}

func (c *Client) do(req *http.Request, dest any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "campay unreachable")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read campay response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return pkgerrors.New(pkgerrors.CodeProvider, extractProviderMessage(raw, resp.StatusCode)).
			WithDetails(map[string]any{"status_code": resp.StatusCode})
	}

	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode campay response")
	}
	return nil
}

func extractProviderMessage(raw []byte, statusCode int) string {
	var pe providerError
	if err := json.Unmarshal(raw, &pe); err == nil {
		for _, candidate := range []string{pe.Message, pe.Detail, pe.Error} {
			if strings.TrimSpace(candidate) != "" {
				return candidate
			}
		}
	}
	return fmt.Sprintf("campay request failed with status %d", statusCode)
}
