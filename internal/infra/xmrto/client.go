package xmrto

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/normoes/xmrto-wrapper/internal/domain"
	"github.com/normoes/xmrto-wrapper/internal/infra"
)

// UserAgent mirrors the header the service has always been queried with.
const UserAgent = "XmrtoProxy/0.1"

// Client is the XMR.to REST API client (boundary layer). It owns all
// interpretation of HTTP status codes and response decoding; callers
// only ever see domain records and the domain error taxonomy.
type Client struct {
	baseURL    string
	apiVersion string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *infra.Metrics
}

// NewClient creates a new API client from the resolved configuration.
func NewClient(cfg *infra.Config) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.API.URL, "/"),
		apiVersion: cfg.API.Version,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.API.TimeoutSec) * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		logger:  slog.Default().With("module", "xmrto_client"),
		metrics: infra.GlobalMetrics,
	}
}

func (c *Client) endpoint(name string) string {
	return fmt.Sprintf("%s/api/%s/xmr2btc/%s/", c.baseURL, c.apiVersion, name)
}

// CreateOrder requests a new conversion order. It is never retried here:
// a failed create must be re-minted by the caller, not replayed.
func (c *Client) CreateOrder(ctx context.Context, destination string, amount domain.Amount) (domain.Order, error) {
	const op = "create order"

	payload := map[string]string{"btc_dest_address": destination}
	for k, v := range c.amountPayload(amount) {
		payload[k] = v
	}

	body, err := c.do(ctx, op, http.MethodPost, c.endpoint("order_create"), payload)
	if err != nil {
		return domain.Order{}, err
	}

	var resp orderCreatedResponse
	if err := c.decode(op, body, &resp); err != nil {
		return domain.Order{}, err
	}

	order := resp.toDomain()
	if order.DestinationAddress == "" {
		order.DestinationAddress = destination
	}
	c.logger.Info("order created", "uuid", order.SecretKey, "state", order.RawState)
	return order, nil
}

// CreateLightningOrder creates an order paying a lightning invoice (v3 only).
func (c *Client) CreateLightningOrder(ctx context.Context, invoice string) (domain.Order, error) {
	const op = "create lightning order"

	if c.apiVersion != infra.APIVersionV3 {
		return domain.Order{}, fmt.Errorf("%w: lightning orders need API %s", domain.ErrUnsupportedAPIVersion, infra.APIVersionV3)
	}

	payload := map[string]string{"ln_invoice": invoice}
	body, err := c.do(ctx, op, http.MethodPost, c.endpoint("order_create_ln"), payload)
	if err != nil {
		return domain.Order{}, err
	}

	var resp orderCreatedResponse
	if err := c.decode(op, body, &resp); err != nil {
		return domain.Order{}, err
	}

	order := resp.toDomain()
	c.logger.Info("lightning order created", "uuid", order.SecretKey, "state", order.RawState)
	return order, nil
}

// OrderStatus fetches the current snapshot of an existing order.
func (c *Client) OrderStatus(ctx context.Context, secretKey string) (domain.Order, error) {
	const op = "order status"

	payload := map[string]string{"uuid": secretKey}
	body, err := c.do(ctx, op, http.MethodPost, c.endpoint("order_status_query"), payload)
	if err != nil {
		return domain.Order{}, err
	}

	if c.apiVersion == infra.APIVersionV2 {
		var resp orderStatusV2
		if err := c.decode(op, body, &resp); err != nil {
			return domain.Order{}, err
		}
		return resp.toDomain(secretKey), nil
	}

	var resp orderStatusV3
	if err := c.decode(op, body, &resp); err != nil {
		return domain.Order{}, err
	}
	return resp.toDomain(secretKey), nil
}

// ConfirmPartialPayment asks the service to proceed with the partially
// paid amount. The response carries no JSON body worth decoding; only
// the status code matters.
func (c *Client) ConfirmPartialPayment(ctx context.Context, secretKey string) error {
	const op = "confirm partial payment"

	payload := map[string]string{"uuid": secretKey}
	if _, err := c.do(ctx, op, http.MethodPost, c.endpoint("order_partial_payment"), payload); err != nil {
		return err
	}

	c.logger.Info("partial payment confirmed", "uuid", secretKey)
	return nil
}

// CheckPrice fetches a conversion quote for the given amount.
func (c *Client) CheckPrice(ctx context.Context, amount domain.Amount) (domain.PriceQuote, error) {
	const op = "check price"

	body, err := c.do(ctx, op, http.MethodPost, c.endpoint("order_check_price"), c.amountPayload(amount))
	if err != nil {
		return domain.PriceQuote{}, err
	}

	if c.apiVersion == infra.APIVersionV2 {
		var resp priceV2
		if err := c.decode(op, body, &resp); err != nil {
			return domain.PriceQuote{}, err
		}
		return resp.toDomain(amount), nil
	}

	var resp priceV3
	if err := c.decode(op, body, &resp); err != nil {
		return domain.PriceQuote{}, err
	}
	return resp.toDomain(amount), nil
}

// CheckParameters fetches the current order limits of the service.
func (c *Client) CheckParameters(ctx context.Context) (domain.Parameters, error) {
	const op = "check parameters"

	body, err := c.do(ctx, op, http.MethodGet, c.endpoint("order_parameter_query"), nil)
	if err != nil {
		return domain.Parameters{}, err
	}

	var resp parametersResponse
	if err := c.decode(op, body, &resp); err != nil {
		return domain.Parameters{}, err
	}
	return resp.toDomain(), nil
}

// CheckLightningRoutes probes routes for a lightning invoice (v3 only).
func (c *Client) CheckLightningRoutes(ctx context.Context, invoice string) (domain.LightningRoutes, error) {
	const op = "check lightning routes"

	if c.apiVersion != infra.APIVersionV3 {
		return domain.LightningRoutes{}, fmt.Errorf("%w: route checks need API %s", domain.ErrUnsupportedAPIVersion, infra.APIVersionV3)
	}

	reqURL := c.endpoint("order_ln_check_route") + "?ln_invoice=" + url.QueryEscape(invoice)
	body, err := c.do(ctx, op, http.MethodGet, reqURL, nil)
	if err != nil {
		return domain.LightningRoutes{}, err
	}

	var resp routesResponse
	if err := c.decode(op, body, &resp); err != nil {
		return domain.LightningRoutes{}, err
	}
	return domain.LightningRoutes{NumRoutes: resp.NumRoutes, SuccessProbability: resp.SuccessProbability}, nil
}

// FetchQRCode downloads the service-rendered QR code PNG for data.
func (c *Client) FetchQRCode(ctx context.Context, data string) ([]byte, error) {
	const op = "fetch qrcode"

	reqURL := fmt.Sprintf("%s/api/%s/xmr2btc/gen_qrcode?data=%s", c.baseURL, c.apiVersion, url.QueryEscape(data))
	return c.do(ctx, op, http.MethodGet, reqURL, nil)
}

// amountPayload encodes an amount the way the selected API version
// expects it: dedicated btc_amount/xmr_amount keys on v2, a shared
// amount key plus amount_currency on v3.
func (c *Client) amountPayload(amount domain.Amount) map[string]string {
	if c.apiVersion == infra.APIVersionV2 {
		key := "btc_amount"
		if amount.Leg == domain.LegXMR {
			key = "xmr_amount"
		}
		return map[string]string{key: amount.Value.String()}
	}
	return map[string]string{
		"amount":          amount.Value.String(),
		"amount_currency": string(amount.Leg),
	}
}

// do issues one request and maps transport failures and status codes to
// the domain error taxonomy. Retrying is the caller's business.
func (c *Client) do(ctx context.Context, op, method, reqURL string, payload map[string]string) ([]byte, error) {
	var bodyReader io.Reader
	if payload != nil {
		jsonBytes, err := json.Marshal(payload)
		if err != nil {
			return nil, &domain.ProtocolError{Op: op, Err: err}
		}
		bodyReader = bytes.NewBuffer(jsonBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return nil, &domain.ProtocolError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.RecordRequest(time.Since(start))
	if err != nil {
		c.metrics.RecordError()
		return nil, &domain.TransientError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.RecordError()
		return nil, &domain.TransientError{Op: op, Err: err}
	}

	c.logger.Debug("response received", "op", op, "status", resp.StatusCode)

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		return body, nil

	case resp.StatusCode == http.StatusBadRequest ||
		resp.StatusCode == http.StatusForbidden ||
		resp.StatusCode == http.StatusNotFound:
		// Status codes the API answers with deliberately; the body
		// carries the service error envelope.
		c.metrics.RecordError()
		var svcErr apiError
		_ = json.Unmarshal(body, &svcErr)
		serr := &domain.ServiceError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Code:       svcErr.Error,
			Message:    svcErr.ErrorMsg,
		}
		if resp.StatusCode == http.StatusNotFound {
			serr.Err = domain.ErrOrderNotFound
		}
		return nil, serr

	default:
		c.metrics.RecordError()
		return nil, &domain.TransientError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status code: %d", resp.StatusCode),
		}
	}
}

func (c *Client) decode(op string, body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		c.metrics.RecordError()
		return &domain.ProtocolError{Op: op, Err: err}
	}
	return nil
}
