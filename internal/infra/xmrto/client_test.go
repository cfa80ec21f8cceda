package xmrto

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/normoes/xmrto-wrapper/internal/domain"
	"github.com/normoes/xmrto-wrapper/internal/infra"
)

func newTestClient(serverURL, apiVersion string) *Client {
	cfg := infra.DefaultConfig()
	cfg.API.URL = serverURL
	cfg.API.Version = apiVersion
	return NewClient(cfg)
}

func mustAmount(t *testing.T, btc, xmr string) domain.Amount {
	t.Helper()
	amount, err := domain.NormalizeAmount(btc, xmr)
	if err != nil {
		t.Fatalf("NormalizeAmount failed: %v", err)
	}
	return amount
}

func TestClient_CreateOrder_V3(t *testing.T) {
	var gotPath string
	var gotBody map[string]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{
			"uuid": "xmrto-ebmA9q",
			"state": "TO_BE_CREATED",
			"btc_amount": "0.001",
			"btc_dest_address": "3K1jSVxYqzqj7c9oLKXC7uJnwgACuTEZrY",
			"uses_lightning": false
		}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, infra.APIVersionV3)
	order, err := client.CreateOrder(context.Background(), "3K1jSVxYqzqj7c9oLKXC7uJnwgACuTEZrY", mustAmount(t, "0.001", ""))
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	if gotPath != "/api/v3/xmr2btc/order_create/" {
		t.Errorf("path = %s", gotPath)
	}
	if gotBody["amount"] != "0.001" || gotBody["amount_currency"] != "BTC" {
		t.Errorf("v3 payload = %v", gotBody)
	}
	if gotBody["btc_dest_address"] != "3K1jSVxYqzqj7c9oLKXC7uJnwgACuTEZrY" {
		t.Errorf("destination = %q", gotBody["btc_dest_address"])
	}

	if order.SecretKey != "xmrto-ebmA9q" {
		t.Errorf("SecretKey = %q", order.SecretKey)
	}
	if order.State != domain.StateToBeCreated {
		t.Errorf("State = %s, want TO_BE_CREATED", order.State)
	}
	if !order.BTCAmount.Equal(decimal.RequireFromString("0.001")) {
		t.Errorf("BTCAmount = %v", order.BTCAmount)
	}
}

func TestClient_CreateOrder_V2Payload(t *testing.T) {
	var gotPath string
	var gotBody map[string]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		// v2 answers with JSON numbers, not strings.
		w.Write([]byte(`{"uuid": "xmrto-aabbcc", "state": "TO_BE_CREATED", "btc_amount": 0.5}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, infra.APIVersionV2)
	order, err := client.CreateOrder(context.Background(), "dest", mustAmount(t, "", "0.5"))
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	if gotPath != "/api/v2/xmr2btc/order_create/" {
		t.Errorf("path = %s", gotPath)
	}
	if gotBody["xmr_amount"] != "0.5" {
		t.Errorf("v2 payload should use xmr_amount, got %v", gotBody)
	}
	if _, ok := gotBody["amount_currency"]; ok {
		t.Error("v2 payload must not carry amount_currency")
	}
	if !order.BTCAmount.Equal(decimal.RequireFromString("0.5")) {
		t.Errorf("BTCAmount = %v", order.BTCAmount)
	}
}

func TestClient_OrderStatus_V3(t *testing.T) {
	var gotBody map[string]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{
			"state": "UNDERPAID",
			"btc_amount": "0.001",
			"btc_amount_partial": "0.0004",
			"btc_dest_address": "3K1j",
			"seconds_till_timeout": 1500,
			"created_at": "2020-01-14T10:50:00Z",
			"incoming_price_btc": "0.0076",
			"receiving_subaddress": "83BGz",
			"incoming_amount_total": "0.131",
			"remaining_amount_incoming": "0.079",
			"incoming_num_confirmations_remaining": 0,
			"uses_lightning": false
		}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, infra.APIVersionV3)
	order, err := client.OrderStatus(context.Background(), "xmrto-ebmA9q")
	if err != nil {
		t.Fatalf("OrderStatus failed: %v", err)
	}

	if gotBody["uuid"] != "xmrto-ebmA9q" {
		t.Errorf("status query payload = %v", gotBody)
	}
	if order.SecretKey != "xmrto-ebmA9q" {
		t.Errorf("SecretKey = %q", order.SecretKey)
	}
	if order.State != domain.StateUnderpaid {
		t.Errorf("State = %s, want UNDERPAID", order.State)
	}
	if !order.IsUnderpaid() {
		t.Error("order should report underpaid")
	}
	if order.SecondsTillTimeout == nil || *order.SecondsTillTimeout != 1500 {
		t.Errorf("SecondsTillTimeout = %v, want 1500", order.SecondsTillTimeout)
	}
	if !order.RemainingAmountIncoming.Equal(decimal.RequireFromString("0.079")) {
		t.Errorf("RemainingAmountIncoming = %v", order.RemainingAmountIncoming)
	}
}

func TestClient_OrderStatus_V2FieldNames(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"state": "UNPAID",
			"btc_amount": 0.001,
			"btc_dest_address": "3K1j",
			"xmr_price_btc": 0.0076,
			"xmr_receiving_address": "44Ge",
			"xmr_amount_total": 0.131,
			"xmr_amount_remaining": 0.131,
			"xmr_num_confirmations_remaining": 2,
			"seconds_till_timeout": 2400
		}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, infra.APIVersionV2)
	order, err := client.OrderStatus(context.Background(), "xmrto-old")
	if err != nil {
		t.Fatalf("OrderStatus failed: %v", err)
	}

	if order.State != domain.StateUnpaid {
		t.Errorf("State = %s, want UNPAID", order.State)
	}
	if order.ReceivingSubaddress != "44Ge" {
		t.Errorf("ReceivingSubaddress = %q, want fallback to xmr_receiving_address", order.ReceivingSubaddress)
	}
	if !order.IncomingAmountTotal.Equal(decimal.RequireFromString("0.131")) {
		t.Errorf("IncomingAmountTotal = %v", order.IncomingAmountTotal)
	}
	if order.IncomingConfirmationsRemaining != 2 {
		t.Errorf("IncomingConfirmationsRemaining = %d", order.IncomingConfirmationsRemaining)
	}
}

func TestClient_OrderStatus_UnknownState(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"state": "BRAND_NEW_STATE", "btc_amount": "0.001"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, infra.APIVersionV3)
	order, err := client.OrderStatus(context.Background(), "xmrto-ebmA9q")
	if err != nil {
		t.Fatalf("unknown state must not fail the decode: %v", err)
	}

	if order.State != domain.StateUnknown {
		t.Errorf("State = %s, want UNKNOWN", order.State)
	}
	if order.RawState != "BRAND_NEW_STATE" {
		t.Errorf("RawState = %q, raw value must be kept", order.RawState)
	}
	if order.State.IsTerminal() {
		t.Error("unknown state must not be terminal")
	}
}

func TestClient_OrderStatus_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error": "XMRTO-ERROR-6", "error_msg": "requested order not found"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, infra.APIVersionV3)
	_, err := client.OrderStatus(context.Background(), "xmrto-gone")
	if err == nil {
		t.Fatal("expected error for 404")
	}

	if !errors.Is(err, domain.ErrOrderNotFound) {
		t.Errorf("err = %v, want ErrOrderNotFound", err)
	}
	if domain.IsRetriable(err) {
		t.Error("a 404 must not be retriable")
	}

	var serviceErr *domain.ServiceError
	if !errors.As(err, &serviceErr) {
		t.Fatalf("err type = %T, want ServiceError", err)
	}
	if serviceErr.Code != "XMRTO-ERROR-6" {
		t.Errorf("Code = %q", serviceErr.Code)
	}
}

func TestClient_CreateOrder_ValidationRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "XMRTO-ERROR-4", "error_msg": "malformed bitcoin address"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, infra.APIVersionV3)
	_, err := client.CreateOrder(context.Background(), "not-an-address", mustAmount(t, "0.001", ""))
	if err == nil {
		t.Fatal("expected error for 400")
	}
	if domain.IsRetriable(err) {
		t.Error("a service rejection must not be retriable")
	}

	var serviceErr *domain.ServiceError
	if !errors.As(err, &serviceErr) {
		t.Fatalf("err type = %T, want ServiceError", err)
	}
	if serviceErr.Message != "malformed bitcoin address" {
		t.Errorf("Message = %q", serviceErr.Message)
	}
}

func TestClient_ServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(server.URL, infra.APIVersionV3)
	_, err := client.OrderStatus(context.Background(), "xmrto-ebmA9q")
	if err == nil {
		t.Fatal("expected error for 502")
	}
	if !domain.IsRetriable(err) {
		t.Error("a 502 must be retriable")
	}
}

func TestClient_MalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>definitely not json</html>`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, infra.APIVersionV3)
	_, err := client.OrderStatus(context.Background(), "xmrto-ebmA9q")
	if err == nil {
		t.Fatal("expected error for non-JSON body")
	}
	if domain.IsRetriable(err) {
		t.Error("a protocol error must not be retriable")
	}

	var protoErr *domain.ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("err type = %T, want ProtocolError", err)
	}
}

func TestClient_CheckPrice_V3(t *testing.T) {
	var gotBody map[string]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{
			"btc_amount": "0.0076",
			"incoming_amount_total": "1",
			"incoming_price_btc": "0.0076",
			"incoming_num_confirmations_remaining": 0
		}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, infra.APIVersionV3)
	quote, err := client.CheckPrice(context.Background(), mustAmount(t, "", "1"))
	if err != nil {
		t.Fatalf("CheckPrice failed: %v", err)
	}

	if gotBody["amount"] != "1" || gotBody["amount_currency"] != "XMR" {
		t.Errorf("price payload = %v", gotBody)
	}
	if quote.Requested.Leg != domain.LegXMR {
		t.Errorf("Requested.Leg = %s, want XMR", quote.Requested.Leg)
	}
	if !quote.BTCAmount.Equal(decimal.RequireFromString("0.0076")) {
		t.Errorf("BTCAmount = %v", quote.BTCAmount)
	}
}

func TestClient_ConfirmPartialPayment(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(server.URL, infra.APIVersionV3)
	if err := client.ConfirmPartialPayment(context.Background(), "xmrto-ebmA9q"); err != nil {
		t.Fatalf("ConfirmPartialPayment failed: %v", err)
	}
	if gotPath != "/api/v3/xmr2btc/order_partial_payment/" {
		t.Errorf("path = %s", gotPath)
	}
}

func TestClient_CheckParameters(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		w.Write([]byte(`{
			"price": "0.0076",
			"upper_limit": "3",
			"lower_limit": "0.0001",
			"ln_upper_limit": "0.1",
			"ln_lower_limit": "0.00001",
			"zero_conf_enabled": true,
			"zero_conf_max_amount": "0.1"
		}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, infra.APIVersionV3)
	params, err := client.CheckParameters(context.Background())
	if err != nil {
		t.Fatalf("CheckParameters failed: %v", err)
	}

	if !params.ZeroConfEnabled {
		t.Error("ZeroConfEnabled = false, want true")
	}
	if !params.UpperLimit.Equal(decimal.NewFromInt(3)) {
		t.Errorf("UpperLimit = %v", params.UpperLimit)
	}
}

func TestClient_LightningNeedsV3(t *testing.T) {
	client := newTestClient("http://localhost:1", infra.APIVersionV2)

	if _, err := client.CreateLightningOrder(context.Background(), "lnbc1..."); !errors.Is(err, domain.ErrUnsupportedAPIVersion) {
		t.Errorf("CreateLightningOrder on v2: err = %v, want ErrUnsupportedAPIVersion", err)
	}
	if _, err := client.CheckLightningRoutes(context.Background(), "lnbc1..."); !errors.Is(err, domain.ErrUnsupportedAPIVersion) {
		t.Errorf("CheckLightningRoutes on v2: err = %v, want ErrUnsupportedAPIVersion", err)
	}
}
