package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"crypto-analyzer/internal/analysis"
	"crypto-analyzer/internal/market"
	"crypto-analyzer/internal/scheduler"
	"crypto-analyzer/internal/stocks"

	"github.com/pquerna/otp/totp"
)

const testSecret = "JBSWY3DPEHPK3PXP"

type fakeStocks struct {
	analyses map[string]*stocks.StockAnalysis
	errs     map[string]error
}

func (f *fakeStocks) Analyze(ctx context.Context, symbol string) (*stocks.StockAnalysis, error) {
	sym := strings.ToUpper(symbol)
	if err, ok := f.errs[sym]; ok {
		return nil, err
	}
	if sa, ok := f.analyses[sym]; ok {
		return sa, nil
	}
	return nil, fmt.Errorf("analyze %s: %w", sym, market.ErrUnknownSymbol)
}

func (f *fakeStocks) AnalyzeAll(ctx context.Context, symbols []string) []*stocks.StockAnalysis {
	var out []*stocks.StockAnalysis
	for _, s := range symbols {
		if sa, err := f.Analyze(ctx, s); err == nil {
			out = append(out, sa)
		}
	}
	return out
}

type fakeRefresher struct {
	calls int
	err   error
}

func (f *fakeRefresher) RefreshAll(ctx context.Context) (scheduler.Report, error) {
	f.calls++
	if f.err != nil {
		return scheduler.Report{}, f.err
	}
	return scheduler.Report{Analyzed: []string{"AAPL"}}, nil
}

func newTestAPI() *API {
	api := NewAPI([]string{"AAPL", "MSFT"})
	api.Stocks = &fakeStocks{
		analyses: map[string]*stocks.StockAnalysis{
			"AAPL": {Symbol: "AAPL", Name: "Apple Inc.", Price: 190.5},
			"MSFT": {Symbol: "MSFT", Name: "Microsoft", Price: 410},
		},
		errs: map[string]error{
			"BAD!":  fmt.Errorf("analyze BAD!: %w", stocks.ErrInvalidSymbol),
			"NEWCO": fmt.Errorf("analyze NEWCO: %w", &analysis.InsufficientDataError{Have: 5, Need: 14}),
			"DOWN":  fmt.Errorf("analyze DOWN: quote: connection refused"),
		},
	}
	api.Hub = NewHub(nil, nil)
	return api
}

func do(t *testing.T, h http.Handler, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body is not JSON: %v (%s)", err, rec.Body.String())
	}
	return body["error"]
}

func pricesJSON(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("%d", 100+i)
	}
	return `{"prices":[` + strings.Join(parts, ",") + `]}`
}

func TestAnalyze_OK(t *testing.T) {
	h := newTestAPI().Routes()
	rec := do(t, h, "POST", "/api/analyze", pricesJSON(40), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type = %q", ct)
	}

	var out map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"rsi", "macd", "sma", "trend"} {
		if _, ok := out[k]; !ok {
			t.Errorf("response missing %q", k)
		}
	}
	var trend analysis.TrendResult
	if err := json.Unmarshal(out["trend"], &trend); err != nil {
		t.Fatal(err)
	}
	if trend.Direction == "" || trend.Description == "" {
		t.Errorf("trend = %+v", trend)
	}
}

func TestAnalyze_BadRequest(t *testing.T) {
	h := newTestAPI().Routes()
	cases := map[string]string{
		"not json":       `prices=1,2,3`,
		"missing prices": `{"series":[1,2,3]}`,
		"prices string":  `{"prices":"1,2,3"}`,
		"prices object":  `{"prices":{"a":1}}`,
		"prices null":    `{"prices":null}`,
		"empty body":     ``,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := do(t, h, "POST", "/api/analyze", body, nil)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if got := errorBody(t, rec); got != "Invalid price data" {
				t.Errorf("error = %q", got)
			}
		})
	}
}

func TestAnalyze_EngineFailure(t *testing.T) {
	h := newTestAPI().Routes()
	cases := map[string]string{
		"too short":     pricesJSON(13),
		"empty array":   `{"prices":[]}`,
		"string entry":  `{"prices":[1,2,"x",4,5,6,7,8,9,10,11,12,13,14]}`,
		"null entry":    `{"prices":[1,2,null,4,5,6,7,8,9,10,11,12,13,14]}`,
		"zero entry":    `{"prices":[1,2,0,4,5,6,7,8,9,10,11,12,13,14]}`,
		"negative last": `{"prices":[1,2,3,4,5,6,7,8,9,10,11,12,13,-14]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := do(t, h, "POST", "/api/analyze", body, nil)
			if rec.Code != http.StatusInternalServerError {
				t.Fatalf("status = %d, want 500", rec.Code)
			}
			if got := errorBody(t, rec); got != "Failed to analyze price data" {
				t.Errorf("error = %q", got)
			}
		})
	}
}

func TestAnalyze_MethodNotAllowed(t *testing.T) {
	h := newTestAPI().Routes()
	rec := do(t, h, "GET", "/api/analyze", "", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestStock(t *testing.T) {
	h := newTestAPI().Routes()
	cases := []struct {
		path   string
		status int
	}{
		{"/api/stocks/AAPL", http.StatusOK},
		{"/api/stocks/aapl", http.StatusOK},
		{"/api/stocks/BAD!", http.StatusBadRequest},
		{"/api/stocks/ZZZZ", http.StatusNotFound},
		{"/api/stocks/NEWCO", http.StatusUnprocessableEntity},
		{"/api/stocks/DOWN", http.StatusBadGateway},
	}
	for _, tc := range cases {
		rec := do(t, h, "GET", tc.path, "", nil)
		if rec.Code != tc.status {
			t.Errorf("%s: status = %d, want %d (%s)", tc.path, rec.Code, tc.status, rec.Body.String())
		}
	}

	rec := do(t, h, "GET", "/api/stocks/AAPL", "", nil)
	var sa stocks.StockAnalysis
	if err := json.Unmarshal(rec.Body.Bytes(), &sa); err != nil {
		t.Fatal(err)
	}
	if sa.Symbol != "AAPL" || sa.Price != 190.5 {
		t.Errorf("analysis = %+v", sa)
	}
}

func TestStocks_WatchList(t *testing.T) {
	h := newTestAPI().Routes()

	rec := do(t, h, "GET", "/api/stocks", "", nil)
	var all []stocks.StockAnalysis
	if err := json.Unmarshal(rec.Body.Bytes(), &all); err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].Symbol != "AAPL" || all[1].Symbol != "MSFT" {
		t.Errorf("watch list = %+v", all)
	}

	rec = do(t, h, "GET", "/api/stocks?symbols=msft,zzzz", "", nil)
	all = nil
	if err := json.Unmarshal(rec.Body.Bytes(), &all); err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all[0].Symbol != "MSFT" {
		t.Errorf("filtered = %+v", all)
	}

	rec = do(t, h, "GET", "/api/stocks?symbols=zzzz", "", nil)
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("empty result = %s, want []", rec.Body.String())
	}
}

func TestStocks_TooManySymbols(t *testing.T) {
	h := newTestAPI().Routes()
	syms := make([]string, maxSymbolsPerRequest+1)
	for i := range syms {
		syms[i] = fmt.Sprintf("S%d", i)
	}

	rec := do(t, h, "GET", "/api/stocks?symbols="+strings.Join(syms, ","), "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if got := errorBody(t, rec); got != "Too many symbols" {
		t.Errorf("error = %q", got)
	}

	rec = do(t, h, "GET", "/api/stocks?symbols="+strings.Join(syms[:maxSymbolsPerRequest], ","), "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("at cap: status = %d, want 200", rec.Code)
	}
}

func TestStock_NoService(t *testing.T) {
	api := NewAPI(nil)
	rec := do(t, api.Routes(), "GET", "/api/stocks/AAPL", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestLatest(t *testing.T) {
	api := newTestAPI()
	h := api.Routes()

	if rec := do(t, h, "GET", "/api/stocks/AAPL/latest", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("before publish: status = %d, want 404", rec.Code)
	}

	api.Hub.Broadcast("pub:analysis:AAPL", []byte(`{"symbol":"AAPL","price":191}`))
	rec := do(t, h, "GET", "/api/stocks/aapl/latest", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Body.String(); got != `{"symbol":"AAPL","price":191}` {
		t.Errorf("body = %s", got)
	}
}

func TestMissed(t *testing.T) {
	api := newTestAPI()
	h := api.Routes()
	for i := 1; i <= 3; i++ {
		api.Hub.Broadcast("pub:analysis:AAPL", []byte(fmt.Sprintf(`{"n":%d}`, i)))
	}

	rec := do(t, h, "GET", "/api/stream/missed?channel=pub:analysis:AAPL&after=1", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var out struct {
		Seq      int64      `json:"seq"`
		Messages []envelope `json:"messages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.Seq != 3 || len(out.Messages) != 2 {
		t.Fatalf("seq=%d messages=%d", out.Seq, len(out.Messages))
	}
	if out.Messages[0].ChannelSeq != 2 || string(out.Messages[1].Data) != `{"n":3}` {
		t.Errorf("messages = %+v", out.Messages)
	}

	for _, q := range []string{"?after=1", "?channel=x&after=-1", "?channel=x&after=abc"} {
		if rec := do(t, h, "GET", "/api/stream/missed"+q, "", nil); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, rec.Code)
		}
	}
}

func TestAdminRefresh(t *testing.T) {
	api := newTestAPI()
	ref := &fakeRefresher{}
	api.Refresher = ref
	h := api.Routes()

	if rec := do(t, h, "POST", "/api/admin/refresh", "", nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("no secret: status = %d, want 503", rec.Code)
	}

	api.AdminTOTPSecret = testSecret
	if rec := do(t, h, "POST", "/api/admin/refresh", "", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("missing code: status = %d, want 401", rec.Code)
	}
	if rec := do(t, h, "POST", "/api/admin/refresh", "", map[string]string{"X-TOTP": "000000x"}); rec.Code != http.StatusUnauthorized {
		t.Errorf("bad code: status = %d, want 401", rec.Code)
	}
	if ref.calls != 0 {
		t.Fatalf("refresher called %d times before auth", ref.calls)
	}

	code, err := totp.GenerateCode(testSecret, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	rec := do(t, h, "POST", "/api/admin/refresh", "", map[string]string{"X-TOTP": code})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var rep scheduler.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &rep); err != nil {
		t.Fatal(err)
	}
	if len(rep.Analyzed) != 1 || rep.Analyzed[0] != "AAPL" {
		t.Errorf("report = %+v", rep)
	}

	ref.err = scheduler.ErrRefreshInProgress
	if rec := do(t, h, "POST", "/api/admin/refresh", "", map[string]string{"X-TOTP": code}); rec.Code != http.StatusConflict {
		t.Errorf("in progress: status = %d, want 409", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	api := newTestAPI()
	api.Hub.Broadcast("pub:analysis:MSFT", []byte(`{"symbol":"MSFT"}`))
	api.Hub.Broadcast("pub:analysis:AAPL", []byte(`{"symbol":"AAPL"}`))
	h := api.Routes()
	rec := do(t, h, "GET", "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %v", body["status"])
	}
	if body["ws_clients"] != float64(0) {
		t.Errorf("ws_clients = %v", body["ws_clients"])
	}
	syms, _ := body["stream_symbols"].([]interface{})
	if len(syms) != 2 || syms[0] != "AAPL" || syms[1] != "MSFT" {
		t.Errorf("stream_symbols = %v", body["stream_symbols"])
	}
}

func TestStreamLatest(t *testing.T) {
	api := newTestAPI()
	h := api.Routes()

	rec := do(t, h, "GET", "/api/stream/latest", "", nil)
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "{}" {
		t.Fatalf("empty hub: status = %d, body %s", rec.Code, rec.Body.String())
	}

	api.Hub.Broadcast("pub:analysis:AAPL", []byte(`{"price":1}`))
	api.Hub.Broadcast("pub:analysis:AAPL", []byte(`{"price":2}`))
	rec = do(t, h, "GET", "/api/stream/latest", "", nil)
	var out map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || string(out["AAPL"]) != `{"price":2}` {
		t.Errorf("latest = %v", out)
	}
}

func TestCORSAndPreflight(t *testing.T) {
	h := newTestAPI().Routes()

	rec := do(t, h, "OPTIONS", "/api/analyze", "", nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("allow-origin = %q", got)
	}

	rec = do(t, h, "POST", "/api/analyze", `nope`, nil)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("CORS missing on error response: %q", got)
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Headers"), "X-TOTP") {
		t.Errorf("allow-headers = %q", rec.Header().Get("Access-Control-Allow-Headers"))
	}
}

func TestRequestID(t *testing.T) {
	h := newTestAPI().Routes()

	rec := do(t, h, "GET", "/health", "", map[string]string{RequestIDHeader: "abc-123"})
	if got := rec.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Errorf("echoed id = %q", got)
	}

	rec = do(t, h, "GET", "/health", "", nil)
	if got := rec.Header().Get(RequestIDHeader); len(got) != 36 {
		t.Errorf("minted id = %q, want a uuid", got)
	}
}

func TestStockErrorStatus_Timeout(t *testing.T) {
	status, _ := stockErrorStatus(fmt.Errorf("analyze AAPL: %w", context.DeadlineExceeded))
	if status != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want 504", status)
	}
}
