package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/iho/storeledger/internal/domain"
	"github.com/iho/storeledger/internal/infrastructure/auth"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("expected short unchanged, got %q", got)
	}

	if got := truncate("longerstring", 6); got != "lon..." {
		t.Fatalf("expected lon..., got %q", got)
	}
}

func TestPrintJSON(t *testing.T) {
	var out bytes.Buffer
	printJSON(&out, struct {
		A int `json:"a"`
	}{A: 1})

	expected := "{\n  \"a\": 1\n}\n"
	if out.String() != expected {
		t.Fatalf("unexpected json output:\n%s", out.String())
	}
}

func TestSweepCmdSendsDateAndActor(t *testing.T) {
	var (
		gotBody  map[string]any
		gotActor string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/ledger/sweep" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotActor = r.Header.Get("X-Actor-ID")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"as_of":"2024-02-15","scanned":4,"transitioned":2,"failed":0}`))
	}))
	defer srv.Close()

	out, err := execute(t, "--url", srv.URL, "--actor", "admin-1", "sweep", "--as-of", "2024-02-15")
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if gotActor != "admin-1" || !strings.HasPrefix(gotBody["as_of"].(string), "2024-02-15") {
		t.Fatalf("actor=%q body=%v", gotActor, gotBody)
	}
	if !strings.Contains(out, "transitioned=2") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestLedgerConsistencyCmd(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
		want    string
	}{
		{
			name: "consistent",
			body: `{"checked_sales":3,"checked_sessions":1,"consistent":true}`,
			want: "Consistency check PASSED",
		},
		{
			name:    "drift",
			body:    `{"checked_sales":1,"sale_discrepancies":[{"sale_id":"s1","recorded":"300.00","calculated":"200.00","difference":"100.00"}],"consistent":false}`,
			wantErr: true,
			want:    "sale s1: recorded 300.00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			out, err := execute(t, "--url", srv.URL, "ledger", "consistency")
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !strings.Contains(out, tt.want) {
				t.Fatalf("output %q does not contain %q", out, tt.want)
			}
		})
	}
}

func TestSessionReportCmd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/cash-sessions/sess-1/report" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"session not found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"report":{"session_id":"sess-1","cash_register_id":"caja-1","status":"closed",
			"opening_amount":"100.00","expected_amount":"400.00","counted_amount":"398.00","variance":"-2.00",
			"variance_pct":"-0.5","classification":"normal","totals_by_type":[{"type":"installment_collection","amount":"300.00"}],
			"entry_count":1},"entries":[]}`))
	}))
	defer srv.Close()

	out, err := execute(t, "--url", srv.URL, "session", "report", "sess-1")
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}
	for _, want := range []string{"caja-1", "400.00", "-2.00 (-0.50%, normal)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q does not contain %q", out, want)
		}
	}

	if _, err := execute(t, "--url", srv.URL, "session", "report", "missing"); err == nil ||
		!strings.Contains(err.Error(), "session not found") {
		t.Fatalf("expected api error, got %v", err)
	}
}

func TestSessionExportCmd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		_, _ = w.Write([]byte("PK-fake-xlsx"))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "cierre.xlsx")
	if _, err := execute(t, "--url", srv.URL, "session", "export", "sess-1", "-o", path); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "PK-fake-xlsx" {
		t.Fatalf("file = %q err = %v", data, err)
	}
}

func TestTokenCmd(t *testing.T) {
	out, err := execute(t, "token", "--user", "cashier-3", "--role", "cashier", "--secret", "s3cret", "--ttl", "1h")
	if err != nil {
		t.Fatalf("token failed: %v", err)
	}

	claims, err := auth.NewJWTManager("s3cret", time.Hour).Verify(strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("issued token does not verify: %v", err)
	}
	if claims.UserID != "cashier-3" || claims.Role != domain.RoleCashier {
		t.Fatalf("unexpected claims %+v", claims)
	}

	if _, err := execute(t, "token", "--user", "x", "--role", "owner", "--secret", "s3cret"); err == nil {
		t.Fatal("expected unknown role to be rejected")
	}
}
