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

	"b24gofer/internal/api"
	"b24gofer/internal/rest"
)

const timeJSON = `{"start":1,"finish":2,"duration":1,"processing":0.5,"date_start":"2024-01-01T00:00:00+00:00","date_finish":"2024-01-01T00:00:01+00:00"}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadBatchFile_Keyed(t *testing.T) {
	path := writeFile(t, "batch.yaml", `
halt: true
commands:
  - key: deal
    method: crm.deal.get
    params: {id: 1}
  - key: me
    method: user.current
`)

	bf, err := loadBatchFile(path)
	if err != nil {
		t.Fatalf("loadBatchFile: %v", err)
	}
	if !bf.Halt || len(bf.Commands) != 2 {
		t.Fatalf("bf = %+v", bf)
	}

	set, err := bf.buildSet(api.NewClient(nil))
	if err != nil {
		t.Fatalf("buildSet: %v", err)
	}
	if set.Positional() || strings.Join(set.Keys(), ",") != "deal,me" {
		t.Errorf("keys = %v, positional = %v", set.Keys(), set.Positional())
	}
	req, _ := set.Request("deal")
	if req.Command() != "crm.deal.get?id=1" {
		t.Errorf("command = %s", req.Command())
	}
}

func TestLoadBatchFile_PositionalJSON(t *testing.T) {
	path := writeFile(t, "batch.json", `{"commands":[{"method":"crm.deal.fields"},{"method":"crm.lead.fields"}]}`)

	bf, err := loadBatchFile(path)
	if err != nil {
		t.Fatalf("loadBatchFile: %v", err)
	}
	set, err := bf.buildSet(api.NewClient(nil))
	if err != nil {
		t.Fatalf("buildSet: %v", err)
	}
	if !set.Positional() || set.Len() != 2 {
		t.Errorf("positional = %v, len = %d", set.Positional(), set.Len())
	}
}

func TestLoadBatchFile_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"empty", `commands: []`, "no commands"},
		{"no method", `commands: [{key: a}]`, "method is required"},
		{"not yaml", `commands: [`, "failed to parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadBatchFile(writeFile(t, "batch.yaml", tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}

	bf := &batchFile{Commands: []batchCommand{{Key: "a", Method: "x"}, {Method: "y"}}}
	if _, err := bf.buildSet(api.NewClient(nil)); err == nil {
		t.Error("mixed keyed and positional commands should fail")
	}
}

func TestParseParams(t *testing.T) {
	params, err := parseParams(`{"id": 12, "filter": {"STAGE_ID": "WON"}}`)
	if err != nil {
		t.Fatalf("parseParams: %v", err)
	}
	if got := rest.EncodeQuery(params); got != "filter%5BSTAGE_ID%5D=WON&id=12" {
		t.Errorf("encoded = %s", got)
	}

	if params, err := parseParams(""); err != nil || params != nil {
		t.Errorf("empty params = %v, %v", params, err)
	}
	if _, err := parseParams(`[1,2]`); err == nil {
		t.Error("array params should fail")
	}
}

func newPortal(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/rest/user.current.json":
			_, _ = w.Write([]byte(`{"result":{"ID":"1","NAME":"Admin"},"time":` + timeJSON + `}`))
		case "/rest/batch.json":
			_, _ = w.Write([]byte(`{"result":{
				"result":{"a":{"ID":"1"}},
				"result_error":{"b":{"error":"NOT_FOUND","error_description":"Not found"}},
				"result_total":[],
				"result_next":[],
				"result_time":{"a":` + timeJSON + `,"b":` + timeJSON + `}
			},"time":` + timeJSON + `}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"ERROR_METHOD_NOT_FOUND","error_description":"Method not found!"}`))
		}
	}))
	t.Cleanup(srv.Close)

	return writeFile(t, "config.json", `{
		"logLevel": "error",
		"retryEnabled": false,
		"endpoints": [{"name": "portal", "url": "`+srv.URL+`/rest/"}]
	}`)
}

func TestRun_Call(t *testing.T) {
	configPath := newPortal(t)

	var out bytes.Buffer
	code := run(flags{configPath: configPath, envFile: filepath.Join(t.TempDir(), "none.env"), method: "user.current"}, &out)
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}

	var got callOutput
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("output: %v\n%s", err, out.String())
	}
	if !strings.Contains(string(got.Result), `"Admin"`) || got.Time.Duration != 1 {
		t.Errorf("output = %s", out.String())
	}
}

func TestRun_Batch(t *testing.T) {
	configPath := newPortal(t)
	batchPath := writeFile(t, "batch.yaml", `
commands:
  - {key: a, method: crm.deal.get, params: {id: 1}}
  - {key: b, method: crm.deal.get, params: {id: 404}}
`)

	var out bytes.Buffer
	code := run(flags{configPath: configPath, envFile: filepath.Join(t.TempDir(), "none.env"), batchPath: batchPath}, &out)
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}

	var got batchOutput
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("output: %v\n%s", err, out.String())
	}
	if got.Calls != 1 || len(got.Results) != 2 {
		t.Fatalf("output = %s", out.String())
	}
	if got.Results[0].Key != "a" || got.Results[0].Error != "" || !got.Results[0].Executed {
		t.Errorf("a = %+v", got.Results[0])
	}
	if got.Results[1].Key != "b" || !strings.Contains(got.Results[1].Error, "NOT_FOUND") {
		t.Errorf("b = %+v", got.Results[1])
	}
}

func TestRun_ProviderError(t *testing.T) {
	configPath := newPortal(t)

	var out bytes.Buffer
	code := run(flags{configPath: configPath, envFile: filepath.Join(t.TempDir(), "none.env"), method: "no.such.method"}, &out)
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if out.Len() != 0 {
		t.Errorf("nothing should be printed on failure, got %s", out.String())
	}
}
