package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/ipc-subnet/subnet-agent/internal/chainrpc"
	"github.com/ipc-subnet/subnet-agent/internal/config"
	"github.com/ipc-subnet/subnet-agent/internal/rpcpool"
)

const baseConfigTOML = `
[server]
json_rpc_address = "127.0.0.1:0"

[subnets.root]
id = "/f01234"
jsonrpc_api_http = "http://root.test/rpc/v1"
`

// fakeTransport answers Filecoin.StateNetworkName with a fixed network
// name and errors on anything else, enough to exercise create_subnet's
// network-match check without a real chain RPC endpoint.
type fakeTransport struct {
	network string
	err     error
}

func (f *fakeTransport) Call(_ context.Context, method string, _, out any) error {
	if f.err != nil {
		return f.err
	}
	if method != "Filecoin.StateNetworkName" {
		return fmt.Errorf("unexpected method %s", method)
	}
	*(out.(*string)) = f.network
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, configTOML string, networks map[string]string) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(configTOML), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	rc, err := config.NewReloadableConfig(path)
	if err != nil {
		t.Fatalf("NewReloadableConfig() = %v", err)
	}

	factory := func(sub config.Subnet) *chainrpc.Client {
		network, ok := networks[sub.JSONRPCAPIHTTP]
		if !ok {
			network = "unknown"
		}
		return chainrpc.New(&fakeTransport{network: network}, chainrpc.DefaultConfig(), discardLogger())
	}
	pool := rpcpool.New(rc, factory)

	s := NewServer(rc, path, pool, factory, discardLogger())
	return s, path
}

func doRequest(t *testing.T, s *Server, req Request) Response {
	t.Helper()
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	w := &responseCapture{header: make(http.Header)}
	httpReq := &http.Request{Method: http.MethodPost, Body: io.NopCloser(bytes.NewReader(body))}
	httpReq = httpReq.WithContext(context.Background())
	s.handleRequest(w, httpReq)

	var resp Response
	if err := json.Unmarshal(w.body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v, body=%s", err, w.body.String())
	}
	return resp
}

// responseCapture is a minimal http.ResponseWriter for testing handlers
// directly, without going through a real listener.
type responseCapture struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (r *responseCapture) Header() http.Header         { return r.header }
func (r *responseCapture) Write(b []byte) (int, error)  { return r.body.Write(b) }
func (r *responseCapture) WriteHeader(statusCode int)   { r.status = statusCode }

func TestHandleRequest_UnknownMethod(t *testing.T) {
	s, _ := newTestServer(t, baseConfigTOML, nil)
	resp := doRequest(t, s, Request{ID: 1, JSONRPC: "2.0", Method: "no_such_method"})
	if resp.Error == nil || resp.Error.Message != "method not supported" {
		t.Errorf("Error = %+v, want message %q", resp.Error, "method not supported")
	}
}

func TestHandleRequest_ReloadConfig(t *testing.T) {
	s, _ := newTestServer(t, baseConfigTOML, nil)
	resp := doRequest(t, s, Request{ID: 7, JSONRPC: "2.0", Method: "reload_config"})
	if resp.Error != nil {
		t.Fatalf("Error = %+v, want nil", resp.Error)
	}
	if resp.ID != 7 {
		t.Errorf("ID = %d, want 7", resp.ID)
	}
}

func TestHandleRequest_CreateSubnet_Success(t *testing.T) {
	networks := map[string]string{
		"http://root.test/rpc/v1":  "testnet",
		"http://child.test/rpc/v1": "testnet",
	}
	s, path := newTestServer(t, baseConfigTOML, networks)

	params, _ := json.Marshal(CreateSubnetParams{
		Name:           "child-a",
		ID:             "/f01234/f05678",
		JSONRPCAPIHTTP: "http://child.test/rpc/v1",
	})
	resp := doRequest(t, s, Request{ID: 1, JSONRPC: "2.0", Method: "create_subnet", Params: params})
	if resp.Error != nil {
		t.Fatalf("Error = %+v, want nil", resp.Error)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() after create_subnet = %v", err)
	}
	if _, ok := cfg.Subnets["child-a"]; !ok {
		t.Error("subnets.child-a missing after create_subnet")
	}
}

func TestHandleRequest_CreateSubnet_ParentMissing(t *testing.T) {
	s, _ := newTestServer(t, baseConfigTOML, nil)

	params, _ := json.Marshal(CreateSubnetParams{
		Name:           "orphan",
		ID:             "/f09999/f05678",
		JSONRPCAPIHTTP: "http://child.test/rpc/v1",
	})
	resp := doRequest(t, s, Request{ID: 1, JSONRPC: "2.0", Method: "create_subnet", Params: params})
	if resp.Error == nil {
		t.Fatal("Error = nil, want parent subnet missing error")
	}
}

func TestHandleRequest_CreateSubnet_NetworkMismatch(t *testing.T) {
	networks := map[string]string{
		"http://root.test/rpc/v1":  "mainnet",
		"http://child.test/rpc/v1": "testnet",
	}
	s, _ := newTestServer(t, baseConfigTOML, networks)

	params, _ := json.Marshal(CreateSubnetParams{
		Name:           "child-a",
		ID:             "/f01234/f05678",
		JSONRPCAPIHTTP: "http://child.test/rpc/v1",
	})
	resp := doRequest(t, s, Request{ID: 1, JSONRPC: "2.0", Method: "create_subnet", Params: params})
	if resp.Error == nil {
		t.Fatal("Error = nil, want network mismatch error")
	}
}

func TestServer_StartAndServe(t *testing.T) {
	s, _ := newTestServer(t, baseConfigTOML, nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	defer s.Stop()

	addr := s.Listener().Addr().String()
	body, _ := json.Marshal(Request{ID: 1, JSONRPC: "2.0", Method: "reload_config"})
	httpResp, err := http.Post("http://"+addr+"/", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST = %v", err)
	}
	defer httpResp.Body.Close()

	var resp Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error != nil {
		t.Errorf("Error = %+v, want nil", resp.Error)
	}
}

func TestServer_AuthMiddleware_RejectsMissingToken(t *testing.T) {
	s, _ := newTestServer(t, baseConfigTOML, nil)
	s.SetAuthToken("secret")
	if err := s.Start(); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	defer s.Stop()

	addr := s.Listener().Addr().String()
	body, _ := json.Marshal(Request{ID: 1, JSONRPC: "2.0", Method: "reload_config"})
	httpResp, err := http.Post("http://"+addr+"/", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST = %v", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", httpResp.StatusCode)
	}
}
