package config

import (
	"os"
	"path/filepath"
	"testing"
)

const testConfigTOML = `
[server]
json_rpc_address = "127.0.0.1:8090"

[subnets.root]
id = "/f01234"
accounts = ["f01000"]
jsonrpc_api_http = "http://127.0.0.1:1234/rpc/v1"

[subnets.child-a]
id = "/f01234/f05678"
accounts = ["f01000", "f01001"]
jsonrpc_api_http = "http://127.0.0.1:1235/rpc/v1"
auth_token = "secret-token"
`

func writeTestConfig(t testing.TB, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write test config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeTestConfig(t, dir, testConfigTOML)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if cfg.Server.JSONRPCAddress != "127.0.0.1:8090" {
		t.Errorf("JSONRPCAddress = %q", cfg.Server.JSONRPCAddress)
	}
	if len(cfg.Subnets) != 2 {
		t.Fatalf("Subnets count = %d, want 2", len(cfg.Subnets))
	}
	child, ok := cfg.Subnets["child-a"]
	if !ok {
		t.Fatal("subnets.child-a missing")
	}
	if child.ID.String() != "/f01234/f05678" {
		t.Errorf("child.ID = %q", child.ID)
	}
	if len(child.Accounts) != 2 {
		t.Errorf("child.Accounts count = %d, want 2", len(child.Accounts))
	}
	if child.AuthToken != "secret-token" {
		t.Errorf("child.AuthToken = %q", child.AuthToken)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() = nil error, want ErrConfigNotFound")
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	dir := t.TempDir()
	path := writeTestConfig(t, dir, "not valid [[[ toml")

	if _, err := Load(path); err == nil {
		t.Error("Load() = nil error, want parse failure")
	}
}

func TestLoad_MissingServerAddress(t *testing.T) {
	dir := t.TempDir()
	path := writeTestConfig(t, dir, `
[subnets.root]
id = "/f01234"
jsonrpc_api_http = "http://127.0.0.1:1234/rpc/v1"
`)
	if _, err := Load(path); err == nil {
		t.Error("Load() = nil error, want ErrInvalid for missing server address")
	}
}

func TestLoad_BadSubnetEndpoint(t *testing.T) {
	dir := t.TempDir()
	path := writeTestConfig(t, dir, `
[server]
json_rpc_address = "127.0.0.1:8090"

[subnets.root]
id = "/f01234"
jsonrpc_api_http = "not-a-url"
`)
	if _, err := Load(path); err == nil {
		t.Error("Load() = nil error, want ErrInvalid for malformed endpoint")
	}
}

func TestLoad_RejectsWorldReadable(t *testing.T) {
	dir := t.TempDir()
	path := writeTestConfig(t, dir, testConfigTOML)
	if err := os.Chmod(path, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() = nil error, want permission error for world-readable config")
	}
}

func TestSnapshot_SubnetByID(t *testing.T) {
	dir := t.TempDir()
	path := writeTestConfig(t, dir, testConfigTOML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	snap := newSnapshot(cfg)

	sub, ok := snap.SubnetByID(testParseID(t, "/f01234/f05678"))
	if !ok {
		t.Fatal("SubnetByID() = false, want true")
	}
	if sub.JSONRPCAPIHTTP != "http://127.0.0.1:1235/rpc/v1" {
		t.Errorf("JSONRPCAPIHTTP = %q", sub.JSONRPCAPIHTTP)
	}

	if _, ok := snap.SubnetByID(testParseID(t, "/f09999")); ok {
		t.Error("SubnetByID() = true for unconfigured subnet, want false")
	}
}
