package config

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	vaultapi "github.com/hashicorp/vault/api"
)

func TestVaultResolverReadsKVv2Secret(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data": {"data": {"token": "s3cr3t"}, "metadata": {"version": 1}}}`))
	}))
	defer srv.Close()

	cfg := vaultapi.DefaultConfig()
	cfg.Address = srv.URL
	client, err := vaultapi.NewClient(cfg)
	if err != nil {
		t.Fatalf("vault client: %v", err)
	}

	resolver := NewVaultResolver(client, "secret")
	v, err := resolver.Get(context.Background(), "vault:app/demo#token")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != "s3cr3t" {
		t.Errorf("expected s3cr3t, got %q", v)
	}
}

func TestVaultResolverMissingKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data": {"data": {"other": "value"}, "metadata": {"version": 1}}}`))
	}))
	defer srv.Close()

	cfg := vaultapi.DefaultConfig()
	cfg.Address = srv.URL
	client, err := vaultapi.NewClient(cfg)
	if err != nil {
		t.Fatalf("vault client: %v", err)
	}

	resolver := NewVaultResolver(client, "secret")
	_, err = resolver.Get(context.Background(), "vault:app/demo#token")
	if err == nil {
		t.Error("expected an error for a key absent from the secret")
	}
}

func TestVaultResolverRefMissingKeySeparator(t *testing.T) {
	resolver := NewVaultResolver(nil, "secret")
	_, err := resolver.Get(context.Background(), "vault:app/demo")
	if err == nil {
		t.Error("expected an error for a ref missing #key")
	}
}

func TestChainResolverErrorsWithoutVaultConfigured(t *testing.T) {
	c := ChainResolver{Env: EnvResolver{}}
	_, err := c.resolveOne(context.Background(), "vault:app/demo#token")
	if err == nil {
		t.Error("expected an error when no vault resolver is configured")
	}
}
