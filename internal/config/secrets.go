package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	vaultapi "github.com/hashicorp/vault/api"
)

// SecretResolver resolves an opaque reference string into its secret
// value, grounded on the teacher's internal/config/loader.go interface
// of the same name.
type SecretResolver interface {
	Get(ctx context.Context, ref string) (string, error)
}

// EnvResolver resolves "os.environ/NAME" references against the process
// environment, matching the teacher's resolveSecrets convention.
type EnvResolver struct{}

func (EnvResolver) Get(_ context.Context, ref string) (string, error) {
	name := strings.TrimPrefix(ref, "os.environ/")
	v, ok := os.LookupEnv(name)
	if !ok {
		return "", fmt.Errorf("environment variable %q is not set", name)
	}
	return v, nil
}

// VaultResolver resolves "vault:<path>#<key>" references against a
// HashiCorp Vault KV v2 mount, repurposing the teacher's
// internal/secretmanager HashiCorpVault for this router's token/header
// secrets (UpstreamConfig.Headers values, auth.tokens[].value).
type VaultResolver struct {
	client *vaultapi.Client
	mount  string
}

// NewVaultResolver builds a resolver backed by a live Vault client.
// mount defaults to "secret" (Vault's default KV v2 mount) when empty.
func NewVaultResolver(client *vaultapi.Client, mount string) VaultResolver {
	if mount == "" {
		mount = "secret"
	}
	return VaultResolver{client: client, mount: mount}
}

// NewVaultResolverFromEnv builds a client from VAULT_ADDR/VAULT_TOKEN the
// same way the teacher's newHashiCorpVault falls back to the environment
// when no explicit token is configured. Returns an error only when
// vaultapi.NewClient rejects the configuration; the address is not dialed.
func NewVaultResolverFromEnv(mount string) (VaultResolver, error) {
	cfg := vaultapi.DefaultConfig()
	client, err := vaultapi.NewClient(cfg)
	if err != nil {
		return VaultResolver{}, fmt.Errorf("vault client: %w", err)
	}
	if token := os.Getenv("VAULT_TOKEN"); token != "" {
		client.SetToken(token)
	}
	return NewVaultResolver(client, mount), nil
}

func (v VaultResolver) Get(ctx context.Context, ref string) (string, error) {
	rest := strings.TrimPrefix(ref, "vault:")
	path, key, ok := strings.Cut(rest, "#")
	if !ok {
		return "", fmt.Errorf("vault ref %q missing #key", ref)
	}
	kv := v.client.KVv2(v.mount)
	secret, err := kv.Get(ctx, path)
	if err != nil {
		return "", fmt.Errorf("vault get %q: %w", path, err)
	}
	val, ok := secret.Data[key]
	if !ok {
		return "", fmt.Errorf("vault secret %q has no key %q", path, key)
	}
	return fmt.Sprint(val), nil
}

// ChainResolver tries resolvers in order based on the ref's prefix.
type ChainResolver struct {
	Env   SecretResolver
	Vault SecretResolver
}

func (c ChainResolver) resolveOne(ctx context.Context, s string) (string, error) {
	switch {
	case strings.HasPrefix(s, "os.environ/"):
		if c.Env == nil {
			c.Env = EnvResolver{}
		}
		return c.Env.Get(ctx, s)
	case strings.HasPrefix(s, "vault:"):
		if c.Vault == nil {
			return "", fmt.Errorf("vault secret ref %q used but no vault resolver configured", s)
		}
		return c.Vault.Get(ctx, s)
	default:
		return s, nil
	}
}

// resolveStringMap resolves every value in m that looks like a secret
// reference, returning a new map.
func (c ChainResolver) resolveStringMap(ctx context.Context, m map[string]string) (map[string]string, error) {
	if m == nil {
		return nil, nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		resolved, err := c.resolveOne(ctx, v)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", k, err)
		}
		out[k] = resolved
	}
	return out, nil
}
