package principal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zxkws/mcp-router/internal/apierr"
)

func TestAnonymousWhenNoTokensConfigured(t *testing.T) {
	r := NewResolver(nil, nil)
	p, err := r.AuthFromToken("")
	require.NoError(t, err)
	assert.True(t, p.Anonymous)
	assert.True(t, p.AllowedUpstreams.Unrestricted)
}

func TestMissingAndInvalidToken(t *testing.T) {
	r := NewResolver([]TokenConfig{{Value: "dev-token"}}, nil)

	_, err := r.AuthFromToken("")
	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierr.Unauthenticated, apiErr.Kind)

	_, err = r.AuthFromToken("nope")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierr.Unauthenticated, apiErr.Kind)
}

func TestAllowlistIntersection(t *testing.T) {
	r := NewResolver(
		[]TokenConfig{{Value: "t1", ProjectID: "p1", AllowedUpstreams: []string{"demo1", "demo2"}}},
		[]ProjectConfig{{ID: "p1", AllowedUpstreams: []string{"demo1"}}},
	)
	p, err := r.AuthFromToken("t1")
	require.NoError(t, err)
	assert.False(t, p.AllowedUpstreams.Unrestricted)
	assert.NoError(t, AssertAllowedUpstream(p, "demo1", nil))
	assert.Error(t, AssertAllowedUpstream(p, "demo2", nil))
}

func TestTopIntersectTop(t *testing.T) {
	p, err := NewResolver([]TokenConfig{{Value: "t1"}}, nil).AuthFromToken("t1")
	require.NoError(t, err)
	assert.True(t, p.AllowedUpstreams.Unrestricted)
	assert.NoError(t, AssertAllowedUpstream(p, "anything", nil))
}

func TestTagAllowlist(t *testing.T) {
	r := NewResolver([]TokenConfig{{Value: "t1", AllowedTags: []string{"demo"}}}, nil)
	p, _ := r.AuthFromToken("t1")
	assert.NoError(t, AssertAllowedUpstream(p, "x", []string{"demo", "other"}))
	assert.Error(t, AssertAllowedUpstream(p, "x", []string{"other"}))
}

func TestFingerprintStableAndShort(t *testing.T) {
	p := Principal{Token: "dev-token"}
	fp := p.Fingerprint()
	assert.Len(t, fp, 12)
	assert.Equal(t, fp, Principal{Token: "dev-token"}.Fingerprint())
}
