package jwks

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warden.dev/internal/fault"
	"warden.dev/internal/keys"
	"warden.dev/internal/subject"
	"warden.dev/internal/token"
)

func newManager(t *testing.T) *keys.Manager {
	t.Helper()
	cipher, err := keys.NewCipher([]byte("jwks-test-master"))
	require.NoError(t, err)
	m, err := keys.NewManager(keys.NewMemoryStore(), cipher, keys.WithKeyBits(1024))
	require.NoError(t, err)
	return m
}

func TestDocumentExportsActiveKeyOnly(t *testing.T) {
	mgr := newManager(t)
	pub := NewPublisher(mgr)
	ctx := context.Background()

	_, err := pub.Document(ctx, "tenant-1")
	require.ErrorIs(t, err, fault.ErrNoActiveKey)

	first, err := mgr.Generate(ctx, "tenant-1")
	require.NoError(t, err)
	second, err := mgr.Rotate(ctx, "tenant-1")
	require.NoError(t, err)

	doc, err := pub.Document(ctx, "tenant-1")
	require.NoError(t, err)
	require.Len(t, doc.Keys, 1)
	k := doc.Keys[0]
	assert.Equal(t, second.Kid, k.Kid)
	assert.Equal(t, "RSA", k.Kty)
	assert.Equal(t, "sig", k.Use)
	assert.Equal(t, "RS256", k.Alg)
	assert.Equal(t, "AQAB", k.E)
	_, found := doc.Lookup(first.Kid)
	assert.False(t, found)

	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), second.KeyID)
	assert.NotContains(t, string(raw), "PRIVATE")
	assert.False(t, strings.Contains(string(raw), `"d"`))
}

func TestPublishedKeyVerifiesTenantTokens(t *testing.T) {
	mgr := newManager(t)
	ctx := context.Background()
	_, err := mgr.Generate(ctx, "tenant-1")
	require.NoError(t, err)

	codec := token.NewCodec()
	issued, err := codec.Issue(ctx, token.Subject{ID: "u-1", Kind: subject.KindUser, TenantID: "tenant-1"},
		token.PurposeAccess, token.TenantKeys{Source: mgr})
	require.NoError(t, err)

	doc, err := NewPublisher(mgr).Document(ctx, "tenant-1")
	require.NoError(t, err)

	// Verify as an external party would: only the JWKS, no access to the key store.
	parsed, err := jwt.Parse(issued.Token, func(tok *jwt.Token) (any, error) {
		kid, _ := tok.Header["kid"].(string)
		k, ok := doc.Lookup(kid)
		if !ok {
			return nil, errors.New("unknown kid")
		}
		return k.PublicKey()
	}, jwt.WithValidMethods([]string{"RS256"}))
	require.NoError(t, err)
	assert.True(t, parsed.Valid)
}

func TestKeyPublicKeyRejectsGarbage(t *testing.T) {
	_, err := Key{Kty: "EC"}.PublicKey()
	assert.Error(t, err)
	_, err = Key{Kty: "RSA", N: "!!", E: "AQAB"}.PublicKey()
	assert.Error(t, err)
}
