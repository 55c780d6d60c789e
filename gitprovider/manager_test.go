package gitprovider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temps-platform/control-plane/config"
	ctlerrors "github.com/temps-platform/control-plane/errors"
	"github.com/temps-platform/control-plane/queue"
	"github.com/temps-platform/control-plane/store"
)

// plaintextCrypto is a crypto.EncryptionService stand-in that does not
// encrypt at all, so tests can assert on exact secret values.
type plaintextCrypto struct{}

func (plaintextCrypto) EncryptString(p string) (string, error) { return "enc:" + p, nil }
func (plaintextCrypto) DecryptString(c string) (string, error) { return c[len("enc:"):], nil }

func newTestManager(t *testing.T) (*Manager, store.Store) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.NewSQLStore(config.Database{
		DbBackend: config.SQLiteBackend,
		SQLite:    config.SQLite{DBFile: filepath.Join(dir, "git.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return NewManager(st, plaintextCrypto{}, queue.NewMemoryQueue(), nil, nil, "https://temps.example.com"), st
}

func TestValidateOAuthStateMismatch(t *testing.T) {
	require.NoError(t, ValidateOAuthState("abc", "abc"))
	err := ValidateOAuthState("abc", "xyz")
	require.Error(t, err)
	require.IsType(t, &ctlerrors.OAuthStateMismatch{}, err)
}

func TestGenerateOAuthStateIsUnique(t *testing.T) {
	a, err := GenerateOAuthState()
	require.NoError(t, err)
	b, err := GenerateOAuthState()
	require.NoError(t, err)
	require.NotEqual(t, a, b)
	require.NotEmpty(t, a)
}

func TestValidateWebhookSignatureTriesEveryProvider(t *testing.T) {
	mgr, st := newTestManager(t)
	ctx := context.Background()

	secret := "correct-horse-battery-staple"
	encSecret, err := mgr.crypto.EncryptString(secret)
	require.NoError(t, err)

	_, err = st.CreateGitProvider(ctx, &store.GitProvider{
		Name:          "github-app-1",
		ProviderType:  store.GitProviderGitHub,
		AuthMethod:    store.GitAuthGitHubApp,
		WebhookSecret: encSecret,
		IsActive:      true,
	})
	require.NoError(t, err)

	body := []byte(`{"ref":"refs/heads/main"}`)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	sig := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	provider, err := mgr.ValidateWebhookSignature(ctx, body, sig)
	require.NoError(t, err)
	require.Equal(t, "github-app-1", provider.Name)

	_, err = mgr.ValidateWebhookSignature(ctx, body, "sha256="+hex.EncodeToString([]byte("wrong")))
	require.Error(t, err)
	require.IsType(t, &ctlerrors.InvalidWebhookSignature{}, err)
}

func TestDeleteProviderRefusedWhenInUse(t *testing.T) {
	mgr, st := newTestManager(t)
	ctx := context.Background()

	provider, err := st.CreateGitProvider(ctx, &store.GitProvider{
		Name:         "github-app-2",
		ProviderType: store.GitProviderGitHub,
		AuthMethod:   store.GitAuthGitHubApp,
		IsActive:     true,
	})
	require.NoError(t, err)

	conn, err := st.CreateConnection(ctx, &store.GitProviderConnection{
		ProviderID:  provider.ID,
		AccountName: "acme-corp",
		AccountType: store.GitAccountOrg,
	})
	require.NoError(t, err)

	_, err = st.UpsertRepository(ctx, &store.Repository{
		GitProviderConnectionID: conn.ID,
		Owner:                   "acme-corp",
		Name:                    "widgets",
		FullName:                "acme-corp/widgets",
	})
	require.NoError(t, err)

	err = mgr.DeleteProvider(ctx, provider.ID)
	require.Error(t, err)
	require.IsType(t, &ctlerrors.ProviderInUse{}, err)
}

func TestDeleteProviderSucceedsWhenUnused(t *testing.T) {
	mgr, st := newTestManager(t)
	ctx := context.Background()

	provider, err := st.CreateGitProvider(ctx, &store.GitProvider{
		Name:         "gitlab-1",
		ProviderType: store.GitProviderGitLab,
		AuthMethod:   store.GitAuthPAT,
		IsActive:     true,
	})
	require.NoError(t, err)

	require.NoError(t, mgr.DeleteProvider(ctx, provider.ID))
}
