package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temps-platform/control-plane/config"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Database{
		DbBackend: config.SQLiteBackend,
		SQLite:    config.SQLite{DBFile: filepath.Join(dir, "temps.db")},
	}
	st, err := NewSQLStore(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return st
}

func TestCreateAndGetProject(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	p := &Project{Slug: "my-app", Name: "My App", Preset: PresetNextJS, Directory: "."}
	created, err := st.CreateProject(ctx, p)
	require.NoError(t, err)
	require.NotEqual(t, "00000000-0000-0000-0000-000000000000", created.ID.String())

	fetched, err := st.GetProjectBySlug(ctx, "my-app")
	require.NoError(t, err)
	require.Equal(t, created.ID, fetched.ID)
}

func TestUpsertEnvVarCreatesThenUpdates(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	p, err := st.CreateProject(ctx, &Project{Slug: "app", Name: "App", Preset: PresetStatic, Directory: "."})
	require.NoError(t, err)

	v1, err := st.UpsertEnvVar(ctx, &EnvironmentVariable{ProjectID: p.ID, Key: "API_KEY", EncryptedValue: "enc1"})
	require.NoError(t, err)

	v2, err := st.UpsertEnvVar(ctx, &EnvironmentVariable{ProjectID: p.ID, Key: "API_KEY", EncryptedValue: "enc2"})
	require.NoError(t, err)
	require.Equal(t, v1.ID, v2.ID)
	require.Equal(t, "enc2", v2.EncryptedValue)

	vars, err := st.ListProjectEnvVars(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, vars, 1)
}

func TestLinkAndUnlinkServiceToProject(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	p, err := st.CreateProject(ctx, &Project{Slug: "app", Name: "App", Preset: PresetStatic, Directory: "."})
	require.NoError(t, err)
	svc, err := st.CreateExternalService(ctx, &ExternalService{Slug: "db", Name: "db", ServiceType: ServiceTypePostgres})
	require.NoError(t, err)

	require.NoError(t, st.LinkServiceToProject(ctx, svc.ID, p.ID))
	projects, err := st.ListServiceProjects(ctx, svc.ID)
	require.NoError(t, err)
	require.Len(t, projects, 1)

	require.NoError(t, st.UnlinkServiceFromProject(ctx, svc.ID, p.ID))
	projects, err = st.ListServiceProjects(ctx, svc.ID)
	require.NoError(t, err)
	require.Len(t, projects, 0)
}

func TestFunnelStepsOrderedOnLoad(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	p, err := st.CreateProject(ctx, &Project{Slug: "app", Name: "App", Preset: PresetStatic, Directory: "."})
	require.NoError(t, err)

	f := &Funnel{ProjectID: p.ID, Name: "signup", Steps: []FunnelStep{
		{StepOrder: 1, EventName: "page_view"},
		{StepOrder: 0, EventName: "landing"},
	}}
	created, err := st.CreateFunnel(ctx, f)
	require.NoError(t, err)

	loaded, err := st.GetFunnel(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Steps, 2)
	require.Equal(t, "landing", loaded.Steps[0].EventName)
	require.Equal(t, "page_view", loaded.Steps[1].EventName)
}
