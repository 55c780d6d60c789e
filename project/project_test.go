package project

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temps-platform/control-plane/config"
	"github.com/temps-platform/control-plane/crypto"
	ctlerrors "github.com/temps-platform/control-plane/errors"
	"github.com/temps-platform/control-plane/queue"
	"github.com/temps-platform/control-plane/store"
)

func TestNormalizeDirectory(t *testing.T) {
	require.Equal(t, ".", normalizeDirectory(""))
	require.Equal(t, "app", normalizeDirectory("/app"))
	require.Equal(t, "a/b", normalizeDirectory("a/b"))
}

func TestSlugify(t *testing.T) {
	require.Equal(t, "my-cool-app", slugify("My Cool App!!"))
	require.Equal(t, "project", slugify("???"))
}

func TestSentinelCommitFormat(t *testing.T) {
	got := sentinelCommit()
	require.True(t, strings.HasPrefix(got, "manual-trigger-"))
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	dir := t.TempDir()
	st, err := store.NewSQLStore(config.Database{
		DbBackend: config.SQLiteBackend,
		SQLite:    config.SQLite{DBFile: filepath.Join(dir, "project.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	cs, err := crypto.NewFromPassphrase("test-passphrase")
	require.NoError(t, err)

	return New(st, cs, queue.NewMemoryQueue(), nil)
}

func TestCreateProjectRunsFullSequence(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	p, err := svc.Create(ctx, CreateRequest{
		Name:       "My Cool App",
		Directory:  "/src",
		MainBranch: "main",
		Preset:     store.PresetNextJS,
		DeploymentConfig: store.DeploymentConfig{
			CPURequestMillicores: 100,
			CPULimitMillicores:   500,
			MemoryRequestMB:      128,
			MemoryLimitMB:        512,
			Replicas:             1,
		},
		EnvVars: []EnvVarInput{{Key: "API_KEY", Value: "s3cr3t"}},
	})
	require.NoError(t, err)
	require.Equal(t, "my-cool-app", p.Slug)
	require.Equal(t, "src", p.Directory)

	value, err := svc.GetEnvironmentVariableValue(ctx, p.ID, "API_KEY", nil)
	require.NoError(t, err)
	require.Equal(t, "s3cr3t", value)

	_, err = svc.GetEnvironmentVariableValue(ctx, p.ID, "MISSING", nil)
	require.Error(t, err)
	require.IsType(t, &ctlerrors.EnvVarNotResolved{}, err)
}

func TestCreateProjectRejectsInvalidDeploymentConfig(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Create(context.Background(), CreateRequest{
		Name:   "Bad Config",
		Preset: store.PresetStatic,
		DeploymentConfig: store.DeploymentConfig{
			CPURequestMillicores: 500,
			CPULimitMillicores:   100,
			Replicas:             1,
		},
	})
	require.Error(t, err)
	require.IsType(t, &ctlerrors.InvalidDeploymentConfig{}, err)
}

func TestCreateProjectGeneratesDistinctSlugsOnCollision(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	cfg := store.DeploymentConfig{Replicas: 1}

	first, err := svc.Create(ctx, CreateRequest{Name: "Acme", Preset: store.PresetStatic, DeploymentConfig: cfg})
	require.NoError(t, err)
	second, err := svc.Create(ctx, CreateRequest{Name: "Acme", Preset: store.PresetStatic, DeploymentConfig: cfg})
	require.NoError(t, err)

	require.Equal(t, "acme", first.Slug)
	require.NotEqual(t, first.Slug, second.Slug)
	require.True(t, strings.HasPrefix(second.Slug, "acme-"))
}

func TestDeleteProjectCascades(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	p, err := svc.Create(ctx, CreateRequest{Name: "Temp", Preset: store.PresetStatic, DeploymentConfig: store.DeploymentConfig{Replicas: 1}})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, p.ID))

	_, err = svc.store.GetProject(ctx, p.ID)
	require.Error(t, err)
}

func TestDeleteProjectUnlinksServices(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	p, err := svc.Create(ctx, CreateRequest{Name: "Linked", Preset: store.PresetStatic, DeploymentConfig: store.DeploymentConfig{Replicas: 1}})
	require.NoError(t, err)

	extSvc, err := svc.store.CreateExternalService(ctx, &store.ExternalService{
		Name: "db", Slug: "db", ServiceType: store.ServiceTypePostgres, Status: store.ServiceStatusRunning,
	})
	require.NoError(t, err)
	require.NoError(t, svc.store.LinkServiceToProject(ctx, extSvc.ID, p.ID))

	require.NoError(t, svc.Delete(ctx, p.ID))

	projects, err := svc.store.ListServiceProjects(ctx, extSvc.ID)
	require.NoError(t, err)
	require.Empty(t, projects)
}

func TestTriggerPipelineFallsBackToSentinelCommit(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	p, err := svc.Create(ctx, CreateRequest{Name: "Pipeline Test", MainBranch: "main", Preset: store.PresetStatic, DeploymentConfig: store.DeploymentConfig{Replicas: 1}})
	require.NoError(t, err)

	envs, err := svc.store.ListProjectEnvironments(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, envs, 1)

	err = svc.TriggerPipeline(ctx, TriggerRequest{ProjectID: p.ID, EnvironmentID: envs[0].ID})
	require.NoError(t, err)
}
