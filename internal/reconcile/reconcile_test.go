package reconcile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opmodel/subctl/internal/action"
	"github.com/opmodel/subctl/internal/cache"
	"github.com/opmodel/subctl/internal/certdir"
	"github.com/opmodel/subctl/internal/certificate"
	"github.com/opmodel/subctl/internal/core"
	"github.com/opmodel/subctl/internal/facts"
	"github.com/opmodel/subctl/internal/identity"
	"github.com/opmodel/subctl/internal/lock"
	"github.com/opmodel/subctl/internal/profile"
	"github.com/opmodel/subctl/internal/repofile"
	"github.com/opmodel/subctl/internal/server"
	"github.com/opmodel/subctl/internal/server/servertest"
	"github.com/opmodel/subctl/internal/testutil"
)

const testUUID = "5f1a1b3c-7e2d-4f0a-9c3b-2a1d0e9f8b7c"

type env struct {
	root   string
	deps   *Deps
	server *servertest.Fake
	facts  facts.Facts
	pkgs   []core.Package
}

func newEnv(t *testing.T) *env {
	t.Helper()
	root := t.TempDir()
	e := &env{
		root:   root,
		server: servertest.New(testUUID),
		facts:  facts.Facts{"cpu.cpu(s)": "4", "uname.machine": "x86_64", "system.uuid": "abc"},
		pkgs:   []core.Package{{Name: "bash", Version: "5.1", Release: "1", Arch: "x86_64"}},
	}
	e.deps = &Deps{
		Server:   e.server,
		Identity: identity.NewStore(filepath.Join(root, "consumer")),
		EntDir:   certdir.NewEntitlementDir(filepath.Join(root, "entitlement")),
		ProdDir:  certdir.NewProductDir(filepath.Join(root, "product")),
		Locker:   action.NewLocker(lock.New(filepath.Join(root, "run", "cert.pid"))),
		Facts: facts.CollectorFunc(func(context.Context) (facts.Facts, error) {
			out := facts.Facts{}
			for k, v := range e.facts {
				out[k] = v
			}
			return out, nil
		}),
		FactsCache: cache.New[facts.Facts](filepath.Join(root, "cache", "facts.json")),
		Graylist:   []string{"cpu.cpu_mhz"},
		Packages: profile.SourceFunc(func(context.Context) ([]core.Package, error) {
			return append([]core.Package(nil), e.pkgs...), nil
		}),
		ProfileCache:   cache.New[[]core.Package](filepath.Join(root, "cache", "profile.json")),
		InstalledCache: cache.New[[]core.InstalledProduct](filepath.Join(root, "cache", "installed.json")),
		RepoFile:       filepath.Join(root, "yum.repos.d", "redhat.repo"),
		BaseURL:        "https://cdn.example.com",
		RepoCACert:     "/etc/rhsm/ca/redhat-uep.pem",
		ManageRepos:    true,
		ArchiveDir:     filepath.Join(root, "archive"),
	}

	certPEM, keyPEM := testutil.IdentityPEM(t, testUUID, 1)
	require.NoError(t, e.deps.Identity.Write(core.IdentityCert{Cert: string(certPEM), Key: string(keyPEM), Serial: core.Serial{Serial: 1}}))

	testutil.WriteFile(t, filepath.Join(root, "product"), "69.pem", string(testutil.ProductPEM(t, 69, certificate.Product{
		ID: "69", Name: "Red Hat Enterprise Linux", Version: "9.2", Architectures: []string{"x86_64"},
		ProvidedTags: []string{"rhel-9", "rhel-9-x86_64"},
	})))
	return e
}

func (e *env) bundle(t *testing.T, serial int64, content ...certificate.Content) core.CertBundle {
	t.Helper()
	certPEM, keyPEM := testutil.EntitlementPEM(t, testutil.CertOptions{Serial: serial}, certificate.EntitlementData{
		Consumer: testUUID,
		Quantity: 1,
		Order:    certificate.Order{Name: "RHEL Server", SKU: "RH00001"},
		Products: []certificate.Product{{ID: "69", Name: "Red Hat Enterprise Linux", Content: content}},
	})
	return core.CertBundle{Cert: string(certPEM), Key: string(keyPEM), Serial: core.Serial{Serial: serial}}
}

func findings(b *action.Batch) []action.Outcome {
	var out []action.Outcome
	for _, r := range b.Results() {
		out = append(out, r.Outcome)
	}
	return out
}

func TestActionClient_FirstRunAndIdempotence(t *testing.T) {
	e := newEnv(t)
	e.server.AddCert(e.bundle(t, 10,
		testutil.YumContent("1", "rhel-9-baseos", "rhel-9"),
		testutil.YumContent("2", "rhel-8-baseos", "rhel-8"),
	))

	client := NewActionClient(e.deps)
	assert.Equal(t, []action.Kind{
		action.KindIdentity, action.KindEntitlement, action.KindFacts,
		action.KindPackageProfile, action.KindInstalledProducts,
	}, client.Kinds())

	batch, err := client.Update(context.Background())
	require.NoError(t, err)
	assert.False(t, batch.Failed())
	assert.Equal(t, 4, batch.UpdateCount(), "one cert, facts, profile, installed products")

	assert.Equal(t, []string{"10-key.pem", "10.pem"}, testutil.ListFiles(t, filepath.Join(e.root, "entitlement")))
	assert.Equal(t, "4", e.server.Facts["cpu.cpu(s)"])
	assert.Equal(t, e.pkgs, e.server.Packages)
	require.Len(t, e.server.InstalledProducts, 1)
	assert.Equal(t, "69", e.server.InstalledProducts[0].ProductID)

	file, err := repofile.Read(e.deps.RepoFile)
	require.NoError(t, err)
	assert.Equal(t, []string{"rhel-9-baseos"}, file.Sections(), "content without matching tags is skipped")
	repo := file.Section("rhel-9-baseos")
	assert.Equal(t, "https://cdn.example.com/content/dist/rhel-9-baseos", repo.Value("baseurl"))
	assert.Equal(t, filepath.Join(e.root, "entitlement", "10.pem"), repo.Value("sslclientcert"))

	batch, err = NewActionClient(e.deps).Update(context.Background())
	require.NoError(t, err)
	assert.Zero(t, batch.UpdateCount())
	assert.Equal(t, 1, e.server.CallCount(servertest.MethodUpdateFacts))
	assert.Equal(t, 1, e.server.CallCount(servertest.MethodUpdatePackageProfile))
	assert.Equal(t, 1, e.server.CallCount(servertest.MethodUpdateInstalledProducts))
	assert.Equal(t, 1, e.server.CallCount(servertest.MethodGetCertificates))
}

func TestEntitlementUpdater_RemovesRogueCertificates(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.deps.EntDir.Write(e.bundle(t, 5)))
	e.server.AddCert(e.bundle(t, 6))

	report, err := e.deps.entitlementInvoker().Update(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"removed certificate 5", "added certificate 6"}, report.Updates())
	assert.Equal(t, []string{"6-key.pem", "6.pem"}, testutil.ListFiles(t, filepath.Join(e.root, "entitlement")))
}

func TestEntitlementUpdater_BadBundleIsReported(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, os.MkdirAll(filepath.Join(e.root, "entitlement", "7.pem"), 0o755))
	e.server.AddCert(e.bundle(t, 7))
	e.server.AddCert(e.bundle(t, 8))

	report, err := e.deps.entitlementInvoker().Update(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Errors(), 1)
	assert.Equal(t, []string{"added certificate 8"}, report.Updates())
}

func TestFactsUpdater_GraylistedChangesAreIgnored(t *testing.T) {
	e := newEnv(t)
	inv := e.deps.invoker(&FactsUpdater{deps: e.deps})

	_, err := inv.Update(context.Background())
	require.NoError(t, err)

	e.facts["cpu.cpu_mhz"] = "2400"
	report, err := inv.Update(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.UpdateCount())

	e.facts["cpu.cpu(s)"] = "8"
	report, err = inv.Update(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.UpdateCount())
	assert.Equal(t, "8", e.server.Facts["cpu.cpu(s)"])
	assert.Equal(t, 2, e.server.CallCount(servertest.MethodUpdateFacts))
}

func TestPackageProfileUpdater(t *testing.T) {
	t.Run("unsupported resource", func(t *testing.T) {
		e := newEnv(t)
		e.server.SetResource(server.ResourcePackages, false)

		report, err := e.deps.invoker(&PackageProfileUpdater{deps: e.deps}).Update(context.Background())
		require.NoError(t, err)
		assert.Zero(t, report.UpdateCount())
		assert.Zero(t, e.server.CallCount(servertest.MethodUpdatePackageProfile))
	})

	t.Run("order does not matter", func(t *testing.T) {
		e := newEnv(t)
		e.pkgs = append(e.pkgs, core.Package{Name: "zsh", Version: "5.8", Release: "9", Arch: "x86_64"})
		inv := e.deps.invoker(&PackageProfileUpdater{deps: e.deps})

		_, err := inv.Update(context.Background())
		require.NoError(t, err)

		e.pkgs[0], e.pkgs[1] = e.pkgs[1], e.pkgs[0]
		report, err := inv.Update(context.Background())
		require.NoError(t, err)
		assert.Zero(t, report.UpdateCount())
		assert.Equal(t, 1, e.server.CallCount(servertest.MethodUpdatePackageProfile))
	})
}

func TestIdentityUpdater_ReplacesOnSerialChange(t *testing.T) {
	e := newEnv(t)
	certPEM, keyPEM := testutil.IdentityPEM(t, testUUID, 2)
	e.server.SetConsumer(core.Consumer{UUID: testUUID, IDCert: &core.IdentityCert{
		Cert: string(certPEM), Key: string(keyPEM), Serial: core.Serial{Serial: 2},
	}})

	inv := e.deps.invoker(&IdentityUpdater{deps: e.deps})
	report, err := inv.Update(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.UpdateCount())

	id, err := e.deps.Identity.Read()
	require.NoError(t, err)
	assert.Equal(t, int64(2), id.Serial)

	report, err = inv.Update(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.UpdateCount())
}

func TestGone_MatchingConsumerWipesAndAborts(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.deps.EntDir.Write(e.bundle(t, 5)))
	e.deps.Now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	e.server.Fail(servertest.MethodGetConsumer, &server.GoneError{DeletedID: testUUID, Message: "deleted"})

	batch, err := NewActionClient(e.deps).Update(context.Background())
	require.Error(t, err)

	var gone *server.GoneError
	require.True(t, errors.As(err, &gone))
	assert.Same(t, gone, err, "fatal error is returned unwrapped")
	assert.Equal(t, []action.Outcome{action.OutcomeFatal}, findings(batch))

	assert.False(t, e.deps.Identity.Registered())
	assert.Empty(t, testutil.ListFiles(t, filepath.Join(e.root, "entitlement")))
	assert.Equal(t, []string{"5-key.pem", "5.pem"}, testutil.ListFiles(t, filepath.Join(e.root, "archive", "entitlement-20240301T120000Z")))
	assert.Equal(t, []string{"cert.pem", "key.pem"}, testutil.ListFiles(t, filepath.Join(e.root, "archive", "consumer-20240301T120000Z")))
	assert.Zero(t, e.server.CallCount(servertest.MethodGetCertificateSerials), "batch stops after fatal")
}

func TestGone_OtherConsumerIsRecoverable(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.deps.EntDir.Write(e.bundle(t, 5)))
	e.server.AddCert(e.bundle(t, 5))
	e.server.Fail(servertest.MethodGetConsumer, &server.GoneError{DeletedID: "someone-else", Message: "deleted"})

	batch, err := NewActionClient(e.deps).Update(context.Background())
	require.NoError(t, err)
	require.True(t, batch.Failed())
	assert.Equal(t, action.OutcomeRecoverable, batch.Results()[0].Outcome)
	assert.Len(t, batch.Results(), 5, "remaining actions still run")

	assert.True(t, e.deps.Identity.Registered())
	assert.Equal(t, []string{"5-key.pem", "5.pem"}, testutil.ListFiles(t, filepath.Join(e.root, "entitlement")))
}

func TestExpiredIdentityAborts(t *testing.T) {
	e := newEnv(t)
	e.server.Fail(servertest.MethodGetConsumer, &server.ExpiredIdentityError{})

	batch, err := NewActionClient(e.deps).Update(context.Background())
	var expired *server.ExpiredIdentityError
	require.True(t, errors.As(err, &expired))
	assert.Len(t, batch.Results(), 1)
	assert.True(t, e.deps.Identity.Registered(), "expiry does not wipe the identity")
}

func TestHealingUpdater(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	invalid := &core.Compliance{Status: core.ComplianceInvalid}
	valid := &core.Compliance{Status: core.ComplianceValid, Compliant: true}

	tests := []struct {
		name       string
		autoheal   bool
		compliance func(on time.Time) *core.Compliance
		wantBinds  []time.Time
	}{
		{
			name:       "autoheal disabled",
			autoheal:   false,
			compliance: func(time.Time) *core.Compliance { return invalid },
		},
		{
			name:       "compliant today and tomorrow",
			autoheal:   true,
			compliance: func(time.Time) *core.Compliance { return valid },
		},
		{
			name:       "non-compliant now",
			autoheal:   true,
			compliance: func(time.Time) *core.Compliance { return invalid },
			wantBinds:  []time.Time{now},
		},
		{
			name:     "non-compliant tomorrow",
			autoheal: true,
			compliance: func(on time.Time) *core.Compliance {
				if on.After(now) {
					return invalid
				}
				return valid
			},
			wantBinds: []time.Time{now.Add(24 * time.Hour)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			e.deps.Now = func() time.Time { return now }
			e.server.SetConsumer(core.Consumer{UUID: testUUID, Autoheal: tt.autoheal})
			e.server.ComplianceFunc = tt.compliance
			e.server.BindFunc = func(f *servertest.Fake, _ time.Time) {
				f.AddCert(e.bundle(t, 42, testutil.YumContent("1", "rhel-9-baseos", "rhel-9")))
			}

			batch, err := NewHealingClient(e.deps).Update(context.Background())
			require.NoError(t, err)
			assert.False(t, batch.Failed())
			assert.Equal(t, tt.wantBinds, e.server.Binds)

			if len(tt.wantBinds) > 0 {
				assert.Equal(t, []string{"42-key.pem", "42.pem"}, testutil.ListFiles(t, filepath.Join(e.root, "entitlement")))
				assert.Zero(t, batch.Report(action.KindEntitlement).UpdateCount(), "trailing refresh finds nothing new")
			} else {
				assert.Zero(t, e.server.CallCount(servertest.MethodGetCertificates))
			}
		})
	}
}

func TestRepoUpdater(t *testing.T) {
	t.Run("preserves local edits and deletes stale sections", func(t *testing.T) {
		e := newEnv(t)
		require.NoError(t, e.deps.EntDir.Write(e.bundle(t, 10, testutil.YumContent("1", "rhel-9-baseos", "rhel-9"))))
		testutil.WriteFile(t, filepath.Join(e.root, "yum.repos.d"), "redhat.repo",
			"[rhel-9-baseos]\nname = old name\nenabled = 0\n\n[gone-repo]\nname = stale\n")

		inv := e.deps.invoker(&RepoUpdater{deps: e.deps})
		report, err := inv.Update(context.Background())
		require.NoError(t, err)
		assert.Contains(t, report.Updates(), "deleted [gone-repo]")

		file, err := repofile.Read(e.deps.RepoFile)
		require.NoError(t, err)
		assert.Equal(t, []string{"rhel-9-baseos"}, file.Sections())
		repo := file.Section("rhel-9-baseos")
		assert.Equal(t, "0", repo.Value("enabled"), "local enabled flag wins")
		assert.Equal(t, "rhel-9-baseos name", repo.Value("name"))

		report, err = inv.Update(context.Background())
		require.NoError(t, err)
		assert.Zero(t, report.UpdateCount())
	})

	t.Run("unmanaged removes the file", func(t *testing.T) {
		e := newEnv(t)
		e.deps.ManageRepos = false
		testutil.WriteFile(t, filepath.Join(e.root, "yum.repos.d"), "redhat.repo", "[x]\nname = x\n")

		report, err := e.deps.invoker(&RepoUpdater{deps: e.deps}).Update(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, report.UpdateCount())
		_, err = os.Stat(e.deps.RepoFile)
		assert.True(t, os.IsNotExist(err))
	})
}

func TestContentClient(t *testing.T) {
	e := newEnv(t)
	e.server.AddCert(e.bundle(t, 10, testutil.YumContent("1", "rhel-9-baseos", "rhel-9")))

	batch, err := NewContentClient(e.deps).Update(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, batch.Report(action.KindEntitlement).UpdateCount())
	assert.Zero(t, batch.Report(action.KindRepos).UpdateCount(), "hook already wrote the repo file")

	repos, err := e.deps.Repos()
	require.NoError(t, err)
	require.Len(t, repos, 1)
	assert.Equal(t, "rhel-9-baseos", repos[0].ID)
}

func TestAutoAttach(t *testing.T) {
	e := newEnv(t)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	e.deps.Now = func() time.Time { return now }

	require.NoError(t, e.deps.AutoAttach(context.Background()))
	assert.Equal(t, []time.Time{now}, e.server.Binds)

	e.server.Fail(servertest.MethodBind, &server.GoneError{DeletedID: testUUID})
	err := e.deps.AutoAttach(context.Background())
	var gone *server.GoneError
	require.True(t, errors.As(err, &gone))
	assert.False(t, e.deps.Identity.Registered())
}
