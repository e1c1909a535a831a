package certdir

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opmodel/subctl/internal/certificate"
	"github.com/opmodel/subctl/internal/core"
	"github.com/opmodel/subctl/internal/testutil"
)

func entBundle(t *testing.T, serial int64, productID string, opts testutil.CertOptions) core.CertBundle {
	t.Helper()
	opts.Serial = serial
	certPEM, keyPEM := testutil.EntitlementPEM(t, opts, certificate.EntitlementData{
		Products: []certificate.Product{{ID: productID, Name: "Product " + productID}},
	})
	return core.CertBundle{Cert: string(certPEM), Key: string(keyPEM), Serial: core.Serial{Serial: serial}}
}

func TestEntitlementDir_WriteListDelete(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "entitlement")
	d := NewEntitlementDir(dir)

	certs, err := d.List()
	require.NoError(t, err)
	assert.Empty(t, certs, "missing directory lists as empty")

	require.NoError(t, d.Write(entBundle(t, 100, "69", testutil.CertOptions{})))
	require.NoError(t, d.Write(entBundle(t, 200, "70", testutil.CertOptions{})))

	assert.Equal(t, []string{"100-key.pem", "100.pem", "200-key.pem", "200.pem"}, testutil.ListFiles(t, dir))

	serials, err := d.Serials()
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{100, 200}, serials.UnsortedList())

	c, err := d.Find(200)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, filepath.Join(dir, "200.pem"), c.Path)
	assert.Equal(t, filepath.Join(dir, "200-key.pem"), c.KeyPath)

	byProduct, err := d.FindAllByProduct("69")
	require.NoError(t, err)
	require.Len(t, byProduct, 1)
	assert.Equal(t, int64(100), byProduct[0].Serial)

	require.NoError(t, d.Delete(100))
	require.NoError(t, d.Delete(100), "deleting twice is fine")
	assert.Equal(t, []string{"200-key.pem", "200.pem"}, testutil.ListFiles(t, dir))
}

func TestEntitlementDir_ListCachesUntilRefresh(t *testing.T) {
	dir := t.TempDir()
	d := NewEntitlementDir(dir)
	b := entBundle(t, 1, "69", testutil.CertOptions{})

	certs, err := d.List()
	require.NoError(t, err)
	assert.Empty(t, certs)

	testutil.WriteFile(t, dir, "1.pem", b.Cert)
	certs, err = d.List()
	require.NoError(t, err)
	assert.Empty(t, certs, "cached listing")

	d.Refresh()
	certs, err = d.List()
	require.NoError(t, err)
	assert.Len(t, certs, 1)
}

func TestEntitlementDir_SkipsGarbage(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "9.pem", "garbage")
	testutil.WriteFile(t, dir, "9-key.pem", "garbage")
	testutil.WriteFile(t, dir, "notes.txt", "hello")

	certs, err := NewEntitlementDir(dir).List()
	require.NoError(t, err)
	assert.Empty(t, certs)
}

func TestEntitlementDir_ListValidAndExpired(t *testing.T) {
	dir := t.TempDir()
	d := NewEntitlementDir(dir)

	past := testutil.CertOptions{NotBefore: time.Now().Add(-48 * time.Hour), NotAfter: time.Now().Add(-24 * time.Hour)}
	require.NoError(t, d.Write(entBundle(t, 1, "69", testutil.CertOptions{})))
	require.NoError(t, d.Write(entBundle(t, 2, "69", past)))

	noKey := entBundle(t, 3, "69", testutil.CertOptions{})
	testutil.WriteFile(t, dir, "3.pem", noKey.Cert)
	d.Refresh()

	valid, err := d.ListValid()
	require.NoError(t, err)
	require.Len(t, valid, 1)
	assert.Equal(t, int64(1), valid[0].Serial)

	expired, err := d.ListExpired()
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, int64(2), expired[0].Serial)
}

func TestEntitlementDir_LegacyKeyMigrated(t *testing.T) {
	dir := t.TempDir()
	b := entBundle(t, 5, "69", testutil.CertOptions{})
	testutil.WriteFile(t, dir, "5.pem", b.Cert)
	testutil.WriteFile(t, dir, "key.pem", b.Key)

	valid, err := NewEntitlementDir(dir).ListValid()
	require.NoError(t, err)
	require.Len(t, valid, 1)

	data, err := os.ReadFile(filepath.Join(dir, "5-key.pem"))
	require.NoError(t, err)
	assert.Equal(t, b.Key, string(data))
}

func TestEntitlementDir_Archive(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "entitlement")
	archive := filepath.Join(root, "archive")
	d := NewEntitlementDir(dir)

	dst, err := d.Archive(archive, time.Now())
	require.NoError(t, err)
	assert.Empty(t, dst, "nothing to archive")

	require.NoError(t, d.Write(entBundle(t, 7, "69", testutil.CertOptions{})))

	now := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	dst, err = d.Archive(archive, now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(archive, "entitlement-20250304T050607Z"), dst)
	assert.Equal(t, []string{"7-key.pem", "7.pem"}, testutil.ListFiles(t, dst))
	assert.Empty(t, testutil.ListFiles(t, dir))

	certs, err := d.List()
	require.NoError(t, err)
	assert.Empty(t, certs)
}

func TestProductDir(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "69.pem", string(testutil.ProductPEM(t, 69, certificate.Product{
		ID: "69", Name: "RHEL Server", Version: "9.4", Architectures: []string{"x86_64"}, ProvidedTags: []string{"rhel-9", "rhel-9-server"},
	})))
	testutil.WriteFile(t, dir, "83.pem", string(testutil.ProductPEM(t, 83, certificate.Product{
		ID: "83", Name: "High Availability", Version: "9", ProvidedTags: []string{"rhel-9-ha"},
	})))

	d := NewProductDir(dir)

	products, err := d.InstalledProducts()
	require.NoError(t, err)
	assert.Equal(t, []core.InstalledProduct{
		{ProductID: "69", ProductName: "RHEL Server", Version: "9.4", Arch: "x86_64"},
		{ProductID: "83", ProductName: "High Availability", Version: "9"},
	}, products)

	tags, err := d.ProvidedTags()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"rhel-9", "rhel-9-server", "rhel-9-ha"}, tags.UnsortedList())

	ids, err := d.InstalledProductIDs()
	require.NoError(t, err)
	assert.True(t, ids.Has("83"))

	pc, err := d.FindByProduct("83")
	require.NoError(t, err)
	require.NotNil(t, pc)
	assert.Equal(t, filepath.Join(dir, "83.pem"), pc.Path)

	pc, err = d.FindByProduct("999")
	require.NoError(t, err)
	assert.Nil(t, pc)
}
