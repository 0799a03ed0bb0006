package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worldsim/worldsim/sim"
	"github.com/worldsim/worldsim/sim/company"
	"github.com/worldsim/worldsim/sim/store"
	"github.com/worldsim/worldsim/sim/tables"
)

// setFlags points the package-level flag variables at a short test range
// and restores them afterwards.
func setFlags(t *testing.T) {
	t.Helper()
	saved := struct {
		config, preset, defaults, start, end, out, db string
		seed                                          int64
		compress                                      bool
	}{configPath, presetName, defaultsFilePath, startDate, endDate, outDir, dbPath, seed, compress}
	t.Cleanup(func() {
		configPath, presetName, defaultsFilePath = saved.config, saved.preset, saved.defaults
		startDate, endDate, outDir, dbPath = saved.start, saved.end, saved.out, saved.db
		seed, compress = saved.seed, saved.compress
	})

	configPath = ""
	presetName = defaultPreset
	defaultsFilePath = filepath.Join(t.TempDir(), "absent.yaml")
	startDate, endDate = "2024-01-01", "2024-01-10"
	seed = 42
	compress = false
	outDir = t.TempDir()
	dbPath = filepath.Join(t.TempDir(), "worldsim.db")
}

func sqliteService(t *testing.T) *company.Service {
	t.Helper()
	st, err := store.OpenSQLite(context.Background(), dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return company.NewService(st, nil)
}

func TestRunGenerate_WritesTablesMatchingHistory(t *testing.T) {
	setFlags(t)
	var out bytes.Buffer

	// WHEN ten days are generated
	require.NoError(t, runGenerate(&out))

	// THEN the four tables are readable and hold one inventory row per product-day
	set, err := tables.ReadDir(outDir)
	require.NoError(t, err)
	assert.Len(t, set.Inventory, 10*2)
	assert.Len(t, set.UnitEconomics, 2)
	assert.NotEmpty(t, set.Sales)
	assert.Len(t, set.Marketing, 10*3)

	// AND the summary is printed
	assert.Contains(t, out.String(), "2024-01-01 .. 2024-01-10 (10 days)")
	assert.Contains(t, out.String(), "Vanilla Shake")
}

func TestRunGenerate_Compressed_WritesZstdFiles(t *testing.T) {
	setFlags(t)
	compress = true

	require.NoError(t, runGenerate(&bytes.Buffer{}))

	_, err := os.Stat(filepath.Join(outDir, tables.InventoryFile+".csv.zst"))
	require.NoError(t, err)
	set, err := tables.ReadDir(outDir)
	require.NoError(t, err)
	assert.Len(t, set.Inventory, 20)
}

func TestRunGenerate_SameSeed_IdenticalOutput(t *testing.T) {
	setFlags(t)
	require.NoError(t, runGenerate(&bytes.Buffer{}))
	first, err := os.ReadFile(filepath.Join(outDir, tables.SalesFile+".csv"))
	require.NoError(t, err)

	outDir = t.TempDir()
	require.NoError(t, runGenerate(&bytes.Buffer{}))
	second, err := os.ReadFile(filepath.Join(outDir, tables.SalesFile+".csv"))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRunGenerate_ReversedRange_Fails(t *testing.T) {
	setFlags(t)
	startDate, endDate = "2024-02-01", "2024-01-01"
	err := runGenerate(&bytes.Buffer{})
	var rangeErr *sim.InvalidRangeError
	assert.ErrorAs(t, err, &rangeErr)
}

func TestRunCreateAdvanceExport_Lifecycle(t *testing.T) {
	setFlags(t)
	ctx := context.Background()
	svc := sqliteService(t)
	var out bytes.Buffer

	// GIVEN a company created over ten days
	require.NoError(t, runCreate(ctx, svc, &out, "acme", nil))
	assert.Contains(t, out.String(), "Created acme")

	// WHEN it advances three days
	out.Reset()
	require.NoError(t, runAdvance(ctx, svc, &out, "acme", company.AdvanceOptions{Days: 3}))

	// THEN each new day is reported in order
	assert.Contains(t, out.String(), "2024-01-11")
	assert.Contains(t, out.String(), "2024-01-13")

	// AND export writes all thirteen days
	dir := t.TempDir()
	require.NoError(t, runExport(ctx, svc, "acme", dir, false))
	set, err := tables.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, set.Inventory, 13*2)
	assert.Equal(t, "2024-01-13", sim.FormatDate(set.Inventory[len(set.Inventory)-1].Date))
}

func TestRunCreate_SeedOverride_Recorded(t *testing.T) {
	setFlags(t)
	svc := sqliteService(t)
	override := int64(7)

	require.NoError(t, runCreate(context.Background(), svc, &bytes.Buffer{}, "acme", &override))

	c, err := svc.Get(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, int64(7), c.Seed)
}

func TestRunShock_AppliesAndRejectsUnknown(t *testing.T) {
	setFlags(t)
	ctx := context.Background()
	svc := sqliteService(t)
	require.NoError(t, runCreate(ctx, svc, &bytes.Buffer{}, "acme", nil))

	var out bytes.Buffer
	name := sim.ShockNames()[0]
	require.NoError(t, runShock(ctx, svc, &out, "acme", name))
	assert.Contains(t, out.String(), "Applied "+name)

	err := runShock(ctx, svc, &bytes.Buffer{}, "acme", "meteor-strike")
	assert.ErrorIs(t, err, company.ErrUnknownShock)
}

func TestRunList_PrintsCompanies(t *testing.T) {
	setFlags(t)
	ctx := context.Background()
	svc := sqliteService(t)
	require.NoError(t, runCreate(ctx, svc, &bytes.Buffer{}, "acme", nil))
	require.NoError(t, runCreate(ctx, svc, &bytes.Buffer{}, "globex", nil))

	var out bytes.Buffer
	require.NoError(t, runList(ctx, svc, &out))
	assert.Contains(t, out.String(), "acme")
	assert.Contains(t, out.String(), "globex")
}

func TestRunExport_UnknownCompany_NotFound(t *testing.T) {
	setFlags(t)
	err := runExport(context.Background(), sqliteService(t), "ghost", t.TempDir(), false)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRunInitConfig_OutputParsesBack(t *testing.T) {
	setFlags(t)
	dest := filepath.Join(t.TempDir(), "world.yaml")

	// WHEN a config is written from the default preset
	require.NoError(t, runInitConfig(&bytes.Buffer{}, defaultPreset, 3, dest))

	// THEN it loads as a valid world config
	cfg, err := sim.LoadWorldConfig(dest)
	require.NoError(t, err)
	assert.Equal(t, sim.DefaultCompanyForm().Products, cfg.Products)
}

func TestRunInitConfig_Stdout(t *testing.T) {
	setFlags(t)
	var out bytes.Buffer
	require.NoError(t, runInitConfig(&out, defaultPreset, 3, "-"))
	_, err := sim.ParseWorldConfig(out.Bytes())
	assert.NoError(t, err)
}

func TestPrintSummary_NoDays(t *testing.T) {
	var out bytes.Buffer
	printSummary(&out, &sim.RunSummary{})
	assert.Contains(t, out.String(), "no simulated days")
}
