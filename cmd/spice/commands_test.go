package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spice-import/internal/config"
	"github.com/Veraticus/spice-import/internal/learning"
	"github.com/Veraticus/spice-import/internal/model"
	"github.com/Veraticus/spice-import/internal/storage"
)

const statementCSV = `Date,Description,Amount
2026-01-05,REWE Markt Berlin,-23.45
2026-01-06,Blorptastic Emporium,-99.00
`

// useTestConfig points appConfig at a scratch database with no model providers.
func useTestConfig(t *testing.T) string {
	t.Helper()
	for _, name := range []string{"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"} {
		t.Setenv(name, "")
	}
	dir := t.TempDir()

	v := viper.New()
	config.SetDefaults(v)
	v.Set("database.path", filepath.Join(dir, "data", "spice.db"))
	v.Set("models.dir", filepath.Join(dir, "models"))
	v.Set("llm.ondevice.cli_path", filepath.Join(dir, "no-such-llama-cli"))

	cfg, err := config.Load(v)
	require.NoError(t, err)

	previous := appConfig
	appConfig = cfg
	t.Cleanup(func() { appConfig = previous })
	return dir
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(bytes.NewReader(nil))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestImportCmd_DryRunSavesNothing(t *testing.T) {
	dir := useTestConfig(t)
	file := writeFile(t, dir, "statement.csv", statementCSV)

	out, err := execute(t, importCmd(), file, "--account", "checking", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "Import preview")
	assert.Contains(t, out, "Blorptastic Emporium")
	assert.Contains(t, out, "Dry run")

	store, err := openStore(context.Background(), appConfig)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	txns, err := store.GetTransactionsByAccount(context.Background(), "checking")
	require.NoError(t, err)
	assert.Empty(t, txns)
}

func TestImportCmd_YesSavesAndSkipsDuplicates(t *testing.T) {
	dir := useTestConfig(t)
	file := writeFile(t, dir, "statement.csv", statementCSV)

	out, err := execute(t, importCmd(), file, "--account", "checking", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Saved: 2")

	out, err = execute(t, importCmd(), file, "--account", "checking", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "2 possible duplicates")
	assert.Contains(t, out, "No new transactions to save")

	store, err := openStore(context.Background(), appConfig)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	txns, err := store.GetTransactionsByAccount(context.Background(), "checking")
	require.NoError(t, err)
	assert.Len(t, txns, 2)
}

func TestImportCmd_PromptDeclinedOnEOF(t *testing.T) {
	dir := useTestConfig(t)
	file := writeFile(t, dir, "statement.csv", statementCSV)

	out, err := execute(t, importCmd(), file, "--account", "checking")
	require.NoError(t, err)
	assert.Contains(t, out, "Save 2 transactions?")
	assert.Contains(t, out, "Nothing was saved")
}

func TestImportCmd_UnreadableDocument(t *testing.T) {
	dir := useTestConfig(t)
	file := writeFile(t, dir, "notes.txt", "nothing to see here")

	_, err := execute(t, importCmd(), file, "--account", "checking", "--yes")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not import notes.txt")
}

func TestImportCmd_RequiresAccount(t *testing.T) {
	dir := useTestConfig(t)
	file := writeFile(t, dir, "statement.csv", statementCSV)

	_, err := execute(t, importCmd(), file)
	require.Error(t, err)
}

func TestLearnCmd_RecordsCorrection(t *testing.T) {
	dir := useTestConfig(t)
	file := writeFile(t, dir, "statement.csv", statementCSV)
	_, err := execute(t, importCmd(), file, "--account", "checking", "--yes")
	require.NoError(t, err)

	ctx := context.Background()
	store, err := openStore(ctx, appConfig)
	require.NoError(t, err)
	txns, err := store.GetTransactionsByAccount(ctx, "checking")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	var target model.Transaction
	for _, txn := range txns {
		if txn.Description == "Blorptastic Emporium" {
			target = txn
		}
	}
	require.NotEmpty(t, target.ID)

	out, err := execute(t, learnCmd(), "--transaction", target.ID, "--to", "shopping")
	require.NoError(t, err)
	assert.Contains(t, out, "shopping")

	store, err = openStore(ctx, appConfig)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	updated, err := store.GetTransactionByID(ctx, target.ID)
	require.NoError(t, err)
	assert.Equal(t, "shopping", updated.CategoryID)
	assert.Equal(t, model.SourceUser, updated.CategorySource)
}

func TestLearnCmd_UnknownTransactionNeedsMerchant(t *testing.T) {
	useTestConfig(t)

	_, err := execute(t, learnCmd(), "--transaction", "missing", "--to", "groceries")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pass --merchant")
}

func TestLearnCmd_RejectsUnknownCategory(t *testing.T) {
	useTestConfig(t)

	_, err := execute(t, learnCmd(), "--transaction", "missing", "--merchant", "ALDI", "--to", "spaceships")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown category "spaceships"`)
}

func TestDescribeLearning(t *testing.T) {
	merchant := model.LearnedMerchant{MerchantPattern: "aldi", CategoryID: "groceries", SampleCount: 3, Confidence: 0.9}

	tests := []struct {
		result learning.Result
		want   string
	}{
		{&learning.CorrectionSaved{Correction: model.CategoryCorrection{MerchantNormalized: "aldi"}}, "Correction saved for aldi"},
		{&learning.MappingCreated{Merchant: merchant}, "Learned: aldi → groceries"},
		{&learning.MappingUpdated{Merchant: merchant, PreviousCategory: "shopping"}, "(was shopping)"},
		{&learning.MappingUpdated{Merchant: merchant, PreviousCategory: "groceries"}, "3 samples"},
	}
	for _, tt := range tests {
		assert.Contains(t, describeLearning(tt.result), tt.want)
	}
}

func TestMigrateCmd(t *testing.T) {
	useTestConfig(t)

	out, err := execute(t, migrateCmd(), "--status")
	require.NoError(t, err)
	assert.Contains(t, out, "Current version: 0")
	assert.Contains(t, out, "Pending migrations")

	out, err = execute(t, migrateCmd())
	require.NoError(t, err)
	assert.Contains(t, out, "Migrated")

	out, err = execute(t, migrateCmd())
	require.NoError(t, err)
	assert.Contains(t, out, "already at version")

	store, err := storage.NewSQLiteStorage(appConfig.Database.Path)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	version, err := store.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, storage.ExpectedSchemaVersion, version)
}

func TestCategoriesCmd(t *testing.T) {
	useTestConfig(t)

	out, err := execute(t, categoriesCmd(), "add", "pets", "--name", "Pets", "--description", "Vet and pet food")
	require.NoError(t, err)
	assert.Contains(t, out, "pets (Pets)")

	out, err = execute(t, categoriesCmd(), "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Vet and pet food")

	_, err = execute(t, categoriesCmd(), "add", "x", "--type", "hobby")
	require.Error(t, err)

	_, err = execute(t, categoriesCmd(), "delete", "pets")
	require.NoError(t, err)
	out, err = execute(t, categoriesCmd(), "list")
	require.NoError(t, err)
	assert.NotContains(t, out, "Vet and pet food")
}

func TestDetectCmd(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "export.csv", "Date;Description;Amount\n05.01.2026;REWE;-23,45\n")

	out, err := execute(t, detectCmd(), file)
	require.NoError(t, err)
	assert.Contains(t, out, "CSV")
	assert.Contains(t, out, "';'")
	assert.Contains(t, out, "UTF-8")
}

func TestAnonymizeCmd(t *testing.T) {
	out, err := execute(t, anonymizeCmd(), "--mapping", "Refund to jane.doe@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "Refund to [EMAIL_1]")
	assert.Contains(t, out, "jane.doe@example.com")
}

func TestModelsCmd_ListAndCancel(t *testing.T) {
	useTestConfig(t)

	out, err := execute(t, modelsCmd(), "list")
	require.NoError(t, err)
	assert.Contains(t, out, appConfig.Models.Catalog[0].ID)
	assert.Contains(t, out, "available")

	_, err = execute(t, modelsCmd(), "download", "not-in-catalog")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in the catalog")

	_, err = execute(t, modelsCmd(), "cancel", appConfig.Models.Catalog[0].ID)
	require.Error(t, err)
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KiB", formatBytes(1536))
	assert.Equal(t, "1.0 GiB", formatBytes(1<<30))
}
