package store

import (
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lox/biascorrect/internal/models"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store := New(db)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func value(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: true}
}

func TestMigrationVersion(t *testing.T) {
	store := setupTestStore(t)

	version, err := store.MigrationVersion()
	if err != nil {
		t.Fatalf("MigrationVersion: %v", err)
	}
	if version != len(migrations) {
		t.Errorf("version = %d, want %d", version, len(migrations))
	}

	// second run is a no-op
	if err := store.Migrate(); err != nil {
		t.Fatalf("Migrate again: %v", err)
	}
}

func TestUpsertAndGetDataset(t *testing.T) {
	store := setupTestStore(t)

	if err := store.UpsertDataset(models.Dataset{Name: "station-obs", Kind: models.KindObserved, Source: "file"}); err != nil {
		t.Fatalf("UpsertDataset: %v", err)
	}

	records := []models.DailyRecord{
		{Date: day("2024-01-02"), TempMin: value(3), TempMax: value(14), Precip: value(0)},
		{Date: day("2024-01-01"), TempMin: value(2), TempMax: value(12), Precip: value(1.5)},
		{Date: day("2024-01-03"), TempMin: value(4), TempMax: sql.NullFloat64{}, Precip: value(0.2), QualityFlags: `["x"]`},
	}
	n, err := store.UpsertRecords("station-obs", records)
	if err != nil {
		t.Fatalf("UpsertRecords: %v", err)
	}
	if n != 3 {
		t.Errorf("stored = %d, want 3", n)
	}

	ds, err := store.GetDataset("station-obs")
	if err != nil {
		t.Fatalf("GetDataset: %v", err)
	}
	if ds == nil {
		t.Fatal("GetDataset returned nil")
	}
	if ds.Kind != models.KindObserved {
		t.Errorf("Kind = %q, want observed", ds.Kind)
	}
	if ds.RowCount != 3 {
		t.Errorf("RowCount = %d, want 3", ds.RowCount)
	}
	if !ds.FirstDate.Valid || !ds.FirstDate.Time.Equal(day("2024-01-01")) {
		t.Errorf("FirstDate = %v, want 2024-01-01", ds.FirstDate)
	}
	if !ds.LastDate.Valid || !ds.LastDate.Time.Equal(day("2024-01-03")) {
		t.Errorf("LastDate = %v, want 2024-01-03", ds.LastDate)
	}

	got, err := store.GetRecords("station-obs", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("GetRecords: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len(records) = %d, want 3", len(got))
	}
	if !got[0].Date.Equal(day("2024-01-01")) {
		t.Errorf("first record date = %v, want 2024-01-01", got[0].Date)
	}
	if got[2].TempMax.Valid {
		t.Error("expected null temperature_max to round-trip as null")
	}
	if got[2].QualityFlags != `["x"]` {
		t.Errorf("QualityFlags = %q", got[2].QualityFlags)
	}
}

func TestGetDataset_Missing(t *testing.T) {
	store := setupTestStore(t)

	ds, err := store.GetDataset("nope")
	if err != nil {
		t.Fatalf("GetDataset: %v", err)
	}
	if ds != nil {
		t.Errorf("expected nil dataset, got %+v", ds)
	}
}

func TestUpsertDataset_InvalidKind(t *testing.T) {
	store := setupTestStore(t)

	if err := store.UpsertDataset(models.Dataset{Name: "x", Kind: "forecast"}); err == nil {
		t.Error("expected error for invalid kind")
	}
}

func TestGetRecords_Window(t *testing.T) {
	store := setupTestStore(t)

	if err := store.UpsertDataset(models.Dataset{Name: "gcm", Kind: models.KindSimulated}); err != nil {
		t.Fatal(err)
	}
	var records []models.DailyRecord
	for d := 1; d <= 10; d++ {
		records = append(records, models.DailyRecord{
			Date:    time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC),
			TempMin: value(float64(d)),
			TempMax: value(float64(d + 10)),
			Precip:  value(0),
		})
	}
	if _, err := store.UpsertRecords("gcm", records); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetRecords("gcm", day("2024-03-03"), day("2024-03-05"))
	if err != nil {
		t.Fatalf("GetRecords: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len(records) = %d, want 3 (inclusive window)", len(got))
	}
	if got[0].TempMin.Float64 != 3 || got[2].TempMin.Float64 != 5 {
		t.Errorf("window returned wrong rows: %v..%v", got[0].TempMin, got[2].TempMin)
	}
}

func TestUpsertRecords_ReplacesValues(t *testing.T) {
	store := setupTestStore(t)

	if err := store.UpsertDataset(models.Dataset{Name: "obs", Kind: models.KindObserved}); err != nil {
		t.Fatal(err)
	}
	rec := models.DailyRecord{Date: day("2024-05-01"), TempMin: value(1), TempMax: value(2), Precip: value(3)}
	if _, err := store.UpsertRecords("obs", []models.DailyRecord{rec}); err != nil {
		t.Fatal(err)
	}
	rec.TempMin = value(9)
	if _, err := store.UpsertRecords("obs", []models.DailyRecord{rec}); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetRecords("obs", time.Time{}, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(got))
	}
	if got[0].TempMin.Float64 != 9 {
		t.Errorf("TempMin = %v, want 9", got[0].TempMin.Float64)
	}
}

func TestListAndDeleteDatasets(t *testing.T) {
	store := setupTestStore(t)

	for _, d := range []models.Dataset{
		{Name: "b-sim", Kind: models.KindSimulated},
		{Name: "a-obs", Kind: models.KindObserved},
	} {
		if err := store.UpsertDataset(d); err != nil {
			t.Fatal(err)
		}
	}

	list, err := store.ListDatasets()
	if err != nil {
		t.Fatalf("ListDatasets: %v", err)
	}
	if len(list) != 2 || list[0].Name != "a-obs" {
		t.Fatalf("ListDatasets = %+v, want a-obs first", list)
	}

	if err := store.DeleteDataset("a-obs"); err != nil {
		t.Fatalf("DeleteDataset: %v", err)
	}
	list, err = store.ListDatasets()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Name != "b-sim" {
		t.Errorf("after delete = %+v, want only b-sim", list)
	}
}

func TestCorrectionRunRoundTrip(t *testing.T) {
	store := setupTestStore(t)

	run := &models.CorrectionRun{
		SimDataset:  "gcm",
		ObsDataset:  "obs",
		WindowStart: day("2020-01-01"),
		WindowEnd:   day("2020-12-31"),
		CreatedAt:   time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		DurationMS:  12,
		Variables: []models.VariableRun{
			{Variable: models.Precip, SampleSize: 366, Performance: models.Performance{RMSESim: 4, RMSECorr: 3, BiasSim: 1, BiasCorr: 0.1}},
			{Variable: models.TempMin, SampleSize: 366, Performance: models.Performance{RMSESim: 2.5, RMSECorr: 1.5, BiasSim: -1.2, BiasCorr: 0.05},
				Means: models.Means{Observed: 8, Simulated: 6.8, Corrected: 8.05}},
		},
	}
	if err := store.InsertCorrectionRun(run); err != nil {
		t.Fatalf("InsertCorrectionRun: %v", err)
	}
	if run.ID == 0 {
		t.Fatal("expected run ID to be set")
	}

	got, err := store.GetCorrectionRun(run.ID)
	if err != nil {
		t.Fatalf("GetCorrectionRun: %v", err)
	}
	if got == nil {
		t.Fatal("GetCorrectionRun returned nil")
	}
	if got.SimDataset != "gcm" || got.ObsDataset != "obs" {
		t.Errorf("datasets = %s/%s", got.SimDataset, got.ObsDataset)
	}
	if !got.WindowEnd.Equal(day("2020-12-31")) {
		t.Errorf("WindowEnd = %v", got.WindowEnd)
	}
	if len(got.Variables) != 2 {
		t.Fatalf("len(Variables) = %d, want 2", len(got.Variables))
	}
	// stored in display order regardless of insert order
	if got.Variables[0].Variable != models.TempMin {
		t.Errorf("first variable = %s, want temperature_min", got.Variables[0].Variable)
	}
	if got.Variables[0].Performance.BiasSim != -1.2 {
		t.Errorf("BiasSim = %v, want -1.2", got.Variables[0].Performance.BiasSim)
	}
	if got.Variables[0].Means.Corrected != 8.05 {
		t.Errorf("Means.Corrected = %v, want 8.05", got.Variables[0].Means.Corrected)
	}

	missing, err := store.GetCorrectionRun(run.ID + 100)
	if err != nil {
		t.Fatalf("GetCorrectionRun missing: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for unknown run")
	}
}

func TestListCorrectionRuns_NewestFirst(t *testing.T) {
	store := setupTestStore(t)

	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		run := &models.CorrectionRun{
			SimDataset:  "gcm",
			ObsDataset:  "obs",
			WindowStart: day("2020-01-01"),
			WindowEnd:   day("2020-01-31"),
			CreatedAt:   base.Add(time.Duration(i) * time.Hour),
			Variables:   []models.VariableRun{{Variable: models.TempMax, SampleSize: 31}},
		}
		if err := store.InsertCorrectionRun(run); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := store.ListCorrectionRuns(2)
	if err != nil {
		t.Fatalf("ListCorrectionRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("len(runs) = %d, want 2", len(runs))
	}
	if !runs[0].CreatedAt.After(runs[1].CreatedAt) {
		t.Errorf("runs not newest first: %v, %v", runs[0].CreatedAt, runs[1].CreatedAt)
	}
	if len(runs[0].Variables) != 1 {
		t.Errorf("expected metrics loaded for listed runs")
	}
}

func TestImportRunLifecycle(t *testing.T) {
	store := setupTestStore(t)

	run, err := store.StartImportRun("obs", "file", "obs.csv")
	if err != nil {
		t.Fatalf("StartImportRun: %v", err)
	}
	run.ErrorMessage = sql.NullString{String: "csv: missing required columns", Valid: true}
	if err := store.CompleteImportRun(run); err != nil {
		t.Fatalf("CompleteImportRun: %v", err)
	}

	ok, err := store.StartImportRun("sim", "file", "sim.csv")
	if err != nil {
		t.Fatal(err)
	}
	ok.Success = true
	ok.RecordsStored = sql.NullInt64{Int64: 10, Valid: true}
	if err := store.CompleteImportRun(ok); err != nil {
		t.Fatal(err)
	}

	failures, err := store.GetRecentImportErrors(10)
	if err != nil {
		t.Fatalf("GetRecentImportErrors: %v", err)
	}
	if len(failures) != 1 {
		t.Fatalf("len(failures) = %d, want 1", len(failures))
	}
	if failures[0].Dataset != "obs" || !failures[0].FinishedAt.Valid {
		t.Errorf("unexpected failure row: %+v", failures[0])
	}
}

func TestRawFileDedup(t *testing.T) {
	store := setupTestStore(t)

	content := []byte("date,temperature_min,temperature_max,precipitation\n2024-01-01,1,2,3\n")
	id, err := store.StoreRawFile(0, "obs", "obs.csv", content)
	if err != nil {
		t.Fatalf("StoreRawFile: %v", err)
	}
	if id == 0 {
		t.Fatal("expected new file ID")
	}

	dup, err := store.StoreRawFile(0, "obs", "obs.csv", content)
	if err != nil {
		t.Fatalf("StoreRawFile dup: %v", err)
	}
	if dup != 0 {
		t.Errorf("duplicate ID = %d, want 0", dup)
	}

	got, err := store.GetRawFile(id)
	if err != nil {
		t.Fatalf("GetRawFile: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: %q", got)
	}
}

func TestCleanupOldRawFiles(t *testing.T) {
	store := setupTestStore(t)

	if _, err := store.StoreRawFile(0, "obs", "obs.csv", []byte("a")); err != nil {
		t.Fatalf("StoreRawFile: %v", err)
	}

	n, err := store.CleanupOldRawFiles(30)
	if err != nil {
		t.Fatalf("CleanupOldRawFiles: %v", err)
	}
	if n != 0 {
		t.Errorf("deleted %d recent files, want 0", n)
	}

	// a negative retention puts the cutoff in the future
	n, err = store.CleanupOldRawFiles(-1)
	if err != nil {
		t.Fatalf("CleanupOldRawFiles: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted %d files, want 1", n)
	}
}
