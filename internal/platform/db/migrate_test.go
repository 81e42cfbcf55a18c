package db

import (
	"testing"
	"testing/fstest"

	"github.com/healthflow/fhirsync/migrations"
)

func TestLoadMigrations(t *testing.T) {
	files := fstest.MapFS{
		"002_bundles.sql":   {Data: []byte("CREATE TABLE fhir_bundles (id UUID);")},
		"001_resources.sql": {Data: []byte("CREATE TABLE fhir_resources (id BIGSERIAL);")},
		"010_indexes.sql":   {Data: []byte("CREATE INDEX x ON fhir_resources (id);")},
		"README.md":         {Data: []byte("not a migration")},
		"seed.sql":          {Data: []byte("no version prefix")},
		"abc_bad.sql":       {Data: []byte("non numeric prefix")},
	}

	migrator := NewMigrator(nil, files)
	got, err := migrator.LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(got))
	}
	wantVersions := []int{1, 2, 10}
	for i, v := range wantVersions {
		if got[i].Version != v {
			t.Errorf("migration %d: expected version %d, got %d", i, v, got[i].Version)
		}
	}
	if got[0].Name != "001_resources.sql" {
		t.Errorf("expected name 001_resources.sql, got %s", got[0].Name)
	}
	if got[0].SQL != "CREATE TABLE fhir_resources (id BIGSERIAL);" {
		t.Errorf("unexpected SQL content: %s", got[0].SQL)
	}
}

func TestLoadMigrations_DuplicateVersion(t *testing.T) {
	files := fstest.MapFS{
		"001_a.sql": {Data: []byte("SELECT 1;")},
		"1_b.sql":   {Data: []byte("SELECT 2;")},
	}
	if _, err := NewMigrator(nil, files).LoadMigrations(); err == nil {
		t.Fatal("expected error for duplicate migration version")
	}
}

func TestLoadMigrations_Embedded(t *testing.T) {
	got, err := NewMigrator(nil, migrations.FS).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("expected embedded migrations")
	}
	if got[0].Version != 1 {
		t.Errorf("expected first embedded version 1, got %d", got[0].Version)
	}
}
