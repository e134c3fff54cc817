package db

import (
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/ecds/dashboard/migrations"
)

func TestLoadMigrations(t *testing.T) {
	files := fstest.MapFS{
		"010_later.sql":      {Data: []byte("CREATE TABLE b (id INT);")},
		"001_ui_session.sql": {Data: []byte("CREATE TABLE a (id INT);")},
		"002_index.sql":      {Data: []byte("CREATE INDEX a_id ON a (id);")},
		"README.md":          {Data: []byte("not sql")},
		"notes.sql":          {Data: []byte("no version")},
		"abc_bad.sql":        {Data: []byte("no version")},
		"sub/003_nested.sql": {Data: []byte("ignored")},
	}
	m, err := NewMigrator(nil, files, "")
	if err != nil {
		t.Fatalf("NewMigrator: %v", err)
	}
	got, err := m.LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(got))
	}
	for i, want := range []int{1, 2, 10} {
		if got[i].Version != want {
			t.Errorf("expected version %d at %d, got %d", want, i, got[i].Version)
		}
	}
	if got[0].Name != "001_ui_session.sql" || got[0].SQL != "CREATE TABLE a (id INT);" {
		t.Errorf("unexpected first migration %+v", got[0])
	}
}

func TestLoadMigrations_DuplicateVersion(t *testing.T) {
	files := fstest.MapFS{
		"001_a.sql":  {Data: []byte("SELECT 1;")},
		"0001_b.sql": {Data: []byte("SELECT 2;")},
	}
	m, _ := NewMigrator(nil, files, "")
	if _, err := m.LoadMigrations(); err == nil || !strings.Contains(err.Error(), "share version 1") {
		t.Errorf("expected a duplicate version error, got %v", err)
	}
}

func TestLoadMigrations_Embedded(t *testing.T) {
	m, err := NewMigrator(nil, migrations.FS, "")
	if err != nil {
		t.Fatalf("NewMigrator: %v", err)
	}
	got, err := m.LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	if len(got) == 0 || got[0].Name != "001_ui_session.sql" {
		t.Fatalf("expected the session migration first, got %+v", got)
	}
	if !strings.Contains(got[0].SQL, "ui_session") {
		t.Error("expected the session table in the first migration")
	}
}

func TestNewMigrator_Schema(t *testing.T) {
	m, err := NewMigrator(nil, fstest.MapFS{}, "")
	if err != nil || m.Schema() != DefaultSchema {
		t.Errorf("expected the default schema, got %v (%v)", m, err)
	}
	if m.ident() != `"public"` {
		t.Errorf("expected a quoted identifier, got %s", m.ident())
	}
	for _, bad := range []string{"1abc", "a-b", "a;DROP TABLE x", strings.Repeat("a", 64)} {
		if _, err := NewMigrator(nil, fstest.MapFS{}, bad); err == nil {
			t.Errorf("expected %q to be rejected", bad)
		}
	}
	if !ValidSchema("cds_dashboard") {
		t.Error("expected cds_dashboard to be valid")
	}
}

func TestStatuses(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	got := statuses(
		[]Migration{{Version: 1, Name: "001_a.sql"}, {Version: 2, Name: "002_b.sql"}},
		map[int]time.Time{1: at},
	)
	if len(got) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(got))
	}
	if !got[0].Applied || got[0].AppliedAt == nil || !got[0].AppliedAt.Equal(at) {
		t.Errorf("expected the first migration applied at %v, got %+v", at, got[0])
	}
	if got[1].Applied || got[1].AppliedAt != nil {
		t.Errorf("expected the second migration pending, got %+v", got[1])
	}
}
