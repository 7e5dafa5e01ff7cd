package migrate

import (
	"context"
	"database/sql"
	"testing"
	"testing/fstest"

	_ "github.com/duckdb/duckdb-go/v2"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatalf("open duckdb: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRunCreatesEvidenceTables(t *testing.T) {
	db := openTestDB(t)
	if err := NewRunner(db).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, table := range []string{"schema_migrations", "cases", "evidence", "mft_records", "amcache_records", "security_events"} {
		var name string
		err := db.QueryRow("SELECT table_name FROM information_schema.tables WHERE table_name = ?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}
}

func TestRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	r := NewRunner(db)

	cur, pending, err := r.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if cur != 0 || pending != 2 {
		t.Errorf("before run: version=%d pending=%d, want 0/2", cur, pending)
	}

	for i := 0; i < 2; i++ {
		if err := r.Run(ctx); err != nil {
			t.Fatalf("Run #%d: %v", i+1, err)
		}
	}

	cur, pending, err = r.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if cur != 2 || pending != 0 {
		t.Errorf("after run: version=%d pending=%d, want 2/0", cur, pending)
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		files   fstest.MapFS
		want    []int
		wantErr bool
	}{
		{
			name: "sorted by version",
			files: fstest.MapFS{
				"migrations/010_b.sql":    {Data: []byte("SELECT 1")},
				"migrations/002_a.sql":    {Data: []byte("SELECT 1")},
				"migrations/README.md":    {Data: []byte("docs")},
				"migrations/noprefix.sql": {Data: []byte("SELECT 1")},
			},
			want: []int{2, 10},
		},
		{
			name: "duplicate version",
			files: fstest.MapFS{
				"migrations/001_a.sql": {Data: []byte("SELECT 1")},
				"migrations/001_b.sql": {Data: []byte("SELECT 1")},
			},
			wantErr: true,
		},
		{
			name: "non-numeric prefix",
			files: fstest.MapFS{
				"migrations/abc_a.sql": {Data: []byte("SELECT 1")},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			migs, err := Load(tt.files)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if len(migs) != len(tt.want) {
				t.Fatalf("got %d migrations, want %d", len(migs), len(tt.want))
			}
			for i, v := range tt.want {
				if migs[i].Version != v {
					t.Errorf("migs[%d].Version = %d, want %d", i, migs[i].Version, v)
				}
			}
		})
	}
}
