package migrate

import (
	"testing"

	"medboard/internal/db"
)

func TestMigrateIsRepeatable(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()
	if v, err := CurrentVersion(conn); err != nil || v != 0 {
		t.Fatalf("fresh version = %d err=%v", v, err)
	}
	for i := 0; i < 2; i++ {
		if err := Migrate(conn); err != nil {
			t.Fatalf("migrate run %d: %v", i, err)
		}
	}
	all, err := Available()
	if err != nil || len(all) == 0 {
		t.Fatalf("available = %v err=%v", all, err)
	}
	v, err := CurrentVersion(conn)
	if err != nil || v != all[len(all)-1].Version {
		t.Fatalf("version = %d err=%v", v, err)
	}
	for _, table := range []string{"users", "records", "events", "api_keys", "webhook_cursors"} {
		var n int
		if err := conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&n); err != nil || n != 1 {
			t.Fatalf("table %s missing (err=%v)", table, err)
		}
	}
}
