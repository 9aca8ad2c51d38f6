package store

import (
	"io/fs"
	"regexp"
	"strings"
	"testing"
)

func TestMigrationsHaveMatchingUpAndDownFiles(t *testing.T) {
	migrations, err := Migrations("")
	if err != nil {
		t.Fatalf("open migrations: %v", err)
	}
	entries, err := fs.ReadDir(migrations, ".")
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}

	pattern := regexp.MustCompile(`^(\d+)_.*\.(up|down)\.sql$`)
	byVersion := map[string]map[string]bool{}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		match := pattern.FindStringSubmatch(name)
		if match == nil {
			t.Fatalf("migration %s does not follow NNNN_name.(up|down).sql", name)
		}
		version := match[1]
		direction := match[2]
		if byVersion[version] == nil {
			byVersion[version] = map[string]bool{}
		}
		if byVersion[version][direction] {
			t.Fatalf("duplicate %s migration file for version %s", direction, version)
		}
		byVersion[version][direction] = true
	}

	if len(byVersion) == 0 {
		t.Fatal("no migrations discovered")
	}

	for version, dirs := range byVersion {
		if !dirs["up"] || !dirs["down"] {
			t.Fatalf("version %s must include both up and down files", version)
		}
	}
}

func TestUpMigrationsAreOrdered(t *testing.T) {
	migrations, err := Migrations("")
	if err != nil {
		t.Fatalf("open migrations: %v", err)
	}
	files, err := upMigrations(migrations)
	if err != nil {
		t.Fatalf("list up migrations: %v", err)
	}
	if len(files) < 2 || files[0] != "0001_init.up.sql" {
		t.Fatalf("expected 0001_init.up.sql first, got %v", files)
	}
	for _, name := range files {
		if !strings.HasSuffix(name, ".up.sql") {
			t.Fatalf("unexpected file in up set: %s", name)
		}
	}
}

func TestInitMigrationSeedsRetentionDefaults(t *testing.T) {
	migrations, err := Migrations("")
	if err != nil {
		t.Fatalf("open migrations: %v", err)
	}
	contents, err := fs.ReadFile(migrations, "0001_init.up.sql")
	if err != nil {
		t.Fatalf("read init migration: %v", err)
	}
	for _, key := range []string{settingGroupLifetime, settingPrivateLifetime, settingFilterWords} {
		if !strings.Contains(string(contents), "'"+key+"'") {
			t.Fatalf("init migration does not seed %s", key)
		}
	}
	if !strings.Contains(string(contents), "CHECK (blocker_id <> blocked_id)") {
		t.Fatal("blocked_users must reject self-referential pairs")
	}
}
