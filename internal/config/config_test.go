package config

import (
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	SetDefaults()
	if got := GetInt("battle.apGrant"); got != 50 {
		t.Errorf("battle.apGrant = %d, want 50", got)
	}
	if got := GetInt("battle.apCap"); got != 100 {
		t.Errorf("battle.apCap = %d, want 100", got)
	}
	if got := GetInt64("battle.seed"); got != 0 {
		t.Errorf("battle.seed = %d, want 0", got)
	}
	if got := GetDurationMs("battle.callBudgetMs"); got != time.Second {
		t.Errorf("battle.callBudgetMs = %v, want 1s", got)
	}
	if got := GetString("storage.backend"); got != "memory" {
		t.Errorf("storage.backend = %q, want memory", got)
	}
	if GetBool("influx.enabled") {
		t.Error("influx.enabled should default to false")
	}
	if got := GetString("db.database"); got != "botroyale" {
		t.Errorf("db.database = %q, want botroyale", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if err := Load(t.TempDir()); err == nil {
		t.Error("Load without a config file should fail")
	}
}
