package logger

import (
	"path/filepath"
	"testing"

	logrus "github.com/sirupsen/logrus"
	gormlogger "gorm.io/gorm/logger"
)

func TestSetupLevel(t *testing.T) {
	if err := Setup("warn", filepath.Join(t.TempDir(), "app.log")); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if logrus.GetLevel() != logrus.WarnLevel {
		t.Fatalf("level: got=%s", logrus.GetLevel())
	}
	if err := Setup("loud", ""); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestGormLoggerLogMode(t *testing.T) {
	base := GormLogger(0)
	silent := base.LogMode(gormlogger.Silent)
	if silent.(*gormLogger).level != gormlogger.Silent {
		t.Fatalf("log mode not applied")
	}
	if base.(*gormLogger).level != gormlogger.Info {
		t.Fatalf("log mode mutated the original logger")
	}
}
