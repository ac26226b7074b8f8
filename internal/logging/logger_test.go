package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func resetState() {
	CloseAll()
	configMu.Lock()
	config = Config{}
	logLevel = LevelInfo
	configMu.Unlock()
}

// TestCategoriesCreateFiles tests that enabled categories create their log files.
func TestCategoriesCreateFiles(t *testing.T) {
	tempDir := t.TempDir()
	resetState()

	if err := Initialize(Config{Enabled: true, Level: "debug", Dir: tempDir}); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}
	defer resetState()

	categories := []Category{
		CategoryBus, CategoryNode, CategoryTopic, CategoryService,
		CategoryRecord, CategoryGateway, CategoryDemo,
	}
	for _, cat := range categories {
		Get(cat).Info("hello from %s", cat)
	}
	CloseAll()

	entries, err := os.ReadDir(tempDir)
	if err != nil {
		t.Fatalf("Failed to read log dir: %v", err)
	}
	found := make(map[string]bool)
	for _, e := range entries {
		for _, cat := range categories {
			if strings.HasSuffix(e.Name(), "_"+string(cat)+".log") {
				found[string(cat)] = true
			}
		}
	}
	for _, cat := range categories {
		if !found[string(cat)] {
			t.Errorf("Expected log file for category %q", cat)
		}
	}
}

// TestDisabledLoggingIsNoop verifies nothing is written when logging is off.
func TestDisabledLoggingIsNoop(t *testing.T) {
	tempDir := t.TempDir()
	resetState()

	if err := Initialize(Config{Enabled: false, Dir: tempDir}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer resetState()

	Bus("should not appear")
	Node("should not appear")

	entries, err := os.ReadDir(tempDir)
	if err != nil {
		t.Fatalf("Failed to read log dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected empty log dir, got %d entries", len(entries))
	}
}

// TestCategoryFilter verifies the category map disables specific categories.
func TestCategoryFilter(t *testing.T) {
	tempDir := t.TempDir()
	resetState()

	err := Initialize(Config{
		Enabled:    true,
		Level:      "info",
		Dir:        tempDir,
		Categories: map[string]bool{"bus": false, "node": true},
	})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer resetState()

	if IsCategoryEnabled(CategoryBus) {
		t.Error("bus category should be disabled")
	}
	if !IsCategoryEnabled(CategoryNode) {
		t.Error("node category should be enabled")
	}
	// Unlisted categories default to enabled
	if !IsCategoryEnabled(CategoryTopic) {
		t.Error("topic category should default to enabled")
	}
}

// TestLevelFiltering verifies debug lines are dropped at info level.
func TestLevelFiltering(t *testing.T) {
	tempDir := t.TempDir()
	resetState()

	if err := Initialize(Config{Enabled: true, Level: "info", Dir: tempDir}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer resetState()

	l := Get(CategoryNode)
	l.Debug("debug line")
	l.Info("info line")
	CloseAll()

	entries, err := os.ReadDir(tempDir)
	if err != nil || len(entries) == 0 {
		t.Fatalf("expected a log file, err=%v", err)
	}
	data, err := os.ReadFile(filepath.Join(tempDir, entries[0].Name()))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if strings.Contains(string(data), "debug line") {
		t.Error("debug line should have been filtered at info level")
	}
	if !strings.Contains(string(data), "info line") {
		t.Error("info line missing from log")
	}
}

// TestBanner verifies the banner line is centered and padded with dashes.
func TestBanner(t *testing.T) {
	tempDir := t.TempDir()
	resetState()

	if err := Initialize(Config{Enabled: true, Level: "info", Dir: tempDir}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer resetState()

	Get(CategoryNode).Banner(" NODE STARTED ")
	CloseAll()

	entries, _ := os.ReadDir(tempDir)
	if len(entries) == 0 {
		t.Fatal("expected a log file")
	}
	data, _ := os.ReadFile(filepath.Join(tempDir, entries[0].Name()))
	if !strings.Contains(string(data), "--- NODE STARTED ---") {
		t.Errorf("banner not found in log output: %s", data)
	}
}
