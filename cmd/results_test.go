package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cwbudde/penreg/internal/store"
	"github.com/spf13/cobra"
)

func testCommand() (*cobra.Command, *bytes.Buffer) {
	cmd := &cobra.Command{}
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetIn(strings.NewReader(""))
	return cmd, &buf
}

func useDataDir(t *testing.T, dir string) {
	t.Helper()
	original := dataDir
	dataDir = dir
	t.Cleanup(func() { dataDir = original })
}

func saveTestRecord(t *testing.T, dir, runID string, ts time.Time) {
	t.Helper()

	resultStore, err := store.NewFSStore(dir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	record := &store.Record{
		RunID:     runID,
		Samples:   10,
		Params:    2,
		Timestamp: ts,
		Config:    store.RunConfig{XPath: "x.txt", YPath: "y.txt", Engine: "ista", Penalty: "lasso"},
		Fits: []store.FitSummary{
			{Lambda: 0.5, Params: []float64{1, 0}, Loss: 0.2, Objective: 0.2, Iterations: 4, Status: "GradientThreshold"},
		},
	}
	if err := resultStore.SaveRecord(record); err != nil {
		t.Fatalf("Failed to save record: %v", err)
	}
}

func TestSelectRecordsForDeletion_ByAge(t *testing.T) {
	now := time.Now()
	infos := []store.RecordInfo{
		{RunID: "run1", Timestamp: now.AddDate(0, 0, -10)},
		{RunID: "run2", Timestamp: now.AddDate(0, 0, -5)},
		{RunID: "run3", Timestamp: now.AddDate(0, 0, -1)},
		{RunID: "run4", Timestamp: now.AddDate(0, 0, -30)},
	}

	toDelete := selectRecordsForDeletion(infos, 0, 7, now)

	if len(toDelete) != 2 {
		t.Fatalf("Expected 2 results to delete, got %d", len(toDelete))
	}
	if toDelete[0].RunID != "run1" || toDelete[1].RunID != "run4" {
		t.Errorf("Expected run1 and run4, got %s and %s", toDelete[0].RunID, toDelete[1].RunID)
	}
}

func TestSelectRecordsForDeletion_ByCount(t *testing.T) {
	now := time.Now()
	infos := []store.RecordInfo{
		{RunID: "run1", Timestamp: now.AddDate(0, 0, -10)},
		{RunID: "run2", Timestamp: now.AddDate(0, 0, -5)},
		{RunID: "run3", Timestamp: now.AddDate(0, 0, -1)},
		{RunID: "run4", Timestamp: now.AddDate(0, 0, -30)},
	}

	toDelete := selectRecordsForDeletion(infos, 2, 0, now)

	if len(toDelete) != 2 {
		t.Fatalf("Expected 2 results to delete, got %d", len(toDelete))
	}
	// Oldest first
	if toDelete[0].RunID != "run4" || toDelete[1].RunID != "run1" {
		t.Errorf("Expected run4 and run1, got %s and %s", toDelete[0].RunID, toDelete[1].RunID)
	}
}

func TestSelectRecordsForDeletion_Combined(t *testing.T) {
	now := time.Now()
	infos := []store.RecordInfo{
		{RunID: "run1", Timestamp: now.AddDate(0, 0, -10)},
		{RunID: "run2", Timestamp: now.AddDate(0, 0, -5)},
		{RunID: "run3", Timestamp: now.AddDate(0, 0, -1)},
	}

	// run1 is too old and also outside the last 1; it must appear once.
	toDelete := selectRecordsForDeletion(infos, 1, 7, now)

	if len(toDelete) != 2 {
		t.Fatalf("Expected 2 results to delete, got %d", len(toDelete))
	}
	seen := map[string]int{}
	for _, info := range toDelete {
		seen[info.RunID]++
	}
	if seen["run1"] != 1 || seen["run2"] != 1 {
		t.Errorf("Unexpected selection: %v", seen)
	}
}

func TestSelectRecordsForDeletion_KeepAll(t *testing.T) {
	now := time.Now()
	infos := []store.RecordInfo{{RunID: "run1", Timestamp: now}}

	if got := selectRecordsForDeletion(infos, 5, 0, now); len(got) != 0 {
		t.Errorf("Expected nothing to delete, got %d", len(got))
	}
}

func TestGetDirSize(t *testing.T) {
	tmpDir := t.TempDir()

	content := []byte("Hello, World!")
	if err := os.WriteFile(filepath.Join(tmpDir, "test.txt"), content, 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	size, err := getDirSize(tmpDir)
	if err != nil {
		t.Fatalf("getDirSize failed: %v", err)
	}
	if size < int64(len(content)) {
		t.Errorf("Expected size >= %d, got %d", len(content), size)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1048576, "1.0 MB"},
		{1073741824, "1.0 GB"},
	}

	for _, tt := range tests {
		result := formatBytes(tt.bytes)
		if result != tt.expected {
			t.Errorf("formatBytes(%d) = %s, expected %s", tt.bytes, result, tt.expected)
		}
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("abc"); got != "abc" {
		t.Errorf("shortID(abc) = %s", got)
	}
	if got := shortID("0123456789abcdef"); got != "0123456789ab..." {
		t.Errorf("shortID = %s", got)
	}
}

func TestResultsListCommand_NoResults(t *testing.T) {
	useDataDir(t, t.TempDir())
	cmd, out := testCommand()

	if err := runListResults(cmd, nil); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !strings.Contains(out.String(), "No results found.") {
		t.Errorf("Unexpected output: %q", out.String())
	}
}

func TestResultsListCommand_WithResults(t *testing.T) {
	tmpDir := t.TempDir()
	useDataDir(t, tmpDir)
	saveTestRecord(t, tmpDir, "run-list", time.Now())

	cmd, out := testCommand()
	if err := runListResults(cmd, nil); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !strings.Contains(out.String(), "run-list") {
		t.Errorf("Expected run ID in output: %q", out.String())
	}
	if !strings.Contains(out.String(), "Total results: 1") {
		t.Errorf("Expected total in output: %q", out.String())
	}
}

func TestResultsShowCommand(t *testing.T) {
	tmpDir := t.TempDir()
	useDataDir(t, tmpDir)
	saveTestRecord(t, tmpDir, "run-show", time.Now())

	tw, err := store.NewTraceWriter(tmpDir, "run-show", false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}
	for i := 0; i < 3; i++ {
		tw.Write(store.TraceEntry{Lambda: 0.5, Iteration: i + 1, Timestamp: time.Now()})
	}
	tw.Close()

	cmd, out := testCommand()
	if err := runShowResult(cmd, []string{"run-show"}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	got := out.String()
	if !strings.Contains(got, "ista, penalty lasso") {
		t.Errorf("Expected optimizer line: %q", got)
	}
	if !strings.Contains(got, "GradientThreshold") {
		t.Errorf("Expected fit status: %q", got)
	}
	lines := strings.Split(strings.TrimSpace(got), "\n")
	last := strings.Fields(lines[len(lines)-1])
	if len(last) < 6 || last[5] != "3" {
		t.Errorf("Expected 3 traced iterations in %q", lines[len(lines)-1])
	}
}

func TestResultsShowCommand_NotFound(t *testing.T) {
	useDataDir(t, t.TempDir())
	cmd, _ := testCommand()

	if err := runShowResult(cmd, []string{"missing"}); err == nil {
		t.Error("Expected error for missing run")
	}
}

func TestResultsCleanCommand_NoFlags(t *testing.T) {
	useDataDir(t, t.TempDir())
	keepLast = 0
	olderThanDays = 0

	cmd, _ := testCommand()
	if err := runCleanResults(cmd, nil); err == nil {
		t.Error("Expected error when no flags specified")
	}
}

func TestResultsCleanCommand_WithForce(t *testing.T) {
	tmpDir := t.TempDir()
	useDataDir(t, tmpDir)
	saveTestRecord(t, tmpDir, "old-run", time.Now().AddDate(0, 0, -30))
	saveTestRecord(t, tmpDir, "new-run", time.Now())

	keepLast = 0
	olderThanDays = 7
	forceClean = true
	defer func() { olderThanDays = 0; forceClean = false }()

	cmd, _ := testCommand()
	if err := runCleanResults(cmd, nil); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	resultStore, _ := store.NewFSStore(tmpDir)
	if _, err := resultStore.LoadRecord("old-run"); err == nil {
		t.Error("Expected old-run to be deleted")
	}
	if _, err := resultStore.LoadRecord("new-run"); err != nil {
		t.Errorf("Expected new-run to be kept, got %v", err)
	}
}

func TestResultsCleanCommand_Aborted(t *testing.T) {
	tmpDir := t.TempDir()
	useDataDir(t, tmpDir)
	saveTestRecord(t, tmpDir, "old-run", time.Now().AddDate(0, 0, -30))

	keepLast = 0
	olderThanDays = 7
	forceClean = false
	defer func() { olderThanDays = 0 }()

	cmd, out := testCommand()
	cmd.SetIn(strings.NewReader("n\n"))
	if err := runCleanResults(cmd, nil); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !strings.Contains(out.String(), "Aborted.") {
		t.Errorf("Expected abort message: %q", out.String())
	}

	resultStore, _ := store.NewFSStore(tmpDir)
	if _, err := resultStore.LoadRecord("old-run"); err != nil {
		t.Errorf("Expected old-run to be kept, got %v", err)
	}
}
