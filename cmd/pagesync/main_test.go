package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pagesync/internal/config"
	"pagesync/internal/record"
	"pagesync/internal/store"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	configPath := filepath.Join(base, "pagesync.toml")
	body := fmt.Sprintf(`[paths]
data_dir = %q
log_dir = %q

[bulk_export]
dir = %q

[graph.pages.mypage]
page_id = "111"
access_token = "token"
`,
		filepath.Join(base, "data"),
		filepath.Join(base, "logs"),
		filepath.Join(base, "exports"))
	if err := os.WriteFile(configPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return configPath
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	cmd.SetContext(context.Background())
	err := cmd.Execute()
	return buf.String(), err
}

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")
	output, err := runCommand(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(output, "Wrote sample configuration") {
		t.Fatalf("unexpected output %q", output)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected sample config written: %v", err)
	}

	if _, err := runCommand(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected error without --overwrite")
	}
}

func TestConfigValidateReportsPages(t *testing.T) {
	configPath := writeTestConfig(t)
	output, err := runCommand(t, "--config", configPath, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(output, "Pages configured: 1") {
		t.Fatalf("unexpected output %q", output)
	}
	if !strings.Contains(output, "Configuration valid") {
		t.Fatalf("unexpected output %q", output)
	}
}

func TestPostsCommandListsSeededPosts(t *testing.T) {
	configPath := writeTestConfig(t)
	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	publish := time.Date(2025, 10, 1, 4, 34, 0, 0, time.UTC)
	now := time.Now().UTC()
	post := &store.Post{
		PageKey:         "mypage",
		ID:              "9001",
		Title:           "Morning update",
		Type:            record.TypePhoto,
		PublishTime:     publish,
		PublishMinute:   record.MinuteKey(publish),
		Metrics:         record.Metrics{Reactions: 12, Comments: 3, Shares: 1},
		TotalEngagement: 16,
		CreatedAt:       now,
		LastMergedAt:    now,
	}
	if err := st.InsertPost(context.Background(), post); err != nil {
		t.Fatalf("InsertPost: %v", err)
	}
	st.Close()

	output, err := runCommand(t, "--config", configPath, "posts", "mypage")
	if err != nil {
		t.Fatalf("posts: %v", err)
	}
	if !strings.Contains(output, "9001") || !strings.Contains(output, "Morning update") {
		t.Fatalf("expected post listed, got %q", output)
	}
	if !strings.Contains(output, "1 posts") {
		t.Fatalf("expected count footer, got %q", output)
	}
}

func TestPostsCommandEmptyPage(t *testing.T) {
	configPath := writeTestConfig(t)
	output, err := runCommand(t, "--config", configPath, "posts", "mypage")
	if err != nil {
		t.Fatalf("posts: %v", err)
	}
	if !strings.Contains(output, "No posts for page mypage") {
		t.Fatalf("unexpected output %q", output)
	}
}

func TestSyncRejectsUnknownPage(t *testing.T) {
	configPath := writeTestConfig(t)
	_, err := runCommand(t, "--config", configPath, "sync", "nosuchpage")
	if err == nil || !strings.Contains(err.Error(), "not configured") {
		t.Fatalf("expected unknown page error, got %v", err)
	}
}

func TestSyncRejectsInvalidWindow(t *testing.T) {
	configPath := writeTestConfig(t)
	_, err := runCommand(t, "--config", configPath, "sync", "--since", "2025-10-31", "--until", "2025-10-01")
	if err == nil || !strings.Contains(err.Error(), "--until must be after --since") {
		t.Fatalf("expected window error, got %v", err)
	}
}

func TestStatsCommandOnEmptyStore(t *testing.T) {
	configPath := writeTestConfig(t)
	output, err := runCommand(t, "--config", configPath, "stats")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if !strings.Contains(output, "Database:") {
		t.Fatalf("unexpected output %q", output)
	}
}
