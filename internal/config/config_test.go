package config

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	c, err := Load(viper.New(), "")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if c.Database.DSN != filepath.Join(".taskboard", "tasks.db") {
		t.Errorf("Database.DSN = %q", c.Database.DSN)
	}
	if c.Realtime.Debounce != 100*time.Millisecond || c.Realtime.QueueSize != 64 {
		t.Errorf("Realtime = %+v", c.Realtime)
	}
	if c.RequestTimeout != 30*time.Second {
		t.Errorf("RequestTimeout = %v", c.RequestTimeout)
	}
	if c.Server.Port != 8080 {
		t.Errorf("Server.Port = %d", c.Server.Port)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "taskboard.toml")
	content := `
request_timeout = "5s"

[database]
dsn = "postgres://localhost/tasks"

[realtime]
debounce = "250ms"
tables = ["tasks", "comments"]

[session]
user = "u1"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	t.Setenv("TASKBOARD_SESSION_USER", "u9")
	t.Setenv("TASKBOARD_SERVER_PORT", "9090")

	c, err := Load(viper.New(), path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if c.Database.DSN != "postgres://localhost/tasks" {
		t.Errorf("Database.DSN = %q", c.Database.DSN)
	}
	if c.Realtime.Debounce != 250*time.Millisecond {
		t.Errorf("Debounce = %v", c.Realtime.Debounce)
	}
	if strings.Join(c.Realtime.Tables, ",") != "tasks,comments" {
		t.Errorf("Tables = %v", c.Realtime.Tables)
	}
	if c.Session.User != "u9" {
		t.Errorf("Session.User = %q, want env override", c.Session.User)
	}
	if c.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want env override", c.Server.Port)
	}
	if c.RequestTimeout != 5*time.Second {
		t.Errorf("RequestTimeout = %v", c.RequestTimeout)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(viper.New(), filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("Load() with a missing explicit file should fail")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "empty dsn", mutate: func(c *Config) { c.Database.DSN = " " }, wantErr: true},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 70000 }, wantErr: true},
		{name: "negative debounce", mutate: func(c *Config) { c.Realtime.Debounce = -time.Second }, wantErr: true},
		{name: "negative queue", mutate: func(c *Config) { c.Realtime.QueueSize = -1 }, wantErr: true},
		{name: "negative timeout", mutate: func(c *Config) { c.RequestTimeout = -1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{Database: DatabaseConfig{DSN: "x.db"}, Server: ServerConfig{Port: 8080}}
			tt.mutate(c)
			if err := c.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWrite_RoundTrip(t *testing.T) {
	t.Chdir(t.TempDir())
	defaults, err := Load(viper.New(), "")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	defaults.Session.User = "u1"
	defaults.Realtime.Debounce = 2 * time.Second

	path := filepath.Join(t.TempDir(), "conf", "taskboard.toml")
	if err := Write(defaults, path, false); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	if err := Write(defaults, path, false); err == nil {
		t.Error("Write() should refuse to overwrite without force")
	}
	if err := Write(defaults, path, true); err != nil {
		t.Errorf("Write(force) failed: %v", err)
	}

	c, err := Load(viper.New(), path)
	if err != nil {
		t.Fatalf("Load() of written file failed: %v", err)
	}
	if c.Session.User != "u1" || c.Realtime.Debounce != 2*time.Second {
		t.Errorf("round trip lost values: %+v", c)
	}
}

func TestLogWriter(t *testing.T) {
	if w := (&LogConfig{}).LogWriter(false); w != io.Discard {
		t.Errorf("LogWriter() with no sink = %T, want io.Discard", w)
	}
	if w := (&LogConfig{}).LogWriter(true); w != os.Stderr {
		t.Errorf("LogWriter(verbose) = %T, want stderr", w)
	}

	file := filepath.Join(t.TempDir(), "tb.log")
	w := (&LogConfig{File: file, MaxSizeMB: 1}).LogWriter(false)
	lj, ok := w.(*lumberjack.Logger)
	if !ok {
		t.Fatalf("LogWriter(file) = %T, want *lumberjack.Logger", w)
	}
	defer lj.Close()

	NewLogger(w, "store").Println("hello")
	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("ReadFile() failed: %v", err)
	}
	if !strings.Contains(string(data), "[store] ") || !strings.Contains(string(data), "hello") {
		t.Errorf("log file = %q", data)
	}
}
