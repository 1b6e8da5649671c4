package oml

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ghalamif/AegisWatt/internal/ports"
)

func TestFileOpenerPath(t *testing.T) {
	o := NewFileOpener("/data/{experiment_id}/consumption/{node}.oml", 122213)
	if got := o.Path("m3-7.grenoble.iot-lab.info"); got != "/data/122213/consumption/m3-7.oml" {
		t.Fatalf("unexpected path %q", got)
	}
}

func TestFileOpenerExpandsHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	o := NewFileOpener("", 5)
	want := filepath.Join(home, ".iot-lab/5/consumption/m3-1.oml")
	if got := o.Path("m3-1"); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestFileOpenerMissingSource(t *testing.T) {
	o := NewFileOpener(filepath.Join(t.TempDir(), "{node}.oml"), 1)
	_, err := o.Open("m3-1")
	if !errors.Is(err, ports.ErrNoSource) {
		t.Fatalf("expected ErrNoSource, got %v", err)
	}
}

func TestFileSourceTailsAppendedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "m3-1.oml")
	header := "protocol: 5.1\nschema: 1 control_node_measures_consumption\n\n"
	if err := os.WriteFile(path, []byte(header), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	src, err := NewFileOpener(filepath.Join(dir, "{node}.oml"), 1).Open("m3-1")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer src.Close()

	lines, err := src.ReadAvailable()
	if err != nil || len(lines) != 3 {
		t.Fatalf("expected header lines, got %v (%v)", lines, err)
	}

	lines, err = src.ReadAvailable()
	if err != nil || len(lines) != 0 {
		t.Fatalf("expected no new data, got %v (%v)", lines, err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("append open: %v", err)
	}
	defer f.Close()

	record := "1.0\t1\t1\t100\t0\t2.0\t5.0\t0.4"
	if _, err := f.WriteString(record + "\n" + record[:10]); err != nil {
		t.Fatalf("append: %v", err)
	}
	lines, _ = src.ReadAvailable()
	if len(lines) != 1 || lines[0] != record {
		t.Fatalf("expected one complete record, got %q", lines)
	}

	if _, err := f.WriteString(record[10:] + "\n"); err != nil {
		t.Fatalf("append: %v", err)
	}
	lines, _ = src.ReadAvailable()
	if len(lines) != 1 || lines[0] != record {
		t.Fatalf("partial line was not reassembled: %q", lines)
	}
	if strings.Contains(lines[0], "\n") {
		t.Fatalf("line kept its terminator")
	}
}
