package devtree

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fakegpu/internal/logging"
)

func testTree() Tree {
	return Tree{
		DriverVersion: "535.104.05",
		Devices: []Device{
			{BusID: "0000:01:00.0", Model: "NVIDIA Tesla T4", UUID: "GPU-aaaa", Minor: 0},
			{BusID: "0000:02:00.0", Model: "NVIDIA Tesla T4", UUID: "GPU-bbbb", Minor: 1},
		},
	}
}

func newTestPublisher(t *testing.T) *Publisher {
	t.Helper()
	root := filepath.Join(t.TempDir(), "nvidia")
	return NewPublisher(root, logging.NewLogger(logging.LevelError))
}

func TestPublisher_PublishCreatesTree(t *testing.T) {
	p := newTestPublisher(t)

	if err := p.Publish(testTree()); err != nil {
		t.Fatalf("Expected publish to succeed, got: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(p.Root(), VersionFileName))
	if err != nil {
		t.Fatalf("Expected version file, got: %v", err)
	}
	if string(data) != "Driver Version: 535.104.05\n" {
		t.Errorf("Expected fixed version line, got: %q", string(data))
	}

	for _, busID := range []string{"0000:01:00.0", "0000:02:00.0"} {
		devDir := filepath.Join(p.Root(), GPUsDirName, busID)
		info, err := os.Stat(devDir)
		if err != nil {
			t.Fatalf("Expected device directory %s, got: %v", busID, err)
		}
		if !info.IsDir() {
			t.Errorf("Expected %s to be a directory", busID)
		}
	}
}

func TestPublisher_InformationFileContent(t *testing.T) {
	p := newTestPublisher(t)

	if err := p.Publish(testTree()); err != nil {
		t.Fatalf("Expected publish to succeed, got: %v", err)
	}

	path := filepath.Join(p.Root(), GPUsDirName, "0000:02:00.0", InformationFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Expected information file, got: %v", err)
	}

	content := string(data)
	for _, want := range []string{
		"Model:           NVIDIA Tesla T4",
		"GPU UUID:        GPU-bbbb",
		"Bus Location:    0000:02:00.0",
		"Device Minor:    1",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("Expected information file to contain %q, got:\n%s", want, content)
		}
	}
}

func TestPublisher_PublishTwice(t *testing.T) {
	p := newTestPublisher(t)

	if err := p.Publish(testTree()); err != nil {
		t.Fatalf("Expected first publish to succeed, got: %v", err)
	}

	if err := p.Publish(testTree()); !errors.Is(err, ErrAlreadyPublished) {
		t.Errorf("Expected ErrAlreadyPublished, got: %v", err)
	}
}

func TestPublisher_RemoveWithoutPublish(t *testing.T) {
	p := newTestPublisher(t)

	if err := p.Remove(); !errors.Is(err, ErrNotPublished) {
		t.Errorf("Expected ErrNotPublished, got: %v", err)
	}
}

func TestPublisher_PublishRemoveCycle(t *testing.T) {
	p := newTestPublisher(t)

	if err := p.Publish(testTree()); err != nil {
		t.Fatalf("Expected publish to succeed, got: %v", err)
	}

	if err := p.Remove(); err != nil {
		t.Fatalf("Expected remove to succeed, got: %v", err)
	}

	if _, err := os.Stat(p.Root()); !os.IsNotExist(err) {
		t.Errorf("Expected root gone after remove, got: %v", err)
	}

	// The cycle must be repeatable.
	if err := p.Publish(testTree()); err != nil {
		t.Errorf("Expected re-publish to succeed, got: %v", err)
	}
}

func TestPublisher_Status(t *testing.T) {
	p := newTestPublisher(t)

	st, err := p.Status()
	if err != nil {
		t.Fatalf("Expected status to succeed, got: %v", err)
	}
	if st.Published {
		t.Error("Expected unpublished status before publish")
	}

	if err := p.Publish(testTree()); err != nil {
		t.Fatalf("Expected publish to succeed, got: %v", err)
	}

	st, err = p.Status()
	if err != nil {
		t.Fatalf("Expected status to succeed, got: %v", err)
	}
	if !st.Published {
		t.Error("Expected published status after publish")
	}
	if st.DriverVersion != "535.104.05" {
		t.Errorf("Expected driver version 535.104.05, got: %q", st.DriverVersion)
	}
	if len(st.BusIDs) != 2 {
		t.Fatalf("Expected 2 bus ids, got: %v", st.BusIDs)
	}
	if st.BusIDs[0] != "0000:01:00.0" || st.BusIDs[1] != "0000:02:00.0" {
		t.Errorf("Expected sorted bus ids, got: %v", st.BusIDs)
	}
}

func TestPublisher_EmptyDeviceList(t *testing.T) {
	p := newTestPublisher(t)

	tree := Tree{DriverVersion: "535.104.05"}
	if err := p.Publish(tree); err != nil {
		t.Fatalf("Expected publish to succeed, got: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(p.Root(), GPUsDirName))
	if err != nil {
		t.Fatalf("Expected gpus directory, got: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected empty gpus directory, got %d entries", len(entries))
	}
}

func TestPublisher_InvalidBusID(t *testing.T) {
	p := newTestPublisher(t)

	tree := testTree()
	tree.Devices[1].BusID = "../escape"

	if err := p.Publish(tree); err == nil {
		t.Fatal("Expected publish to reject a path-escaping bus id")
	}

	// Nothing may be left behind after the failed attempt.
	if _, err := os.Stat(p.Root()); !os.IsNotExist(err) {
		t.Errorf("Expected no root after failed publish, got: %v", err)
	}

	parent := filepath.Dir(p.Root())
	entries, err := os.ReadDir(parent)
	if err != nil {
		t.Fatalf("Failed to list parent: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected no staging leftovers, got: %v", entries)
	}
}

func TestPublisher_DefaultRoot(t *testing.T) {
	p := NewPublisher("", logging.NewLogger(logging.LevelError))
	if p.Root() != DefaultRoot {
		t.Errorf("Expected default root %s, got: %s", DefaultRoot, p.Root())
	}
}

func TestValidateBusID(t *testing.T) {
	valid := []string{"0000:01:00.0", "0000:ff:1f.7"}
	for _, busID := range valid {
		if err := validateBusID(busID); err != nil {
			t.Errorf("Expected %q valid, got: %v", busID, err)
		}
	}

	invalid := []string{"", ".", "..", "a/b", `a\b`}
	for _, busID := range invalid {
		if err := validateBusID(busID); err == nil {
			t.Errorf("Expected %q rejected", busID)
		}
	}
}
