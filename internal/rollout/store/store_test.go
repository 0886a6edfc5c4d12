package store

import (
	"path/filepath"
	"testing"
)

func TestFileStoreReadEmptyReturnsNoActionID(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(filepath.Join(dir, "actionid"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	id, err := s.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if id != NoActionID {
		t.Fatalf("id = %d, want %d", id, NoActionID)
	}
}

func TestFileStoreWriteThenRead(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(filepath.Join(dir, "actionid"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	if err := s.Write(42); err != nil {
		t.Fatalf("Write: %v", err)
	}

	id, err := s.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if id != 42 {
		t.Fatalf("id = %d, want 42", id)
	}

	if err := s.Write(43); err != nil {
		t.Fatalf("Write overwrite: %v", err)
	}
	id, err = s.Read()
	if err != nil || id != 43 {
		t.Fatalf("Read after overwrite: id=%d err=%v", id, err)
	}
}
