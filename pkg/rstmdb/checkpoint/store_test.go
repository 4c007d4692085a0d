package checkpoint

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
)

// storeFactory builds a fresh store per test so both implementations run
// the same contract suite.
type storeFactory func(t *testing.T) Store

func testStoreContract(t *testing.T, newStore storeFactory) {
	t.Run("save and load", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		if err := s.Save("instance:order-001", 128); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		got, err := s.Load("instance:order-001")
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got != 128 {
			t.Errorf("Load() = %d, want 128", got)
		}
	})

	t.Run("overwrite", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		for _, off := range []int64{10, 20, 15} {
			if err := s.Save("w", off); err != nil {
				t.Fatalf("Save(%d) error = %v", off, err)
			}
		}
		got, err := s.Load("w")
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got != 15 {
			t.Errorf("Load() = %d, want 15 (last write wins)", got)
		}
	})

	t.Run("load missing", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		if _, err := s.Load("nope"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Load() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("list ordered", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		for _, w := range []string{"charlie", "alpha", "bravo"} {
			if err := s.Save(w, 1); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
		}
		infos, err := s.List()
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		want := []string{"alpha", "bravo", "charlie"}
		if len(infos) != len(want) {
			t.Fatalf("List() returned %d entries, want %d", len(infos), len(want))
		}
		for i, info := range infos {
			if info.Watch != want[i] {
				t.Errorf("List()[%d].Watch = %q, want %q", i, info.Watch, want[i])
			}
			if info.UpdatedAt.IsZero() {
				t.Errorf("List()[%d].UpdatedAt is zero", i)
			}
		}
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		if err := s.Save("w", 5); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		if err := s.Delete("w"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if _, err := s.Load("w"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Load() after Delete error = %v, want ErrNotFound", err)
		}
		if err := s.Delete("never-existed"); err != nil {
			t.Errorf("Delete(missing) error = %v, want nil", err)
		}
	})

	t.Run("closed store", func(t *testing.T) {
		s := newStore(t)
		if err := s.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
		if err := s.Save("w", 1); !errors.Is(err, ErrStoreClosed) {
			t.Errorf("Save() after Close error = %v, want ErrStoreClosed", err)
		}
	})

	t.Run("concurrent saves", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(n int64) {
				defer wg.Done()
				for off := int64(0); off < 50; off++ {
					_ = s.Save("shared", off)
				}
			}(int64(i))
		}
		wg.Wait()

		if _, err := s.Load("shared"); err != nil {
			t.Errorf("Load() after concurrent saves error = %v", err)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	testStoreContract(t, func(t *testing.T) Store {
		return NewMemoryStore()
	})
}

func TestSQLiteStore(t *testing.T) {
	testStoreContract(t, func(t *testing.T) Store {
		s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "offsets.db"))
		if err != nil {
			t.Fatalf("NewSQLiteStore() error = %v", err)
		}
		return s
	})
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "offsets.db")

	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	if err := s.Save("instance:order-001", 512); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	s2, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s2.Close()

	got, err := s2.Load("instance:order-001")
	if err != nil {
		t.Fatalf("Load() after reopen error = %v", err)
	}
	if got != 512 {
		t.Errorf("Load() = %d, want 512", got)
	}
}
