package kv_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/luizmgoncw/twist2-gui-controller/pkg/kv"
)

func backends(t *testing.T) map[string]kv.Store {
	t.Helper()
	b, err := kv.NewBadger(kv.BadgerOptions{InMemory: true})
	if err != nil {
		t.Fatalf("NewBadger: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return map[string]kv.Store{
		"memory": kv.NewMemory(),
		"badger": b,
	}
}

func TestGetSetDelete(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			key := kv.Key{"poses", "wave"}
			if _, err := s.Get(ctx, key); !errors.Is(err, kv.ErrNotFound) {
				t.Fatalf("Get missing: err = %v, want ErrNotFound", err)
			}
			if err := s.Set(ctx, key, []byte("a")); err != nil {
				t.Fatal(err)
			}
			if err := s.Set(ctx, key, []byte("b")); err != nil {
				t.Fatal(err)
			}
			got, err := s.Get(ctx, key)
			if err != nil {
				t.Fatal(err)
			}
			if string(got) != "b" {
				t.Fatalf("Get = %q, want %q", got, "b")
			}
			if err := s.Delete(ctx, key); err != nil {
				t.Fatal(err)
			}
			if _, err := s.Get(ctx, key); !errors.Is(err, kv.ErrNotFound) {
				t.Fatalf("Get after delete: err = %v", err)
			}
			if err := s.Delete(ctx, kv.Key{"poses", "none"}); err != nil {
				t.Fatalf("Delete missing: %v", err)
			}
		})
	}
}

func TestListPrefix(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			err := s.BatchSet(ctx, []kv.Entry{
				{Key: kv.Key{"poses", "b"}, Value: []byte("2")},
				{Key: kv.Key{"poses", "a/with/slash"}, Value: []byte("1")},
				{Key: kv.Key{"posesx", "c"}, Value: []byte("3")},
				{Key: kv.Key{"scenes", "wave"}, Value: []byte("4")},
			})
			if err != nil {
				t.Fatal(err)
			}
			var got []kv.Key
			for e, err := range s.List(ctx, kv.Key{"poses"}) {
				if err != nil {
					t.Fatal(err)
				}
				got = append(got, e.Key)
			}
			want := []kv.Key{{"poses", "a/with/slash"}, {"poses", "b"}}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("List (-want +got):\n%s", diff)
			}

			n := 0
			for range s.List(ctx, nil) {
				n++
				break
			}
			if n != 1 {
				t.Errorf("early break yielded %d entries", n)
			}
		})
	}
}

func TestBadgerOnDisk(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := kv.NewBadger(kv.BadgerOptions{Dir: dir})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Set(ctx, kv.Key{"scenes", "wave"}, []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = kv.NewBadger(kv.BadgerOptions{Dir: dir})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	got, err := s.Get(ctx, kv.Key{"scenes", "wave"})
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "x" {
		t.Fatalf("Get = %q", got)
	}
}

func TestNewBadgerRequiresDir(t *testing.T) {
	if _, err := kv.NewBadger(kv.BadgerOptions{}); err == nil {
		t.Fatal("expected error without Dir")
	}
}
