package storage

import (
	"math/big"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSetGetHas(t *testing.T) {
	s := openTestStore(t)

	if _, ok, err := s.Get([]byte("missing")); err != nil || ok {
		t.Fatalf("expected absent key, got ok=%v err=%v", ok, err)
	}

	if err := s.Set([]byte("k1"), []byte("v1")); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := s.Get([]byte("k1"))
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if string(got) != "v1" {
		t.Errorf("got %q, want v1", got)
	}

	has, err := s.Has([]byte("k1"))
	if err != nil || !has {
		t.Errorf("has: got %v err=%v", has, err)
	}
}

func TestCommitBatchVisibility(t *testing.T) {
	s := openTestStore(t)

	kvs := []KV{
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("b"), Value: []byte("2")},
		{Key: []byte("c"), Value: []byte("3")},
	}
	if err := s.Commit(kvs); err != nil {
		t.Fatalf("commit: %v", err)
	}

	for _, kv := range kvs {
		got, ok, err := s.Get(kv.Key)
		if err != nil || !ok {
			t.Fatalf("get %s: ok=%v err=%v", kv.Key, ok, err)
		}
		if string(got) != string(kv.Value) {
			t.Errorf("key %s: got %q want %q", kv.Key, got, kv.Value)
		}
	}
}

func TestScanPrefix(t *testing.T) {
	s := openTestStore(t)

	pairs := map[string]string{
		"bal:x:1": "10",
		"bal:x:2": "20",
		"bal:y:1": "30",
		"tot:x":   "30",
	}
	for k, v := range pairs {
		if err := s.Set([]byte(k), []byte(v)); err != nil {
			t.Fatalf("set %s: %v", k, err)
		}
	}

	seen := make(map[string]string)
	err := s.Scan([]byte("bal:x:"), func(key, value []byte) error {
		seen[string(key)] = string(value)
		return nil
	})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(seen) != 2 {
		t.Fatalf("scan matched %d keys, want 2: %v", len(seen), seen)
	}
	if seen["bal:x:1"] != "10" || seen["bal:x:2"] != "20" {
		t.Errorf("unexpected scan result: %v", seen)
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Set([]byte("durable"), []byte("yes")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	got, ok, err := s2.Get([]byte("durable"))
	if err != nil || !ok {
		t.Fatalf("get after reopen: ok=%v err=%v", ok, err)
	}
	if string(got) != "yes" {
		t.Errorf("got %q, want yes", got)
	}
}

func TestEncodeDecodeBig(t *testing.T) {
	cases := []*big.Int{
		big.NewInt(0),
		big.NewInt(1),
		big.NewInt(1_000_000_000_000_000_000),
		new(big.Int).Exp(big.NewInt(10), big.NewInt(30), nil),
	}
	for _, v := range cases {
		got := DecodeBig(EncodeBig(v))
		if got.Cmp(v) != 0 {
			t.Errorf("roundtrip %s: got %s", v, got)
		}
	}

	if got := DecodeBig([]byte("not a number")); got.Sign() != 0 {
		t.Errorf("malformed value decoded to %s, want 0", got)
	}
	if got := DecodeBig(nil); got.Sign() != 0 {
		t.Errorf("nil value decoded to %s, want 0", got)
	}
}
