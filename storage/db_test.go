package storage

import (
	"bytes"
	"testing"
)

func TestMemDBRoundTrip(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	key := []byte("account:status")
	if ok, err := db.Has(key); err != nil || ok {
		t.Fatalf("fresh db should not contain key: ok=%v err=%v", ok, err)
	}
	if _, err := db.Get(key); err == nil {
		t.Fatalf("get of missing key should fail")
	}
	if err := db.Put(key, []byte{0x01}); err != nil {
		t.Fatalf("put: %v", err)
	}
	ok, err := db.Has(key)
	if err != nil || !ok {
		t.Fatalf("has after put: ok=%v err=%v", ok, err)
	}
	value, err := db.Get(key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(value, []byte{0x01}) {
		t.Fatalf("unexpected value: %x", value)
	}
}

func TestMemDBCopiesValues(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	key := []byte("k")
	original := []byte{0xAA, 0xBB}
	if err := db.Put(key, original); err != nil {
		t.Fatalf("put: %v", err)
	}
	original[0] = 0x00
	stored, err := db.Get(key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored[0] != 0xAA {
		t.Fatalf("stored value aliased caller slice")
	}
	stored[1] = 0x00
	again, err := db.Get(key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if again[1] != 0xBB {
		t.Fatalf("returned value aliased stored slice")
	}
}

func TestLevelDBRoundTrip(t *testing.T) {
	db, err := NewLevelDB(t.TempDir())
	if err != nil {
		t.Fatalf("open leveldb: %v", err)
	}
	defer db.Close()

	key := []byte("reserve:base")
	if ok, err := db.Has(key); err != nil || ok {
		t.Fatalf("fresh db should not contain key: ok=%v err=%v", ok, err)
	}
	if err := db.Put(key, []byte("1000000000")); err != nil {
		t.Fatalf("put: %v", err)
	}
	value, err := db.Get(key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(value) != "1000000000" {
		t.Fatalf("unexpected value: %s", value)
	}
}
