package utxo

import (
	"testing"

	"github.com/kgxledger/kgxledger/internal/storage"
	"github.com/kgxledger/kgxledger/pkg/types"
	"github.com/shopspring/decimal"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(storage.NewMemory())
}

func testEntry(txByte byte, index uint32, a byte, amount string) *Entry {
	return &Entry{
		Outpoint: types.Outpoint{TxID: types.Hash{txByte}, Index: index},
		Address:  addr(a),
		Amount:   decimal.RequireFromString(amount),
	}
}

func TestStore_PutAndGet(t *testing.T) {
	s := newTestStore(t)
	e := testEntry(0x01, 0, 0x02, "12.5")
	if err := s.Put(e); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := s.Get(e.Outpoint)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Address != e.Address || !got.Amount.Equal(e.Amount) {
		t.Errorf("Get returned %+v, want %+v", got, e)
	}
}

func TestStore_GetNonexistent(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(types.Outpoint{TxID: types.Hash{0xff}, Index: 0})
	if err == nil {
		t.Error("expected error for nonexistent outpoint")
	}
}

func TestStore_Has(t *testing.T) {
	s := newTestStore(t)
	e := testEntry(0x01, 0, 0x02, "1")
	if ok, _ := s.Has(e.Outpoint); ok {
		t.Error("Has should report false before Put")
	}
	if err := s.Put(e); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if ok, _ := s.Has(e.Outpoint); !ok {
		t.Error("Has should report true after Put")
	}
}

func TestStore_Delete(t *testing.T) {
	s := newTestStore(t)
	e := testEntry(0x01, 0, 0x02, "1")
	if err := s.Put(e); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Delete(e.Outpoint); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if ok, _ := s.Has(e.Outpoint); ok {
		t.Error("outpoint should be gone after Delete")
	}
	entries, err := s.GetByAddress(e.Address)
	if err != nil {
		t.Fatalf("GetByAddress failed: %v", err)
	}
	if len(entries) != 0 {
		t.Error("address index should be cleaned up after Delete")
	}
}

func TestStore_MultipleOutputsSameAddress(t *testing.T) {
	s := newTestStore(t)
	a := addr(0x05)
	e1 := &Entry{Outpoint: types.Outpoint{TxID: types.Hash{0x01}, Index: 0}, Address: a, Amount: decimal.RequireFromString("1")}
	e2 := &Entry{Outpoint: types.Outpoint{TxID: types.Hash{0x02}, Index: 0}, Address: a, Amount: decimal.RequireFromString("2")}
	if err := s.Put(e1); err != nil {
		t.Fatalf("Put e1 failed: %v", err)
	}
	if err := s.Put(e2); err != nil {
		t.Fatalf("Put e2 failed: %v", err)
	}

	entries, err := s.GetByAddress(a)
	if err != nil {
		t.Fatalf("GetByAddress failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
}

func TestStore_ForEach(t *testing.T) {
	s := newTestStore(t)
	want := []*Entry{
		testEntry(0x01, 0, 0x02, "1"),
		testEntry(0x03, 0, 0x04, "2"),
		testEntry(0x05, 1, 0x06, "3"),
	}
	for _, e := range want {
		if err := s.Put(e); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	count := 0
	err := s.ForEach(func(e *Entry) error {
		count++
		return nil
	})
	if err != nil {
		t.Fatalf("ForEach failed: %v", err)
	}
	if count != len(want) {
		t.Errorf("ForEach visited %d entries, want %d", count, len(want))
	}
}

func TestStore_ClearAll(t *testing.T) {
	s := newTestStore(t)
	e := testEntry(0x01, 0, 0x02, "1")
	if err := s.Put(e); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.ClearAll(); err != nil {
		t.Fatalf("ClearAll failed: %v", err)
	}
	if ok, _ := s.Has(e.Outpoint); ok {
		t.Error("ClearAll should remove every entry")
	}
	entries, err := s.GetByAddress(e.Address)
	if err != nil {
		t.Fatalf("GetByAddress failed: %v", err)
	}
	if len(entries) != 0 {
		t.Error("ClearAll should remove the address index too")
	}
}

func TestStore_ImplementsSet(t *testing.T) {
	var _ Set = (*Store)(nil)
}

func TestStore_LoadAndPersistSnapshot(t *testing.T) {
	s := newTestStore(t)
	e1 := testEntry(0x01, 0, 0x02, "1")
	e2 := testEntry(0x03, 0, 0x04, "2")
	if err := s.Put(e1); err != nil {
		t.Fatalf("Put e1 failed: %v", err)
	}
	if err := s.Put(e2); err != nil {
		t.Fatalf("Put e2 failed: %v", err)
	}

	snap, err := s.LoadSnapshot()
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	if snap.Len() != 2 {
		t.Fatalf("expected 2 entries in snapshot, got %d", snap.Len())
	}

	snap.Delete(e1.Outpoint)
	e3 := testEntry(0x05, 0, 0x06, "3")
	snap.Put(e3)

	if err := s.PersistSnapshot(snap); err != nil {
		t.Fatalf("PersistSnapshot failed: %v", err)
	}
	if ok, _ := s.Has(e1.Outpoint); ok {
		t.Error("e1 should have been removed by PersistSnapshot")
	}
	if ok, _ := s.Has(e2.Outpoint); !ok {
		t.Error("e2 should still be present after PersistSnapshot")
	}
	if ok, _ := s.Has(e3.Outpoint); !ok {
		t.Error("e3 should have been added by PersistSnapshot")
	}
}
