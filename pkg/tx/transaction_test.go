package tx

import (
	"encoding/json"
	"testing"

	"github.com/kgxledger/kgxledger/pkg/crypto"
	"github.com/kgxledger/kgxledger/pkg/types"
	"github.com/shopspring/decimal"
)

func testAddress(t *testing.T, seed byte) types.Address {
	t.Helper()
	var a types.Address
	a[0] = seed
	return a
}

func TestCoinbase(t *testing.T) {
	addr := testAddress(t, 0x01)
	cb := Coinbase(addr, 7)

	if !cb.IsCoinbase() {
		t.Fatal("Coinbase() output is not recognized as coinbase")
	}
	if len(cb.Inputs) != 1 {
		t.Fatalf("coinbase should have exactly 1 input, got %d", len(cb.Inputs))
	}
	if cb.Inputs[0].PrevOut.Index != 7 {
		t.Errorf("coinbase input index = %d, want block index 7", cb.Inputs[0].PrevOut.Index)
	}
	if len(cb.Outputs) != 1 || cb.Outputs[0].Address != addr {
		t.Fatal("coinbase output does not pay minerAddress")
	}
	if !cb.Outputs[0].Amount.Equal(CoinbaseAmount) {
		t.Errorf("coinbase amount = %s, want %s", cb.Outputs[0].Amount, CoinbaseAmount)
	}
}

func TestCoinbase_UniqueIDPerHeight(t *testing.T) {
	addr := testAddress(t, 0x02)
	a := Coinbase(addr, 1)
	b := Coinbase(addr, 2)
	if a.ID() == b.ID() {
		t.Error("coinbase transactions at different heights should have different ids")
	}
}

func TestID_Deterministic(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	b := NewBuilder().
		AddInput(types.Outpoint{TxID: types.Hash{0x01}, Index: 0}).
		AddOutput(testAddress(t, 0x03), decimal.NewFromInt(5))
	if err := b.Sign(key); err != nil {
		t.Fatalf("sign: %v", err)
	}
	txn := b.Build()

	if txn.ID() != txn.ID() {
		t.Error("ID() is not deterministic")
	}
	if txn.ID() != txn.Hash() {
		t.Error("Hash() should alias ID()")
	}
}

func TestSigningBytes_AmountScaleCanonicalizes(t *testing.T) {
	out1 := Output{Address: testAddress(t, 0x04), Amount: decimal.NewFromInt(1)}
	out2 := Output{Address: testAddress(t, 0x04), Amount: decimal.NewFromFloat(1.0)}
	t1 := &Transaction{Version: 1, Inputs: []Input{{PrevOut: types.Outpoint{TxID: types.Hash{0x09}}}}, Outputs: []Output{out1}}
	t2 := &Transaction{Version: 1, Inputs: []Input{{PrevOut: types.Outpoint{TxID: types.Hash{0x09}}}}, Outputs: []Output{out2}}
	if t1.ID() != t2.ID() {
		t.Error("1 and 1.0 should canonicalize to the same signing bytes")
	}
}

func TestTotalOutputValue(t *testing.T) {
	txn := &Transaction{
		Outputs: []Output{
			{Amount: decimal.NewFromInt(10)},
			{Amount: decimal.NewFromInt(5)},
		},
	}
	want := decimal.NewFromInt(15)
	if !txn.TotalOutputValue().Equal(want) {
		t.Errorf("TotalOutputValue() = %s, want %s", txn.TotalOutputValue(), want)
	}
}

func TestRawListRoundTrip(t *testing.T) {
	addr := testAddress(t, 0x05)
	cb := Coinbase(addr, 3)
	raw, err := ToRawList([]*Transaction{cb})
	if err != nil {
		t.Fatalf("ToRawList: %v", err)
	}
	back, err := FromRawList(raw)
	if err != nil {
		t.Fatalf("FromRawList: %v", err)
	}
	if len(back) != 1 || back[0].ID() != cb.ID() {
		t.Error("raw round trip did not reproduce the original transaction id")
	}
}

func TestOutput_JSONRoundTrip(t *testing.T) {
	out := Output{Address: testAddress(t, 0x06), Amount: decimal.NewFromFloat(12.5)}
	b, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Output
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Address != out.Address || !back.Amount.Equal(out.Amount) {
		t.Errorf("round trip mismatch: got %+v, want %+v", back, out)
	}
}
