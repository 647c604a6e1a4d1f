package tx

import (
	"errors"
	"testing"

	"github.com/kgxledger/kgxledger/pkg/crypto"
	"github.com/kgxledger/kgxledger/pkg/types"
	"github.com/shopspring/decimal"
)

func validTx(t *testing.T) *Transaction {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	b := NewBuilder().
		AddInput(types.Outpoint{TxID: types.Hash{0x01}, Index: 0}).
		AddOutput(testAddress(t, 0xaa), decimal.NewFromInt(10))
	if err := b.Sign(key); err != nil {
		t.Fatalf("sign: %v", err)
	}
	return b.Build()
}

func TestValidateStructure_Valid(t *testing.T) {
	if err := validTx(t).ValidateStructure(); err != nil {
		t.Errorf("valid tx should pass: %v", err)
	}
}

func TestValidateStructure_NoInputs(t *testing.T) {
	txn := &Transaction{Outputs: []Output{{Address: testAddress(t, 0x01), Amount: decimal.NewFromInt(1)}}}
	if err := txn.ValidateStructure(); !errors.Is(err, ErrNoInputs) {
		t.Errorf("expected ErrNoInputs, got %v", err)
	}
}

func TestValidateStructure_NoOutputs(t *testing.T) {
	txn := &Transaction{Inputs: []Input{{PrevOut: types.Outpoint{TxID: types.Hash{0x01}}}}}
	if err := txn.ValidateStructure(); !errors.Is(err, ErrNoOutputs) {
		t.Errorf("expected ErrNoOutputs, got %v", err)
	}
}

func TestValidateStructure_DuplicateInput(t *testing.T) {
	key, _ := crypto.GenerateKey()
	b := NewBuilder().
		AddInput(types.Outpoint{TxID: types.Hash{0x01}, Index: 0}).
		AddInput(types.Outpoint{TxID: types.Hash{0x01}, Index: 0}).
		AddOutput(testAddress(t, 0x01), decimal.NewFromInt(1))
	b.Sign(key)
	if err := b.Build().ValidateStructure(); !errors.Is(err, ErrDuplicateInput) {
		t.Errorf("expected ErrDuplicateInput, got %v", err)
	}
}

func TestValidateStructure_ZeroOutput(t *testing.T) {
	key, _ := crypto.GenerateKey()
	b := NewBuilder().
		AddInput(types.Outpoint{TxID: types.Hash{0x01}, Index: 0}).
		AddOutput(testAddress(t, 0x01), decimal.Zero)
	b.Sign(key)
	if err := b.Build().ValidateStructure(); !errors.Is(err, ErrZeroOutput) {
		t.Errorf("expected ErrZeroOutput, got %v", err)
	}
}

func TestValidateStructure_UnsignedInputMissingPubKey(t *testing.T) {
	txn := NewBuilder().
		AddInput(types.Outpoint{TxID: types.Hash{0x01}, Index: 0}).
		AddOutput(testAddress(t, 0x01), decimal.NewFromInt(1)).
		Build()
	if err := txn.ValidateStructure(); !errors.Is(err, ErrMissingPubKey) {
		t.Errorf("expected ErrMissingPubKey, got %v", err)
	}
}

func TestValidateStructure_CoinbaseExempt(t *testing.T) {
	cb := Coinbase(testAddress(t, 0x01), 5)
	if err := cb.ValidateStructure(); err != nil {
		t.Errorf("coinbase should not require signature: %v", err)
	}
}

func TestVerifySignatures_Valid(t *testing.T) {
	if err := validTx(t).VerifySignatures(); err != nil {
		t.Errorf("valid signature should verify: %v", err)
	}
}

func TestVerifySignatures_Tampered(t *testing.T) {
	txn := validTx(t)
	txn.Outputs[0].Amount = decimal.NewFromInt(999999)
	if err := txn.VerifySignatures(); !errors.Is(err, ErrInvalidSig) {
		t.Errorf("tampered tx should fail signature verification, got %v", err)
	}
}

func TestIsCoinbase(t *testing.T) {
	cb := Coinbase(testAddress(t, 0x01), 1)
	if !cb.IsCoinbase() {
		t.Error("Coinbase() transaction should report IsCoinbase() true")
	}
	if validTx(t).IsCoinbase() {
		t.Error("regular transaction should report IsCoinbase() false")
	}
}
