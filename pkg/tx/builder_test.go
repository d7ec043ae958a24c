package tx

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
)

func TestBuild_ChangeOutput(t *testing.T) {
	from, to := legacyAddr(t, testKey(t, 1)), legacyAddr(t, testKey(t, 2))
	change := legacyAddr(t, testKey(t, 3))

	req, err := Build([]Input{inputFor(t, from, 1, 150000)}, to, 100000, 20000, change)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	if len(req.Outputs) != 2 {
		t.Fatalf("outputs = %d, want 2", len(req.Outputs))
	}
	if req.Outputs[0].Address != to || req.Outputs[0].Value != 100000 {
		t.Errorf("destination output = %+v", req.Outputs[0])
	}
	if req.ChangeIndex() != 1 {
		t.Errorf("ChangeIndex() = %d, want 1", req.ChangeIndex())
	}
	if req.Outputs[1].Address != change || req.Change() != 30000 {
		t.Errorf("change output = %+v", req.Outputs[1])
	}
	if req.Fee != 20000 || req.FoldedDust != 0 {
		t.Errorf("fee = %v, folded = %v", req.Fee, req.FoldedDust)
	}
	if err := req.Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
}

func TestBuild_InsufficientInputValue(t *testing.T) {
	from, to := legacyAddr(t, testKey(t, 1)), legacyAddr(t, testKey(t, 2))

	_, err := Build([]Input{inputFor(t, from, 1, 100000)}, to, 100000, 20000, from)
	if !errors.Is(err, ErrInsufficientInputValue) {
		t.Errorf("expected ErrInsufficientInputValue, got: %v", err)
	}
}

func TestBuild_Boundary(t *testing.T) {
	from, to := legacyAddr(t, testKey(t, 1)), legacyAddr(t, testKey(t, 2))
	const amount, fee = btcutil.Amount(100000), btcutil.Amount(20000)

	_, err := Build([]Input{inputFor(t, from, 1, amount+fee-1)}, to, amount, fee, from)
	if !errors.Is(err, ErrInsufficientInputValue) {
		t.Errorf("total = amount+fee-1: expected ErrInsufficientInputValue, got: %v", err)
	}

	req, err := Build([]Input{inputFor(t, from, 1, amount+fee)}, to, amount, fee, from)
	if err != nil {
		t.Fatalf("total = amount+fee: Build() error: %v", err)
	}
	if len(req.Outputs) != 1 || req.ChangeIndex() != -1 || req.Change() != 0 {
		t.Errorf("exact spend should have no change output, got %d outputs", len(req.Outputs))
	}
}

func TestBuild_DustChangeFolded(t *testing.T) {
	from, to := legacyAddr(t, testKey(t, 1)), legacyAddr(t, testKey(t, 2))

	req, err := Build([]Input{inputFor(t, from, 1, 120100)}, to, 100000, 20000, from)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if len(req.Outputs) != 1 {
		t.Fatalf("outputs = %d, want 1", len(req.Outputs))
	}
	if req.Fee != 20100 || req.FoldedDust != 100 {
		t.Errorf("fee = %v folded = %v, want 20100 and 100 sat", req.Fee, req.FoldedDust)
	}
	if err := req.Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
}

func TestBuild_SmallChangeKept(t *testing.T) {
	from, to := legacyAddr(t, testKey(t, 1)), legacyAddr(t, testKey(t, 2))

	req, err := Build([]Input{inputFor(t, from, 1, 121000)}, to, 100000, 20000, from)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if req.Change() != 1000 {
		t.Errorf("change = %v, want 1000 sat", req.Change())
	}
}

func TestBuild_Rejects(t *testing.T) {
	from, to := legacyAddr(t, testKey(t, 1)), legacyAddr(t, testKey(t, 2))
	in := inputFor(t, from, 1, 150000)

	tests := []struct {
		name    string
		inputs  []Input
		dest    btcutil.Address
		amount  btcutil.Amount
		fee     btcutil.Amount
		change  btcutil.Address
		wantErr error
	}{
		{"no inputs", nil, to, 1000, 0, from, ErrNoInputs},
		{"duplicate input", []Input{in, in}, to, 1000, 0, from, ErrDuplicateInput},
		{"zero input value", []Input{inputFor(t, from, 2, 0)}, to, 1000, 0, from, ErrInvalidInputValue},
		{"empty script", []Input{{Value: 1000}}, to, 1000, 0, from, ErrUnsupportedScript},
		{"zero amount", []Input{in}, to, 0, 0, from, ErrInvalidAmount},
		{"negative amount", []Input{in}, to, -1, 0, from, ErrInvalidAmount},
		{"negative fee", []Input{in}, to, 1000, -1, from, ErrNegativeFee},
		{"dust destination", []Input{in}, to, 1, 0, from, ErrDustOutput},
		{"no destination", []Input{in}, nil, 1000, 0, from, ErrNoDestination},
		{"no change address", []Input{in}, to, 1000, 0, nil, ErrNoChangeAddress},
		{"amount above supply", []Input{in}, to, btcutil.MaxSatoshi + 1, 0, from, ErrValueOutOfRange},
		{"fee above supply", []Input{in}, to, 100000, math.MaxInt64, from, ErrValueOutOfRange},
		{"amount plus fee above supply", []Input{in}, to, btcutil.MaxSatoshi, 1, from, ErrValueOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.inputs, tt.dest, tt.amount, tt.fee, tt.change)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestBuild_KeepsInputOrder(t *testing.T) {
	from, to := legacyAddr(t, testKey(t, 1)), legacyAddr(t, testKey(t, 2))
	inputs := []Input{
		inputFor(t, from, 9, 5000),
		inputFor(t, from, 3, 50000),
		inputFor(t, from, 7, 70000),
	}

	req, err := Build(inputs, to, 100000, 1000, from)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	msg := req.UnsignedTx()
	for i, in := range inputs {
		if msg.TxIn[i].PreviousOutPoint != in.Outpoint {
			t.Errorf("input %d = %v, want %v", i, msg.TxIn[i].PreviousOutPoint, in.Outpoint)
		}
	}

	// Mutating the caller's slice must not reach the request.
	inputs[0].Value = 1
	if req.Inputs[0].Value != 5000 {
		t.Error("request shares the caller's input slice")
	}
}

func TestBuild_Deterministic(t *testing.T) {
	from, to := legacyAddr(t, testKey(t, 1)), segwitAddr(t, testKey(t, 2))
	inputs := []Input{inputFor(t, from, 1, 60000), inputFor(t, from, 2, 70000)}

	a, err := Build(inputs, to, 100000, 2000, from)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	b, err := Build(inputs, to, 100000, 2000, from)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if a.UnsignedTx().TxHash() != b.UnsignedTx().TxHash() {
		t.Error("identical builds produced different transactions")
	}
}

func TestBuild_Conservation(t *testing.T) {
	from, to := legacyAddr(t, testKey(t, 1)), legacyAddr(t, testKey(t, 2))
	rng := rand.New(rand.NewSource(1))

	for iter := 0; iter < 500; iter++ {
		n := 1 + rng.Intn(5)
		inputs := make([]Input, n)
		var total btcutil.Amount
		for i := range inputs {
			v := btcutil.Amount(1000 + rng.Int63n(1_000_000))
			inputs[i] = inputFor(t, from, byte(i+1), v)
			total += v
		}
		amount := btcutil.Amount(1000 + rng.Int63n(int64(total-1000)+1))
		fee := btcutil.Amount(rng.Int63n(int64(total-amount) + 1))

		req, err := Build(inputs, to, amount, fee, from)
		if err != nil {
			t.Fatalf("iter %d: Build(total=%v, amount=%v, fee=%v) error: %v", iter, total, amount, fee, err)
		}
		if req.TotalIn() != req.TotalOut()+req.Fee {
			t.Fatalf("iter %d: in %v != out %v + fee %v", iter, req.TotalIn(), req.TotalOut(), req.Fee)
		}
		if req.Fee < fee {
			t.Fatalf("iter %d: effective fee %v below requested %v", iter, req.Fee, fee)
		}
		if err := req.Validate(); err != nil {
			t.Fatalf("iter %d: Validate() error: %v", iter, err)
		}
	}
}

func TestValidate_Mismatch(t *testing.T) {
	from, to := legacyAddr(t, testKey(t, 1)), legacyAddr(t, testKey(t, 2))

	req, err := Build([]Input{inputFor(t, from, 1, 150000)}, to, 100000, 20000, from)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	req.Fee++
	if err := req.Validate(); !errors.Is(err, ErrValueMismatch) {
		t.Errorf("expected ErrValueMismatch, got: %v", err)
	}
	req.Fee--
	req.Outputs = nil
	if err := req.Validate(); !errors.Is(err, ErrNoOutputs) {
		t.Errorf("expected ErrNoOutputs, got: %v", err)
	}
}

func TestValidate_OutOfRange(t *testing.T) {
	from, to := legacyAddr(t, testKey(t, 1)), legacyAddr(t, testKey(t, 2))

	req, err := Build([]Input{inputFor(t, from, 1, 150000)}, to, 100000, 20000, from)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	req.Fee = math.MaxInt64
	if err := req.Validate(); !errors.Is(err, ErrValueOutOfRange) {
		t.Errorf("expected ErrValueOutOfRange, got: %v", err)
	}
}
