package types

import (
	"encoding/json"
	"math/big"
	"testing"
)

func TestAmountArithmetic(t *testing.T) {
	tests := []struct {
		name     string
		op       func() Amount
		expected Amount
	}{
		{"Add", func() Amount { return NewAmount(100).Add(NewAmount(200)) }, NewAmount(300)},
		{"Sub", func() Amount { return NewAmount(500).Sub(NewAmount(200)) }, NewAmount(300)},
		{"SubClamp", func() Amount { return NewAmount(100).SubClamp(NewAmount(200)) }, ZeroAmount()},
		{"MulUint64", func() Amount { return NewAmount(100).MulUint64(3) }, NewAmount(300)},
		{"DivUint64 truncates", func() Amount { return NewAmount(1000).DivUint64(3) }, NewAmount(333)},
		{"MulDiv truncates", func() Amount { return NewAmount(10).MulDiv(NewAmount(10), NewAmount(3)) }, NewAmount(33)},
		{"Zero value", func() Amount { return Amount{}.Add(NewAmount(7)) }, NewAmount(7)},
		{"Sum", func() Amount { return Sum(NewAmount(1), NewAmount(2), NewAmount(3)) }, NewAmount(6)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.op()
			if !got.Equal(tt.expected) {
				t.Errorf("got %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestAmountImmutable(t *testing.T) {
	a := NewAmount(10)
	b := NewAmount(5)
	_ = a.Add(b)
	_ = a.MulUint64(9)
	if !a.Equal(NewAmount(10)) || !b.Equal(NewAmount(5)) {
		t.Fatalf("operands mutated: a=%s b=%s", a, b)
	}
}

func TestAmountSubPanicsOnUnderflow(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on negative result")
		}
	}()
	_ = NewAmount(1).Sub(NewAmount(2))
}

func TestAmountMulDivBeyond128Bits(t *testing.T) {
	// deposit * rate * elapsed overflows 128 bits before the division.
	deposit := MustParseAmount("340282366920938463463374607431768211455") // 2^128 - 1
	got := deposit.MulDiv(NewAmount(100*31_536_000), NewAmount(100*31_536_000))
	if !got.Equal(deposit) {
		t.Errorf("got %s, want %s", got, deposit)
	}
	if !deposit.FitsUint128() {
		t.Error("expected max u128 to fit")
	}
	if deposit.Add(NewAmount(1)).FitsUint128() {
		t.Error("expected 2^128 not to fit")
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"0", "0", false},
		{" 42 ", "42", false},
		{"1000000000000000000000", "1000000000000000000000", false},
		{"", "", true},
		{"-1", "", true},
		{"1.5", "", true},
		{"abc", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAmount(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.String() != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}

	if _, err := AmountFromBig(big.NewInt(-5)); err == nil {
		t.Error("expected error for negative big.Int")
	}
}

func TestAmountDisplay(t *testing.T) {
	tests := []struct {
		amount   Amount
		decimals int32
		want     string
	}{
		{MustParseAmount("1500000000000000000"), 18, "1.5"},
		{NewAmount(4900), 2, "49"},
		{NewAmount(4950), 2, "49.5"},
		{NewAmount(7), 0, "7"},
		{ZeroAmount(), 18, "0"},
	}

	for _, tt := range tests {
		if got := tt.amount.Display(tt.decimals); got != tt.want {
			t.Errorf("Display(%s, %d) = %q, want %q", tt.amount, tt.decimals, got, tt.want)
		}
	}
}

func TestAmountJSON(t *testing.T) {
	type wrapper struct {
		A Amount `json:"a"`
	}

	data, err := json.Marshal(wrapper{A: MustParseAmount("123456789012345678901234567890")})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"a":"123456789012345678901234567890"}` {
		t.Errorf("unexpected JSON: %s", data)
	}

	var w wrapper
	if err := json.Unmarshal([]byte(`{"a":1500}`), &w); err != nil {
		t.Fatal(err)
	}
	if !w.A.Equal(NewAmount(1500)) {
		t.Errorf("got %s, want 1500", w.A)
	}
}

func TestAmountScan(t *testing.T) {
	var a Amount
	if err := a.Scan("77"); err != nil || !a.Equal(NewAmount(77)) {
		t.Fatalf("scan string: %v %s", err, a)
	}
	if err := a.Scan([]byte("88")); err != nil || !a.Equal(NewAmount(88)) {
		t.Fatalf("scan bytes: %v %s", err, a)
	}
	if err := a.Scan(int64(-1)); err == nil {
		t.Fatal("expected error scanning negative int")
	}
	if err := a.Scan(nil); err != nil || !a.IsZero() {
		t.Fatalf("scan nil: %v %s", err, a)
	}
}
