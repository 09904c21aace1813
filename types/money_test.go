package types

import (
	"encoding/json"
	"testing"
)

func TestParseMoney(t *testing.T) {
	tests := []struct {
		in       string
		currency string
		want     Money
		wantErr  bool
	}{
		{"47.00", "usd", USD(4700), false},
		{"97", "USD", USD(9700), false},
		{"12.5", "usd", USD(1250), false},
		{"-12.50", "usd", USD(-1250), false},
		{"+0.01", "", USD(1), false},
		{".99", "usd", USD(99), false},
		{"100", "jpy", Money{Amount: 100, Currency: "jpy"}, false},
		{"1.234", "usd", Money{}, true},
		{"1.5", "jpy", Money{}, true},
		{"abc", "usd", Money{}, true},
		{"", "usd", Money{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMoney(tt.in, tt.currency)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMoney(%q): err = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Errorf("ParseMoney(%q): got %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestMoneyArithmetic(t *testing.T) {
	tests := []struct {
		name     string
		op       func() Money
		expected Money
	}{
		{"Add", func() Money { return USD(100).Add(USD(200)) }, USD(300)},
		{"Negate", func() Money { return USD(9700).Negate() }, USD(-9700)},
		{"Negate twice", func() Money { return USD(9700).Negate().Negate() }, USD(9700)},
		{"Abs negative", func() Money { return USD(-100).Abs() }, USD(100)},
		{"Sum with reversal", func() Money { return Sum(USD(9700), USD(-9700), USD(4700)) }, USD(4700)},
		{"Sum empty", func() Money { return Sum() }, Zero("usd")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := tt.op(); !result.Equal(tt.expected) {
				t.Errorf("got %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestMoneyCurrencyMismatch(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for currency mismatch")
		}
	}()
	_ = USD(100).Add(Zero("eur"))
}

func TestMoneyPredicates(t *testing.T) {
	tests := []struct {
		name       string
		money      Money
		isZero     bool
		isPositive bool
		isNegative bool
	}{
		{"Zero", USD(0), true, false, false},
		{"Positive", USD(100), false, true, false},
		{"Negative", USD(-100), false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.money.IsZero(); got != tt.isZero {
				t.Errorf("IsZero: got %v, want %v", got, tt.isZero)
			}
			if got := tt.money.IsPositive(); got != tt.isPositive {
				t.Errorf("IsPositive: got %v, want %v", got, tt.isPositive)
			}
			if got := tt.money.IsNegative(); got != tt.isNegative {
				t.Errorf("IsNegative: got %v, want %v", got, tt.isNegative)
			}
		})
	}
}

func TestMoneyFormat(t *testing.T) {
	tests := []struct {
		money   Money
		major   string
		display string
	}{
		{USD(4900), "49.00", "$49.00"},
		{USD(1), "0.01", "$0.01"},
		{USD(-9700), "-97.00", "$-97.00"},
		{Money{Amount: 100, Currency: "jpy"}, "100", "¥100"},
		{Money{Amount: 250, Currency: "chf"}, "2.50", "CHF 2.50"},
	}

	for _, tt := range tests {
		t.Run(tt.display, func(t *testing.T) {
			if got := tt.money.FormatMajor(); got != tt.major {
				t.Errorf("FormatMajor: got %s, want %s", got, tt.major)
			}
			if got := tt.money.String(); got != tt.display {
				t.Errorf("String: got %s, want %s", got, tt.display)
			}
		})
	}
}

func TestMoneyJSON(t *testing.T) {
	data, err := json.Marshal(USD(-4700))
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	expected := `{"amount":-4700,"currency":"usd","display":"$-47.00"}`
	if string(data) != expected {
		t.Errorf("JSON: got %s, want %s", string(data), expected)
	}

	var back Money
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if !back.Equal(USD(-4700)) {
		t.Errorf("Unmarshal: got %v, want %v", back, USD(-4700))
	}
}
