package addr

import (
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Address
		wantErr bool
	}{
		{name: "introducer", input: "1:0", want: Address{ID: 1, Port: 0}},
		{name: "with spaces", input: " 42:8080 ", want: Address{ID: 42, Port: 8080}},
		{name: "max values", input: "4294967295:65535", want: Address{ID: 4294967295, Port: 65535}},
		{name: "missing colon", input: "12", wantErr: true},
		{name: "bad id", input: "x:1", wantErr: true},
		{name: "port overflow", input: "1:70000", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("Parse(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestStringRoundTrip(t *testing.T) {
	a := New(7, 3)
	if a.String() != "7:3" {
		t.Fatalf("String() = %q, want 7:3", a.String())
	}
	b, err := Parse(a.String())
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("round trip mismatch: %v != %v", a, b)
	}
}

func TestCompare(t *testing.T) {
	if Compare(New(1, 5), New(2, 0)) >= 0 {
		t.Error("expected id to dominate ordering")
	}
	if Compare(New(1, 1), New(1, 2)) >= 0 {
		t.Error("expected port to break ties")
	}
	if Compare(New(3, 3), New(3, 3)) != 0 {
		t.Error("expected equal addresses to compare 0")
	}
}
