package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ringkv/internal/addr"
)

func TestParsePeers(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []Peer
		wantErr bool
	}{
		{
			name:  "empty string",
			input: "",
			want:  []Peer{},
		},
		{
			name:  "single peer",
			input: "1:0=127.0.0.1:50051",
			want: []Peer{
				{Address: addr.New(1, 0), Target: "127.0.0.1:50051"},
			},
		},
		{
			name:  "multiple peers",
			input: "1:0=127.0.0.1:50051,2:0=127.0.0.1:50052,3:0=127.0.0.1:50053",
			want: []Peer{
				{Address: addr.New(1, 0), Target: "127.0.0.1:50051"},
				{Address: addr.New(2, 0), Target: "127.0.0.1:50052"},
				{Address: addr.New(3, 0), Target: "127.0.0.1:50053"},
			},
		},
		{
			name:  "with spaces",
			input: "1:0 = 127.0.0.1:50051 , 2:0 = 127.0.0.1:50052",
			want: []Peer{
				{Address: addr.New(1, 0), Target: "127.0.0.1:50051"},
				{Address: addr.New(2, 0), Target: "127.0.0.1:50052"},
			},
		},
		{
			name:    "invalid format - no equals",
			input:   "1:0:127.0.0.1:50051",
			wantErr: true,
		},
		{
			name:    "invalid format - empty address",
			input:   "=127.0.0.1:50051",
			wantErr: true,
		},
		{
			name:    "invalid format - empty target",
			input:   "1:0=",
			wantErr: true,
		},
		{
			name:    "invalid format - bad node address",
			input:   "n1=127.0.0.1:50051",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePeers(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParsePeers() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr {
				if len(got) != len(tt.want) {
					t.Errorf("ParsePeers() length = %d, want %d", len(got), len(tt.want))
					return
				}
				for i := range got {
					if got[i] != tt.want[i] {
						t.Errorf("ParsePeers()[%d] = %v, want %v", i, got[i], tt.want[i])
					}
				}
			}
		})
	}
}

func TestTargets(t *testing.T) {
	peers := []Peer{
		{Address: addr.New(1, 0), Target: "a:1"},
		{Address: addr.New(2, 0), Target: "b:1"},
		{Address: addr.New(1, 0), Target: "c:1"},
	}

	got := Targets(peers)
	if len(got) != 2 {
		t.Errorf("Expected 2 targets, got %d", len(got))
	}
	if got[addr.New(1, 0)] != "c:1" {
		t.Errorf("Expected later duplicate to win, got %s", got[addr.New(1, 0)])
	}
}

func TestDefault_IsValid(t *testing.T) {
	p := Default()
	if err := p.Validate(); err != nil {
		t.Fatalf("Default params invalid: %v", err)
	}
	if p.RingSize != 512 || p.TFail != 5 || p.TRemove != 20 || p.TransactionTimeout != 3 {
		t.Errorf("Unexpected defaults: %+v", p)
	}
	if p.Introducer != addr.New(1, 0) {
		t.Errorf("Expected introducer 1:0, got %s", p.Introducer)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
		want   error
	}{
		{"ring size", func(p *Params) { p.RingSize = 0 }, ErrInvalidRingSize},
		{"tfail", func(p *Params) { p.TFail = 0 }, ErrInvalidTFail},
		{"tremove not above tfail", func(p *Params) { p.TRemove = p.TFail }, ErrInvalidTRemove},
		{"timeout", func(p *Params) { p.TransactionTimeout = -1 }, ErrInvalidTransactionTimeout},
		{"join retry", func(p *Params) { p.JoinRetry = 0 }, ErrInvalidJoinRetry},
		{"quorum not majority", func(p *Params) { p.Quorum = 1 }, ErrInvalidQuorum},
		{"quorum above replicas", func(p *Params) { p.Quorum = 4 }, ErrInvalidQuorum},
		{"dissemination", func(p *Params) { p.Dissemination = "flood" }, ErrInvalidDissemination},
		{"fanout", func(p *Params) { p.GossipFanout = 0 }, ErrInvalidGossipFanout},
		{"hasher", func(p *Params) { p.Hasher = "md5" }, ErrInvalidHasher},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Default()
			tt.mutate(&p)
			if err := p.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Run("overrides", func(t *testing.T) {
		p, err := Load(strings.NewReader("tfail: 2\ntremove: 8\ndissemination: gossip\nhasher: fnv1a\nintroducer: \"5:7\"\n"))
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if p.TFail != 2 || p.TRemove != 8 || p.Dissemination != DisseminationGossip || p.Hasher != HasherFNV1a {
			t.Errorf("Overrides not applied: %+v", p)
		}
		if p.Introducer != addr.New(5, 7) {
			t.Errorf("Expected introducer 5:7, got %s", p.Introducer)
		}
		if p.RingSize != 512 {
			t.Errorf("Expected untouched default ring size, got %d", p.RingSize)
		}
	})

	t.Run("empty document", func(t *testing.T) {
		p, err := Load(strings.NewReader(""))
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if p != Default() {
			t.Errorf("Expected defaults, got %+v", p)
		}
	})

	t.Run("unknown field", func(t *testing.T) {
		if _, err := Load(strings.NewReader("tfial: 3\n")); err == nil {
			t.Error("Expected error for unknown field")
		}
	})

	t.Run("invalid values", func(t *testing.T) {
		_, err := Load(strings.NewReader("quorum: 1\n"))
		if !errors.Is(err, ErrInvalidQuorum) {
			t.Errorf("Expected ErrInvalidQuorum, got %v", err)
		}
	})
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.yaml")
	if err := os.WriteFile(path, []byte("ring_size: 64\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if p.RingSize != 64 {
		t.Errorf("Expected ring size 64, got %d", p.RingSize)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}
