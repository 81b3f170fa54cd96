package main

import (
	"flag"
	"io"
	"testing"
)

func TestAccountsFlag(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    []string
		wantErr bool
	}{
		{name: "repeated short and long", args: []string{"-a", "acc1", "-account", "acc2"}, want: []string{"acc1", "acc2"}},
		{name: "comma separated", args: []string{"-a", "acc1, acc2,acc3"}, want: []string{"acc1", "acc2", "acc3"}},
		{name: "none", args: nil, want: nil},
		{name: "empty value", args: []string{"-a", " , "}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var accounts accountsFlag
			fs := flag.NewFlagSet("test", flag.ContinueOnError)
			fs.SetOutput(io.Discard)
			fs.Var(&accounts, "a", "")
			fs.Var(&accounts, "account", "")

			err := fs.Parse(tt.args)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected parse error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(accounts) != len(tt.want) {
				t.Fatalf("got %v, want %v", accounts, tt.want)
			}
			for i := range tt.want {
				if accounts[i] != tt.want[i] {
					t.Errorf("got %v, want %v", accounts, tt.want)
				}
			}
		})
	}
}
