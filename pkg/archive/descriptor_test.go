package archive

import (
	"net/http"
	"strings"
	"testing"
)

func TestSanitizeCommand(t *testing.T) {
	tests := []struct {
		name string
		cmd  string
		want string
	}{
		{
			name: "ssh target user",
			cmd:  "ssh -p 29418 alice@gerrit.example.com gerrit version",
			want: "ssh -p 29418 xxxxx@gerrit.example.com gerrit version",
		},
		{
			name: "identity file and options",
			cmd:  "ssh -o StrictHostKeyChecking=no -i /home/bob/.ssh/id -p 29418 bob.smith@review.example.org gerrit query limit:500",
			want: "ssh -o StrictHostKeyChecking=no -i /home/bob/.ssh/id -p 29418 xxxxx@review.example.org gerrit query limit:500",
		},
		{
			name: "no user segment",
			cmd:  "gerrit version",
			want: "gerrit version",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeCommand(tt.cmd); got != tt.want {
				t.Errorf("SanitizeCommand() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDescriptor_KeyIgnoresCredentials(t *testing.T) {
	tests := []struct {
		name string
		a, b Descriptor
	}{
		{
			name: "command users differ",
			a:    CommandDescriptor("ssh -p 29418 alice@host gerrit query limit:2"),
			b:    CommandDescriptor("ssh -p 29418 bob@host gerrit query limit:2"),
		},
		{
			name: "bearer tokens differ",
			a: HTTPDescriptor(http.MethodPost, "https://api.example.com/gql",
				http.Header{"Authorization": {"Bearer aaa"}, "Content-Type": {"application/json"}},
				[]byte(`{"query":"q"}`)),
			b: HTTPDescriptor(http.MethodPost, "https://api.example.com/gql",
				http.Header{"Authorization": {"Bearer bbb"}, "Content-Type": {"application/json"}},
				[]byte(`{"query":"q"}`)),
		},
		{
			name: "token present on one side only",
			a: HTTPDescriptor(http.MethodGet, "https://api.example.com/items",
				http.Header{"Authorization": {"Bearer aaa"}}, nil),
			b: HTTPDescriptor(http.MethodGet, "https://api.example.com/items", nil, nil),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.a.Key() != tt.b.Key() {
				t.Errorf("keys differ:\n  %s\n  %s", tt.a.String(), tt.b.String())
			}
		})
	}
}

func TestDescriptor_KeyDistinguishesQueries(t *testing.T) {
	a := HTTPDescriptor(http.MethodPost, "https://api.example.com/gql", nil, []byte(`{"query":"a"}`))
	b := HTTPDescriptor(http.MethodPost, "https://api.example.com/gql", nil, []byte(`{"query":"b"}`))
	if a.Key() == b.Key() {
		t.Error("descriptors with different bodies share a key")
	}

	c := CommandDescriptor("ssh -p 29418 u@host gerrit query limit:2 --start=0")
	d := CommandDescriptor("ssh -p 29418 u@host gerrit query limit:2 --start=2")
	if c.Key() == d.Key() {
		t.Error("commands with different cursors share a key")
	}
}

func TestDescriptor_String(t *testing.T) {
	d := HTTPDescriptor("post", "https://api.example.com/gql",
		http.Header{"X-B": {"2"}, "X-A": {"1"}, "Authorization": {"Bearer secret"}}, nil)

	want := "http:POST:https://api.example.com/gql:X-A=1:X-B=2"
	if got := d.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if strings.Contains(d.String(), "secret") {
		t.Error("String() leaks the bearer token")
	}
	if !strings.HasPrefix(d.Key(), "harvest:archive:") {
		t.Errorf("Key() = %q, want harvest:archive: prefix", d.Key())
	}
}

func TestDescriptor_SanitizedDoesNotMutate(t *testing.T) {
	headers := http.Header{"Authorization": {"Bearer secret"}}
	d := HTTPDescriptor(http.MethodGet, "https://api.example.com", headers, nil)
	_ = d.Sanitized()

	if d.Headers.Get("Authorization") == "" {
		t.Error("Sanitized() removed the header from the original descriptor")
	}

	headers.Set("Authorization", "Bearer changed")
	if d.Headers.Get("Authorization") != "Bearer secret" {
		t.Error("HTTPDescriptor() did not copy the headers")
	}
}
