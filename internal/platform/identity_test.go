package platform

import "testing"

func TestResolveIdentity(t *testing.T) {
	existing := map[string]bool{
		"/usr/bin/bash":                  true,
		"/usr/lib/systemd/systemd-udevd": true,
	}
	exists := func(p string) bool { return existing[p] }

	tests := []struct {
		name     string
		partial  string
		cmdline  string
		wantName string
		wantPath string
		wantOK   bool
	}{
		{
			name:     "partial name inside command line",
			partial:  "bash",
			cmdline:  "/usr/bin/bash -c ls",
			wantName: "bash",
			wantPath: "/usr/bin/bash",
			wantOK:   true,
		},
		{
			name:     "truncated short name is widened",
			partial:  "systemd-udevd",
			cmdline:  "/usr/lib/systemd/systemd-udevd --daemon",
			wantName: "systemd-udevd",
			wantPath: "/usr/lib/systemd/systemd-udevd",
			wantOK:   true,
		},
		{
			name:     "truncated comm recovers full name",
			partial:  "gnome-shell-cal",
			cmdline:  "/usr/libexec/gnome-shell-calendar-server",
			wantName: "gnome-shell-calendar-server",
			wantOK:   true,
		},
		{
			name:     "trailing colon is trimmed",
			partial:  "sshd",
			cmdline:  "sshd: alice@pts/0",
			wantName: "sshd",
			wantOK:   true,
		},
		{
			name:     "nonexistent path is dropped",
			partial:  "bash",
			cmdline:  "/opt/missing/bash",
			wantName: "bash",
			wantOK:   true,
		},
		{
			name:     "first token when partial is absent",
			partial:  "kworker",
			cmdline:  "/usr/bin/bash --login",
			wantName: "bash",
			wantPath: "/usr/bin/bash",
			wantOK:   true,
		},
		{
			name:     "partial only",
			partial:  "kthreadd",
			wantName: "kthreadd",
			wantOK:   true,
		},
		{
			name:   "nothing available",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, path, ok := resolveIdentity(tt.partial, tt.cmdline, exists)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if name != tt.wantName {
				t.Errorf("name = %q, want %q", name, tt.wantName)
			}
			if path != tt.wantPath {
				t.Errorf("path = %q, want %q", path, tt.wantPath)
			}
		})
	}
}
