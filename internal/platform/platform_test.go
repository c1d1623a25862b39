package platform

import (
	"runtime"
	"testing"
)

func TestDetectIsStable(t *testing.T) {
	p := Detect()
	if p == "" {
		t.Fatal("Detect() returned empty platform")
	}
	if runtime.GOOS == "darwin" && p != PlatformMacOS {
		t.Errorf("expected macOS on darwin, got %s", p)
	}
	if p2 := Detect(); p != p2 {
		t.Errorf("Detect() changed: %s then %s", p, p2)
	}
}

func TestClassify(t *testing.T) {
	none := func(string) bool { return false }
	tests := []struct {
		name    string
		goos    string
		version string
		wslEnv  bool
		exists  func(string) bool
		want    Platform
	}{
		{"darwin", "darwin", "", false, none, PlatformMacOS},
		{"windows", "windows", "", false, none, PlatformWindows},
		{"freebsd", "freebsd", "", false, none, PlatformUnknown},
		{"plain linux", "linux", "Linux version 6.8.0-generic (gcc)", false, none, PlatformLinux},
		{"wsl2 kernel", "linux", "Linux version 5.15.90.1-microsoft-standard-WSL2", false, none, PlatformWSL2},
		{"wsl1 kernel", "linux", "Linux version 4.4.0-19041-Microsoft", false, none, PlatformWSL1},
		{"wsl env with /run/WSL", "linux", "", true, func(p string) bool { return p == "/run/WSL" }, PlatformWSL2},
		{"wsl env unknown", "linux", "", true, none, PlatformWSL1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.goos, tt.version, tt.wslEnv, tt.exists); got != tt.want {
				t.Errorf("classify = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestPlatformString(t *testing.T) {
	tests := []struct {
		platform Platform
		expected string
	}{
		{PlatformMacOS, "macOS"},
		{PlatformLinux, "Linux"},
		{PlatformWSL1, "WSL1"},
		{PlatformWSL2, "WSL2"},
		{PlatformWindows, "Windows"},
		{PlatformUnknown, "Unknown"},
	}
	for _, tt := range tests {
		if got := tt.platform.String(); got != tt.expected {
			t.Errorf("Platform(%s).String() = %s, want %s", tt.platform, got, tt.expected)
		}
	}
}

func TestSupportsUnixSockets(t *testing.T) {
	tests := []struct {
		platform Platform
		expected bool
	}{
		{PlatformMacOS, true},
		{PlatformLinux, true},
		{PlatformWSL2, true},
		{PlatformWSL1, false},
		{PlatformWindows, false},
		{PlatformUnknown, false},
	}
	for _, tt := range tests {
		if got := tt.platform.SupportsUnixSockets(); got != tt.expected {
			t.Errorf("%s.SupportsUnixSockets() = %v, want %v", tt.platform, got, tt.expected)
		}
	}
}

func TestMountFSType(t *testing.T) {
	mounts := `/dev/sda1 / ext4 rw 0 0
C:\134 /mnt/c 9p rw 0 0
server:/export /mnt/cc nfs4 rw 0 0
`
	tests := []struct {
		path string
		want string
	}{
		{"/home/dev/repo", "ext4"},
		{"/mnt/c/Users/dev/repo", "9p"},
		{"/mnt/c", "9p"},
		// A sibling prefix is not a parent mount.
		{"/mnt/cc/repo", "nfs4"},
		{"/mnt/cd/repo", "ext4"},
	}
	for _, tt := range tests {
		if got := mountFSType(mounts, tt.path); got != tt.want {
			t.Errorf("mountFSType(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestFsnotifyWarning(t *testing.T) {
	for _, fs := range []string{"9p", "nfs", "nfs4", "cifs", "smbfs", "fuse.sshfs"} {
		if fsnotifyWarning(fs) == "" {
			t.Errorf("expected a warning for %s", fs)
		}
	}
	for _, fs := range []string{"ext4", "btrfs", "apfs", ""} {
		if w := fsnotifyWarning(fs); w != "" {
			t.Errorf("unexpected warning for %s: %s", fs, w)
		}
	}
}
