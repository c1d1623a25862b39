// Package platform detects where the dashboard is running and which
// facilities (unix sockets, inotify) can be trusted there.
package platform

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

// Platform identifies the host environment.
type Platform string

const (
	PlatformMacOS   Platform = "macos"
	PlatformLinux   Platform = "linux"
	PlatformWSL1    Platform = "wsl1"
	PlatformWSL2    Platform = "wsl2"
	PlatformWindows Platform = "windows"
	PlatformUnknown Platform = "unknown"
)

var (
	detectOnce sync.Once
	detected   Platform
)

// Detect returns the current platform. The result is computed once.
func Detect() Platform {
	detectOnce.Do(func() {
		procVersion, _ := os.ReadFile("/proc/version")
		detected = classify(runtime.GOOS, string(procVersion), os.Getenv("WSL_DISTRO_NAME") != "", pathExists)
	})
	return detected
}

func pathExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// classify maps the raw signals to a Platform. WSL2 kernels report
// "microsoft-standard"; WSL1 reports a capitalised "Microsoft".
func classify(goos, procVersion string, wslEnv bool, exists func(string) bool) Platform {
	switch goos {
	case "darwin":
		return PlatformMacOS
	case "windows":
		return PlatformWindows
	case "linux":
	default:
		return PlatformUnknown
	}
	if !wslEnv && !strings.Contains(strings.ToLower(procVersion), "microsoft") {
		return PlatformLinux
	}
	switch {
	case strings.Contains(procVersion, "microsoft-standard"):
		return PlatformWSL2
	case strings.Contains(procVersion, "Microsoft"):
		return PlatformWSL1
	case exists("/run/WSL"), exists("/dev/vsock"):
		return PlatformWSL2
	}
	// Unknown WSL flavours get the more limited treatment.
	return PlatformWSL1
}

// IsWSL reports whether the host is any WSL version.
func IsWSL() bool {
	p := Detect()
	return p == PlatformWSL1 || p == PlatformWSL2
}

// SupportsUnixSockets reports whether the hook socket will work reliably.
func (p Platform) SupportsUnixSockets() bool {
	switch p {
	case PlatformMacOS, PlatformLinux, PlatformWSL2:
		return true
	}
	return false
}

func (p Platform) String() string {
	switch p {
	case PlatformMacOS:
		return "macOS"
	case PlatformLinux:
		return "Linux"
	case PlatformWSL1:
		return "WSL1"
	case PlatformWSL2:
		return "WSL2"
	case PlatformWindows:
		return "Windows"
	default:
		return "Unknown"
	}
}

// CheckFsnotifySupport returns a warning when path lives on a filesystem
// where inotify events are missing or unreliable, or "" when it is fine.
func CheckFsnotifySupport(path string) string {
	if runtime.GOOS != "linux" {
		return ""
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return ""
	}
	mounts, err := os.ReadFile("/proc/mounts")
	if err != nil {
		return ""
	}
	return fsnotifyWarning(mountFSType(string(mounts), abs))
}

// mountFSType finds the filesystem type of the longest mount point that
// contains abs in /proc/mounts content.
func mountFSType(mounts, abs string) string {
	var best, fsType string
	for _, line := range strings.Split(mounts, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		mp := fields[1]
		if !containsPath(mp, abs) || len(mp) <= len(best) {
			continue
		}
		best, fsType = mp, fields[2]
	}
	return fsType
}

func containsPath(mountPoint, abs string) bool {
	if mountPoint == "/" || mountPoint == abs {
		return true
	}
	return strings.HasPrefix(abs, strings.TrimSuffix(mountPoint, "/")+"/")
}

func fsnotifyWarning(fsType string) string {
	switch {
	case fsType == "9p":
		return "worktree on a 9p mount (WSL2 Windows drive): removed worktrees will not close their panes"
	case fsType == "nfs", fsType == "nfs4":
		return "worktree on NFS: removal detection may be late or missing"
	case fsType == "cifs", fsType == "smbfs":
		return "worktree on CIFS/SMB: removal detection may be late or missing"
	case strings.HasPrefix(fsType, "fuse.sshfs"):
		return "worktree on SSHFS: removed worktrees will not close their panes"
	}
	return ""
}
