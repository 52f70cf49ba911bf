package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDirsFollowEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BOOTHMESH_DIR", dir)

	if got := GetDataDir(); got != dir {
		t.Errorf("GetDataDir() = %q, want %q", got, dir)
	}
	if got := GetNodeDir(101); got != filepath.Join(dir, "node-101") {
		t.Errorf("GetNodeDir(101) = %q", got)
	}

	sockets := GetSocketDir()
	if info, err := os.Stat(sockets); err != nil || !info.IsDir() {
		t.Errorf("GetSocketDir() did not create %q: %v", sockets, err)
	}
}
