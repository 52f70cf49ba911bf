package util

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDataDir returns the data directory path
func GetDataDir() string {
	if envDir := os.Getenv("BOOTHMESH_DIR"); envDir != "" {
		return envDir
	}

	home, err := os.UserHomeDir()
	if err != nil {
		panic(err)
	}
	return filepath.Join(home, ".boothmesh-data")
}

// GetNodeDir returns the per-node directory (debug frame logs)
func GetNodeDir(nodeID uint8) string {
	return filepath.Join(GetDataDir(), fmt.Sprintf("node-%d", nodeID))
}

// GetSocketDir returns the directory where node datagram sockets live
func GetSocketDir() string {
	socketDir := filepath.Join(GetDataDir(), "sockets")
	if err := os.MkdirAll(socketDir, 0755); err != nil {
		panic(err)
	}
	return socketDir
}
