package util

import (
	"os"
	"os/exec"
)

// FileExists checks if a file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// DirExists checks if a directory exists
func DirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// CopyFile copies a file from src to dst preserving attributes
func CopyFile(src, dst string) error {
	cmd := exec.Command("cp", "-p", src, dst)
	return cmd.Run()
}

// CopyDir recursively copies a directory preserving attributes
func CopyDir(src, dst string) error {
	cmd := exec.Command("cp", "-Rp", src, dst)
	return cmd.Run()
}

// RunCommandQuiet runs a command without output
func RunCommandQuiet(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	return cmd.Run()
}

// RunCommandOutput runs a command and returns combined output
func RunCommandOutput(name string, args ...string) (string, error) {
	cmd := exec.Command(name, args...)
	output, err := cmd.CombinedOutput()
	return string(output), err
}

// CommandExists reports whether a command can be found in PATH
func CommandExists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// EnsureDir ensures a directory exists, creating it if needed
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}
