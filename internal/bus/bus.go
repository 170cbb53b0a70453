package bus

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
)

const SockName = "control.sock"
const PidName = "voxd.pid"
const ProtoVer = "0.1"

// ~/.cache/voxd/control.sock
func SockPath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "voxd", SockName), nil
}

// ~/.cache/voxd/voxd.pid
func PidPath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "voxd", PidName), nil
}

func Listen() (net.Listener, error) {
	sp, err := SockPath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(sp), 0o700); err != nil {
		return nil, err
	}
	_ = os.Remove(sp) // stale socket from last run
	return net.Listen("unix", sp)
}

func Dial() (net.Conn, error) {
	sp, err := SockPath()
	if err != nil {
		return nil, err
	}
	return net.Dial("unix", sp)
}

// SendCommand writes a one-byte command and returns the daemon's reply line.
func SendCommand(cmd byte) (string, error) {
	c, err := Dial()
	if err != nil {
		return "", err
	}
	defer c.Close()

	if _, err := c.Write([]byte{cmd, '\n'}); err != nil {
		return "", err
	}

	return bufio.NewReader(c).ReadString('\n')
}

// CheckExistingDaemon returns an error if another daemon holds the pidfile.
// Stale and malformed pidfiles are treated as absent.
func CheckExistingDaemon() error {
	pidPath, err := PidPath()
	if err != nil {
		return err
	}

	pidData, err := os.ReadFile(pidPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	pid, err := strconv.Atoi(string(pidData))
	if err != nil {
		return nil // invalid pid file, assume stale
	}

	if !isProcessAlive(pid) {
		_ = os.Remove(pidPath)
		return nil
	}

	return fmt.Errorf("daemon already running with PID %d", pid)
}

func isProcessAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

func CreatePidFile() error {
	pidPath, err := PidPath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(pidPath), 0o700); err != nil {
		return err
	}

	return os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), 0o600)
}

func RemovePidFile() error {
	pidPath, err := PidPath()
	if err != nil {
		return err
	}
	return os.Remove(pidPath)
}
