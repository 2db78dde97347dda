//go:build e2e_vm

package e2e

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	vmName     = "dosnap-test-vm"
	remoteBin  = "/tmp/dosnap"
	configPath = "/tmp/dosnap_test_config.yaml"
	imagePath  = "/tmp/dosnap_e2e.img"
	poolLabel  = "dosnap-e2e"
	lockPath   = "/tmp/dosnap_e2e.lock"
)

type vm struct {
	name string
}

func newVM() *vm {
	return &vm{name: vmName}
}

func (v *vm) exec(command string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	cmd := exec.CommandContext(ctx, "multipass", "exec", v.name, "--", "bash", "-lc", command)
	out, err := cmd.CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

func (v *vm) isReachable() bool {
	out, err := v.exec("echo ok")
	return err == nil && out == "ok"
}

func (v *vm) mustExec(t *testing.T, command string) string {
	t.Helper()
	out, err := v.exec(command)
	require.NoError(t, err, "command failed: %s\noutput: %s", command, out)
	return out
}

func (v *vm) mustExecSudo(t *testing.T, command string) string {
	t.Helper()
	return v.mustExec(t, "sudo "+command)
}

// dosnap runs the binary as root with the test config. Logs go to stderr and
// are discarded so stdout can be parsed.
func (v *vm) dosnap(args string) (string, error) {
	return v.exec(fmt.Sprintf("sudo %s --config %s %s 2>/dev/null", remoteBin, configPath, args))
}

func (v *vm) mustDosnap(t *testing.T, args string) string {
	t.Helper()
	out, err := v.dosnap(args)
	require.NoError(t, err, "dosnap %s failed\noutput: %s", args, out)
	return out
}

func (v *vm) transfer(localPath, remotePath string) error {
	cmd := exec.Command("multipass", "transfer", localPath, fmt.Sprintf("%s:%s", v.name, remotePath))
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("transfer failed: %w\noutput: %s", err, string(out))
	}
	return nil
}

func (v *vm) writeFile(t *testing.T, remotePath, content string) {
	t.Helper()
	tmp, err := os.CreateTemp("", "dosnap-e2e-*")
	require.NoError(t, err)
	defer os.Remove(tmp.Name())

	_, err = tmp.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, tmp.Close())

	require.NoError(t, v.transfer(tmp.Name(), remotePath))
}

func buildBinary(t *testing.T) string {
	t.Helper()
	binary := "../../build/dosnap_linux_arm64"

	cmd := exec.Command("go", "build", "-ldflags=-s -w", "-o", binary, "./../../cmd/dosnap")
	cmd.Env = append(os.Environ(), "GOOS=linux", "GOARCH=arm64")
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "build failed: %s", string(out))
	return binary
}

func buildAndTransfer(t *testing.T, v *vm) {
	t.Helper()
	binary := buildBinary(t)
	require.NoError(t, v.transfer(binary, remoteBin))
	v.mustExecSudo(t, "chmod +x "+remoteBin)
}

// setupDevice formats a loopback btrfs image holding one subvolume, @data,
// and returns the loop device.
func setupDevice(t *testing.T, v *vm) string {
	t.Helper()
	v.mustExec(t, "truncate -s 256M "+imagePath)
	device := v.mustExecSudo(t, "losetup --find --show "+imagePath)
	v.mustExecSudo(t, "mkfs.btrfs -q -f -L "+poolLabel+" "+device)

	v.mustExecSudo(t, "mkdir -p /mnt/dosnap-e2e")
	v.mustExecSudo(t, "mount "+device+" /mnt/dosnap-e2e")
	v.mustExecSudo(t, "btrfs subvolume create /mnt/dosnap-e2e/@data")
	v.mustExecSudo(t, "bash -c \"seq 1 10000 > /mnt/dosnap-e2e/@data/numbers.txt\"")
	v.mustExecSudo(t, "umount /mnt/dosnap-e2e")
	return device
}

func teardownDevice(v *vm, device string) {
	_, _ = v.exec("sudo losetup -d " + device)
	_, _ = v.exec("rm -f " + imagePath)
}

// snapshots lists the snapshot names of /data, as seen by mounting the
// device outside of dosnap.
func snapshots(t *testing.T, v *vm, device string) []string {
	t.Helper()
	v.mustExecSudo(t, "mkdir -p /mnt/dosnap-e2e")
	v.mustExecSudo(t, "mount "+device+" /mnt/dosnap-e2e")
	defer v.mustExecSudo(t, "umount /mnt/dosnap-e2e")

	out := v.mustExecSudo(t, "ls -1 /mnt/dosnap-e2e/snapshots/%data")
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}

func testConfig(device string) string {
	return fmt.Sprintf(`device: %s
mount_options: [subvolid=5]
snapshot_root: snapshots
lock_file: %s
subvolumes:
  - mountpoint: /data
    path: "@data"
    create: true
    autoclean: true
    limits:
      hourly: 1
      daily: 0
      weekly: 0
      monthly: 0
      yearly: 0
`, device, lockPath)
}
