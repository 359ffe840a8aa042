package device

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/firefly-engineering/simrun/internal/system"
)

// frontEndRelPath locates the interactive simulator app inside a developer dir.
const frontEndRelPath = "Applications/Simulator.app/Contents/MacOS/Simulator"

const frontEndName = "Simulator"

// FrontEnd is a running interactive front-end process.
type FrontEnd struct {
	PID  int
	Args []string
}

// FrontEndPath returns the front-end binary for a developer dir.
func FrontEndPath(developerDir string) string {
	return filepath.Join(developerDir, frontEndRelPath)
}

// StartFrontEnd launches the interactive front-end targeted at a device.
func StartFrontEnd(exec system.CommandExecutor, developerDir, udid string) (system.BackgroundProcess, error) {
	proc, err := exec.StartBackground(FrontEndPath(developerDir), "-CurrentDeviceUDID", udid)
	if err != nil {
		return nil, fmt.Errorf("failed to start front-end: %w", err)
	}
	return proc, nil
}

// FindFrontEnd scans the process table for a front-end whose command line
// names the device. It returns nil and no error when there is none.
func FindFrontEnd(ctx context.Context, exec system.CommandExecutor, udid string) (*FrontEnd, error) {
	out, err := exec.Execute(ctx, "ps", "-A", "-o", "pid=,command=")
	if err != nil {
		return nil, fmt.Errorf("failed to read process table: %w", err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		fe, ok := parseProcessLine(scanner.Text())
		if ok && fe.isFrontEndFor(udid) {
			return fe, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read process table: %w", err)
	}
	return nil, nil
}

// parseProcessLine splits "  123 /path/to/cmd arg1 arg2"
func parseProcessLine(line string) (*FrontEnd, bool) {
	line = strings.TrimSpace(line)
	pidField, command, found := strings.Cut(line, " ")
	if !found {
		return nil, false
	}
	pid, err := strconv.Atoi(pidField)
	if err != nil {
		return nil, false
	}

	// ps does not quote arguments; fall back to plain fields when the
	// command line is not valid shell syntax.
	args, err := shellquote.Split(command)
	if err != nil {
		args = strings.Fields(command)
	}
	return &FrontEnd{PID: pid, Args: args}, true
}

func (f *FrontEnd) isFrontEndFor(udid string) bool {
	isFrontEnd := false
	namesDevice := false
	for _, arg := range f.Args {
		if filepath.Base(arg) == frontEndName {
			isFrontEnd = true
		}
		if arg == udid {
			namesDevice = true
		}
	}
	return isFrontEnd && namesDevice
}
