package localDB

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/akolanti/mirage/internal/domain/commonModels"
	"github.com/akolanti/mirage/pkg/logger_i"
)

type lockFile struct {
	path string
}

// acquireLock writes our pid into path. An existing lock whose pid is not a
// running process is stale and gets replaced.
func acquireLock(path string, logger *logger_i.Logger) (*lockFile, error) {
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			_, werr := f.WriteString(strconv.Itoa(os.Getpid()))
			cerr := f.Close()
			if werr != nil || cerr != nil {
				_ = os.Remove(path)
				return nil, fmt.Errorf("writing lock file: %w", errors.Join(werr, cerr))
			}
			return &lockFile{path: path}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("creating lock file: %w", err)
		}

		pid, alive := lockHolder(path)
		if alive && pid != os.Getpid() {
			return nil, fmt.Errorf("held by pid %d: %w", pid, commonModels.ErrStoreLocked)
		}
		logger.Warn("clearing stale lock", "path", path, "pid", pid)
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("clearing stale lock: %w", err)
		}
	}
	return nil, commonModels.ErrStoreLocked
}

func (l *lockFile) release() {
	if l == nil {
		return
	}
	_ = os.Remove(l.path)
}

func lockHolder(path string) (int, bool) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, processAlive(pid)
}

func processAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// signal 0 probes without delivering; EPERM still means it exists
	err = p.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
