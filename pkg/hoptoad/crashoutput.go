// crashoutput.go captures fatal runtime crashes through the runtime's crash
// output file and turns them into reports on the next registration.

package hoptoad

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

const (
	// CrashDir is the subdirectory of the storage root holding crash output.
	CrashDir = ".crash"

	crashExt = ".log"

	// maxCrashRead bounds how much of a crash file is parsed.
	maxCrashRead = 1 << 20

	// reportedMarker prefixes a line naming a goroutine whose panic was
	// persisted before the runtime wrote its dump.
	reportedMarker = "hoptoad: reported goroutine "
)

// crashOutput is the crash file of the running process. It stays locked
// for the life of the process so other processes sharing the storage root
// leave it alone.
type crashOutput struct {
	file *os.File
}

// activeCrash is the crash output the runtime currently writes to.
var activeCrash atomic.Pointer[crashOutput]

// markReported records that the panic on goroutine gid is already
// persisted.
func (c *crashOutput) markReported(gid int64) {
	if gid <= 0 {
		return
	}
	fmt.Fprintf(c.file, "%s%d\n", reportedMarker, gid)
}

// enableCrashOutput directs the runtime's crash output to a new file.
func (n *Notifier) enableCrashOutput() error {
	dir := filepath.Join(n.cfg.StorageRoot, CrashDir)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create crash dir: %w", err)
	}

	name := fmt.Sprintf("%d-%s%s", os.Getpid(), uuid.NewString(), crashExt)
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("create crash file: %w", err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		os.Remove(f.Name())
		return fmt.Errorf("lock crash file: %w", err)
	}
	if err := debug.SetCrashOutput(f, debug.CrashOptions{}); err != nil {
		f.Close()
		os.Remove(f.Name())
		return fmt.Errorf("set crash output: %w", err)
	}

	prev := n.crash
	n.crash = &crashOutput{file: f}
	activeCrash.Store(n.crash)
	if prev != nil {
		prev.release()
	}
	return nil
}

// disable stops directing crash output to the file and removes it if the
// process did not crash. Crash output installed by a later registration is
// left in place.
func (c *crashOutput) disable() error {
	var err error
	if activeCrash.CompareAndSwap(c, nil) {
		err = debug.SetCrashOutput(nil, debug.CrashOptions{})
	}
	c.release()
	return err
}

// release closes the file, removing it when it holds no crash dump.
func (c *crashOutput) release() {
	name := c.file.Name()
	if data, err := os.ReadFile(name); err == nil {
		if rest, _ := splitReportedMarkers(data); len(bytes.TrimSpace(rest)) == 0 {
			os.Remove(name)
		}
	}
	c.file.Close()
}

// splitReportedMarkers separates marker lines from the runtime's output.
func splitReportedMarkers(data []byte) (rest []byte, reported map[int64]bool) {
	if !bytes.Contains(data, []byte(reportedMarker)) {
		return data, nil
	}
	reported = make(map[int64]bool)
	var out bytes.Buffer
	for _, line := range bytes.SplitAfter(data, []byte("\n")) {
		if id, ok := bytes.CutPrefix(line, []byte(reportedMarker)); ok {
			if gid, err := strconv.ParseInt(string(bytes.TrimSpace(id)), 10, 64); err == nil {
				reported[gid] = true
				continue
			}
		}
		out.Write(line)
	}
	return out.Bytes(), reported
}

// ingestCrashes persists a report for every crash file left by a previous
// process and removes the file. Files held by live processes are skipped.
func (n *Notifier) ingestCrashes(ctx context.Context) {
	dir := filepath.Join(n.cfg.StorageRoot, CrashDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			n.logf("hoptoad: failed to read crash dir: %v", err)
		}
		return
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), crashExt) {
			continue
		}
		if n.crash != nil && filepath.Base(n.crash.file.Name()) == e.Name() {
			continue
		}
		n.ingestCrashFile(ctx, filepath.Join(dir, e.Name()))
	}
}

func (n *Notifier) ingestCrashFile(ctx context.Context, path string) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		n.logf("hoptoad: failed to open crash file %s: %v", path, err)
		return
	}
	defer f.Close()

	if err := lockFile(f); err != nil {
		// Another live process owns it.
		return
	}

	data, err := io.ReadAll(io.LimitReader(f, maxCrashRead))
	if err != nil {
		n.logf("hoptoad: failed to read crash file %s: %v", path, err)
		return
	}

	data, reported := splitReportedMarkers(data)
	if dump, ok := parseCrashDump(data); ok && reported[dump.goroutine] {
		n.logf("hoptoad: crash on goroutine %d was reported before the process exited", dump.goroutine)
	} else if ok {
		persisted := n.record(ctx, func(meta Metadata, env map[string]string) Report {
			return buildCrashReport(dump, meta, env)
		})
		if !persisted {
			// Keep the file for the next run.
			return
		}
	} else if len(bytes.TrimSpace(data)) > 0 {
		n.logf("hoptoad: discarding unrecognized crash output %s", path)
	}

	if err := os.Remove(path); err != nil {
		n.logf("hoptoad: failed to remove crash file %s: %v", path, err)
	}
}
