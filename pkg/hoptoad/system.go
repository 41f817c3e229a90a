// system.go resolves application and host metadata and captures system state
// at capture time.

package hoptoad

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"time"
)

// Unknown is the value used for any metadata that could not be resolved.
const Unknown = "unknown"

// MetadataSource supplies application and host identification.
// Implementations may fail; failures resolve to Unknown.
type MetadataSource interface {
	AppID() (string, error)
	AppVersion() (string, error)
	DeviceModel() (string, error)
	PlatformVersion() (string, error)
}

// Metadata is the resolved form of a MetadataSource. Every field is non-empty.
type Metadata struct {
	AppID           string
	AppVersion      string
	DeviceModel     string
	PlatformVersion string
}

// Tags returns the fixed environment tags for m.
func (m Metadata) Tags() map[string]string {
	return map[string]string{
		TagDevice:          m.DeviceModel,
		TagPlatformVersion: m.PlatformVersion,
		TagAppVersion:      m.AppVersion,
	}
}

// ResolveMetadata queries src once per field. Errors, empty values and
// panics inside src all yield Unknown.
func ResolveMetadata(src MetadataSource) Metadata {
	if src == nil {
		src = DefaultMetadata()
	}
	return Metadata{
		AppID:           lookup(src.AppID),
		AppVersion:      lookup(src.AppVersion),
		DeviceModel:     lookup(src.DeviceModel),
		PlatformVersion: lookup(src.PlatformVersion),
	}
}

func lookup(fn func() (string, error)) (value string) {
	defer func() {
		if r := recover(); r != nil {
			value = Unknown
		}
	}()
	v, err := fn()
	v = strings.TrimSpace(v)
	if err != nil || v == "" {
		return Unknown
	}
	return v
}

// StaticMetadata returns a MetadataSource with fixed values. Empty fields
// resolve to Unknown.
func StaticMetadata(m Metadata) MetadataSource {
	return staticMetadata{m: m}
}

type staticMetadata struct {
	m Metadata
}

func (s staticMetadata) AppID() (string, error)           { return s.m.AppID, nil }
func (s staticMetadata) AppVersion() (string, error)      { return s.m.AppVersion, nil }
func (s staticMetadata) DeviceModel() (string, error)     { return s.m.DeviceModel, nil }
func (s staticMetadata) PlatformVersion() (string, error) { return s.m.PlatformVersion, nil }

// DefaultMetadata returns the MetadataSource used when none is configured.
// It reads the main module from the build info, the host's product name
// and the kernel release.
func DefaultMetadata() MetadataSource {
	return hostMetadata{}
}

type hostMetadata struct{}

func (hostMetadata) AppID() (string, error) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "", fmt.Errorf("build info unavailable")
	}
	if info.Main.Path != "" {
		return info.Main.Path, nil
	}
	return info.Path, nil
}

func (hostMetadata) AppVersion() (string, error) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "", fmt.Errorf("build info unavailable")
	}
	if v := info.Main.Version; v != "" && v != "(devel)" {
		return v, nil
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			if len(s.Value) > 12 {
				return s.Value[:12], nil
			}
			return s.Value, nil
		}
	}
	return "", fmt.Errorf("main module has no version")
}

// productNamePath is the DMI product name on Linux hosts.
var productNamePath = "/sys/class/dmi/id/product_name"

func (hostMetadata) DeviceModel() (string, error) {
	if data, err := os.ReadFile(productNamePath); err == nil {
		if name := strings.TrimSpace(string(data)); name != "" {
			return name, nil
		}
	}
	return os.Hostname()
}

func (hostMetadata) PlatformVersion() (string, error) {
	release, err := kernelRelease()
	if err != nil {
		return "", err
	}
	return runtime.GOOS + " " + release, nil
}

// SystemState captures process metrics at the time of a failure.
type SystemState struct {
	// MemoryBytes is the current heap allocation in bytes.
	MemoryBytes int64

	// GoroutineCount is the number of active goroutines.
	GoroutineCount int

	// UptimeMs is the process uptime in milliseconds.
	UptimeMs int64

	// HostName is the hostname of the machine where the failure occurred.
	HostName string
}

// CaptureSystemState captures system metrics at the current moment.
// The startTime parameter is used to calculate process uptime.
func CaptureSystemState(startTime time.Time) *SystemState {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	hostname, _ := os.Hostname() // Ignore error, empty hostname is acceptable

	uptimeMs := time.Since(startTime).Milliseconds()
	if uptimeMs < 0 {
		uptimeMs = 0 // Clamp to 0 if start time is in the future
	}

	return &SystemState{
		MemoryBytes:    int64(memStats.Alloc),
		GoroutineCount: runtime.NumGoroutine(),
		UptimeMs:       uptimeMs,
		HostName:       hostname,
	}
}

// Tags renders the state as extra environment tags. They are not part of
// the notice but travel with the Report to mirror sinks.
func (s *SystemState) Tags() map[string]string {
	if s == nil {
		return nil
	}
	tags := map[string]string{
		"Memory Bytes":    strconv.FormatInt(s.MemoryBytes, 10),
		"Goroutine Count": strconv.Itoa(s.GoroutineCount),
		"Uptime Ms":       strconv.FormatInt(s.UptimeMs, 10),
	}
	if s.HostName != "" {
		tags["Host Name"] = s.HostName
	}
	return tags
}
