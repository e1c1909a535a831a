package facts

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/opmodel/subctl/internal/output"
)

// HostCollector reads facts from the running Linux host.
type HostCollector struct {
	// Root prefixes /proc and /etc lookups. Empty means "/".
	Root string

	// FactsDir holds custom *.facts JSON files whose keys override
	// collected ones.
	FactsDir string

	// Uname overrides the uname(2) call.
	Uname func() (unix.Utsname, error)
}

// Collect gathers hardware, OS and custom facts. Missing sources are
// skipped; only a cancelled context is an error.
func (h *HostCollector) Collect(ctx context.Context) (Facts, error) {
	f := Facts{}

	steps := []func(Facts){h.uname, h.cpuinfo, h.meminfo, h.osRelease, h.hostname}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		step(f)
	}

	f["system.certificate_version"] = CertificateVersion

	for k, v := range h.custom() {
		f[k] = v
	}
	return f, nil
}

func (h *HostCollector) path(p string) string {
	root := h.Root
	if root == "" {
		root = "/"
	}
	return filepath.Join(root, p)
}

func (h *HostCollector) uname(f Facts) {
	call := h.Uname
	if call == nil {
		call = func() (unix.Utsname, error) {
			var u unix.Utsname
			err := unix.Uname(&u)
			return u, err
		}
	}
	u, err := call()
	if err != nil {
		output.Debug("uname failed", "err", err)
		return
	}
	f["uname.sysname"] = unix.ByteSliceToString(u.Sysname[:])
	f["uname.nodename"] = unix.ByteSliceToString(u.Nodename[:])
	f["uname.release"] = unix.ByteSliceToString(u.Release[:])
	f["uname.version"] = unix.ByteSliceToString(u.Version[:])
	f["uname.machine"] = unix.ByteSliceToString(u.Machine[:])
}

func (h *HostCollector) cpuinfo(f Facts) {
	data, err := os.ReadFile(h.path("proc/cpuinfo"))
	if err != nil {
		return
	}

	cpus := 0
	sockets := map[string]struct{}{}
	guest := false
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		switch key {
		case "processor":
			cpus++
		case "physical id":
			sockets[value] = struct{}{}
		case "cpu MHz":
			if _, set := f["cpu.cpu_mhz"]; !set {
				f["cpu.cpu_mhz"] = value
			}
		case "model name":
			if _, set := f["cpu.model"]; !set {
				f["cpu.model"] = value
			}
		case "flags":
			if strings.Contains(" "+value+" ", " hypervisor ") {
				guest = true
			}
		}
	}

	if cpus > 0 {
		f["cpu.cpu(s)"] = strconv.Itoa(cpus)
	}
	if n := len(sockets); n > 0 {
		f["cpu.cpu_socket(s)"] = strconv.Itoa(n)
	} else if cpus > 0 {
		f["cpu.cpu_socket(s)"] = "1"
	}
	f["virt.is_guest"] = strconv.FormatBool(guest)
}

func (h *HostCollector) meminfo(f Facts) {
	data, err := os.ReadFile(h.path("proc/meminfo"))
	if err != nil {
		return
	}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		fields := strings.Fields(value)
		if len(fields) == 0 {
			continue
		}
		switch key {
		case "MemTotal":
			f["memory.memtotal"] = fields[0]
		case "SwapTotal":
			f["memory.swaptotal"] = fields[0]
		}
	}
}

func (h *HostCollector) osRelease(f Facts) {
	data, err := os.ReadFile(h.path("etc/os-release"))
	if err != nil {
		return
	}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if !ok {
			continue
		}
		value = strings.Trim(value, `"'`)
		switch key {
		case "NAME":
			f["distribution.name"] = value
		case "VERSION_ID":
			f["distribution.version"] = value
		case "ID":
			f["distribution.id"] = value
		}
	}
}

func (h *HostCollector) hostname(f Facts) {
	if name, ok := f["uname.nodename"]; ok && name != "" {
		f["network.hostname"] = name
		return
	}
	if name, err := os.Hostname(); err == nil {
		f["network.hostname"] = name
	}
}

// custom merges every *.facts file in FactsDir in name order.
func (h *HostCollector) custom() Facts {
	out := Facts{}
	if h.FactsDir == "" {
		return out
	}
	files, err := filepath.Glob(filepath.Join(h.FactsDir, "*.facts"))
	if err != nil {
		return out
	}
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			output.Warn("unable to read custom facts file", "path", path, "err", err)
			continue
		}
		var raw map[string]interface{}
		if err := json.Unmarshal(data, &raw); err != nil {
			output.Warn("unable to load custom facts file", "path", path, "err", err)
			continue
		}
		output.Debug("loaded custom facts", "path", path, "count", len(raw))
		for k, v := range raw {
			out[k] = stringify(v)
		}
	}
	return out
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case bool, float64:
		return fmt.Sprint(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
