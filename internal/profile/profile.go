// Package profile collects the installed package profile reported to the
// entitlement server.
package profile

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/opmodel/subctl/internal/core"
)

// queryFormat renders one package per line, tab separated.
const queryFormat = `%{NAME}\t%{VERSION}\t%{RELEASE}\t%{ARCH}\t%{EPOCH}\t%{VENDOR}\n`

// Source lists installed packages.
type Source interface {
	Packages(ctx context.Context) ([]core.Package, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) ([]core.Package, error)

// Packages calls f.
func (f SourceFunc) Packages(ctx context.Context) ([]core.Package, error) {
	return f(ctx)
}

// RPMSource queries the rpm database.
type RPMSource struct {
	// Command is the rpm binary. Empty means "rpm" on PATH.
	Command string
}

// Packages runs rpm -qa and parses its output, sorted.
func (r *RPMSource) Packages(ctx context.Context) ([]core.Package, error) {
	bin := r.Command
	if bin == "" {
		bin = "rpm"
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, "-qa", "--qf", queryFormat)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("querying rpm database: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return Parse(out)
}

// Parse reads rpm query output in queryFormat.
func Parse(data []byte) ([]core.Package, error) {
	var pkgs []core.Package
	scanner := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) != 6 {
			return nil, fmt.Errorf("line %d: expected 6 fields, got %d", line, len(fields))
		}
		epoch := 0
		if e := none(fields[4]); e != "" {
			n, err := strconv.Atoi(e)
			if err != nil {
				return nil, fmt.Errorf("line %d: epoch %q: %w", line, e, err)
			}
			epoch = n
		}
		pkgs = append(pkgs, core.Package{
			Name:    fields[0],
			Version: fields[1],
			Release: fields[2],
			Arch:    fields[3],
			Epoch:   epoch,
			Vendor:  none(fields[5]),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	core.SortPackages(pkgs)
	return pkgs, nil
}

func none(s string) string {
	if s == "(none)" {
		return ""
	}
	return s
}

// Equal reports whether a and b hold the same packages in any order.
func Equal(a, b []core.Package) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]core.Package(nil), a...)
	bs := append([]core.Package(nil), b...)
	core.SortPackages(as)
	core.SortPackages(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}
