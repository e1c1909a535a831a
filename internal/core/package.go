package core

import (
	"fmt"
	"sort"
)

// Package is one installed package as reported in the package profile.
type Package struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Release string `json:"release"`
	Arch    string `json:"arch"`
	Epoch   int    `json:"epoch"`
	Vendor  string `json:"vendor"`
}

// NEVRA returns the package in name-epoch:version-release.arch form.
func (p Package) NEVRA() string {
	return fmt.Sprintf("%s-%d:%s-%s.%s", p.Name, p.Epoch, p.Version, p.Release, p.Arch)
}

// SortPackages orders packages by every field so that two profiles can be
// compared independent of collection order.
func SortPackages(pkgs []Package) {
	sort.SliceStable(pkgs, func(i, j int) bool {
		a, b := pkgs[i], pkgs[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if a.Epoch != b.Epoch {
			return a.Epoch < b.Epoch
		}
		if a.Version != b.Version {
			return a.Version < b.Version
		}
		if a.Release != b.Release {
			return a.Release < b.Release
		}
		if a.Arch != b.Arch {
			return a.Arch < b.Arch
		}
		return a.Vendor < b.Vendor
	})
}

// InstalledProduct describes a product certificate present on the system.
type InstalledProduct struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	Version     string `json:"version"`
	Arch        string `json:"arch"`
}

// SortInstalledProducts orders installed products by id, then version.
func SortInstalledProducts(products []InstalledProduct) {
	sort.SliceStable(products, func(i, j int) bool {
		if products[i].ProductID != products[j].ProductID {
			return products[i].ProductID < products[j].ProductID
		}
		return products[i].Version < products[j].Version
	})
}
