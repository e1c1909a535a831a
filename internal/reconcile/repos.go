package reconcile

import (
	"context"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/opmodel/subctl/internal/action"
	"github.com/opmodel/subctl/internal/certificate"
	"github.com/opmodel/subctl/internal/repofile"
)

// contentTypeYum is the only content type turned into repo sections.
const contentTypeYum = "yum"

// RepoUpdater regenerates the repo file from valid entitlement content,
// preserving local edits to mutable keys.
type RepoUpdater struct {
	deps *Deps
}

// Kind implements action.Updater.
func (u *RepoUpdater) Kind() action.Kind { return action.KindRepos }

// DoUpdate implements action.Updater.
func (u *RepoUpdater) DoUpdate(ctx context.Context) (*action.Report, error) {
	report := action.NewReport("Repositories")

	if !u.deps.ManageRepos {
		removed, err := repofile.Remove(u.deps.RepoFile)
		if err != nil {
			return nil, err
		}
		if removed {
			report.AddUpdate("removed %s", u.deps.RepoFile)
		}
		report.Status = "unmanaged"
		return report, nil
	}

	file, err := repofile.Read(u.deps.RepoFile)
	if err != nil {
		return nil, err
	}

	wanted, err := u.Repos()
	if err != nil {
		return nil, err
	}

	valid := sets.New[string]()
	for _, fresh := range wanted {
		valid.Insert(fresh.ID)
		existing := file.Section(fresh.ID)
		if existing == nil {
			file.Add(fresh)
			report.AddUpdate("added [%s]", fresh.ID)
			continue
		}
		if n := repofile.Update(existing, fresh); n > 0 {
			report.AddUpdate("updated [%s] (%d keys)", fresh.ID, n)
		}
	}

	for _, id := range file.Sections() {
		if !valid.Has(id) {
			file.Delete(id)
			report.AddUpdate("deleted [%s]", id)
		}
	}

	report.Status = "managed"
	if report.UpdateCount() == 0 {
		return report, nil
	}
	if err := file.Write(); err != nil {
		return nil, err
	}
	return report, nil
}

// Repos returns the repo definitions the current certificates grant, in
// certificate order. The first certificate to provide a label wins.
func (u *RepoUpdater) Repos() ([]*repofile.Repo, error) {
	certs, err := u.deps.EntDir.ListValid()
	if err != nil {
		return nil, err
	}
	u.deps.ProdDir.Refresh()
	tags, err := u.deps.ProdDir.ProvidedTags()
	if err != nil {
		return nil, err
	}

	seen := sets.New[string]()
	var out []*repofile.Repo
	for _, ec := range certs {
		for _, c := range ec.Content() {
			if !matches(c, tags) {
				continue
			}
			r := repofile.FromContent(c, ec, u.deps.BaseURL, u.deps.RepoCACert)
			if seen.Has(r.ID) {
				continue
			}
			seen.Insert(r.ID)
			out = append(out, r)
		}
	}
	return out, nil
}

func matches(c certificate.Content, tags sets.Set[string]) bool {
	if c.Type != contentTypeYum {
		return false
	}
	return tags.HasAll(c.RequiredTags...)
}
