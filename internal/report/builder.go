package report

import (
	"sort"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/envrun-project/envrun/internal/journal"
)

// BuildModel transforms journal records into a Model with deterministic sorting.
// Sorting order: app name (asc), rows by time (desc, newest first).
func BuildModel(provisions []*journal.Provision, snapshots []journal.Snapshot) *Model {
	provisionMap := make(map[string][]ProvisionRow)
	for _, p := range provisions {
		if p == nil {
			continue
		}
		provisionMap[p.App] = append(provisionMap[p.App], ProvisionRow{
			Action:        p.Action,
			PythonVersion: p.PythonVersion,
			PackageCount:  p.PackageCount,
			Duration:      time.Duration(p.DurationMS) * time.Millisecond,
			ProvisionedAt: p.ProvisionedAt,
			Success:       p.Success,
			ErrorMessage:  p.ErrorMessage,
		})
	}

	snapshotMap := make(map[string][]SnapshotRow)
	for _, s := range snapshots {
		snapshotMap[s.App] = append(snapshotMap[s.App], SnapshotRow{
			Tag:           s.Tag,
			PythonVersion: s.PythonVersion,
			PackageCount:  s.PackageCount,
			Size:          int64(len(s.Packages)),
			ReleaseTag:    s.ReleaseTag,
			ReleaseURL:    s.ReleaseURL,
			CreatedAt:     s.CreatedAt,
		})
	}

	appNames := make(map[string]bool)
	for name := range provisionMap {
		appNames[name] = true
	}
	for name := range snapshotMap {
		appNames[name] = true
	}

	title := cases.Title(language.English)

	apps := make([]AppModel, 0, len(appNames))
	for _, name := range sortedStringKeys(appNames) {
		provisionRows := provisionMap[name]
		sort.Slice(provisionRows, func(i, j int) bool {
			return provisionRows[i].ProvisionedAt.After(provisionRows[j].ProvisionedAt)
		})

		snapshotRows := snapshotMap[name]
		sort.Slice(snapshotRows, func(i, j int) bool {
			return snapshotRows[i].CreatedAt.After(snapshotRows[j].CreatedAt)
		})

		apps = append(apps, AppModel{
			Name:       name,
			Title:      title.String(name),
			Provisions: provisionRows,
			Snapshots:  snapshotRows,
		})
	}

	return &Model{
		GeneratedAt: time.Now().UTC(),
		Apps:        apps,
	}
}

// sortedStringKeys returns sorted keys from a map[string]T.
func sortedStringKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
