// Package report renders resolution results for the terminal.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/tree"

	"dtsresolve/internal/engine/model"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#3B82F6"))
	packageStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#10B981"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	branchStyle  = mutedStyle.PaddingRight(1)
)

// PackageGroup is the set of module keys belonging to one package.
type PackageGroup struct {
	Package string
	Files   []string
}

// GroupByPackage splits keys by their package name ("react", "@scope/name")
// and returns the groups in name order with files sorted.
func GroupByPackage(deps model.DependencyMap) []PackageGroup {
	byPackage := make(map[string][]string)
	for key := range deps {
		pkg, file := SplitKey(key)
		byPackage[pkg] = append(byPackage[pkg], file)
	}
	groups := make([]PackageGroup, 0, len(byPackage))
	for pkg, files := range byPackage {
		sort.Strings(files)
		groups = append(groups, PackageGroup{Package: pkg, Files: files})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Package < groups[j].Package })
	return groups
}

// SplitKey separates a module key into its package name and the path inside it.
func SplitKey(key string) (pkg, file string) {
	parts := strings.Split(key, "/")
	n := 1
	if strings.HasPrefix(key, "@") {
		n = 2
	}
	if len(parts) <= n {
		return key, ""
	}
	return strings.Join(parts[:n], "/"), strings.Join(parts[n:], "/")
}

// RenderTree draws deps as a tree grouped by package.
func RenderTree(deps model.DependencyMap) string {
	groups := GroupByPackage(deps)

	root := tree.New().EnumeratorStyle(branchStyle)
	for _, g := range groups {
		label := packageStyle.Render(g.Package) + " " + mutedStyle.Render(fmt.Sprintf("(%d)", len(g.Files)))
		root.Child(tree.Root(label).Child(g.Files))
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("%d declaration files across %d packages", len(deps), len(groups))))
	b.WriteString("\n")
	if len(groups) > 0 {
		b.WriteString(root.String())
		b.WriteString("\n")
	}
	return b.String()
}
