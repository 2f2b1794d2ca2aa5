// Package discovery scans agent definition directories, resolves definition
// files into descriptors, and watches the directories for changes. Definitions
// come in three categories: commands and agents are flat directories of .md
// files, skills are subdirectories each containing a SKILL.md file.
package discovery

// Category identifies one of the three definition kinds.
type Category string

const (
	// CategoryCommand is a flat directory of command definition files.
	CategoryCommand Category = "command"
	// CategorySkill is a directory of subdirectories, each holding a SKILL.md.
	CategorySkill Category = "skill"
	// CategoryAgent is a flat directory of agent definition files.
	CategoryAgent Category = "agent"
)

// presentation holds the fixed display attributes assigned per category.
// These never come from the file header.
type presentation struct {
	icon  string
	color string
}

var presentations = map[Category]presentation{
	CategoryCommand: {icon: "\U0001F4DD", color: "#3498db"},
	CategorySkill:   {icon: "\U0001F3AF", color: "#9b59b6"},
	CategoryAgent:   {icon: "\U0001F916", color: "#2ecc71"},
}

// Descriptor is the resolved, in-memory representation of one discovered
// definition. ID, Category, and Path are always populated; the remaining
// fields carry category-specific defaults when absent from the header.
type Descriptor struct {
	ID          string
	Category    Category
	Name        string
	Description string
	Path        string
	Icon        string
	Color       string
	Enabled     bool
	// Extra carries header fields that are not promoted to real fields.
	Extra map[string]any
}

// ChangeKind classifies a detected file transition.
type ChangeKind string

const (
	// ChangeAdded indicates a definition file appeared.
	ChangeAdded ChangeKind = "added"
	// ChangeModified indicates a definition file's modification time advanced.
	ChangeModified ChangeKind = "modified"
	// ChangeRemoved indicates a definition file disappeared.
	ChangeRemoved ChangeKind = "removed"
)

// ChangeEvent describes one detected transition of a definition file.
type ChangeEvent struct {
	Kind     ChangeKind
	ID       string
	Category Category
	Path     string
}
