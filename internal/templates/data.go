package templates

// ExportData feeds the Export template.
type ExportData struct {
	ExportedAt string
	Scope      string
	Entries    int
	Decisions  []ExportDecision
	Status     StatusCounts
	Board      []ExportEntry
	Entities   []ExportEntity
	Relations  []ExportRelation
}

// StatusCounts tallies decisions by status.
type StatusCounts struct {
	Active, Provisional, Superseded, Overridden int
}

// ExportDecision is one decision section.
type ExportDecision struct {
	ID, Summary, Domain, Scope, Status, Confidence, Timestamp string
	Context, Rationale                                         string
	Commits                                                    []string
	Alternatives                                               []ExportAlternative
}

// ExportAlternative is a rejected option.
type ExportAlternative struct {
	Option, ReasonRejected string
}

// ExportEntry is one blackboard table row.
type ExportEntry struct {
	Timestamp, Type, Summary, Scope string
}

// ExportEntity is one entity table row; Properties is pre-rendered JSON.
type ExportEntity struct {
	Name, Type, Properties string
}

// ExportRelation is one relation table row with names resolved.
type ExportRelation struct {
	Source, Type, Target string
}

// StatusData feeds the Status template.
type StatusData struct {
	Project        string
	Entries        int
	Decisions      int
	Active         int
	Provisional    int
	Entities       int
	Relations      int
	Agents         int
	ActiveAgents   int
	LastActivity   string
	NeedsArchiving bool
	Warnings       []string
	Summary        string
}
