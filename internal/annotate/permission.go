package annotate

// Source identifies who created an annotation, per spec.md §4.10.
type Source string

const (
	SourceUser   Source = "user"
	SourceAI     Source = "ai"
	SourceServer Source = "server"
)

// Permission is the set of mutation rights a Source has over its own
// annotations.
type Permission struct {
	Deletable bool
	Editable  bool
	Countable bool
	Hideable  bool
}

// defaultPermissions is the built-in permission table keyed by source,
// per spec.md §4.10. Overridable per-deployment via Store.SetPermission.
func defaultPermissions() map[Source]Permission {
	return map[Source]Permission{
		SourceUser:   {Deletable: true, Editable: true, Countable: true, Hideable: true},
		SourceAI:     {Deletable: true, Editable: false, Countable: true, Hideable: true},
		SourceServer: {Deletable: false, Editable: false, Countable: false, Hideable: true},
	}
}
