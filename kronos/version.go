package kronos

// Library identity stamped into every event written with Put.
const (
	LibraryName = "kronos-go"
	Version     = "0.5.0"
)
