package models

// StatusField is the project's single-select Status field as fetched from
// the board. Options maps option label to option id.
type StatusField struct {
	ID      string
	Options map[string]string
}

// OptionID returns the id of the option labelled status.
func (f StatusField) OptionID(status Status) (string, bool) {
	id, ok := f.Options[string(status)]
	return id, ok
}
