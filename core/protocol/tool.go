package protocol

// Tool describes a function the model may request. Parameters uses JSON
// Schema to describe the expected argument object.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}
