package render

import (
	"encoding/json"
	"io"
)

// JSON writes v indented. Undefined percentages and statistics encode as null.
func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
