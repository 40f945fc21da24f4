package formatting

import (
	"encoding/json"
	"fmt"
)

// PrettyJSON renders v as JSON indented by two spaces. Values that cannot be
// marshaled fall back to their %v form so CLI output never fails outright.
func PrettyJSON(v interface{}) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
