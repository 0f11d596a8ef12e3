package trajectory

import "encoding/json"

func unmarshalLoose(text string, v any) error {
	return json.Unmarshal([]byte(text), v)
}
