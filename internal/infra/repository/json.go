package repository

import "encoding/json"

// mapでUpdatesするときはserializerが効かないので自前でJSONにする
func featuresJSON(features []string) string {
	if features == nil {
		features = []string{}
	}
	b, err := json.Marshal(features)
	if err != nil {
		return "[]"
	}
	return string(b)
}
