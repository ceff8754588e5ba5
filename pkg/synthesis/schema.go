package synthesis

import "encoding/json"

// Schema is the subset of OpenAPI schema used to constrain JSON responses.
type Schema struct {
	Type       string             `json:"type"`
	Properties map[string]*Schema `json:"properties,omitempty"`
	Items      *Schema            `json:"items,omitempty"`
	Enum       []string           `json:"enum,omitempty"`
	Required   []string           `json:"required,omitempty"`
}

const (
	TypeObject  = "object"
	TypeArray   = "array"
	TypeString  = "string"
	TypeNumber  = "number"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
)

func (s *Schema) String() string {
	b, err := json.Marshal(s)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// nodeDetailsSchema describes the node detail response.
var nodeDetailsSchema = &Schema{
	Type: TypeObject,
	Properties: map[string]*Schema{
		"definition": {Type: TypeString},
		"examples":   {Type: TypeArray, Items: &Schema{Type: TypeString}},
		"type":       {Type: TypeString, Enum: []string{string(NodeConcept), string(NodeExample), string(NodeApplication)}},
		"confidence": {Type: TypeNumber},
		"evidence": {Type: TypeArray, Items: &Schema{
			Type: TypeObject,
			Properties: map[string]*Schema{
				"page":       {Type: TypeNumber},
				"snippet":    {Type: TypeString},
				"confidence": {Type: TypeNumber},
			},
		}},
		"relationships": {Type: TypeArray, Items: &Schema{
			Type: TypeObject,
			Properties: map[string]*Schema{
				"target": {Type: TypeString},
				"type":   {Type: TypeString},
				"score":  {Type: TypeNumber},
			},
		}},
	},
}
