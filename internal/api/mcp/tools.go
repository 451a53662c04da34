package mcp

// Tool represents an MCP tool definition
type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"inputSchema"`
}

// InputSchema defines the JSON schema for tool input
type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Property defines a property in the schema
type Property struct {
	Type        string              `json:"type"`
	Description string              `json:"description,omitempty"`
	Enum        []string            `json:"enum,omitempty"`
	Items       *Property           `json:"items,omitempty"`
	Properties  map[string]Property `json:"properties,omitempty"`
	Default     any                 `json:"default,omitempty"`
}

var (
	collectionProperty = Property{
		Type:        "string",
		Description: "集合名称，不能包含 : * ? [ ] \\",
	}
	queryProperty = Property{
		Type:        "object",
		Description: "查询条件。字段值为字面量表示相等；也可以是操作符对象，支持 $in $ne $gt $lt $regex $options",
	}
)

// DocstoreTools defines all available MCP tools for collection operations
var DocstoreTools = []Tool{
	{
		Name:        "docstore_set",
		Description: "写入一条记录。记录必须包含 id 或 userId，同 id 的记录会被整体覆盖。",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"collection": collectionProperty,
				"record": {
					Type:        "object",
					Description: "要写入的记录",
				},
				"ttl": {
					Type:        "string",
					Description: "过期时间，例如 30s、1h。为空时使用集合默认值",
				},
			},
			Required: []string{"collection", "record"},
		},
	},
	{
		Name:        "docstore_find",
		Description: "查询所有匹配的记录。",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"collection": collectionProperty,
				"query":      queryProperty,
			},
			Required: []string{"collection"},
		},
	},
	{
		Name:        "docstore_find_one",
		Description: "返回一条匹配的记录，没有匹配时返回 null。",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"collection": collectionProperty,
				"query":      queryProperty,
			},
			Required: []string{"collection"},
		},
	},
	{
		Name:        "docstore_count",
		Description: "统计匹配的记录数量。",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"collection": collectionProperty,
				"query":      queryProperty,
			},
			Required: []string{"collection"},
		},
	},
	{
		Name:        "docstore_update",
		Description: "把 patch 合并到所有匹配的记录中，不能修改 id 或 userId。",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"collection": collectionProperty,
				"query":      queryProperty,
				"patch": {
					Type:        "object",
					Description: "要合并的字段",
				},
			},
			Required: []string{"collection", "patch"},
		},
	},
	{
		Name:        "docstore_delete",
		Description: "删除所有匹配的记录及其索引。",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"collection": collectionProperty,
				"query":      queryProperty,
			},
			Required: []string{"collection"},
		},
	},
}
