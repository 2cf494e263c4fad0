package mcp

// toolDefinitions returns the tool registry's JSON-Schema descriptions.
// icm_embed_all is appended only when an embedding capability is
// configured, since it has nothing to do without one.
func toolDefinitions(hasEmbedder bool) []Tool {
	tools := []Tool{
		{
			Name:        "icm_store",
			Description: "Store a new memory under a topic.",
			InputSchema: schema(map[string]interface{}{
				"topic":       prop("string", "Topic to file this memory under."),
				"content":     prop("string", "The memory text to store."),
				"importance":  propEnum("critical, high, medium, or low. Defaults to medium.", "critical", "high", "medium", "low"),
				"keywords":    propArray("Optional keywords to aid keyword search."),
				"raw_excerpt": prop("string", "Optional verbatim source excerpt."),
			}, "topic", "content"),
		},
		{
			Name:        "icm_recall",
			Description: "Recall memories relevant to a query, optionally scoped to a topic.",
			InputSchema: schema(map[string]interface{}{
				"query": prop("string", "Free-text query."),
				"topic": prop("string", "Optional topic filter."),
				"limit": prop("integer", "Maximum results to return (1-20). Defaults to 5."),
			}, "query"),
		},
		{
			Name:        "icm_forget",
			Description: "Delete a memory by id.",
			InputSchema: schema(map[string]interface{}{
				"id": prop("string", "Memory id to delete."),
			}, "id"),
		},
		{
			Name:        "icm_consolidate",
			Description: "Replace every memory under a topic with a single consolidated memory.",
			InputSchema: schema(map[string]interface{}{
				"topic":   prop("string", "Topic to consolidate."),
				"summary": prop("string", "Consolidated summary text."),
			}, "topic", "summary"),
		},
		{
			Name:        "icm_list_topics",
			Description: "List every topic and how many memories are filed under it.",
			InputSchema: schema(nil),
		},
		{
			Name:        "icm_stats",
			Description: "Summarize the memory store's contents.",
			InputSchema: schema(nil),
		},
		{
			Name:        "icm_memoir_create",
			Description: "Create a new memoir (a named concept-graph partition).",
			InputSchema: schema(map[string]interface{}{
				"name":        prop("string", "Memoir name."),
				"description": prop("string", "Optional description."),
			}, "name"),
		},
		{
			Name:        "icm_memoir_list",
			Description: "List every memoir.",
			InputSchema: schema(nil),
		},
		{
			Name:        "icm_memoir_show",
			Description: "Show a memoir's full concept listing and stats.",
			InputSchema: schema(map[string]interface{}{
				"name": prop("string", "Memoir name."),
			}, "name"),
		},
		{
			Name:        "icm_memoir_add_concept",
			Description: "Add a concept to a memoir.",
			InputSchema: schema(map[string]interface{}{
				"memoir":     prop("string", "Memoir name."),
				"name":       prop("string", "Concept name."),
				"definition": prop("string", "Concept definition."),
				"labels":     prop("string", "Comma-separated namespace:value labels."),
			}, "memoir", "name", "definition"),
		},
		{
			Name:        "icm_memoir_refine",
			Description: "Refine an existing concept's definition, bumping its confidence and revision.",
			InputSchema: schema(map[string]interface{}{
				"memoir":     prop("string", "Memoir name."),
				"name":       prop("string", "Concept name."),
				"definition": prop("string", "Replacement definition."),
			}, "memoir", "name", "definition"),
		},
		{
			Name:        "icm_memoir_search",
			Description: "Full-text search concepts within a memoir.",
			InputSchema: schema(map[string]interface{}{
				"memoir": prop("string", "Memoir name."),
				"query":  prop("string", "Free-text query."),
				"limit":  prop("integer", "Maximum results. Defaults to 10."),
			}, "memoir", "query"),
		},
		{
			Name:        "icm_concept_search",
			Description: "Full-text search concepts across every memoir.",
			InputSchema: schema(map[string]interface{}{
				"query": prop("string", "Free-text query."),
				"limit": prop("integer", "Maximum results. Defaults to 10."),
			}, "query"),
		},
		{
			Name:        "icm_memoir_link",
			Description: "Create a directed, typed link between two concepts in a memoir.",
			InputSchema: schema(map[string]interface{}{
				"memoir":   prop("string", "Memoir name."),
				"from":     prop("string", "Source concept name."),
				"to":       prop("string", "Target concept name."),
				"relation": propEnum("Relation kind.",
					"part_of", "depends_on", "related_to", "contradicts", "refines",
					"alternative_to", "caused_by", "instance_of", "superseded_by"),
			}, "memoir", "from", "to", "relation"),
		},
		{
			Name:        "icm_memoir_inspect",
			Description: "Inspect a concept's neighborhood out to a given depth.",
			InputSchema: schema(map[string]interface{}{
				"memoir": prop("string", "Memoir name."),
				"name":   prop("string", "Concept name."),
				"depth":  prop("integer", "Traversal depth. Defaults to 1."),
			}, "memoir", "name"),
		},
	}

	if hasEmbedder {
		tools = append(tools, Tool{
			Name:        "icm_embed_all",
			Description: "Backfill embeddings for every memory that does not yet have one.",
			InputSchema: schema(nil),
		})
	}

	return tools
}

func schema(properties map[string]interface{}, required ...string) map[string]interface{} {
	s := map[string]interface{}{"type": "object"}
	if properties != nil {
		s["properties"] = properties
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func prop(typ, description string) map[string]interface{} {
	return map[string]interface{}{"type": typ, "description": description}
}

func propEnum(description string, values ...string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": description, "enum": values}
}

func propArray(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "array",
		"items":       map[string]interface{}{"type": "string"},
		"description": description,
	}
}
