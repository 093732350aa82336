package export

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
)

// GraphCypher writes the corpus graph as a Cypher MERGE script. Statements
// merge by node ID and edge triple, matching the store's idempotency keys,
// so the script can be re-run against a populated database.
func (e *Exporter) GraphCypher(ctx context.Context, w io.Writer) error {
	doc, err := e.buildGraph(ctx)
	if err != nil {
		return err
	}

	for _, node := range doc.Nodes {
		if _, err := fmt.Fprintf(w, "MERGE (n:%s {id: %s})", node.Label, cypherValue(node.ID)); err != nil {
			return err
		}
		if assigns := cypherAssignments("n", node.Properties); assigns != "" {
			if _, err := fmt.Fprintf(w, " SET %s", assigns); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, ";\n"); err != nil {
			return err
		}
	}

	for _, edge := range doc.Edges {
		_, err := fmt.Fprintf(w,
			"MATCH (a {id: %s}), (b {id: %s}) MERGE (a)-[r:%s]->(b)",
			cypherValue(edge.Source), cypherValue(edge.Target), edge.Type)
		if err != nil {
			return err
		}
		if assigns := cypherAssignments("r", edge.Properties); assigns != "" {
			if _, err := fmt.Fprintf(w, " SET %s", assigns); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, ";\n"); err != nil {
			return err
		}
	}
	return nil
}

func cypherAssignments(alias string, props map[string]any) string {
	if len(props) == 0 {
		return ""
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s.%s = %s", alias, k, cypherValue(props[k])))
	}
	return strings.Join(parts, ", ")
}

func cypherValue(v any) string {
	switch val := v.(type) {
	case string:
		escaped := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(val)
		return "'" + escaped + "'"
	case []string:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, cypherValue(item))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprintf("%v", val)
	}
}
