// Package export dumps the ingested corpus in interchange formats: entity
// and publication tables as JSON or CSV, and the graph as a JSON node/edge
// document or Cypher MERGE script for loading into a graph database.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"bionexus/pkg/common"
	"bionexus/pkg/store"
)

// Format describes one export format for the catalog endpoint.
type Format struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Description string `json:"description"`
}

// Formats lists every supported export format.
func Formats() []Format {
	return []Format{
		{Name: "entities.json", ContentType: "application/json", Description: "Entity table with canonical IDs and confidence"},
		{Name: "entities.csv", ContentType: "text/csv", Description: "Entity table as CSV"},
		{Name: "publications.json", ContentType: "application/json", Description: "Publication metadata"},
		{Name: "publications.csv", ContentType: "text/csv", Description: "Publication metadata as CSV"},
		{Name: "graph.json", ContentType: "application/json", Description: "Node/edge graph interchange document"},
		{Name: "graph.cypher", ContentType: "text/plain", Description: "Cypher MERGE script"},
	}
}

// Exporter reads the corpus out of the graph store.
type Exporter struct {
	Graph store.GraphStore
}

// NewExporter creates an Exporter.
func NewExporter(graph store.GraphStore) *Exporter {
	return &Exporter{Graph: graph}
}

type entitiesEnvelope struct {
	Count    int             `json:"count"`
	Entities []common.Entity `json:"entities"`
}

// EntitiesJSON writes every entity, optionally restricted to one type.
func (e *Exporter) EntitiesJSON(ctx context.Context, w io.Writer, entityType common.EntityType) error {
	entities, err := e.Graph.ListEntities(ctx, entityType)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(entitiesEnvelope{Count: len(entities), Entities: entities})
}

// EntitiesCSV writes the entity table as CSV.
func (e *Exporter) EntitiesCSV(ctx context.Context, w io.Writer, entityType common.EntityType) error {
	entities, err := e.Graph.ListEntities(ctx, entityType)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"entity_id", "name", "entity_type", "canonical_id", "confidence"}); err != nil {
		return err
	}
	for _, entity := range entities {
		record := []string{
			entity.ID,
			entity.Name,
			string(entity.Type),
			entity.CanonicalID,
			strconv.FormatFloat(entity.Confidence, 'f', -1, 64),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

type publicationsEnvelope struct {
	Count        int                  `json:"count"`
	Publications []common.Publication `json:"publications"`
}

// PublicationsJSON writes every publication's metadata.
func (e *Exporter) PublicationsJSON(ctx context.Context, w io.Writer) error {
	pubs, err := e.Graph.ListPublications(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(publicationsEnvelope{Count: len(pubs), Publications: pubs})
}

// PublicationsCSV writes the publication table as CSV.
func (e *Exporter) PublicationsCSV(ctx context.Context, w io.Writer) error {
	pubs, err := e.Graph.ListPublications(ctx)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"pub_id", "title", "authors", "year", "total_pages"}); err != nil {
		return err
	}
	for _, pub := range pubs {
		record := []string{
			pub.ID,
			pub.Title,
			strings.Join(pub.Authors, "; "),
			strconv.Itoa(pub.Year),
			strconv.Itoa(pub.TotalPages),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// GraphNode is one node in the interchange document.
type GraphNode struct {
	ID         string            `json:"id"`
	Label      string            `json:"label"`
	Properties map[string]any    `json:"properties,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// GraphEdge is one typed edge in the interchange document.
type GraphEdge struct {
	Source     string         `json:"source"`
	Target     string         `json:"target"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
}

// GraphDocument is the JSON graph interchange envelope.
type GraphDocument struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// GraphJSON writes the corpus graph: publication, page, and entity nodes;
// containment, mention, and typed entity edges.
func (e *Exporter) GraphJSON(ctx context.Context, w io.Writer) error {
	doc, err := e.buildGraph(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func (e *Exporter) buildGraph(ctx context.Context) (GraphDocument, error) {
	var doc GraphDocument

	pubs, err := e.Graph.ListPublications(ctx)
	if err != nil {
		return doc, err
	}
	for _, pub := range pubs {
		doc.Nodes = append(doc.Nodes, GraphNode{
			ID:    pub.ID,
			Label: "Publication",
			Properties: map[string]any{
				"title":       pub.Title,
				"year":        pub.Year,
				"total_pages": pub.TotalPages,
			},
		})

		pages, err := e.Graph.ListPages(ctx, pub.ID)
		if err != nil {
			return doc, err
		}
		for _, page := range pages {
			doc.Nodes = append(doc.Nodes, GraphNode{
				ID:    page.ID,
				Label: "Page",
				Properties: map[string]any{
					"page_number": page.Number,
					"figures":     len(page.Figures),
				},
			})
			doc.Edges = append(doc.Edges, GraphEdge{
				Source: page.ID,
				Target: pub.ID,
				Type:   string(common.RelationPartOf),
			})
		}
	}

	entities, err := e.Graph.ListEntities(ctx, "")
	if err != nil {
		return doc, err
	}
	for _, entity := range entities {
		doc.Nodes = append(doc.Nodes, GraphNode{
			ID:    entity.ID,
			Label: string(entity.Type),
			Properties: map[string]any{
				"name":         entity.Name,
				"canonical_id": entity.CanonicalID,
				"confidence":   entity.Confidence,
			},
			Metadata: entity.Metadata,
		})
	}

	mentions, err := e.Graph.ListMentions(ctx)
	if err != nil {
		return doc, err
	}
	for _, mention := range mentions {
		doc.Edges = append(doc.Edges, GraphEdge{
			Source: mention.EntityID,
			Target: mention.PageID,
			Type:   string(common.RelationMentionedIn),
			Properties: map[string]any{
				"confidence": mention.Confidence,
			},
		})
	}

	relations, err := e.Graph.ListRelationships(ctx)
	if err != nil {
		return doc, err
	}
	for _, rel := range relations {
		doc.Edges = append(doc.Edges, GraphEdge{
			Source: rel.SourceID,
			Target: rel.TargetID,
			Type:   string(rel.Type),
			Properties: map[string]any{
				"confidence": rel.Confidence,
				"evidence":   rel.Evidence,
			},
		})
	}
	return doc, nil
}
