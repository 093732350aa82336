package common

import "time"

// Publication represents one ingested source document. It is created once
// per document and is immutable afterwards, except for UpdatedAt and the
// monotonically increasing TotalPages counter.
type Publication struct {
	ID             string    `json:"pub_id"`
	Title          string    `json:"title"`
	Authors        []string  `json:"authors"`
	Abstract       string    `json:"abstract,omitempty"`
	Year           int       `json:"year,omitempty"`
	FundingSources []string  `json:"funding_sources,omitempty"`
	TotalPages     int       `json:"total_pages"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Page is one physical page of a Publication. Its identity is the
// (PublicationID, Number) pair, which doubles as the idempotency key for
// graph and vector writes.
type Page struct {
	ID            string   `json:"page_id"`
	PublicationID string   `json:"pub_id"`
	Number        int      `json:"page_number"`
	Text          string   `json:"ocr_text"`
	Figures       []Figure `json:"figures,omitempty"`
	ImageKey      string   `json:"image_key,omitempty"`
}

// FigureKind distinguishes the structured elements detected on a page.
type FigureKind string

const (
	FigureKindFigure FigureKind = "figure"
	FigureKindTable  FigureKind = "table"
)

// Figure describes a figure or table detected on a page.
type Figure struct {
	Kind    FigureKind `json:"kind"`
	Caption string     `json:"caption,omitempty"`
}

// EntityType is the closed enumeration of biomedical entity categories.
type EntityType string

const (
	EntityTypeOrganism   EntityType = "Organism"
	EntityTypeGene       EntityType = "Gene"
	EntityTypeProtein    EntityType = "Protein"
	EntityTypeChemical   EntityType = "Chemical"
	EntityTypeInstrument EntityType = "Instrument"
	EntityTypeEndpoint   EntityType = "Endpoint"
	EntityTypeCondition  EntityType = "Condition"
	EntityTypeOther      EntityType = "Other"
)

// EntityTypes lists every valid EntityType.
var EntityTypes = []EntityType{
	EntityTypeOrganism,
	EntityTypeGene,
	EntityTypeProtein,
	EntityTypeChemical,
	EntityTypeInstrument,
	EntityTypeEndpoint,
	EntityTypeCondition,
	EntityTypeOther,
}

// Valid reports whether t is a member of the closed enumeration.
func (t EntityType) Valid() bool {
	for _, known := range EntityTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Entity is a deduplicated biomedical concept. The same organism mentioned
// in two publications resolves to one Entity with multiple mentions. ID is
// derived from the normalized name and type (see EntityID), so extraction
// reruns converge on the same node.
type Entity struct {
	ID          string            `json:"entity_id"`
	Name        string            `json:"name"`
	Type        EntityType        `json:"entity_type"`
	CanonicalID string            `json:"canonical_id,omitempty"`
	Confidence  float64           `json:"confidence"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Mention links an Entity to the Page it was found on.
type Mention struct {
	EntityID   string  `json:"entity_id"`
	PageID     string  `json:"page_id"`
	Confidence float64 `json:"confidence"`
}

// RelationType enumerates the typed edges between graph nodes.
type RelationType string

const (
	RelationPartOf       RelationType = "PART_OF"
	RelationMentionedIn  RelationType = "MENTIONED_IN"
	RelationDescribedIn  RelationType = "DESCRIBED_IN"
	RelationInvestigates RelationType = "INVESTIGATES"
	RelationHasEndpoint  RelationType = "HAS_ENDPOINT"
	RelationMeasures     RelationType = "MEASURES"
)

// Relationship is a typed edge between two entities. Its identity is the
// (SourceID, TargetID, Type) triple; re-running extraction unions the
// evidence list and keeps the higher confidence instead of duplicating the
// edge.
type Relationship struct {
	SourceID   string       `json:"source_entity_id"`
	TargetID   string       `json:"target_entity_id"`
	Type       RelationType `json:"relationship_type"`
	Confidence float64      `json:"confidence"`
	Evidence   []string     `json:"evidence"`
}

// EmbeddingRecord is the vector-store row for one page. One record per
// page; overwritten, never duplicated, on re-ingestion.
type EmbeddingRecord struct {
	PageID        string    `json:"page_id"`
	PublicationID string    `json:"pub_id"`
	Vector        []float32 `json:"-"`
	Year          int       `json:"year,omitempty"`
	HasFigures    bool      `json:"has_figures"`
	Snippet       string    `json:"snippet,omitempty"`
}

// Document is a source document queued for ingestion.
type Document struct {
	ID    string `json:"id"`
	Path  string `json:"path"`
	Title string `json:"title,omitempty"`
}

// PageResult is the output of processing a single page: the page itself,
// the entities and relationships extracted from its text, and its
// embedding. It is the unit the writers commit idempotently.
type PageResult struct {
	Page      Page
	Entities  []Entity
	Mentions  []Mention
	Relations []Relationship
	Embedding []float32
}
