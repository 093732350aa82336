package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bionexus/pkg/ai"
	"bionexus/pkg/common"
)

type extractEntity struct {
	Name        string  `json:"name" jsonschema_description:"Surface form of the entity as printed on the page"`
	Type        string  `json:"type" jsonschema_description:"One of the provided entity types"`
	CanonicalID string  `json:"canonical_id" jsonschema_description:"Database identifier such as NCBITaxon:9606 or UniProt:P02452, empty if unknown"`
	Confidence  float64 `json:"confidence" jsonschema_description:"Certainty that this is an entity of the given type, 0.0-1.0"`
}

type extractRelationship struct {
	Source     string  `json:"source" jsonschema_description:"Name of the source entity, as identified above"`
	Target     string  `json:"target" jsonschema_description:"Name of the target entity, as identified above"`
	Type       string  `json:"type" jsonschema_description:"One of INVESTIGATES, HAS_ENDPOINT, MEASURES"`
	Confidence float64 `json:"confidence" jsonschema_description:"How directly the page text supports the relationship, 0.0-1.0"`
	Evidence   string  `json:"evidence" jsonschema_description:"Short verbatim quote from the page supporting the relationship"`
}

type extractResponse struct {
	Entities      []extractEntity       `json:"entities" jsonschema_description:"Biomedical entities mentioned on the page"`
	Relationships []extractRelationship `json:"relationships" jsonschema_description:"Relationships the page explicitly supports"`
}

var relationTypes = map[string]common.RelationType{
	string(common.RelationInvestigates): common.RelationInvestigates,
	string(common.RelationHasEndpoint):  common.RelationHasEndpoint,
	string(common.RelationMeasures):     common.RelationMeasures,
}

// AIEntityExtractor performs structured NER over page text with a
// schema-constrained model call.
type AIEntityExtractor struct {
	client  ai.Client
	timeout time.Duration
}

// NewAIEntityExtractor creates a model-backed entity extractor. A timeout
// of zero falls back to two minutes per page.
func NewAIEntityExtractor(client ai.Client, timeout time.Duration) *AIEntityExtractor {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &AIEntityExtractor{
		client:  client,
		timeout: timeout,
	}
}

// ExtractEntities identifies typed entities and relationships in the page
// text. Unknown entity types map to Other, confidences are clamped to
// [0,1], and canonical IDs without a known prefix are dropped rather than
// trusted.
func (e *AIEntityExtractor) ExtractEntities(
	ctx context.Context,
	pub common.Publication,
	pageText string,
) ([]common.Entity, []common.Relationship, error) {
	if strings.TrimSpace(pageText) == "" {
		return nil, nil, nil
	}

	types := make([]string, 0, len(common.EntityTypes))
	for _, t := range common.EntityTypes {
		types = append(types, string(t))
	}
	typeList := strings.Join(types, ",")

	systemPrompt := fmt.Sprintf(
		ai.ExtractPrompt,
		typeList,
		pub.Title,
		typeList,
		typeList,
	)

	rCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var res extractResponse
	err := e.client.GenerateCompletionWithFormat(
		rCtx,
		"page_extraction",
		"Biomedical entities and relationships found on a publication page.",
		pageText,
		&res,
		ai.WithSystemPrompts(systemPrompt),
	)
	if err != nil {
		return nil, nil, err
	}

	entities := make([]common.Entity, 0, len(res.Entities))
	byName := make(map[string]common.Entity, len(res.Entities))
	for _, raw := range res.Entities {
		name := strings.TrimSpace(raw.Name)
		if name == "" {
			continue
		}

		entityType := common.EntityType(raw.Type)
		if !entityType.Valid() {
			entityType = common.EntityTypeOther
		}

		entity := common.Entity{
			Name:        name,
			Type:        entityType,
			CanonicalID: sanitizeCanonicalID(raw.CanonicalID),
			Confidence:  clampConfidence(raw.Confidence),
		}
		entity.ID = common.EntityID(entity.Name, entity.CanonicalID, entity.Type)

		if existing, ok := byName[common.NormalizeName(name)]; ok {
			if entity.Confidence > existing.Confidence {
				byName[common.NormalizeName(name)] = entity
			}
			continue
		}
		byName[common.NormalizeName(name)] = entity
		entities = append(entities, entity)
	}
	for i := range entities {
		entities[i] = byName[common.NormalizeName(entities[i].Name)]
	}

	relations := make([]common.Relationship, 0, len(res.Relationships))
	for _, raw := range res.Relationships {
		relType, ok := relationTypes[strings.ToUpper(strings.TrimSpace(raw.Type))]
		if !ok {
			continue
		}
		source, ok := byName[common.NormalizeName(raw.Source)]
		if !ok {
			continue
		}
		target, ok := byName[common.NormalizeName(raw.Target)]
		if !ok {
			continue
		}
		if source.ID == target.ID {
			continue
		}

		rel := common.Relationship{
			SourceID:   source.ID,
			TargetID:   target.ID,
			Type:       relType,
			Confidence: clampConfidence(raw.Confidence),
		}
		if quote := strings.TrimSpace(raw.Evidence); quote != "" {
			rel.Evidence = []string{quote}
		}
		relations = append(relations, rel)
	}

	return entities, relations, nil
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

var canonicalPrefixes = []string{"NCBITaxon:", "UniProt:"}

func sanitizeCanonicalID(id string) string {
	id = strings.TrimSpace(id)
	for _, prefix := range canonicalPrefixes {
		if strings.HasPrefix(id, prefix) && len(id) > len(prefix) {
			return id
		}
	}
	return ""
}
