package extract

import (
	"context"
	"strings"
	"time"

	"bionexus/pkg/ai"
	"bionexus/pkg/common"
)

type metadataResponse struct {
	Title          string   `json:"title" jsonschema_description:"Full publication title as printed"`
	Authors        []string `json:"authors" jsonschema_description:"Author list in printed order"`
	Abstract       string   `json:"abstract" jsonschema_description:"Abstract text, empty if not present"`
	Year           int      `json:"year" jsonschema_description:"Four-digit publication year, 0 if not determinable"`
	FundingSources []string `json:"funding_sources" jsonschema_description:"Funding agencies or grants, empty if none"`
}

// metadataPageLimit caps how many leading pages feed metadata extraction.
// Title, authors, abstract, and funding notes live in the front matter.
const metadataPageLimit = 3

// ExtractPublicationMetadata reads the text of the leading pages and fills
// bibliographic metadata on the publication. Fields the model cannot
// determine keep their zero values.
func ExtractPublicationMetadata(
	ctx context.Context,
	client ai.Client,
	pub *common.Publication,
	pageTexts []string,
) error {
	if len(pageTexts) > metadataPageLimit {
		pageTexts = pageTexts[:metadataPageLimit]
	}
	content := strings.TrimSpace(strings.Join(pageTexts, "\n\n"))
	if content == "" {
		return nil
	}

	rCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	var res metadataResponse
	err := client.GenerateCompletionWithFormat(
		rCtx,
		"publication_metadata",
		"Bibliographic metadata of a scanned biomedical publication.",
		content,
		&res,
		ai.WithSystemPrompts(ai.MetadataPrompt),
	)
	if err != nil {
		return err
	}

	if title := strings.TrimSpace(res.Title); title != "" {
		pub.Title = title
	}
	if len(res.Authors) > 0 {
		pub.Authors = res.Authors
	}
	if abstract := strings.TrimSpace(res.Abstract); abstract != "" {
		pub.Abstract = abstract
	}
	if res.Year >= 1800 && res.Year <= time.Now().Year()+1 {
		pub.Year = res.Year
	}
	if len(res.FundingSources) > 0 {
		pub.FundingSources = res.FundingSources
	}
	return nil
}
