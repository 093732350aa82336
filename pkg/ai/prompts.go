package ai

// SynthesisSystemPrompt steers the answer model during citation-backed
// summarization. Evidence passages are numbered in the user prompt and the
// model's [n] markers are parsed back into citations.
const SynthesisSystemPrompt = `You are a biomedical research summarizer. Use ONLY the supplied evidence passages. Produce a concise answer (<=200 words) with numbered citations [1], [2], ... referring to the provided passages. For each factual claim, append the citation(s) that support it. If evidence contradicts, state the contradiction and list sources. If evidence is insufficient, say: "Insufficient evidence" and list candidate documents.`

const PageOCRPrompt = `
# Task Context
You are transcribing a single scanned page from a biomedical research publication.

# Detailed Task Description & Rules
- Transcribe ALL readable text on the page, preserving reading order (title, body, captions, footnotes).
- Keep scientific notation, units, gene/protein symbols, and species names exactly as printed.
- For tables, reproduce the content row by row as plain text with " | " between cells.
- For figures, include the caption text and a one-sentence description of what the figure shows.
- Do not summarize, interpret, or add content that is not on the page.
- If a region is illegible, write [illegible] in its place.

# Output Formatting
Return the transcribed page text only, no commentary.
`

const FigureDescriptionPrompt = `
# Task Context
You are describing a figure or table cropped from a scanned biomedical publication page.

# Detailed Task Description & Rules
- State whether the image is a figure (plot, diagram, micrograph, photo) or a table.
- Describe what is measured or shown: axes, units, conditions, groups, trends.
- Name the organisms, genes, proteins, chemicals, or instruments that appear.
- Transcribe the caption if one is visible.
- Keep the description under 120 words and strictly grounded in the image.

# Output Formatting
Return the description as plain text, no commentary.
`

const ExtractPrompt = `
# Task Context
You are extracting **structured biomedical entity and relationship information** from the text of a single publication page. The extraction feeds a knowledge graph, so precision matters more than recall.

# Background Data
- **Entity_types:** [%s]
- **Publication:** [%s]

# Detailed Task Description & Rules

## Entity Extraction
1. Identify all entities of the specified types [%s] that are explicitly mentioned on the page.
2. For each entity, extract:
   - **name:** the surface form as printed, trimmed of trailing punctuation.
   - **type:** one of the provided types [%s].
   - **canonical_id:** a database identifier when the text states or strongly implies one, using the prefixes "NCBITaxon:" for organisms and "UniProt:" for proteins; otherwise an empty string. Never invent identifiers.
   - **confidence:** a score (0.0-1.0) for how certain the mention is an entity of that type.
3. Do not extract author names, journal names, or section headings as entities.

## Relationship Extraction
1. From the identified entities, determine relationships that the page explicitly supports.
2. For each relationship, extract:
   - **source:** name of the source entity.
   - **target:** name of the target entity.
   - **type:** one of INVESTIGATES, HAS_ENDPOINT, MEASURES.
   - **confidence:** a score (0.0-1.0) for how directly the text supports the relationship.
   - **evidence:** a short verbatim quote from the page that supports the relationship.
3. If the page supports no relationships, return an empty array for "relationships".

# Output Formatting
Return valid JSON only matching the requested schema (no commentary, no extra text).
`

const MetadataPrompt = `
# Task Context
You are reading the first pages of a scanned biomedical publication and extracting its bibliographic metadata.

# Detailed Task Description & Rules
- **title:** the full publication title as printed.
- **authors:** the author list in printed order, one string per author.
- **abstract:** the abstract text if present, otherwise an empty string.
- **year:** the four-digit publication year, or 0 if not determinable.
- **funding_sources:** agencies or grants named in acknowledgments or footnotes, empty if none.
- Use only what is printed; never guess a year or invent authors.

# Output Formatting
Return valid JSON only matching the requested schema (no commentary, no extra text).
`
