package descriptions

// Tool descriptions with practical examples and use cases

const (
	// Template management
	TemplateListDescription = `List every saved ROI template and show which one was used last.

**When to use:** Before extracting, to pick the template that matches the declaration layout you have.

**Examples:**
• "Which templates are saved?"
• "Is the busan-2024 template complete?"

**Best practices:** Incomplete templates are flagged and cannot be used for extraction.`

	TemplateShowDescription = `Show one template as its export payload: capture resolution plus one normalized rectangle [x1, y1, x2, y2] per field.

**When to use:** To inspect or copy the regions of a saved template.

**Best practices:** Coordinates are fractions of the page width and height, origin top-left.`

	TemplateSaveDescription = `Create or replace a template from a set of regions.

**When to use:** After drawing rectangles over a rendered declaration page.

**Parameters:**
• regions: JSON object mapping every field name to [x1, y1, x2, y2]
• width/height: when given, the rectangles are pixel coordinates on an image of that size and are normalized before saving; otherwise they must already be normalized

**Examples:**
• "Save these regions as busan-2024 at 144 dpi"

**Best practices:** All nine fields are required. A template missing any region is rejected and nothing is written. A saved template becomes the default for previews and batches.`

	TemplateImportDescription = `Import a template from an export payload (JSON text or a path to a .json file) and save it under a name.

**When to use:** Sharing templates between machines or restoring a backup.

**Best practices:** Unknown field names, out-of-range coordinates and resolutions above 1200 dpi are rejected. The imported template must still cover every field and becomes the default once saved.`

	TemplateExportDescription = `Export a saved template as a standalone JSON payload, optionally writing it to a file.

**When to use:** Backing up or sharing a template.`

	TemplateDeleteDescription = `Delete a saved template. If it was the last-used template, the last-used marker is cleared.`

	TemplateUseDescription = `Mark a template as last used so later previews and batches pick it by default.`

	// Normalization and preview
	ROINormalizeDescription = `Run the field normalizer on raw text, exactly as extraction would.

**When to use:** Checking why a field came out empty, or testing a region's text before saving a template.

**Examples:**
• field "환율", raw "1,345.50 (USD)" gives 1345.5000
• field "신고일", raw "2024.3.5" gives 2024/03/05`

	TemplatePreviewDescription = `Render the first page of a declaration with every template region drawn in its field colour, returned as a PNG image.

**When to use:** Checking that a template lines up with a new batch of documents before extracting.

**Best practices:** Text positions are drawn as marks; the page is not rasterised. Each region carries its field number on a label, listed in the caption.`

	PDFInspectDescription = `Report page count, page sizes, PDF version and encryption for a declaration PDF.

**When to use:** When a document fails to extract or the layout looks shifted.

**Best practices:** Only the first page of a declaration is read during extraction.`

	// Extraction
	ExtractBatchDescription = `Extract every field from a batch of declaration PDFs with a template and write an XLSX workbook.

**When to use:** Processing a folder of import declarations into a spreadsheet.

**Parameters:**
• directory: folder to read every .pdf from (defaults to the configured directory)
• paths: optional comma-separated list of files, used instead of the directory
• template: template name (defaults to the last used template)

**Common workflows:**
1. template_list → template_preview on one file → extract_batch
2. extract_batch → review warnings → fix template regions → extract_batch

**Best practices:** Records are sorted by declaration date. Problems are reported as warnings and listed on the workbook's issues sheet. A file that cannot be read is reported as an error and the rest of the batch still runs.`
)
