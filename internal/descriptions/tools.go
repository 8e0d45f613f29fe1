package descriptions

import "sort"

// Tool descriptions with practical examples, shown to MCP clients

const (
	// Session Tools
	PDFUploadDescription = `Upload a local PDF to the form service and make it the active document.

**When to use:** Before listing or filling fields. Every other tool works on the active document.

**Why it's useful:** The service stores the file under its filename; the upload result tells you the identifier to expect in later results.

**Examples:**
• Start a session: "Upload ~/forms/w9.pdf"
• Replace the active document: uploading another file switches to it immediately, there is no confirmation

**Common workflows:**
1. Fill a form: pdf_upload → pdf_list_fields → pdf_fill_field → pdf_download
2. Inspect a form: pdf_upload → pdf_list_fields

**Best practices:** Use an absolute path. Uploading two files with the same name replaces the stored copy of the first.`

	PDFListFieldsDescription = `List the form fields of the active document as "name: value" lines.

**When to use:** After pdf_upload, to find the exact field names pdf_fill_field expects.

**Why it's useful:** Field names must match exactly; listing them avoids guessing.

**Examples:**
• Discover fields: "What fields does the uploaded form have?"
• Check a fill: list again after pdf_fill_field to see current values of the original document

**Common workflows:**
1. Discovery: pdf_list_fields → pick a name → pdf_fill_field

**Best practices:** Pass refresh=true to ask the service again instead of returning the last listing. A document without fields reports "PDF has no form fields."`

	PDFFillFieldDescription = `Fill one form field of the active document and flatten the result.

**When to use:** To set a single field value and produce a new, non-editable PDF.

**Why it's useful:** Returns the identifier and download link of the flattened document; the active document itself is left unchanged.

**Examples:**
• Fill a name: "Set field Name to Alice"
• Empty a field: an empty value is sent as is

**Common workflows:**
1. Fill and fetch: pdf_fill_field → pdf_download with the returned file

**Best practices:** Use names exactly as pdf_list_fields reports them. Each call produces a new document; repeat to try again after an error.`

	PDFDownloadDescription = `Save a document from the form service to a local path.

**When to use:** After pdf_fill_field, to get the flattened PDF onto disk. Also works for the original upload.

**Why it's useful:** Writes the bytes served by the service without going through a browser.

**Examples:**
• Save the result: "Download flattened_form.pdf to ~/Desktop/filled.pdf"
• Save the original: omit file to download the active document

**Best practices:** When output is a directory the file keeps its service identifier as its name.`

	PDFClearDescription = `Forget the active document.

**When to use:** To start over. Field listings and the fill form are discarded.

**Why it's useful:** Makes the session state explicit; tools that need an active document report an error until the next upload.

**Best practices:** Stored files on the service are not deleted.`

	PDFStatusDescription = `Show the active document, the last upload outcome, the last field listing and the last fill.

**When to use:** To check what the session is working on before filling or downloading.

**Best practices:** Cheap; makes no request to the service.`
)

// ToolDescriptions maps tool names to their descriptions
var ToolDescriptions = map[string]string{
	"pdf_upload":      PDFUploadDescription,
	"pdf_list_fields": PDFListFieldsDescription,
	"pdf_fill_field":  PDFFillFieldDescription,
	"pdf_download":    PDFDownloadDescription,
	"pdf_clear":       PDFClearDescription,
	"pdf_status":      PDFStatusDescription,
}

// GetToolDescription returns the description for a tool
func GetToolDescription(toolName string) string {
	if desc, exists := ToolDescriptions[toolName]; exists {
		return desc
	}
	return "Tool description not available"
}

// GetAllToolNames returns the names of all tools in sorted order
func GetAllToolNames() []string {
	names := make([]string, 0, len(ToolDescriptions))
	for name := range ToolDescriptions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
