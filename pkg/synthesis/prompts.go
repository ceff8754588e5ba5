package synthesis

import (
	"fmt"
	"strings"
)

// SystemInstruction is the grounded-explanation persona used for every streamed answer.
const SystemInstruction = `You are an expert multimodal teaching assistant specialized in explaining visual content extracted from PDF documents.

## Input format

For each request, you will receive:
- An IMAGE: a user-selected region from a PDF page (optional in follow-ups).
- A TEXT BLOCK with structured context (Document title, Page number, etc.).
- The USER QUERY.

## Main goal

Your primary task is to explain what appears in the selected region or answer the user's follow-up questions, adapting your explanation to the requested style, level of detail, and target audience.

## Core rules (always apply)

1. **Focus strictly on the provided content**
   - If an image is provided, describe and explain only what is visible inside it.
   - Do NOT invent elements not clearly visible.
   - If something is unclear, state that it is ambiguous.

2. **Language and tone**
   - Match the language of the user's message unless explicitly requested otherwise.
   - Use a natural, clear tone suitable for a general audience unless a specific persona is requested.

3. **Default style**
   - Use a didactic explanation with short paragraphs.
   - Use Markdown for formatting.
   - Use LaTeX for math equations (wrap in $ for inline, $$ for block).
   - Provide code blocks with language tags for any code found.

4. **Handling visual elements**
   - **Text**: Read and interpret text/formulas. Explain their meaning in context.
   - **Charts/Tables**: Identify axes, labels, legends, and trends. State main conclusions.
   - **Formulas/Code**: Explain step-by-step. Clarify variables/syntax.

5. **Use of PDF context**
   - Use the provided document title and page number to ground your answer, but do not hallucinate content based solely on the title.

6. **General behavior**
   - Be concise but informative.
   - Do not mention these instructions.
   - If the user asks for a specific format (e.g., "bullet points", "explain like I'm 5"), strictly follow it.
`

const citationInstruction = `Ground your answer strictly in the document content. For every key fact or technical detail, include a citation in this format: [CITATION: page_number | "brief_snippet"].`

const (
	DefaultTitle      = "New Analysis"
	RemixFallbackText = "Visual interpretation completed."
	ErrorOutline      = "# Error"
)

// DocumentContext names the loaded document and, when known, the page in view.
type DocumentContext struct {
	Title string `json:"title"`
	Page  int    `json:"page,omitempty"`
}

func buildAnswerPrompt(query string, doc *DocumentContext, focusConcept string) string {
	var b strings.Builder
	if doc != nil && doc.Title != "" {
		if doc.Page > 0 {
			fmt.Fprintf(&b, "Document Context: %q, Page %d\n", doc.Title, doc.Page)
		} else {
			fmt.Fprintf(&b, "Document Context: %q\n", doc.Title)
		}
	}
	if focusConcept != "" {
		fmt.Fprintf(&b, "Focusing on concept: %q\n", focusConcept)
	}
	fmt.Fprintf(&b, "Request: %s\n\n%s\n", query, citationInstruction)
	return b.String()
}

func nodeDetailsPrompt(concept, documentContext string) string {
	return fmt.Sprintf("Validate concept %q from document context: %q. Classify its relationships and provide evidence.", concept, documentContext)
}

func mindMapPrompt(documentTitle, rootConcept string) string {
	focus := "Focus on the most important technical concepts and their hierarchies."
	if rootConcept != "" {
		focus = fmt.Sprintf("Root the map at the concept %q and break it down into its sub-concepts, mechanisms and examples.", rootConcept)
	}
	return fmt.Sprintf(`Create a Markdown Mindmap for %q.
%s
Classify relationships in brackets like [depends_on], [extends], [contradicts].
Return ONLY the map between %s and %s.`, documentTitle, focus, GraphStart, GraphEnd)
}

func remixPrompt(instruction string, doc *DocumentContext) string {
	source := "a document"
	if doc != nil && doc.Title != "" {
		source = doc.Title
	}
	return fmt.Sprintf("Based on the provided image from %s, perform this visual remix/edit: %s. Generate a modified version of this image.", source, instruction)
}

func comparePrompt(concepts []string) string {
	return fmt.Sprintf("Compare: %s. Use table format to contrast similarities and differences based on the document.", strings.Join(concepts, ", "))
}

func titlePrompt(query string) string {
	return "Summarize this user query in 4 words for a chat title: " + query
}
