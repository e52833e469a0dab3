package enrich

import "fmt"

const systemPrompt = `You are a helpful JSON-only assistant.`

const rowPrompt = `
%s

You are an AI that parses a single CSV row into a JSON object.

Rules:
- Respond with ONLY valid JSON.
- Do NOT wrap in ` + "```" + `.
- Include keys: make, model, year, color, status.

Row data: "%s"
`

func buildPrompt(instruction, rowText string) string {
	return fmt.Sprintf(rowPrompt, instruction, rowText)
}

// fieldsSchema describes the reply shape. Replies that miss it are still coerced.
const fieldsSchema = `{
  "type": "object",
  "properties": {
    "make":   {"type": ["string", "null"]},
    "model":  {"type": ["string", "null"]},
    "year":   {"type": ["string", "integer", "null"]},
    "color":  {"type": ["string", "null"]},
    "status": {"type": ["string", "null"]}
  },
  "required": ["make", "model", "year", "color", "status"]
}`
