// Package agentcontract pins down the boundary every generated agent
// binary and every published image/manifest must honor: how an agent
// is invoked, what credentials it may read, and what JSON shape each
// class's output takes.
package agentcontract

import "github.com/HELIXFACTORY/internal/classify"

// Environment variable names an agent binary may read credentials
// from. No other env var carries a credential.
const (
	EnvLLMAPIKey    = "LLM_API_KEY"
	EnvWebSearchKey = "WEB_SEARCH_KEY"
	EnvWebSearchCX  = "WEB_SEARCH_CX"
)

// Image label keys populated by the packager and read back by the
// container registry backend's search.
const (
	LabelTask         = "helix.task"
	LabelCapabilities = "helix.capabilities"
	LabelType         = "helix.type"
	LabelCreated      = "helix.created"
	LabelAuthor       = "helix.author"
)

// AgentAuthor is the fixed value written to LabelAuthor on every
// packaged image.
const AgentAuthor = "helixfactory"

// Schema is one class's declared output shape: the field names the
// generator prompt must instruct the agent to emit, paired with a
// one-line description used when rendering the prompt.
type Schema struct {
	Class  classify.Class
	Fields []Field
}

// Field is one JSON field in a class's output schema.
type Field struct {
	Name        string
	Description string
}

// Schemas is indexed by class, field-for-field against the per-class
// output schema table.
var Schemas = map[classify.Class]Schema{
	classify.ClassResearch: {
		Class: classify.ClassResearch,
		Fields: []Field{
			{"sources", "list of URLs cited"},
			{"raw_data", "list of extracted text snippets from sources"},
			{"summary", "synthesized answer to the query"},
			{"confidence", "float 0-1 indicating confidence in the result"},
		},
	},
	classify.ClassCompute: {
		Class: classify.ClassCompute,
		Fields: []Field{
			{"expression", "the mathematical expression evaluated"},
			{"result", "the numeric or boolean result"},
			{"steps", "step-by-step calculation logic"},
		},
	},
	classify.ClassData: {
		Class: classify.ClassData,
		Fields: []Field{
			{"data", "list of data records"},
			{"format", "format of the data (json, csv, etc.)"},
			{"count", "number of records fetched"},
			{"source", "origin of the data"},
		},
	},
	classify.ClassCode: {
		Class: classify.ClassCode,
		Fields: []Field{
			{"code", "the generated code snippet"},
			{"language", "programming language (go, python, etc.)"},
			{"output", "standard output from execution, if run"},
			{"error", "standard error, if any"},
		},
	},
	classify.ClassSynthesis: {
		Class: classify.ClassSynthesis,
		Fields: []Field{
			{"analysis", "detailed analysis or creative content"},
			{"confidence", "float 0-1"},
			{"reasoning", "chain of thought used"},
		},
	},
}

// RequiredEnvFor lists the credential env vars a class's generated
// agent is allowed to read, for embedding in the generator prompt.
func RequiredEnvFor(credentials []string) []string {
	allowed := map[string]bool{EnvLLMAPIKey: true, EnvWebSearchKey: true, EnvWebSearchCX: true}
	var out []string
	for _, c := range credentials {
		if allowed[c] {
			out = append(out, c)
		}
	}
	return out
}

// ErrorShape is the exact JSON shape an agent must emit when it
// cannot complete its class schema.
type ErrorShape struct {
	Error string `json:"error"`
}
