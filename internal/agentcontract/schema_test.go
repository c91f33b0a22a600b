package agentcontract

import (
	"testing"

	"github.com/HELIXFACTORY/internal/classify"
)

func TestAllClassesHaveSchemas(t *testing.T) {
	classes := []classify.Class{
		classify.ClassResearch, classify.ClassCompute, classify.ClassData,
		classify.ClassCode, classify.ClassSynthesis,
	}
	for _, c := range classes {
		schema, ok := Schemas[c]
		if !ok {
			t.Errorf("missing schema for class %s", c)
			continue
		}
		if len(schema.Fields) == 0 {
			t.Errorf("schema for class %s has no fields", c)
		}
	}
}

func TestRequiredEnvForFiltersUnknownNames(t *testing.T) {
	got := RequiredEnvFor([]string{EnvWebSearchKey, "SOME_OTHER_VAR"})
	if len(got) != 1 || got[0] != EnvWebSearchKey {
		t.Errorf("expected only known credential env vars to survive, got %v", got)
	}
}
