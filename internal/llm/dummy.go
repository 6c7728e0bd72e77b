package llm

import (
	"context"
	"fmt"
	"strings"
)

// DummyModel answers without any network call. It echoes the question found
// in the prompt, which is enough for local runs and tests.
type DummyModel struct {
	Prefix string
}

func NewDummyModel(prefix string) *DummyModel {
	if strings.TrimSpace(prefix) == "" {
		prefix = "Dummy response:"
	}
	return &DummyModel{Prefix: prefix}
}

func (d *DummyModel) Provider() string { return ProviderDummy }
func (d *DummyModel) Name() string     { return "dummy" }

func (d *DummyModel) Generate(_ context.Context, prompt string) (string, error) {
	question := "<empty prompt>"
	for _, line := range strings.Split(prompt, "\n") {
		if q, ok := strings.CutPrefix(line, questionLabel); ok {
			question = strings.TrimSpace(q)
			break
		}
	}
	return fmt.Sprintf("%s %s", d.Prefix, question), nil
}
