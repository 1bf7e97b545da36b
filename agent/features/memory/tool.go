package memory

import (
	"context"
	"time"

	"github.com/BaSui01/agentgraph/llm/tools"
)

type rememberArgs struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// RememberTool lets the model save a fact about subject itself.
func RememberTool(store Store, subject string) tools.Tool {
	desc := tools.Descriptor{
		Name:        "remember",
		Description: "Save a fact so that it is available in later conversations.",
		Required: []tools.Parameter{
			{Name: "key", Description: "Short name of the fact", Type: tools.TypeString},
			{Name: "value", Description: "The fact itself", Type: tools.TypeString},
		},
	}
	return tools.NewTypedTool(desc, func(ctx context.Context, args rememberArgs) (string, error) {
		err := store.Put(ctx, Fact{Subject: subject, Key: args.Key, Value: args.Value, UpdatedAt: time.Now()})
		if err != nil {
			return "", err
		}
		return "remembered " + args.Key, nil
	})
}
