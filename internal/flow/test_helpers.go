package flow

import (
	"context"

	"github.com/openai/openai-go"
)

// scriptedClient is a genai.ClientInterface for tests. It replays canned
// responses in order and records every prompt it was asked to complete.
type scriptedClient struct {
	responses []string
	err       error

	calls []promptCall
}

type promptCall struct {
	System string
	User   string
}

func (c *scriptedClient) next() string {
	if len(c.responses) == 0 {
		return ""
	}
	resp := c.responses[0]
	c.responses = c.responses[1:]
	return resp
}

func (c *scriptedClient) GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	c.calls = append(c.calls, promptCall{System: systemPrompt, User: userPrompt})
	if c.err != nil {
		return "", c.err
	}
	return c.next(), nil
}

func (c *scriptedClient) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	return c.next(), nil
}

// staticReflection is a fixed ReflectionSource for tests.
type staticReflection string

func (s staticReflection) Latest() string { return string(s) }
