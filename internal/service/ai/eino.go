package ai

import (
	"context"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// EinoCompleter drives any eino chat model, Ark in production.
type EinoCompleter struct {
	chatModel model.BaseChatModel
}

// NewEinoCompleter wraps chatModel.
func NewEinoCompleter(chatModel model.BaseChatModel) *EinoCompleter {
	return &EinoCompleter{chatModel: chatModel}
}

func einoMessages(turns []Turn) []*schema.Message {
	messages := make([]*schema.Message, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case RoleModel:
			messages = append(messages, schema.AssistantMessage(t.Text, nil))
		default:
			messages = append(messages, schema.UserMessage(t.Text))
		}
	}
	return messages
}

// Complete implements Completer.
func (e *EinoCompleter) Complete(ctx context.Context, turns []Turn, params Params) (string, error) {
	resp, err := e.chatModel.Generate(ctx, einoMessages(turns),
		model.WithTemperature(params.Temperature),
		model.WithMaxTokens(params.MaxOutputTokens),
	)
	if err != nil {
		return "", upstream("ark", err)
	}
	if resp == nil {
		return "", ErrEmptyResponse
	}
	return nonEmpty(resp.Content)
}
