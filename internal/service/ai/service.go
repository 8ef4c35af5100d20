package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"ctrlr/internal/config"
	"ctrlr/internal/models"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/cloudwego/eino/schema"
)

const (
	summaryExcerptChars = 12000
	chatExcerptChars    = 6000
	maxHistoryTurns     = 20
)

const summarySystemPrompt = "You are a helpful assistant that summarizes documents recovered from legacy file formats. " +
	"Produce a concise summary highlighting the key points and important details. " +
	"Limit the summary to 6 sentences."

const chatSystemPrompt = "You answer questions about a single converted document. " +
	"Base answers on the document content below and say so when the document does not contain the answer. " +
	"Keep answers short."

// Service talks to an LLM through eino; chat goes through a react agent when tools are enabled.
type Service struct {
	chatModel model.ToolCallingChatModel
	agent     *react.Agent
	reader    *documentReader
}

func NewService(ctx context.Context, provider string, assistantCfg config.AssistantConfig, provCfg config.ProviderConfig, extractor TextExtractor) (*Service, error) {
	chatModel, err := newChatModel(ctx, provider, assistantCfg.Model, provCfg)
	if err != nil {
		return nil, fmt.Errorf("start ai service: %w", err)
	}
	reader, err := newDocumentReader(ctx, extractor)
	if err != nil {
		return nil, err
	}

	s := &Service{chatModel: chatModel, reader: reader}
	if assistantCfg.EnableTools {
		tools := initToolsChain(reader)
		if len(tools) > 0 {
			s.agent, err = newAgent(ctx, chatModel, tools)
			if err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

func newAgent(ctx context.Context, chatModel model.ToolCallingChatModel, tools []tool.BaseTool) (*react.Agent, error) {
	agent, err := react.NewAgent(ctx, &react.AgentConfig{
		ToolCallingModel: chatModel,
		ToolsConfig: compose.ToolsNodeConfig{
			Tools: tools,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("init react agent: %w", err)
	}
	return agent, nil
}

func (s *Service) Summarize(ctx context.Context, doc Document) (string, error) {
	if strings.TrimSpace(doc.URL) == "" {
		return "", ErrNoDocument
	}
	text := s.reader.Excerpt(ctx, doc, summaryExcerptChars)
	messages := []*schema.Message{
		{Role: schema.System, Content: summarySystemPrompt},
		{Role: schema.User, Content: documentPrompt(doc, text)},
	}
	resp, err := s.chatModel.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("summarize file failed: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

func (s *Service) Chat(ctx context.Context, doc Document, question string, history []models.ChatTurn) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuestion
	}
	if strings.TrimSpace(doc.URL) == "" {
		return "", ErrNoDocument
	}

	system := chatSystemPrompt + "\n\n" + documentPrompt(doc, s.reader.Excerpt(ctx, doc, chatExcerptChars))
	if s.agent != nil && doc.LocalPath != "" {
		system += "\n\nUse the artifact_reader tool to read further chunks of the document when the excerpt is not enough."
	}
	messages := buildChatMessages(system, history, question)

	var (
		resp *schema.Message
		err  error
	)
	if s.agent != nil {
		resp, err = s.agent.Generate(withDocument(ctx, doc), messages)
	} else {
		resp, err = s.chatModel.Generate(ctx, messages)
	}
	if err != nil {
		return "", fmt.Errorf("chat failed: %w", err)
	}
	if resp == nil {
		return "", errors.New("chat failed: empty response")
	}
	return strings.TrimSpace(resp.Content), nil
}

func buildChatMessages(system string, history []models.ChatTurn, question string) []*schema.Message {
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}
	messages := make([]*schema.Message, 0, len(history)+2)
	messages = append(messages, &schema.Message{Role: schema.System, Content: system})
	for _, turn := range history {
		text := strings.TrimSpace(turn.Text)
		if text == "" {
			continue
		}
		var role schema.RoleType
		switch turn.Speaker {
		case models.RoleAssistant:
			role = schema.Assistant
		case models.RoleSystem:
			// history never overrides the system prompt
			continue
		default:
			role = schema.User
		}
		messages = append(messages, &schema.Message{Role: role, Content: text})
	}
	return append(messages, &schema.Message{Role: schema.User, Content: question})
}

func documentPrompt(doc Document, text string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Converted file: %s\n", doc.URL)
	if doc.TargetFormat != "" {
		fmt.Fprintf(&b, "Format: %s\n", doc.TargetFormat)
	}
	if text == "" {
		b.WriteString("\nDocument Content: (not available as text; work from the file name and format only)\n")
		return b.String()
	}
	fmt.Fprintf(&b, "\nDocument Content:\n%s\n", text)
	return b.String()
}

func logf(format string, args ...any) {
	log.Printf("ai: "+format, args...)
}
