package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ctrlr/internal/ratelimit"

	"github.com/cloudwego/eino-ext/components/tool/duckduckgo/v2"
	"github.com/cloudwego/eino-ext/components/tool/googlesearch"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
)

func initToolsChain(reader *documentReader) []tool.BaseTool {
	var tools []tool.BaseTool
	if ar := newArtifactReader(reader); ar != nil {
		tools = append(tools, ar)
	}
	if ws := initWebSearch(); ws != nil {
		tools = append(tools, ws)
	}
	return tools
}

type artifactReader struct {
	reader  *documentReader
	limiter *ratelimit.Keyed
}

type artifactReaderParams struct {
	ChunkIndex int `json:"chunk_index,omitempty"`
	ChunkSize  int `json:"chunk_size,omitempty"`
}

func newArtifactReader(reader *documentReader) tool.InvokableTool {
	if reader == nil {
		return nil
	}
	ar := &artifactReader{reader: reader, limiter: ratelimit.PerMinute(ReaderRatePerMinute)}
	info := &schema.ToolInfo{
		Name: "artifact_reader",
		Desc: "Read the converted document in chunks. Pass chunk_index (zero-based) and optionally chunk_size to fetch a specific segment.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"chunk_index": {
				Desc:     "Zero-based chunk index to read, default 0.",
				Type:     schema.Integer,
				Required: false,
			},
			"chunk_size": {
				Desc:     "Number of characters per chunk (500 to 2000, default 1000).",
				Type:     schema.Integer,
				Required: false,
			},
		}),
	}
	return utils.NewTool(info, ar.run)
}

func (a *artifactReader) run(ctx context.Context, params *artifactReaderParams) (string, error) {
	doc, ok := documentFromContext(ctx)
	if !ok || doc.LocalPath == "" {
		return "", errors.New("no converted document is available")
	}
	if !a.limiter.Allow(doc.LocalPath) {
		return "", errors.New("artifact reader rate limit exceeded, please retry in a minute")
	}
	if params == nil {
		params = &artifactReaderParams{}
	}
	text, err := a.reader.Text(ctx, doc)
	if err != nil {
		return "", err
	}
	name := filepath.Base(doc.LocalPath)
	segment, idx, total := chunkText(text, params.ChunkIndex, params.ChunkSize)
	if total == 0 {
		return fmt.Sprintf("File: %s has no readable text content.", name), nil
	}
	return fmt.Sprintf("File: %s\nChunk %d/%d\n\n%s", name, idx+1, total, segment), nil
}

type webSearchTool struct {
	google     tool.InvokableTool
	duck       tool.InvokableTool
	httpClient *http.Client
}

type webSearchParams struct {
	Query string `json:"query"`
}

func initWebSearch() tool.InvokableTool {
	googleTool := initGoogleSearch()
	duckTool := initDDGSearch()
	if googleTool == nil && duckTool == nil {
		logf("web search tool disabled: no search providers available")
		return nil
	}

	ws := &webSearchTool{
		google:     googleTool,
		duck:       duckTool,
		httpClient: newPublicHTTPClient(WebSearchHTTPTimeout),
	}
	info := &schema.ToolInfo{
		Name: "web_search",
		Desc: "Search the web for background on the document's subject or on a file format; " +
			"accepts a URL to fetch directly.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Desc:     "Natural language query or URL to search",
				Type:     schema.String,
				Required: true,
			},
		}),
	}
	return utils.NewTool(info, ws.run)
}

func (w *webSearchTool) run(ctx context.Context, params *webSearchParams) (string, error) {
	if params == nil {
		return "", errors.New("missing search parameters")
	}
	query := strings.TrimSpace(params.Query)
	if query == "" {
		return "", errors.New("query must not be empty")
	}

	if looksLikeURL(query) {
		content, err := w.fetchURL(ctx, query)
		if err == nil {
			return content, nil
		}
		logf("web url loader failed: %v", err)
	}

	payloadBytes, err := json.Marshal(webSearchParams{Query: query})
	if err != nil {
		return "", fmt.Errorf("marshal search params: %w", err)
	}
	payload := string(payloadBytes)

	for _, provider := range []struct {
		name string
		tool tool.InvokableTool
	}{{"google", w.google}, {"duckduckgo", w.duck}} {
		if provider.tool == nil {
			continue
		}
		result, err := provider.tool.InvokableRun(ctx, payload)
		if err == nil {
			return result, nil
		}
		logf("%s search failed: %v", provider.name, err)
	}
	return "", errors.New("no search provider succeeded")
}

func initDDGSearch() tool.InvokableTool {
	duckTool, err := duckduckgo.NewTextSearchTool(context.Background(), &duckduckgo.Config{
		ToolName:   "web_search_ddg",
		ToolDesc:   "DuckDuckGo Search Tool (no token required)",
		MaxResults: 3,
		Region:     duckduckgo.RegionWT,
		Timeout:    10 * time.Second,
	})
	if err != nil {
		logf("duckduckgo search disabled: %v", err)
		return nil
	}
	return duckTool
}

func initGoogleSearch() tool.InvokableTool {
	apiKey := os.Getenv("GOOGLE_API_KEY")
	engineID := os.Getenv("GOOGLE_SEARCH_ENGINE_ID")
	if apiKey == "" || engineID == "" {
		logf("google search tool disabled: missing GOOGLE_API_KEY or GOOGLE_SEARCH_ENGINE_ID")
		return nil
	}
	googleTool, err := googlesearch.NewTool(context.Background(), &googlesearch.Config{
		ToolName:       "web_search_google",
		ToolDesc:       "Google Search Tool",
		APIKey:         apiKey,
		SearchEngineID: engineID,
		Lang:           "en",
		Num:            5,
	})
	if err != nil {
		logf("google search disabled: %v", err)
		return nil
	}
	return googleTool
}
