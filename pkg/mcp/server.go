package mcp

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"ngram-go/internal/service/ngram"

	"github.com/gin-gonic/gin"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// CompletionServer exposes the n-gram models as MCP tools
type CompletionServer struct {
	server       *mcp.Server
	ngramService *ngram.NGramService
	logger       *zap.Logger
	handler      *mcp.StreamableHTTPHandler
}

type CompleteCodeParams struct {
	Code      string `json:"code" jsonschema:"the source code to continue"`
	N         int    `json:"n" jsonschema:"the n-gram order to use"`
	Language  string `json:"language,omitempty" jsonschema:"the language of the code; defaults to the model's language"`
	MaxLength int    `json:"max_length,omitempty" jsonschema:"maximum number of tokens in the completed sequence"`
}

type ScoreCodeParams struct {
	Code     string `json:"code" jsonschema:"the source code to score"`
	N        int    `json:"n" jsonschema:"the n-gram order to use"`
	Language string `json:"language,omitempty" jsonschema:"the language of the code; defaults to the model's language"`
}

func NewCompletionServer(ngramService *ngram.NGramService, logger *zap.Logger) *CompletionServer {
	server := &CompletionServer{
		ngramService: ngramService,
		logger:       logger,
	}

	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    "NGramCompletion",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "completeCode",
		Description: "Greedily continue a code snippet with an n-gram model. Returns the normalized context tokens and the generated tokens",
	}, server.handleCompleteCode)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "scoreCode",
		Description: "Compute the perplexity of a code snippet under an n-gram model. Lower values mean more predictable code",
	}, server.handleScoreCode)

	server.handler = mcp.NewStreamableHTTPHandler(func(req *http.Request) *mcp.Server {
		return mcpServer
	}, nil)

	server.server = mcpServer
	return server
}

func (s *CompletionServer) handleCompleteCode(ctx context.Context, req *mcp.CallToolRequest, args CompleteCodeParams) (*mcp.CallToolResult, any, error) {
	s.logger.Info("Handling completeCode request", zap.Int("n", args.N), zap.Int("max_length", args.MaxLength))

	completion, err := s.ngramService.Complete(ctx, ngram.CompletionRequest{
		Language:  args.Language,
		Code:      args.Code,
		N:         args.N,
		MaxLength: args.MaxLength,
	})
	if err != nil {
		s.logger.Error("Failed to complete code", zap.Error(err))
		return textResult(fmt.Sprintf("Failed to complete code: %v", err)), nil, nil
	}

	var result strings.Builder
	fmt.Fprintf(&result, "Order: %d\n", completion.N)
	fmt.Fprintf(&result, "Context (%d tokens): %s\n", len(completion.Context), strings.Join(completion.Context, " "))
	if len(completion.Generated) == 0 {
		result.WriteString("Generated: (nothing, the model predicts end of sequence)\n")
	} else {
		fmt.Fprintf(&result, "Generated (%d tokens): %s\n", len(completion.Generated), strings.Join(completion.Generated, " "))
	}
	return textResult(result.String()), nil, nil
}

func (s *CompletionServer) handleScoreCode(ctx context.Context, req *mcp.CallToolRequest, args ScoreCodeParams) (*mcp.CallToolResult, any, error) {
	s.logger.Info("Handling scoreCode request", zap.Int("n", args.N))

	eval, err := s.ngramService.Score(ctx, ngram.ScoreRequest{
		Language: args.Language,
		Code:     args.Code,
		N:        args.N,
	})
	if err != nil {
		s.logger.Error("Failed to score code", zap.Error(err))
		return textResult(fmt.Sprintf("Failed to score code: %v", err)), nil, nil
	}

	return textResult(formatEvaluation(args.N, eval)), nil, nil
}

func formatEvaluation(n int, eval *ngram.Evaluation) string {
	var result strings.Builder
	fmt.Fprintf(&result, "Order: %d\n", n)
	fmt.Fprintf(&result, "Perplexity: %.4f\n", eval.Perplexity)
	fmt.Fprintf(&result, "N-grams scored: %d\n", eval.NGrams)
	fmt.Fprintf(&result, "Unseen contexts: %d\n", eval.UnseenContexts)
	fmt.Fprintf(&result, "Unseen tokens: %d\n", eval.UnseenTokens)
	return result.String()
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// SetupHTTPRoutes mounts the streamable HTTP transport at /mcp
func (s *CompletionServer) SetupHTTPRoutes(router *gin.Engine) {
	router.Any("/mcp", gin.WrapH(s.handler))
}
