package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// MCPRequestLogger returns middleware that logs MCP JSON-RPC calls: the
// method, the tool name, summarized arguments and whether the call failed.
// Source content is never logged, only its size. Pass nil logger to disable
// logging.
func MCPRequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logger == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, err := io.ReadAll(r.Body)
			if err != nil {
				logger.Error("Failed to read MCP request body", zap.Error(err))
				http.Error(w, "failed to read request body", http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))

			var rpcReq jsonRPCRequest
			if err := json.Unmarshal(bodyBytes, &rpcReq); err != nil {
				logger.Debug("Failed to parse MCP request JSON", zap.Error(err))
			}
			toolName := rpcReq.Params.Name

			logger.Debug("MCP request",
				zap.String("method", rpcReq.Method),
				zap.String("tool", toolName),
				zap.Any("arguments", summarizeArguments(rpcReq.Params.Arguments)),
			)

			recorder := &mcpResponseRecorder{ResponseWriter: w, body: &bytes.Buffer{}}
			start := time.Now()
			next.ServeHTTP(recorder, r)
			duration := time.Since(start)

			rpcResp, ok := parseRPCResponse(recorder.body.Bytes())
			if !ok {
				return
			}

			switch {
			case rpcResp.Error != nil:
				logger.Debug("MCP response error",
					zap.String("tool", toolName),
					zap.Int("error_code", rpcResp.Error.Code),
					zap.String("error_message", rpcResp.Error.Message),
					zap.Duration("duration", duration))
			case rpcResp.Result.IsError:
				logger.Debug("MCP tool error",
					zap.String("tool", toolName),
					zap.Duration("duration", duration))
			default:
				logger.Debug("MCP response success",
					zap.String("tool", toolName),
					zap.Duration("duration", duration))
			}
		})
	}
}

type jsonRPCRequest struct {
	Method string `json:"method"`
	Params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"params"`
}

type jsonRPCResponse struct {
	Result struct {
		IsError bool `json:"isError"`
	} `json:"result"`
	Error *jsonRPCError `json:"error"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// parseRPCResponse reads a plain JSON response or the first data event of
// an SSE stream.
func parseRPCResponse(body []byte) (jsonRPCResponse, bool) {
	var resp jsonRPCResponse
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return resp, false
	}
	if trimmed[0] != '{' {
		for _, line := range strings.Split(string(trimmed), "\n") {
			if data, ok := strings.CutPrefix(strings.TrimSpace(line), "data:"); ok {
				trimmed = []byte(strings.TrimSpace(data))
				break
			}
		}
	}
	if err := json.Unmarshal(trimmed, &resp); err != nil {
		return resp, false
	}
	return resp, true
}

type mcpResponseRecorder struct {
	http.ResponseWriter
	body *bytes.Buffer
}

func (r *mcpResponseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *mcpResponseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// contentArguments carry user material; only their size is logged.
var contentArguments = map[string]bool{
	"text":        true,
	"file_base64": true,
}

var sensitiveKeywords = []string{"password", "secret", "token", "key", "credential"}

const maxLoggedArgument = 200

// summarizeArguments replaces source content with its size, redacts
// sensitive fields and truncates long values.
func summarizeArguments(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}

	result := make(map[string]any, len(args))
	for k, v := range args {
		lowerKey := strings.ToLower(k)
		str, isString := v.(string)

		switch {
		case contentArguments[lowerKey] && isString:
			result[k] = fmt.Sprintf("[%d chars]", len(str))
		case isSensitiveKey(lowerKey):
			result[k] = "[REDACTED]"
		case isString && len(str) > maxLoggedArgument:
			result[k] = str[:maxLoggedArgument] + "..."
		default:
			result[k] = v
		}
	}
	return result
}

func isSensitiveKey(lowerKey string) bool {
	for _, keyword := range sensitiveKeywords {
		if strings.Contains(lowerKey, keyword) {
			return true
		}
	}
	return false
}
