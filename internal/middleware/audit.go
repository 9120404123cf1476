package middleware

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/dailydues/backend/internal/services"
	"github.com/gin-gonic/gin"
)

const maxAuditBody = 2000

var sensitiveKeys = []string{"password", "api_key", "secret", "token", "refresh_token"}

// AuditLog records write operations (POST/PUT/PATCH/DELETE) to system_logs.
func AuditLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		method := c.Request.Method
		if method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions {
			c.Next()
			return
		}

		var bodySnippet string
		if c.Request.Body != nil {
			bodyBytes, _ := io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			bodySnippet = maskSensitiveFields(string(bodyBytes))
			if len(bodySnippet) > maxAuditBody {
				bodySnippet = bodySnippet[:maxAuditBody] + "...[truncated]"
			}
		}

		c.Next()

		userID := GetUserID(c)
		status := c.Writer.Status()
		module, action := parseRouteInfo(c.FullPath(), method)

		var uid *uint
		if userID > 0 {
			uid = &userID
		}

		extra := map[string]interface{}{
			"method": method,
			"path":   c.Request.URL.Path,
			"status": status,
			"body":   bodySnippet,
			"audit":  true,
		}
		message := formatAuditMessage(GetUsername(c), method, c.Request.URL.Path, status)
		if status >= 500 {
			services.LogError(module, action, message, uid, c.ClientIP(), c.Request.UserAgent(), extra)
			return
		}
		services.LogInfo(module, action, message, uid, c.ClientIP(), c.Request.UserAgent(), extra)
	}
}

// parseRouteInfo maps a route pattern to a module and action name.
// "/api/approvals/:id/approve" + POST gives ("Approvals", "Approve"),
// "/api/realms/:id" + PUT gives ("Realms", "Update").
func parseRouteInfo(fullPath, method string) (module, action string) {
	path := strings.Trim(strings.TrimPrefix(fullPath, "/api/"), "/")
	if path == "" {
		return "Unknown", method
	}

	segments := strings.Split(path, "/")
	module = titleWords(segments[0])

	last := segments[len(segments)-1]
	if len(segments) > 1 && !strings.HasPrefix(last, ":") {
		return module, titleWords(last)
	}

	switch method {
	case http.MethodPost:
		action = "Create"
	case http.MethodPut, http.MethodPatch:
		action = "Update"
	case http.MethodDelete:
		action = "Delete"
	default:
		action = method
	}
	return module, action
}

func titleWords(s string) string {
	words := strings.FieldsFunc(s, func(r rune) bool { return r == '-' || r == '_' })
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func formatAuditMessage(username, method, path string, status int) string {
	result := "OK"
	if status < 200 || status >= 300 {
		result = "Failed"
	}
	if username == "" {
		username = "anonymous"
	}
	return "[Audit] " + username + " " + method + " " + path + " -> " + result
}

// maskSensitiveFields replaces string values of sensitive JSON keys with ***.
func maskSensitiveFields(body string) string {
	for _, key := range sensitiveKeys {
		body = maskJSONValue(body, key)
	}
	return body
}

func maskJSONValue(body, key string) string {
	needle := "\"" + key + "\""
	offset := 0
	for {
		idx := strings.Index(strings.ToLower(body[offset:]), needle)
		if idx == -1 {
			return body
		}
		idx += offset + len(needle)

		colon := strings.Index(body[idx:], ":")
		if colon == -1 {
			return body
		}
		valueStart := idx + colon + 1
		for valueStart < len(body) && (body[valueStart] == ' ' || body[valueStart] == '\t') {
			valueStart++
		}
		if valueStart >= len(body) || body[valueStart] != '"' {
			offset = idx
			continue
		}

		endQuote := strings.Index(body[valueStart+1:], "\"")
		if endQuote == -1 {
			return body
		}
		body = body[:valueStart+1] + "***" + body[valueStart+1+endQuote:]
		offset = valueStart + 4
	}
}
