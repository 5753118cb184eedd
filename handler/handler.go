package handler

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"qa-assistant/internal/usecase"
)

const (
	headerAPIKey        = "X-API-Key"
	headerSessionID     = "X-Session-Id"
	headerCorrelationID = "X-Correlation-Id"

	errorUnauthorized = "UNAUTHORIZED"
)

type Asker interface {
	Ask(ctx context.Context, in usecase.AskInput) (usecase.AskOutput, error)
}

// Handler adapts HTTP and API Gateway requests to an Asker. Every request
// must carry the shared secret in X-API-Key.
type Handler struct {
	asker  Asker
	apiKey string
}

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	Answer string `json:"answer"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type result struct {
	status    int
	body      any
	sessionID string
}

func NewHandler(asker Asker, apiKey string) (*Handler, error) {
	if asker == nil {
		return nil, errors.New("handler: asker must not be nil")
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("handler: api key must not be empty")
	}
	return &Handler{asker: asker, apiKey: apiKey}, nil
}

// Handle serves an API Gateway proxy event.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(req.Headers, headerCorrelationID)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	var res result
	if !h.authorized(headerValue(req.Headers, headerAPIKey)) {
		res = result{status: http.StatusForbidden, body: errorResponse{Error: errorUnauthorized}}
	} else if raw, err := eventBody(req); err != nil {
		slog.Warn("undecodable request body", "correlation_id", correlationID, "err", err)
		res = result{status: http.StatusBadRequest, body: errorResponse{Error: string(usecase.ErrorInvalidInput)}}
	} else {
		res = h.ask(ctx, correlationID, headerValue(req.Headers, headerSessionID), raw)
	}

	body, err := json.Marshal(res.body)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}
	headers := map[string]string{
		"Content-Type":      "application/json",
		headerCorrelationID: correlationID,
	}
	if res.sessionID != "" {
		headers[headerSessionID] = res.sessionID
	}
	return events.APIGatewayProxyResponse{
		StatusCode: res.status,
		Headers:    headers,
		Body:       string(body),
	}, nil
}

func (h *Handler) authorized(provided string) bool {
	if provided == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(h.apiKey)) == 1
}

func (h *Handler) ask(ctx context.Context, correlationID, sessionID string, raw []byte) result {
	var req askRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		slog.Warn("invalid request body", "correlation_id", correlationID, "err", err)
		return result{status: http.StatusBadRequest, body: errorResponse{Error: string(usecase.ErrorInvalidInput)}}
	}

	out, err := h.asker.Ask(ctx, usecase.AskInput{
		Question:  req.Question,
		SessionID: strings.TrimSpace(sessionID),
	})
	if err != nil {
		status, code := mapError(err)
		logAttrs := []any{"correlation_id", correlationID, "status", status, "code", code, "err", err}
		if status >= http.StatusInternalServerError {
			slog.Error("ask failed", logAttrs...)
		} else {
			slog.Warn("ask rejected", logAttrs...)
		}
		return result{status: status, body: errorResponse{Error: code}}
	}

	slog.Info("ask answered", "correlation_id", correlationID, "session_id", out.SessionID)
	return result{status: http.StatusOK, body: askResponse{Answer: out.Answer}, sessionID: out.SessionID}
}

func mapError(err error) (int, string) {
	var ue *usecase.Error
	if !errors.As(err, &ue) {
		return http.StatusInternalServerError, string(usecase.ErrorInternal)
	}
	switch ue.Code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest, string(ue.Code)
	case usecase.ErrorRateLimited:
		return http.StatusTooManyRequests, string(ue.Code)
	case usecase.ErrorUpstream:
		return http.StatusBadGateway, string(ue.Code)
	default:
		return http.StatusInternalServerError, string(usecase.ErrorInternal)
	}
}

// eventBody returns the request payload, decoding it when API Gateway
// delivered it base64-encoded.
func eventBody(req events.APIGatewayProxyRequest) ([]byte, error) {
	if !req.IsBase64Encoded {
		return []byte(req.Body), nil
	}
	return base64.StdEncoding.DecodeString(req.Body)
}

// headerValue looks up key ignoring case; API Gateway does not normalize header names.
func headerValue(headers map[string]string, key string) string {
	if v, ok := headers[key]; ok {
		return strings.TrimSpace(v)
	}
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
