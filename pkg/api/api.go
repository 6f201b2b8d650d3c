package api

import (
	"encoding/json"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
)

// ErrorResponse is a standardized error message for responses produced
// outside the router, e.g. when a Lambda cold start failed
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

// GatewayResponse is a helper to create a valid API Gateway HTTP API response.
func GatewayResponse(statusCode int, body string) events.APIGatewayV2HTTPResponse {
	return events.APIGatewayV2HTTPResponse{
		StatusCode: statusCode,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
}

// GatewayError formats a JSON error response for API Gateway.
func GatewayError(statusCode int, errType, message string) events.APIGatewayV2HTTPResponse {
	body, err := json.Marshal(ErrorResponse{Error: true, Type: errType, Message: message})
	if err != nil {
		return GatewayResponse(http.StatusInternalServerError, `{"error":true}`)
	}
	return GatewayResponse(statusCode, string(body))
}
