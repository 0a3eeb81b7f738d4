// Package apigw adapts the prompt relay to AWS Lambda API Gateway events,
// covering both the HTTP API (payload format 2.0) and REST API (payload
// format 1.0) integrations. Only the request body is consulted; the JWT
// authorizer in front of the gateway has already authenticated the caller.
package apigw
