// Package api exposes the prompt relay over plain HTTP for deployments that
// run as a long-lived daemon instead of behind API Gateway. Authentication is
// expected to happen at the perimeter before requests reach this server.
package api
