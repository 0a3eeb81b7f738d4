// Package diagnostics carries the post-extraction observability records of the
// prompt relay. A Record describes one decoded provider response and the
// assistant content resolved from it; a Sink delivers records to logs, MySQL,
// Redis or RabbitMQ. Sinks never influence the relay's response.
package diagnostics
