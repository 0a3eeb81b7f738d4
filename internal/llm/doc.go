// Package llm defines the contract for invoking hosted inference endpoints.
// The bedrock sub-package implements it on the AWS SDK runtime client, using
// either the default credential chain or a Bedrock API key.
package llm
