// Package tools defines the Tool contracts for LLM agents, the typed Func adapter
// and the Registry that describes the tools to the model and dispatches its calls
// with JSON schema validation of the arguments.
package tools
