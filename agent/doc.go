// Package agent implements a tool-augmented single agent reasoning loop.
//
// A Session asks the model for the next step given the transcript, dispatches
// the requested tool calls through a sealed tools.Registry, records the results
// and repeats until the model produces a final answer or the step budget is exhausted.
// How tools are offered to the model is decided by the Protocol:
// ReAct free text, or structured function calling.
package agent
