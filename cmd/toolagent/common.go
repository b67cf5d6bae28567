package main

import (
	"context"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/agent"
	"github.com/effective-security/toolagent/callbacks"
	"github.com/effective-security/toolagent/chatmodel"
	"github.com/effective-security/toolagent/pkg/encoding"
	"github.com/effective-security/toolagent/pkg/llmfactory"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/toolagent/tools"
	"github.com/effective-security/xlog"
)

// newModel is replaced in tests
var newModel = createModel

// createModel returns the backend for the agent.
// With --config the providers come from the file,
// otherwise a single provider is built from the flags.
func createModel(a *app, agentName string, defaultProvider llms.ProviderType) (llms.Model, error) {
	if a.configFile != "" {
		f, err := llmfactory.Load(a.configFile)
		if err != nil {
			return nil, err
		}
		if a.provider != "" {
			return f.ModelByType(a.provider)
		}
		if a.model != "" {
			return f.ModelByName(a.model)
		}
		return f.AgentModel(agentName)
	}

	provider := defaultProvider
	if a.provider != "" {
		provider = llms.ParseProviderType(a.provider)
	}
	return llmfactory.NewLLM(&llmfactory.ProviderConfig{
		Name:         string(provider),
		DefaultModel: a.model,
		OpenAI: llmfactory.OpenAIConfig{
			APIType: string(provider),
			BaseURL: a.baseURL,
		},
	})
}

// runner is a session with the output settings of the command
type runner struct {
	app        *app
	out        io.Writer
	session    *agent.Session
	scratchpad *callbacks.Scratchpad
	lastRunID  string
}

func (a *app) newRunner(out io.Writer, name string, defaultProvider llms.ProviderType, defaultProtocol agent.Protocol, list ...tools.ITool) (*runner, error) {
	protocol := defaultProtocol
	if a.protocol != "" {
		p, ok := agent.ProtocolByName(a.protocol)
		if !ok {
			return nil, errors.Errorf("unsupported protocol: %s", a.protocol)
		}
		protocol = p
	}

	model, err := newModel(a, name, defaultProvider)
	if err != nil {
		return nil, err
	}

	registry, err := tools.NewRegistry(list...)
	if err != nil {
		return nil, err
	}

	handler := callbacks.NewFanout(callbacks.NewPackageLogger(logger))
	var sp *callbacks.Scratchpad
	if a.verbose {
		sp = callbacks.NewScratchpad(callbacks.ModeVerbose)
		handler.Add(callbacks.NewPrinter(out, callbacks.ModeDefault))
		handler.Add(sp)
	}

	session, err := agent.NewSession(model, registry, protocol,
		agent.WithName(name),
		agent.WithMaxSteps(a.maxSteps),
		agent.WithLLMTimeout(a.llmTimeout),
		agent.WithToolTimeout(a.toolTimeout),
		agent.WithTemperature(a.temperature),
		agent.WithCallback(handler),
	)
	if err != nil {
		return nil, err
	}

	logger.KV(xlog.INFO,
		"agent", name,
		"provider", model.GetProviderType(),
		"model", model.GetName(),
		"protocol", protocol.Name(),
		"tools", registry.Names(),
	)

	return &runner{
		app:        a,
		out:        out,
		session:    session,
		scratchpad: sp,
	}, nil
}

// ask runs the query and prints the answer
func (r *runner) ask(ctx context.Context, query string) (string, error) {
	answer, err := r.session.Run(ctx, query)

	if r.scratchpad != nil {
		if stats, log := r.scratchpad.LastRun(); stats != nil && stats.RunID != r.lastRunID {
			r.lastRunID = stats.RunID
			_, _ = r.out.Write(log)
		}
	}

	transcript := r.session.Transcript()
	if err == nil {
		transcript = answer.Transcript
	} else {
		var budget *chatmodel.StepBudgetExceededError
		if errors.As(err, &budget) && budget.Transcript != nil {
			transcript = budget.Transcript
		}
	}
	if dumpErr := r.dumpTranscript(transcript); dumpErr != nil {
		logger.KV(xlog.ERROR, "reason", "dump_transcript", "err", dumpErr.Error())
	}

	if err != nil {
		return "", err
	}
	return answer.Text, nil
}

// transcriptDump is the file format of --transcript
type transcriptDump struct {
	Agent   string             `json:"agent" yaml:"agent" toml:"agent"`
	Entries []chatmodel.Record `json:"entries" yaml:"entries" toml:"entries"`
}

func (r *runner) dumpTranscript(transcript *chatmodel.Transcript) error {
	location := r.app.transcript
	if location == "" || transcript == nil {
		return nil
	}
	enc, err := encoding.ByFormat(r.app.transcriptFormat)
	if err != nil {
		return err
	}
	body, err := enc.Marshal(&transcriptDump{
		Agent:   r.session.Name(),
		Entries: transcript.Records(),
	})
	if err != nil {
		return err
	}
	if location == "-" {
		_, err = r.out.Write(body)
		return errors.WithStack(err)
	}
	return errors.WithStack(os.WriteFile(location, body, 0o600))
}
