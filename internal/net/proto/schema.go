package proto

import (
	"fmt"

	"github.com/invopop/jsonschema"
)

// payloadTypes lists the payload carried by each op that has one.
var payloadTypes = map[OpCode]any{
	OpPlay:                  PlayResponse{},
	OpChangeUsername:        ChangeUsernameRequest{},
	OpMatchFinished:         MatchFinished{},
	OpRemovedFromRoom:       RemovedFromRoom{},
	OpStartTimer:            StartTimer{},
	OpDisplayWaitingMessage: DisplayWaitingMessage{},
	OpPlayerCountUpdate:     PlayerCountUpdate{},
	OpEntitySpawned:         EntitySpawned{},
	OpEntityHidden:          EntityHidden{},
	OpHealthChanged:         HealthChanged{},
}

// Schema describes every payload as a JSON schema definition keyed by op
// name, plus the shared failure payload. msgpack frames use the same field
// names.
func Schema() (*jsonschema.Schema, error) {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}

	defs := jsonschema.Definitions{}
	reflect := func(name string, v any) error {
		schema := reflector.Reflect(v)
		if schema == nil {
			return fmt.Errorf("failed to reflect %s schema", name)
		}
		schema.Version = ""
		schema.Title = name
		defs[name] = schema
		return nil
	}
	for op, payload := range payloadTypes {
		if err := reflect(op.String(), payload); err != nil {
			return nil, err
		}
	}
	if err := reflect("Failure", Failure{}); err != nil {
		return nil, err
	}

	return &jsonschema.Schema{
		Version:     jsonschema.Version,
		Title:       "Arena Rooms Protocol",
		Description: fmt.Sprintf("Payloads carried in msgpack envelopes {op, seq, status, payload}, protocol version %d.", Version),
		Type:        "object",
		Definitions: defs,
	}, nil
}
