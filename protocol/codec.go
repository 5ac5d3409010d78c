package protocol

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// Marshal flattens a payload struct into a single JSON object carrying the
// cmd discriminator, e.g. {"cmd":"generate-started","concept":...}.
func Marshal(cmd string, payload interface{}) ([]byte, error) {
	fields := map[string]interface{}{}
	if payload != nil {
		raw, err := sonic.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("protocol: marshal payload for %q: %w", cmd, err)
		}
		if err := sonic.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("protocol: payload for %q is not an object: %w", cmd, err)
		}
	}
	fields["cmd"] = cmd
	return sonic.Marshal(fields)
}

// Decode parses an inbound client frame. Index fields default to -1 so a
// missing index never aliases index zero.
func Decode(data []byte) (Command, error) {
	cmd := Command{PlayerIndex: -1, QuestionIndex: -1}
	if err := sonic.Unmarshal(data, &cmd); err != nil {
		return Command{}, fmt.Errorf("protocol: decode frame: %w", err)
	}
	if cmd.Cmd == "" {
		return Command{}, fmt.Errorf("protocol: frame missing cmd field")
	}
	return cmd, nil
}
