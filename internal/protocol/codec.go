package protocol

import (
	"encoding/json"
	"fmt"
	"io"
)

// EncodeRequest serializes a Request to JSON and writes it to w.
// Returns an error if the envelope is invalid or writing fails.
func EncodeRequest(w io.Writer, req *Request) error {
	if req.Protocol != Version {
		return fmt.Errorf("unsupported protocol version: %d", req.Protocol)
	}
	if !req.Operation.Valid() {
		return fmt.Errorf("unknown operation: %q", req.Operation)
	}
	if req.PluginID == "" {
		return fmt.Errorf("request missing plugin_id")
	}

	encoder := json.NewEncoder(w)
	if err := encoder.Encode(req); err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	return nil
}

// DecodeRequest reads a Request from r. Plugin authors use it to parse stdin.
func DecodeRequest(r io.Reader) (*Request, error) {
	var req Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, fmt.Errorf("failed to decode request: %w", err)
	}
	if req.Protocol != Version {
		return nil, fmt.Errorf("unsupported protocol version: %d", req.Protocol)
	}
	if !req.Operation.Valid() {
		return nil, fmt.Errorf("unknown operation: %q", req.Operation)
	}
	return &req, nil
}

// DecodeResponse reads a plugin's Response from r. Unknown fields are
// tolerated. The raw bytes are returned so callers can log what the plugin
// actually wrote.
func DecodeResponse(r io.Reader, op Operation) (*Response, []byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response: %w", err)
	}

	if len(data) == 0 {
		return nil, data, fmt.Errorf("plugin produced no output on stdout")
	}

	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, data, fmt.Errorf("plugin output is not valid JSON: %w", err)
	}

	if err := validateResponse(&resp, op); err != nil {
		return nil, data, err
	}
	return &resp, data, nil
}

func validateResponse(resp *Response, op Operation) error {
	if resp.Status == "" {
		return fmt.Errorf("response missing required field: status")
	}
	if resp.Status != "ok" && resp.Status != "error" {
		return fmt.Errorf("invalid status value: %q (must be 'ok' or 'error')", resp.Status)
	}
	if resp.Status == "error" && resp.Error == "" {
		return fmt.Errorf("response has status=error but no error message")
	}
	if resp.Status == "ok" && op.ExpectsResult() && resp.Result == nil {
		return fmt.Errorf("response to %s missing required field: result", op)
	}
	return nil
}
