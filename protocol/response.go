package protocol

import (
	"encoding/json"
	"fmt"
)

// RemoteObject is the mirror of an evaluated value.
type RemoteObject struct {
	Type        string          `json:"type,omitempty"`
	Subtype     string          `json:"subtype,omitempty"`
	ClassName   string          `json:"className,omitempty"`
	Value       json.RawMessage `json:"value,omitempty"`
	Description string          `json:"description,omitempty"`
}

type ExceptionDetails struct {
	Text      string        `json:"text"`
	Exception *RemoteObject `json:"exception,omitempty"`
}

func (e *ExceptionDetails) String() string {
	if e.Exception != nil && e.Exception.Description != "" {
		return e.Exception.Description
	}
	return e.Text
}

type EvaluateResult struct {
	Result           *RemoteObject     `json:"result,omitempty"`
	ExceptionDetails *ExceptionDetails `json:"exceptionDetails,omitempty"`
}

// Error is a protocol level error returned in place of a result.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	if len(e.Data) == 0 {
		return fmt.Sprintf("protocol error %d: %s", e.Code, e.Message)
	}
	var data string
	if err := json.Unmarshal(e.Data, &data); err != nil {
		data = string(e.Data)
	}
	return fmt.Sprintf("protocol error %d: %s (%s)", e.Code, e.Message, data)
}

// Response is an inbound frame. Method call results carry an ID, events carry a Method instead.
// Result is kept raw since its shape depends on the method that was called.
type Response struct {
	ID     *int64          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
}

// DecodeResponse decodes one inbound frame. Frames that are not JSON objects return an error.
func DecodeResponse(b []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(b, &resp); err != nil {
		return nil, fmt.Errorf("decoding frame: %w", err)
	}
	return &resp, nil
}

func (r *Response) IsEvent() bool {
	return r.ID == nil && r.Method != ""
}

// Evaluation decodes the result as a Runtime.evaluate result. It returns nil when the result is
// missing or has another shape.
func (r *Response) Evaluation() *EvaluateResult {
	if len(r.Result) == 0 {
		return nil
	}
	var res EvaluateResult
	if err := json.Unmarshal(r.Result, &res); err != nil {
		return nil
	}
	return &res
}

// Value returns result.result.value coerced to a string. JSON strings are unquoted, any other
// JSON value is returned as its literal text, and a missing value is the empty string.
func (r *Response) Value() string {
	res := r.Evaluation()
	if res == nil || res.Result == nil || len(res.Result.Value) == 0 {
		return ""
	}
	raw := res.Result.Value
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// Exception returns the exception thrown by an evaluation, if any.
func (r *Response) Exception() *ExceptionDetails {
	res := r.Evaluation()
	if res == nil {
		return nil
	}
	return res.ExceptionDetails
}
