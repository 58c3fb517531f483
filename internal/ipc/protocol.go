package ipc

type Request struct {
	Command string `json:"command"`
	Source  string `json:"source,omitempty"`
	Surface string `json:"surface,omitempty"`
}

type Response struct {
	OK        bool   `json:"ok"`
	State     string `json:"state,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
}
