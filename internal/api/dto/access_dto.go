package dto

// AccessCheckRequest is the body a terminal sends for each tap.
type AccessCheckRequest struct {
	CardUID string `json:"cardUid"`
}

// AccessCheckResponse is all a terminal learns about a tap.
type AccessCheckResponse struct {
	Result     string  `json:"result"`
	MemberName *string `json:"memberName,omitempty"`
	ExpiresAt  *string `json:"expiresAt,omitempty"`
}

// TerminalPingResponse identifies the calling terminal.
type TerminalPingResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	BranchID   string `json:"branchId"`
	BranchName string `json:"branchName"`
}
