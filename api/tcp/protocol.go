package tcp

import "encoding/json"

// Wire protocol: one JSON object per line, request/response. Numeric
// response codes follow the venue convention: 100 is success, everything
// else is an error specific to the operation.

const (
	codeOK    = 100
	codeError = 101

	codeUsernameTaken   = 102
	codeAlreadyLoggedIn = 102
	codeUnknownUser     = 102
	codeSamePassword    = 103
	codeNotOwner        = 103
	codeLoggedInUpdate  = 104
)

type request struct {
	Operation string          `json:"operation"`
	Values    json.RawMessage `json:"values"`
}

type credentialsValues struct {
	Username string `json:"username"`
	Password string `json:"password"`
	UDPPort  int    `json:"udpPort,omitempty"`
}

type updateCredentialsValues struct {
	Username    string `json:"username"`
	CurrentPass string `json:"currentPassword"`
	NewPass     string `json:"newPassword"`
}

type orderValues struct {
	Type  string `json:"type"`  // "bid" or "ask"
	Size  int64  `json:"size"`
	Price string `json:"price,omitempty"` // decimal string, absent for market
}

type cancelValues struct {
	OrderID uint64 `json:"orderId"`
}

type historyValues struct {
	Month string `json:"month"` // MMYYYY
}

type codeResponse struct {
	Response     int    `json:"response"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

type orderResponse struct {
	OrderID int64 `json:"orderId"` // -1 on rejection
}

type depthResponse struct {
	Response    int    `json:"response"`
	Bids        int    `json:"bids"`
	Asks        int    `json:"asks"`
	Spread      string `json:"spread,omitempty"`
	MarketPrice string `json:"marketPrice,omitempty"`
}

type historyResponse struct {
	Response int          `json:"response"`
	Month    string       `json:"month"`
	Days     []historyDay `json:"days"`
}

type historyDay struct {
	Day    string `json:"day"`
	Open   string `json:"open"`
	High   string `json:"high"`
	Low    string `json:"low"`
	Close  string `json:"close"`
	Volume int64  `json:"volume"`
}

func ok() codeResponse { return codeResponse{Response: codeOK} }

func fail(code int, msg string) codeResponse {
	return codeResponse{Response: code, ErrorMessage: msg}
}
