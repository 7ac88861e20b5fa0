package tcp

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"

	"go.uber.org/zap"

	"cross/domain/book"
	"cross/service"
	"cross/users"
)

const defaultNotifyPort = 4445

// connHandler serves one client connection, one request per line. It holds
// the only per-connection state: which user, if any, is logged in here.
type connHandler struct {
	conn     net.Conn
	orders   *service.OrderService
	sessions *users.Manager
	history  HistorySource
	log      *zap.Logger

	user string
}

// HistorySource serves the getPriceHistory operation.
type HistorySource interface {
	PriceHistory(month string) ([]HistoryDayStats, error)
}

// HistoryDayStats mirrors the store's daily aggregate without importing it
// here; the server wires the adapter.
type HistoryDayStats struct {
	Day    string
	Open   int64
	High   int64
	Low    int64
	Close  int64
	Volume int64
}

func (h *connHandler) run() {
	defer func() {
		if h.user != "" {
			_ = h.sessions.Logout(h.user)
		}
		_ = h.conn.Close()
	}()

	scanner := bufio.NewScanner(h.conn)
	scanner.Buffer(make([]byte, 64*1024), 64*1024)
	enc := json.NewEncoder(h.conn)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			_ = enc.Encode(fail(codeError, "malformed request"))
			continue
		}
		if h.user != "" {
			h.sessions.Touch(h.user)
		}
		if err := enc.Encode(h.dispatch(req)); err != nil {
			h.log.Debug("write to client failed", zap.Error(err))
			return
		}
		if req.Operation == "logout" && h.user == "" {
			return
		}
	}
}

func (h *connHandler) dispatch(req request) any {
	switch req.Operation {
	case "register":
		return h.handleRegister(req.Values)
	case "login":
		return h.handleLogin(req.Values)
	case "logout":
		return h.handleLogout()
	case "updateCredentials":
		return h.handleUpdateCredentials(req.Values)
	case "insertLimitOrder":
		return h.handleInsertLimit(req.Values)
	case "insertMarketOrder":
		return h.handleInsertMarket(req.Values)
	case "insertStopOrder":
		return h.handleInsertStop(req.Values)
	case "cancelOrder":
		return h.handleCancel(req.Values)
	case "getPriceHistory":
		return h.handlePriceHistory(req.Values)
	case "getDepth":
		return h.handleDepth()
	default:
		return fail(codeError, "unsupported operation: "+req.Operation)
	}
}

func (h *connHandler) handleRegister(raw json.RawMessage) any {
	var v credentialsValues
	if err := json.Unmarshal(raw, &v); err != nil {
		return fail(codeError, "malformed values")
	}
	switch err := h.sessions.Register(v.Username, v.Password); {
	case err == nil:
		return ok()
	case errors.Is(err, users.ErrInvalidPassword):
		return fail(codeError, "invalid password")
	case errors.Is(err, users.ErrUsernameTaken):
		return fail(codeUsernameTaken, "username not available")
	default:
		return fail(codeError, err.Error())
	}
}

func (h *connHandler) handleLogin(raw json.RawMessage) any {
	if h.user != "" {
		return fail(codeAlreadyLoggedIn, "user already logged in on this connection")
	}
	var v credentialsValues
	if err := json.Unmarshal(raw, &v); err != nil {
		return fail(codeError, "malformed values")
	}
	port := v.UDPPort
	if port == 0 {
		port = defaultNotifyPort
	}
	addr := notifyAddr(h.conn, port)

	switch _, err := h.sessions.Login(v.Username, v.Password, addr); {
	case err == nil:
		h.user = v.Username
		return ok()
	case errors.Is(err, users.ErrWrongCredentials):
		return fail(codeError, "username/password mismatch")
	case errors.Is(err, users.ErrAlreadyLoggedIn):
		return fail(codeAlreadyLoggedIn, "user already logged in")
	default:
		return fail(codeError, err.Error())
	}
}

func (h *connHandler) handleLogout() any {
	if h.user == "" {
		return fail(codeError, "user not logged in")
	}
	if err := h.sessions.Logout(h.user); err != nil {
		return fail(codeError, err.Error())
	}
	h.user = ""
	return ok()
}

func (h *connHandler) handleUpdateCredentials(raw json.RawMessage) any {
	var v updateCredentialsValues
	if err := json.Unmarshal(raw, &v); err != nil {
		return fail(codeError, "malformed values")
	}
	switch err := h.sessions.UpdateCredentials(v.Username, v.CurrentPass, v.NewPass); {
	case err == nil:
		return ok()
	case errors.Is(err, users.ErrInvalidPassword):
		return fail(codeError, "invalid new password")
	case errors.Is(err, users.ErrUnknownUser), errors.Is(err, users.ErrWrongCredentials):
		return fail(codeUnknownUser, "username/password mismatch or non-existent username")
	case errors.Is(err, users.ErrSamePassword):
		return fail(codeSamePassword, "new password equal to old one")
	case errors.Is(err, users.ErrLoggedInUpdate):
		return fail(codeLoggedInUpdate, "user currently logged in")
	default:
		return fail(codeError, err.Error())
	}
}

func (h *connHandler) handleInsertLimit(raw json.RawMessage) any {
	if h.user == "" {
		return orderResponse{OrderID: -1}
	}
	var v orderValues
	if err := json.Unmarshal(raw, &v); err != nil {
		return orderResponse{OrderID: -1}
	}
	side, err := parseSide(v.Type)
	if err != nil {
		return orderResponse{OrderID: -1}
	}
	price, err := ParsePrice(v.Price)
	if err != nil {
		return orderResponse{OrderID: -1}
	}
	id, err := h.orders.SubmitLimit(h.user, side, v.Size, price)
	if err != nil {
		return orderResponse{OrderID: -1}
	}
	return orderResponse{OrderID: int64(id)}
}

func (h *connHandler) handleInsertMarket(raw json.RawMessage) any {
	if h.user == "" {
		return orderResponse{OrderID: -1}
	}
	var v orderValues
	if err := json.Unmarshal(raw, &v); err != nil {
		return orderResponse{OrderID: -1}
	}
	side, err := parseSide(v.Type)
	if err != nil {
		return orderResponse{OrderID: -1}
	}
	id, err := h.orders.SubmitMarket(h.user, side, v.Size)
	if err != nil {
		// Insufficient liquidity included: the venue reports -1 and the
		// book is guaranteed untouched.
		return orderResponse{OrderID: -1}
	}
	return orderResponse{OrderID: int64(id)}
}

func (h *connHandler) handleInsertStop(raw json.RawMessage) any {
	if h.user == "" {
		return orderResponse{OrderID: -1}
	}
	var v orderValues
	if err := json.Unmarshal(raw, &v); err != nil {
		return orderResponse{OrderID: -1}
	}
	side, err := parseSide(v.Type)
	if err != nil {
		return orderResponse{OrderID: -1}
	}
	stopPrice, err := ParsePrice(v.Price)
	if err != nil {
		return orderResponse{OrderID: -1}
	}
	id, err := h.orders.SubmitStop(h.user, side, v.Size, stopPrice)
	if err != nil {
		return orderResponse{OrderID: -1}
	}
	return orderResponse{OrderID: int64(id)}
}

func (h *connHandler) handleCancel(raw json.RawMessage) any {
	if h.user == "" {
		return fail(codeError, "user not logged in")
	}
	var v cancelValues
	if err := json.Unmarshal(raw, &v); err != nil {
		return fail(codeError, "malformed values")
	}
	switch err := h.orders.Cancel(v.OrderID, h.user); {
	case err == nil:
		return ok()
	case errors.Is(err, book.ErrNotOwner):
		return fail(codeNotOwner, "order belongs to a different user")
	case errors.Is(err, book.ErrOrderNotFound):
		return fail(codeError, "order does not exist or has already been finalized")
	default:
		return fail(codeError, err.Error())
	}
}

func (h *connHandler) handlePriceHistory(raw json.RawMessage) any {
	var v historyValues
	if err := json.Unmarshal(raw, &v); err != nil {
		return fail(codeError, "malformed values")
	}
	days, err := h.history.PriceHistory(v.Month)
	if err != nil {
		return fail(codeError, err.Error())
	}
	resp := historyResponse{Response: codeOK, Month: v.Month, Days: make([]historyDay, 0, len(days))}
	for _, d := range days {
		resp.Days = append(resp.Days, historyDay{
			Day:    d.Day,
			Open:   FormatPrice(d.Open),
			High:   FormatPrice(d.High),
			Low:    FormatPrice(d.Low),
			Close:  FormatPrice(d.Close),
			Volume: d.Volume,
		})
	}
	return resp
}

func (h *connHandler) handleDepth() any {
	bids, asks := h.orders.Depth()
	resp := depthResponse{Response: codeOK, Bids: bids, Asks: asks}
	if spread, defined := h.orders.Spread(); defined {
		resp.Spread = FormatPrice(spread)
	}
	if mp := h.orders.MarketPrice(); mp != 0 {
		resp.MarketPrice = FormatPrice(mp)
	}
	return resp
}

func parseSide(s string) (book.Side, error) {
	switch s {
	case "bid":
		return book.Bid, nil
	case "ask":
		return book.Ask, nil
	default:
		return 0, errors.New("unknown side: " + s)
	}
}

// notifyAddr is the client's UDP notification endpoint: the connection's
// source IP plus the port the client asked for at login.
func notifyAddr(conn net.Conn, port int) *net.UDPAddr {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return nil
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return nil
	}
	return &net.UDPAddr{IP: ip, Port: port}
}
