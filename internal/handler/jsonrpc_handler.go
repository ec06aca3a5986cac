// internal/handler/jsonrpc_handler.go
package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"printer-service/internal/service"
	"printer-service/internal/utils"
)

const maxRequestBody = 1 << 20

type rpcMethod func(ctx context.Context, params json.RawMessage) (interface{}, error)

// JSONRPCHandler serves the printer control API as JSON-RPC 2.0 over HTTP
type JSONRPCHandler struct {
	printerService *service.PrinterService
	logger         *utils.ServiceLogger
	methods        map[string]rpcMethod
}

// NewJSONRPCHandler creates a new JSON-RPC handler
func NewJSONRPCHandler(printerService *service.PrinterService, logger *zap.Logger) *JSONRPCHandler {
	h := &JSONRPCHandler{
		printerService: printerService,
		logger:         utils.NewServiceLogger(logger, "jsonrpc-handler"),
	}

	h.methods = map[string]rpcMethod{
		"set-serial-port":   h.setSerialPort,
		"get-serial-ports":  h.getSerialPorts,
		"send-gcode":        h.sendGcode,
		"get-printer-state": h.getPrinterState,
		"close-serial-port": h.closeSerialPort,
		"set-line":          h.setLine,
	}
	return h
}

// RegisterRoutes registers the JSON-RPC endpoint
func (h *JSONRPCHandler) RegisterRoutes(router gin.IRoutes) {
	router.POST("/jsonrpc", h.Handle)
}

// Handle serves a single call or a batch
func (h *JSONRPCHandler) Handle(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRequestBody))
	if err != nil {
		c.JSON(http.StatusOK, errorResponse(nil, newRPCError(CodeParseError, "failed to read request body")))
		return
	}

	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		h.handleBatch(c, body)
		return
	}

	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusOK, errorResponse(nil, newRPCError(CodeParseError, "parse error")))
		return
	}

	resp := h.call(c.Request.Context(), &req)
	if resp == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *JSONRPCHandler) handleBatch(c *gin.Context, body []byte) {
	var batch []RPCRequest
	if err := json.Unmarshal(body, &batch); err != nil {
		c.JSON(http.StatusOK, errorResponse(nil, newRPCError(CodeParseError, "parse error")))
		return
	}
	if len(batch) == 0 {
		c.JSON(http.StatusOK, errorResponse(nil, newRPCError(CodeInvalidRequest, "empty batch")))
		return
	}

	responses := make([]*RPCResponse, 0, len(batch))
	for i := range batch {
		if resp := h.call(c.Request.Context(), &batch[i]); resp != nil {
			responses = append(responses, resp)
		}
	}

	if len(responses) == 0 {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, responses)
}

// call dispatches one request; notifications yield nil
func (h *JSONRPCHandler) call(ctx context.Context, req *RPCRequest) *RPCResponse {
	if req.JSONRPC != jsonRPCVersion || req.Method == "" {
		return errorResponse(req.ID, newRPCError(CodeInvalidRequest, "invalid request"))
	}

	method, ok := h.methods[req.Method]
	if !ok {
		h.logger.Warn("Method not found", zap.String("method", req.Method))
		if req.IsNotification() {
			return nil
		}
		return errorResponse(req.ID, newRPCError(CodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method)))
	}

	start := time.Now()
	result, err := method(ctx, req.Params)

	fields := []zap.Field{
		zap.String("method", req.Method),
		zap.Duration("duration", time.Since(start)),
	}
	if err != nil {
		h.logger.Warn("JSON-RPC call failed", append(fields, zap.Error(err))...)
	} else {
		h.logger.Debug("JSON-RPC call completed", fields...)
	}

	if req.IsNotification() {
		return nil
	}
	if err != nil {
		return errorResponse(req.ID, rpcErrorFrom(err))
	}
	return &RPCResponse{JSONRPC: jsonRPCVersion, Result: result, ID: req.ID}
}

func errorResponse(id json.RawMessage, err *RPCError) *RPCResponse {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	return &RPCResponse{JSONRPC: jsonRPCVersion, Error: err, ID: id}
}

// setSerialPort: [port, baud]
func (h *JSONRPCHandler) setSerialPort(ctx context.Context, params json.RawMessage) (interface{}, error) {
	args, err := positional(params, "port", "baud")
	if err != nil {
		return nil, err
	}

	var port string
	if err := decodeArg(args, 0, &port, true); err != nil {
		return nil, err
	}
	baud, err := intArg(args, 1, false)
	if err != nil {
		return nil, err
	}

	result, err := h.printerService.Connect(ctx, port, baud)
	if err != nil {
		return nil, err
	}

	return []ConnectResult{{
		Time:     result.Time.UnixMilli(),
		Port:     []interface{}{result.Port, result.BaudRate},
		Messages: result.Messages,
		Reused:   result.Reused,
	}}, nil
}

func (h *JSONRPCHandler) getSerialPorts(ctx context.Context, _ json.RawMessage) (interface{}, error) {
	ports, err := h.printerService.ListAvailablePorts(ctx)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(ports))
	for _, p := range ports {
		names = append(names, p.Name)
	}

	return []PortsResult{{
		Ports:   names,
		Details: ports,
		Time:    time.Now().UnixMilli(),
	}}, nil
}

// sendGcode: [gcode, parse?]
func (h *JSONRPCHandler) sendGcode(ctx context.Context, params json.RawMessage) (interface{}, error) {
	args, err := positional(params, "gcode", "parse")
	if err != nil {
		return nil, err
	}

	var gcode string
	if err := decodeArg(args, 0, &gcode, true); err != nil {
		return nil, err
	}
	var parse bool
	if err := decodeArg(args, 1, &parse, false); err != nil {
		return nil, err
	}

	res, err := h.printerService.SendCommand(ctx, gcode, parse)
	if err != nil {
		return nil, err
	}

	return []GcodeResult{{
		Time:       time.Now().UnixMilli(),
		Gcode:      res.Command.Text,
		Sequence:   res.Command.Sequence,
		Retries:    res.Retries,
		DurationMS: res.Duration.Milliseconds(),
		Events:     res.Events,
	}}, nil
}

func (h *JSONRPCHandler) getPrinterState(context.Context, json.RawMessage) (interface{}, error) {
	status := h.printerService.Status()

	return []PrinterStateResult{{
		Time:         time.Now().UnixMilli(),
		Port:         status.Port,
		Baud:         strconv.Itoa(status.BaudRate),
		State:        status.State.String(),
		NextLine:     status.NextLine,
		CommandsSent: status.CommandsSent,
	}}, nil
}

func (h *JSONRPCHandler) closeSerialPort(ctx context.Context, _ json.RawMessage) (interface{}, error) {
	state, err := h.printerService.Disconnect(ctx)
	if err != nil {
		return nil, err
	}
	return []string{state.String()}, nil
}

// setLine: [n]
func (h *JSONRPCHandler) setLine(ctx context.Context, params json.RawMessage) (interface{}, error) {
	args, err := positional(params, "line")
	if err != nil {
		return nil, err
	}
	n, err := intArg(args, 0, true)
	if err != nil {
		return nil, err
	}
	if n < 1 {
		return nil, newRPCError(CodeInvalidParams, "line must be at least 1")
	}

	if err := h.printerService.SetLineNumber(ctx, n); err != nil {
		return nil, err
	}
	return []int{n}, nil
}

// positional returns params as an argument list. Named params are mapped to
// positions by names.
func positional(params json.RawMessage, names ...string) ([]json.RawMessage, error) {
	params = bytes.TrimSpace(params)
	if len(params) == 0 || bytes.Equal(params, []byte("null")) {
		return nil, nil
	}

	switch params[0] {
	case '[':
		var args []json.RawMessage
		if err := json.Unmarshal(params, &args); err != nil {
			return nil, newRPCError(CodeInvalidParams, "invalid params")
		}
		return args, nil

	case '{':
		var named map[string]json.RawMessage
		if err := json.Unmarshal(params, &named); err != nil {
			return nil, newRPCError(CodeInvalidParams, "invalid params")
		}
		args := make([]json.RawMessage, len(names))
		for i, name := range names {
			args[i] = named[name]
		}
		return args, nil
	}

	return nil, newRPCError(CodeInvalidParams, "params must be an array or object")
}

func decodeArg(args []json.RawMessage, i int, v interface{}, required bool) error {
	if i >= len(args) || len(args[i]) == 0 {
		if required {
			return newRPCError(CodeInvalidParams, fmt.Sprintf("missing parameter %d", i))
		}
		return nil
	}
	if err := json.Unmarshal(args[i], v); err != nil {
		return newRPCError(CodeInvalidParams, fmt.Sprintf("invalid parameter %d: %v", i, err))
	}
	return nil
}

// intArg accepts numbers and numeric strings
func intArg(args []json.RawMessage, i int, required bool) (int, error) {
	var raw interface{}
	if err := decodeArg(args, i, &raw, required); err != nil {
		return 0, err
	}

	switch v := raw.(type) {
	case nil:
		return 0, nil
	case float64:
		return int(v), nil
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, newRPCError(CodeInvalidParams, fmt.Sprintf("invalid parameter %d: %q is not a number", i, v))
		}
		return n, nil
	default:
		return 0, newRPCError(CodeInvalidParams, fmt.Sprintf("invalid parameter %d: expected a number", i))
	}
}
