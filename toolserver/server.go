// Package toolserver serves the HTTP handlers behind the tool catalog:
// customer lookup, SMS sending, and verification. Each handler owns its own
// argument schema; the invoker passes payloads through verbatim.
package toolserver

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/agentplexus/voicerelay/internal/client"
)

// MessageSender sends SMS messages. *client.Client satisfies it.
type MessageSender interface {
	SendMessage(ctx context.Context, params *client.SendMessageParams) (*client.Message, error)
}

// Config configures the tool server.
type Config struct {
	// SMS is the sender behind send-sms and verify-send. Nil disables
	// those tools (503).
	SMS MessageSender

	// FromNumber is the SMS sender number.
	FromNumber string

	Logger *slog.Logger
}

// Server implements the tool handler HTTP contract:
// POST /tools/<name> with a JSON argument payload, JSON response.
type Server struct {
	sms    MessageSender
	from   string
	logger *slog.Logger

	mu    sync.Mutex
	codes map[string]string // phone -> issued verification code
}

// New creates a tool server.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		sms:    cfg.SMS,
		from:   cfg.FromNumber,
		logger: logger,
		codes:  make(map[string]string),
	}
}

// Register mounts the tool routes.
func (s *Server) Register(r gin.IRouter) {
	r.POST("/tools/get-customer", s.getCustomer)
	r.POST("/tools/send-sms", s.sendSMS)
	r.POST("/tools/verify-send", s.verifySend)
	r.POST("/tools/verify-code", s.verifyCode)
}

type getCustomerArgs struct {
	Caller string `json:"caller"`
}

// getCustomer returns the customer record for the calling number. The
// record is canned demo data; a real deployment would query a CRM here.
func (s *Server) getCustomer(c *gin.Context) {
	var args getCustomerArgs
	if err := c.ShouldBindJSON(&args); err != nil || args.Caller == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "caller is missing"})
		return
	}

	s.logger.Info("customer lookup", "caller", args.Caller)
	c.JSON(http.StatusOK, gin.H{
		"firstName": "Des",
		"lastName":  "Hartman",
		"phone":     args.Caller,
		"dob":       "10/10/2010",
		"account":   "A-1234567890",
	})
}

type sendSMSArgs struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

func (s *Server) sendSMS(c *gin.Context) {
	if s.sms == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sms sending is not configured"})
		return
	}

	var args sendSMSArgs
	if err := c.ShouldBindJSON(&args); err != nil || args.To == "" || args.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to and message are required"})
		return
	}

	msg, err := s.sms.SendMessage(c.Request.Context(), &client.SendMessageParams{
		To:   args.To,
		From: s.from,
		Body: args.Message,
	})
	if err != nil {
		s.logger.Error("send-sms failed", "to", args.To, "err", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	s.logger.Info("sms sent", "to", args.To, "sid", msg.SID)
	c.JSON(http.StatusOK, gin.H{"status": "sent", "to": args.To})
}

type verifySendArgs struct {
	Phone string `json:"phone"`
}

func (s *Server) verifySend(c *gin.Context) {
	if s.sms == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sms sending is not configured"})
		return
	}

	var args verifySendArgs
	if err := c.ShouldBindJSON(&args); err != nil || args.Phone == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "phone is missing"})
		return
	}

	code := fmt.Sprintf("%06d", rand.IntN(1000000))
	s.mu.Lock()
	s.codes[args.Phone] = code
	s.mu.Unlock()

	if _, err := s.sms.SendMessage(c.Request.Context(), &client.SendMessageParams{
		To:   args.Phone,
		From: s.from,
		Body: "Your verification code is: " + code,
	}); err != nil {
		s.logger.Error("verify-send failed", "phone", args.Phone, "err", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	s.logger.Info("verification code sent", "phone", args.Phone)
	c.JSON(http.StatusOK, gin.H{"status": "sent", "phone": args.Phone})
}

type verifyCodeArgs struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

func (s *Server) verifyCode(c *gin.Context) {
	var args verifyCodeArgs
	if err := c.ShouldBindJSON(&args); err != nil || args.Phone == "" || args.Code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "phone and code are required"})
		return
	}

	s.mu.Lock()
	issued, ok := s.codes[args.Phone]
	if ok && issued == args.Code {
		delete(s.codes, args.Phone)
	}
	s.mu.Unlock()

	valid := ok && issued == args.Code
	s.logger.Info("verification checked", "phone", args.Phone, "valid", valid)
	c.JSON(http.StatusOK, gin.H{"valid": valid})
}
