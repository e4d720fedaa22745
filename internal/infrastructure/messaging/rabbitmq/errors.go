package rabbitmq

import (
	"errors"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

var (
	// ErrTopologyConflict means a declaration clashed with an existing one
	// (different kind, durability or arguments). It is a configuration error
	// and is never retried.
	ErrTopologyConflict = errors.New("rabbitmq: topology precondition failed")

	ErrClosed          = errors.New("rabbitmq: client closed")
	errChannelNotReady = errors.New("rabbitmq: channel not ready")
	errReconnecting    = errors.New("rabbitmq: reconnect already in progress")
)

func isPreconditionFailed(err error) bool {
	if err == nil {
		return false
	}
	var ae *amqp.Error
	if errors.As(err, &ae) && ae.Code == amqp.PreconditionFailed {
		return true
	}
	msg := strings.ToUpper(err.Error())
	return strings.Contains(msg, "PRECONDITION_FAILED") || strings.Contains(msg, "INEQUIVALENT ARG")
}

// isPermanent reports whether a handler error can never succeed on retry.
func isPermanent(err error) bool {
	var per interface{ Permanent() bool }
	return errors.As(err, &per) && per.Permanent()
}
