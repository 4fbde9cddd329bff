package main

import (
	"context"
	"errors"

	"jsonrpc-peer/message"

	"github.com/rs/zerolog"
)

type Args struct {
	A, B int
}

type Reply struct {
	Result int
}

// Arith is served as Arith.Add, Arith.Multiply and Arith.Divide.
type Arith struct{}

func (a *Arith) Add(args *Args, reply *Reply) error {
	reply.Result = args.A + args.B
	return nil
}

func (a *Arith) Multiply(args *Args, reply *Reply) error {
	reply.Result = args.A * args.B
	return nil
}

func (a *Arith) Divide(args *Args, reply *Reply) error {
	if args.B == 0 {
		return errors.New("divide by zero")
	}
	reply.Result = args.A / args.B
	return nil
}

// echo answers with its params.
func echo(_ context.Context, req *message.Request) *message.Response {
	return message.NewResponse(req.Params, req.ID, nil)
}

func logNotification(logger zerolog.Logger) func(context.Context, *message.Notification) {
	return func(_ context.Context, n *message.Notification) {
		var text string
		if err := n.Bind(0, &text); err != nil {
			logger.Warn().Err(err).Msg("log notification without text")
			return
		}
		logger.Info().Str("from", "remote").Msg(text)
	}
}
