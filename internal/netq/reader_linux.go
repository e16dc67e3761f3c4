// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux

package netq

import (
	"context"
	"fmt"
	"time"

	"github.com/florianl/go-nfqueue/v2"

	"grimm.is/ips/internal/logging"
	"grimm.is/ips/internal/verdict"
)

// VerdictFunc decides whether a decoded packet should be accepted. A
// packet that fails to decode as IPv4 is accepted without calling this.
type VerdictFunc func(verdict.PacketView) bool

// Reader binds one NFQUEUE number and hands every packet it receives to a
// VerdictFunc, returning the packet's fate to the kernel.
type Reader struct {
	queueNum uint16
	logger   *logging.Logger
	decide   VerdictFunc

	nf     *nfqueue.Nfqueue
	cancel context.CancelFunc
}

// NewReader builds a Reader bound to queueNum. decide is called once per
// IPv4 packet; it is never called for a packet DecodeIPv4 rejects.
func NewReader(queueNum uint16, logger *logging.Logger, decide VerdictFunc) *Reader {
	return &Reader{queueNum: queueNum, logger: logger, decide: decide}
}

// Start opens the queue and begins delivering packets in the background.
func (r *Reader) Start() error {
	cfg := nfqueue.Config{
		NfQueue:      r.queueNum,
		MaxPacketLen: 0xFFFF,
		MaxQueueLen:  1024,
		Copymode:     nfqueue.NfQnlCopyPacket,
		WriteTimeout: 15 * time.Millisecond,
	}

	nf, err := nfqueue.Open(&cfg)
	if err != nil {
		return fmt.Errorf("open nfqueue %d: %w", r.queueNum, err)
	}
	r.nf = nf

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	onPacket := func(a nfqueue.Attribute) int {
		r.handle(a)
		return 0
	}
	onError := func(e error) int {
		r.logger.Error("nfqueue error", "error", e)
		return 0
	}

	if err := nf.RegisterWithErrorFunc(ctx, onPacket, onError); err != nil {
		nf.Close()
		cancel()
		return fmt.Errorf("register nfqueue %d: %w", r.queueNum, err)
	}

	r.logger.Info("nfqueue reader started", "queue_num", r.queueNum)
	return nil
}

func (r *Reader) handle(a nfqueue.Attribute) {
	if a.PacketID == nil {
		return
	}

	accept := true
	if a.Payload != nil {
		if view, ok := DecodeIPv4(*a.Payload); ok {
			accept = r.decide(view)
		}
	}

	v := nfqueue.NfAccept
	if !accept {
		v = nfqueue.NfDrop
	}
	if err := r.nf.SetVerdict(*a.PacketID, v); err != nil {
		r.logger.Error("nfqueue set verdict failed", "error", err, "packet_id", *a.PacketID)
	}
}

// Stop releases the queue. Safe to call even if Start was never called.
func (r *Reader) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	if r.nf != nil {
		r.nf.Close()
	}
}
