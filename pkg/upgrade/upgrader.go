// SPDX-License-Identifier: BSD-2-Clause
// Copyright (c) 2026 Frederic Detienne

package upgrade

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/TotallyFred/cloudwatcher/pkg/aagproto"
	"github.com/TotallyFred/cloudwatcher/pkg/transport"
)

// State is the upgrade state machine position.
type State int

const (
	StateIdle State = iota
	StateHandshakeSent
	StateBootloaderConfirmed
	StateTransferring
	StateVerifying
	StateCommitting
	StateDone
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateHandshakeSent:
		return "handshake sent"
	case StateBootloaderConfirmed:
		return "bootloader confirmed"
	case StateTransferring:
		return "transferring"
	case StateVerifying:
		return "verifying"
	case StateCommitting:
		return "committing"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state machine has finished.
func (s State) Terminal() bool {
	return s == StateDone || s == StateAborted
}

// Bootloader wire vocabulary. The bootloader polls with a prompt byte; the
// host answers it once, then drives the transfer with framed commands, each
// acknowledged with a single byte.
const (
	promptByte    = 'c'
	attentionByte = 'd'
	ackByte       = 0x06
	nackByte      = 0x15

	cmdLength = 'L' // image length header: 'L' count_hi count_lo sum
	cmdBlock  = 'W' // block write: 'W' idx_hi idx_lo data[64] sum
	cmdVerify = 'V' // request image CRC: device answers crc_hi crc_lo
	cmdCommit = 'C' // commit and reboot into the new image
)

// Status is the caller-visible transfer state after a Step.
type Status struct {
	State       State
	Block       int
	TotalBlocks int
	Err         error
}

// Upgrader drives firmware transfers over a borrowed transport. The
// transport must not be used for telemetry while a transfer is active;
// the device session enforces this.
type Upgrader struct {
	tr  transport.Transport
	cfg config
}

// New creates an Upgrader on the given transport.
func New(tr transport.Transport, opts ...Option) *Upgrader {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Upgrader{tr: tr, cfg: cfg}
}

// Transfer is one in-flight firmware upgrade. The caller drives it by
// calling Step until the state is terminal; Abort may be called from
// another goroutine and is honored at the next checkpoint.
type Transfer struct {
	u   *Upgrader
	img *Image

	state        State
	next         int // next block index to send
	blockRetries int
	started      time.Time
	err          error

	prevReadTimeout time.Duration
	readTimeoutSet  bool

	abortReq atomic.Bool
	finished bool
}

// Begin prepares a transfer for the given image. The actual bootloader
// handshake happens on the first Step so the caller can render progress
// from the very start.
func (u *Upgrader) Begin(img *Image) (*Transfer, error) {
	if img == nil {
		return nil, fmt.Errorf("nil firmware image")
	}
	u.cfg.log.Info().Int("blocks", img.Blocks()).Int("bytes", img.Len()).
		Msg("firmware transfer prepared")
	return &Transfer{u: u, img: img, state: StateIdle, started: time.Now()}, nil
}

// State returns the current state machine position.
func (t *Transfer) State() State {
	return t.state
}

// Err returns the terminal error, if any.
func (t *Transfer) Err() error {
	return t.err
}

// Abort requests a cooperative abort. The in-flight I/O call completes or
// times out first; the transfer then aborts at the next checkpoint without
// committing. Calling Abort on a finished transfer is a no-op.
func (t *Transfer) Abort() {
	t.abortReq.Store(true)
}

// Step advances the state machine by one checkpoint and reports the
// resulting status. On a terminal state Step is a no-op returning the
// final status; the error, if any, is also carried in Status.Err.
func (t *Transfer) Step() (Status, error) {
	if t.state.Terminal() {
		return t.status(), nil
	}

	if t.abortReq.Load() {
		t.abort(errors.New("aborted by caller"))
		t.report()
		t.finishOnce()
		return t.status(), t.err
	}

	var err error
	switch t.state {
	case StateIdle:
		err = t.stepEnter()
	case StateHandshakeSent:
		err = t.stepAwaitPrompt()
	case StateBootloaderConfirmed:
		err = t.stepSendLength()
	case StateTransferring:
		err = t.stepSendBlock()
	case StateVerifying:
		err = t.stepVerify()
	case StateCommitting:
		err = t.stepCommit()
	}
	if err != nil {
		t.abort(err)
	}

	t.report()
	if t.state.Terminal() {
		t.finishOnce()
	}
	return t.status(), t.err
}

// stepEnter switches the link to the bootloader baud rate, applies the
// per-block acknowledgment deadline and raises the host attention byte.
func (t *Transfer) stepEnter() error {
	if err := t.u.tr.SetSpeed(aagproto.UpgradeBaud); err != nil {
		return fmt.Errorf("switch to upgrade baud: %w", err)
	}
	if rd, ok := t.u.tr.(transport.ReadDeadliner); ok && t.u.cfg.blockTimeout > 0 {
		prev, err := rd.SetReadTimeout(t.u.cfg.blockTimeout)
		if err != nil {
			return fmt.Errorf("apply block acknowledgment deadline: %w", err)
		}
		t.prevReadTimeout = prev
		t.readTimeoutSet = true
	}
	if err := t.u.tr.Write([]byte{attentionByte}); err != nil {
		return fmt.Errorf("send attention: %w", err)
	}
	t.state = StateHandshakeSent
	return nil
}

// stepAwaitPrompt waits for the bootloader poll byte.
func (t *Transfer) stepAwaitPrompt() error {
	for attempt := 1; attempt <= t.u.cfg.retries; attempt++ {
		b, err := t.u.tr.ReadExact(1)
		if err != nil {
			if transport.IsTimeout(err) {
				continue
			}
			return fmt.Errorf("await bootloader prompt: %w", err)
		}
		if b[0] == promptByte {
			t.u.cfg.log.Debug().Msg("bootloader prompt received")
			t.state = StateBootloaderConfirmed
			return nil
		}
		// Residual telemetry bytes can trail the mode switch; skip them.
	}
	return fmt.Errorf("no bootloader prompt after %d attempts", t.u.cfg.retries)
}

// stepSendLength announces the block count and waits for the first ack.
func (t *Transfer) stepSendLength() error {
	total := t.img.Blocks()
	frame := []byte{cmdLength, byte(total >> 8), byte(total)}
	frame = append(frame, frameChecksum(frame))

	if err := t.sendAcked(frame, "length header"); err != nil {
		return err
	}
	t.state = StateTransferring
	t.next = 0
	t.blockRetries = 0
	return nil
}

// stepSendBlock sends the next block and consumes its acknowledgment.
// Block i+1 is never sent before block i is acked; a nack or timeout
// resends the same block until the per-block budget runs out.
func (t *Transfer) stepSendBlock() error {
	frame := make([]byte, 0, BlockSize+4)
	frame = append(frame, cmdBlock, byte(t.next>>8), byte(t.next))
	frame = append(frame, t.img.Block(t.next)...)
	frame = append(frame, frameChecksum(frame))

	if err := t.u.tr.Write(frame); err != nil {
		return fmt.Errorf("send block %d: %w", t.next, err)
	}

	ok, err := t.readAck()
	if err != nil {
		return fmt.Errorf("block %d acknowledgment: %w", t.next, err)
	}
	if !ok {
		t.blockRetries++
		if t.blockRetries >= t.u.cfg.retries {
			return fmt.Errorf("block %d rejected %d times", t.next, t.blockRetries)
		}
		t.u.cfg.log.Debug().Int("block", t.next).Int("retry", t.blockRetries).
			Msg("block not acknowledged, resending")
		return nil // same state, same block
	}

	t.blockRetries = 0
	t.next++
	if t.next == t.img.Blocks() {
		t.state = StateVerifying
	}
	return nil
}

// stepVerify asks the device for its image checksum and compares it to the
// transferred image. A mismatch aborts without committing: the device must
// never reboot into unverified firmware.
func (t *Transfer) stepVerify() error {
	if err := t.u.tr.Write([]byte{cmdVerify}); err != nil {
		return fmt.Errorf("request verification: %w", err)
	}
	crcBytes, err := t.u.tr.ReadExact(2)
	if err != nil {
		return fmt.Errorf("read verification checksum: %w", err)
	}
	reported := uint16(crcBytes[0])<<8 | uint16(crcBytes[1])
	if reported != t.img.CRC() {
		return &VerifyError{Expected: t.img.CRC(), Reported: reported}
	}
	t.u.cfg.log.Info().Str("crc", fmt.Sprintf("0x%04X", reported)).Msg("image verified")
	t.state = StateCommitting
	return nil
}

// stepCommit issues the commit command. The device acks and reboots into
// the new image; a missing ack is tolerated because the reset can win the
// race against the reply.
func (t *Transfer) stepCommit() error {
	if err := t.u.tr.Write([]byte{cmdCommit}); err != nil {
		return fmt.Errorf("send commit: %w", err)
	}
	if _, err := t.u.tr.ReadExact(1); err != nil && !transport.IsTimeout(err) {
		return fmt.Errorf("commit acknowledgment: %w", err)
	}

	t.restoreSpeed()
	t.state = StateDone
	t.u.cfg.log.Info().Dur("elapsed", time.Since(t.started)).Msg("firmware transfer complete")
	return nil
}

// sendAcked writes a frame and requires a positive ack, retrying within
// the configured budget.
func (t *Transfer) sendAcked(frame []byte, what string) error {
	for attempt := 1; attempt <= t.u.cfg.retries; attempt++ {
		if err := t.u.tr.Write(frame); err != nil {
			return fmt.Errorf("send %s: %w", what, err)
		}
		ok, err := t.readAck()
		if err != nil {
			return fmt.Errorf("%s acknowledgment: %w", what, err)
		}
		if ok {
			return nil
		}
	}
	return fmt.Errorf("%s rejected %d times", what, t.u.cfg.retries)
}

// readAck reads one acknowledgment byte. A timeout counts as a negative
// acknowledgment (the block is resent); other I/O errors are fatal.
func (t *Transfer) readAck() (bool, error) {
	b, err := t.u.tr.ReadExact(1)
	if err != nil {
		if transport.IsTimeout(err) {
			return false, nil
		}
		return false, err
	}
	switch b[0] {
	case ackByte:
		return true, nil
	case nackByte:
		return false, nil
	default:
		return false, fmt.Errorf("unexpected acknowledgment byte 0x%02X", b[0])
	}
}

func (t *Transfer) abort(cause error) {
	t.restoreSpeed()
	t.err = &AbortedError{Phase: t.state, Cause: cause}
	t.state = StateAborted
	t.u.cfg.log.Error().Err(cause).Msg("firmware transfer aborted")
}

// restoreSpeed drops the link back to the telemetry baud rate and read
// deadline. Best effort: by this point the transfer outcome is already
// decided.
func (t *Transfer) restoreSpeed() {
	if t.readTimeoutSet {
		t.readTimeoutSet = false
		if _, err := t.u.tr.(transport.ReadDeadliner).SetReadTimeout(t.prevReadTimeout); err != nil {
			t.u.cfg.log.Warn().Err(err).Msg("could not restore the session read deadline")
		}
	}
	if err := t.u.tr.SetSpeed(aagproto.DefaultBaud); err != nil {
		t.u.cfg.log.Warn().Err(err).Msg("could not restore telemetry baud rate")
	}
}

func (t *Transfer) finishOnce() {
	if t.finished {
		return
	}
	t.finished = true
	if t.u.cfg.finish != nil {
		t.u.cfg.finish()
	}
}

func (t *Transfer) status() Status {
	return Status{
		State:       t.state,
		Block:       t.next,
		TotalBlocks: t.img.Blocks(),
		Err:         t.err,
	}
}

func (t *Transfer) report() {
	if t.u.cfg.progress == nil {
		return
	}
	total := t.img.Blocks()
	percent := 0.0
	switch {
	case t.state == StateDone:
		percent = 100
	case t.state == StateVerifying || t.state == StateCommitting:
		percent = 95
	case total > 0:
		percent = float64(t.next) / float64(total) * 90
	}
	t.u.cfg.progress(Progress{
		State:       t.state,
		Block:       t.next,
		TotalBlocks: total,
		Percent:     percent,
		Elapsed:     time.Since(t.started),
	})
}

// frameChecksum is the two's complement of the byte sum, appended to every
// framed bootloader command.
func frameChecksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return ^sum + 1
}
