// ABOUTME: Sends and uploads, dispatched one at a time by a FIFO worker
// ABOUTME: Prompts are appended optimistically; each reply lands directly after its own prompt

package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/2389/coven-chat/internal/backend"
	"github.com/2389/coven-chat/internal/history"
	"github.com/2389/coven-chat/internal/view"
)

// UploadRequest is a question about an attached file. Either may be empty,
// but not both.
type UploadRequest struct {
	Question string
	File     *backend.File
}

type jobKind int

const (
	jobSend jobKind = iota
	jobUpload
)

type job struct {
	kind   jobKind
	ctx    context.Context
	prompt view.LiveMessage
	upload UploadRequest
	done   chan error
}

// Send submits text as a new prompt to the active conversation. The prompt
// appears in the live buffer at once and any inspected turn is deselected.
// Send blocks until the reply arrives, the send fails, or ctx ends.
func (e *Engine) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyInput
	}
	if e.ctx.Err() != nil {
		return ErrClosed
	}

	var prompt view.LiveMessage
	e.update(EventSendQueued, func(s view.State) view.State {
		s, prompt = view.Submit(s, text)
		s.Loading.Sends++
		return s
	})

	return e.enqueue(ctx, job{kind: jobSend, ctx: ctx, prompt: prompt})
}

// Upload submits a question about an attached file. The prompt and the
// answer go to the upload buffer.
func (e *Engine) Upload(ctx context.Context, req UploadRequest) error {
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" && req.File.Size() == 0 {
		return ErrEmptyInput
	}
	if e.uploader == nil {
		return ErrNoUploader
	}
	if e.ctx.Err() != nil {
		return ErrClosed
	}

	var prompt view.LiveMessage
	e.update(EventUploadQueued, func(s view.State) view.State {
		s, prompt = view.SubmitUpload(s, uploadPromptText(req))
		s.Loading.Uploads++
		return s
	})

	return e.enqueue(ctx, job{kind: jobUpload, ctx: ctx, prompt: prompt, upload: req})
}

func uploadPromptText(req UploadRequest) string {
	if req.File.Size() == 0 {
		return req.Question
	}
	attached := fmt.Sprintf("[attached: %s]", req.File.Name)
	if req.Question == "" {
		return attached
	}
	return req.Question + "\n" + attached
}

func (e *Engine) enqueue(ctx context.Context, j job) error {
	j.done = make(chan error, 1)
	if err := e.submit(ctx, j); err != nil {
		return err
	}

	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-e.ctx.Done():
		return ErrClosed
	}
}

// submit hands j to the worker. Close holds jobsMu exclusively while it
// drains the queue, so no job is queued after the drain.
func (e *Engine) submit(ctx context.Context, j job) error {
	e.jobsMu.RLock()
	defer e.jobsMu.RUnlock()

	if e.ctx.Err() != nil {
		e.abandon(j, ErrClosed)
		return ErrClosed
	}
	select {
	case e.jobs <- j:
		return nil
	case <-ctx.Done():
		e.abandon(j, ctx.Err())
		return ctx.Err()
	case <-e.ctx.Done():
		e.abandon(j, ErrClosed)
		return ErrClosed
	}
}

// abandon records a job that never reached the worker as failed.
func (e *Engine) abandon(j job, cause error) error {
	if j.kind == jobUpload {
		return e.failUpload(j, cause)
	}
	return e.failSend(j, "", cause)
}

// drainJobs fails every job left in the queue once the worker has exited.
func (e *Engine) drainJobs() {
	for {
		select {
		case j := <-e.jobs:
			j.done <- e.abandon(j, ErrClosed)
		default:
			return
		}
	}
}

// worker dispatches jobs in submission order until the engine closes.
func (e *Engine) worker() {
	for {
		select {
		case <-e.ctx.Done():
			return
		case j := <-e.jobs:
			j.done <- e.run(j)
		}
	}
}

func (e *Engine) run(j job) error {
	// Closing the engine cancels in-flight work.
	ctx, cancel := context.WithCancel(j.ctx)
	defer cancel()
	stop := context.AfterFunc(e.ctx, cancel)
	defer stop()

	switch j.kind {
	case jobUpload:
		return e.runUpload(ctx, j)
	default:
		return e.runSend(ctx, j)
	}
}

func (e *Engine) runSend(ctx context.Context, j job) error {
	// The target is read at dispatch so a send queued behind a reply that
	// created a conversation goes to that conversation.
	convID := e.Snapshot().ActiveConversationID

	if err := ctx.Err(); err != nil {
		return e.failSend(j, convID, err)
	}

	start := time.Now()
	reply, err := e.backend.SendTurn(backend.WithIdempotencyKey(ctx, j.prompt.ID), j.prompt.Text, convID)
	if err != nil {
		return e.failSend(j, convID, err)
	}

	answer := view.NewLiveMessage(history.RoleAssistant, reply.Text, view.OriginTyped)
	e.update(EventReply, func(s view.State) view.State {
		s.Live = s.Live.InsertAfter(j.prompt.ID, answer)
		s.Loading.Sends--
		s.Errors.Send = nil
		if strings.TrimSpace(s.Input) == j.prompt.Text {
			s.Input = ""
		}
		// A Select made while the send was in flight keeps its target.
		if reply.ConversationID != "" && s.ActiveConversationID == convID {
			s.ActiveConversationID = reply.ConversationID
		}
		return s
	})

	e.logger.Debug("send complete",
		"conversation_id", reply.ConversationID,
		"duration", time.Since(start))

	if e.opts.RefreshAfterSend {
		e.TriggerRefresh()
	}
	return nil
}

func (e *Engine) failSend(j job, convID string, cause error) error {
	err := &SendError{ConversationID: convID, Reason: reason(cause), Err: cause}
	e.logger.Warn("send failed", "conversation_id", convID, "error", cause)

	e.update(EventSendFailed, func(s view.State) view.State {
		if e.opts.RetractOnFailure {
			s.Live = s.Live.Remove(j.prompt.ID)
		} else {
			s.Live = s.Live.Annotate(j.prompt.ID, err.Error())
		}
		s.Loading.Sends--
		s.Errors.Send = err
		return s
	})
	return err
}

func (e *Engine) runUpload(ctx context.Context, j job) error {
	convID := e.Snapshot().ActiveConversationID

	if err := ctx.Err(); err != nil {
		return e.failUpload(j, err)
	}

	reply, err := e.uploader.SendMultiModalTurn(ctx, j.upload.Question, j.upload.File, convID)
	if err != nil {
		return e.failUpload(j, err)
	}

	answer := view.NewLiveMessage(history.RoleAssistant, reply.Answer, view.OriginUpload)
	e.update(EventUploadAnswered, func(s view.State) view.State {
		s.Uploads = s.Uploads.InsertAfter(j.prompt.ID, answer)
		s.Loading.Uploads--
		s.Errors.Upload = nil
		if reply.ConversationID != "" && s.ActiveConversationID == convID {
			s.ActiveConversationID = reply.ConversationID
		}
		return s
	})

	if e.opts.RefreshAfterSend {
		e.TriggerRefresh()
	}
	return nil
}

func (e *Engine) failUpload(j job, cause error) error {
	err := &UploadError{
		ConversationID: e.Snapshot().ActiveConversationID,
		Reason:         reason(cause),
		Err:            cause,
	}
	if j.upload.File != nil {
		err.FileName = j.upload.File.Name
	}
	e.logger.Warn("upload failed", "file", err.FileName, "error", cause)

	e.update(EventUploadFailed, func(s view.State) view.State {
		if e.opts.RetractOnFailure {
			s.Uploads = s.Uploads.Remove(j.prompt.ID)
		} else {
			s.Uploads = s.Uploads.Annotate(j.prompt.ID, err.Error())
		}
		s.Loading.Uploads--
		s.Errors.Upload = err
		return s
	})
	return err
}

// reason is the short, user-facing description of a failure.
func reason(err error) string {
	var se *backend.StatusError
	switch {
	case errors.As(err, &se):
		return fmt.Sprintf("backend returned status %d", se.StatusCode)
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out"
	default:
		return err.Error()
	}
}
