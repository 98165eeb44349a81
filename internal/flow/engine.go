package flow

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/e2g-ufsm/flowbot/internal/messaging"
	"github.com/e2g-ufsm/flowbot/internal/models"
	"github.com/e2g-ufsm/flowbot/internal/store"
)

// DefaultSessionTimeout is how long a session may stay idle before the next
// inbound message is treated as a fresh start.
const DefaultSessionTimeout = 30 * time.Minute

// MediaHandler receives inbound messages that carry an attachment, after the
// flow transition for the turn has been applied.
type MediaHandler interface {
	HandleMedia(ctx context.Context, msg models.Message) error
}

// Engine drives conversations through the flow graph. One Engine serves all
// channels; per-user ordering is the dispatcher's job, so HandleMessage never
// runs concurrently for the same user.
type Engine struct {
	graph    *Graph
	store    store.Store
	sessions *SessionManager
	optins   *OptinRegistry
	services map[models.Channel]messaging.Service
	media    MediaHandler
	timeout  time.Duration
}

// NewEngine creates an engine over the given graph and store. A zero timeout
// falls back to DefaultSessionTimeout.
func NewEngine(graph *Graph, st store.Store, optins *OptinRegistry, timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = DefaultSessionTimeout
	}
	if optins == nil {
		optins = NewOptinRegistry()
	}
	return &Engine{
		graph:    graph,
		store:    st,
		sessions: NewSessionManager(st),
		optins:   optins,
		services: make(map[models.Channel]messaging.Service),
		timeout:  timeout,
	}
}

// RegisterService makes a messaging service available for outbound sends on
// its channel.
func (e *Engine) RegisterService(svc messaging.Service) {
	e.services[svc.Channel()] = svc
}

// SetMediaHandler installs the handler invoked for messages with attachments.
func (e *Engine) SetMediaHandler(h MediaHandler) {
	e.media = h
}

// Sessions exposes the session manager, mainly for the admin surface.
func (e *Engine) Sessions() *SessionManager {
	return e.sessions
}

// HandleMessage processes one inbound message as a full conversational turn.
func (e *Engine) HandleMessage(ctx context.Context, msg models.Message) error {
	svc, ok := e.services[msg.Channel]
	if !ok {
		return fmt.Errorf("no messaging service registered for channel %s", msg.Channel)
	}

	sess, created, err := e.sessions.ResolveOrCreate(msg.Channel, msg.ChannelUserID)
	if err != nil {
		return fmt.Errorf("failed to resolve session: %w", err)
	}
	if created {
		slog.Info("Engine HandleMessage started session", "channel", msg.Channel, "channelUserID", msg.ChannelUserID, "step", sess.CurrentStep)
	}

	now := time.Now()

	// First contact on this session: send the prompt for the current step and
	// wait for the reply on the next turn.
	if !sess.InitialPromptSent {
		e.sendStepPrompt(ctx, svc, sess, &msg, nil)
		sess.InitialPromptSent = true
		return e.sessions.Save(sess)
	}

	if e.sessions.IsExpired(sess, now, e.timeout) {
		slog.Info("Engine HandleMessage session expired", "channelUserID", sess.ChannelUserID, "lastActivity", sess.LastActivity)
		e.sendText(ctx, svc, sess, msgSessionExpired, "")
		if err := e.sessions.Delete(sess.Channel, sess.ChannelUserID); err != nil {
			return err
		}
		sess, _, err = e.sessions.ResolveOrCreate(msg.Channel, msg.ChannelUserID)
		if err != nil {
			return fmt.Errorf("failed to restart expired session: %w", err)
		}
		sess.CurrentStep = models.StepMainMenu
		e.sendStepPrompt(ctx, svc, sess, &msg, nil)
		sess.InitialPromptSent = true
		sess.Touch(now)
		return e.sessions.Save(sess)
	}

	sess.Touch(now)

	if msg.Text == models.CancelKeyword {
		e.sendText(ctx, svc, sess, msgCancelled, "")
		e.sessions.Reset(sess, models.StepMainMenu)
		e.sendStepPrompt(ctx, svc, sess, &msg, nil)
		sess.InitialPromptSent = true
		return e.sessions.Save(sess)
	}

	return e.runTurn(ctx, svc, sess, &msg)
}

// runTurn applies the per-step state machine. Steps that require no input
// chain automatically; the hop bound keeps a miswired flow from looping
// forever.
func (e *Engine) runTurn(ctx context.Context, svc messaging.Service, sess *models.Session, msg *models.Message) error {
	isInitial := msg.IsInitial()
	maxHops := e.graph.Len() + 1

	for hop := 0; hop < maxHops; hop++ {
		step, ok := e.graph.Step(sess.CurrentStep)
		if !ok {
			slog.Error("Engine runTurn unknown current step", "step", sess.CurrentStep, "channelUserID", sess.ChannelUserID)
			return nil
		}

		// Optin output from the previous step is consumed here, once.
		optinResult := sess.OptinResult
		sess.OptinResult = nil

		if step.Input != models.InputNone && !isInitial {
			if !ValidateInput(msg, step, svc.MenuStyle()) {
				return e.handleInvalidInput(ctx, svc, sess, msg, step)
			}
			sess.Retries = 0
			sess.Capture(step.ID, CaptureValue(msg, step))
		}

		if step.IsRegistration() {
			if !isInitial {
				if err := e.handleRegistration(ctx, svc, sess, msg, step); err != nil {
					return err
				}
			}
			break
		}

		if step.Optin != nil && !isInitial {
			inputs := make(map[string]string, len(step.Optin.Inputs))
			for _, id := range step.Optin.Inputs {
				inputs[id] = sess.Inputs[id].String()
			}
			optinResult = e.optins.Dispatch(step.Optin.Method, inputs)
			sess.OptinResult = optinResult
		}

		nextID := step.Next.Step
		if step.Next.IsMap() {
			nextID = ""
			switch {
			case step.Input == models.InputMenu && !isInitial:
				opt, resolved := ResolveMenuOption(step, msg.Text, svc.MenuStyle())
				if !resolved {
					slog.Warn("Engine runTurn unresolved menu selection", "step", step.ID, "text", msg.Text, "channelUserID", sess.ChannelUserID)
					return nil
				}
				nextID = step.Next.Branches[opt.Value]
			case !isInitial:
				if target, found := step.Next.Branches[msg.Text]; found {
					nextID = target
				} else if target, found := step.Next.Branches["default"]; found {
					nextID = target
				}
			}
		}

		if next, found := e.graph.Step(nextID); found {
			sess.CurrentStep = next.ID
			sess.InitialPromptSent = false
			e.sendStepPrompt(ctx, svc, sess, msg, optinResult)
			sess.InitialPromptSent = true
			if next.Input == models.InputNone {
				if hop == maxHops-1 {
					slog.Warn("Engine runTurn auto-chain bound reached", "step", next.ID, "channelUserID", sess.ChannelUserID)
				}
				continue
			}
			break
		}

		// Terminal step carrying optin output: report it and return to the
		// main menu.
		if len(optinResult) > 0 && !isInitial {
			e.sendText(ctx, svc, sess, formatOptinResult(optinResult), replyFor(step, msg))
			e.sessions.Reset(sess, models.StepMainMenu)
			e.sendStepPrompt(ctx, svc, sess, msg, nil)
			sess.InitialPromptSent = true
		}
		break
	}

	if msg.HasMedia() && !isInitial && e.media != nil {
		if err := e.media.HandleMedia(ctx, *msg); err != nil {
			slog.Error("Engine runTurn media handling failed", "error", err, "channelUserID", sess.ChannelUserID)
			e.sendText(ctx, svc, sess, msgMediaError, "")
		}
	}

	return e.sessions.Save(sess)
}

// handleInvalidInput applies the retry policy for a rejected input.
func (e *Engine) handleInvalidInput(ctx context.Context, svc messaging.Service, sess *models.Session, msg *models.Message, step *models.Step) error {
	sess.Retries++
	max := step.MaxRetries()
	slog.Info("Engine runTurn invalid input", "step", step.ID, "retries", sess.Retries, "maxRetries", max, "channelUserID", sess.ChannelUserID)
	if sess.Retries >= max {
		e.sendText(ctx, svc, sess, msgTooManyAttempts, "")
		e.sessions.Reset(sess, models.StepMainMenu)
	} else if step.CustomErrorMessage != "" {
		body := strings.ReplaceAll(step.CustomErrorMessage, "{currentRetries}", strconv.Itoa(sess.Retries))
		body = strings.ReplaceAll(body, "{maxRetries}", strconv.Itoa(max))
		e.sendText(ctx, svc, sess, body, replyFor(step, msg))
	}
	return e.sessions.Save(sess)
}

// sendStepPrompt renders and sends the prompt for the session's current step.
// Outbound failures are logged and never abort the turn.
func (e *Engine) sendStepPrompt(ctx context.Context, svc messaging.Service, sess *models.Session, msg *models.Message, optinResult map[string]string) {
	step, ok := e.graph.Step(sess.CurrentStep)
	if !ok {
		slog.Error("Engine sendStepPrompt unknown step", "step", sess.CurrentStep)
		return
	}
	body := e.renderTemplate(step.Message, sess, optinResult)
	to := sess.ChannelUserID

	var err error
	switch {
	case step.Image != "":
		var options []models.StepOption
		if step.Input == models.InputMenu {
			options = step.Options
		}
		err = svc.SendImage(ctx, to, step.Image, body, options)
	case step.Input == models.InputSticker && step.Sticker != "":
		err = svc.SendSticker(ctx, to, step.Sticker)
	case step.Input == models.InputMenu:
		err = svc.SendMenu(ctx, to, body, step.Options, replyFor(step, msg))
	default:
		err = svc.SendText(ctx, to, body, replyFor(step, msg))
	}
	if err != nil {
		slog.Error("Engine sendStepPrompt send failed", "error", err, "step", step.ID, "channelUserID", to)
	}
}

func (e *Engine) sendText(ctx context.Context, svc messaging.Service, sess *models.Session, body, replyTo string) {
	if err := svc.SendText(ctx, sess.ChannelUserID, body, replyTo); err != nil {
		slog.Error("Engine sendText failed", "error", err, "channelUserID", sess.ChannelUserID)
	}
}

// renderTemplate substitutes {name} with the bound user's name and every
// optin result key with its value.
func (e *Engine) renderTemplate(body string, sess *models.Session, optinResult map[string]string) string {
	name := defaultUserName
	if user, err := e.store.GetUser(sess.UserID); err == nil && user != nil {
		name = user.Name
	}
	body = strings.ReplaceAll(body, "{name}", name)
	for key, value := range optinResult {
		body = strings.ReplaceAll(body, "{"+key+"}", value)
	}
	return body
}

// formatOptinResult flattens an optin result into "key: value" lines with a
// stable order.
func formatOptinResult(result map[string]string) string {
	keys := make([]string, 0, len(result))
	for key := range result {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, key := range keys {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(key)
		b.WriteString(": ")
		b.WriteString(result[key])
	}
	return b.String()
}

func replyFor(step *models.Step, msg *models.Message) string {
	if step.ShouldReply() && msg != nil {
		return msg.MessageID
	}
	return ""
}
