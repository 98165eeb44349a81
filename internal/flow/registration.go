package flow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/e2g-ufsm/flowbot/internal/messaging"
	"github.com/e2g-ufsm/flowbot/internal/models"
)

// handleRegistration runs the two-step registration sub-flow. The name step
// simply advances; the CPF step validates, deduplicates identities across
// channels and binds the session to a user.
func (e *Engine) handleRegistration(ctx context.Context, svc messaging.Service, sess *models.Session, msg *models.Message, step *models.Step) error {
	switch step.ID {
	case models.StepRegisterName:
		sess.CurrentStep = models.StepRegisterCPF
		sess.InitialPromptSent = false
		e.sendStepPrompt(ctx, svc, sess, msg, nil)
		sess.InitialPromptSent = true
		return nil

	case models.StepRegisterCPF:
		cpf := models.NormalizeCPF(msg.Text)
		if err := models.ValidateCPF(cpf); err != nil {
			slog.Info("Engine handleRegistration rejected CPF", "error", err, "channelUserID", sess.ChannelUserID)
			e.sendText(ctx, svc, sess, msgInvalidCPF, replyFor(step, msg))
			return nil
		}

		user, err := e.store.GetUserByCPF(cpf)
		if err != nil {
			return fmt.Errorf("failed to look up user by CPF: %w", err)
		}

		var welcome string
		if user != nil {
			user.AddMessenger(sess.Channel, sess.ChannelUserID)
			welcome = fmt.Sprintf(welcomeBackFormat, user.Name)
			slog.Info("Engine handleRegistration linked channel to existing user", "userID", user.UserID, "channel", sess.Channel)
		} else {
			user = &models.User{
				UserID: uuid.NewString(),
				Name:   sess.Inputs[models.StepRegisterName].String(),
				CPF:    cpf,
				Messengers: []models.Messenger{
					{Source: sess.Channel, ID: sess.ChannelUserID},
				},
			}
			welcome = fmt.Sprintf(welcomeNewFormat, user.Name)
			slog.Info("Engine handleRegistration registered user", "userID", user.UserID, "channel", sess.Channel)
		}
		if err := e.store.SaveUser(*user); err != nil {
			return fmt.Errorf("failed to save user: %w", err)
		}

		sess.UserID = user.UserID
		e.sendText(ctx, svc, sess, welcome, replyFor(step, msg))
		e.sessions.Reset(sess, models.StepMainMenu)
		e.sendStepPrompt(ctx, svc, sess, msg, nil)
		sess.InitialPromptSent = true
		return nil

	default:
		slog.Error("Engine handleRegistration unknown registration step", "step", step.ID)
		return nil
	}
}
